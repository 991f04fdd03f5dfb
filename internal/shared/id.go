package shared

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ID is an opaque backend identifier. The backend emits it either as a JSON
// string or as a number; both decode to the same textual form.
type ID string

// String returns the textual form.
func (id ID) String() string { return string(id) }

// IsZero reports whether the id is empty.
func (id ID) IsZero() bool { return id == "" }

// UnmarshalJSON accepts strings and numbers.
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("shared: id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// IDs converts strings to ids, dropping blanks.
func IDs(values ...string) []ID {
	out := make([]ID, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, ID(v))
		}
	}
	return out
}
