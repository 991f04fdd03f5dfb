package shared

// LoadState is the lifecycle of a session-owned cache.
type LoadState int

const (
	StateUninitialized LoadState = iota
	StateLoading
	StateReady
	StateError
)

func (s LoadState) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	default:
		return "uninitialized"
	}
}

// MarshalText renders the state name in JSON payloads.
func (s LoadState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
