package listing

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	ID string `json:"id"`
}

func TestDecodeBareArrayIsSingleCompletePage(t *testing.T) {
	page, err := Decode[item](json.RawMessage(`[{"id":"a"},{"id":"b"}]`))
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 1, page.TotalPages)
	assert.False(t, page.HasNext)
	assert.False(t, page.HasPrev)
}

func TestDecodeEnvelopePrefersExplicitFlags(t *testing.T) {
	raw := `{"data":[{"id":"a"}],"meta":{"total":10,"page":1,"limit":1,"totalPages":10,"hasNext":false,"hasPrev":true}}`
	page, err := Decode[item](json.RawMessage(raw))
	require.NoError(t, err)
	assert.False(t, page.HasNext)
	assert.True(t, page.HasPrev)
	assert.Equal(t, 10, page.TotalPages)
}

func TestDecodeEnvelopeDerivesFlags(t *testing.T) {
	raw := `{"data":[{"id":"c"}],"meta":{"total":"5","page":2,"pageSize":2}}`
	page, err := Decode[item](json.RawMessage(raw))
	require.NoError(t, err)
	assert.Equal(t, 2, page.Limit)
	assert.Equal(t, 3, page.TotalPages)
	assert.True(t, page.HasNext)
	assert.True(t, page.HasPrev)
}

func TestDecodeTopLevelMeta(t *testing.T) {
	raw := `{"data":[{"id":"a"}],"page":3,"totalPages":3}`
	page, err := Decode[item](json.RawMessage(raw))
	require.NoError(t, err)
	assert.Equal(t, 3, page.Page)
	assert.False(t, page.HasNext)
	assert.True(t, page.HasPrev)
}

func TestDecodeWithoutPagingInfoAssumesLastPage(t *testing.T) {
	page, err := Decode[item](json.RawMessage(`{"data":[{"id":"a"},{"id":"b"}]}`))
	require.NoError(t, err)
	assert.False(t, page.HasNext)
	assert.Equal(t, 1, page.TotalPages)
	assert.Equal(t, 2, page.Total)
}

func TestDecodeUnknownShapes(t *testing.T) {
	cases := map[string]string{
		"empty":       ``,
		"null":        `null`,
		"scalar":      `42`,
		"no data":     `{"items":[]}`,
		"bad items":   `{"data":"nope"}`,
		"bad array":   `[1,2]`,
		"broken json": `{"data":[`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			page, err := Decode[item](json.RawMessage(raw))
			var shapeErr *ShapeError
			require.ErrorAs(t, err, &shapeErr)
			assert.Empty(t, page.Items)
			assert.NotNil(t, page.Items)
			assert.False(t, page.HasNext)
			assert.Equal(t, 1, page.Page)
		})
	}
}

func TestPaginate(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	page := Paginate(items, 2, 2)
	assert.Equal(t, []int{3, 4}, page.Items)
	assert.Equal(t, 3, page.TotalPages)
	assert.True(t, page.HasNext)
	assert.True(t, page.HasPrev)

	last := Paginate(items, 3, 2)
	assert.Equal(t, []int{5}, last.Items)
	assert.False(t, last.HasNext)

	beyond := Paginate(items, 9, 2)
	assert.Empty(t, beyond.Items)

	huge := Paginate(items, math.MaxInt/2, 2)
	assert.Empty(t, huge.Items)
	assert.Equal(t, math.MaxInt/2, huge.Page)
	assert.False(t, huge.HasNext)

	maxed := Paginate(items, math.MaxInt, 100)
	assert.Empty(t, maxed.Items)

	empty := Paginate([]int{}, 0, 0)
	assert.Equal(t, 1, empty.Page)
	assert.Equal(t, DefaultLimit, empty.Limit)
	assert.Equal(t, 1, empty.TotalPages)
}

func TestDecodeOne(t *testing.T) {
	got, err := DecodeOne[item](json.RawMessage(`{"id":"a"}`))
	require.NoError(t, err)
	assert.Equal(t, "a", got.ID)

	got, err = DecodeOne[item](json.RawMessage(`{"data":{"id":"b"}}`))
	require.NoError(t, err)
	assert.Equal(t, "b", got.ID)

	_, err = DecodeOne[item](nil)
	var shapeErr *ShapeError
	assert.ErrorAs(t, err, &shapeErr)
}
