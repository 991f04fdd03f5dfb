package backend

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoSendsTokenAndBody(t *testing.T) {
	var gotAuth, gotBody, gotQuery, gotReqID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotReqID = r.Header.Get("X-Request-Id")
		gotQuery = r.URL.RawQuery
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client := NewClient(Options{BaseURL: srv.URL + "/"}).WithToken("tok")
	raw, err := client.Do(context.Background(), http.MethodPost, "/permissions", url.Values{"page": {"2"}}, map[string]string{"module": "products"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(raw))
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.NotEmpty(t, gotReqID)
	assert.Equal(t, "page=2", gotQuery)
	assert.JSONEq(t, `{"module":"products"}`, gotBody)
}

func TestDoEmptyBodyReturnsNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	raw, err := NewClient(Options{BaseURL: srv.URL}).Do(context.Background(), http.MethodDelete, "/permissions/1", nil, nil)
	require.NoError(t, err)
	assert.Nil(t, raw)
}

func TestDoDecodesErrorBodies(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"json string", `"role name taken"`, "role name taken"},
		{"message", `{"message":"module is required"}`, "module is required"},
		{"message list", `{"message":["module is required","action is invalid"],"error":"Bad Request"}`, "module is required; action is invalid"},
		{"error", `{"error":"forbidden"}`, "forbidden"},
		{"plain text", `upstream exploded`, "upstream exploded"},
		{"nothing useful", `{"code":17}`, "request failed with status 400"},
		{"empty", ``, "request failed with status 400"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := NewClient(Options{BaseURL: srv.URL}).Get(context.Background(), "/permissions", nil)
			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, http.StatusBadRequest, apiErr.Status)
			assert.Equal(t, tc.want, apiErr.Message)
			assert.Equal(t, tc.want, MessageFrom(err))
		})
	}
}

func TestDoTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	_, err := NewClient(Options{BaseURL: addr}).Get(context.Background(), "/permissions", nil)
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, "could not reach the server", MessageFrom(err))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(&APIError{Status: http.StatusNotFound}))
	assert.False(t, IsNotFound(&APIError{Status: http.StatusConflict}))
	assert.False(t, IsNotFound(errors.New("x")))
}
