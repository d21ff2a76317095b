package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ad-freiburg/text-correction-utils/envconfig"
)

func TestClientFromEnvironment(t *testing.T) {
	t.Setenv("TCU_CONFIG", "")
	t.Setenv("TCU_HOST", "10.0.0.1:1234")
	envconfig.LoadConfig()

	client, err := ClientFromEnvironment()
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.1:1234", client.base.String())
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	base, err := url.Parse(ts.URL)
	require.NoError(t, err)
	return NewClient(base, ts.Client())
}

func TestClientDo(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.True(t, strings.HasPrefix(r.Header.Get("User-Agent"), "tcu/"))

		switch r.URL.Path {
		case "/api/sessions/abc/next":
			assert.Equal(t, http.MethodPost, r.Method)

			var req NextRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, 3, req.Index)

			json.NewEncoder(w).Encode(SessionResponse{ID: "abc", Indices: []int{1, 2}, IsMatch: true})
		case "/api/version":
			json.NewEncoder(w).Encode(VersionResponse{Version: "1.2.3"})
		default:
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": "session not found"})
		}
	})

	ctx := context.Background()
	resp, err := client.Next(ctx, "abc", 3)
	require.NoError(t, err)
	assert.Equal(t, &SessionResponse{ID: "abc", Indices: []int{1, 2}, IsMatch: true}, resp)

	v, err := client.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", v)

	_, err = client.GetSession(ctx, "missing")
	var serr StatusError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, http.StatusNotFound, serr.StatusCode)
	assert.Equal(t, "session not found", serr.ErrorMessage)
	assert.Equal(t, "404 Not Found: session not found", serr.Error())
}

func TestCheckErrorPlainBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})

	err := client.DeleteSession(context.Background(), "x")
	var serr StatusError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, http.StatusBadGateway, serr.StatusCode)
	assert.Equal(t, "bad gateway\n", serr.ErrorMessage)
}

func TestStatusError(t *testing.T) {
	cases := []struct {
		err  StatusError
		want string
	}{
		{StatusError{Status: "400 Bad Request", ErrorMessage: "invalid prefix"}, "400 Bad Request: invalid prefix"},
		{StatusError{Status: "500 Internal Server Error"}, "500 Internal Server Error"},
		{StatusError{ErrorMessage: "oops"}, "oops"},
		{StatusError{}, "something went wrong, please see the server logs for details"},
	}

	for _, tt := range cases {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}
