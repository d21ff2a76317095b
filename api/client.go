// Package api implements the client-side API for the text correction
// server.
//
// The [Client] type has a method for every endpoint of the server. Create
// one with [ClientFromEnvironment], which honors TCU_HOST.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"runtime"

	"github.com/ad-freiburg/text-correction-utils/envconfig"
	"github.com/ad-freiburg/text-correction-utils/version"
)

// Client encapsulates client state for interacting with the server.
type Client struct {
	base *url.URL
	http *http.Client
}

// ClientFromEnvironment creates a new [Client] using configuration from
// the environment variable TCU_HOST.
func ClientFromEnvironment() (*Client, error) {
	return NewClient(&url.URL{Scheme: "http", Host: envconfig.Host}, http.DefaultClient), nil
}

func NewClient(base *url.URL, http *http.Client) *Client {
	return &Client{base: base, http: http}
}

func (c *Client) do(ctx context.Context, method, path string, reqData, respData any) error {
	var reqBody io.Reader
	if reqData != nil {
		data, err := json.Marshal(reqData)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	}

	requestURL := c.base.JoinPath(path)
	request, err := http.NewRequestWithContext(ctx, method, requestURL.String(), reqBody)
	if err != nil {
		return err
	}

	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")
	request.Header.Set("User-Agent", fmt.Sprintf("tcu/%s (%s %s) Go/%s", version.Version, runtime.GOARCH, runtime.GOOS, runtime.Version()))

	respObj, err := c.http.Do(request)
	if err != nil {
		return err
	}
	defer respObj.Body.Close()

	respBody, err := io.ReadAll(respObj.Body)
	if err != nil {
		return err
	}

	if err := checkError(respObj, respBody); err != nil {
		return err
	}

	if len(respBody) > 0 && respData != nil {
		if err := json.Unmarshal(respBody, respData); err != nil {
			return err
		}
	}
	return nil
}

func checkError(resp *http.Response, body []byte) error {
	if resp.StatusCode < http.StatusBadRequest {
		return nil
	}

	apiError := StatusError{StatusCode: resp.StatusCode, Status: resp.Status}

	err := json.Unmarshal(body, &apiError)
	if err != nil {
		// Use the full body as the message if we fail to decode a response.
		apiError.ErrorMessage = string(body)
	}

	return apiError
}

// CreateSession starts a constraint session on the server.
func (c *Client) CreateSession(ctx context.Context, req *SessionRequest) (*SessionResponse, error) {
	var resp SessionResponse
	if err := c.do(ctx, http.MethodPost, "/api/sessions", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) GetSession(ctx context.Context, id string) (*SessionResponse, error) {
	var resp SessionResponse
	if err := c.do(ctx, http.MethodGet, "/api/sessions/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Next advances a session by the continuation at index.
func (c *Client) Next(ctx context.Context, id string, index int) (*SessionResponse, error) {
	var resp SessionResponse
	if err := c.do(ctx, http.MethodPost, "/api/sessions/"+url.PathEscape(id)+"/next", NextRequest{Index: index}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Reset moves a session to the state after prefix.
func (c *Client) Reset(ctx context.Context, id, prefix string) (*SessionResponse, error) {
	var resp SessionResponse
	if err := c.do(ctx, http.MethodPost, "/api/sessions/"+url.PathEscape(id)+"/reset", ResetRequest{Prefix: prefix}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/sessions/"+url.PathEscape(id), nil, nil)
}

func (c *Client) Lex(ctx context.Context, req *LexRequest) (*LexResponse, error) {
	var resp LexResponse
	if err := c.do(ctx, http.MethodPost, "/api/lex", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Parse(ctx context.Context, req *ParseRequest) (*ParseResponse, error) {
	var resp ParseResponse
	if err := c.do(ctx, http.MethodPost, "/api/parse", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Continuations runs a batched trie query.
func (c *Client) Continuations(ctx context.Context, req *ContinuationsRequest) (*ContinuationsResponse, error) {
	var resp ContinuationsResponse
	if err := c.do(ctx, http.MethodPost, "/api/continuations", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Grammars lists the grammar catalog of the server.
func (c *Client) Grammars(ctx context.Context) (*ListGrammarsResponse, error) {
	var resp ListGrammarsResponse
	if err := c.do(ctx, http.MethodGet, "/api/grammars", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Version returns the server version as a string.
func (c *Client) Version(ctx context.Context) (string, error) {
	var version VersionResponse
	if err := c.do(ctx, http.MethodGet, "/api/version", nil, &version); err != nil {
		return "", err
	}
	return version.Version, nil
}
