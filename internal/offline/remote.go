// Setlist - Band Chart Sync and Offline Library
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package offline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/setlist/internal/models"
)

// Header names carrying the viewer identity to the server.
const (
	HeaderViewerID         = "X-Viewer-ID"
	HeaderTranspositionKey = "X-Transposition-Key"
)

// Remote is the server side of the offline client.
type Remote interface {
	// List returns the viewer's full listing of the root.
	List(ctx context.Context) (models.ContentListing, error)
	// Download returns the bytes of a visible item.
	Download(ctx context.Context, id string) ([]byte, error)
	// Ack records the last cursor the client applied.
	Ack(ctx context.Context, cursor string) error
}

// RemoteError is a non-2xx response from the server.
type RemoteError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *RemoteError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("server returned %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("server returned %d", e.StatusCode)
}

// Unwrap maps responses that can never succeed on retry to ErrDefinitive.
func (e *RemoteError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound,
		http.StatusGone, http.StatusUnprocessableEntity:
		return ErrDefinitive
	}
	return nil
}

// HTTPRemote talks to the setlist server API.
type HTTPRemote struct {
	baseURL string
	rootID  string
	viewer  models.ViewerContext
	client  *http.Client
}

// NewHTTPRemote creates a remote for viewer against the server at baseURL.
func NewHTTPRemote(baseURL, rootID string, viewer models.ViewerContext, client *http.Client) *HTTPRemote {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPRemote{
		baseURL: strings.TrimRight(baseURL, "/"),
		rootID:  rootID,
		viewer:  viewer,
		client:  client,
	}
}

type envelope struct {
	Status string           `json:"status"`
	Data   json.RawMessage  `json:"data"`
	Error  *models.APIError `json:"error,omitempty"`
}

// List implements Remote.
func (r *HTTPRemote) List(ctx context.Context) (models.ContentListing, error) {
	q := url.Values{}
	if r.rootID != "" {
		q.Set("root", r.rootID)
	}
	resp, err := r.do(ctx, http.MethodGet, "/api/v1/content?"+q.Encode(), nil)
	if err != nil {
		return models.ContentListing{}, err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return models.ContentListing{}, fmt.Errorf("decode listing: %w", err)
	}
	var listing models.ContentListing
	if err := json.Unmarshal(env.Data, &listing); err != nil {
		return models.ContentListing{}, fmt.Errorf("decode listing data: %w", err)
	}
	return listing, nil
}

// Download implements Remote.
func (r *HTTPRemote) Download(ctx context.Context, id string) ([]byte, error) {
	path := "/api/v1/content/" + url.PathEscape(id) + "/download"
	if r.rootID != "" {
		path += "?root=" + url.QueryEscape(r.rootID)
	}
	resp, err := r.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read download body: %w", err)
	}
	return data, nil
}

// Ack implements Remote.
func (r *HTTPRemote) Ack(ctx context.Context, cursor string) error {
	body, err := json.Marshal(models.AckRequest{RootID: r.rootID, Cursor: cursor})
	if err != nil {
		return fmt.Errorf("marshal ack: %w", err)
	}
	resp, err := r.do(ctx, http.MethodPost, "/api/v1/acks", body)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

func (r *HTTPRemote) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set(HeaderViewerID, r.viewer.ViewerID)
	req.Header.Set(HeaderTranspositionKey, string(r.viewer.TranspositionKey))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	rerr := &RemoteError{StatusCode: resp.StatusCode}
	var env envelope
	if json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&env) == nil && env.Error != nil {
		rerr.Code = env.Error.Code
		rerr.Message = env.Error.Message
	}
	return nil, rerr
}
