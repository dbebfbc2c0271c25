// Setlist - Band Chart Sync and Offline Library
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package offline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"

	"github.com/tomtom215/setlist/internal/models"
)

var bbViewer = models.ViewerContext{ViewerID: "trumpet", TranspositionKey: models.KeyBb}

func newFakeServer(t *testing.T, acks *[]models.AckRequest) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/content", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(HeaderViewerID) != "trumpet" || r.Header.Get(HeaderTranspositionKey) != "Bb" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(models.APIResponse{
			Status: "success",
			Data: models.ContentListing{RootID: r.URL.Query().Get("root"), Cursor: "c5", Items: []models.ContentItem{
				{ID: "blue", Revision: "r1"},
			}},
		})
	})
	mux.HandleFunc("GET /api/v1/content/{id}/download", func(w http.ResponseWriter, r *http.Request) {
		switch r.PathValue("id") {
		case "blue":
			_, _ = w.Write([]byte("%PDF"))
		case "flaky":
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(models.APIResponse{
				Status: "error",
				Error:  &models.APIError{Code: "NOT_FOUND", Message: "content not found"},
			})
		}
	})
	mux.HandleFunc("POST /api/v1/acks", func(w http.ResponseWriter, r *http.Request) {
		var req models.AckRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		*acks = append(*acks, req)
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPRemote(t *testing.T) {
	t.Parallel()

	var acks []models.AckRequest
	srv := newFakeServer(t, &acks)
	r := NewHTTPRemote(srv.URL+"/", "root-1", bbViewer, srv.Client())
	ctx := context.Background()

	listing, err := r.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if listing.Cursor != "c5" || listing.RootID != "root-1" || len(listing.Items) != 1 {
		t.Errorf("listing = %+v", listing)
	}

	blob, err := r.Download(ctx, "blue")
	if err != nil || string(blob) != "%PDF" {
		t.Errorf("Download(blue) = %q, %v", blob, err)
	}

	_, err = r.Download(ctx, "gone")
	var rerr *RemoteError
	if !errors.Is(err, ErrDefinitive) || !errors.As(err, &rerr) || rerr.Code != "NOT_FOUND" {
		t.Errorf("Download(gone) = %v, want definitive NOT_FOUND", err)
	}

	if _, err := r.Download(ctx, "flaky"); err == nil || errors.Is(err, ErrDefinitive) {
		t.Errorf("Download(flaky) = %v, want transient error", err)
	}

	if err := r.Ack(ctx, "c5"); err != nil {
		t.Fatalf("Ack() error = %v", err)
	}
	if len(acks) != 1 || acks[0].Cursor != "c5" || acks[0].RootID != "root-1" {
		t.Errorf("acks = %+v", acks)
	}
}

func TestRemoteError_Classification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status     int
		definitive bool
	}{
		{http.StatusBadRequest, true},
		{http.StatusForbidden, true},
		{http.StatusNotFound, true},
		{http.StatusGone, true},
		{http.StatusUnauthorized, false},
		{http.StatusTooManyRequests, false},
		{http.StatusInternalServerError, false},
		{http.StatusBadGateway, false},
	}
	for _, tt := range tests {
		err := &RemoteError{StatusCode: tt.status}
		if got := errors.Is(err, ErrDefinitive); got != tt.definitive {
			t.Errorf("status %d definitive = %v, want %v", tt.status, got, tt.definitive)
		}
	}
}
