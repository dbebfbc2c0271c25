// Setlist - Band Chart Sync and Offline Library
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

const (
	// MimeFolder is the Drive MIME type for folders.
	MimeFolder = "application/vnd.google-apps.folder"
	// MimeShortcut is the Drive MIME type for shortcuts.
	MimeShortcut = "application/vnd.google-apps.shortcut"

	driveFileFields = "id,name,mimeType,size,md5Checksum,version,modifiedTime,parents,shortcutDetails"
	maxErrorBody    = 4096
)

// DriveProvider talks to the Google Drive v3 REST API.
type DriveProvider struct {
	baseURL  string
	client   *http.Client
	tokens   TokenSource
	pageSize int
}

// NewDriveProvider creates a provider rooted at baseURL, for example
// https://www.googleapis.com/drive/v3.
func NewDriveProvider(baseURL string, tokens TokenSource, client *http.Client, pageSize int) *DriveProvider {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if pageSize <= 0 || pageSize > 1000 {
		pageSize = 1000
	}
	return &DriveProvider{
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   client,
		tokens:   tokens,
		pageSize: pageSize,
	}
}

// driveFile mirrors the subset of the Drive file resource we read.
type driveFile struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	MimeType        string   `json:"mimeType"`
	Size            string   `json:"size"`
	MD5Checksum     string   `json:"md5Checksum"`
	Version         string   `json:"version"`
	ModifiedTime    string   `json:"modifiedTime"`
	Parents         []string `json:"parents"`
	ShortcutDetails *struct {
		TargetID       string `json:"targetId"`
		TargetMimeType string `json:"targetMimeType"`
	} `json:"shortcutDetails"`
}

type driveFileList struct {
	NextPageToken string      `json:"nextPageToken"`
	Files         []driveFile `json:"files"`
}

type driveErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason  string `json:"reason"`
			Message string `json:"message"`
		} `json:"errors"`
	} `json:"error"`
}

func (f driveFile) toEntry() Entry {
	e := Entry{
		ID:       f.ID,
		Name:     f.Name,
		MimeType: f.MimeType,
		IsFolder: f.MimeType == MimeFolder,
		Parents:  f.Parents,
	}
	if f.Size != "" {
		if n, err := strconv.ParseInt(f.Size, 10, 64); err == nil {
			e.Size = n
		}
	}
	if f.ModifiedTime != "" {
		if t, err := time.Parse(time.RFC3339, f.ModifiedTime); err == nil {
			e.ModifiedAt = t.UTC()
		}
	}
	switch {
	case f.MD5Checksum != "":
		e.Revision = f.MD5Checksum
	case f.Version != "":
		e.Revision = "v" + f.Version
	default:
		e.Revision = f.ModifiedTime
	}
	if f.MimeType == MimeShortcut && f.ShortcutDetails != nil {
		e.ShortcutTarget = f.ShortcutDetails.TargetID
		e.ShortcutTargetFolder = f.ShortcutDetails.TargetMimeType == MimeFolder
	}
	return e
}

// ListChildrenPage lists one page of non-trashed children of folderID.
func (d *DriveProvider) ListChildrenPage(ctx context.Context, folderID, pageToken string) ([]Entry, string, error) {
	params := url.Values{}
	params.Set("q", fmt.Sprintf("'%s' in parents and trashed=false", escapeQuery(folderID)))
	params.Set("fields", "nextPageToken,files("+driveFileFields+")")
	params.Set("pageSize", strconv.Itoa(d.pageSize))
	params.Set("supportsAllDrives", "true")
	params.Set("includeItemsFromAllDrives", "true")
	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}

	var page driveFileList
	if err := d.getJSON(ctx, d.baseURL+"/files?"+params.Encode(), &page); err != nil {
		return nil, "", err
	}
	entries := make([]Entry, 0, len(page.Files))
	for _, f := range page.Files {
		entries = append(entries, f.toEntry())
	}
	return entries, page.NextPageToken, nil
}

// GetEntry fetches a single file resource.
func (d *DriveProvider) GetEntry(ctx context.Context, id string) (Entry, error) {
	params := url.Values{}
	params.Set("fields", driveFileFields)
	params.Set("supportsAllDrives", "true")

	var f driveFile
	if err := d.getJSON(ctx, d.baseURL+"/files/"+url.PathEscape(id)+"?"+params.Encode(), &f); err != nil {
		return Entry{}, err
	}
	return f.toEntry(), nil
}

// Download streams the content of a file. The caller closes the reader.
func (d *DriveProvider) Download(ctx context.Context, id string) (io.ReadCloser, error) {
	params := url.Values{}
	params.Set("alt", "media")
	params.Set("supportsAllDrives", "true")
	resp, err := d.do(ctx, d.baseURL+"/files/"+url.PathEscape(id)+"?"+params.Encode())
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (d *DriveProvider) getJSON(ctx context.Context, reqURL string, out interface{}) error {
	resp, err := d.do(ctx, reqURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// do executes an authenticated GET and converts non-2xx responses into
// *ProviderError.
func (d *DriveProvider) do(ctx context.Context, reqURL string) (*http.Response, error) {
	token, err := d.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("obtain access token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request failed: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	return nil, parseProviderError(resp)
}

func parseProviderError(resp *http.Response) *ProviderError {
	pe := &ProviderError{
		StatusCode: resp.StatusCode,
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var eb driveErrorBody
	if err := json.Unmarshal(body, &eb); err == nil && (eb.Error.Message != "" || len(eb.Error.Errors) > 0) {
		pe.Message = eb.Error.Message
		if len(eb.Error.Errors) > 0 {
			pe.Reason = eb.Error.Errors[0].Reason
		}
	} else {
		pe.Message = strings.TrimSpace(string(body))
	}
	if pe.Message == "" {
		pe.Message = http.StatusText(resp.StatusCode)
	}
	return pe
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// escapeQuery escapes a value for use inside a single-quoted Drive query.
func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}
