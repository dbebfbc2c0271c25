// Setlist - Band Chart Sync and Offline Library
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

/*
Package storage wraps the cloud-storage REST API behind a rate-limited,
retrying, caching client.

# Layers

	Client      shared limiter, retry, breaker, TTL cache, singleflight
	Provider    one HTTP request per call (DriveProvider)
	TokenSource bearer credential from the auth collaborator

Every request, including each page of a listing and every retry, takes a
token from one process-wide bucket refilled at QuotaPer100s/100 tokens per
second. A throttled page is retried on its own.

# Errors

Callers branch with errors.Is:

	ErrRateLimitExceeded   throttled on every attempt; retry later
	ErrAuthRequired        re-authenticate; never retried
	ErrNotFound            entry missing or not shared; never retried
	ErrProviderUnavailable circuit breaker open

Throttling is HTTP 429 or 403 with a rate-limit reason. Server errors (5xx)
are retried on the same schedule as throttling but do not become
ErrRateLimitExceeded when attempts run out.

# Caching

ListChildren and GetEntryMetadata results are cached under list:<folderID>
and meta:<entryID>. Concurrent misses share one fetch, which keeps running
for the remaining callers when one of them cancels. DownloadBytes is never
cached; blob caching belongs to the offline client.
*/
package storage
