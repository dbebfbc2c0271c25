// Setlist - Band Chart Sync and Offline Library
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

/*
Package middleware provides HTTP middleware shared by the API router.

Components:

  - RequestID: request and correlation ids for log tracing
  - PrometheusMetrics: per-route request counts, latency and in-flight gauge

Both use the chi signature func(http.Handler) http.Handler:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.PrometheusMetrics)

PrometheusMetrics labels requests with the matched chi route pattern, not the
raw path, so content ids never become label values.
*/
package middleware
