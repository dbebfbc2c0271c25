// Setlist - Band Chart Sync and Offline Library
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

/*
Package sync keeps one authoritative snapshot per watched root folder and
publishes what changed between scans.

# Cycle

Each root has an Engine with a single loop:

	Idle → Scanning → Diffing → Publishing → Idle

Scans are requested by the poll ticker, storage webhooks and manual
triggers. Only one scan per root runs at a time. Requests that arrive while
a scan is running collapse into exactly one follow-up scan; they never
queue up. Different roots scan independently.

# First Scan

The first successful scan of a root has no previous snapshot to compare
against, so every item is reported as Added. This is intentional: it primes
every connected viewer. Operators will see one large batch per root after
each restart; that batch is expected and is logged at info level.

# Failures

A scan whose root listing fails produces no diff and no events. The
previous snapshot stays authoritative, the failure goes to the
FailureReporter and metrics, and connected viewers receive a
snapshot_stale notice. The next trigger scans normally; there is no extra
backoff beyond the storage client's own retries. Scans abandoned on
shutdown commit nothing.

Skipped subtrees are not failures: the scan completes with the rest of the
tree and the skipped folders appear in Status.
*/
package sync
