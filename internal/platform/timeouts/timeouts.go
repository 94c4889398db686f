// Package timeouts collects the durations shared by fairroll binaries.
package timeouts

import "time"

// Dial caps how long betctl waits for the resolver to report healthy.
const Dial = 5 * time.Second

// Request caps a single betctl RPC.
const Request = 10 * time.Second

// Shutdown caps graceful server shutdown.
const Shutdown = 5 * time.Second

// SQLiteBusy is how long SQLite waits on a locked database before failing.
const SQLiteBusy = 5 * time.Second
