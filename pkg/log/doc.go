// Package log is a thin wrapper around the standard library logger with
// named per-service loggers and selectively enabled debug output.
//
// Every line carries the level and a `[service>]` prefix:
//
//	2024/03/01 10:00:00.000000 INFO [search>] keyword "error" matched log-035 at index 65
//
// Services used across logsearch: search, storage, db, opensearch, api,
// realtime, import and serve.
//
// Usage
//
//	l := log.ForService("search")
//	l.Infof("resolved page %d", page)
//	l.Debugf("query: %s", q) // printed only when debug is on for "search"
//
// Debug output is controlled globally (SetGlobalDebug), per service
// (EnableDebugFor, DisableDebugFor) or all at once from configuration
// (Configure). SetOutput redirects every logger, which tests use to capture
// output in a bytes.Buffer.
//
// The package name collides with the standard library log package; alias one
// of them when both are needed.
package log
