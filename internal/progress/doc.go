// Package progress provides the event primitives, per-job pub/sub hub, and
// publisher interfaces that import workers use to report progress. The hub
// retains the latest event per job so late subscribers catch up immediately,
// and fans every event out to pluggable sinks such as Prometheus metrics or
// structured logs.
package progress
