// Package aquilog is a fail-open logging and retrieval pipeline for a
// conversational agent. Every agent action is recorded as a structured
// event, redacted, validated, and fanned out concurrently to a set of
// independent stores (JetStream KV, sqlite, JetStream object store, and a
// vector index); reads consult every store and merge the copies back into
// one status-annotated view.
//
// The core contract is that persistence problems never surface as errors to
// the caller: write and read outcomes are data, and the service keeps
// answering with degraded results when backends are down.
package aquilog
