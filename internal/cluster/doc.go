// Package cluster provides the HTTP client for the storage cluster's
// coordinator (master) API. It is the harness's query port: everything the
// harness learns about the cluster over the wire goes through this package.
//
// # Overview
//
// The coordinator exposes a small HTTP surface:
//
//	GET /health            liveness probe, 200 when serving
//	GET /delete?name=&secret=  delete a file by name (admin secret required)
//	GET /stats             JSON counters (total_files, active_nodes, ...)
//	GET /metrics           Prometheus text exposition
//	POST /upload           multipart file upload (field "movie", form "secret")
//
// Client wraps these with context-aware methods. Delete is deliberately
// infallible at the API level: DeleteFile always returns a DeleteOutcome, and
// transport failures are folded into the outcome rather than surfaced as
// errors, because the harness issues deletes against intentionally degraded
// clusters where failure is an expected, recordable result.
//
// Stats distinguishes "cluster gave a bad answer" from "cluster is not there":
// the latter wraps ErrUnreachable so callers can treat it as a fatal
// environment problem.
package cluster
