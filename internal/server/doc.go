// Package server implements the secure transfer backend: the HTTP API
// the client polls, the transfer lifecycle engine with its background
// worker pool, and the Postgres/MinIO-backed transfer and blob stores.
// It wires together routes, dependencies, and lifecycle helpers used by
// tests and the production binary.
package server
