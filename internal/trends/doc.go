// Package trends defines the core types shared across the ingestion
// pipeline: trend records and their identity keys, fetch windows, validation
// reports, run bookkeeping, the error taxonomy, and the interfaces
// (fetcher, clock, retry policy, run store) that the pipeline composes.
package trends
