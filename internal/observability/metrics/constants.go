// Package metrics provides constants used across metric definitions.
package metrics

import "time"

// Label values shared by the capture pipeline collectors.
const (
	// StatusAdded marks a chunk file copied into the archive.
	StatusAdded = "added"
	// StatusSkipped marks a chunk file left out of the archive after a read failure.
	StatusSkipped = "skipped"

	// OutcomeArchived is a session that produced an archive.
	OutcomeArchived = "archived"
	// OutcomeFailed is a session whose archive container could not be created.
	OutcomeFailed = "failed"
	// OutcomeEmpty is a session stopped before any chunk was written.
	OutcomeEmpty = "empty"

	// ReasonEncode is a chunk dropped because it could not be serialized.
	ReasonEncode = "encode"
	// ReasonIO is a chunk dropped because the file write failed.
	ReasonIO = "io"
	// ReasonShutdown is a chunk dropped because the writer closed before reaching it.
	ReasonShutdown = "shutdown"
)

// Histogram bucket configuration constants.
const (
	// BucketStart100us is the starting bucket for 0.1ms histograms (0.1ms to ~400ms range).
	BucketStart100us = 0.0001
	// BucketStart10ms is the starting bucket for 10ms histograms (10ms to ~40s range).
	BucketStart10ms = 0.01

	// BucketFactor2 is the common exponential growth factor of 2 for histogram buckets.
	BucketFactor2 = 2

	// BucketCount12 defines 12 exponential buckets.
	BucketCount12 = 12
)

// ShutdownTimeout bounds the metrics server's graceful shutdown.
const ShutdownTimeout = 5 * time.Second
