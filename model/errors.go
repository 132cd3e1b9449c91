package model

import "errors"

// Sentinel errors for the retrieval core. Callers match them with errors.Is;
// all wrapping inside the module preserves the chain.
var (
	// ErrInvalidConfig is returned for bad chunking or metric parameters.
	// It is always raised at configuration time, before any ingestion work.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrExtractionFailed is returned when text extraction from a file fails.
	ErrExtractionFailed = errors.New("text extraction failed")

	// ErrEmbeddingUnavailable marks a transient embedding failure that is
	// safe to retry with backoff.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrServiceDegraded is surfaced after embedding retries are exhausted.
	ErrServiceDegraded = errors.New("embedding service degraded")

	// ErrIndexWriteConflict marks a conflicting index write; the upsert can
	// be retried.
	ErrIndexWriteConflict = errors.New("index write conflict")

	// ErrConversationNotFound is returned for unknown conversation ids.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrConversationExpired is returned for conversations past their TTL.
	// Expired conversations never reactivate; callers create a new one.
	ErrConversationExpired = errors.New("conversation expired")

	// ErrGenerationFailed marks a failed generation call (timeout, rate
	// limit, refusal). Retryable up to a bounded policy.
	ErrGenerationFailed = errors.New("generation failed")
)
