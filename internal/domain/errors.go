package domain

import "errors"

// Domain errors - these are returned by store implementations
// and checked by the reconciler and callback layers.

var (
	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound = errors.New("resource not found")

	// ErrDocumentNotFound indicates the specified document does not exist.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrCollectionNotFound indicates the specified collection does not exist
	// or has been soft-deleted.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrSummaryNotFound indicates the specified collection summary does not exist.
	ErrSummaryNotFound = errors.New("collection summary not found")

	// ErrInvalidIndexType indicates a value outside the closed index type set.
	ErrInvalidIndexType = errors.New("invalid index type")
)
