package domain

import (
	"fmt"
	"strings"
	"time"
)

// IndexType identifies one kind of derived index maintained for a document.
// The set is closed: unknown values are rejected at the boundary.
type IndexType string

const (
	IndexTypeVector   IndexType = "VECTOR"
	IndexTypeFulltext IndexType = "FULLTEXT"
	IndexTypeGraph    IndexType = "GRAPH"
	IndexTypeSummary  IndexType = "SUMMARY"
	IndexTypeVision   IndexType = "VISION"
)

// AllIndexTypes returns the closed set of index types in a stable order.
func AllIndexTypes() []IndexType {
	return []IndexType{IndexTypeVector, IndexTypeFulltext, IndexTypeGraph, IndexTypeSummary, IndexTypeVision}
}

// ParseIndexType validates and normalizes a raw index type string.
func ParseIndexType(s string) (IndexType, error) {
	t := IndexType(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range AllIndexTypes() {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidIndexType, s)
}

// DocumentIndexStatus is the lifecycle state of a (document, index type) pair.
type DocumentIndexStatus string

const (
	IndexStatusPending            DocumentIndexStatus = "PENDING"
	IndexStatusCreating           DocumentIndexStatus = "CREATING"
	IndexStatusActive             DocumentIndexStatus = "ACTIVE"
	IndexStatusDeleting           DocumentIndexStatus = "DELETING"
	IndexStatusDeletionInProgress DocumentIndexStatus = "DELETION_IN_PROGRESS"
	IndexStatusFailed             DocumentIndexStatus = "FAILED"
)

// InFlight reports whether the index is between a claim and a terminal callback.
func (s DocumentIndexStatus) InFlight() bool {
	return s == IndexStatusCreating || s == IndexStatusDeletionInProgress
}

// DocumentStatus is the user-visible status of a document.
type DocumentStatus string

const (
	DocumentStatusUploaded DocumentStatus = "UPLOADED"
	DocumentStatusPending  DocumentStatus = "PENDING"
	DocumentStatusRunning  DocumentStatus = "RUNNING"
	DocumentStatusComplete DocumentStatus = "COMPLETE"
	DocumentStatusFailed   DocumentStatus = "FAILED"
	DocumentStatusDeleted  DocumentStatus = "DELETED"
	DocumentStatusExpired  DocumentStatus = "EXPIRED"
)

// CollectionStatus is the lifecycle state of a collection.
type CollectionStatus string

const (
	CollectionStatusInactive CollectionStatus = "INACTIVE"
	CollectionStatusActive   CollectionStatus = "ACTIVE"
	CollectionStatusDeleted  CollectionStatus = "DELETED"
)

// SummaryStatus is the lifecycle state of a collection summary.
type SummaryStatus string

const (
	SummaryStatusPending    SummaryStatus = "PENDING"
	SummaryStatusGenerating SummaryStatus = "GENERATING"
	SummaryStatusComplete   SummaryStatus = "COMPLETE"
	SummaryStatusFailed     SummaryStatus = "FAILED"
)

// DocumentIndex is one row of desired/observed index state.
//
// Version is bumped on every desired-state change; ObservedVersion records the
// last version actually materialised. ObservedVersion never exceeds Version.
type DocumentIndex struct {
	ID                string
	DocumentID        string
	IndexType         IndexType
	Status            DocumentIndexStatus
	Version           int64
	ObservedVersion   int64
	IndexData         string
	ErrorMessage      string
	GmtCreated        time.Time
	GmtUpdated        time.Time
	GmtLastReconciled time.Time
}

// Document owns a set of DocumentIndex rows. Its Status is a projection of
// the per-index states unless it is in a terminal or pre-index state.
type Document struct {
	ID           string
	CollectionID string
	Name         string
	Status       DocumentStatus
	GmtCreated   time.Time
	GmtUpdated   time.Time
}

// Collection owns documents and configuration. Config is an opaque blob
// decoded with ParseCollectionConfig. GmtDeleted is the soft-delete marker.
type Collection struct {
	ID          string
	Title       string
	Description string
	Status      CollectionStatus
	Config      string
	GmtCreated  time.Time
	GmtUpdated  time.Time
	GmtDeleted  *time.Time
}

// CollectionSummary is the per-collection LLM-generated summary row.
type CollectionSummary struct {
	ID                string
	CollectionID      string
	Summary           string
	Status            SummaryStatus
	Version           int64
	ObservedVersion   int64
	ErrorMessage      string
	GmtCreated        time.Time
	GmtUpdated        time.Time
	GmtLastReconciled time.Time
}
