package domain

import "time"

// DocumentEventType enumerates the changes a subscriber can observe.
type DocumentEventType string

const (
	DocumentCreated     DocumentEventType = "CREATED"
	DocumentUpdated     DocumentEventType = "UPDATED"
	DocumentDeleted     DocumentEventType = "DELETED"
	DocumentTransferred DocumentEventType = "TRANSFERRED"
)

// DocumentEvent is published on every document write. Document carries the
// post-change state (for DELETED, the last known state). Authorization for
// delivery is evaluated per event against the document's current owner, not
// against whatever was true when the subscription was opened.
type DocumentEvent struct {
	Type       DocumentEventType
	Document   Document
	OccurredAt time.Time
}
