package domain

import "time"

// Document is an owned record. OwnerID is the identity-provider subject id
// of the current owner; every authorization decision about a document keys
// off this field.
type Document struct {
	ID        string
	OwnerID   string
	Title     string
	Body      string
	CreatedAt time.Time
	UpdatedAt time.Time
}
