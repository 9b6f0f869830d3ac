package store

import (
	"context"
	"errors"

	"github.com/inkwellhq/inkwell/internal/api/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite for now)
// implement this. Sub-repositories keep concerns tidy and stop callers from
// accidentally nesting transactions.
type Store interface {
	Documents() Documents
	Users() Users

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction; rollback on error, commit on
	// nil. Preferred over Tx for multi-step operations (e.g. ownership
	// transfer).
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Documents interface {
	// GetDocument returns a document by id.
	GetDocument(ctx context.Context, id string) (domain.Document, error)

	// ListDocumentsByOwner returns the owner's documents, newest first.
	ListDocumentsByOwner(ctx context.Context, ownerID string) ([]domain.Document, error)

	// CreateDocument inserts a new document (id is provided by app via ULID).
	CreateDocument(ctx context.Context, d domain.Document) error

	// UpdateDocument replaces title and body and bumps updated_at.
	UpdateDocument(ctx context.Context, id, title, body string) error

	// TransferDocument reassigns the owner and bumps updated_at.
	TransferDocument(ctx context.Context, id, newOwnerID string) error

	// DeleteDocument removes a document.
	DeleteDocument(ctx context.Context, id string) error
}

type Users interface {
	// GetUserBySubject returns the local profile mirror for a provider subject.
	GetUserBySubject(ctx context.Context, subject string) (domain.User, error)

	// GetUserByUsername returns the mirror row by username.
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)

	// UpsertUser inserts or refreshes the local profile mirror.
	UpsertUser(ctx context.Context, u domain.User) error

	// DeleteUser removes the mirror; the user's documents cascade per schema.
	DeleteUser(ctx context.Context, subject string) error
}
