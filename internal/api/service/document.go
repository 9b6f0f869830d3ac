package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/inkwellhq/inkwell/internal/api/domain"
	"github.com/inkwellhq/inkwell/internal/api/store"
	"github.com/inkwellhq/inkwell/pkg/idx"
	"github.com/inkwellhq/inkwell/pkg/slogx"
)

var (
	ErrTitleRequired    = errors.New("service: document title required")
	ErrDocumentNotFound = errors.New("service: document not found")
	ErrOwnerNotFound    = errors.New("service: owner not found")
)

// EventPublisher receives a document event after every committed write.
// Satisfied by subscription.Bus.
type EventPublisher interface {
	Publish(ev domain.DocumentEvent)
}

// DocumentService is the CRUD-and-transfer surface over the document store.
// Every successful write publishes a DocumentEvent so live subscribers see it.
type DocumentService struct {
	Store  store.Store
	Events EventPublisher
}

func (s *DocumentService) Create(ctx context.Context, ownerID, title, body string) (domain.Document, error) {
	if strings.TrimSpace(title) == "" {
		return domain.Document{}, ErrTitleRequired
	}

	now := time.Now().UTC()
	doc := domain.Document{
		ID:        idx.New().String(),
		OwnerID:   ownerID,
		Title:     title,
		Body:      body,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.Store.Documents().CreateDocument(ctx, doc); err != nil {
		return domain.Document{}, err
	}

	s.publish(ctx, domain.DocumentCreated, doc)
	return doc, nil
}

func (s *DocumentService) Get(ctx context.Context, id string) (domain.Document, error) {
	doc, err := s.Store.Documents().GetDocument(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Document{}, ErrDocumentNotFound
	}
	return doc, err
}

func (s *DocumentService) ListByOwner(ctx context.Context, ownerID string) ([]domain.Document, error) {
	return s.Store.Documents().ListDocumentsByOwner(ctx, ownerID)
}

// OwnerOf resolves a document's owner subject. This backs the ownership
// requirement checks, so it reports ErrDocumentNotFound rather than a raw
// store error.
func (s *DocumentService) OwnerOf(ctx context.Context, id string) (string, error) {
	doc, err := s.Store.Documents().GetDocument(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrDocumentNotFound
	}
	if err != nil {
		return "", err
	}
	return doc.OwnerID, nil
}

func (s *DocumentService) Update(ctx context.Context, id, title, body string) (domain.Document, error) {
	if strings.TrimSpace(title) == "" {
		return domain.Document{}, ErrTitleRequired
	}

	var doc domain.Document
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Documents().UpdateDocument(ctx, id, title, body); err != nil {
			return err
		}
		var err error
		doc, err = tx.Documents().GetDocument(ctx, id)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return domain.Document{}, ErrDocumentNotFound
	}
	if err != nil {
		return domain.Document{}, err
	}

	s.publish(ctx, domain.DocumentUpdated, doc)
	return doc, nil
}

func (s *DocumentService) Delete(ctx context.Context, id string) error {
	var doc domain.Document
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		doc, err = tx.Documents().GetDocument(ctx, id)
		if err != nil {
			return err
		}
		return tx.Documents().DeleteDocument(ctx, id)
	})
	if errors.Is(err, store.ErrNotFound) {
		return ErrDocumentNotFound
	}
	if err != nil {
		return err
	}

	s.publish(ctx, domain.DocumentDeleted, doc)
	return nil
}

// Transfer reassigns a document to a new owner. The new owner must exist in
// the local mirror; the whole operation is atomic.
func (s *DocumentService) Transfer(ctx context.Context, id, newOwnerID string) (domain.Document, error) {
	var doc domain.Document
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.Users().GetUserBySubject(ctx, newOwnerID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrOwnerNotFound
			}
			return err
		}
		if err := tx.Documents().TransferDocument(ctx, id, newOwnerID); err != nil {
			return err
		}
		var err error
		doc, err = tx.Documents().GetDocument(ctx, id)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return domain.Document{}, ErrDocumentNotFound
	}
	if err != nil {
		return domain.Document{}, err
	}

	s.publish(ctx, domain.DocumentTransferred, doc)
	return doc, nil
}

func (s *DocumentService) publish(ctx context.Context, typ domain.DocumentEventType, doc domain.Document) {
	if s.Events == nil {
		return
	}
	s.Events.Publish(domain.DocumentEvent{
		Type:       typ,
		Document:   doc,
		OccurredAt: time.Now().UTC(),
	})
	slogx.FromContext(ctx).Debug("document event published", "type", string(typ), "document_id", doc.ID)
}
