package sqlite

import (
	"context"
	"time"

	"github.com/inkwellhq/inkwell/internal/api/domain"
)

type documentsRepo struct {
	q querier
}

func (r *documentsRepo) GetDocument(ctx context.Context, id string) (domain.Document, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT id, owner_id, title, body, created_at, updated_at
		FROM documents
		WHERE id = ?`, id)

	var d domain.Document
	if err := row.Scan(&d.ID, &d.OwnerID, &d.Title, &d.Body, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return domain.Document{}, mapNotFound(err)
	}
	return d, nil
}

func (r *documentsRepo) ListDocumentsByOwner(ctx context.Context, ownerID string) ([]domain.Document, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, owner_id, title, body, created_at, updated_at
		FROM documents
		WHERE owner_id = ?
		ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		var d domain.Document
		if err := rows.Scan(&d.ID, &d.OwnerID, &d.Title, &d.Body, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (r *documentsRepo) CreateDocument(ctx context.Context, d domain.Document) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO documents (id, owner_id, title, body, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		d.ID, d.OwnerID, d.Title, d.Body, d.CreatedAt, d.UpdatedAt)
	return mapConstraint(err)
}

func (r *documentsRepo) UpdateDocument(ctx context.Context, id, title, body string) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE documents
		SET title = ?, body = ?, updated_at = ?
		WHERE id = ?`,
		title, body, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *documentsRepo) TransferDocument(ctx context.Context, id, newOwnerID string) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE documents
		SET owner_id = ?, updated_at = ?
		WHERE id = ?`,
		newOwnerID, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *documentsRepo) DeleteDocument(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}
