package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Document is one forensic document snapshot under custody. Payload holds
// the raw JSON object as submitted; PayloadHash is the sha256 of its
// canonical form and is what gets sealed to the ledger.
type Document struct {
	ID          uuid.UUID
	ExternalRef string
	CreatedBy   string
	Payload     []byte
	PayloadHash string
	SealTxID    sql.NullString
	SealedAt    sql.NullTime
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DocumentRepository defines the interface for document storage operations
type DocumentRepository interface {
	Create(ctx context.Context, document *Document) error
	GetByID(ctx context.Context, id uuid.UUID) (*Document, error)
	GetByHash(ctx context.Context, hash string) (*Document, error)
	List(ctx context.Context, limit int) ([]*Document, error)
	UpdatePayload(ctx context.Context, document *Document) error
	MarkSealed(ctx context.Context, id uuid.UUID, txID string, sealedAt time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// PostgresDocumentRepository implements DocumentRepository using PostgreSQL
type PostgresDocumentRepository struct {
	db *sql.DB
}

// NewPostgresDocumentRepository creates a new PostgresDocumentRepository
func NewPostgresDocumentRepository(db *sql.DB) *PostgresDocumentRepository {
	return &PostgresDocumentRepository{db: db}
}

// Create inserts a new document into the database
func (r *PostgresDocumentRepository) Create(ctx context.Context, document *Document) error {
	if document.ID == uuid.Nil {
		document.ID = uuid.New()
	}

	now := time.Now()
	if document.CreatedAt.IsZero() {
		document.CreatedAt = now
	}
	if document.UpdatedAt.IsZero() {
		document.UpdatedAt = now
	}

	query := `
		INSERT INTO documents (id, external_ref, created_by, payload, payload_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		document.ID,
		document.ExternalRef,
		document.CreatedBy,
		document.Payload,
		document.PayloadHash,
		document.CreatedAt,
		document.UpdatedAt,
	)

	return err
}

// GetByID retrieves a document by its ID
func (r *PostgresDocumentRepository) GetByID(ctx context.Context, id uuid.UUID) (*Document, error) {
	query := `
		SELECT id, external_ref, created_by, payload, payload_hash, seal_tx_id, sealed_at, created_at, updated_at
		FROM documents
		WHERE id = $1
	`

	document := &Document{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&document.ID,
		&document.ExternalRef,
		&document.CreatedBy,
		&document.Payload,
		&document.PayloadHash,
		&document.SealTxID,
		&document.SealedAt,
		&document.CreatedAt,
		&document.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return document, nil
}

// GetByHash retrieves a document by its payload hash
func (r *PostgresDocumentRepository) GetByHash(ctx context.Context, hash string) (*Document, error) {
	query := `
		SELECT id, external_ref, created_by, payload, payload_hash, seal_tx_id, sealed_at, created_at, updated_at
		FROM documents
		WHERE payload_hash = $1
	`

	document := &Document{}
	err := r.db.QueryRowContext(ctx, query, hash).Scan(
		&document.ID,
		&document.ExternalRef,
		&document.CreatedBy,
		&document.Payload,
		&document.PayloadHash,
		&document.SealTxID,
		&document.SealedAt,
		&document.CreatedAt,
		&document.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return document, nil
}

// List retrieves documents ordered by creation time, newest first
func (r *PostgresDocumentRepository) List(ctx context.Context, limit int) ([]*Document, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, external_ref, created_by, payload, payload_hash, seal_tx_id, sealed_at, created_at, updated_at
		FROM documents
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var documents []*Document
	for rows.Next() {
		document := &Document{}
		err := rows.Scan(
			&document.ID,
			&document.ExternalRef,
			&document.CreatedBy,
			&document.Payload,
			&document.PayloadHash,
			&document.SealTxID,
			&document.SealedAt,
			&document.CreatedAt,
			&document.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		documents = append(documents, document)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return documents, nil
}

// UpdatePayload replaces a document's payload and hash
func (r *PostgresDocumentRepository) UpdatePayload(ctx context.Context, document *Document) error {
	document.UpdatedAt = time.Now()

	query := `
		UPDATE documents
		SET payload = $2, payload_hash = $3, updated_at = $4
		WHERE id = $1
	`

	_, err := r.db.ExecContext(ctx, query,
		document.ID,
		document.Payload,
		document.PayloadHash,
		document.UpdatedAt,
	)

	return err
}

// MarkSealed records the ledger transaction that sealed this document
func (r *PostgresDocumentRepository) MarkSealed(ctx context.Context, id uuid.UUID, txID string, sealedAt time.Time) error {
	query := `
		UPDATE documents
		SET seal_tx_id = $2, sealed_at = $3, updated_at = $3
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id, txID, sealedAt)
	return err
}

// Delete removes a document from the database
func (r *PostgresDocumentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM documents WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}
