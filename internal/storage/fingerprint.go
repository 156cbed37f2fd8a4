package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/integrityx/forensics/pkg/models"
)

// FingerprintRecord is a persisted document fingerprint. The four layer
// hashes are indexed columns for exact-match lookups; the full fingerprint
// (feature sets included) rides along as JSON so layered similarity can be
// recomputed without reflattening the source document. Features is a hashed
// bag-of-features embedding used for approximate candidate search.
type FingerprintRecord struct {
	ID          uuid.UUID
	DocumentID  uuid.UUID
	Fingerprint models.Fingerprint
	Features    pgvector.Vector
	CreatedAt   time.Time
}

// FingerprintWithDistance pairs a candidate record with its vector-space
// similarity to the query. This is a coarse score for ranking candidates;
// callers re-score survivors with the exact layered comparison.
type FingerprintWithDistance struct {
	Record     *FingerprintRecord
	Similarity float64
}

// FingerprintRepository defines the interface for fingerprint storage
type FingerprintRepository interface {
	Upsert(ctx context.Context, record *FingerprintRecord) error
	GetByDocumentID(ctx context.Context, documentID uuid.UUID) (*FingerprintRecord, error)
	FindSimilar(ctx context.Context, features pgvector.Vector, limit int, threshold float64) ([]*FingerprintWithDistance, error)
	DeleteByDocumentID(ctx context.Context, documentID uuid.UUID) error
}

// PostgresFingerprintRepository implements FingerprintRepository using
// PostgreSQL with pgvector
type PostgresFingerprintRepository struct {
	db *sql.DB
}

// NewPostgresFingerprintRepository creates a new PostgresFingerprintRepository
func NewPostgresFingerprintRepository(db *sql.DB) *PostgresFingerprintRepository {
	return &PostgresFingerprintRepository{db: db}
}

// Upsert inserts or replaces the fingerprint for a document. A document has
// at most one current fingerprint; re-ingesting replaces it.
func (r *PostgresFingerprintRepository) Upsert(ctx context.Context, record *FingerprintRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	payload, err := json.Marshal(record.Fingerprint)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO fingerprints (id, document_id, structural_hash, content_hash, style_hash, semantic_hash, fingerprint, features, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (document_id) DO UPDATE
		SET structural_hash = EXCLUDED.structural_hash,
		    content_hash = EXCLUDED.content_hash,
		    style_hash = EXCLUDED.style_hash,
		    semantic_hash = EXCLUDED.semantic_hash,
		    fingerprint = EXCLUDED.fingerprint,
		    features = EXCLUDED.features,
		    created_at = EXCLUDED.created_at
	`

	_, err = r.db.ExecContext(ctx, query,
		record.ID,
		record.DocumentID,
		record.Fingerprint.StructuralHash,
		record.Fingerprint.ContentHash,
		record.Fingerprint.StyleHash,
		record.Fingerprint.SemanticHash,
		payload,
		record.Features,
		record.CreatedAt,
	)

	return err
}

// GetByDocumentID retrieves the fingerprint for a document
func (r *PostgresFingerprintRepository) GetByDocumentID(ctx context.Context, documentID uuid.UUID) (*FingerprintRecord, error) {
	query := `
		SELECT id, document_id, fingerprint, features, created_at
		FROM fingerprints
		WHERE document_id = $1
	`

	record := &FingerprintRecord{}
	var payload []byte
	err := r.db.QueryRowContext(ctx, query, documentID).Scan(
		&record.ID,
		&record.DocumentID,
		&payload,
		&record.Features,
		&record.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(payload, &record.Fingerprint); err != nil {
		return nil, err
	}

	return record, nil
}

// FindSimilar finds fingerprints near the given feature vector using
// pgvector cosine distance
func (r *PostgresFingerprintRepository) FindSimilar(ctx context.Context, features pgvector.Vector, limit int, threshold float64) ([]*FingerprintWithDistance, error) {
	if limit <= 0 {
		limit = 10
	}
	if threshold <= 0 {
		threshold = 0.5
	}

	// Cosine distance is 1 - cosine_similarity, so we keep rows where
	// 1 - distance >= threshold.
	query := `
		SELECT id, document_id, fingerprint, features, created_at,
			   1 - (features <=> $1) as similarity
		FROM fingerprints
		WHERE 1 - (features <=> $1) >= $2
		ORDER BY features <=> $1
		LIMIT $3
	`

	rows, err := r.db.QueryContext(ctx, query, features, threshold, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*FingerprintWithDistance
	for rows.Next() {
		record := &FingerprintRecord{}
		var payload []byte
		var similarity float64
		err := rows.Scan(
			&record.ID,
			&record.DocumentID,
			&payload,
			&record.Features,
			&record.CreatedAt,
			&similarity,
		)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &record.Fingerprint); err != nil {
			return nil, err
		}
		results = append(results, &FingerprintWithDistance{
			Record:     record,
			Similarity: similarity,
		})
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return results, nil
}

// DeleteByDocumentID removes the fingerprint for a document
func (r *PostgresFingerprintRepository) DeleteByDocumentID(ctx context.Context, documentID uuid.UUID) error {
	query := `DELETE FROM fingerprints WHERE document_id = $1`
	_, err := r.db.ExecContext(ctx, query, documentID)
	return err
}
