package storage

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
)

func TestDocumentRepository_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()

	repo := NewPostgresDocumentRepository(db)

	doc := &Document{
		ExternalRef: "LN-2024-0042",
		CreatedBy:   "analyst-1",
		Payload:     []byte(`{"loan_amount":250000}`),
		PayloadHash: "abc123",
	}

	mock.ExpectExec("INSERT INTO documents").
		WithArgs(sqlmock.AnyArg(), doc.ExternalRef, doc.CreatedBy, doc.Payload, doc.PayloadHash, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.Create(context.Background(), doc); err != nil {
		t.Errorf("expected no error, got %v", err)
	}

	if doc.ID == uuid.Nil {
		t.Error("expected document ID to be generated")
	}
	if doc.CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestDocumentRepository_GetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()

	repo := NewPostgresDocumentRepository(db)

	docID := uuid.New()
	now := time.Now()

	rows := sqlmock.NewRows([]string{"id", "external_ref", "created_by", "payload", "payload_hash", "seal_tx_id", "sealed_at", "created_at", "updated_at"}).
		AddRow(docID, "LN-2024-0042", "analyst-1", []byte(`{}`), "abc123", "tx-1", now, now, now)

	mock.ExpectQuery("SELECT (.+) FROM documents WHERE id").
		WithArgs(docID).
		WillReturnRows(rows)

	doc, err := repo.GetByID(context.Background(), docID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if doc == nil {
		t.Fatal("expected document to be returned")
	}
	if doc.PayloadHash != "abc123" {
		t.Errorf("expected payload hash abc123, got %q", doc.PayloadHash)
	}
	if !doc.SealTxID.Valid || doc.SealTxID.String != "tx-1" {
		t.Errorf("expected seal tx id tx-1, got %+v", doc.SealTxID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestDocumentRepository_GetByID_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()

	repo := NewPostgresDocumentRepository(db)

	docID := uuid.New()
	mock.ExpectQuery("SELECT (.+) FROM documents WHERE id").
		WithArgs(docID).
		WillReturnError(sql.ErrNoRows)

	doc, err := repo.GetByID(context.Background(), docID)
	if err != nil {
		t.Errorf("expected no error for missing row, got %v", err)
	}
	if doc != nil {
		t.Error("expected nil document")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestDocumentRepository_MarkSealed(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()

	repo := NewPostgresDocumentRepository(db)

	docID := uuid.New()
	sealedAt := time.Now()

	mock.ExpectExec("UPDATE documents").
		WithArgs(docID, "tx-1", sealedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.MarkSealed(context.Background(), docID, "tx-1", sealedAt); err != nil {
		t.Errorf("expected no error, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
