package api

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/integrityx/forensics/internal/fingerprint"
	"github.com/integrityx/forensics/internal/flatten"
	"github.com/integrityx/forensics/internal/storage"
	"github.com/integrityx/forensics/pkg/models"
)

// DocumentResponse is the API shape of a stored document.
type DocumentResponse struct {
	ID          string     `json:"id"`
	ExternalRef string     `json:"external_ref"`
	CreatedBy   string     `json:"created_by"`
	PayloadHash string     `json:"payload_hash"`
	SealTxID    string     `json:"seal_tx_id,omitempty"`
	SealedAt    *time.Time `json:"sealed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func toDocumentResponse(doc *storage.Document) DocumentResponse {
	resp := DocumentResponse{
		ID:          doc.ID.String(),
		ExternalRef: doc.ExternalRef,
		CreatedBy:   doc.CreatedBy,
		PayloadHash: doc.PayloadHash,
		CreatedAt:   doc.CreatedAt,
	}
	if doc.SealTxID.Valid {
		resp.SealTxID = doc.SealTxID.String
	}
	if doc.SealedAt.Valid {
		t := doc.SealedAt.Time
		resp.SealedAt = &t
	}
	return resp
}

// payloadHash computes the sha256 of the canonical JSON rendering of a
// payload. json.Marshal sorts object keys, so the hash is stable across
// submissions of the same content.
func payloadHash(payload map[string]any) (string, []byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", nil, err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), raw, nil
}

func (s *Server) handleIngestDocument(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ExternalRef string         `json:"external_ref"`
		Payload     map[string]any `json:"payload"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Payload) == 0 {
		respondError(w, http.StatusBadRequest, "payload is required")
		return
	}

	docID := uuid.New()

	fp, err := s.fpEngine.Compute(docID.String(), req.Payload)
	if err != nil {
		if errors.Is(err, flatten.ErrMalformedDocument) {
			respondError(w, http.StatusBadRequest, "malformed document: "+err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to fingerprint document")
		return
	}

	hash, raw, err := payloadHash(req.Payload)
	if err != nil {
		respondError(w, http.StatusBadRequest, "payload is not serializable")
		return
	}

	doc := &storage.Document{
		ID:          docID,
		ExternalRef: req.ExternalRef,
		CreatedBy:   actorID(r),
		Payload:     raw,
		PayloadHash: hash,
	}
	if err := s.documents.Create(r.Context(), doc); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to store document")
		return
	}

	record := &storage.FingerprintRecord{
		DocumentID:  docID,
		Fingerprint: *fp,
		Features:    pgvector.NewVector(fingerprint.FeatureVector(fp)),
	}
	if err := s.prints.Upsert(r.Context(), record); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to store fingerprint")
		return
	}

	event := models.TimelineEvent{
		DocumentID: docID.String(),
		EventType:  models.EventCreated,
		ActorID:    actorID(r),
		Timestamp:  doc.CreatedAt,
	}
	if err := s.events.Append(r.Context(), docID, event); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to record custody event")
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"document":    toDocumentResponse(doc),
		"fingerprint": fp,
	})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	docs, err := s.documents.List(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list documents")
		return
	}

	resp := make([]DocumentResponse, 0, len(docs))
	for _, doc := range docs {
		resp = append(resp, toDocumentResponse(doc))
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.loadDocument(w, r)
	if !ok {
		return
	}

	var payload map[string]any
	if err := json.Unmarshal(doc.Payload, &payload); err != nil {
		respondError(w, http.StatusInternalServerError, "stored payload is corrupt")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"document": toDocumentResponse(doc),
		"payload":  payload,
	})
}

func (s *Server) handleRecordEvent(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.loadDocument(w, r)
	if !ok {
		return
	}

	var req struct {
		EventType string            `json:"event_type"`
		Timestamp time.Time         `json:"timestamp"`
		Metadata  map[string]string `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	eventType := models.EventType(req.EventType)
	switch eventType {
	case models.EventCreated, models.EventModified, models.EventSigned,
		models.EventSealed, models.EventAccessed, models.EventVerificationAttempt:
	default:
		respondError(w, http.StatusBadRequest, "unknown event type")
		return
	}

	event := models.TimelineEvent{
		DocumentID: doc.ID.String(),
		EventType:  eventType,
		ActorID:    actorID(r),
		Timestamp:  req.Timestamp,
		Metadata:   req.Metadata,
	}
	if err := s.events.Append(r.Context(), doc.ID, event); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to record event")
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{"status": "recorded"})
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.loadDocument(w, r)
	if !ok {
		return
	}

	events, err := s.events.ListByDocument(r.Context(), doc.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	respondJSON(w, http.StatusOK, events)
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.loadDocument(w, r)
	if !ok {
		return
	}

	events, err := s.events.ListByDocument(r.Context(), doc.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	anomalies := s.analyzer.Analyze(events)

	respondJSON(w, http.StatusOK, map[string]any{
		"document_id": doc.ID.String(),
		"events":      len(events),
		"anomalies":   anomalies,
	})
}

func (s *Server) handleGetFingerprint(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.loadDocument(w, r)
	if !ok {
		return
	}

	record, err := s.prints.GetByDocumentID(r.Context(), doc.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load fingerprint")
		return
	}
	if record == nil {
		respondError(w, http.StatusNotFound, "fingerprint not found")
		return
	}

	respondJSON(w, http.StatusOK, record.Fingerprint)
}

func (s *Server) handleFindSimilar(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.loadDocument(w, r)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 10
	}

	record, err := s.prints.GetByDocumentID(r.Context(), doc.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load fingerprint")
		return
	}
	if record == nil {
		respondError(w, http.StatusNotFound, "fingerprint not found")
		return
	}

	// Vector search over-fetches candidates; the layered comparison below
	// produces the reported score.
	candidates, err := s.prints.FindSimilar(r.Context(), record.Features, limit+1, 0.3)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "similarity search failed")
		return
	}

	type match struct {
		DocumentID string                   `json:"document_id"`
		Result     *models.SimilarityResult `json:"result"`
	}
	matches := make([]match, 0, len(candidates))
	for _, cand := range candidates {
		if cand.Record.DocumentID == doc.ID {
			continue
		}
		if len(matches) >= limit {
			break
		}
		result := s.fpEngine.Similarity(&record.Fingerprint, &cand.Record.Fingerprint)
		matches = append(matches, match{
			DocumentID: cand.Record.DocumentID.String(),
			Result:     result,
		})
	}

	respondJSON(w, http.StatusOK, matches)
}

func (s *Server) handleSealDocument(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.loadDocument(w, r)
	if !ok {
		return
	}
	if doc.SealTxID.Valid {
		respondError(w, http.StatusConflict, "document is already sealed")
		return
	}

	receipt, err := s.ledger.Seal(r.Context(), doc.ID.String(), doc.PayloadHash)
	if err != nil {
		respondError(w, http.StatusBadGateway, "ledger seal failed")
		return
	}

	if err := s.documents.MarkSealed(r.Context(), doc.ID, receipt.TxID, receipt.SealedAt); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to record seal")
		return
	}

	event := models.TimelineEvent{
		DocumentID: doc.ID.String(),
		EventType:  models.EventSealed,
		ActorID:    actorID(r),
		Timestamp:  receipt.SealedAt,
		Metadata:   map[string]string{"tx_id": receipt.TxID},
	}
	if err := s.events.Append(r.Context(), doc.ID, event); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to record custody event")
		return
	}

	respondJSON(w, http.StatusOK, receipt)
}

func (s *Server) handleVerifyDocument(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.loadDocument(w, r)
	if !ok {
		return
	}
	if !doc.SealTxID.Valid {
		respondError(w, http.StatusConflict, "document has not been sealed")
		return
	}

	record, err := s.ledger.Verify(r.Context(), doc.SealTxID.String)
	if err != nil {
		respondError(w, http.StatusBadGateway, "ledger verification failed")
		return
	}

	verified := record.PayloadHash == doc.PayloadHash
	status := "intact"
	if !verified {
		status = "hash_mismatch"
	}

	event := models.TimelineEvent{
		DocumentID: doc.ID.String(),
		EventType:  models.EventVerificationAttempt,
		ActorID:    actorID(r),
		Timestamp:  time.Now(),
		Metadata:   map[string]string{"result": status},
	}
	if err := s.events.Append(r.Context(), doc.ID, event); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to record custody event")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"verified":      verified,
		"status":        status,
		"recorded_hash": record.PayloadHash,
		"current_hash":  doc.PayloadHash,
		"sealed_at":     record.SealedAt,
	})
}

// loadDocument parses the documentID route param and fetches the document,
// writing the error response itself when that fails.
func (s *Server) loadDocument(w http.ResponseWriter, r *http.Request) (*storage.Document, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "documentID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid document id")
		return nil, false
	}

	doc, err := s.documents.GetByID(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load document")
		return nil, false
	}
	if doc == nil {
		respondError(w, http.StatusNotFound, "document not found")
		return nil, false
	}

	return doc, true
}
