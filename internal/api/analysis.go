package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/integrityx/forensics/internal/flatten"
	"github.com/integrityx/forensics/internal/patterns"
)

// handleDiff compares two stored documents, or two inline payloads when no
// ids are given. Inline mode lets analysts compare drafts that were never
// ingested.
func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DocumentIDA string         `json:"document_id_a"`
		DocumentIDB string         `json:"document_id_b"`
		DocumentA   map[string]any `json:"document_a"`
		DocumentB   map[string]any `json:"document_b"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	idA, idB := req.DocumentIDA, req.DocumentIDB
	docA, docB := req.DocumentA, req.DocumentB

	if idA != "" || idB != "" {
		if idA == "" || idB == "" {
			respondError(w, http.StatusBadRequest, "both document ids are required")
			return
		}
		var ok bool
		if docA, ok = s.loadPayload(w, r, idA); !ok {
			return
		}
		if docB, ok = s.loadPayload(w, r, idB); !ok {
			return
		}
	} else if docA == nil || docB == nil {
		respondError(w, http.StatusBadRequest, "provide document ids or inline documents")
		return
	} else {
		idA, idB = "inline-a", "inline-b"
	}

	result, err := s.diffEngine.Diff(idA, idB, docA, docB)
	if err != nil {
		if errors.Is(err, flatten.ErrMalformedDocument) {
			respondError(w, http.StatusBadRequest, "malformed document: "+err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "diff failed")
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// handlePatternScan runs the corpus-wide fraud scans over stored documents
// and the custody event log.
func (s *Server) handlePatternScan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Since time.Time `json:"since"`
		Limit int       `json:"limit"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	docs, err := s.documents.List(r.Context(), req.Limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load corpus")
		return
	}

	corpus := make([]patterns.CorpusDocument, 0, len(docs))
	for _, doc := range docs {
		var payload map[string]any
		if err := json.Unmarshal(doc.Payload, &payload); err != nil {
			respondError(w, http.StatusInternalServerError, "stored payload is corrupt")
			return
		}
		corpus = append(corpus, patterns.CorpusDocument{
			DocumentID: doc.ID.String(),
			ActorID:    doc.CreatedBy,
			Document:   payload,
		})
	}

	events, err := s.events.ListSince(r.Context(), req.Since)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load events")
		return
	}

	report, err := s.detector.Detect(corpus, events)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "pattern scan failed")
		return
	}

	respondJSON(w, http.StatusOK, report)
}

// loadPayload fetches a stored document's payload as a generic map.
func (s *Server) loadPayload(w http.ResponseWriter, r *http.Request, id string) (map[string]any, bool) {
	docID, err := uuid.Parse(id)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid document id "+strconv.Quote(id))
		return nil, false
	}

	doc, err := s.documents.GetByID(r.Context(), docID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load document")
		return nil, false
	}
	if doc == nil {
		respondError(w, http.StatusNotFound, "document "+id+" not found")
		return nil, false
	}

	var payload map[string]any
	if err := json.Unmarshal(doc.Payload, &payload); err != nil {
		respondError(w, http.StatusInternalServerError, "stored payload is corrupt")
		return nil, false
	}

	return payload, true
}
