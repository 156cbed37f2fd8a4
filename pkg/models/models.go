package models

import (
	"strconv"
	"time"
)

// FieldType classifies a flattened leaf by the kind of data it carries.
// The classification drives risk weighting: financial and identity fields
// score higher than cosmetic text edits.
type FieldType string

const (
	FieldFinancial FieldType = "financial"
	FieldIdentity  FieldType = "identity"
	FieldSignature FieldType = "signature"
	FieldDate      FieldType = "date"
	FieldText      FieldType = "text"
)

// RiskLabel is the bucketed form of a [0,1] risk score.
type RiskLabel string

const (
	RiskCritical RiskLabel = "critical"
	RiskHigh     RiskLabel = "high"
	RiskMedium   RiskLabel = "medium"
	RiskLow      RiskLabel = "low"
)

// Severity grades anomalies and fraud patterns.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// ScalarKind enumerates the closed set of leaf value types a document may
// contain after flattening.
type ScalarKind string

const (
	KindNumber ScalarKind = "number"
	KindString ScalarKind = "string"
	KindBool   ScalarKind = "bool"
	KindDate   ScalarKind = "date"
)

// Scalar is a tagged union over the supported leaf value types. Exactly one
// of the value fields is meaningful, selected by Kind.
type Scalar struct {
	Kind   ScalarKind `json:"kind"`
	Number float64    `json:"number,omitempty"`
	Str    string     `json:"str,omitempty"`
	Bool   bool       `json:"bool,omitempty"`
	Date   time.Time  `json:"date,omitempty"`
}

// NumberScalar wraps a numeric leaf value.
func NumberScalar(v float64) Scalar { return Scalar{Kind: KindNumber, Number: v} }

// StringScalar wraps a string leaf value.
func StringScalar(v string) Scalar { return Scalar{Kind: KindString, Str: v} }

// BoolScalar wraps a boolean leaf value.
func BoolScalar(v bool) Scalar { return Scalar{Kind: KindBool, Bool: v} }

// DateScalar wraps a date leaf value.
func DateScalar(v time.Time) Scalar { return Scalar{Kind: KindDate, Date: v} }

// Canonical renders the scalar in a stable textual form used by hashing and
// equality checks. Two scalars are equal iff their canonical forms match.
func (s Scalar) Canonical() string {
	switch s.Kind {
	case KindNumber:
		return strconv.FormatFloat(s.Number, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(s.Bool)
	case KindDate:
		return s.Date.UTC().Format(time.RFC3339)
	default:
		return s.Str
	}
}

// Equal reports whether two scalars hold the same value.
func (s Scalar) Equal(other Scalar) bool {
	return s.Kind == other.Kind && s.Canonical() == other.Canonical()
}

// FlatField is one leaf of a flattened document. Derived, never persisted;
// its lifetime is a single diff or fingerprint call.
type FlatField struct {
	Path  string    `json:"path"`
	Value Scalar    `json:"value"`
	Type  FieldType `json:"type"`
}

// FieldChange describes one field-level difference between two document
// versions. OldValue is nil for added fields, NewValue is nil for removed
// fields.
type FieldChange struct {
	Path               string    `json:"path"`
	OldValue           *Scalar   `json:"old_value,omitempty"`
	NewValue           *Scalar   `json:"new_value,omitempty"`
	FieldType          FieldType `json:"field_type"`
	RiskScore          float64   `json:"risk_score"`
	RiskLabel          RiskLabel `json:"risk_label"`
	SuspiciousPatterns []string  `json:"suspicious_patterns,omitempty"`
}

// DiffResult aggregates all field changes between two documents.
// OverallRisk is the maximum change risk, or 0 when there are no changes.
type DiffResult struct {
	DocumentIDA    string        `json:"document_id_a"`
	DocumentIDB    string        `json:"document_id_b"`
	Changes        []FieldChange `json:"changes"`
	OverallRisk    float64       `json:"overall_risk"`
	OverallLabel   RiskLabel     `json:"overall_label"`
	Recommendation string        `json:"recommendation"`
}

// Fingerprint is the multi-layer "document DNA" signature of one document
// snapshot. The feature sets backing each hash are retained so similarity
// can be computed by set overlap rather than exact hash equality.
type Fingerprint struct {
	DocumentID     string    `json:"document_id"`
	StructuralHash string    `json:"structural_hash"`
	ContentHash    string    `json:"content_hash"`
	StyleHash      string    `json:"style_hash"`
	SemanticHash   string    `json:"semantic_hash"`
	Keywords       []string  `json:"keywords"`
	CreatedAt      time.Time `json:"created_at"`

	StructuralSet []string `json:"structural_set,omitempty"`
	ContentSet    []string `json:"content_set,omitempty"`
	StyleSet      []string `json:"style_set,omitempty"`
}

// SimilarityResult reports how alike two fingerprints are, per layer and
// overall.
type SimilarityResult struct {
	FingerprintA       string   `json:"fingerprint_a"`
	FingerprintB       string   `json:"fingerprint_b"`
	Similarity         float64  `json:"similarity"`
	IsLikelyDerivative bool     `json:"is_likely_derivative"`
	MatchingAspects    []string `json:"matching_aspects"`
	DivergingAspects   []string `json:"diverging_aspects"`
}

// EventType enumerates the lifecycle events recorded for a document.
type EventType string

const (
	EventCreated             EventType = "created"
	EventModified            EventType = "modified"
	EventSigned              EventType = "signed"
	EventSealed              EventType = "sealed"
	EventAccessed            EventType = "accessed"
	EventVerificationAttempt EventType = "verification_attempt"
)

// TimelineEvent is one entry in a document's append-only event log.
// Ordering is by timestamp, ties broken by insertion sequence.
type TimelineEvent struct {
	DocumentID string            `json:"document_id"`
	EventType  EventType         `json:"event_type"`
	ActorID    string            `json:"actor_id"`
	Timestamp  time.Time         `json:"timestamp"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// TimelineAnomaly is a temporal irregularity found in a document's event
// log. Evidence holds copies of the triggering events.
type TimelineAnomaly struct {
	AnomalyType string          `json:"anomaly_type"`
	Severity    Severity        `json:"severity"`
	Evidence    []TimelineEvent `json:"evidence"`
	Description string          `json:"description"`
}

// PatternType enumerates the cross-document fraud signals the pattern
// detector scans for.
type PatternType string

const (
	PatternDuplicateSignature   PatternType = "duplicate_signature"
	PatternAmountManipulation   PatternType = "amount_manipulation"
	PatternIdentityReuseSSN     PatternType = "identity_reuse_ssn"
	PatternIdentityReuseAddress PatternType = "identity_reuse_address"
	PatternCoordinatedTampering PatternType = "coordinated_tampering"
	PatternTemplateFraud        PatternType = "template_fraud"
	PatternRapidSubmission      PatternType = "rapid_submission"
)

// FraudPattern is one finding from a corpus scan. Produced fresh on every
// scan, never incrementally maintained.
type FraudPattern struct {
	PatternType         PatternType       `json:"pattern_type"`
	Severity            Severity          `json:"severity"`
	AffectedDocumentIDs []string          `json:"affected_document_ids"`
	AffectedActorIDs    []string          `json:"affected_actor_ids,omitempty"`
	Evidence            map[string]string `json:"evidence,omitempty"`
	Recommendation      string            `json:"recommendation"`
}
