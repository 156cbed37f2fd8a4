package patterns

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/integrityx/forensics/pkg/models"
)

func newTestDetector(t *testing.T) *Detector {
	t.Helper()
	detector, err := NewDetector(DefaultConfig())
	if err != nil {
		t.Fatalf("failed to build detector: %v", err)
	}
	return detector
}

func patternsOfType(report *Report, patternType models.PatternType) []models.FraudPattern {
	var out []models.FraudPattern
	for _, p := range report.Patterns {
		if p.PatternType == patternType {
			out = append(out, p)
		}
	}
	return out
}

func hasWarningPrefix(report *Report, prefix string) bool {
	for _, w := range report.Warnings {
		if strings.HasPrefix(w, prefix) {
			return true
		}
	}
	return false
}

func TestTemplateFraudBatch(t *testing.T) {
	detector := newTestDetector(t)

	corpus := make([]CorpusDocument, 0, 25)
	for i := 0; i < 25; i++ {
		corpus = append(corpus, CorpusDocument{
			DocumentID: fmt.Sprintf("doc-%02d", i),
			ActorID:    fmt.Sprintf("actor-%02d", i),
			Document: map[string]any{
				"loan_amount": 100000.0 + float64(i)*1000,
				"borrower": map[string]any{
					"name": fmt.Sprintf("Borrower %d", i),
					"ssn":  fmt.Sprintf("123-45-%04d", i),
				},
			},
		})
	}

	report, err := detector.Detect(corpus, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(report.Patterns) != 1 {
		t.Fatalf("expected exactly one pattern, got %d: %+v", len(report.Patterns), report.Patterns)
	}
	p := report.Patterns[0]
	if p.PatternType != models.PatternTemplateFraud {
		t.Errorf("expected template_fraud, got %s", p.PatternType)
	}
	if p.Severity != models.SeverityMedium {
		t.Errorf("expected medium severity, got %s", p.Severity)
	}
	if len(p.AffectedDocumentIDs) != 25 {
		t.Errorf("expected 25 affected documents, got %d", len(p.AffectedDocumentIDs))
	}
	if p.Evidence["document_count"] != "25" {
		t.Errorf("expected document_count evidence 25, got %q", p.Evidence["document_count"])
	}
}

func TestScanIsolation(t *testing.T) {
	detector := newTestDetector(t)

	// No signature fields anywhere, but three documents share an SSN and
	// three more share a reformatted address. The signature scan reports
	// insufficient data without blocking the identity findings.
	corpus := []CorpusDocument{
		{DocumentID: "ssn-1", Document: map[string]any{"borrower": map[string]any{"ssn": "123-45-6789"}}},
		{DocumentID: "ssn-2", Document: map[string]any{"borrower": map[string]any{"ssn": "123-45-6789"}}},
		{DocumentID: "ssn-3", Document: map[string]any{"borrower": map[string]any{"ssn": "123-45-6789"}}},
		{DocumentID: "addr-1", Document: map[string]any{"mailing_address": "123 Main St."}},
		{DocumentID: "addr-2", Document: map[string]any{"mailing_address": "123 main st"}},
		{DocumentID: "addr-3", Document: map[string]any{"mailing_address": "123 MAIN ST"}},
	}

	report, err := detector.Detect(corpus, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	ssnHits := patternsOfType(report, models.PatternIdentityReuseSSN)
	if len(ssnHits) != 1 {
		t.Fatalf("expected one SSN reuse pattern, got %d", len(ssnHits))
	}
	if ssnHits[0].Severity != models.SeverityCritical {
		t.Errorf("expected critical severity for SSN reuse, got %s", ssnHits[0].Severity)
	}
	if !reflect.DeepEqual(ssnHits[0].AffectedDocumentIDs, []string{"ssn-1", "ssn-2", "ssn-3"}) {
		t.Errorf("unexpected SSN document ids: %v", ssnHits[0].AffectedDocumentIDs)
	}
	if ssnHits[0].Evidence["ssn_last4"] != "6789" {
		t.Errorf("expected ssn_last4 6789, got %q", ssnHits[0].Evidence["ssn_last4"])
	}

	addrHits := patternsOfType(report, models.PatternIdentityReuseAddress)
	if len(addrHits) != 1 {
		t.Fatalf("expected one address reuse pattern, got %d", len(addrHits))
	}
	if addrHits[0].Severity != models.SeverityMedium {
		t.Errorf("expected medium severity for address reuse, got %s", addrHits[0].Severity)
	}
	if addrHits[0].Evidence["address"] != "123 main st" {
		t.Errorf("expected normalized address key, got %q", addrHits[0].Evidence["address"])
	}

	if !hasWarningPrefix(report, "duplicate_signature:") {
		t.Errorf("expected duplicate_signature warning, got %v", report.Warnings)
	}
}

func TestDuplicateSignatures(t *testing.T) {
	detector := newTestDetector(t)

	shared := map[string]any{"signature": "iVBORw0KGgoAAAANSUhEUg"}
	corpus := []CorpusDocument{
		{DocumentID: "doc-1", ActorID: "actor-a", Document: shared},
		{DocumentID: "doc-2", ActorID: "actor-b", Document: shared},
		{DocumentID: "doc-3", ActorID: "actor-c", Document: shared},
		{DocumentID: "doc-4", ActorID: "actor-a", Document: map[string]any{"signature": "R0lGODlhAQABAIAAAP"}},
	}

	report, err := detector.Detect(corpus, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	hits := patternsOfType(report, models.PatternDuplicateSignature)
	if len(hits) != 1 {
		t.Fatalf("expected one duplicate-signature pattern, got %d", len(hits))
	}
	p := hits[0]
	if p.Severity != models.SeverityCritical {
		t.Errorf("expected critical severity, got %s", p.Severity)
	}
	if !reflect.DeepEqual(p.AffectedDocumentIDs, []string{"doc-1", "doc-2", "doc-3"}) {
		t.Errorf("unexpected document ids: %v", p.AffectedDocumentIDs)
	}
	if len(p.AffectedActorIDs) != 3 {
		t.Errorf("expected 3 actors, got %v", p.AffectedActorIDs)
	}
}

func TestAmountManipulation(t *testing.T) {
	detector := newTestDetector(t)

	base := time.Date(2024, 6, 4, 10, 0, 0, 0, time.UTC)
	amountEdit := func(actor, doc string, minute int, oldValue, newValue string) models.TimelineEvent {
		return models.TimelineEvent{
			DocumentID: doc,
			EventType:  models.EventModified,
			ActorID:    actor,
			Timestamp:  base.Add(time.Duration(minute) * time.Minute),
			Metadata:   map[string]string{"path": "loan_amount", "old": oldValue, "new": newValue},
		}
	}

	events := []models.TimelineEvent{
		// Five inflating edits landing on round thousands.
		amountEdit("inflator", "doc-1", 0, "101500", "105000"),
		amountEdit("inflator", "doc-2", 1, "98200", "110000"),
		amountEdit("inflator", "doc-3", 2, "120300", "125000"),
		amountEdit("inflator", "doc-4", 3, "99100", "130000"),
		amountEdit("inflator", "doc-5", 4, "87600", "95000"),
		// Five edits by a careful corrector, mostly decreases.
		amountEdit("corrector", "doc-6", 0, "105000", "101500"),
		amountEdit("corrector", "doc-7", 1, "110000", "98200"),
		amountEdit("corrector", "doc-8", 2, "125000", "120300"),
		amountEdit("corrector", "doc-9", 3, "130000", "99100"),
		amountEdit("corrector", "doc-10", 4, "95000", "87600"),
	}

	report, err := detector.Detect(nil, events)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	hits := patternsOfType(report, models.PatternAmountManipulation)
	if len(hits) != 1 {
		t.Fatalf("expected one amount-manipulation pattern, got %d: %+v", len(hits), hits)
	}
	p := hits[0]
	if !reflect.DeepEqual(p.AffectedActorIDs, []string{"inflator"}) {
		t.Errorf("expected inflator flagged, got %v", p.AffectedActorIDs)
	}
	if p.Severity != models.SeverityHigh {
		t.Errorf("expected high severity, got %s", p.Severity)
	}
	if p.Evidence["increase_ratio"] != "1.00" || p.Evidence["round_ratio"] != "1.00" {
		t.Errorf("unexpected evidence ratios: %v", p.Evidence)
	}
}

func TestCoordinatedTampering(t *testing.T) {
	detector := newTestDetector(t)

	base := time.Date(2024, 6, 4, 2, 0, 0, 0, time.UTC)
	var events []models.TimelineEvent
	for i := 0; i < 12; i++ {
		events = append(events, models.TimelineEvent{
			DocumentID: fmt.Sprintf("doc-%02d", i),
			EventType:  models.EventModified,
			ActorID:    "bulk-editor",
			Timestamp:  base.Add(time.Duration(i) * time.Minute),
		})
	}

	report, err := detector.Detect(nil, events)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	hits := patternsOfType(report, models.PatternCoordinatedTampering)
	if len(hits) != 1 {
		t.Fatalf("expected one tampering pattern, got %d", len(hits))
	}
	if len(hits[0].AffectedDocumentIDs) != 12 {
		t.Errorf("expected 12 affected documents, got %d", len(hits[0].AffectedDocumentIDs))
	}
	if hits[0].Severity != models.SeverityHigh {
		t.Errorf("expected high severity, got %s", hits[0].Severity)
	}
}

func TestRapidSubmissionSeverityGrading(t *testing.T) {
	detector := newTestDetector(t)

	base := time.Date(2024, 6, 4, 9, 0, 0, 0, time.UTC)
	var events []models.TimelineEvent

	// Machine-steady: ten submissions exactly two seconds apart.
	for i := 0; i < 10; i++ {
		events = append(events, models.TimelineEvent{
			DocumentID: fmt.Sprintf("bot-doc-%02d", i),
			EventType:  models.EventCreated,
			ActorID:    "bot",
			Timestamp:  base.Add(time.Duration(i*2) * time.Second),
		})
	}

	// Fast but uneven: still inside the interval, gaps alternate 1s and 4s.
	offset := time.Duration(0)
	for i := 0; i < 10; i++ {
		events = append(events, models.TimelineEvent{
			DocumentID: fmt.Sprintf("rush-doc-%02d", i),
			EventType:  models.EventCreated,
			ActorID:    "rushed-clerk",
			Timestamp:  base.Add(offset),
		})
		if i%2 == 0 {
			offset += time.Second
		} else {
			offset += 4 * time.Second
		}
	}

	report, err := detector.Detect(nil, events)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	hits := patternsOfType(report, models.PatternRapidSubmission)
	if len(hits) != 2 {
		t.Fatalf("expected two rapid-submission patterns, got %d", len(hits))
	}

	bySeverity := map[string]models.Severity{}
	for _, p := range hits {
		if len(p.AffectedActorIDs) != 1 {
			t.Fatalf("expected single actor per pattern, got %v", p.AffectedActorIDs)
		}
		bySeverity[p.AffectedActorIDs[0]] = p.Severity
	}
	if bySeverity["bot"] != models.SeverityHigh {
		t.Errorf("expected high severity for constant intervals, got %s", bySeverity["bot"])
	}
	if bySeverity["rushed-clerk"] != models.SeverityMedium {
		t.Errorf("expected medium severity for uneven intervals, got %s", bySeverity["rushed-clerk"])
	}
}

func TestSlowSubmissionsNotFlagged(t *testing.T) {
	detector := newTestDetector(t)

	base := time.Date(2024, 6, 4, 9, 0, 0, 0, time.UTC)
	var events []models.TimelineEvent
	for i := 0; i < 12; i++ {
		events = append(events, models.TimelineEvent{
			DocumentID: fmt.Sprintf("doc-%02d", i),
			EventType:  models.EventCreated,
			ActorID:    "clerk",
			Timestamp:  base.Add(time.Duration(i) * time.Minute),
		})
	}

	report, err := detector.Detect(nil, events)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if hits := patternsOfType(report, models.PatternRapidSubmission); len(hits) != 0 {
		t.Errorf("minute-spaced submissions should not be flagged: %+v", hits)
	}
}

func TestEmptyCorpusProducesOnlyWarnings(t *testing.T) {
	detector := newTestDetector(t)

	report, err := detector.Detect(nil, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(report.Patterns) != 0 {
		t.Errorf("expected no patterns, got %d", len(report.Patterns))
	}
	if len(report.Warnings) != 6 {
		t.Errorf("expected all six scans to warn, got %v", report.Warnings)
	}
}

func TestMalformedCorpusDocument(t *testing.T) {
	detector := newTestDetector(t)

	cyclic := map[string]any{}
	cyclic["self"] = cyclic

	_, err := detector.Detect([]CorpusDocument{{DocumentID: "bad", Document: cyclic}}, nil)
	if err == nil {
		t.Fatal("expected error for cyclic document")
	}
	if !strings.Contains(err.Error(), "bad") {
		t.Errorf("expected offending document id in error, got %v", err)
	}
}

func TestDetectDeterminism(t *testing.T) {
	detector := newTestDetector(t)

	corpus := []CorpusDocument{
		{DocumentID: "z", Document: map[string]any{"borrower": map[string]any{"ssn": "000-11-2222"}}},
		{DocumentID: "a", Document: map[string]any{"borrower": map[string]any{"ssn": "000-11-2222"}}},
		{DocumentID: "m", Document: map[string]any{"borrower": map[string]any{"ssn": "000-11-2222"}}},
	}

	first, err := detector.Detect(corpus, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	second, err := detector.Detect(corpus, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Error("expected identical reports across runs")
	}
}
