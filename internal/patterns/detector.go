package patterns

import (
	"fmt"
	"sort"
	"time"

	"github.com/integrityx/forensics/internal/flatten"
	"github.com/integrityx/forensics/pkg/models"
)

// CorpusDocument is one document plus the metadata the scans need.
type CorpusDocument struct {
	DocumentID string
	ActorID    string
	Document   map[string]any
}

// Config holds the thresholds for all six fraud scans. Every value is
// independently tunable; none of the defaults carry a statistical
// guarantee, they reproduce the documented heuristics.
type Config struct {
	Flatten flatten.Config

	// Duplicate signature scan.
	DuplicateSignatureMinDocs   int
	DuplicateSignatureMinActors int

	// Amount manipulation scan.
	AmountMinModifications int
	AmountIncreaseRatio    float64
	AmountRoundRatio       float64
	AmountRoundDenominator float64

	// Identity reuse scans.
	IdentityReuseMinDocs int

	// Coordinated tampering scan.
	TamperingWindow  time.Duration
	TamperingMinDocs int

	// Template fraud scan.
	TemplateMinDocs int

	// Rapid submission scan.
	RapidSubmissionInterval time.Duration
	RapidSubmissionMinRun   int
	RapidConsistentStdDev   time.Duration
}

// DefaultConfig returns the default scan thresholds.
func DefaultConfig() Config {
	return Config{
		Flatten:                     flatten.DefaultConfig(),
		DuplicateSignatureMinDocs:   3,
		DuplicateSignatureMinActors: 2,
		AmountMinModifications:      5,
		AmountIncreaseRatio:         0.8,
		AmountRoundRatio:            0.5,
		AmountRoundDenominator:      1000,
		IdentityReuseMinDocs:        3,
		TamperingWindow:             15 * time.Minute,
		TamperingMinDocs:            10,
		TemplateMinDocs:             20,
		RapidSubmissionInterval:     5 * time.Second,
		RapidSubmissionMinRun:       10,
		RapidConsistentStdDev:       time.Second,
	}
}

// Report is the outcome of one corpus scan. Warnings name scans that had
// insufficient data; they never block other scans.
type Report struct {
	Patterns []models.FraudPattern `json:"patterns"`
	Warnings []string              `json:"warnings,omitempty"`
}

// Detector runs the six independent fraud scans over a corpus. It holds no
// state between calls; all grouping is query-scoped.
type Detector struct {
	config    Config
	extractor *flatten.Extractor
}

// NewDetector validates the configuration and returns a detector.
func NewDetector(config Config) (*Detector, error) {
	def := DefaultConfig()
	if config.DuplicateSignatureMinDocs == 0 {
		config.DuplicateSignatureMinDocs = def.DuplicateSignatureMinDocs
	}
	if config.DuplicateSignatureMinActors == 0 {
		config.DuplicateSignatureMinActors = def.DuplicateSignatureMinActors
	}
	if config.AmountMinModifications == 0 {
		config.AmountMinModifications = def.AmountMinModifications
	}
	if config.AmountIncreaseRatio == 0 {
		config.AmountIncreaseRatio = def.AmountIncreaseRatio
	}
	if config.AmountRoundRatio == 0 {
		config.AmountRoundRatio = def.AmountRoundRatio
	}
	if config.AmountRoundDenominator == 0 {
		config.AmountRoundDenominator = def.AmountRoundDenominator
	}
	if config.IdentityReuseMinDocs == 0 {
		config.IdentityReuseMinDocs = def.IdentityReuseMinDocs
	}
	if config.TamperingWindow == 0 {
		config.TamperingWindow = def.TamperingWindow
	}
	if config.TamperingMinDocs == 0 {
		config.TamperingMinDocs = def.TamperingMinDocs
	}
	if config.TemplateMinDocs == 0 {
		config.TemplateMinDocs = def.TemplateMinDocs
	}
	if config.RapidSubmissionInterval == 0 {
		config.RapidSubmissionInterval = def.RapidSubmissionInterval
	}
	if config.RapidSubmissionMinRun == 0 {
		config.RapidSubmissionMinRun = def.RapidSubmissionMinRun
	}
	if config.RapidConsistentStdDev == 0 {
		config.RapidConsistentStdDev = def.RapidConsistentStdDev
	}

	if config.AmountIncreaseRatio < 0 || config.AmountIncreaseRatio > 1 ||
		config.AmountRoundRatio < 0 || config.AmountRoundRatio > 1 {
		return nil, fmt.Errorf("patterns: ratio thresholds out of [0,1]")
	}
	if config.TamperingWindow < 0 || config.RapidSubmissionInterval < 0 {
		return nil, fmt.Errorf("patterns: negative time window")
	}

	return &Detector{
		config:    config,
		extractor: flatten.NewExtractor(config.Flatten),
	}, nil
}

// flatDoc is a corpus document after one up-front flatten pass.
type flatDoc struct {
	CorpusDocument
	Fields []models.FlatField
}

// Detect runs all six scans and concatenates their findings. A scan with
// insufficient data contributes nothing and a warning; it never aborts the
// others. Malformed documents are a caller bug and surface as an error.
func (d *Detector) Detect(corpus []CorpusDocument, events []models.TimelineEvent) (*Report, error) {
	docs := make([]flatDoc, 0, len(corpus))
	for _, cd := range corpus {
		fields, err := d.extractor.Flatten(cd.Document)
		if err != nil {
			return nil, fmt.Errorf("document %s: %w", cd.DocumentID, err)
		}
		docs = append(docs, flatDoc{CorpusDocument: cd, Fields: fields})
	}

	report := &Report{Patterns: make([]models.FraudPattern, 0)}

	scans := []func([]flatDoc, []models.TimelineEvent) ([]models.FraudPattern, string){
		d.scanDuplicateSignatures,
		d.scanAmountManipulation,
		d.scanIdentityReuse,
		d.scanCoordinatedTampering,
		d.scanTemplateFraud,
		d.scanRapidSubmission,
	}
	for _, scan := range scans {
		patterns, warning := scan(docs, events)
		report.Patterns = append(report.Patterns, patterns...)
		if warning != "" {
			report.Warnings = append(report.Warnings, warning)
		}
	}

	return report, nil
}

// sortedKeys returns map keys in sorted order so scan output is
// deterministic regardless of map iteration order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// distinctSorted deduplicates and sorts a list of ids.
func distinctSorted(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
