package diff

import (
	"sort"

	"github.com/integrityx/forensics/internal/flatten"
	"github.com/integrityx/forensics/internal/risk"
	"github.com/integrityx/forensics/pkg/models"
)

// Config aggregates the policies the diff engine depends on.
type Config struct {
	Flatten flatten.Config
	Risk    risk.Config
}

// DefaultConfig returns the default diff configuration.
func DefaultConfig() Config {
	return Config{
		Flatten: flatten.DefaultConfig(),
		Risk:    risk.DefaultConfig(),
	}
}

// Engine computes field-level diffs between two document versions and
// scores every change. Pure: no I/O, no shared state.
type Engine struct {
	extractor *flatten.Extractor
	model     *risk.Model
}

// NewEngine creates a diff engine. Fails if the risk configuration is
// invalid.
func NewEngine(config Config) (*Engine, error) {
	model, err := risk.NewModel(config.Risk)
	if err != nil {
		return nil, err
	}
	return &Engine{
		extractor: flatten.NewExtractor(config.Flatten),
		model:     model,
	}, nil
}

// Diff compares two documents and returns the scored change set.
func (e *Engine) Diff(documentIDA, documentIDB string, docA, docB map[string]any) (*models.DiffResult, error) {
	return e.DiffWithContext(documentIDA, documentIDB, docA, docB, nil)
}

// DiffWithContext is Diff with optional per-path change context, letting
// the caller feed actor-run and timestamp information into the risk
// model's pattern bonuses.
func (e *Engine) DiffWithContext(documentIDA, documentIDB string, docA, docB map[string]any, contexts map[string]risk.ChangeContext) (*models.DiffResult, error) {
	fieldsA, err := e.extractor.Flatten(docA)
	if err != nil {
		return nil, err
	}
	fieldsB, err := e.extractor.Flatten(docB)
	if err != nil {
		return nil, err
	}

	byPathA := indexByPath(fieldsA)
	byPathB := indexByPath(fieldsB)

	paths := unionPaths(byPathA, byPathB)

	changes := make([]models.FieldChange, 0)
	for _, path := range paths {
		fieldA, inA := byPathA[path]
		fieldB, inB := byPathB[path]

		switch {
		case inA && inB:
			if fieldA.Value.Equal(fieldB.Value) {
				continue
			}
			oldValue := fieldA.Value
			newValue := fieldB.Value
			changes = append(changes, e.scoreChange(path, fieldB.Type, &oldValue, &newValue, contexts))
		case inA:
			oldValue := fieldA.Value
			changes = append(changes, e.scoreChange(path, fieldA.Type, &oldValue, nil, contexts))
		default:
			newValue := fieldB.Value
			changes = append(changes, e.scoreChange(path, fieldB.Type, nil, &newValue, contexts))
		}
	}

	overall := 0.0
	for _, c := range changes {
		if c.RiskScore > overall {
			overall = c.RiskScore
		}
	}

	label := e.model.Bucket(overall)
	if len(changes) == 0 {
		label = models.RiskLow
	}

	return &models.DiffResult{
		DocumentIDA:    documentIDA,
		DocumentIDB:    documentIDB,
		Changes:        changes,
		OverallRisk:    overall,
		OverallLabel:   label,
		Recommendation: recommendation(label, len(changes)),
	}, nil
}

func (e *Engine) scoreChange(path string, fieldType models.FieldType, oldValue, newValue *models.Scalar, contexts map[string]risk.ChangeContext) models.FieldChange {
	var chg *risk.ChangeContext
	if contexts != nil {
		if c, ok := contexts[path]; ok {
			chg = &c
		}
	}

	score, patterns := e.model.Score(fieldType, oldValue, newValue, chg)

	return models.FieldChange{
		Path:               path,
		OldValue:           oldValue,
		NewValue:           newValue,
		FieldType:          fieldType,
		RiskScore:          score,
		RiskLabel:          e.model.Bucket(score),
		SuspiciousPatterns: patterns,
	}
}

func indexByPath(fields []models.FlatField) map[string]models.FlatField {
	index := make(map[string]models.FlatField, len(fields))
	for _, f := range fields {
		index[f.Path] = f
	}
	return index
}

// unionPaths returns the symmetric key set in sorted order so diff output
// is deterministic across runs.
func unionPaths(a, b map[string]models.FlatField) []string {
	seen := make(map[string]bool, len(a)+len(b))
	paths := make([]string, 0, len(a)+len(b))
	for path := range a {
		if !seen[path] {
			seen[path] = true
			paths = append(paths, path)
		}
	}
	for path := range b {
		if !seen[path] {
			seen[path] = true
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	return paths
}

func recommendation(label models.RiskLabel, changeCount int) string {
	if changeCount == 0 {
		return "Documents are identical - no action required"
	}
	switch label {
	case models.RiskCritical:
		return "BLOCK DOCUMENT - high fraud probability, escalate to investigations"
	case models.RiskHigh:
		return "Hold document for manual review before acceptance"
	case models.RiskMedium:
		return "Flag document for review in the next audit cycle"
	default:
		return "No action required"
	}
}
