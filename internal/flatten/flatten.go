package flatten

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"time"

	"github.com/integrityx/forensics/pkg/models"
)

// ErrMalformedDocument indicates the input document is cyclic or contains
// a leaf value outside the supported scalar types.
var ErrMalformedDocument = errors.New("malformed document")

// Extractor flattens nested documents into leaf fields and classifies each
// leaf by a configurable keyword table.
type Extractor struct {
	config Config
}

// NewExtractor creates a new field extractor. Empty keyword lists fall back
// to the defaults.
func NewExtractor(config Config) *Extractor {
	def := DefaultConfig()
	if len(config.FinancialKeywords) == 0 {
		config.FinancialKeywords = def.FinancialKeywords
	}
	if len(config.IdentityKeywords) == 0 {
		config.IdentityKeywords = def.IdentityKeywords
	}
	if len(config.SignatureKeywords) == 0 {
		config.SignatureKeywords = def.SignatureKeywords
	}
	return &Extractor{config: config}
}

// Flatten walks the document and returns one FlatField per leaf scalar.
// Map keys are visited in sorted order so two documents that differ only in
// key ordering flatten identically. Cyclic structures are rejected.
func (e *Extractor) Flatten(doc map[string]any) ([]models.FlatField, error) {
	if doc == nil {
		return []models.FlatField{}, nil
	}

	fields := make([]models.FlatField, 0)
	visited := make(map[uintptr]bool)

	if err := e.walk("", doc, visited, &fields); err != nil {
		return nil, err
	}

	return fields, nil
}

func (e *Extractor) walk(path string, value any, visited map[uintptr]bool, out *[]models.FlatField) error {
	switch v := value.(type) {
	case nil:
		// Null leaves carry no value; a later non-null version surfaces
		// as an "added" change in diff.
		return nil

	case map[string]any:
		ptr := reflect.ValueOf(v).Pointer()
		if visited[ptr] {
			return fmt.Errorf("%w: cycle detected at %q", ErrMalformedDocument, path)
		}
		visited[ptr] = true
		defer delete(visited, ptr)

		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			childPath := k
			if path != "" {
				childPath = path + "." + k
			}
			if err := e.walk(childPath, v[k], visited, out); err != nil {
				return err
			}
		}
		return nil

	case []any:
		if len(v) > 0 {
			ptr := reflect.ValueOf(v).Pointer()
			if visited[ptr] {
				return fmt.Errorf("%w: cycle detected at %q", ErrMalformedDocument, path)
			}
			visited[ptr] = true
			defer delete(visited, ptr)
		}
		for i, item := range v {
			childPath := path + "[" + strconv.Itoa(i) + "]"
			if err := e.walk(childPath, item, visited, out); err != nil {
				return err
			}
		}
		return nil

	default:
		scalar, ok := toScalar(value)
		if !ok {
			return fmt.Errorf("%w: unsupported value of type %T at %q", ErrMalformedDocument, value, path)
		}
		*out = append(*out, models.FlatField{
			Path:  path,
			Value: scalar,
			Type:  e.InferType(path, scalar),
		})
		return nil
	}
}

// toScalar converts a raw leaf into the closed Scalar union. ISO-date-shaped
// strings are normalized to date scalars.
func toScalar(value any) (models.Scalar, bool) {
	switch v := value.(type) {
	case string:
		if t, ok := parseDate(v); ok {
			return models.DateScalar(t), true
		}
		return models.StringScalar(v), true
	case bool:
		return models.BoolScalar(v), true
	case float64:
		return models.NumberScalar(v), true
	case float32:
		return models.NumberScalar(float64(v)), true
	case int:
		return models.NumberScalar(float64(v)), true
	case int32:
		return models.NumberScalar(float64(v)), true
	case int64:
		return models.NumberScalar(float64(v)), true
	case time.Time:
		return models.DateScalar(v), true
	default:
		return models.Scalar{}, false
	}
}

// parseDate recognizes ISO-8601 date and datetime strings.
func parseDate(s string) (time.Time, bool) {
	layouts := []string{time.RFC3339, "2006-01-02"}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
