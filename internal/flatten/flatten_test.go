package flatten

import (
	"errors"
	"reflect"
	"testing"

	"github.com/integrityx/forensics/pkg/models"
)

func TestFlattenNestedDocument(t *testing.T) {
	extractor := NewExtractor(Config{})

	doc := map[string]any{
		"loan_amount": 250000.0,
		"borrower": map[string]any{
			"name": "John Doe",
			"ssn":  "123-45-6789",
		},
		"items": []any{
			map[string]any{"price": 10.5},
			map[string]any{"price": 20.0},
		},
	}

	fields, err := extractor.Flatten(doc)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	wantPaths := []string{
		"borrower.name",
		"borrower.ssn",
		"items[0].price",
		"items[1].price",
		"loan_amount",
	}
	if len(fields) != len(wantPaths) {
		t.Fatalf("expected %d fields, got %d", len(wantPaths), len(fields))
	}
	for i, want := range wantPaths {
		if fields[i].Path != want {
			t.Errorf("field %d: expected path %q, got %q", i, want, fields[i].Path)
		}
	}
}

func TestFlattenDeterminism(t *testing.T) {
	extractor := NewExtractor(Config{})

	doc := map[string]any{
		"b": 2.0,
		"a": map[string]any{"z": "last", "m": "middle", "a": "first"},
		"c": []any{true, false},
	}

	first, err := extractor.Flatten(doc)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	second, err := extractor.Flatten(doc)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Error("expected identical output across runs")
	}
}

func TestFlattenCycleDetection(t *testing.T) {
	extractor := NewExtractor(Config{})

	doc := map[string]any{"name": "loop"}
	doc["self"] = doc

	_, err := extractor.Flatten(doc)
	if !errors.Is(err, ErrMalformedDocument) {
		t.Errorf("expected ErrMalformedDocument, got %v", err)
	}
}

func TestFlattenSharedSubtreeIsNotACycle(t *testing.T) {
	extractor := NewExtractor(Config{})

	shared := map[string]any{"value": 1.0}
	doc := map[string]any{"first": shared, "second": shared}

	fields, err := extractor.Flatten(doc)
	if err != nil {
		t.Fatalf("expected no error for shared subtree, got %v", err)
	}
	if len(fields) != 2 {
		t.Errorf("expected 2 fields, got %d", len(fields))
	}
}

func TestFlattenUnsupportedType(t *testing.T) {
	extractor := NewExtractor(Config{})

	doc := map[string]any{"callback": func() {}}

	_, err := extractor.Flatten(doc)
	if !errors.Is(err, ErrMalformedDocument) {
		t.Errorf("expected ErrMalformedDocument, got %v", err)
	}
}

func TestFlattenNilLeafSkipped(t *testing.T) {
	extractor := NewExtractor(Config{})

	doc := map[string]any{"present": "yes", "absent": nil}

	fields, err := extractor.Flatten(doc)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(fields) != 1 || fields[0].Path != "present" {
		t.Errorf("expected only the non-nil leaf, got %+v", fields)
	}
}

func TestInferType(t *testing.T) {
	extractor := NewExtractor(Config{})

	cases := []struct {
		path  string
		value models.Scalar
		want  models.FieldType
	}{
		{"loan_amount", models.NumberScalar(100), models.FieldFinancial},
		{"applicant.ssn", models.StringScalar("123-45-6789"), models.FieldIdentity},
		{"borrower", models.StringScalar("John Doe"), models.FieldIdentity},
		{"signature_image", models.StringScalar("base64"), models.FieldSignature},
		{"closing", mustDate(t, "2024-03-01"), models.FieldDate},
		{"notes", models.StringScalar("free text"), models.FieldText},
	}

	for _, tc := range cases {
		if got := extractor.InferType(tc.path, tc.value); got != tc.want {
			t.Errorf("InferType(%q): expected %s, got %s", tc.path, tc.want, got)
		}
	}
}

func TestFlattenNormalizesDateStrings(t *testing.T) {
	extractor := NewExtractor(Config{})

	doc := map[string]any{"note": "2024-06-15"}

	fields, err := extractor.Flatten(doc)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if fields[0].Value.Kind != models.KindDate {
		t.Errorf("expected date scalar, got %s", fields[0].Value.Kind)
	}
	if fields[0].Type != models.FieldDate {
		t.Errorf("expected date field type, got %s", fields[0].Type)
	}
}

func TestCustomKeywordTable(t *testing.T) {
	extractor := NewExtractor(Config{
		FinancialKeywords: []string{"wage"},
		IdentityKeywords:  []string{"tax_id"},
		SignatureKeywords: []string{"stamp"},
	})

	if got := extractor.InferType("monthly_wage", models.NumberScalar(1)); got != models.FieldFinancial {
		t.Errorf("expected financial for custom keyword, got %s", got)
	}
	// The default table is replaced, not merged.
	if got := extractor.InferType("loan_amount", models.NumberScalar(1)); got != models.FieldText {
		t.Errorf("expected text when default keywords are overridden, got %s", got)
	}
}

func mustDate(t *testing.T, s string) models.Scalar {
	t.Helper()
	parsed, ok := parseDate(s)
	if !ok {
		t.Fatalf("failed to parse date %q", s)
	}
	return models.DateScalar(parsed)
}
