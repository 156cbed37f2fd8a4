package risk

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/integrityx/forensics/pkg/models"
)

func newTestModel(t *testing.T) *Model {
	t.Helper()
	model, err := NewModel(Config{})
	if err != nil {
		t.Fatalf("failed to build model: %v", err)
	}
	return model
}

func numPtr(v float64) *models.Scalar {
	s := models.NumberScalar(v)
	return &s
}

func strPtr(v string) *models.Scalar {
	s := models.StringScalar(v)
	return &s
}

func TestBaseRiskByFieldType(t *testing.T) {
	model := newTestModel(t)

	cases := []struct {
		fieldType models.FieldType
		want      float64
	}{
		{models.FieldFinancial, 0.95},
		{models.FieldIdentity, 0.90},
		{models.FieldSignature, 0.85},
		{models.FieldDate, 0.70},
		{models.FieldText, 0.50},
	}

	for _, tc := range cases {
		score, patterns := model.Score(tc.fieldType, strPtr("a"), strPtr("b"), nil)
		if score != tc.want {
			t.Errorf("%s: expected base risk %.2f, got %.2f", tc.fieldType, tc.want, score)
		}
		if len(patterns) != 0 {
			t.Errorf("%s: expected no patterns for plain string change, got %v", tc.fieldType, patterns)
		}
	}
}

func TestMagnitudeMultiplierTiers(t *testing.T) {
	model := newTestModel(t)

	// Text base risk 0.5 keeps the product below the clamp so tiers are
	// observable. New values avoid round-number boundaries.
	cases := []struct {
		oldValue float64
		newValue float64
		want     float64
	}{
		{100, 101, 0.50},  // 1% change, neutral multiplier
		{100, 130, 0.55},  // 30% change, x1.1
		{100, 160, 0.65},  // 60% change, x1.3
		{100, 210, 0.75},  // 110% change, x1.5
	}

	for _, tc := range cases {
		score, _ := model.Score(models.FieldText, numPtr(tc.oldValue), numPtr(tc.newValue), nil)
		if math.Abs(score-tc.want) > 1e-9 {
			t.Errorf("%.0f -> %.0f: expected %.2f, got %.4f", tc.oldValue, tc.newValue, tc.want, score)
		}
	}
}

func TestRoundNumberBonus(t *testing.T) {
	model := newTestModel(t)

	score, patterns := model.Score(models.FieldText, numPtr(4990), numPtr(5000), nil)
	if !containsPattern(patterns, PatternRoundNumber) {
		t.Errorf("expected round_number pattern for 5000, got %v", patterns)
	}
	if math.Abs(score-0.60) > 1e-9 {
		t.Errorf("expected 0.50 + 0.10 bonus = 0.60, got %.4f", score)
	}

	// Large values switch to the 50000 denominator.
	_, patterns = model.Score(models.FieldText, numPtr(899000), numPtr(900000), nil)
	if !containsPattern(patterns, PatternRoundNumber) {
		t.Errorf("expected round_number for 900000, got %v", patterns)
	}

	// 123456 is not divisible by 50000.
	_, patterns = model.Score(models.FieldText, numPtr(1), numPtr(123456), nil)
	if containsPattern(patterns, PatternRoundNumber) {
		t.Errorf("did not expect round_number for 123456, got %v", patterns)
	}
}

func TestContextBonusesStack(t *testing.T) {
	model := newTestModel(t)

	// Sunday, 23:00.
	sunday := time.Date(2024, 6, 2, 23, 0, 0, 0, time.UTC)
	chg := &ChangeContext{Timestamp: sunday, ActorEditsInWindow: 3}

	score, patterns := model.Score(models.FieldText, strPtr("a"), strPtr("b"), chg)
	if !containsPattern(patterns, PatternRapidEditRun) {
		t.Errorf("expected rapid_edit_run, got %v", patterns)
	}
	if !containsPattern(patterns, PatternOffHoursChange) {
		t.Errorf("expected off_hours_change, got %v", patterns)
	}
	if math.Abs(score-0.85) > 1e-9 {
		t.Errorf("expected 0.50 + 0.15 + 0.20 = 0.85, got %.4f", score)
	}
}

func TestWeekdayBusinessHoursNoBonus(t *testing.T) {
	model := newTestModel(t)

	// Tuesday, 10:00.
	tuesday := time.Date(2024, 6, 4, 10, 0, 0, 0, time.UTC)
	chg := &ChangeContext{Timestamp: tuesday, ActorEditsInWindow: 1}

	_, patterns := model.Score(models.FieldText, strPtr("a"), strPtr("b"), chg)
	if len(patterns) != 0 {
		t.Errorf("expected no patterns during business hours, got %v", patterns)
	}
}

func TestScoreClampsToOne(t *testing.T) {
	model := newTestModel(t)

	// Financial, 800% increase, round number: 0.95*1.5 + 0.10 clamps.
	score, _ := model.Score(models.FieldFinancial, numPtr(100000), numPtr(900000), nil)
	if score != 1.0 {
		t.Errorf("expected clamped score 1.0, got %.4f", score)
	}
}

func TestBucketMonotonic(t *testing.T) {
	model := newTestModel(t)

	rank := map[models.RiskLabel]int{
		models.RiskLow:      0,
		models.RiskMedium:   1,
		models.RiskHigh:     2,
		models.RiskCritical: 3,
	}

	prev := -1
	for score := 0.0; score <= 1.0; score += 0.01 {
		r := rank[model.Bucket(score)]
		if r < prev {
			t.Fatalf("bucket rank decreased at score %.2f", score)
		}
		prev = r
	}

	if model.Bucket(0.9) != models.RiskCritical {
		t.Error("expected critical at 0.9")
	}
	if model.Bucket(0.7) != models.RiskHigh {
		t.Error("expected high at 0.7")
	}
	if model.Bucket(0.4) != models.RiskMedium {
		t.Error("expected medium at 0.4")
	}
	if model.Bucket(0.39) != models.RiskLow {
		t.Error("expected low below 0.4")
	}
}

func TestScoreDeterminism(t *testing.T) {
	model := newTestModel(t)

	chg := &ChangeContext{Timestamp: time.Date(2024, 6, 2, 3, 0, 0, 0, time.UTC), ActorEditsInWindow: 5}
	s1, p1 := model.Score(models.FieldFinancial, numPtr(100), numPtr(250), chg)
	s2, p2 := model.Score(models.FieldFinancial, numPtr(100), numPtr(250), chg)

	if s1 != s2 || len(p1) != len(p2) {
		t.Errorf("expected identical output across runs: %.4f/%v vs %.4f/%v", s1, p1, s2, p2)
	}
}

func TestInvalidConfigRejected(t *testing.T) {
	cases := []Config{
		{CriticalThreshold: 0.5, HighThreshold: 0.5, MediumThreshold: 0.4},
		{RoundNumberBonus: -0.1},
		{BaseRisk: map[models.FieldType]float64{models.FieldText: 1.5}},
		{BusinessHourStart: 23, BusinessHourEnd: 5},
	}

	for i, cfg := range cases {
		if _, err := NewModel(cfg); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("case %d: expected ErrInvalidConfig, got %v", i, err)
		}
	}
}

func containsPattern(patterns []string, want string) bool {
	for _, p := range patterns {
		if p == want {
			return true
		}
	}
	return false
}
