package patterns

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"gonum.org/v1/gonum/stat"

	"github.com/integrityx/forensics/internal/fingerprint"
	"github.com/integrityx/forensics/pkg/models"
)

// scanDuplicateSignatures groups documents by a digest of their signature
// fields. The same signature appearing across several documents for
// different actors indicates a forged or copy-pasted signature blob.
func (d *Detector) scanDuplicateSignatures(docs []flatDoc, _ []models.TimelineEvent) ([]models.FraudPattern, string) {
	type group struct {
		docIDs   []string
		actorIDs []string
	}
	groups := make(map[string]*group)
	found := false

	for _, doc := range docs {
		var parts []string
		for _, f := range doc.Fields {
			if f.Type == models.FieldSignature {
				parts = append(parts, f.Value.Canonical())
			}
		}
		if len(parts) == 0 {
			continue
		}
		found = true
		sort.Strings(parts)
		sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
		digest := hex.EncodeToString(sum[:])

		g := groups[digest]
		if g == nil {
			g = &group{}
			groups[digest] = g
		}
		g.docIDs = append(g.docIDs, doc.DocumentID)
		g.actorIDs = append(g.actorIDs, doc.ActorID)
	}

	if !found {
		return nil, "duplicate_signature: no signature fields in corpus"
	}

	var patterns []models.FraudPattern
	for _, digest := range sortedKeys(groups) {
		g := groups[digest]
		docIDs := distinctSorted(g.docIDs)
		actorIDs := distinctSorted(g.actorIDs)
		if len(docIDs) < d.config.DuplicateSignatureMinDocs || len(actorIDs) < d.config.DuplicateSignatureMinActors {
			continue
		}
		patterns = append(patterns, models.FraudPattern{
			PatternType:         models.PatternDuplicateSignature,
			Severity:            models.SeverityCritical,
			AffectedDocumentIDs: docIDs,
			AffectedActorIDs:    actorIDs,
			Evidence: map[string]string{
				"signature_digest": digest[:16],
				"document_count":   strconv.Itoa(len(docIDs)),
			},
			Recommendation: "Identical signature across unrelated borrowers - verify originals immediately",
		})
	}
	return patterns, ""
}

// scanAmountManipulation looks for actors whose amount-field edits are
// dominated by increases that land on round-number boundaries. The host
// records the edited path and values in the event metadata.
func (d *Detector) scanAmountManipulation(_ []flatDoc, events []models.TimelineEvent) ([]models.FraudPattern, string) {
	type edit struct {
		docID    string
		oldValue float64
		newValue float64
	}
	byActor := make(map[string][]edit)
	found := false

	for _, ev := range events {
		if ev.EventType != models.EventModified || ev.Metadata == nil {
			continue
		}
		path := ev.Metadata["path"]
		if path == "" {
			continue
		}
		if d.extractor.InferType(path, models.NumberScalar(0)) != models.FieldFinancial {
			continue
		}
		oldValue, errOld := strconv.ParseFloat(ev.Metadata["old"], 64)
		newValue, errNew := strconv.ParseFloat(ev.Metadata["new"], 64)
		if errOld != nil || errNew != nil {
			continue
		}
		found = true
		byActor[ev.ActorID] = append(byActor[ev.ActorID], edit{ev.DocumentID, oldValue, newValue})
	}

	if !found {
		return nil, "amount_manipulation: no amount modification events in corpus"
	}

	var patterns []models.FraudPattern
	for _, actor := range sortedKeys(byActor) {
		edits := byActor[actor]
		if len(edits) < d.config.AmountMinModifications {
			continue
		}

		increases, round := 0, 0
		var docIDs []string
		for _, e := range edits {
			if e.newValue > e.oldValue {
				increases++
			}
			if e.newValue != 0 && math.Mod(math.Abs(e.newValue), d.config.AmountRoundDenominator) == 0 {
				round++
			}
			docIDs = append(docIDs, e.docID)
		}

		total := float64(len(edits))
		if float64(increases)/total < d.config.AmountIncreaseRatio || float64(round)/total < d.config.AmountRoundRatio {
			continue
		}

		patterns = append(patterns, models.FraudPattern{
			PatternType:         models.PatternAmountManipulation,
			Severity:            models.SeverityHigh,
			AffectedDocumentIDs: distinctSorted(docIDs),
			AffectedActorIDs:    []string{actor},
			Evidence: map[string]string{
				"modifications":  strconv.Itoa(len(edits)),
				"increase_ratio": fmt.Sprintf("%.2f", float64(increases)/total),
				"round_ratio":    fmt.Sprintf("%.2f", float64(round)/total),
			},
			Recommendation: "Actor repeatedly inflates amounts to round figures - audit their recent edits",
		})
	}
	return patterns, ""
}

// scanIdentityReuse groups documents by normalized SSN last-4 and by
// normalized address. The same identity value spread across several
// documents suggests synthetic or recycled identities.
func (d *Detector) scanIdentityReuse(docs []flatDoc, _ []models.TimelineEvent) ([]models.FraudPattern, string) {
	ssnGroups := make(map[string][]string)
	addressGroups := make(map[string][]string)
	found := false

	for _, doc := range docs {
		for _, f := range doc.Fields {
			lower := strings.ToLower(f.Path)
			switch {
			case strings.Contains(lower, "ssn"):
				if key := ssnLast4(f.Value.Canonical()); key != "" {
					found = true
					ssnGroups[key] = append(ssnGroups[key], doc.DocumentID)
				}
			case strings.Contains(lower, "address"):
				if key := normalizeAddress(f.Value.Canonical()); key != "" {
					found = true
					addressGroups[key] = append(addressGroups[key], doc.DocumentID)
				}
			}
		}
	}

	if !found {
		return nil, "identity_reuse: no identity fields in corpus"
	}

	var patterns []models.FraudPattern
	for _, key := range sortedKeys(ssnGroups) {
		docIDs := distinctSorted(ssnGroups[key])
		if len(docIDs) < d.config.IdentityReuseMinDocs {
			continue
		}
		patterns = append(patterns, models.FraudPattern{
			PatternType:         models.PatternIdentityReuseSSN,
			Severity:            models.SeverityCritical,
			AffectedDocumentIDs: docIDs,
			Evidence: map[string]string{
				"ssn_last4":      key,
				"document_count": strconv.Itoa(len(docIDs)),
			},
			Recommendation: "Same SSN across multiple applications - likely identity theft or synthetic identity",
		})
	}
	for _, key := range sortedKeys(addressGroups) {
		docIDs := distinctSorted(addressGroups[key])
		if len(docIDs) < d.config.IdentityReuseMinDocs {
			continue
		}
		patterns = append(patterns, models.FraudPattern{
			PatternType:         models.PatternIdentityReuseAddress,
			Severity:            models.SeverityMedium,
			AffectedDocumentIDs: docIDs,
			Evidence: map[string]string{
				"address":        key,
				"document_count": strconv.Itoa(len(docIDs)),
			},
			Recommendation: "Shared address across applications - review for straw borrower activity",
		})
	}
	return patterns, ""
}

// scanCoordinatedTampering flags actors touching an unusual number of
// distinct documents within a short rolling window.
func (d *Detector) scanCoordinatedTampering(_ []flatDoc, events []models.TimelineEvent) ([]models.FraudPattern, string) {
	byActor := make(map[string][]models.TimelineEvent)
	for _, ev := range events {
		if ev.EventType == models.EventModified {
			byActor[ev.ActorID] = append(byActor[ev.ActorID], ev)
		}
	}
	if len(byActor) == 0 {
		return nil, "coordinated_tampering: no modification events in corpus"
	}

	var patterns []models.FraudPattern
	for _, actor := range sortedKeys(byActor) {
		mods := append([]models.TimelineEvent(nil), byActor[actor]...)
		sort.SliceStable(mods, func(i, j int) bool {
			return mods[i].Timestamp.Before(mods[j].Timestamp)
		})

		best := 0
		var bestDocs []string
		lo := 0
		for hi := range mods {
			for mods[hi].Timestamp.Sub(mods[lo].Timestamp) > d.config.TamperingWindow {
				lo++
			}
			docs := make(map[string]bool)
			for i := lo; i <= hi; i++ {
				docs[mods[i].DocumentID] = true
			}
			if len(docs) > best {
				best = len(docs)
				bestDocs = bestDocs[:0]
				for id := range docs {
					bestDocs = append(bestDocs, id)
				}
			}
		}

		if best < d.config.TamperingMinDocs {
			continue
		}
		patterns = append(patterns, models.FraudPattern{
			PatternType:         models.PatternCoordinatedTampering,
			Severity:            models.SeverityHigh,
			AffectedDocumentIDs: distinctSorted(bestDocs),
			AffectedActorIDs:    []string{actor},
			Evidence: map[string]string{
				"window":         d.config.TamperingWindow.String(),
				"document_count": strconv.Itoa(best),
			},
			Recommendation: "Bulk modifications across many documents in one window - suspend actor access pending review",
		})
	}
	return patterns, ""
}

// scanTemplateFraud groups documents by structural hash. Very large groups
// sharing one schema shape point at template-stamped fabrications.
func (d *Detector) scanTemplateFraud(docs []flatDoc, _ []models.TimelineEvent) ([]models.FraudPattern, string) {
	if len(docs) == 0 {
		return nil, "template_fraud: empty corpus"
	}

	groups := make(map[string][]string)
	for _, doc := range docs {
		hash := fingerprint.StructuralHash(doc.Fields)
		groups[hash] = append(groups[hash], doc.DocumentID)
	}

	var patterns []models.FraudPattern
	for _, hash := range sortedKeys(groups) {
		docIDs := distinctSorted(groups[hash])
		if len(docIDs) < d.config.TemplateMinDocs {
			continue
		}
		patterns = append(patterns, models.FraudPattern{
			PatternType:         models.PatternTemplateFraud,
			Severity:            models.SeverityMedium,
			AffectedDocumentIDs: docIDs,
			Evidence: map[string]string{
				"structural_hash": hash[:16],
				"document_count":  strconv.Itoa(len(docIDs)),
			},
			Recommendation: "Large batch of documents sharing one template - sample and verify source data",
		})
	}
	return patterns, ""
}

// scanRapidSubmission finds bot-like runs of document submissions: long
// sequences of created events from one actor with sub-threshold gaps.
// Severity is graded by how machine-consistent the intervals are.
func (d *Detector) scanRapidSubmission(_ []flatDoc, events []models.TimelineEvent) ([]models.FraudPattern, string) {
	byActor := make(map[string][]models.TimelineEvent)
	for _, ev := range events {
		if ev.EventType == models.EventCreated {
			byActor[ev.ActorID] = append(byActor[ev.ActorID], ev)
		}
	}
	if len(byActor) == 0 {
		return nil, "rapid_submission: no creation events in corpus"
	}

	var patterns []models.FraudPattern
	for _, actor := range sortedKeys(byActor) {
		created := append([]models.TimelineEvent(nil), byActor[actor]...)
		sort.SliceStable(created, func(i, j int) bool {
			return created[i].Timestamp.Before(created[j].Timestamp)
		})

		runStart := 0
		for i := 1; i <= len(created); i++ {
			if i < len(created) && created[i].Timestamp.Sub(created[i-1].Timestamp) < d.config.RapidSubmissionInterval {
				continue
			}
			if runLen := i - runStart; runLen >= d.config.RapidSubmissionMinRun {
				patterns = append(patterns, d.rapidSubmissionPattern(actor, created[runStart:i]))
			}
			runStart = i
		}
	}
	return patterns, ""
}

func (d *Detector) rapidSubmissionPattern(actor string, run []models.TimelineEvent) models.FraudPattern {
	intervals := make([]float64, 0, len(run)-1)
	var docIDs []string
	for i, ev := range run {
		docIDs = append(docIDs, ev.DocumentID)
		if i > 0 {
			intervals = append(intervals, ev.Timestamp.Sub(run[i-1].Timestamp).Seconds())
		}
	}

	severity := models.SeverityMedium
	stdDev := stat.StdDev(intervals, nil)
	if time.Duration(stdDev*float64(time.Second)) < d.config.RapidConsistentStdDev {
		// Near-constant inter-arrival gaps are a strong automation signal.
		severity = models.SeverityHigh
	}

	return models.FraudPattern{
		PatternType:         models.PatternRapidSubmission,
		Severity:            severity,
		AffectedDocumentIDs: distinctSorted(docIDs),
		AffectedActorIDs:    []string{actor},
		Evidence: map[string]string{
			"submissions":      strconv.Itoa(len(run)),
			"interval_stddev":  fmt.Sprintf("%.2fs", stdDev),
			"mean_interval":    fmt.Sprintf("%.2fs", stat.Mean(intervals, nil)),
			"first_submission": run[0].Timestamp.Format(time.RFC3339),
		},
		Recommendation: "Submission rate is faster than human data entry - challenge or throttle this actor",
	}
}

// ssnLast4 extracts the trailing four digits of an SSN-like value.
func ssnLast4(value string) string {
	digits := make([]rune, 0, len(value))
	for _, r := range value {
		if unicode.IsDigit(r) {
			digits = append(digits, r)
		}
	}
	if len(digits) < 4 {
		return ""
	}
	return string(digits[len(digits)-4:])
}

// normalizeAddress lowercases, strips punctuation and collapses whitespace
// so trivially reformatted addresses group together.
func normalizeAddress(value string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(value) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case !lastSpace:
			b.WriteRune(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}
