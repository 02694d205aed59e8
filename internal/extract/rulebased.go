package extract

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/Aniketchurihar/CardioGenie/internal/models"
)

// RuleBased is the deterministic extractor. It keeps the state machine's
// correctness tests independent of model output and doubles as a degraded
// mode when no API key is configured.
type RuleBased struct {
	// symptomTerms are matched case-insensitively against the message; the
	// first hit becomes the symptom field, in the patient's words.
	symptomTerms []string
}

// NewRuleBased creates a rule-based extractor. symptomTerms usually come
// from the catalog's symptom names and synonyms.
func NewRuleBased(symptomTerms []string) *RuleBased {
	terms := make([]string, len(symptomTerms))
	for i, t := range symptomTerms {
		terms[i] = strings.ToLower(t)
	}
	return &RuleBased{symptomTerms: terms}
}

var (
	emailRe  = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	nameRe   = regexp.MustCompile(`(?:[Mm]y name is|[Ii] am|[Ii]'m|[Tt]his is)\s+([A-Z][a-zA-Z'\-]+(?:\s+[A-Z][a-zA-Z'\-]+)?)`)
	ageRe    = regexp.MustCompile(`\b([1-9][0-9]?|1[01][0-9])\b`)
	femaleRe = regexp.MustCompile(`(?i)\b(female|woman|girl)\b`)
	maleRe   = regexp.MustCompile(`(?i)\b(male|man|boy|guy)\b`)
)

// Extract implements Extractor with regular expressions and keyword lists.
func (r *RuleBased) Extract(_ context.Context, text string, missing []models.Field) (models.FieldMap, error) {
	fields := models.FieldMap{}
	lower := strings.ToLower(text)

	for _, field := range missing {
		switch field {
		case models.FieldEmail:
			if m := emailRe.FindString(text); m != "" {
				fields[models.FieldEmail] = m
			}
		case models.FieldName:
			if m := nameRe.FindStringSubmatch(text); m != nil {
				fields[models.FieldName] = m[1]
			}
		case models.FieldAge:
			// Strip the email first so digits in addresses are not read as an age.
			stripped := emailRe.ReplaceAllString(text, "")
			if m := ageRe.FindString(stripped); m != "" {
				if age, err := strconv.Atoi(m); err == nil && age >= 1 && age < 120 {
					fields[models.FieldAge] = m
				}
			}
		case models.FieldGender:
			if femaleRe.MatchString(text) {
				fields[models.FieldGender] = "Female"
			} else if maleRe.MatchString(text) {
				fields[models.FieldGender] = "Male"
			}
		case models.FieldSymptom:
			for _, term := range r.symptomTerms {
				if strings.Contains(lower, term) {
					fields[models.FieldSymptom] = term
					break
				}
			}
		}
	}
	return fields, nil
}
