package extract

import (
	"context"
	"testing"

	"github.com/Aniketchurihar/CardioGenie/internal/models"
)

func newTestRuleBased() *RuleBased {
	return NewRuleBased([]string{"chest pain", "shortness of breath", "palpitations", "dizziness"})
}

func TestRuleBased_SingleRichMessage(t *testing.T) {
	r := newTestRuleBased()
	fields, err := r.Extract(context.Background(), "I'm John, 28, male, john@example.com, chest pain", allFields())
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	want := models.FieldMap{
		models.FieldName:    "John",
		models.FieldAge:     "28",
		models.FieldGender:  "Male",
		models.FieldEmail:   "john@example.com",
		models.FieldSymptom: "chest pain",
	}
	if len(fields) != len(want) {
		t.Errorf("expected %d fields, got %v", len(want), fields)
	}
	for k, v := range want {
		if fields[k] != v {
			t.Errorf("field %s: expected %q, got %q", k, v, fields[k])
		}
	}
}

func TestRuleBased_OmitsUndeterminedFields(t *testing.T) {
	r := newTestRuleBased()
	fields, err := r.Extract(context.Background(), "hello there", allFields())
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(fields) != 0 {
		t.Errorf("expected no fields from a greeting, got %v", fields)
	}
}

func TestRuleBased_FemaleNotShadowedByMale(t *testing.T) {
	r := newTestRuleBased()
	fields, err := r.Extract(context.Background(), "I am a 63 year old female", []models.Field{models.FieldGender, models.FieldAge})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if fields[models.FieldGender] != "Female" {
		t.Errorf("expected Female, got %q", fields[models.FieldGender])
	}
	if fields[models.FieldAge] != "63" {
		t.Errorf("expected age 63, got %q", fields[models.FieldAge])
	}
}

func TestRuleBased_EmailDigitsNotAnAge(t *testing.T) {
	r := newTestRuleBased()
	fields, err := r.Extract(context.Background(), "reach me at jane99@example.com", []models.Field{models.FieldAge, models.FieldEmail})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if fields[models.FieldEmail] != "jane99@example.com" {
		t.Errorf("expected email, got %q", fields[models.FieldEmail])
	}
	if _, ok := fields[models.FieldAge]; ok {
		t.Errorf("digits inside the email must not be read as an age, got %q", fields[models.FieldAge])
	}
}

func TestRuleBased_OnlyMissingFieldsConsidered(t *testing.T) {
	r := newTestRuleBased()
	fields, err := r.Extract(context.Background(), "I'm John, john@example.com", []models.Field{models.FieldEmail})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if _, ok := fields[models.FieldName]; ok {
		t.Error("name was not missing and must not be extracted")
	}
}
