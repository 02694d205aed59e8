// Package extract provides field extraction from free-form patient text.
//
// The extractor is a fallible oracle: it proposes values for missing intake
// fields and omits anything it cannot determine. The engine owns merge and
// idempotency rules; implementations here only propose.
package extract

import (
	"context"
	"errors"

	"github.com/Aniketchurihar/CardioGenie/internal/models"
)

// Error variables for the recoverable extraction failure modes. The engine
// treats both as an empty extraction, never as a conversation-fatal error.
var (
	ErrExtractionTimeout = errors.New("extraction timed out")
	ErrMalformedResponse = errors.New("malformed extraction response")
)

// Extractor proposes values for the given missing fields from a patient
// utterance. Fields that cannot be determined are absent from the result;
// implementations never return guessed placeholders.
type Extractor interface {
	Extract(ctx context.Context, text string, missing []models.Field) (models.FieldMap, error)
}
