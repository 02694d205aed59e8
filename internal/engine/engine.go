// Package engine implements the intake dialogue engine: the state machine
// that owns one conversation's record, merges extractor output across turns,
// selects follow-up questions, and decides when the intake is complete.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/Aniketchurihar/CardioGenie/internal/catalog"
	"github.com/Aniketchurihar/CardioGenie/internal/extract"
	"github.com/Aniketchurihar/CardioGenie/internal/models"
	"github.com/Aniketchurihar/CardioGenie/internal/notify"
	"github.com/Aniketchurihar/CardioGenie/internal/store"
)

// Policy defaults. All of them are overridable via options.
const (
	DefaultMinFollowUps            = 2
	DefaultDemographicRetryCap     = 2
	DefaultMaxQuestionsPerCategory = 2
	DefaultExtractionTimeout       = 10 * time.Second
)

// Patient-facing prompts for the phases before catalog questions take over.
// Their ids are stable for clients but never enter the asked-question set,
// which tracks catalog questions only.
const (
	Greeting = "Hello! I'm CardioGenie, your cardiology intake assistant. To get started, could you tell me your name and an email address where we can reach you?"

	promptEmail   = "Could you share an email address where we can reach you?"
	promptName    = "Thanks! And what name should we use for you?"
	promptSymptom = "What symptoms are bringing you in today?"
	promptClarify = "I want to make sure I understand. Could you describe your main symptom in a few words, for example \"chest pain\" or \"shortness of breath\"?"
)

// Opts holds configuration options for the engine.
type Opts struct {
	MinFollowUps            int
	DemographicRetryCap     int
	MaxQuestionsPerCategory int
	ExtractionTimeout       time.Duration
	Notifier                notify.Notifier
}

// Option defines a configuration option for the engine.
type Option func(*Opts)

// WithMinFollowUps sets how many follow-up answers complete the intake.
func WithMinFollowUps(n int) Option {
	return func(o *Opts) {
		o.MinFollowUps = n
	}
}

// WithDemographicRetryCap sets how many nameless demographic turns are
// tolerated before the engine proceeds with what it has.
func WithDemographicRetryCap(n int) Option {
	return func(o *Opts) {
		o.DemographicRetryCap = n
	}
}

// WithMaxQuestionsPerCategory bounds how many questions of one category are
// asked for a single symptom.
func WithMaxQuestionsPerCategory(n int) Option {
	return func(o *Opts) {
		o.MaxQuestionsPerCategory = n
	}
}

// WithExtractionTimeout bounds a single extractor call.
func WithExtractionTimeout(d time.Duration) Option {
	return func(o *Opts) {
		o.ExtractionTimeout = d
	}
}

// WithNotifier sets the completion notifier. Defaults to the log notifier.
func WithNotifier(n notify.Notifier) Option {
	return func(o *Opts) {
		o.Notifier = n
	}
}

// Engine drives intake conversations. Operations on a single conversation id
// are serialized by a keyed lock; distinct ids run fully in parallel.
type Engine struct {
	store     store.Store
	extractor extract.Extractor
	catalog   *catalog.Catalog
	notifier  notify.Notifier
	locks     *keyedLocker

	minFollowUps        int
	demographicRetryCap int
	maxPerCategory      int
	extractionTimeout   time.Duration
}

// NewEngine creates an intake engine on top of the given store, extractor
// and symptom catalog.
func NewEngine(st store.Store, ex extract.Extractor, cat *catalog.Catalog, opts ...Option) (*Engine, error) {
	cfg := Opts{
		MinFollowUps:            DefaultMinFollowUps,
		DemographicRetryCap:     DefaultDemographicRetryCap,
		MaxQuestionsPerCategory: DefaultMaxQuestionsPerCategory,
		ExtractionTimeout:       DefaultExtractionTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewEngine invoked", "minFollowUps", cfg.MinFollowUps,
		"demographicRetryCap", cfg.DemographicRetryCap, "maxPerCategory", cfg.MaxQuestionsPerCategory)

	if st == nil || ex == nil || cat == nil {
		return nil, fmt.Errorf("store, extractor and catalog are required")
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notify.NewLogNotifier()
	}
	return &Engine{
		store:               st,
		extractor:           ex,
		catalog:             cat,
		notifier:            notifier,
		locks:               newKeyedLocker(),
		minFollowUps:        cfg.MinFollowUps,
		demographicRetryCap: cfg.DemographicRetryCap,
		maxPerCategory:      cfg.MaxQuestionsPerCategory,
		extractionTimeout:   cfg.ExtractionTimeout,
	}, nil
}

// StartConversation creates the record for a new conversation id and returns
// the opening prompt. Calling it again for a known id returns the same prompt
// without touching the record.
func (e *Engine) StartConversation(ctx context.Context, conversationID string) (string, error) {
	if conversationID == "" {
		return "", models.ErrEmptyConversationID
	}
	e.locks.lock(conversationID)
	defer e.locks.unlock(conversationID)

	rec, err := e.store.GetIntakeRecord(conversationID)
	if err != nil {
		return "", fmt.Errorf("failed to load record for %s: %w", conversationID, err)
	}
	if rec == nil {
		rec = models.NewIntakeRecord(conversationID)
		if err := e.store.SaveIntakeRecord(*rec); err != nil {
			return "", fmt.Errorf("failed to save record for %s: %w", conversationID, err)
		}
		slog.Debug("Engine.StartConversation: created record", "conversationID", conversationID)
	}
	return Greeting, nil
}

// ProcessMessage runs one turn of the intake state machine: load the record
// (creating it for an unseen id), extract and merge fields, advance status,
// and emit exactly one action. A complete or abandoned record is never
// mutated; the call returns the terminal action again.
func (e *Engine) ProcessMessage(ctx context.Context, conversationID, text string) (models.EngineAction, error) {
	if conversationID == "" {
		return models.EngineAction{}, models.ErrEmptyConversationID
	}
	e.locks.lock(conversationID)
	defer e.locks.unlock(conversationID)

	rec, err := e.store.GetIntakeRecord(conversationID)
	if err != nil {
		return models.EngineAction{}, fmt.Errorf("failed to load record for %s: %w", conversationID, err)
	}
	if rec == nil {
		rec = models.NewIntakeRecord(conversationID)
		slog.Debug("Engine.ProcessMessage: created record", "conversationID", conversationID)
	}

	switch rec.Status {
	case models.StatusComplete:
		slog.Debug("Engine.ProcessMessage: record already complete", "conversationID", conversationID)
		return models.CompleteAction(rec.Snapshot()), nil
	case models.StatusAbandoned:
		slog.Debug("Engine.ProcessMessage: record already abandoned", "conversationID", conversationID)
		return models.AbandonedAction(rec.AbandonReason), nil
	}

	text = strings.TrimSpace(text)
	if rec.Status == models.StatusCollectingFollowUps && text != "" {
		rec.RecordAnswer(text)
	}

	fields := e.extractFields(ctx, rec, text)
	pendingField := rec.PendingField
	rec.PendingField = ""
	e.mergeFields(rec, fields, pendingField)

	action, err := e.advance(ctx, rec, fields, text, pendingField)
	if err != nil {
		return models.EngineAction{}, err
	}
	if err := e.store.SaveIntakeRecord(*rec); err != nil {
		return models.EngineAction{}, fmt.Errorf("failed to save record for %s: %w", conversationID, err)
	}
	slog.Debug("Engine.ProcessMessage: turn processed", "conversationID", conversationID,
		"status", rec.Status, "action", action.Type, "questionID", action.QuestionID)
	return action, nil
}

// Abandon terminates a conversation on an external cancel or idle-timeout
// signal. The engine holds no timers; the transport decides when to call
// this. An unknown id is a caller bug and returns ErrUnknownConversation.
func (e *Engine) Abandon(ctx context.Context, conversationID, reason string) (models.EngineAction, error) {
	if conversationID == "" {
		return models.EngineAction{}, models.ErrEmptyConversationID
	}
	e.locks.lock(conversationID)
	defer e.locks.unlock(conversationID)

	rec, err := e.store.GetIntakeRecord(conversationID)
	if err != nil {
		return models.EngineAction{}, fmt.Errorf("failed to load record for %s: %w", conversationID, err)
	}
	if rec == nil {
		slog.Error("Engine.Abandon: unknown conversation", "conversationID", conversationID)
		return models.EngineAction{}, fmt.Errorf("%w: %s", models.ErrUnknownConversation, conversationID)
	}

	switch rec.Status {
	case models.StatusComplete:
		return models.CompleteAction(rec.Snapshot()), nil
	case models.StatusAbandoned:
		return models.AbandonedAction(rec.AbandonReason), nil
	}

	if reason == "" {
		reason = "abandoned by caller"
	}
	if err := rec.Advance(models.StatusAbandoned); err != nil {
		return models.EngineAction{}, err
	}
	rec.AbandonReason = reason
	if err := e.store.SaveIntakeRecord(*rec); err != nil {
		return models.EngineAction{}, fmt.Errorf("failed to save record for %s: %w", conversationID, err)
	}
	slog.Info("Engine.Abandon: conversation abandoned", "conversationID", conversationID, "reason", reason)
	return models.AbandonedAction(reason), nil
}

// GetRecord returns the current record for a known conversation id.
func (e *Engine) GetRecord(conversationID string) (*models.IntakeRecord, error) {
	rec, err := e.store.GetIntakeRecord(conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load record for %s: %w", conversationID, err)
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownConversation, conversationID)
	}
	return rec, nil
}

// extractFields runs the extractor over the message with a bounded timeout.
// Extraction failure degrades to an empty result; the conversation always
// makes forward progress.
func (e *Engine) extractFields(ctx context.Context, rec *models.IntakeRecord, text string) models.FieldMap {
	if text == "" {
		return models.FieldMap{}
	}
	missing := missingFields(rec)
	if len(missing) == 0 {
		return models.FieldMap{}
	}
	ectx, cancel := context.WithTimeout(ctx, e.extractionTimeout)
	defer cancel()
	fields, err := e.extractor.Extract(ectx, text, missing)
	if err != nil {
		slog.Warn("Engine.extractFields: extraction failed, continuing with empty result",
			"error", err, "conversationID", rec.ConversationID)
		return models.FieldMap{}
	}
	if fields == nil {
		fields = models.FieldMap{}
	}
	return fields
}

// mergeFields applies extractor output field by field. A field that is
// already provided is never overwritten, unless it was the subject of the
// latest prompt (the correction path).
func (e *Engine) mergeFields(rec *models.IntakeRecord, fields models.FieldMap, pendingField models.Field) {
	for field, value := range fields {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		switch field {
		case models.FieldName:
			if rec.Name == "" || pendingField == models.FieldName {
				rec.Name = value
			}
		case models.FieldAge:
			age, err := strconv.Atoi(value)
			if err != nil || age <= 0 || age > 120 {
				continue
			}
			if rec.Age == 0 || pendingField == models.FieldAge {
				rec.Age = age
			}
		case models.FieldGender:
			if rec.Gender == "" || pendingField == models.FieldGender {
				rec.Gender = strings.ToLower(value)
			}
		case models.FieldEmail:
			if rec.Email == "" || pendingField == models.FieldEmail {
				rec.Email = value
			}
		case models.FieldSymptom:
			// The symptom itself is immutable once set; candidates are
			// parked until the record is ready to accept one.
			if rec.Symptom == "" {
				rec.PendingSymptom = value
			}
		}
	}
}

// advance re-evaluates status after the merge and emits the turn's single
// action. Phases cascade: a rich first message can move the record from
// demographics through symptom matching to the first follow-up question.
func (e *Engine) advance(ctx context.Context, rec *models.IntakeRecord, fields models.FieldMap, text string, pendingField models.Field) (models.EngineAction, error) {
	if rec.Status == models.StatusCollectingDemographics {
		if rec.Email != "" && (rec.Name != "" || rec.DemographicTurns >= e.demographicRetryCap) {
			if err := rec.Advance(models.StatusCollectingSymptom); err != nil {
				return models.EngineAction{}, err
			}
		} else {
			if rec.Name == "" {
				rec.DemographicTurns++
			}
			if rec.Email == "" {
				rec.PendingField = models.FieldEmail
				return models.AskAction("ask_email", promptEmail), nil
			}
			rec.PendingField = models.FieldName
			return models.AskAction("ask_name", promptName), nil
		}
	}

	if rec.Status == models.StatusCollectingSymptom {
		candidate := fields[models.FieldSymptom]
		if candidate == "" && pendingField == models.FieldSymptom {
			candidate = text
		}
		if candidate == "" {
			candidate = rec.PendingSymptom
		}
		if candidate == "" {
			rec.PendingField = models.FieldSymptom
			return models.AskAction("ask_symptom", promptSymptom), nil
		}

		entry, ok := e.catalog.Lookup(candidate)
		switch {
		case ok:
			if err := rec.SetSymptom(entry.Symptom, false); err != nil {
				return models.EngineAction{}, err
			}
		case !rec.ClarificationAsked:
			// One clarification round, then the next attempt is accepted
			// verbatim and falls through to the generic follow-up set.
			rec.ClarificationAsked = true
			rec.PendingSymptom = candidate
			rec.PendingField = models.FieldSymptom
			return models.AskAction("clarify_symptom", promptClarify), nil
		default:
			if err := rec.SetSymptom(candidate, true); err != nil {
				return models.EngineAction{}, err
			}
		}
		if err := rec.Advance(models.StatusCollectingFollowUps); err != nil {
			return models.EngineAction{}, err
		}
	}

	if rec.Status == models.StatusCollectingFollowUps {
		if rec.AnsweredCount() >= e.minFollowUps {
			return e.complete(ctx, rec)
		}
		q, ok := e.nextQuestion(rec)
		if !ok {
			// Category exhaustion completes the intake, it never stalls.
			return e.complete(ctx, rec)
		}
		if err := rec.MarkAsked(q.ID, q.Text, q.Category); err != nil {
			return models.EngineAction{}, err
		}
		return models.AskAction(q.ID, q.Text), nil
	}

	return models.EngineAction{}, fmt.Errorf("unexpected status %s for %s", rec.Status, rec.ConversationID)
}

// complete transitions the record to its terminal state and hands the
// snapshot to the notifier. Notifier failures are logged, never surfaced to
// the patient and never block completion.
func (e *Engine) complete(ctx context.Context, rec *models.IntakeRecord) (models.EngineAction, error) {
	if err := rec.Advance(models.StatusComplete); err != nil {
		return models.EngineAction{}, err
	}
	snapshot := rec.Snapshot()
	if err := e.notifier.NotifyComplete(ctx, snapshot); err != nil {
		slog.Warn("Engine.complete: notifier failed", "error", err, "conversationID", rec.ConversationID)
	}
	slog.Info("Engine.complete: intake complete", "conversationID", rec.ConversationID,
		"symptom", rec.Symptom, "answers", len(snapshot.Answers))
	return models.CompleteAction(snapshot), nil
}

// nextQuestion picks the highest-priority not-yet-asked question for the
// active symptom. Red-flag questions jump the queue when a red-flag trigger
// appears in a prior answer.
func (e *Engine) nextQuestion(rec *models.IntakeRecord) (catalog.Question, bool) {
	questions, triggers := e.activeQuestions(rec)

	order := []models.QuestionCategory{models.CategoryDetail, models.CategoryVitalSign, models.CategoryRedFlag}
	if redFlagTriggered(rec, triggers) {
		order = []models.QuestionCategory{models.CategoryRedFlag, models.CategoryDetail, models.CategoryVitalSign}
	}

	for _, cat := range order {
		if rec.CategoryCounts[cat] >= e.maxPerCategory {
			continue
		}
		for _, q := range questions {
			if q.Category != cat || rec.Asked[q.ID] {
				continue
			}
			return q, true
		}
	}
	return catalog.Question{}, false
}

// activeQuestions returns the candidate list for the record's symptom: the
// catalog entry's questions for a matched symptom, the generic set otherwise.
func (e *Engine) activeQuestions(rec *models.IntakeRecord) ([]catalog.Question, []string) {
	if rec.SymptomUnmatched {
		return e.catalog.Generic(), nil
	}
	entry, ok := e.catalog.Lookup(rec.Symptom)
	if !ok {
		return e.catalog.Generic(), nil
	}
	return entry.Questions, entry.RedFlagTriggers
}

func redFlagTriggered(rec *models.IntakeRecord, triggers []string) bool {
	if len(triggers) == 0 {
		return false
	}
	for _, qa := range rec.Answers {
		if qa.Answer == "" {
			continue
		}
		answer := catalog.Normalize(qa.Answer)
		for _, trigger := range triggers {
			if strings.Contains(answer, catalog.Normalize(trigger)) {
				return true
			}
		}
	}
	return false
}

func missingFields(rec *models.IntakeRecord) []models.Field {
	var missing []models.Field
	if rec.Name == "" {
		missing = append(missing, models.FieldName)
	}
	if rec.Age == 0 {
		missing = append(missing, models.FieldAge)
	}
	if rec.Gender == "" {
		missing = append(missing, models.FieldGender)
	}
	if rec.Email == "" {
		missing = append(missing, models.FieldEmail)
	}
	if rec.Symptom == "" {
		missing = append(missing, models.FieldSymptom)
	}
	return missing
}
