// Package models defines the core data structures shared across CardioGenie modules.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// IntakeStatus represents the lifecycle phase of an intake conversation.
type IntakeStatus string

// Intake status constants. The collecting statuses advance strictly forward;
// StatusAbandoned is reachable from any non-terminal status.
const (
	StatusCollectingDemographics IntakeStatus = "collecting_demographics"
	StatusCollectingSymptom      IntakeStatus = "collecting_symptom"
	StatusCollectingFollowUps    IntakeStatus = "collecting_followups"
	StatusComplete               IntakeStatus = "complete"
	StatusAbandoned              IntakeStatus = "abandoned"
)

// statusRank orders the forward-only statuses for monotonicity checks.
var statusRank = map[IntakeStatus]int{
	StatusCollectingDemographics: 0,
	StatusCollectingSymptom:      1,
	StatusCollectingFollowUps:    2,
	StatusComplete:               3,
}

// IsTerminal reports whether the status permits no further transitions.
func (s IntakeStatus) IsTerminal() bool {
	return s == StatusComplete || s == StatusAbandoned
}

// QuestionCategory classifies follow-up questions in the symptom catalog.
type QuestionCategory string

const (
	CategoryDetail    QuestionCategory = "detail"
	CategoryVitalSign QuestionCategory = "vital_sign"
	CategoryRedFlag   QuestionCategory = "red_flag"
)

// QuestionAnswer is one asked follow-up question and the patient's answer.
// Insertion order in IntakeRecord.Answers equals ask order.
type QuestionAnswer struct {
	QuestionID string           `json:"question_id"`
	Question   string           `json:"question"`
	Category   QuestionCategory `json:"category"`
	Answer     string           `json:"answer"`
	AskedAt    time.Time        `json:"asked_at"`
	AnsweredAt time.Time        `json:"answered_at,omitempty"`
}

// IntakeRecord is the accumulating structured representation of one patient
// conversation. It is mutated exclusively by the intake engine.
type IntakeRecord struct {
	ConversationID string `json:"conversation_id"`

	// Demographic fields. Zero value means not provided yet.
	Name   string `json:"name,omitempty"`
	Age    int    `json:"age,omitempty"`
	Gender string `json:"gender,omitempty"`
	Email  string `json:"email,omitempty"`

	// Primary symptom. Once set it never changes for this record; a new
	// chief complaint starts a new record.
	Symptom          string `json:"symptom,omitempty"`
	SymptomUnmatched bool   `json:"symptom_unmatched,omitempty"`

	// PendingSymptom holds a symptom candidate extracted before the record
	// was ready to accept it (e.g. mentioned during demographics, or
	// awaiting clarification).
	PendingSymptom string `json:"pending_symptom,omitempty"`

	Answers        []QuestionAnswer         `json:"answers,omitempty"`
	Asked          map[string]bool          `json:"asked,omitempty"`
	CategoryCounts map[QuestionCategory]int `json:"category_counts,omitempty"`

	// DemographicTurns counts consecutive demographic turns that ended
	// without a name, driving the bounded-retry guard.
	DemographicTurns   int  `json:"demographic_turns,omitempty"`
	ClarificationAsked bool `json:"clarification_asked,omitempty"`

	// PendingQuestionID identifies the follow-up question awaiting an
	// answer; PendingField names the demographic field the latest prompt
	// asked for (the correction path).
	PendingQuestionID string `json:"pending_question_id,omitempty"`
	PendingField      Field  `json:"pending_field,omitempty"`

	Status        IntakeStatus `json:"status"`
	AbandonReason string       `json:"abandon_reason,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewIntakeRecord creates a fresh record in the demographics phase.
func NewIntakeRecord(conversationID string) *IntakeRecord {
	now := time.Now()
	return &IntakeRecord{
		ConversationID: conversationID,
		Status:         StatusCollectingDemographics,
		Asked:          make(map[string]bool),
		CategoryCounts: make(map[QuestionCategory]int),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Advance transitions the record to the next status, enforcing that status
// only moves forward. Terminal statuses reject any transition.
func (r *IntakeRecord) Advance(next IntakeStatus) error {
	if r.Status.IsTerminal() {
		return fmt.Errorf("%w: record %s is %s", ErrTerminalStatus, r.ConversationID, r.Status)
	}
	if next == StatusAbandoned {
		r.Status = StatusAbandoned
		r.UpdatedAt = time.Now()
		return nil
	}
	cur, ok := statusRank[r.Status]
	nxt, nok := statusRank[next]
	if !ok || !nok || nxt <= cur {
		return fmt.Errorf("%w: %s -> %s", ErrBackwardTransition, r.Status, next)
	}
	r.Status = next
	if next == StatusComplete && r.CompletedAt == nil {
		now := time.Now()
		r.CompletedAt = &now
	}
	r.UpdatedAt = time.Now()
	return nil
}

// SetSymptom records the primary symptom. A second call with a different
// value is rejected; the chief complaint is immutable within a record.
func (r *IntakeRecord) SetSymptom(symptom string, unmatched bool) error {
	if r.Symptom != "" && r.Symptom != symptom {
		return fmt.Errorf("%w: %q already set, rejecting %q", ErrSymptomImmutable, r.Symptom, symptom)
	}
	r.Symptom = symptom
	r.SymptomUnmatched = unmatched
	r.PendingSymptom = ""
	r.UpdatedAt = time.Now()
	return nil
}

// MarkAsked records a follow-up question into the asked set before it is
// emitted, so a duplicate inbound delivery cannot ask it twice.
func (r *IntakeRecord) MarkAsked(questionID, question string, category QuestionCategory) error {
	if r.Asked[questionID] {
		return fmt.Errorf("%w: %s", ErrQuestionRepeated, questionID)
	}
	if r.Asked == nil {
		r.Asked = make(map[string]bool)
	}
	if r.CategoryCounts == nil {
		r.CategoryCounts = make(map[QuestionCategory]int)
	}
	r.Asked[questionID] = true
	r.CategoryCounts[category]++
	r.PendingQuestionID = questionID
	r.Answers = append(r.Answers, QuestionAnswer{
		QuestionID: questionID,
		Question:   question,
		Category:   category,
		AskedAt:    time.Now(),
	})
	r.UpdatedAt = time.Now()
	return nil
}

// RecordAnswer attaches the patient's reply to the pending follow-up
// question, if one exists. Returns true when an answer was recorded.
func (r *IntakeRecord) RecordAnswer(answer string) bool {
	if r.PendingQuestionID == "" {
		return false
	}
	for i := len(r.Answers) - 1; i >= 0; i-- {
		if r.Answers[i].QuestionID == r.PendingQuestionID {
			r.Answers[i].Answer = answer
			r.Answers[i].AnsweredAt = time.Now()
			r.PendingQuestionID = ""
			r.UpdatedAt = time.Now()
			return true
		}
	}
	r.PendingQuestionID = ""
	return false
}

// AnsweredCount returns how many follow-up questions have been answered.
func (r *IntakeRecord) AnsweredCount() int {
	n := 0
	for _, qa := range r.Answers {
		if qa.Answer != "" {
			n++
		}
	}
	return n
}

// Snapshot produces the read-only completion payload handed to
// notification collaborators.
func (r *IntakeRecord) Snapshot() IntakeSnapshot {
	answers := make([]QuestionAnswer, len(r.Answers))
	copy(answers, r.Answers)
	return IntakeSnapshot{
		ConversationID:   r.ConversationID,
		Name:             r.Name,
		Age:              r.Age,
		Gender:           r.Gender,
		Email:            r.Email,
		Symptom:          r.Symptom,
		SymptomUnmatched: r.SymptomUnmatched,
		Answers:          answers,
		CreatedAt:        r.CreatedAt,
		CompletedAt:      r.CompletedAt,
	}
}

// ToJSON serializes the record for state storage.
func (r *IntakeRecord) ToJSON() (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to marshal intake record: %w", err)
	}
	return string(data), nil
}

// FromJSON deserializes a record from state storage.
func (r *IntakeRecord) FromJSON(jsonStr string) error {
	if err := json.Unmarshal([]byte(jsonStr), r); err != nil {
		return fmt.Errorf("failed to unmarshal intake record: %w", err)
	}
	return nil
}

// IntakeSnapshot is the immutable view of a finished intake handed to
// downstream collaborators (doctor alert, appointment scheduling).
type IntakeSnapshot struct {
	ConversationID   string           `json:"conversation_id"`
	Name             string           `json:"name,omitempty"`
	Age              int              `json:"age,omitempty"`
	Gender           string           `json:"gender,omitempty"`
	Email            string           `json:"email,omitempty"`
	Symptom          string           `json:"symptom,omitempty"`
	SymptomUnmatched bool             `json:"symptom_unmatched,omitempty"`
	Answers          []QuestionAnswer `json:"answers"`
	CreatedAt        time.Time        `json:"created_at"`
	CompletedAt      *time.Time       `json:"completed_at,omitempty"`
}
