package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/Aniketchurihar/CardioGenie/internal/catalog"
	"github.com/Aniketchurihar/CardioGenie/internal/models"
	"github.com/Aniketchurihar/CardioGenie/internal/store"
)

// mapExtractor returns a scripted field map per exact message text, standing
// in for the LLM-backed extractor.
type mapExtractor struct {
	byText map[string]models.FieldMap
}

func (m *mapExtractor) Extract(_ context.Context, text string, _ []models.Field) (models.FieldMap, error) {
	return m.byText[text], nil
}

// failingExtractor simulates a persistently broken oracle.
type failingExtractor struct{}

func (failingExtractor) Extract(context.Context, string, []models.Field) (models.FieldMap, error) {
	return nil, errors.New("provider unavailable")
}

type countingNotifier struct {
	mu    sync.Mutex
	calls int
	last  models.IntakeSnapshot
}

func (n *countingNotifier) NotifyComplete(_ context.Context, snap models.IntakeSnapshot) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	n.last = snap
	return nil
}

func (n *countingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}

func richFields() models.FieldMap {
	return models.FieldMap{
		models.FieldName:    "John",
		models.FieldAge:     "28",
		models.FieldGender:  "male",
		models.FieldEmail:   "john@example.com",
		models.FieldSymptom: "chest pain",
	}
}

func newTestEngine(t *testing.T, byText map[string]models.FieldMap, opts ...Option) (*Engine, *store.InMemoryStore, *countingNotifier) {
	t.Helper()
	cat, err := catalog.New()
	if err != nil {
		t.Fatalf("catalog.New failed: %v", err)
	}
	st := store.NewInMemoryStore()
	notifier := &countingNotifier{}
	opts = append([]Option{WithNotifier(notifier)}, opts...)
	eng, err := NewEngine(st, &mapExtractor{byText: byText}, cat, opts...)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return eng, st, notifier
}

func mustProcess(t *testing.T, eng *Engine, id, text string) models.EngineAction {
	t.Helper()
	action, err := eng.ProcessMessage(context.Background(), id, text)
	if err != nil {
		t.Fatalf("ProcessMessage(%q) failed: %v", text, err)
	}
	return action
}

func TestSingleRichMessage_CascadesToFirstFollowUp(t *testing.T) {
	msg := "I'm John, 28, male, john@example.com, chest pain"
	eng, st, _ := newTestEngine(t, map[string]models.FieldMap{msg: richFields()})

	action := mustProcess(t, eng, "conv-1", msg)
	if action.Type != models.ActionAsk {
		t.Fatalf("expected ask action, got %s", action.Type)
	}
	if action.QuestionID != "cp_onset" {
		t.Errorf("expected first chest pain detail question, got %q", action.QuestionID)
	}

	rec, err := st.GetIntakeRecord("conv-1")
	if err != nil || rec == nil {
		t.Fatalf("record not persisted: %v", err)
	}
	if rec.Status != models.StatusCollectingFollowUps {
		t.Errorf("expected status %s, got %s", models.StatusCollectingFollowUps, rec.Status)
	}
	if rec.Name != "John" || rec.Age != 28 || rec.Gender != "male" ||
		rec.Email != "john@example.com" || rec.Symptom != "chest pain" {
		t.Errorf("fields not merged in one turn: %+v", rec)
	}
	if rec.SymptomUnmatched {
		t.Error("catalog match flagged as unmatched")
	}
}

func TestDemographicRetryCap_AdvancesOnThirdTurn(t *testing.T) {
	eng, st, _ := newTestEngine(t, map[string]models.FieldMap{
		"my email is jane@example.com": {models.FieldEmail: "jane@example.com"},
	})

	action := mustProcess(t, eng, "conv-1", "my email is jane@example.com")
	if action.QuestionID != "ask_name" {
		t.Fatalf("turn 1: expected name prompt, got %q", action.QuestionID)
	}
	action = mustProcess(t, eng, "conv-1", "rather not say")
	if action.QuestionID != "ask_name" {
		t.Fatalf("turn 2: expected name prompt again, got %q", action.QuestionID)
	}
	action = mustProcess(t, eng, "conv-1", "please just continue")
	if action.QuestionID != "ask_symptom" {
		t.Fatalf("turn 3: expected symptom prompt after retry cap, got %q", action.QuestionID)
	}

	rec, _ := st.GetIntakeRecord("conv-1")
	if rec.Status != models.StatusCollectingSymptom {
		t.Errorf("expected status %s, got %s", models.StatusCollectingSymptom, rec.Status)
	}
	if rec.Name != "" {
		t.Errorf("name unexpectedly set: %q", rec.Name)
	}
}

func TestUnmatchedSymptom_OneClarificationThenGenericFallback(t *testing.T) {
	eng, st, _ := newTestEngine(t, map[string]models.FieldMap{
		"Jane, jane@example.com": {models.FieldName: "Jane", models.FieldEmail: "jane@example.com"},
		"a weird fluttery thing": {models.FieldSymptom: "a weird fluttery thing"},
		"still hard to describe": {models.FieldSymptom: "still hard to describe"},
	})

	action := mustProcess(t, eng, "conv-1", "Jane, jane@example.com")
	if action.QuestionID != "ask_symptom" {
		t.Fatalf("expected symptom prompt, got %q", action.QuestionID)
	}
	action = mustProcess(t, eng, "conv-1", "a weird fluttery thing")
	if action.QuestionID != "clarify_symptom" {
		t.Fatalf("expected one clarification, got %q", action.QuestionID)
	}
	// The second attempt is accepted regardless of content.
	action = mustProcess(t, eng, "conv-1", "still hard to describe")
	if action.Type != models.ActionAsk || action.QuestionID != "gen_onset" {
		t.Fatalf("expected first generic follow-up, got %s %q", action.Type, action.QuestionID)
	}

	rec, _ := st.GetIntakeRecord("conv-1")
	if !rec.SymptomUnmatched {
		t.Error("accepted symptom not flagged as unmatched")
	}
	if rec.Symptom != "still hard to describe" {
		t.Errorf("unexpected accepted symptom %q", rec.Symptom)
	}
	if !rec.ClarificationAsked {
		t.Error("clarification flag not set")
	}
}

func TestZeroQuestionEntry_CompletesImmediately(t *testing.T) {
	data := []byte(`{
		"symptoms": [
			{"symptom": "medication review", "synonyms": [], "red_flag_triggers": [], "questions": []}
		],
		"generic": [
			{"id": "gen_onset", "text": "When did this start?", "category": "detail"}
		]
	}`)
	cat, err := catalog.New(catalog.WithDataset(data))
	if err != nil {
		t.Fatalf("catalog.New failed: %v", err)
	}
	st := store.NewInMemoryStore()
	notifier := &countingNotifier{}
	msg := "John, john@example.com, medication review"
	eng, err := NewEngine(st, &mapExtractor{byText: map[string]models.FieldMap{
		msg: {
			models.FieldName:    "John",
			models.FieldEmail:   "john@example.com",
			models.FieldSymptom: "medication review",
		},
	}}, cat, WithNotifier(notifier))
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	action, err := eng.ProcessMessage(context.Background(), "conv-1", msg)
	if err != nil {
		t.Fatalf("ProcessMessage failed: %v", err)
	}
	if action.Type != models.ActionComplete {
		t.Fatalf("expected completion, got %s", action.Type)
	}
	if len(action.Snapshot.Answers) != 0 {
		t.Errorf("expected empty Q&A list, got %d entries", len(action.Snapshot.Answers))
	}
	if notifier.count() != 1 {
		t.Errorf("expected exactly one notification, got %d", notifier.count())
	}
}

func TestCompletion_TerminalAndIdempotent(t *testing.T) {
	msg := "I'm John, 28, male, john@example.com, chest pain"
	eng, st, notifier := newTestEngine(t, map[string]models.FieldMap{msg: richFields()})

	mustProcess(t, eng, "conv-1", msg)                          // asks cp_onset
	mustProcess(t, eng, "conv-1", "it started two days ago")    // asks cp_character
	action := mustProcess(t, eng, "conv-1", "a dull tightness") // second answer completes
	if action.Type != models.ActionComplete {
		t.Fatalf("expected completion after two answers, got %s %q", action.Type, action.QuestionID)
	}
	if notifier.count() != 1 {
		t.Fatalf("expected exactly one notification, got %d", notifier.count())
	}

	before, _ := st.GetIntakeRecord("conv-1")
	beforeJSON, err := before.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON failed: %v", err)
	}

	again := mustProcess(t, eng, "conv-1", "hello again")
	if again.Type != models.ActionComplete {
		t.Fatalf("expected terminal completion, got %s", again.Type)
	}
	if again.Snapshot.ConversationID != action.Snapshot.ConversationID ||
		len(again.Snapshot.Answers) != len(action.Snapshot.Answers) {
		t.Error("repeat call returned a different snapshot")
	}
	if notifier.count() != 1 {
		t.Errorf("notification fired again on a complete record: %d", notifier.count())
	}

	after, _ := st.GetIntakeRecord("conv-1")
	afterJSON, err := after.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON failed: %v", err)
	}
	if beforeJSON != afterJSON {
		t.Error("persisted record mutated by a post-completion message")
	}
}

func TestNoDuplicateQuestions_ExhaustionCompletes(t *testing.T) {
	msg := "I'm John, 28, male, john@example.com, chest pain"
	// Raised caps force the engine through the whole candidate list.
	eng, _, _ := newTestEngine(t, map[string]models.FieldMap{msg: richFields()},
		WithMinFollowUps(50), WithMaxQuestionsPerCategory(50))

	asked := make(map[string]bool)
	action := mustProcess(t, eng, "conv-1", msg)
	for turn := 0; action.Type == models.ActionAsk; turn++ {
		if asked[action.QuestionID] {
			t.Fatalf("question %q asked twice", action.QuestionID)
		}
		asked[action.QuestionID] = true
		action = mustProcess(t, eng, "conv-1", fmt.Sprintf("answer %d", turn))
		if turn > 20 {
			t.Fatal("conversation did not terminate")
		}
	}
	if action.Type != models.ActionComplete {
		t.Fatalf("expected completion on exhaustion, got %s", action.Type)
	}
	// chest pain has five catalog questions
	if len(asked) > 5 {
		t.Errorf("asked set exceeds catalog question count: %d", len(asked))
	}
}

func TestRedFlagAnswer_PromotesRedFlagQuestions(t *testing.T) {
	msg := "I'm John, 28, male, john@example.com, chest pain"
	eng, _, _ := newTestEngine(t, map[string]models.FieldMap{msg: richFields()},
		WithMinFollowUps(3))

	action := mustProcess(t, eng, "conv-1", msg)
	if action.QuestionID != "cp_onset" {
		t.Fatalf("expected detail question first, got %q", action.QuestionID)
	}
	action = mustProcess(t, eng, "conv-1", "it came on sudden and crushing")
	if action.QuestionID != "cp_radiation" {
		t.Errorf("expected red-flag question after trigger answer, got %q", action.QuestionID)
	}
}

func TestExtractionFailure_DegradesToEmptyMerge(t *testing.T) {
	cat, err := catalog.New()
	if err != nil {
		t.Fatalf("catalog.New failed: %v", err)
	}
	eng, err := NewEngine(store.NewInMemoryStore(), failingExtractor{}, cat)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	action, err := eng.ProcessMessage(context.Background(), "conv-1", "hello there")
	if err != nil {
		t.Fatalf("extraction failure must not surface: %v", err)
	}
	if action.Type != models.ActionAsk || action.QuestionID != "ask_email" {
		t.Errorf("expected email prompt, got %s %q", action.Type, action.QuestionID)
	}
}

func TestAbandon(t *testing.T) {
	msg := "I'm John, 28, male, john@example.com, chest pain"
	eng, st, notifier := newTestEngine(t, map[string]models.FieldMap{msg: richFields()})

	if _, err := eng.Abandon(context.Background(), "never-seen", "idle"); !errors.Is(err, models.ErrUnknownConversation) {
		t.Fatalf("expected ErrUnknownConversation, got %v", err)
	}

	mustProcess(t, eng, "conv-1", msg)
	action, err := eng.Abandon(context.Background(), "conv-1", "transport idle timeout")
	if err != nil {
		t.Fatalf("Abandon failed: %v", err)
	}
	if action.Type != models.ActionAbandoned || action.Reason != "transport idle timeout" {
		t.Fatalf("unexpected action %+v", action)
	}

	rec, _ := st.GetIntakeRecord("conv-1")
	if rec.Status != models.StatusAbandoned {
		t.Errorf("expected status %s, got %s", models.StatusAbandoned, rec.Status)
	}

	// Further messages are no-ops returning the terminal action.
	after := mustProcess(t, eng, "conv-1", "wait, I'm back")
	if after.Type != models.ActionAbandoned {
		t.Errorf("expected abandoned action, got %s", after.Type)
	}
	if notifier.count() != 0 {
		t.Errorf("abandoned intake must not notify, got %d calls", notifier.count())
	}
}

func TestStartConversation(t *testing.T) {
	eng, st, _ := newTestEngine(t, nil)

	greeting, err := eng.StartConversation(context.Background(), "conv-1")
	if err != nil {
		t.Fatalf("StartConversation failed: %v", err)
	}
	if greeting != Greeting {
		t.Errorf("unexpected greeting %q", greeting)
	}
	rec, _ := st.GetIntakeRecord("conv-1")
	if rec == nil || rec.Status != models.StatusCollectingDemographics {
		t.Fatalf("record not created: %+v", rec)
	}

	// Repeat call leaves the record alone.
	if _, err := eng.StartConversation(context.Background(), "conv-1"); err != nil {
		t.Fatalf("repeat StartConversation failed: %v", err)
	}
}

func TestSameConversation_SerializedUnderConcurrency(t *testing.T) {
	eng, st, _ := newTestEngine(t, nil)

	const turns = 10
	var wg sync.WaitGroup
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := eng.ProcessMessage(context.Background(), "conv-1", "no useful content"); err != nil {
				t.Errorf("ProcessMessage failed: %v", err)
			}
		}()
	}
	wg.Wait()

	// Every nameless demographic turn increments the retry counter; a lost
	// read-modify-write cycle would drop increments.
	rec, _ := st.GetIntakeRecord("conv-1")
	if rec.DemographicTurns != turns {
		t.Errorf("expected %d demographic turns, got %d (lost update)", turns, rec.DemographicTurns)
	}
}

func TestDistinctConversations_Independent(t *testing.T) {
	msg := "I'm John, 28, male, john@example.com, chest pain"
	eng, st, _ := newTestEngine(t, map[string]models.FieldMap{msg: richFields()})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		id := fmt.Sprintf("conv-%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := eng.ProcessMessage(context.Background(), id, msg); err != nil {
				t.Errorf("ProcessMessage failed: %v", err)
			}
		}()
	}
	wg.Wait()

	for i := 0; i < 8; i++ {
		rec, _ := st.GetIntakeRecord(fmt.Sprintf("conv-%d", i))
		if rec == nil || rec.Status != models.StatusCollectingFollowUps {
			t.Errorf("conversation %d in unexpected state: %+v", i, rec)
		}
	}
}
