package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Aniketchurihar/CardioGenie/internal/models"
)

func testSnapshot() models.IntakeSnapshot {
	completed := time.Now()
	return models.IntakeSnapshot{
		ConversationID: "conv-1",
		Name:           "Alice",
		Age:            34,
		Gender:         "female",
		Email:          "alice@example.com",
		Symptom:        "chest pain",
		Answers: []models.QuestionAnswer{
			{QuestionID: "cp_onset", Question: "When did the pain start?", Answer: "two hours ago"},
			{QuestionID: "cp_character", Question: "How would you describe the pain?", Answer: "crushing"},
		},
		CompletedAt: &completed,
	}
}

func TestNewTelegramNotifier_RequiresCredentials(t *testing.T) {
	if _, err := NewTelegramNotifier(WithBotToken("tok")); err == nil {
		t.Error("expected error when chat id missing")
	}
	if _, err := NewTelegramNotifier(WithChatID("42")); err == nil {
		t.Error("expected error when bot token missing")
	}
}

func TestNotifyComplete_SendsSummary(t *testing.T) {
	var gotPath string
	var gotPayload map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &gotPayload); err != nil {
			t.Errorf("failed to decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n, err := NewTelegramNotifier(WithBotToken("tok"), WithChatID("42"), WithBaseURL(server.URL))
	if err != nil {
		t.Fatalf("NewTelegramNotifier failed: %v", err)
	}
	if err := n.NotifyComplete(context.Background(), testSnapshot()); err != nil {
		t.Fatalf("NotifyComplete failed: %v", err)
	}

	if gotPath != "/bottok/sendMessage" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotPayload["chat_id"] != "42" {
		t.Errorf("unexpected chat id %q", gotPayload["chat_id"])
	}
	text := gotPayload["text"]
	for _, want := range []string{"Alice", "chest pain", "crushing", "alice@example.com"} {
		if !strings.Contains(text, want) {
			t.Errorf("summary missing %q:\n%s", want, text)
		}
	}
}

func TestNotifyComplete_NonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	n, err := NewTelegramNotifier(WithBotToken("tok"), WithChatID("42"), WithBaseURL(server.URL))
	if err != nil {
		t.Fatalf("NewTelegramNotifier failed: %v", err)
	}
	if err := n.NotifyComplete(context.Background(), testSnapshot()); err == nil {
		t.Error("expected error on non-OK status")
	}
}

func TestFormatSummary_UnmatchedSymptom(t *testing.T) {
	snap := testSnapshot()
	snap.Symptom = "weird flutter feeling"
	snap.SymptomUnmatched = true
	text := FormatSummary(snap)
	if !strings.Contains(text, "weird flutter feeling") || !strings.Contains(text, "unrecognized") {
		t.Errorf("unmatched symptom not flagged:\n%s", text)
	}
}

func TestFormatSummary_MissingName(t *testing.T) {
	snap := testSnapshot()
	snap.Name = ""
	if !strings.Contains(FormatSummary(snap), "name not provided") {
		t.Error("missing name not noted in summary")
	}
}
