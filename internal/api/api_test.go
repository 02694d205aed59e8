package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Aniketchurihar/CardioGenie/internal/catalog"
	"github.com/Aniketchurihar/CardioGenie/internal/engine"
	"github.com/Aniketchurihar/CardioGenie/internal/models"
	"github.com/Aniketchurihar/CardioGenie/internal/store"
)

// scriptedExtractor returns a fixed field map per exact message text.
type scriptedExtractor struct {
	byText map[string]models.FieldMap
}

func (s *scriptedExtractor) Extract(_ context.Context, text string, _ []models.Field) (models.FieldMap, error) {
	return s.byText[text], nil
}

func newTestServer(t *testing.T, byText map[string]models.FieldMap) (*Server, *store.InMemoryStore) {
	t.Helper()
	cat, err := catalog.New()
	if err != nil {
		t.Fatalf("catalog.New failed: %v", err)
	}
	st := store.NewInMemoryStore()
	eng, err := engine.NewEngine(st, &scriptedExtractor{byText: byText}, cat)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	srv, err := NewServer(eng, st, cat)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	return srv, st
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) models.APIResponse {
	t.Helper()
	var resp models.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response envelope: %v\nbody: %s", err, rec.Body.String())
	}
	return resp
}

func TestCreateConversationAndMessage(t *testing.T) {
	msg := "I'm John, 28, male, john@example.com, chest pain"
	srv, _ := newTestServer(t, map[string]models.FieldMap{
		msg: {
			models.FieldName:    "John",
			models.FieldAge:     "28",
			models.FieldGender:  "male",
			models.FieldEmail:   "john@example.com",
			models.FieldSymptom: "chest pain",
		},
	})
	handler := srv.Routes()

	rec := doJSON(t, handler, http.MethodPost, "/api/conversations", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeEnvelope(t, rec)
	result, _ := resp.Result.(map[string]interface{})
	conversationID, _ := result["conversation_id"].(string)
	if conversationID == "" {
		t.Fatalf("no conversation id in response: %s", rec.Body.String())
	}
	if greeting, _ := result["greeting"].(string); greeting == "" {
		t.Error("no greeting in response")
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/conversations/"+conversationID+"/messages", messageRequest{Message: msg})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp = decodeEnvelope(t, rec)
	action, _ := resp.Result.(map[string]interface{})
	if action["type"] != string(models.ActionAsk) {
		t.Errorf("expected ask action, got %v", action["type"])
	}
	if action["question_id"] != "cp_onset" {
		t.Errorf("expected first chest pain question, got %v", action["question_id"])
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/conversations/"+conversationID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on record fetch, got %d", rec.Code)
	}
}

func TestMessageValidation(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	handler := srv.Routes()

	rec := doJSON(t, handler, http.MethodPost, "/api/conversations/some-id/messages", messageRequest{Message: ""})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty message, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/conversations/some-id/messages", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed JSON, got %d", w.Code)
	}
}

func TestAbandonUnknownConversation(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	handler := srv.Routes()

	rec := doJSON(t, handler, http.MethodPost, "/api/conversations/never-seen/abandon", abandonRequest{Reason: "idle"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown conversation, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeEnvelope(t, rec)
	if resp.Status != string(models.APIStatusError) {
		t.Errorf("expected error envelope, got %+v", resp)
	}
}

func TestGetConversationNotFound(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	rec := doJSON(t, srv.Routes(), http.MethodGet, "/api/conversations/never-seen", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestSymptomsAndHealth(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	handler := srv.Routes()

	rec := doJSON(t, handler, http.MethodGet, "/api/symptoms", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	resp := decodeEnvelope(t, rec)
	symptoms, _ := resp.Result.([]interface{})
	if len(symptoms) == 0 {
		t.Error("expected non-empty symptom list")
	}

	rec = doJSON(t, handler, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestListConversations(t *testing.T) {
	srv, st := newTestServer(t, nil)
	record := models.NewIntakeRecord("conv-1")
	if err := st.SaveIntakeRecord(*record); err != nil {
		t.Fatalf("SaveIntakeRecord failed: %v", err)
	}

	rec := doJSON(t, srv.Routes(), http.MethodGet, "/api/conversations", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	resp := decodeEnvelope(t, rec)
	records, _ := resp.Result.([]interface{})
	if len(records) != 1 {
		t.Errorf("expected 1 record, got %d", len(records))
	}
}
