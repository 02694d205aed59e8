package models

// ActionType discriminates the engine action variants.
type ActionType string

const (
	// ActionAsk asks the patient the next question.
	ActionAsk ActionType = "ask"
	// ActionComplete hands the finished intake snapshot downstream.
	ActionComplete ActionType = "complete"
	// ActionAbandoned terminates the conversation without completion.
	ActionAbandoned ActionType = "abandoned"
)

// EngineAction is the single outcome emitted per processed message:
// ask a question, complete with a snapshot, or abandon with a reason.
type EngineAction struct {
	Type       ActionType      `json:"type"`
	QuestionID string          `json:"question_id,omitempty"`
	Question   string          `json:"question,omitempty"`
	Snapshot   *IntakeSnapshot `json:"snapshot,omitempty"`
	Reason     string          `json:"reason,omitempty"`
}

// AskAction builds an ask action for the given question.
func AskAction(questionID, question string) EngineAction {
	return EngineAction{Type: ActionAsk, QuestionID: questionID, Question: question}
}

// CompleteAction builds a completion action carrying the record snapshot.
func CompleteAction(snapshot IntakeSnapshot) EngineAction {
	return EngineAction{Type: ActionComplete, Snapshot: &snapshot}
}

// AbandonedAction builds a terminal abandonment action.
func AbandonedAction(reason string) EngineAction {
	return EngineAction{Type: ActionAbandoned, Reason: reason}
}
