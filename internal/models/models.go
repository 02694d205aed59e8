// Package models defines the core data structures for CardioGenie.
//
// It includes the intake record, engine actions, extraction field types,
// and the API response envelope shared across modules.
package models

import "errors"

// Field names a demographic or symptom slot the extractor can populate.
type Field string

// Extractable field constants.
const (
	FieldName    Field = "name"
	FieldAge     Field = "age"
	FieldGender  Field = "gender"
	FieldEmail   Field = "email"
	FieldSymptom Field = "symptom"
)

// FieldMap is a best-effort mapping of field name to extracted value.
// Fields the extractor could not determine are absent, never guessed.
type FieldMap map[Field]string

// Error variables for better error handling and testability
var (
	ErrUnknownConversation = errors.New("unknown conversation id")
	ErrTerminalStatus      = errors.New("record is in a terminal status")
	ErrBackwardTransition  = errors.New("status may not move backward")
	ErrSymptomImmutable    = errors.New("primary symptom is immutable")
	ErrQuestionRepeated    = errors.New("question already asked")
	ErrEmptyConversationID = errors.New("conversation id cannot be empty")
	ErrEmptyMessage        = errors.New("message cannot be empty")
)

// APIStatus represents the status of an API response.
type APIStatus string

const (
	APIStatusOK    APIStatus = "ok"
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}
