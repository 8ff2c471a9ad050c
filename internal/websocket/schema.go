package websocket

import "github.com/stemsi/exlab-backend/internal/engine"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer   Action = "answer"
	ActionReaction Action = "reaction"
	ActionSubmit   Action = "submit"
	ActionPing     Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// AnswerRequest autosaves the answer to one question.
type AnswerRequest struct {
	Action     Action `json:"action"`
	QuestionID string `json:"question_id"`
	Answer     string `json:"answer"`
}

// ReactionRequest answers a visible popup with yes or no.
type ReactionRequest struct {
	Action   Action `json:"action"`
	PopupID  int    `json:"popup_id"`
	Reaction string `json:"reaction"`
}

// ─── Events (Server → Client) ───────────────────────────────────────
//
// popup_show, popup_hide, time_up, submitted and error events come from
// the session driver as engine.Event values.

type Event string

const (
	EventState     Event = "state"
	EventSubmitted Event = Event(engine.EventSubmitted)
	EventError     Event = Event(engine.EventError)
	EventPong      Event = "pong"
)

// StateResponse is sent once after connecting.
type StateResponse struct {
	Event Event                  `json:"event"`
	Data  engine.SessionSnapshot `json:"data"`
}

// SubmittedResponse carries a submission result the driver did not
// publish, such as a repeated submit.
type SubmittedResponse struct {
	Event Event `json:"event"`
	Data  any   `json:"data"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
