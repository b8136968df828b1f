// Package models defines the core data structures for ccs-pops.
//
// It includes conversation states, intents, button actions, sessions, and the
// outgoing message payloads shared across modules.
package models

import (
	"errors"
	"time"
)

// State identifies a conversation state for a DSR session.
type State string

const (
	// StateIdle indicates no conversation has started yet.
	StateIdle State = "IDLE"
	// StateGreeting indicates the main menu was shown.
	StateGreeting State = "GREETING"
	// StateCheckin indicates the daily plan summary was shown.
	StateCheckin State = "CHECKIN"
	// StateAreaView indicates the area-wise outlet listing was shown.
	StateAreaView State = "AREA_VIEW"
	// StateOutletSelect indicates the numbered outlet list was shown and a
	// numeric selection is expected next.
	StateOutletSelect State = "OUTLET_SELECT"
	// StateOutletDetails indicates outlet statistics and coaching were shown.
	StateOutletDetails State = "OUTLET_DETAILS"
	// StateEndSummary indicates the end-of-day summary was shown.
	StateEndSummary State = "END_SUMMARY"
)

// legacyStateAliases maps state names from earlier session schemas onto the
// canonical set. Stored sessions written by older builds deserialize through
// this table.
var legacyStateAliases = map[State]State{
	"GREETING_MENU":     StateGreeting,
	"PLAN_VIEW_MENU":    StateCheckin,
	"ACTIVE":            StateGreeting,
	"AT_OUTLET":         StateOutletDetails,
	"COACHING":          StateOutletDetails,
	"DAY_COMPLETE":      StateEndSummary,
	"AWAITING_RESPONSE": StateOutletSelect,
	"VISIT_TRACKING":    StateOutletDetails,
}

// CanonicalState resolves legacy state names onto the canonical enumeration.
// Unknown values resolve to StateIdle.
func CanonicalState(s State) State {
	switch s {
	case StateIdle, StateGreeting, StateCheckin, StateAreaView,
		StateOutletSelect, StateOutletDetails, StateEndSummary:
		return s
	}
	if canonical, ok := legacyStateAliases[s]; ok {
		return canonical
	}
	return StateIdle
}

// Intent identifies a classified user intent. Intents are produced fresh each
// turn and never persisted.
type Intent string

const (
	IntentGreeting      Intent = "greeting"
	IntentCheckin       Intent = "checkin"
	IntentOutletDetails Intent = "outlet_details"
	IntentAreaView      Intent = "area_view"
	IntentEndSummary    Intent = "end_summary"
	IntentOutletNumber  Intent = "outlet_number"
	IntentUnknown       Intent = "unknown"
)

// IsValidIntent checks if the given intent is one of the seven categories.
func IsValidIntent(i Intent) bool {
	switch i {
	case IntentGreeting, IntentCheckin, IntentOutletDetails, IntentAreaView,
		IntentEndSummary, IntentOutletNumber, IntentUnknown:
		return true
	default:
		return false
	}
}

// ButtonAction identifies a quick-reply button action code. Transports send
// these codes back verbatim when a button is tapped.
type ButtonAction string

const (
	ButtonCheckin       ButtonAction = "CHECKIN"
	ButtonOutletDetails ButtonAction = "OUTLET_DETAILS"
	ButtonEndSummary    ButtonAction = "END_SUMMARY"
	ButtonAreaView      ButtonAction = "AREA_VIEW"
	ButtonBack          ButtonAction = "BACK"
)

// ButtonLabels holds the Sinhala display text for each button action.
var ButtonLabels = map[ButtonAction]string{
	ButtonCheckin:       "✅ Check-in 🌅",
	ButtonOutletDetails: "📍 Outlet විස්තර",
	ButtonEndSummary:    "🌙 දවස අවසානය",
	ButtonAreaView:      "🗺️ ප්‍රදේශ අනුව Outlets",
	ButtonBack:          "🔙 ආපසු",
}

// IsButtonAction reports whether code is a known quick-reply action code.
func IsButtonAction(code string) bool {
	_, ok := ButtonLabels[ButtonAction(code)]
	return ok
}

// MaxButtonsPerMessage is the WhatsApp limit for quick-reply buttons on
// unapproved session templates.
const MaxButtonsPerMessage = 3

// Button is one quick-reply button rendered by the presentation layer.
type Button struct {
	ID     string       `json:"id"`
	Label  string       `json:"label"`
	Action ButtonAction `json:"action"`
}

// NewButton builds a button for an action using its standard Sinhala label.
func NewButton(action ButtonAction) Button {
	return Button{ID: string(action), Label: ButtonLabels[action], Action: action}
}

// TemplateHint names a content template for the presentation layer. The core
// never renders platform markup; it only emits one of these hints.
type TemplateHint string

const (
	TemplateGreeting TemplateHint = "greeting"
	TemplatePlanView TemplateHint = "plan_view"
	TemplateHelp     TemplateHint = "help"
	TemplateText     TemplateHint = "text"
)

// Validation error variables shared across modules.
var (
	ErrEmptyRecipient  = errors.New("recipient cannot be empty")
	ErrEmptyMessage    = errors.New("message body cannot be empty")
	ErrTooManyButtons  = errors.New("too many buttons for a single message")
	ErrSessionNotFound = errors.New("session not found")
)

// OutgoingMessage is one message payload the driver hands to the transport.
type OutgoingMessage struct {
	To       string       `json:"to"`
	Body     string       `json:"body"`
	Template TemplateHint `json:"template,omitempty"`
	Buttons  []Button     `json:"buttons,omitempty"`
}

// Validate checks the outgoing message against transport constraints.
func (m *OutgoingMessage) Validate() error {
	if m.To == "" {
		return ErrEmptyRecipient
	}
	if m.Body == "" {
		return ErrEmptyMessage
	}
	if len(m.Buttons) > MaxButtonsPerMessage {
		return ErrTooManyButtons
	}
	return nil
}

// HandlerResult is what a conversation handler returns for one turn. Bodies
// holds one entry for most handlers and two for outlet details (statistics
// first, coaching second). The remaining fields are a session delta: handlers
// never touch the session themselves, the driver merges the delta after the
// handler returns. Zero values mean unchanged.
type HandlerResult struct {
	Bodies    []string
	Buttons   []Button
	Template  TemplateHint
	NextState State
	Data      map[string]any

	PlanSnapshot  []DailyPlanEntry
	CurrentOutlet string
	VisitedOutlet string
}

// Session is the per-user conversation state persisted across turns. Exactly
// one session exists per user identifier; only the driver mutates it.
type Session struct {
	ID            string    `json:"id"`
	Phone         string    `json:"phone"`
	DSRName       string    `json:"dsr_name"`
	CurrentState  State     `json:"current_state"`
	PreviousState State     `json:"previous_state,omitempty"`
	TargetDate    string    `json:"target_date"` // YYYY-MM-DD
	// PlanSnapshot caches the day's plan so numeric selections index a stable
	// list even if the provider reloads between turns.
	PlanSnapshot   []DailyPlanEntry `json:"plan_snapshot,omitempty"`
	CurrentOutlet  string           `json:"current_outlet,omitempty"`
	OutletsVisited []string         `json:"outlets_visited,omitempty"`
	ResponseData   map[string]any   `json:"response_data,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// Canonicalize rewrites legacy state names in place after deserialization.
func (s *Session) Canonicalize() {
	s.CurrentState = CanonicalState(s.CurrentState)
	if s.PreviousState != "" {
		s.PreviousState = CanonicalState(s.PreviousState)
	}
}

// MessageStatus represents the delivery status of an outbound message.
type MessageStatus string

const (
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
	MessageStatusFailed    MessageStatus = "failed"
)

// Receipt records the delivery status of an outbound message.
type Receipt struct {
	To     string        `json:"to"`
	Status MessageStatus `json:"status"`
	Time   int64         `json:"time"`
}

// Response represents an incoming message from a DSR. ButtonCode is set when
// the transport recognized the body as a quick-reply action code.
type Response struct {
	From       string `json:"from"`
	Body       string `json:"body"`
	ButtonCode string `json:"button_code,omitempty"`
	Time       int64  `json:"time"`
}
