// Package flow: the driver running one conversation turn.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BeatBard/ccs-pops/internal/intent"
	"github.com/BeatBard/ccs-pops/internal/models"
	"github.com/BeatBard/ccs-pops/internal/session"
)

// ApologyMessage is sent when a turn fails for any reason. The session keeps
// its previous state so the user can simply retry.
const ApologyMessage = "සමාවෙන්න, දෝෂයක් සිදු විය. කරුණාකර නැවත උත්සාහ කරන්න."

// Driver executes conversation turns: classify, route, invoke, merge the
// handler's delta into the session, persist, and emit outgoing messages.
type Driver struct {
	classifier *intent.Classifier
	handlers   *Handlers
	sessions   *session.Manager

	// defaultDSRName seeds new sessions until a DSR directory exists.
	defaultDSRName string
	now            func() time.Time
}

// NewDriver wires a driver.
func NewDriver(classifier *intent.Classifier, handlers *Handlers, sessions *session.Manager, defaultDSRName string) *Driver {
	return &Driver{
		classifier:     classifier,
		handlers:       handlers,
		sessions:       sessions,
		defaultDSRName: defaultDSRName,
		now:            time.Now,
	}
}

// ProcessTurn runs one full turn for an incoming message and returns the
// outgoing messages to deliver, always at least one. buttonCode carries the
// transport's quick-reply code when the message came from a button tap, empty
// otherwise. Turns for the same user run strictly one at a time.
func (d *Driver) ProcessTurn(ctx context.Context, from, body, buttonCode string) []models.OutgoingMessage {
	unlock := d.sessions.LockUser(from)
	defer unlock()

	sess, err := d.sessions.GetOrCreate(from)
	if err != nil {
		slog.Error("Driver failed to load session", "error", err, "from", from)
		return apologyMessages(from)
	}
	if sess.DSRName == "" {
		sess.DSRName = d.defaultDSRName
	}

	// Sessions are long-lived; the working day is not. A stale target date
	// rolls to today and the previous day's plan cache and visit list go
	// with it.
	if today := d.now().Format("2006-01-02"); sess.TargetDate != today {
		slog.Info("Session rolled to new day", "from", from, "previous", sess.TargetDate, "date", today)
		sess.TargetDate = today
		sess.PlanSnapshot = nil
		sess.OutletsVisited = nil
		sess.CurrentOutlet = ""
	}

	result, err := d.runHandler(ctx, sess, body, buttonCode)
	if err != nil {
		slog.Error("Driver handler failed", "error", err, "from", from, "state", sess.CurrentState)
		return apologyMessages(from)
	}

	// Merge the handler delta into the session before persisting.
	if result.NextState != "" && result.NextState != sess.CurrentState {
		sess.PreviousState = sess.CurrentState
		sess.CurrentState = result.NextState
	}
	if len(result.Data) > 0 {
		if sess.ResponseData == nil {
			sess.ResponseData = make(map[string]any, len(result.Data))
		}
		for k, v := range result.Data {
			sess.ResponseData[k] = v
		}
	}
	if result.PlanSnapshot != nil {
		sess.PlanSnapshot = result.PlanSnapshot
	}
	if result.CurrentOutlet != "" {
		sess.CurrentOutlet = result.CurrentOutlet
	}
	if result.VisitedOutlet != "" && !contains(sess.OutletsVisited, result.VisitedOutlet) {
		sess.OutletsVisited = append(sess.OutletsVisited, result.VisitedOutlet)
	}
	if err := d.sessions.Save(sess); err != nil {
		slog.Error("Driver failed to persist session", "error", err, "from", from)
		// The reply is still worth sending; the next turn reloads state.
	}

	return buildMessages(from, result)
}

// runHandler classifies, routes and invokes. A panicking handler is treated
// as a failed turn, never a crashed process.
func (d *Driver) runHandler(ctx context.Context, sess *models.Session, body, buttonCode string) (result models.HandlerResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()

	// A transport-reported button code settles the intent outright; the
	// accompanying text never reaches the rules.
	it, fromButton := intent.ButtonIntent(buttonCode)
	if !fromButton {
		it = d.classifier.Classify(ctx, body, sess.CurrentState)
	}
	handler := Route(it, sess.CurrentState)
	slog.Info("Turn routed", "from", sess.Phone, "intent", it, "state", sess.CurrentState, "handler", handler)

	switch handler {
	case HandlerGreeting:
		return d.handlers.Greeting(ctx, sess)
	case HandlerCheckin:
		return d.handlers.Checkin(ctx, sess)
	case HandlerAreaView:
		return d.handlers.AreaView(ctx, sess)
	case HandlerOutletSelect:
		return d.handlers.OutletSelect(ctx, sess)
	case HandlerOutletDetails:
		return d.handlers.OutletDetails(ctx, sess, body)
	case HandlerSummary:
		return d.handlers.Summary(ctx, sess)
	default:
		return d.handlers.Greeting(ctx, sess)
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// buildMessages converts a handler result into outgoing messages. Buttons
// ride on the last message only, capped at the transport limit.
func buildMessages(to string, result models.HandlerResult) []models.OutgoingMessage {
	bodies := result.Bodies
	if len(bodies) == 0 {
		bodies = []string{ApologyMessage}
	}
	buttons := result.Buttons
	if len(buttons) > models.MaxButtonsPerMessage {
		buttons = buttons[:models.MaxButtonsPerMessage]
	}
	template := result.Template
	if template == "" {
		template = models.TemplateText
	}

	out := make([]models.OutgoingMessage, 0, len(bodies))
	for i, body := range bodies {
		msg := models.OutgoingMessage{To: to, Body: body, Template: template}
		if i == len(bodies)-1 {
			msg.Buttons = buttons
		}
		out = append(out, msg)
	}
	return out
}

func apologyMessages(to string) []models.OutgoingMessage {
	return []models.OutgoingMessage{{To: to, Body: ApologyMessage, Template: models.TemplateText}}
}
