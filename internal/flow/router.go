// Package flow implements the conversation state machine: the router mapping
// intents to handlers, the six handlers, and the driver that runs one turn.
package flow

import (
	"github.com/BeatBard/ccs-pops/internal/models"
)

// HandlerName identifies one conversation handler.
type HandlerName string

const (
	HandlerGreeting      HandlerName = "greeting"
	HandlerCheckin       HandlerName = "checkin"
	HandlerAreaView      HandlerName = "area_view"
	HandlerOutletSelect  HandlerName = "outlet_select"
	HandlerOutletDetails HandlerName = "outlet_details"
	HandlerSummary       HandlerName = "summary"
)

// Route maps a classified intent and the current state to a handler. It is a
// pure function and always returns a handler: unknown intents fail open to
// the greeting so the user is never left without a reply.
func Route(intent models.Intent, state models.State) HandlerName {
	switch intent {
	case models.IntentGreeting:
		return HandlerGreeting
	case models.IntentCheckin:
		return HandlerCheckin
	case models.IntentAreaView:
		return HandlerAreaView
	case models.IntentOutletDetails:
		// From the entry states the user has not seen the numbered list yet.
		if state == models.StateIdle || state == models.StateGreeting {
			return HandlerOutletSelect
		}
		return HandlerOutletDetails
	case models.IntentOutletNumber:
		return HandlerOutletDetails
	case models.IntentEndSummary:
		return HandlerSummary
	default:
		return HandlerGreeting
	}
}
