package flow

import (
	"testing"

	"github.com/BeatBard/ccs-pops/internal/models"
)

func TestRoute(t *testing.T) {
	tests := []struct {
		name   string
		intent models.Intent
		state  models.State
		want   HandlerName
	}{
		{"greeting from idle", models.IntentGreeting, models.StateIdle, HandlerGreeting},
		{"greeting from any state", models.IntentGreeting, models.StateOutletDetails, HandlerGreeting},
		{"checkin", models.IntentCheckin, models.StateGreeting, HandlerCheckin},
		{"area view", models.IntentAreaView, models.StateCheckin, HandlerAreaView},
		{"outlet details from idle goes to select", models.IntentOutletDetails, models.StateIdle, HandlerOutletSelect},
		{"outlet details from greeting goes to select", models.IntentOutletDetails, models.StateGreeting, HandlerOutletSelect},
		{"outlet details past selection goes direct", models.IntentOutletDetails, models.StateAreaView, HandlerOutletDetails},
		{"outlet details from select goes direct", models.IntentOutletDetails, models.StateOutletSelect, HandlerOutletDetails},
		{"outlet number", models.IntentOutletNumber, models.StateOutletSelect, HandlerOutletDetails},
		{"end summary", models.IntentEndSummary, models.StateOutletDetails, HandlerSummary},
		{"unknown fails open to greeting", models.IntentUnknown, models.StateOutletSelect, HandlerGreeting},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Route(tt.intent, tt.state); got != tt.want {
				t.Errorf("Route(%s, %s) = %s, want %s", tt.intent, tt.state, got, tt.want)
			}
		})
	}
}

func TestRouteAlwaysReturnsHandler(t *testing.T) {
	intents := []models.Intent{
		models.IntentGreeting, models.IntentCheckin, models.IntentOutletDetails,
		models.IntentAreaView, models.IntentEndSummary, models.IntentOutletNumber,
		models.IntentUnknown, models.Intent("bogus"),
	}
	states := []models.State{
		models.StateIdle, models.StateGreeting, models.StateCheckin,
		models.StateAreaView, models.StateOutletSelect, models.StateOutletDetails,
		models.StateEndSummary,
	}
	for _, i := range intents {
		for _, s := range states {
			if got := Route(i, s); got == "" {
				t.Errorf("Route(%s, %s) returned empty handler", i, s)
			}
		}
	}
}
