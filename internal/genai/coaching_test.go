package genai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/BeatBard/ccs-pops/internal/models"
)

// mockClient returns a canned response or error.
type mockClient struct {
	response string
	err      error

	lastSystem string
	lastUser   string
}

func (m *mockClient) GeneratePrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m.lastSystem = systemPrompt
	m.lastUser = userPrompt
	return m.response, m.err
}

func sampleStats() models.OutletStatistics {
	return models.OutletStatistics{
		Outlet: models.Outlet{
			OutletID:   "CMB001",
			OutletName: "Sathosa Nugegoda",
			OutletType: "Grocery",
			Area:       "Nugegoda",
			POINearby:  "School|Bus Stand",
		},
		DailyPlan:       models.DailyPlanEntry{TargetSalesLitres: 50},
		MonthlyTarget:   models.MonthlyTarget{TargetLitres: 1000, CompletedLitres: 400},
		TopSKUs:         []models.SKUPerformance{{SKUName: "Chocolate 1L", AvgSalesLitres: 20}},
		TrailingAvg:     45,
		LastVisitLitres: 40,
	}
}

func TestOutletCoachingUsesGeneratedText(t *testing.T) {
	generated := "• tip one ගැන හිතන්න\n• tip two කරන්න\n• tip three බලන්න"
	mc := &mockClient{response: generated}
	coach := NewCoach(mc)
	out := coach.OutletCoaching(context.Background(), OutletContext{DSRName: "Nuwan", Stats: sampleStats()})
	if out != generated {
		t.Errorf("expected generated coaching, got %q", out)
	}
	if !strings.Contains(mc.lastUser, "Sathosa Nugegoda") {
		t.Error("expected outlet name in prompt")
	}
	if !strings.Contains(mc.lastUser, "School, Bus Stand") {
		t.Error("expected POI list in prompt")
	}
}

func TestOutletCoachingFallbackOnError(t *testing.T) {
	coach := NewCoach(&mockClient{err: errors.New("api down")})
	out := coach.OutletCoaching(context.Background(), OutletContext{DSRName: "Nuwan", Stats: sampleStats()})
	if out != FallbackOutletCoaching {
		t.Errorf("expected fallback coaching, got %q", out)
	}
}

func TestOutletCoachingFallbackOnShortOutput(t *testing.T) {
	coach := NewCoach(&mockClient{response: "ok"})
	out := coach.OutletCoaching(context.Background(), OutletContext{DSRName: "Nuwan", Stats: sampleStats()})
	if out != FallbackOutletCoaching {
		t.Errorf("expected fallback on short output, got %q", out)
	}
}

func TestNilClientAlwaysFallsBack(t *testing.T) {
	coach := NewCoach(nil)
	if out := coach.MorningMessage(context.Background(), MorningContext{DSRName: "Nuwan"}); out != FallbackMorningMessage {
		t.Errorf("expected morning fallback, got %q", out)
	}
	if out := coach.EndOfDayMessage(context.Background(), EndOfDayContext{DSRName: "Nuwan"}); out != FallbackEndOfDayMessage {
		t.Errorf("expected end-of-day fallback, got %q", out)
	}
}

func TestEndOfDayPromptIncludesMetrics(t *testing.T) {
	mc := &mockClient{response: strings.Repeat("හොඳයි ", 10)}
	coach := NewCoach(mc)
	coach.EndOfDayMessage(context.Background(), EndOfDayContext{
		DSRName: "Nuwan",
		Metrics: models.DayMetrics{PlannedCount: 5, VisitedCount: 4, RouteAdherence: 80},
	})
	if !strings.Contains(mc.lastUser, "4 / 5") {
		t.Errorf("expected visit counts in prompt, got %q", mc.lastUser)
	}
}
