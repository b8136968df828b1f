// Package genai: coaching message generation for DSRs.
package genai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/BeatBard/ccs-pops/internal/models"
)

// MinCoachingLength is the minimum usable length of a generated message in
// runes. Anything shorter falls back to the static Sinhala copy.
const MinCoachingLength = 20

const coachSystemPrompt = "You are a supportive sales coach for a beverage DSR in Sri Lanka."

// FallbackOutletCoaching is the static Sinhala coaching used when generation
// fails or produces unusable output.
const FallbackOutletCoaching = `• පසුගිය visit එකේ performance බලලා අද වැඩිපුර විකුණන්න try කරන්න

• වඩාත්ම විකුණෙන භාණ්ඩ 2-3ක් promote කරන්න

• Customer handling skills use කරලා හොඳ relationship එකක් build කරන්න

• පොඩි offer එකක් දීලා sales වැඩි කරගන්න try කරන්න

ඔබට හැකියි! 💪`

// FallbackMorningMessage is the static morning greeting fallback.
const FallbackMorningMessage = "සුභ උදෑසනක්! අදත් හොඳ දවසක් වේවා. ඔබේ plan එක අනුව outlets වලට යන්න. ඔබට හැකියි! 💪"

// FallbackEndOfDayMessage is the static end-of-day summary fallback.
const FallbackEndOfDayMessage = "අද දවසේ වැඩ ගැන සතුටු වෙන්න! හෙට තවත් හොඳින් කරන්න පුළුවන්. හොඳින් විවේක ගන්න! 🌙"

// Coach generates coaching messages, falling back to static Sinhala copy
// whenever the underlying client errors or returns too little text.
type Coach struct {
	client ClientInterface
}

// NewCoach wraps a GenAI client. A nil client always produces fallbacks.
func NewCoach(client ClientInterface) *Coach {
	return &Coach{client: client}
}

// OutletContext carries what the outlet-visit coaching prompt needs.
type OutletContext struct {
	DSRName  string
	Strength string
	Stats    models.OutletStatistics
}

// MorningContext carries what the morning greeting prompt needs.
type MorningContext struct {
	DSRName       string
	OutletsCount  int
	PriorityCount int
	TargetLitres  float64
}

// EndOfDayContext carries what the end-of-day summary prompt needs.
type EndOfDayContext struct {
	DSRName string
	Metrics models.DayMetrics
}

func (c *Coach) generate(ctx context.Context, kind, userPrompt, fallback string) string {
	if c.client == nil {
		slog.Debug("GenAI client not configured, using fallback", "kind", kind)
		return fallback
	}
	out, err := c.client.GeneratePrompt(ctx, coachSystemPrompt, userPrompt)
	if err != nil {
		slog.Warn("Coaching generation failed, using fallback", "kind", kind, "error", err)
		return fallback
	}
	out = strings.TrimSpace(out)
	if utf8.RuneCountInString(out) < MinCoachingLength {
		slog.Warn("Generated coaching too short, using fallback", "kind", kind, "length", utf8.RuneCountInString(out))
		return fallback
	}
	return out
}

// OutletCoaching generates the coaching tips shown after outlet statistics.
func (c *Coach) OutletCoaching(ctx context.Context, oc OutletContext) string {
	stats := oc.Stats
	strength := oc.Strength
	if strength == "" {
		strength = models.DefaultDSRStrength
	}

	var skus []string
	for _, s := range stats.TopSKUs {
		skus = append(skus, fmt.Sprintf("%s (%.0fL)", s.SKUName, s.AvgSalesLitres))
	}
	skuText := strings.Join(skus, ", ")
	poiText := strings.Join(stats.Outlet.POIList(), ", ")
	if poiText == "" {
		poiText = "විශේෂ POI නැත"
	}

	target := stats.DailyPlan.TargetSalesLitres
	lastVisit := stats.LastVisitLitres
	var performanceNote string
	if lastVisit >= target {
		performanceNote = "පසුගිය visit එකේ target එක සපුරා ඇත"
	} else {
		performanceNote = fmt.Sprintf("target එකට වඩා %.0fL අඩුයි", target-lastVisit)
	}

	prompt := fmt.Sprintf(`Generate coaching tips in Sinhala for %s visiting %s (%s) in %s.

DSR strength: %s

Outlet Context:
- අද Target: %.0fL
- පසුගිය visit: %.0fL (%s)
- අවසන් මාස 3 සාමාන්‍යය: %.0fL
- මාසික සම්පූර්ණ කළ: %.1f%%
- වඩාත්ම විකුණෙන භාණ්ඩ: %s
- ප්‍රදේශයේ POI: %s

Task:
Generate 3-4 SHORT, specific, actionable coaching tips in natural Sinhala.

Guidelines:
- Be encouraging and positive
- Reference the outlet's performance
- Suggest which products to focus on
- Use the location context (POI) to make relevant suggestions
- Keep each tip to 1-2 sentences max
- Format as bullet points (use •)
- AVOID technical jargon, use simple Sinhala

Generate ONLY the tips in Sinhala, no other text or explanations.`,
		oc.DSRName, stats.Outlet.OutletName, stats.Outlet.OutletType, stats.Outlet.Area,
		strength, target, lastVisit, performanceNote, stats.TrailingAvg,
		stats.MonthlyTarget.CompletionPercentage(), skuText, poiText)

	return c.generate(ctx, "outlet_visit", prompt, FallbackOutletCoaching)
}

// MorningMessage generates the daily morning greeting.
func (c *Coach) MorningMessage(ctx context.Context, mc MorningContext) string {
	prompt := fmt.Sprintf(`Generate a morning greeting message in Sinhala for %s.

Today's plan:
- Outlets to visit: %d
- Priority outlets: %d
- Target: %.0fL

Guidelines:
- Be encouraging and positive
- Keep it brief (2-3 sentences max)
- Use natural, conversational Sinhala
- Include a motivating closing

Generate ONLY the message, no explanations.`,
		mc.DSRName, mc.OutletsCount, mc.PriorityCount, mc.TargetLitres)

	return c.generate(ctx, "morning", prompt, FallbackMorningMessage)
}

// EndOfDayMessage generates the end-of-day summary coaching.
func (c *Coach) EndOfDayMessage(ctx context.Context, ec EndOfDayContext) string {
	m := ec.Metrics
	prompt := fmt.Sprintf(`Generate an end-of-day summary message in Sinhala for %s.

Performance:
- Route adherence: %.1f%%
- Target achievement: %.1f%%
- Outlets visited: %d / %d
- Outlets ahead: %d
- Outlets behind: %d

Guidelines:
- Congratulate achievements
- Be encouraging about areas to improve
- Keep it brief (3-4 sentences max)
- Use natural Sinhala
- End with motivation for tomorrow

Generate ONLY the message, no explanations.`,
		ec.DSRName, m.RouteAdherence, m.TargetAchievement,
		m.VisitedCount, m.PlannedCount, m.OutletsAhead, m.OutletsBehind)

	return c.generate(ctx, "end_of_day", prompt, FallbackEndOfDayMessage)
}
