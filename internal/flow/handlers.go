// Package flow: the six conversation handlers.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/BeatBard/ccs-pops/internal/data"
	"github.com/BeatBard/ccs-pops/internal/genai"
	"github.com/BeatBard/ccs-pops/internal/models"
	"github.com/BeatBard/ccs-pops/internal/visits"
)

// Handlers holds the dependencies shared by the conversation handlers.
type Handlers struct {
	provider data.Provider
	coach    *genai.Coach
	tracker  *visits.Tracker
}

// NewHandlers wires the handlers to their data, coaching, and visit-tracking
// dependencies.
func NewHandlers(provider data.Provider, coach *genai.Coach, tracker *visits.Tracker) *Handlers {
	return &Handlers{provider: provider, coach: coach, tracker: tracker}
}

// greetingButtons is the main menu button set.
func greetingButtons() []models.Button {
	return []models.Button{
		models.NewButton(models.ButtonCheckin),
		models.NewButton(models.ButtonOutletDetails),
		models.NewButton(models.ButtonEndSummary),
	}
}

// navigationButtons is the button set shown alongside plan and outlet views.
func navigationButtons() []models.Button {
	return []models.Button{
		models.NewButton(models.ButtonAreaView),
		models.NewButton(models.ButtonOutletDetails),
		models.NewButton(models.ButtonEndSummary),
	}
}

// emptyPlanResult is the shared reply for a day with no planned outlets. Every
// plan-dependent handler returns this same message so the user sees one
// consistent answer regardless of which path asked for the plan.
func emptyPlanResult(dsrName string) models.HandlerResult {
	return models.HandlerResult{
		Bodies:    []string{fmt.Sprintf("📭 %s, අද ඔබට සැලසුම් කරන ලද outlets නැත.", dsrName)},
		Buttons:   greetingButtons(),
		Template:  models.TemplateGreeting,
		NextState: models.StateGreeting,
	}
}

// Greeting shows the welcome message and the main menu.
func (h *Handlers) Greeting(ctx context.Context, sess *models.Session) (models.HandlerResult, error) {
	slog.Debug("Greeting handler invoked", "dsr", sess.DSRName)
	message := fmt.Sprintf(
		"👋 සුභ උදෑසනක් %s!\n"+
			"මම ඔබේ Pocket Coach 🎯\n"+
			"ඔබේ දවසේ සෑම අවස්ථාවකම ඔබට උදව් කරන්න මම සූදානම්!\n"+
			"මම ඔබට කරන්න පුළුවන්:\n"+
			"• දවස Check-in කරන්න සහ plan එක බලන්න\n"+
			"• Outlet විස්තර සහ coaching ලබා ගන්න\n"+
			"• දවසේ summary එක බලන්න\n"+
			"ඔබට අද මොනවා කරන්න ඕනද? 💪",
		sess.DSRName)

	return models.HandlerResult{
		Bodies:    []string{message},
		Buttons:   greetingButtons(),
		Template:  models.TemplateGreeting,
		NextState: models.StateGreeting,
	}, nil
}

// Checkin shows the daily plan summary: counts, outlet types, areas, and the
// day's total target.
func (h *Handlers) Checkin(ctx context.Context, sess *models.Session) (models.HandlerResult, error) {
	slog.Debug("Checkin handler invoked", "dsr", sess.DSRName, "date", sess.TargetDate)
	plan, err := h.provider.DailyPlan(sess.DSRName, sess.TargetDate)
	if err != nil {
		return models.HandlerResult{}, fmt.Errorf("failed to load daily plan: %w", err)
	}
	if len(plan) == 0 {
		return emptyPlanResult(sess.DSRName), nil
	}

	totalOutlets := len(plan)
	priorityOutlets := 0
	var totalTarget float64
	typeCounts := make(map[string]int)
	var typeOrder []string
	areaSet := make(map[string]bool)
	for _, p := range plan {
		if p.IsPriority() {
			priorityOutlets++
		}
		totalTarget += p.TargetSalesLitres
		if _, seen := typeCounts[p.OutletType]; !seen {
			typeOrder = append(typeOrder, p.OutletType)
		}
		typeCounts[p.OutletType]++
		areaSet[p.Area] = true
	}

	var typeParts []string
	for _, t := range typeOrder {
		typeParts = append(typeParts, fmt.Sprintf("%s (%d)", t, typeCounts[t]))
	}

	areas := make([]string, 0, len(areaSet))
	for a := range areaSet {
		areas = append(areas, a)
	}
	sort.Strings(areas)
	shown := areas
	if len(shown) > 5 {
		shown = shown[:5]
	}
	areasText := strings.Join(shown, ", ")
	if len(areas) > 5 {
		areasText += fmt.Sprintf(" සහ තවත් %d", len(areas)-5)
	}

	message := fmt.Sprintf(`🌅 *අද දවසේ සැලැස්ම*

📊 අද ඔබේ Plan එක:
• මුළු Outlets: %d
• Priority Outlets: %d ⭐
• Outlet වර්ග: %s
• ප්‍රදේශ: %s

🎯 අද දවසේ Target: %.0fL

හොඳ දවසක් ගත කරන්න! ඔබ කැමති මොනවාද බලන්න? 🚀`,
		totalOutlets, priorityOutlets, strings.Join(typeParts, ", "), areasText, totalTarget)

	return models.HandlerResult{
		Bodies:    []string{message},
		Buttons:   navigationButtons(),
		Template:  models.TemplatePlanView,
		NextState: models.StateCheckin,
		Data: map[string]any{
			"total_outlets":    totalOutlets,
			"priority_outlets": priorityOutlets,
			"total_target":     totalTarget,
		},
	}, nil
}

// AreaView shows the plan grouped by area, numbered continuously so the user
// can pick an outlet by number afterwards.
func (h *Handlers) AreaView(ctx context.Context, sess *models.Session) (models.HandlerResult, error) {
	slog.Debug("AreaView handler invoked", "dsr", sess.DSRName, "date", sess.TargetDate)
	plan, err := h.provider.DailyPlan(sess.DSRName, sess.TargetDate)
	if err != nil {
		return models.HandlerResult{}, fmt.Errorf("failed to load daily plan: %w", err)
	}
	if len(plan) == 0 {
		return emptyPlanResult(sess.DSRName), nil
	}

	areas := data.GroupByArea(plan)
	areaNames := make([]string, 0, len(areas))
	for a := range areas {
		areaNames = append(areaNames, a)
	}
	sort.Strings(areaNames)

	var b strings.Builder
	b.WriteString("🗺️ *ප්‍රදේශ අනුව Outlets*\n")
	counter := 1
	// The numbered list follows area grouping; cache it so a numeric reply
	// indexes the same ordering even if the provider reloads.
	var snapshot []models.DailyPlanEntry
	for _, areaName := range areaNames {
		entries := areas[areaName]
		fmt.Fprintf(&b, "\n📍 *%s* (%d Outlets)\n", areaName, len(entries))
		for _, p := range entries {
			star := ""
			if p.IsPriority() {
				star = "⭐ "
			}
			fmt.Fprintf(&b, "%d. %s%s (%s) - Target: %.0fL\n", counter, star, p.OutletName, p.OutletType, p.TargetSalesLitres)
			snapshot = append(snapshot, p)
			counter++
		}
		b.WriteString("---\n")
	}
	b.WriteString("\nOutlet විස්තර බලන්න outlet number එක type කරන්න (උදා: 1) 👇")

	return models.HandlerResult{
		Bodies:       []string{b.String()},
		Buttons:      navigationButtons(),
		Template:     models.TemplatePlanView,
		NextState:    models.StateAreaView,
		PlanSnapshot: snapshot,
	}, nil
}

// OutletSelect shows the numbered outlet list and asks for a selection.
func (h *Handlers) OutletSelect(ctx context.Context, sess *models.Session) (models.HandlerResult, error) {
	slog.Debug("OutletSelect handler invoked", "dsr", sess.DSRName, "date", sess.TargetDate)
	plan, err := h.provider.DailyPlan(sess.DSRName, sess.TargetDate)
	if err != nil {
		return models.HandlerResult{}, fmt.Errorf("failed to load daily plan: %w", err)
	}
	if len(plan) == 0 {
		return emptyPlanResult(sess.DSRName), nil
	}

	var b strings.Builder
	b.WriteString("📍 *Outlet විස්තර*\n\n")
	b.WriteString("කරුණාකර ඔබට විස්තර බලන්න ඕන outlet එකේ number එක type කරන්න:\n\n")
	b.WriteString("උදාහරණය: 1 (" + plan[0].OutletName + " සඳහා)\n\n")
	b.WriteString("ඔබේ අද දවසේ outlets:")
	for i, p := range plan {
		star := ""
		if p.IsPriority() {
			star = "⭐ "
		}
		fmt.Fprintf(&b, "\n%d. %s%s (%s)", i+1, star, p.OutletName, p.Area)
	}

	return models.HandlerResult{
		Bodies:       []string{b.String()},
		Buttons:      navigationButtons(),
		Template:     models.TemplatePlanView,
		NextState:    models.StateOutletSelect,
		PlanSnapshot: plan,
	}, nil
}

// OutletDetails resolves a numeric selection against the cached plan and
// replies with two messages: the statistics block first, then AI coaching.
// Out-of-range numbers get a correction naming the valid range and keep the
// user in the selection state.
func (h *Handlers) OutletDetails(ctx context.Context, sess *models.Session, message string) (models.HandlerResult, error) {
	slog.Debug("OutletDetails handler invoked", "dsr", sess.DSRName, "message", message)
	plan := sess.PlanSnapshot
	// When the snapshot was loaded here rather than cached by an earlier
	// turn, every return carries it as a delta so the next numeric reply
	// indexes the same ordering.
	var snapshotDelta []models.DailyPlanEntry
	if len(plan) == 0 {
		loaded, err := h.provider.DailyPlan(sess.DSRName, sess.TargetDate)
		if err != nil {
			return models.HandlerResult{}, fmt.Errorf("failed to load daily plan: %w", err)
		}
		plan = loaded
		snapshotDelta = loaded
	}
	if len(plan) == 0 {
		return emptyPlanResult(sess.DSRName), nil
	}

	number, err := strconv.Atoi(strings.TrimSpace(message))
	if err != nil {
		return models.HandlerResult{
			Bodies:       []string{"කරුණාකර outlet number එක නිවැරදිව ඇතුළත් කරන්න (උදා: 1)"},
			Buttons:      navigationButtons(),
			Template:     models.TemplatePlanView,
			NextState:    models.StateOutletSelect,
			PlanSnapshot: snapshotDelta,
		}, nil
	}
	if number < 1 || number > len(plan) {
		correction := fmt.Sprintf("❌ වලංගු නොවන outlet number: %d\n\nකරුණාකර 1 සිට %d අතර අංකයක් ඇතුළත් කරන්න.", number, len(plan))
		return models.HandlerResult{
			Bodies:       []string{correction},
			Buttons:      navigationButtons(),
			Template:     models.TemplatePlanView,
			NextState:    models.StateOutletSelect,
			PlanSnapshot: snapshotDelta,
		}, nil
	}

	selected := plan[number-1]
	stats, err := data.OutletStatistics(ctx, h.provider, sess.DSRName, selected.OutletID, sess.TargetDate)
	if err != nil {
		return models.HandlerResult{}, fmt.Errorf("failed to compose outlet statistics: %w", err)
	}
	if stats == nil {
		return models.HandlerResult{
			Bodies:    []string{fmt.Sprintf("❌ Outlet එකේ විස්තර සොයා ගත නොහැකි විය: %s", selected.OutletID)},
			Buttons:   navigationButtons(),
			Template:  models.TemplateGreeting,
			NextState: models.StateGreeting,
		}, nil
	}

	statsMessage := buildStatisticsMessage(stats)
	coaching := h.coach.OutletCoaching(ctx, genai.OutletContext{
		DSRName: sess.DSRName,
		Stats:   *stats,
	})
	coachingMessage := "💡 *Coaching Tips*\n\n" + coaching

	return models.HandlerResult{
		Bodies:    []string{statsMessage, coachingMessage},
		Buttons:   navigationButtons(),
		Template:  models.TemplatePlanView,
		NextState: models.StateOutletDetails,
		Data: map[string]any{
			"outlet_id":   selected.OutletID,
			"outlet_name": stats.Outlet.OutletName,
		},
		PlanSnapshot:  snapshotDelta,
		CurrentOutlet: selected.OutletID,
		VisitedOutlet: selected.OutletID,
	}, nil
}

func buildStatisticsMessage(stats *models.OutletStatistics) string {
	outlet := stats.Outlet
	plan := stats.DailyPlan
	monthly := stats.MonthlyTarget

	targetStatus := "⚠️ (Target අඩුයි)"
	if stats.LastVisitLitres >= plan.TargetSalesLitres {
		targetStatus = "✅ (Target අතිරේකයි)"
	}
	priority := "⬜ සාමාන්‍ය"
	if plan.IsPriority() {
		priority = "⭐ ඉහළ"
	}

	var b strings.Builder
	fmt.Fprintf(&b, `📊 *%s - %s Outlet*

🏪 *Outlet විස්තර:*
• වර්ගය: %s
• ප්‍රදේශය: %s
• Priority: %s

📈 *විකුණුම් දත්ත:*
• අද Target: %.0fL
• පසුගිය visit: %.0fL %s
• අවසන් මාස 3 සාමාන්‍යය: %.0fL/visit
• මාසික Target: %.0fL
• මාසික සම්පූර්ණ කළ ප්‍රමාණය: %.0fL (%.1f%%)

🔝 *වඩාත්ම විකුණෙන භාණ්ඩ:*`,
		outlet.OutletName, outlet.OutletType, outlet.OutletType, outlet.Area, priority,
		plan.TargetSalesLitres, stats.LastVisitLitres, targetStatus, stats.TrailingAvg,
		monthly.TargetLitres, monthly.CompletedLitres, monthly.CompletionPercentage())

	topSKUs := stats.TopSKUs
	if len(topSKUs) > 3 {
		topSKUs = topSKUs[:3]
	}
	for i, sku := range topSKUs {
		fmt.Fprintf(&b, "\n%d. %s - %.0fL/visit", i+1, sku.SKUName, sku.AvgSalesLitres)
	}

	b.WriteString("\n\n💡 *විශේෂ සටහන:*")
	cooler := "❌ No"
	if outlet.HasCooler() {
		cooler = "✅ Yes"
	}
	fmt.Fprintf(&b, "\n• Cooler ඇත: %s", cooler)
	fmt.Fprintf(&b, "\n• Shelf space: %g sqft", outlet.ShelfSpaceSqft)
	if pois := outlet.POIList(); len(pois) > 0 {
		fmt.Fprintf(&b, "\n• ප්‍රදේශය: %s අසල", strings.Join(pois, ", "))
	}
	return b.String()
}

// Summary shows the end-of-day performance summary built from the visits the
// DSR recorded during the day.
func (h *Handlers) Summary(ctx context.Context, sess *models.Session) (models.HandlerResult, error) {
	slog.Debug("Summary handler invoked", "dsr", sess.DSRName, "date", sess.TargetDate)
	plan, err := h.provider.DailyPlan(sess.DSRName, sess.TargetDate)
	if err != nil {
		return models.HandlerResult{}, fmt.Errorf("failed to load daily plan: %w", err)
	}
	if len(plan) == 0 {
		return emptyPlanResult(sess.DSRName), nil
	}

	m, err := h.tracker.Metrics(sess.DSRName, sess.TargetDate)
	if err != nil {
		return models.HandlerResult{}, fmt.Errorf("failed to compute day metrics: %w", err)
	}

	productivePct := 0.0
	if m.VisitedCount > 0 {
		productivePct = float64(m.ProductiveVisits) / float64(m.VisitedCount) * 100
	}

	var b strings.Builder
	fmt.Fprintf(&b, `🌙 *අද දවසේ Summary*

🎯 *ඔබේ Performance:*

📊 *සාරාංශය:*
• Visit කළ Outlets: %d / %d
• සැලැස්ම සපුරා ගැනීම: %.1f%%
• Priority Outlets Covered: %d / %d ⭐
• සාර්ථක Visits: %d (%.1f%%)

💰 *විකුණුම්:*
• අද මුළු විකුණුම: %.0fL
• අද Target: %.0fL
• ඉලක්ක සපුරා ගැනීම: %.1f%%

📈 *Outlets Performance:*
• Target අතිරේක: %d outlets ✅
• Target අඩු: %d outlets ⚠️
• Visit නොකළ: %d outlets

---

💡 *හෙට දිනය සඳහා:*`,
		m.VisitedCount, m.PlannedCount, m.RouteAdherence,
		m.PriorityVisited, m.PriorityPlanned, m.ProductiveVisits, productivePct,
		m.TotalSalesLitres, m.PlannedTarget, m.TargetAchievement,
		m.OutletsAhead, m.OutletsBehind, len(m.NotVisited))

	if len(m.NotVisited) > 0 {
		fmt.Fprintf(&b, "\nඅද visit නොකළ %d outlets හෙට plan කරන්න:", len(m.NotVisited))
		planByID := make(map[string]models.DailyPlanEntry, len(plan))
		for _, p := range plan {
			planByID[p.OutletID] = p
		}
		shown := m.NotVisited
		if len(shown) > 2 {
			shown = shown[:2]
		}
		for _, id := range shown {
			if p, ok := planByID[id]; ok {
				fmt.Fprintf(&b, "\n• %s (%s) - %.0fL Target", p.OutletName, p.Area, p.TargetSalesLitres)
			}
		}
	}

	switch {
	case m.RouteAdherence >= 80:
		b.WriteString("\n\nහොඳ කොටස! අද හොඳට perform කළා! 👏")
	case m.RouteAdherence >= 60:
		b.WriteString("\n\nහොඳයි! හෙට තව හොඳට කරමු! 💪")
	default:
		b.WriteString("\n\nහෙට වැඩිපුර outlets cover කරමු! ඔබට හැකියි! 🚀")
	}
	b.WriteString("\nහෙට තව හොඳට කරමු! විශ්‍රාම ගන්න. 😊💪")

	return models.HandlerResult{
		Bodies:    []string{b.String()},
		Buttons:   greetingButtons(),
		Template:  models.TemplateGreeting,
		NextState: models.StateEndSummary,
		Data: map[string]any{
			"completed_visits":   m.VisitedCount,
			"total_planned":      m.PlannedCount,
			"route_adherence":    m.RouteAdherence,
			"target_achievement": m.TargetAchievement,
		},
	}, nil
}
