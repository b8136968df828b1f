package flow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/BeatBard/ccs-pops/internal/genai"
	"github.com/BeatBard/ccs-pops/internal/models"
	"github.com/BeatBard/ccs-pops/internal/store"
	"github.com/BeatBard/ccs-pops/internal/visits"
)

// testProvider is an in-memory data.Provider for handler tests. When
// planByDate is set the plan is keyed by date, otherwise plan is returned
// for every date.
type testProvider struct {
	plan       []models.DailyPlanEntry
	planByDate map[string][]models.DailyPlanEntry
	outlets    map[string]models.Outlet
	targets    map[string]models.MonthlyTarget
	skus       map[string][]models.SKUPerformance
	history    map[string][]models.VisitHistoryEntry
	planErr    error
}

func (p *testProvider) DailyPlan(dsrName, date string) ([]models.DailyPlanEntry, error) {
	if p.planByDate != nil {
		return p.planByDate[date], p.planErr
	}
	return p.plan, p.planErr
}

func (p *testProvider) Outlet(outletID string) (*models.Outlet, error) {
	o, ok := p.outlets[outletID]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (p *testProvider) VisitHistory(outletID string, limit int) ([]models.VisitHistoryEntry, error) {
	return p.history[outletID], nil
}

func (p *testProvider) TrailingAvg(dsrName, outletID string) (float64, error) { return 42, nil }

func (p *testProvider) TopSKUs(outletID string, limit int) ([]models.SKUPerformance, error) {
	return p.skus[outletID], nil
}

func (p *testProvider) MonthlyTarget(outletID, yearMonth string) (*models.MonthlyTarget, error) {
	t, ok := p.targets[outletID]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

// mockAI is a canned genai.ClientInterface.
type mockAI struct {
	response string
	err      error
}

func (m *mockAI) GeneratePrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return m.response, m.err
}

func fiveOutletPlan() []models.DailyPlanEntry {
	return []models.DailyPlanEntry{
		{OutletID: "CMB001", OutletName: "Sathosa Nugegoda", OutletType: "Grocery", Area: "Nugegoda", Priority: "Yes", TargetSalesLitres: 50, VisitOrder: 1},
		{OutletID: "CMB002", OutletName: "Keells Dehiwala", OutletType: "Supermarket", Area: "Dehiwala", Priority: "No", TargetSalesLitres: 30, VisitOrder: 2},
		{OutletID: "CMB003", OutletName: "Food City Maharagama", OutletType: "Supermarket", Area: "Maharagama", Priority: "Yes", TargetSalesLitres: 60, VisitOrder: 3},
		{OutletID: "CMB004", OutletName: "Lanka Grocers", OutletType: "Grocery", Area: "Nugegoda", Priority: "No", TargetSalesLitres: 25, VisitOrder: 4},
		{OutletID: "CMB005", OutletName: "New City Mart", OutletType: "Grocery", Area: "Dehiwala", Priority: "No", TargetSalesLitres: 35, VisitOrder: 5},
	}
}

func testOutlets() map[string]models.Outlet {
	out := make(map[string]models.Outlet)
	for _, p := range fiveOutletPlan() {
		out[p.OutletID] = models.Outlet{
			OutletID:        p.OutletID,
			OutletName:      p.OutletName,
			OutletType:      p.OutletType,
			Area:            p.Area,
			CoolerAvailable: "Yes",
			ShelfSpaceSqft:  100,
			POINearby:       "School",
		}
	}
	return out
}

func newTestHandlers(p *testProvider, ai genai.ClientInterface) (*Handlers, store.Store) {
	st := store.NewInMemoryStore()
	tracker := visits.NewTracker(st, p)
	return NewHandlers(p, genai.NewCoach(ai), tracker), st
}

func testSession() *models.Session {
	return &models.Session{
		Phone:        "+94771234567",
		DSRName:      "Nuwan Perera",
		CurrentState: models.StateIdle,
		TargetDate:   "2024-03-15",
	}
}

func TestGreetingHandler(t *testing.T) {
	h, _ := newTestHandlers(&testProvider{}, nil)
	res, err := h.Greeting(context.Background(), testSession())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Bodies) != 1 || !strings.Contains(res.Bodies[0], "Nuwan Perera") {
		t.Errorf("expected greeting mentioning the DSR, got %+v", res.Bodies)
	}
	if len(res.Buttons) != 3 {
		t.Fatalf("expected 3 buttons, got %d", len(res.Buttons))
	}
	want := []models.ButtonAction{models.ButtonCheckin, models.ButtonOutletDetails, models.ButtonEndSummary}
	for i, b := range res.Buttons {
		if b.Action != want[i] {
			t.Errorf("button %d: expected %s, got %s", i, want[i], b.Action)
		}
	}
	if res.NextState != models.StateGreeting {
		t.Errorf("expected next state %s, got %s", models.StateGreeting, res.NextState)
	}
}

func TestCheckinHandler(t *testing.T) {
	p := &testProvider{plan: fiveOutletPlan()}
	h, _ := newTestHandlers(p, nil)
	res, err := h.Checkin(context.Background(), testSession())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body := res.Bodies[0]
	for _, want := range []string{"මුළු Outlets: 5", "Priority Outlets: 2", "Grocery (3)", "Supermarket (2)", "200L"} {
		if !strings.Contains(body, want) {
			t.Errorf("expected body to contain %q\nbody: %s", want, body)
		}
	}
	if res.NextState != models.StateCheckin {
		t.Errorf("expected next state %s, got %s", models.StateCheckin, res.NextState)
	}
	if res.Template != models.TemplatePlanView {
		t.Errorf("expected plan_view template, got %s", res.Template)
	}
}

func TestEmptyPlanIdenticalAcrossHandlers(t *testing.T) {
	p := &testProvider{}
	h, _ := newTestHandlers(p, nil)
	sess := testSession()

	checkin, err := h.Checkin(context.Background(), sess)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	area, err := h.AreaView(context.Background(), sess)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sel, err := h.OutletSelect(context.Background(), sess)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if checkin.Bodies[0] != area.Bodies[0] || area.Bodies[0] != sel.Bodies[0] {
		t.Errorf("empty-plan messages differ:\ncheckin: %s\narea: %s\nselect: %s",
			checkin.Bodies[0], area.Bodies[0], sel.Bodies[0])
	}
	for _, res := range []models.HandlerResult{checkin, area, sel} {
		if res.NextState != models.StateGreeting {
			t.Errorf("expected empty-plan next state %s, got %s", models.StateGreeting, res.NextState)
		}
	}
}

func TestAreaViewGroupsAndNumbers(t *testing.T) {
	p := &testProvider{plan: fiveOutletPlan()}
	h, _ := newTestHandlers(p, nil)
	sess := testSession()
	res, err := h.AreaView(context.Background(), sess)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body := res.Bodies[0]
	// Areas sorted alphabetically: Dehiwala, Maharagama, Nugegoda.
	if strings.Index(body, "Dehiwala") > strings.Index(body, "Maharagama") {
		t.Error("expected areas sorted alphabetically")
	}
	for _, want := range []string{"1. ", "2. ", "3. ", "4. ", "5. "} {
		if !strings.Contains(body, want) {
			t.Errorf("expected continuous numbering containing %q", want)
		}
	}
	// The numbered ordering comes back as a delta for the driver to cache.
	if len(res.PlanSnapshot) != 5 {
		t.Fatalf("expected 5 snapshot entries, got %d", len(res.PlanSnapshot))
	}
	if res.PlanSnapshot[0].Area != "Dehiwala" {
		t.Errorf("expected snapshot to follow rendered order, got %+v", res.PlanSnapshot[0])
	}
	if len(sess.PlanSnapshot) != 0 {
		t.Error("expected the handler to leave the session untouched")
	}
}

func TestOutletSelectListsPlanOrder(t *testing.T) {
	p := &testProvider{plan: fiveOutletPlan()}
	h, _ := newTestHandlers(p, nil)
	sess := testSession()
	res, err := h.OutletSelect(context.Background(), sess)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(res.Bodies[0], "1. ⭐ Sathosa Nugegoda (Nugegoda)") {
		t.Errorf("expected first plan entry with priority star, got:\n%s", res.Bodies[0])
	}
	if res.NextState != models.StateOutletSelect {
		t.Errorf("expected next state %s, got %s", models.StateOutletSelect, res.NextState)
	}
	if len(res.PlanSnapshot) != 5 {
		t.Errorf("expected plan snapshot delta, got %d entries", len(res.PlanSnapshot))
	}
	if len(sess.PlanSnapshot) != 0 {
		t.Error("expected the handler to leave the session untouched")
	}
}

func TestOutletDetailsBoundaries(t *testing.T) {
	p := &testProvider{plan: fiveOutletPlan(), outlets: testOutlets()}
	h, _ := newTestHandlers(p, &mockAI{response: strings.Repeat("උපදෙස් ", 10)})

	for _, input := range []string{"0", "6"} {
		sess := testSession()
		sess.CurrentState = models.StateOutletSelect
		sess.PlanSnapshot = fiveOutletPlan()
		res, err := h.OutletDetails(context.Background(), sess, input)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(res.Bodies[0], "1 සිට 5 අතර") {
			t.Errorf("input %s: expected range correction, got %s", input, res.Bodies[0])
		}
		if res.NextState != models.StateOutletSelect {
			t.Errorf("input %s: expected next state %s, got %s", input, models.StateOutletSelect, res.NextState)
		}
	}
}

func TestOutletDetailsLazyLoadReturnsSnapshotDelta(t *testing.T) {
	p := &testProvider{plan: fiveOutletPlan(), outlets: testOutlets()}
	h, _ := newTestHandlers(p, nil)
	sess := testSession()
	sess.CurrentState = models.StateOutletSelect

	// No cached snapshot: the handler loads the plan itself and hands it
	// back as a delta even on a correction reply.
	res, err := h.OutletDetails(context.Background(), sess, "9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(res.Bodies[0], "1 සිට 5 අතර") {
		t.Errorf("expected range correction, got %s", res.Bodies[0])
	}
	if len(res.PlanSnapshot) != 5 {
		t.Errorf("expected loaded plan as snapshot delta, got %d entries", len(res.PlanSnapshot))
	}
}

func TestOutletDetailsValidSelection(t *testing.T) {
	p := &testProvider{
		plan:    fiveOutletPlan(),
		outlets: testOutlets(),
		targets: map[string]models.MonthlyTarget{"CMB003": {OutletID: "CMB003", YearMonth: "2024-03", TargetLitres: 500, CompletedLitres: 250}},
		skus:    map[string][]models.SKUPerformance{"CMB003": {{SKUName: "Chocolate 1L", AvgSalesLitres: 20, Rank: 1}}},
		history: map[string][]models.VisitHistoryEntry{"CMB003": {{SalesLitres: 55}}},
	}
	coachText := strings.Repeat("හොඳට විකුණන්න ", 5)
	h, _ := newTestHandlers(p, &mockAI{response: coachText})
	sess := testSession()
	sess.CurrentState = models.StateOutletSelect
	sess.PlanSnapshot = fiveOutletPlan()

	res, err := h.OutletDetails(context.Background(), sess, "3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Bodies) != 2 {
		t.Fatalf("expected two messages (stats, coaching), got %d", len(res.Bodies))
	}
	if !strings.Contains(res.Bodies[0], "Food City Maharagama") {
		t.Errorf("expected stats for plan entry 3, got:\n%s", res.Bodies[0])
	}
	if !strings.Contains(res.Bodies[0], "මාසික Target: 500L") {
		t.Errorf("expected monthly target in stats, got:\n%s", res.Bodies[0])
	}
	if !strings.Contains(res.Bodies[1], strings.TrimSpace(coachText)) {
		t.Errorf("expected AI coaching in second message, got:\n%s", res.Bodies[1])
	}
	if res.NextState != models.StateOutletDetails {
		t.Errorf("expected next state %s, got %s", models.StateOutletDetails, res.NextState)
	}
	if res.CurrentOutlet != "CMB003" {
		t.Errorf("expected current outlet delta CMB003, got %s", res.CurrentOutlet)
	}
	if res.VisitedOutlet != "CMB003" {
		t.Errorf("expected visited outlet delta CMB003, got %s", res.VisitedOutlet)
	}
	if sess.CurrentOutlet != "" || len(sess.OutletsVisited) != 0 {
		t.Errorf("expected the handler to leave the session untouched, got %q %v", sess.CurrentOutlet, sess.OutletsVisited)
	}
}

func TestOutletDetailsCoachingFallback(t *testing.T) {
	p := &testProvider{plan: fiveOutletPlan(), outlets: testOutlets()}
	h, _ := newTestHandlers(p, &mockAI{err: errors.New("api down")})
	sess := testSession()
	sess.PlanSnapshot = fiveOutletPlan()
	sess.CurrentState = models.StateOutletSelect

	res, err := h.OutletDetails(context.Background(), sess, "1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Bodies) != 2 {
		t.Fatalf("expected two messages, got %d", len(res.Bodies))
	}
	if !strings.Contains(res.Bodies[1], "ඔබට හැකියි!") {
		t.Errorf("expected static fallback coaching, got:\n%s", res.Bodies[1])
	}
}

func TestOutletDetailsNonNumericReprompts(t *testing.T) {
	p := &testProvider{plan: fiveOutletPlan(), outlets: testOutlets()}
	h, _ := newTestHandlers(p, nil)
	sess := testSession()
	sess.CurrentState = models.StateAreaView
	sess.PlanSnapshot = fiveOutletPlan()

	res, err := h.OutletDetails(context.Background(), sess, "OUTLET_DETAILS")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.NextState != models.StateOutletSelect {
		t.Errorf("expected re-prompt into %s, got %s", models.StateOutletSelect, res.NextState)
	}
}

func TestSummaryTrackedMetricsAndTone(t *testing.T) {
	p := &testProvider{plan: fiveOutletPlan(), outlets: testOutlets()}
	h, st := newTestHandlers(p, nil)
	for i, id := range []string{"CMB001", "CMB002", "CMB003", "CMB004"} {
		err := st.AddVisit(models.VisitRecord{
			ID: id, DSRName: "Nuwan Perera", OutletID: id, Date: "2024-03-15",
			VisitTime: "09:00", SalesLitres: 50, Productive: i != 3,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	sess := testSession()
	res, err := h.Summary(context.Background(), sess)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body := res.Bodies[0]
	if !strings.Contains(body, "Visit කළ Outlets: 4 / 5") {
		t.Errorf("expected tracked visit counts, got:\n%s", body)
	}
	// 4/5 = 80% adherence hits the congratulatory branch.
	if !strings.Contains(body, "හොඳ කොටස!") {
		t.Errorf("expected congratulatory tone at 80%%, got:\n%s", body)
	}
	if !strings.Contains(body, "New City Mart") {
		t.Errorf("expected unvisited outlet in tomorrow hints, got:\n%s", body)
	}
	if res.NextState != models.StateEndSummary {
		t.Errorf("expected next state %s, got %s", models.StateEndSummary, res.NextState)
	}
}

func TestSummaryEmptyPlan(t *testing.T) {
	h, _ := newTestHandlers(&testProvider{}, nil)
	res, err := h.Summary(context.Background(), testSession())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.NextState != models.StateGreeting {
		t.Errorf("expected next state %s, got %s", models.StateGreeting, res.NextState)
	}
}
