package visits

import (
	"testing"
	"time"

	"github.com/BeatBard/ccs-pops/internal/models"
	"github.com/BeatBard/ccs-pops/internal/store"
)

// stubProvider returns a fixed plan regardless of arguments.
type stubProvider struct {
	plan []models.DailyPlanEntry
}

func (s *stubProvider) DailyPlan(dsrName, date string) ([]models.DailyPlanEntry, error) {
	return s.plan, nil
}
func (s *stubProvider) Outlet(outletID string) (*models.Outlet, error) { return nil, nil }
func (s *stubProvider) VisitHistory(outletID string, limit int) ([]models.VisitHistoryEntry, error) {
	return nil, nil
}
func (s *stubProvider) TrailingAvg(dsrName, outletID string) (float64, error) { return 0, nil }
func (s *stubProvider) TopSKUs(outletID string, limit int) ([]models.SKUPerformance, error) {
	return nil, nil
}
func (s *stubProvider) MonthlyTarget(outletID, yearMonth string) (*models.MonthlyTarget, error) {
	return nil, nil
}

func newTestTracker(plan []models.DailyPlanEntry) *Tracker {
	t := NewTracker(store.NewInMemoryStore(), &stubProvider{plan: plan})
	t.now = func() time.Time { return time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC) }
	return t
}

func TestRecordVisitAndProgress(t *testing.T) {
	tr := newTestTracker(nil)
	v, err := tr.RecordVisit("Nuwan Perera", "CMB001", 45, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Date != "2024-03-15" || v.VisitTime != "09:30" {
		t.Errorf("unexpected visit stamps: %+v", v)
	}
	if _, err := tr.RecordVisit("Nuwan Perera", "CMB002", 0, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p, err := tr.GetProgress("Nuwan Perera", "2024-03-15")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.TotalVisited != 2 || p.ProductiveVisits != 1 || p.TotalSales != 45 {
		t.Errorf("unexpected progress: %+v", p)
	}
	if len(p.VisitedOutlets) != 2 {
		t.Errorf("expected 2 visited outlets, got %v", p.VisitedOutlets)
	}
}

func TestReRecordedVisitCountsOnce(t *testing.T) {
	plan := []models.DailyPlanEntry{
		{OutletID: "CMB001", Priority: "No", TargetSalesLitres: 50, VisitOrder: 1},
		{OutletID: "CMB002", Priority: "No", TargetSalesLitres: 30, VisitOrder: 2},
	}
	tr := newTestTracker(plan)
	// A corrected entry for the same outlet replaces the first one.
	if _, err := tr.RecordVisit("Nuwan Perera", "CMB001", 40, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := tr.RecordVisit("Nuwan Perera", "CMB001", 60, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p, err := tr.GetProgress("Nuwan Perera", "2024-03-15")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.TotalVisited != 1 || p.TotalSales != 60 {
		t.Errorf("unexpected progress after re-record: %+v", p)
	}

	m, err := tr.Metrics("Nuwan Perera", "2024-03-15")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.VisitedCount != 1 {
		t.Errorf("expected 1 visited outlet, got %d", m.VisitedCount)
	}
	if m.RouteAdherence != 50 {
		t.Errorf("expected route adherence 50, got %v", m.RouteAdherence)
	}
	if m.TotalSalesLitres != 60 {
		t.Errorf("expected corrected sales 60, got %v", m.TotalSalesLitres)
	}
}

func TestMetrics(t *testing.T) {
	plan := []models.DailyPlanEntry{
		{OutletID: "CMB001", Priority: "Yes", TargetSalesLitres: 50, VisitOrder: 1},
		{OutletID: "CMB002", Priority: "No", TargetSalesLitres: 30, VisitOrder: 2},
		{OutletID: "CMB003", Priority: "Yes", TargetSalesLitres: 20, VisitOrder: 3},
	}
	tr := newTestTracker(plan)
	if _, err := tr.RecordVisit("Nuwan Perera", "CMB001", 60, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := tr.RecordVisit("Nuwan Perera", "CMB002", 10, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m, err := tr.Metrics("Nuwan Perera", "2024-03-15")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.PlannedCount != 3 || m.VisitedCount != 2 {
		t.Errorf("unexpected counts: %+v", m)
	}
	if m.PriorityPlanned != 2 || m.PriorityVisited != 1 {
		t.Errorf("unexpected priority counts: %+v", m)
	}
	if m.ProductiveVisits != 1 {
		t.Errorf("expected 1 productive visit, got %d", m.ProductiveVisits)
	}
	if m.OutletsAhead != 1 || m.OutletsBehind != 1 {
		t.Errorf("unexpected ahead/behind: %+v", m)
	}
	if m.RouteAdherence != 66.7 {
		t.Errorf("expected route adherence 66.7, got %v", m.RouteAdherence)
	}
	if m.TargetAchievement != 70 {
		t.Errorf("expected target achievement 70, got %v", m.TargetAchievement)
	}
	if len(m.NotVisited) != 1 || m.NotVisited[0] != "CMB003" {
		t.Errorf("unexpected not-visited list: %v", m.NotVisited)
	}
}

func TestMetricsEmptyPlan(t *testing.T) {
	tr := newTestTracker(nil)
	m, err := tr.Metrics("Nuwan Perera", "2024-03-15")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.RouteAdherence != 0 || m.TargetAchievement != 0 {
		t.Errorf("expected zero metrics on empty plan, got %+v", m)
	}
}
