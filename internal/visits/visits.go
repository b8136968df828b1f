// Package visits tracks outlet visits recorded during the day and computes
// end-of-day performance metrics from the plan and the recorded visits.
package visits

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/BeatBard/ccs-pops/internal/data"
	"github.com/BeatBard/ccs-pops/internal/models"
	"github.com/BeatBard/ccs-pops/internal/store"
)

// Tracker records visits into the store and derives daily metrics.
type Tracker struct {
	store    store.Store
	provider data.Provider
	now      func() time.Time
}

// NewTracker creates a tracker over the given store and dataset provider.
func NewTracker(st store.Store, provider data.Provider) *Tracker {
	return &Tracker{store: st, provider: provider, now: time.Now}
}

// Progress summarizes the visits recorded so far on one day.
type Progress struct {
	TotalVisited     int      `json:"total_visited"`
	ProductiveVisits int      `json:"productive_visits"`
	TotalSales       float64  `json:"total_sales"`
	VisitedOutlets   []string `json:"visited_outlets"`
}

// RecordVisit stores one visit for today and returns the stored record.
func (t *Tracker) RecordVisit(dsrName, outletID string, salesLitres float64, productive bool) (*models.VisitRecord, error) {
	now := t.now()
	v := models.VisitRecord{
		ID:          uuid.NewString(),
		DSRName:     dsrName,
		OutletID:    outletID,
		Date:        now.Format("2006-01-02"),
		VisitTime:   now.Format("15:04"),
		SalesLitres: salesLitres,
		Productive:  productive,
	}
	if err := t.store.AddVisit(v); err != nil {
		return nil, fmt.Errorf("failed to record visit: %w", err)
	}
	slog.Info("Visit recorded", "dsr", dsrName, "outletID", outletID, "sales", salesLitres)
	return &v, nil
}

// GetProgress returns the running totals for a DSR on a date.
func (t *Tracker) GetProgress(dsrName, date string) (*Progress, error) {
	visits, err := t.store.GetVisits(dsrName, date)
	if err != nil {
		return nil, fmt.Errorf("failed to load visits: %w", err)
	}
	p := &Progress{}
	for _, v := range visits {
		p.TotalVisited++
		if v.Productive {
			p.ProductiveVisits++
		}
		p.TotalSales += v.SalesLitres
		p.VisitedOutlets = append(p.VisitedOutlets, v.OutletID)
	}
	return p, nil
}

// Metrics computes the day's performance metrics for a DSR: route adherence,
// target achievement, ahead and behind counts, and the not-visited list in
// plan order. Percentages are rounded to one decimal.
func (t *Tracker) Metrics(dsrName, date string) (*models.DayMetrics, error) {
	plan, err := t.provider.DailyPlan(dsrName, date)
	if err != nil {
		return nil, fmt.Errorf("failed to load daily plan: %w", err)
	}
	visits, err := t.store.GetVisits(dsrName, date)
	if err != nil {
		return nil, fmt.Errorf("failed to load visits: %w", err)
	}

	visited := make(map[string]models.VisitRecord, len(visits))
	m := &models.DayMetrics{PlannedCount: len(plan)}
	for _, v := range visits {
		visited[v.OutletID] = v
		m.VisitedCount++
		if v.Productive {
			m.ProductiveVisits++
		}
		m.TotalSalesLitres += v.SalesLitres
	}

	for _, entry := range plan {
		m.PlannedTarget += entry.TargetSalesLitres
		if entry.IsPriority() {
			m.PriorityPlanned++
		}
		v, ok := visited[entry.OutletID]
		if !ok {
			m.NotVisited = append(m.NotVisited, entry.OutletID)
			continue
		}
		if entry.IsPriority() {
			m.PriorityVisited++
		}
		if v.SalesLitres >= entry.TargetSalesLitres {
			m.OutletsAhead++
		} else {
			m.OutletsBehind++
		}
	}

	if m.PlannedCount > 0 {
		m.RouteAdherence = round1(float64(m.VisitedCount) / float64(m.PlannedCount) * 100)
	}
	if m.PlannedTarget > 0 {
		m.TargetAchievement = round1(m.TotalSalesLitres / m.PlannedTarget * 100)
	}
	return m, nil
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
