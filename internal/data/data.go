// Package data provides read-only access to the sales dataset.
//
// A Provider answers the lookups the conversation handlers need: daily plans,
// outlet master records, visit history, SKU performance, and monthly targets.
// The CSV provider in this package is the production implementation; tests
// substitute their own.
package data

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/BeatBard/ccs-pops/internal/models"
)

// Provider is the read-only lookup interface over the sales dataset. Dates
// are YYYY-MM-DD strings; year months are YYYY-MM.
type Provider interface {
	// DailyPlan returns the planned visits for a DSR on a date, sorted by
	// visit order. Empty when the DSR has no plan that day.
	DailyPlan(dsrName, date string) ([]models.DailyPlanEntry, error)
	// Outlet returns the master record for an outlet, or nil when unknown.
	Outlet(outletID string) (*models.Outlet, error)
	// VisitHistory returns the most recent visits to an outlet, newest first.
	VisitHistory(outletID string, limit int) ([]models.VisitHistoryEntry, error)
	// TrailingAvg returns the DSR's average sales at an outlet over the
	// trailing window, 0 when no qualifying visits exist.
	TrailingAvg(dsrName, outletID string) (float64, error)
	// TopSKUs returns the best-ranked SKUs for an outlet.
	TopSKUs(outletID string, limit int) ([]models.SKUPerformance, error)
	// MonthlyTarget returns the outlet's target for a month, or nil when
	// none is recorded.
	MonthlyTarget(outletID, yearMonth string) (*models.MonthlyTarget, error)
}

// GroupByArea buckets plan entries by area, each bucket sorted by visit
// order. Area names keep their dataset spelling.
func GroupByArea(plan []models.DailyPlanEntry) map[string][]models.DailyPlanEntry {
	areas := make(map[string][]models.DailyPlanEntry)
	for _, entry := range plan {
		areas[entry.Area] = append(areas[entry.Area], entry)
	}
	for _, entries := range areas {
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].VisitOrder < entries[j].VisitOrder
		})
	}
	return areas
}

// OutletStatistics composes the full statistics aggregate for one planned
// outlet visit. Returns nil when the outlet is not in the DSR's plan for the
// date or has no master record. The four independent lookups run in parallel.
func OutletStatistics(ctx context.Context, p Provider, dsrName, outletID, date string) (*models.OutletStatistics, error) {
	plan, err := p.DailyPlan(dsrName, date)
	if err != nil {
		return nil, fmt.Errorf("failed to load daily plan: %w", err)
	}
	var planEntry *models.DailyPlanEntry
	for i := range plan {
		if plan[i].OutletID == outletID {
			planEntry = &plan[i]
			break
		}
	}
	if planEntry == nil {
		return nil, nil
	}

	outlet, err := p.Outlet(outletID)
	if err != nil {
		return nil, fmt.Errorf("failed to load outlet: %w", err)
	}
	if outlet == nil {
		return nil, nil
	}

	stats := &models.OutletStatistics{
		Outlet:    *outlet,
		DailyPlan: *planEntry,
	}
	yearMonth := date
	if len(date) >= 7 {
		yearMonth = date[:7]
	}

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		target, err := p.MonthlyTarget(outletID, yearMonth)
		if err != nil {
			return fmt.Errorf("failed to load monthly target: %w", err)
		}
		if target == nil {
			t := models.ZeroMonthlyTarget(outletID, yearMonth)
			target = &t
		}
		stats.MonthlyTarget = *target
		return nil
	})
	g.Go(func() error {
		skus, err := p.TopSKUs(outletID, models.TopSKULimit)
		if err != nil {
			return fmt.Errorf("failed to load top SKUs: %w", err)
		}
		stats.TopSKUs = skus
		return nil
	})
	g.Go(func() error {
		avg, err := p.TrailingAvg(dsrName, outletID)
		if err != nil {
			return fmt.Errorf("failed to load trailing average: %w", err)
		}
		stats.TrailingAvg = avg
		return nil
	})
	g.Go(func() error {
		history, err := p.VisitHistory(outletID, 1)
		if err != nil {
			return fmt.Errorf("failed to load visit history: %w", err)
		}
		if len(history) > 0 {
			stats.LastVisitLitres = history[0].SalesLitres
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return stats, nil
}
