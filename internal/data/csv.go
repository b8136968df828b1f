// Package data: CSV-backed Provider implementation.
package data

import (
	"encoding/csv"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/BeatBard/ccs-pops/internal/models"
)

// Dataset file names within the data directory.
const (
	dailyPlanFile      = "daily_plan.csv"
	outletDetailsFile  = "outlet_details.csv"
	visitHistoryFile   = "visit_history.csv"
	skuPerformanceFile = "sku_performance_by_outlet.csv"
	monthlyTargetsFile = "outlet_monthly_targets.csv"
)

// CSVProvider reads the sales dataset from CSV files in a directory. Each
// file loads lazily on first use and stays cached; a missing file behaves as
// an empty table.
type CSVProvider struct {
	dir string
	now func() time.Time

	planOnce    sync.Once
	plans       []models.DailyPlanEntry
	outletOnce  sync.Once
	outlets     map[string]models.Outlet
	visitOnce   sync.Once
	visits      []models.VisitHistoryEntry
	skuOnce     sync.Once
	skus        []models.SKUPerformance
	targetOnce  sync.Once
	targets     map[string]models.MonthlyTarget
}

// NewCSVProvider creates a provider reading from the given data directory.
func NewCSVProvider(dir string) *CSVProvider {
	return &CSVProvider{dir: dir, now: time.Now}
}

// readTable reads a CSV file into header-keyed rows. A missing file logs and
// returns no rows so partial datasets degrade instead of failing turns.
func (p *CSVProvider) readTable(filename string) []map[string]string {
	path := filepath.Join(p.dir, filename)
	f, err := os.Open(path)
	if err != nil {
		slog.Warn("Dataset file not available", "file", path, "error", err)
		return nil
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		slog.Error("Failed to parse dataset file", "file", path, "error", err)
		return nil
	}
	if len(records) < 2 {
		return nil
	}
	header := records[0]
	rows := make([]map[string]string, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseInt(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}

func (p *CSVProvider) loadPlans() {
	for _, row := range p.readTable(dailyPlanFile) {
		p.plans = append(p.plans, models.DailyPlanEntry{
			DSRName:           row["dsr_name"],
			Date:              row["date"],
			OutletID:          row["outlet_id"],
			OutletName:        row["outlet_name"],
			OutletType:        row["outlet_type"],
			Area:              row["area"],
			Priority:          row["priority"],
			TargetSalesLitres: parseFloat(row["target_sales_litres"]),
			LastVisitLitres:   parseFloat(row["last_visit_sales_litres"]),
			VisitOrder:        parseInt(row["visit_order"]),
		})
	}
	slog.Debug("Daily plan dataset loaded", "rows", len(p.plans))
}

func (p *CSVProvider) loadOutlets() {
	p.outlets = make(map[string]models.Outlet)
	for _, row := range p.readTable(outletDetailsFile) {
		o := models.Outlet{
			OutletID:        row["outlet_id"],
			OutletName:      row["outlet_name"],
			OutletType:      row["outlet_type"],
			Area:            row["area"],
			District:        row["district"],
			Latitude:        parseFloat(row["latitude"]),
			Longitude:       parseFloat(row["longitude"]),
			POINearby:       row["poi_nearby"],
			CoolerAvailable: row["cooler_available"],
			ShelfSpaceSqft:  parseFloat(row["shelf_space_sqft"]),
		}
		p.outlets[o.OutletID] = o
	}
	slog.Debug("Outlet dataset loaded", "rows", len(p.outlets))
}

func (p *CSVProvider) loadVisits() {
	for _, row := range p.readTable(visitHistoryFile) {
		p.visits = append(p.visits, models.VisitHistoryEntry{
			DSRName:         row["dsr_name"],
			OutletID:        row["outlet_id"],
			VisitDate:       row["visit_date"],
			SalesLitres:     parseFloat(row["sales_litres"]),
			ProductiveVisit: row["productive_visit"],
		})
	}
	slog.Debug("Visit history dataset loaded", "rows", len(p.visits))
}

func (p *CSVProvider) loadSKUs() {
	for _, row := range p.readTable(skuPerformanceFile) {
		p.skus = append(p.skus, models.SKUPerformance{
			OutletID:       row["outlet_id"],
			SKUName:        row["sku_name"],
			AvgSalesLitres: parseFloat(row["avg_sales_per_visit_litres"]),
			Rank:           parseInt(row["rank"]),
		})
	}
	slog.Debug("SKU performance dataset loaded", "rows", len(p.skus))
}

func (p *CSVProvider) loadTargets() {
	p.targets = make(map[string]models.MonthlyTarget)
	for _, row := range p.readTable(monthlyTargetsFile) {
		t := models.MonthlyTarget{
			OutletID:        row["outlet_id"],
			YearMonth:       row["year_month"],
			TargetLitres:    parseFloat(row["monthly_target_litres"]),
			CompletedLitres: parseFloat(row["monthly_completed_litres"]),
		}
		p.targets[t.OutletID+"|"+t.YearMonth] = t
	}
	slog.Debug("Monthly targets dataset loaded", "rows", len(p.targets))
}

func (p *CSVProvider) DailyPlan(dsrName, date string) ([]models.DailyPlanEntry, error) {
	p.planOnce.Do(p.loadPlans)
	var out []models.DailyPlanEntry
	for _, entry := range p.plans {
		if entry.DSRName == dsrName && entry.Date == date {
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VisitOrder < out[j].VisitOrder })
	return out, nil
}

func (p *CSVProvider) Outlet(outletID string) (*models.Outlet, error) {
	p.outletOnce.Do(p.loadOutlets)
	o, ok := p.outlets[outletID]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (p *CSVProvider) VisitHistory(outletID string, limit int) ([]models.VisitHistoryEntry, error) {
	p.visitOnce.Do(p.loadVisits)
	var out []models.VisitHistoryEntry
	for _, v := range p.visits {
		if v.OutletID == outletID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VisitDate > out[j].VisitDate })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (p *CSVProvider) TrailingAvg(dsrName, outletID string) (float64, error) {
	p.visitOnce.Do(p.loadVisits)
	cutoff := p.now().AddDate(0, -models.TrailingAvgMonths, 0).Format("2006-01-02")
	var sum float64
	var n int
	for _, v := range p.visits {
		if v.DSRName == dsrName && v.OutletID == outletID && v.VisitDate >= cutoff {
			sum += v.SalesLitres
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return sum / float64(n), nil
}

func (p *CSVProvider) TopSKUs(outletID string, limit int) ([]models.SKUPerformance, error) {
	p.skuOnce.Do(p.loadSKUs)
	var out []models.SKUPerformance
	for _, s := range p.skus {
		if s.OutletID == outletID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (p *CSVProvider) MonthlyTarget(outletID, yearMonth string) (*models.MonthlyTarget, error) {
	p.targetOnce.Do(p.loadTargets)
	t, ok := p.targets[outletID+"|"+yearMonth]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

var _ Provider = (*CSVProvider)(nil)
