// Package models: read-only sales dataset records and aggregates.
package models

import "strings"

// Default values used when a lookup returns nothing. Centralized here so
// handlers do not scatter inline fallbacks.
const (
	// DefaultDSRStrength seeds coaching prompts when no profile exists.
	DefaultDSRStrength = "Customer Handling"
	// TopSKULimit is how many SKUs outlet statistics carry.
	TopSKULimit = 5
	// TrailingAvgMonths is the window for the trailing sales average.
	TrailingAvgMonths = 3
)

// Outlet is the master record for a retail point of sale.
type Outlet struct {
	OutletID        string  `json:"outlet_id"`
	OutletName      string  `json:"outlet_name"`
	OutletType      string  `json:"outlet_type"`
	Area            string  `json:"area"`
	District        string  `json:"district"`
	Latitude        float64 `json:"latitude"`
	Longitude       float64 `json:"longitude"`
	POINearby       string  `json:"poi_nearby"` // pipe-separated
	CoolerAvailable string  `json:"cooler_available"`
	ShelfSpaceSqft  float64 `json:"shelf_space_sqft"`
}

// POIList splits the pipe-separated points of interest.
func (o *Outlet) POIList() []string {
	if o.POINearby == "" {
		return nil
	}
	return strings.Split(o.POINearby, "|")
}

// HasCooler reports whether the outlet has a cooler installed.
func (o *Outlet) HasCooler() bool {
	return strings.EqualFold(o.CoolerAvailable, "yes")
}

// DailyPlanEntry is one planned outlet visit for a DSR on a given date.
type DailyPlanEntry struct {
	DSRName           string  `json:"dsr_name"`
	Date              string  `json:"date"` // YYYY-MM-DD
	OutletID          string  `json:"outlet_id"`
	OutletName        string  `json:"outlet_name"`
	OutletType        string  `json:"outlet_type"`
	Area              string  `json:"area"`
	Priority          string  `json:"priority"`
	TargetSalesLitres float64 `json:"target_sales_litres"`
	LastVisitLitres   float64 `json:"last_visit_sales_litres"`
	VisitOrder        int     `json:"visit_order"`
}

// IsPriority reports whether the entry is flagged as a priority visit.
func (p *DailyPlanEntry) IsPriority() bool {
	return strings.EqualFold(p.Priority, "yes")
}

// VisitHistoryEntry is one historical outlet visit from the dataset.
type VisitHistoryEntry struct {
	DSRName         string  `json:"dsr_name"`
	OutletID        string  `json:"outlet_id"`
	VisitDate       string  `json:"visit_date"` // YYYY-MM-DD
	SalesLitres     float64 `json:"sales_litres"`
	ProductiveVisit string  `json:"productive_visit"`
}

// SKUPerformance is a per-outlet product line performance record.
type SKUPerformance struct {
	OutletID       string  `json:"outlet_id"`
	SKUName        string  `json:"sku_name"`
	AvgSalesLitres float64 `json:"avg_sales_per_visit_litres"`
	Rank           int     `json:"rank"`
}

// MonthlyTarget is the month's target and completion for an outlet.
type MonthlyTarget struct {
	OutletID        string  `json:"outlet_id"`
	YearMonth       string  `json:"year_month"` // YYYY-MM
	TargetLitres    float64 `json:"monthly_target_litres"`
	CompletedLitres float64 `json:"monthly_completed_litres"`
}

// ZeroMonthlyTarget returns the default record used when no monthly target
// exists for an outlet.
func ZeroMonthlyTarget(outletID, yearMonth string) MonthlyTarget {
	return MonthlyTarget{OutletID: outletID, YearMonth: yearMonth}
}

// CompletionPercentage computes completed/target as a percentage.
func (m *MonthlyTarget) CompletionPercentage() float64 {
	if m.TargetLitres == 0 {
		return 0
	}
	return m.CompletedLitres / m.TargetLitres * 100
}

// OutletStatistics aggregates everything the outlet-details handler presents.
// Composed on demand from independent lookups; never cached across turns.
type OutletStatistics struct {
	Outlet          Outlet           `json:"outlet"`
	DailyPlan       DailyPlanEntry   `json:"daily_plan"`
	MonthlyTarget   MonthlyTarget    `json:"monthly_target"`
	TopSKUs         []SKUPerformance `json:"top_skus"`
	TrailingAvg     float64          `json:"trailing_3_month_avg"`
	LastVisitLitres float64          `json:"last_visit_sales"`
}

// VisitRecord is one visit recorded during the day via visit tracking.
type VisitRecord struct {
	ID          string  `json:"id"`
	DSRName     string  `json:"dsr_name"`
	OutletID    string  `json:"outlet_id"`
	Date        string  `json:"date"` // YYYY-MM-DD
	VisitTime   string  `json:"visit_time"`
	SalesLitres float64 `json:"sales_litres"`
	Productive  bool    `json:"productive"`
}

// DayMetrics summarizes a DSR's performance for one day, computed from the
// plan and the recorded visits.
type DayMetrics struct {
	PlannedCount      int      `json:"planned_count"`
	VisitedCount      int      `json:"visited_count"`
	PriorityPlanned   int      `json:"priority_planned"`
	PriorityVisited   int      `json:"priority_visited"`
	ProductiveVisits  int      `json:"productive_visits"`
	TotalSalesLitres  float64  `json:"total_sales"`
	PlannedTarget     float64  `json:"planned_target"`
	RouteAdherence    float64  `json:"route_adherence"`
	TargetAchievement float64  `json:"target_achievement"`
	OutletsAhead      int      `json:"outlets_ahead"`
	OutletsBehind     int      `json:"outlets_behind"`
	NotVisited        []string `json:"not_visited"` // outlet IDs in plan order
}
