package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Category identifies one record type fetched from the remote service.
type Category string

const (
	CategoryOdometer Category = "odometer"
	CategoryPlan     Category = "plan"
	CategoryGas      Category = "gas"
	CategoryService  Category = "service"
	CategoryRepair   Category = "repair"
	CategoryUpgrade  Category = "upgrade"
	CategorySupply   Category = "supply"
	CategoryTax      Category = "tax"
	CategoryReminder Category = "reminder"
)

// AllCategories returns every category in a stable order.
func AllCategories() []Category {
	return []Category{
		CategoryOdometer,
		CategoryPlan,
		CategoryGas,
		CategoryService,
		CategoryRepair,
		CategoryUpgrade,
		CategorySupply,
		CategoryTax,
		CategoryReminder,
	}
}

// IsNextSelected reports whether this category picks the upcoming ("next")
// record instead of the most recent one.
func (c Category) IsNextSelected() bool {
	return c == CategoryPlan || c == CategoryReminder
}

// Vehicle is one tracked asset in the remote service.
type Vehicle struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Make  string `json:"make"`
	Model string `json:"model"`
	Year  int    `json:"year"`
}

// DisplayName builds a friendly name from year/make/model, falling back to
// the stored name, then the id.
func (v Vehicle) DisplayName() string {
	parts := make([]string, 0, 3)
	if v.Year > 0 {
		parts = append(parts, fmt.Sprintf("%d", v.Year))
	}
	if v.Make != "" {
		parts = append(parts, v.Make)
	}
	if v.Model != "" {
		parts = append(parts, v.Model)
	}
	if len(parts) > 0 {
		return strings.Join(parts, " ")
	}
	if v.Name != "" {
		return v.Name
	}
	return fmt.Sprintf("Vehicle %d", v.ID)
}

// RawRecord is one entry from a single remote endpoint, tagged with its
// category. Immutable once fetched.
type RawRecord struct {
	ID          int64     `json:"id"`
	Category    Category  `json:"category"`
	Date        time.Time `json:"date"`
	Description string    `json:"description,omitempty"`
	Cost        float64   `json:"cost,omitempty"`
	Odometer    float64   `json:"odometer,omitempty"`
	Adjusted    bool      `json:"adjusted,omitempty"`
	Completed   bool      `json:"completed,omitempty"`
	DueDays     int       `json:"due_days,omitempty"`
	DueDistance float64   `json:"due_distance,omitempty"`
}

// CategoryStatus distinguishes "no record exists" from "fetch failed".
type CategoryStatus string

const (
	StatusEmpty   CategoryStatus = "empty"
	StatusPresent CategoryStatus = "present"
	StatusFailed  CategoryStatus = "failed"
)

// CategoryFact is the reduced outcome for one category of one vehicle.
// Carried marks a value retained from a previous snapshot because the
// current cycle's fetch for this category failed.
type CategoryFact struct {
	Status  CategoryStatus `json:"status"`
	Record  *RawRecord     `json:"record,omitempty"`
	Carried bool           `json:"carried,omitempty"`
}

// VehicleFacts is the published per-vehicle unit. Never mutated in place:
// always constructed fresh from a complete set of fetch results, then
// swapped into a snapshot.
type VehicleFacts struct {
	Vehicle Vehicle                   `json:"vehicle"`
	Facts   map[Category]CategoryFact `json:"facts"`
}

// Fact returns the fact for a category, defaulting to failed when the
// category was never populated.
func (f VehicleFacts) Fact(c Category) CategoryFact {
	if fact, ok := f.Facts[c]; ok {
		return fact
	}
	return CategoryFact{Status: StatusFailed}
}

// Present reports whether the category holds a usable record.
func (f VehicleFacts) Present(c Category) bool {
	fact := f.Fact(c)
	return fact.Status == StatusPresent && fact.Record != nil
}

// Snapshot maps vehicle ids to their facts. Replaced as a whole on each
// successful refresh; readers always see either the previous complete
// snapshot or the new one.
type Snapshot struct {
	Vehicles map[int64]VehicleFacts `json:"vehicles"`
	TakenAt  time.Time              `json:"taken_at"`
	Cycle    int64                  `json:"cycle"`
}

// VehicleIDs returns the snapshot's vehicle ids in ascending order.
func (s *Snapshot) VehicleIDs() []int64 {
	ids := make([]int64, 0, len(s.Vehicles))
	for id := range s.Vehicles {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Facts looks up one vehicle's facts.
func (s *Snapshot) Facts(vehicleID int64) (VehicleFacts, bool) {
	if s == nil {
		return VehicleFacts{}, false
	}
	facts, ok := s.Vehicles[vehicleID]
	return facts, ok
}
