// Package facts reduces raw per-category record lists into the per-vehicle
// snapshot unit.
package facts

import (
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/lubesync/internal/models"
)

// CategoryResult carries the outcome of one category fetch for one
// vehicle. A nil Err with no records means the category is empty; a
// non-nil Err means the fetch failed and the previous value should be
// carried over by the coordinator.
type CategoryResult struct {
	Records []models.RawRecord
	Err     error
}

// Service is the normalizer. Stateless apart from its logger.
type Service struct {
	logger arbor.ILogger
}

// NewService creates a new normalizer service.
func NewService(logger arbor.ILogger) *Service {
	return &Service{logger: logger}
}

// Reduce builds a fresh VehicleFacts from a complete set of category
// results. "Latest" categories pick the maximal date (ties broken by the
// highest record id); "next" categories pick the nearest-dated incomplete
// item, past-due items included. Failed categories are flagged, never
// silently blanked.
func (s *Service) Reduce(vehicle models.Vehicle, refTime time.Time, results map[models.Category]CategoryResult) models.VehicleFacts {
	facts := models.VehicleFacts{
		Vehicle: vehicle,
		Facts:   make(map[models.Category]models.CategoryFact, len(models.AllCategories())),
	}

	for _, category := range models.AllCategories() {
		result, ok := results[category]
		if !ok || result.Err != nil {
			facts.Facts[category] = models.CategoryFact{Status: models.StatusFailed}
			continue
		}

		var record *models.RawRecord
		if category.IsNextSelected() {
			record = selectNext(result.Records)
		} else {
			record = selectLatest(result.Records)
		}

		if record == nil {
			facts.Facts[category] = models.CategoryFact{Status: models.StatusEmpty}
			continue
		}
		facts.Facts[category] = models.CategoryFact{Status: models.StatusPresent, Record: record}
	}

	return facts
}

// selectLatest picks the record with the maximal date; ties broken by the
// highest record id for a deterministic, stable pick. An adjusted
// odometer value always wins over raw records.
func selectLatest(records []models.RawRecord) *models.RawRecord {
	var best *models.RawRecord
	for i := range records {
		rec := &records[i]
		if rec.Adjusted {
			return rec
		}
		if best == nil || laterThan(rec, best) {
			best = rec
		}
	}
	return best
}

func laterThan(a, b *models.RawRecord) bool {
	if !a.Date.Equal(b.Date) {
		return a.Date.After(b.Date)
	}
	return a.ID > b.ID
}

// selectNext picks the upcoming item among records not yet completed.
// Past-due incomplete items remain eligible, so the nearest date overall
// wins. Undated reminders fall back to due-days/due-distance priority.
// Ties broken by the lowest record id.
func selectNext(records []models.RawRecord) *models.RawRecord {
	var best *models.RawRecord
	for i := range records {
		rec := &records[i]
		if rec.Completed {
			continue
		}
		if best == nil || soonerThan(rec, best) {
			best = rec
		}
	}
	return best
}

func soonerThan(a, b *models.RawRecord) bool {
	switch {
	case !a.Date.IsZero() && !b.Date.IsZero():
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
	case !a.Date.IsZero():
		return true
	case !b.Date.IsZero():
		return false
	default:
		ap, bp := duePriority(a), duePriority(b)
		if ap != bp {
			return ap < bp
		}
	}
	return a.ID < b.ID
}

// maxDuePriority ranks reminders with no usable due information last.
const maxDuePriority = float64(1 << 30)

// duePriority mirrors the remote service's reminder urgency: the smaller
// of due days and due distance, whichever metrics are set.
func duePriority(rec *models.RawRecord) float64 {
	days := maxDuePriority
	if rec.DueDays >= 0 {
		days = float64(rec.DueDays)
	}
	distance := maxDuePriority
	if rec.DueDistance >= 0 {
		distance = rec.DueDistance
	}
	if days < distance {
		return days
	}
	return distance
}
