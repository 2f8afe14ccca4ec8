package lubelogger

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/lubesync/internal/models"
)

// The LubeLogger API serializes most numeric fields as strings and emits
// dates in several formats depending on server locale. The flex types and
// parseRecordDate absorb that variance at the wire boundary so the rest
// of the application only sees typed records.

// flexInt decodes from a JSON number or a numeric string.
type flexInt int64

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// Some installs report odometer-style ints as decimals
		v, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return err
		}
		n = int64(v)
	}
	*f = flexInt(n)
	return nil
}

// flexFloat decodes from a JSON number or a numeric string, tolerating
// thousands separators.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	s = strings.ReplaceAll(s, ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

// recordDateFormats lists accepted non-ISO layouts, European before US to
// match server behavior for ambiguous day/month values.
var recordDateFormats = []string{
	"02/01/2006",
	"02/01/2006 15:04:05",
	"01/02/2006",
	"01/02/2006 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseRecordDate parses a LubeLogger date string. Returns the zero time
// when the string is empty or matches no known layout.
func parseRecordDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, strings.Replace(s, "Z", "+00:00", 1)); err == nil {
		return t
	}
	for _, layout := range recordDateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Go's JSON decoder matches field names case-insensitively, which covers
// the API's mixed "Id"/"id" and "Date"/"date" casing.

type vehicleDTO struct {
	ID    flexInt `json:"id"`
	Name  string  `json:"name"`
	Make  string  `json:"make"`
	Model string  `json:"model"`
	Year  flexInt `json:"year"`
}

func (d vehicleDTO) toVehicle() models.Vehicle {
	return models.Vehicle{
		ID:    int64(d.ID),
		Name:  d.Name,
		Make:  d.Make,
		Model: d.Model,
		Year:  int(d.Year),
	}
}

type recordDTO struct {
	ID          flexInt   `json:"id"`
	Date        string    `json:"date"`
	Description string    `json:"description"`
	Notes       string    `json:"notes"`
	Cost        flexFloat `json:"cost"`
	Odometer    flexFloat `json:"odometer"`
}

func (d recordDTO) toRawRecord(category models.Category) models.RawRecord {
	desc := d.Description
	if desc == "" {
		desc = d.Notes
	}
	return models.RawRecord{
		ID:          int64(d.ID),
		Category:    category,
		Date:        parseRecordDate(d.Date),
		Description: desc,
		Cost:        float64(d.Cost),
		Odometer:    float64(d.Odometer),
	}
}

// planDTO covers the plan (maintenance) endpoint. Progress "Done" marks a
// completed item; anything else is still open.
type planDTO struct {
	ID           flexInt   `json:"id"`
	Description  string    `json:"description"`
	DateCreated  string    `json:"dateCreated"`
	DateModified string    `json:"dateModified"`
	Progress     string    `json:"progress"`
	Cost         flexFloat `json:"cost"`
}

func (d planDTO) toRawRecord() models.RawRecord {
	date := parseRecordDate(d.DateCreated)
	if date.IsZero() {
		date = parseRecordDate(d.DateModified)
	}
	return models.RawRecord{
		ID:          int64(d.ID),
		Category:    models.CategoryPlan,
		Date:        date,
		Description: d.Description,
		Cost:        float64(d.Cost),
		Completed:   strings.EqualFold(d.Progress, "done"),
	}
}

// reminderDTO covers the reminders endpoint. Due days/distance may be
// absent depending on the reminder metric.
type reminderDTO struct {
	ID          flexInt         `json:"id"`
	Description string          `json:"description"`
	DueDate     string          `json:"dueDate"`
	DueDays     json.RawMessage `json:"dueDays"`
	DueDistance json.RawMessage `json:"dueDistance"`
	Metric      string          `json:"metric"`
}

func (d reminderDTO) toRawRecord() models.RawRecord {
	rec := models.RawRecord{
		ID:          int64(d.ID),
		Category:    models.CategoryReminder,
		Date:        parseRecordDate(d.DueDate),
		Description: d.Description,
		DueDays:     -1,
		DueDistance: -1,
	}
	var days flexInt
	if len(d.DueDays) > 0 && days.UnmarshalJSON(d.DueDays) == nil {
		rec.DueDays = int(days)
	}
	var dist flexFloat
	if len(d.DueDistance) > 0 && dist.UnmarshalJSON(d.DueDistance) == nil {
		rec.DueDistance = float64(dist)
	}
	return rec
}

// adjustedOdometerDTO covers the adjusted odometer endpoint, which returns
// a single object rather than a record list.
type adjustedOdometerDTO struct {
	Odometer flexFloat `json:"odometer"`
}

// authResponseDTO is the token issued by the login endpoint.
type authResponseDTO struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expiresAt"`
}
