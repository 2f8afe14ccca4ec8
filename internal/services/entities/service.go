// Package entities maps snapshot facts to presentation entity
// descriptors. Consumers create one entity group per vehicle, and only
// for categories that hold a present value: a category with no data must
// not produce a placeholder.
package entities

import (
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/lubesync/internal/models"
)

// Kind identifies one entity type. The enumeration is fixed; presence is
// decided per vehicle from the snapshot.
type Kind string

const (
	KindLatestOdometer Kind = "latest_odometer"
	KindNextPlan       Kind = "next_plan"
	KindLatestFuel     Kind = "latest_fuel"
	KindLatestService  Kind = "latest_service"
	KindLatestRepair   Kind = "latest_repair"
	KindLatestUpgrade  Kind = "latest_upgrade"
	KindLatestSupply   Kind = "latest_supply"
	KindLatestTax      Kind = "latest_tax"
	KindNextReminder   Kind = "next_reminder"
)

// Device classes understood by presentation consumers.
const (
	ClassDistance  = "distance"
	ClassMonetary  = "monetary"
	ClassTimestamp = "timestamp"
)

// Definition describes one entity kind: which category backs it and how a
// value is extracted from the fact.
type Definition struct {
	Kind        Kind
	Category    models.Category
	Name        string
	DeviceClass string
	Unit        string
	Value       func(models.RawRecord) interface{}
}

// Entity is one concrete presentation entity for one vehicle.
type Entity struct {
	UniqueID    string      `json:"unique_id"`
	VehicleID   int64       `json:"vehicle_id"`
	VehicleName string      `json:"vehicle_name"`
	Kind        Kind        `json:"kind"`
	Name        string      `json:"name"`
	DeviceClass string      `json:"device_class"`
	Unit        string      `json:"unit,omitempty"`
	Value       interface{} `json:"value"`
	Stale       bool        `json:"stale,omitempty"`
}

func timestampValue(rec models.RawRecord) interface{} {
	if rec.Date.IsZero() {
		return nil
	}
	return rec.Date.Format(time.RFC3339)
}

// Definitions returns the fixed entity catalogue.
func Definitions() []Definition {
	return []Definition{
		{Kind: KindLatestOdometer, Category: models.CategoryOdometer, Name: "Latest Odometer", DeviceClass: ClassDistance, Unit: "mi",
			Value: func(rec models.RawRecord) interface{} { return rec.Odometer }},
		{Kind: KindNextPlan, Category: models.CategoryPlan, Name: "Next Plan", DeviceClass: ClassTimestamp, Value: timestampValue},
		{Kind: KindLatestFuel, Category: models.CategoryGas, Name: "Latest Fuel Fill", DeviceClass: ClassTimestamp, Value: timestampValue},
		{Kind: KindLatestService, Category: models.CategoryService, Name: "Latest Service", DeviceClass: ClassTimestamp, Value: timestampValue},
		{Kind: KindLatestRepair, Category: models.CategoryRepair, Name: "Latest Repair", DeviceClass: ClassTimestamp, Value: timestampValue},
		{Kind: KindLatestUpgrade, Category: models.CategoryUpgrade, Name: "Latest Upgrade", DeviceClass: ClassTimestamp, Value: timestampValue},
		{Kind: KindLatestSupply, Category: models.CategorySupply, Name: "Latest Supply", DeviceClass: ClassTimestamp, Value: timestampValue},
		{Kind: KindLatestTax, Category: models.CategoryTax, Name: "Latest Tax", DeviceClass: ClassMonetary, Unit: "USD",
			Value: func(rec models.RawRecord) interface{} { return rec.Cost }},
		{Kind: KindNextReminder, Category: models.CategoryReminder, Name: "Next Reminder", DeviceClass: ClassTimestamp, Value: timestampValue},
	}
}

// Service builds entity descriptors from snapshots.
type Service struct {
	logger      arbor.ILogger
	definitions []Definition
}

// NewService creates a new entity service.
func NewService(logger arbor.ILogger) *Service {
	return &Service{
		logger:      logger,
		definitions: Definitions(),
	}
}

// Build returns entities for every vehicle and every present category in
// the snapshot. Failed and empty categories yield nothing; carried-over
// values are marked stale.
func (s *Service) Build(snapshot *models.Snapshot) []Entity {
	if snapshot == nil {
		return nil
	}

	var result []Entity
	for _, vehicleID := range snapshot.VehicleIDs() {
		vehicleFacts := snapshot.Vehicles[vehicleID]
		name := vehicleFacts.Vehicle.DisplayName()

		for _, def := range s.definitions {
			fact := vehicleFacts.Fact(def.Category)
			if fact.Status != models.StatusPresent || fact.Record == nil {
				continue
			}

			result = append(result, Entity{
				UniqueID:    fmt.Sprintf("lubesync_%d_%s", vehicleID, def.Kind),
				VehicleID:   vehicleID,
				VehicleName: name,
				Kind:        def.Kind,
				Name:        fmt.Sprintf("%s %s", name, def.Name),
				DeviceClass: def.DeviceClass,
				Unit:        def.Unit,
				Value:       def.Value(*fact.Record),
				Stale:       fact.Carried,
			})
		}
	}
	return result
}
