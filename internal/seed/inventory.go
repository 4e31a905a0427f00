// Package seed loads ticket inventory from YAML and provisions it.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"

	"event-ticketing-engine/internal/models"
	"event-ticketing-engine/internal/services"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// namespace for IDs derived from names, so re-running a file is idempotent
var namespace = uuid.MustParse("0d3c4e0a-5b7f-4f0e-9a6e-1f2b3c4d5e6f")

// Inventory is the root of an inventory file
type Inventory struct {
	FeeSchedules []models.FeeSchedule `yaml:"fee_schedules"`
	TicketTypes  []TicketTypeSpec     `yaml:"ticket_types"`
}

// TicketTypeSpec is a ticket type that may name its fee schedule instead
// of referencing it by ID
type TicketTypeSpec struct {
	models.TicketType `yaml:",inline"`
	FeeSchedule       string `yaml:"fee_schedule"`
}

// Load parses and resolves an inventory file. Missing IDs are derived from
// names, fee schedule names are resolved to IDs and everything is
// validated.
func Load(r io.Reader) (*Inventory, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	var inv Inventory
	if err := decoder.Decode(&inv); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse inventory: %w", err)
	}

	if err := inv.resolve(); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (inv *Inventory) resolve() error {
	byName := make(map[string]uuid.UUID, len(inv.FeeSchedules))
	for i := range inv.FeeSchedules {
		fs := &inv.FeeSchedules[i]
		if fs.ID == uuid.Nil {
			fs.ID = uuid.NewSHA1(namespace, []byte("fee_schedule/"+fs.Name))
		}
		if fs.Base == "" {
			fs.Base = models.FeeBaseDiscounted
		}
		if err := fs.Validate(); err != nil {
			return fmt.Errorf("fee schedule %q: %w", fs.Name, err)
		}
		if _, dup := byName[fs.Name]; dup {
			return fmt.Errorf("fee schedule %q defined twice", fs.Name)
		}
		byName[fs.Name] = fs.ID
	}

	seen := make(map[uuid.UUID]string, len(inv.TicketTypes))
	for i := range inv.TicketTypes {
		entry := &inv.TicketTypes[i]
		tt := &entry.TicketType

		if tt.ID == uuid.Nil {
			tt.ID = uuid.NewSHA1(namespace, []byte("ticket_type/"+tt.EventID.String()+"/"+tt.Name))
		}
		if tt.Status == "" {
			tt.Status = models.TicketTypePublished
		}
		if entry.FeeSchedule != "" {
			id, ok := byName[entry.FeeSchedule]
			if !ok {
				return fmt.Errorf("ticket type %q: unknown fee schedule %q", tt.Name, entry.FeeSchedule)
			}
			tt.FeeScheduleID = &id
		}
		for j := range tt.Tiers {
			tier := &tt.Tiers[j]
			if tier.ID == uuid.Nil {
				tier.ID = uuid.NewSHA1(tt.ID, []byte(tier.Name))
			}
			tier.TicketTypeID = tt.ID
		}

		if err := tt.Validate(); err != nil {
			return fmt.Errorf("ticket type %q: %w", tt.Name, err)
		}
		if other, dup := seen[tt.ID]; dup {
			return fmt.Errorf("ticket type %q collides with %q", tt.Name, other)
		}
		seen[tt.ID] = tt.Name
	}

	return nil
}

// Result counts what Apply did
type Result struct {
	FeeSchedules int
	Provisioned  int
	Skipped      int
}

// Apply saves fee schedules and provisions ticket types that do not exist
// yet. Existing ticket types are left untouched, including their capacity.
func Apply(ctx context.Context, store services.Store, ledger *services.InventoryLedger, inv *Inventory, logger *zap.Logger) (Result, error) {
	var result Result

	if len(inv.FeeSchedules) > 0 {
		err := store.InTx(ctx, func(tx services.StoreTx) error {
			for i := range inv.FeeSchedules {
				if err := tx.SaveFeeSchedule(ctx, &inv.FeeSchedules[i]); err != nil {
					return fmt.Errorf("failed to save fee schedule %q: %w", inv.FeeSchedules[i].Name, err)
				}
			}
			return nil
		})
		if err != nil {
			return result, err
		}
		result.FeeSchedules = len(inv.FeeSchedules)
	}

	for i := range inv.TicketTypes {
		tt := &inv.TicketTypes[i].TicketType

		_, err := store.GetTicketType(ctx, tt.ID)
		switch {
		case err == nil:
			logger.Info("ticket type already provisioned", zap.String("ticket_type_id", tt.ID.String()), zap.String("name", tt.Name))
			result.Skipped++
			continue
		case !errors.Is(err, models.ErrTicketTypeNotFound):
			return result, err
		}

		if err := ledger.Provision(ctx, tt); err != nil {
			return result, err
		}
		result.Provisioned++
	}

	return result, nil
}
