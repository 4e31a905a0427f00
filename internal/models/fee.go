package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// FeeBase selects which price the percentage fee is computed on
type FeeBase string

const (
	FeeBaseList       FeeBase = "list"
	FeeBaseDiscounted FeeBase = "discounted"
)

// FeeSchedule is a per-unit fee made of a flat part and a percentage part,
// each independently optional.
type FeeSchedule struct {
	ID                 uuid.UUID `json:"id" db:"id" yaml:"id"`
	Name               string    `json:"name" db:"name" yaml:"name"`
	FlatCents          int64     `json:"flat_cents" db:"flat_cents" yaml:"flat_cents"`
	PercentBasisPoints int64     `json:"percent_basis_points" db:"percent_basis_points" yaml:"percent_basis_points"`
	Base               FeeBase   `json:"base" db:"base" yaml:"base"`
	// Compound applies the percentage to base + flat instead of base alone.
	Compound  bool      `json:"compound" db:"compound" yaml:"compound"`
	CreatedAt time.Time `json:"created_at" db:"created_at" yaml:"-"`
}

// Validate validates the fee schedule
func (f *FeeSchedule) Validate() error {
	if f.FlatCents < 0 {
		return errors.New("flat fee cannot be negative")
	}

	// Percentages above 100% are almost certainly a basis-point typo
	if f.PercentBasisPoints < 0 || f.PercentBasisPoints > 10000 {
		return errors.New("percentage fee must be between 0 and 10000 basis points")
	}

	switch f.Base {
	case FeeBaseList, FeeBaseDiscounted:
	default:
		return errors.New("invalid fee base")
	}

	return nil
}

// FeeFor returns the per-unit fee for a ticket listed at listCents and sold
// at unitCents. Free tickets carry no fee. Percentages round half up.
func (f *FeeSchedule) FeeFor(listCents, unitCents int64) int64 {
	if f == nil || unitCents <= 0 {
		return 0
	}

	base := unitCents
	if f.Base == FeeBaseList {
		base = listCents
	}
	if f.Compound {
		base += f.FlatCents
	}

	percent := (base*f.PercentBasisPoints + 5000) / 10000
	return f.FlatCents + percent
}
