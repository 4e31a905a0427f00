package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func validTier(start, end time.Time) PricingTier {
	return PricingTier{ID: uuid.New(), Name: "General", StartsAt: start, EndsAt: end, PriceCents: 2000}
}

func TestTicketType_Validate(t *testing.T) {
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(30 * 24 * time.Hour)

	tests := []struct {
		name    string
		tt      TicketType
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid ticket type",
			tt:      TicketType{Name: "General Admission", Capacity: 100, Status: TicketTypePublished, Tiers: []PricingTier{validTier(start, end)}},
			wantErr: false,
		},
		{
			name:    "empty name",
			tt:      TicketType{Name: "   ", Capacity: 100, Status: TicketTypePublished},
			wantErr: true,
			errMsg:  "ticket type name is required",
		},
		{
			name:    "negative capacity",
			tt:      TicketType{Name: "GA", Capacity: -1, Status: TicketTypePublished},
			wantErr: true,
			errMsg:  "ticket capacity cannot be negative",
		},
		{
			name:    "unknown status",
			tt:      TicketType{Name: "GA", Capacity: 1, Status: "draft"},
			wantErr: true,
			errMsg:  "invalid ticket type status",
		},
		{
			name:    "sale window reversed",
			tt:      TicketType{Name: "GA", Capacity: 1, Status: TicketTypePublished, SaleStart: end, SaleEnd: start},
			wantErr: true,
			errMsg:  "sale start date must be before sale end date",
		},
		{
			name: "tier without window",
			tt: TicketType{Name: "GA", Capacity: 1, Status: TicketTypePublished, Tiers: []PricingTier{
				{Name: "Early", PriceCents: 100},
			}},
			wantErr: true,
			errMsg:  "pricing tier window is required",
		},
		{
			name: "relative discount without code",
			tt: TicketType{Name: "GA", Capacity: 1, Status: TicketTypePublished, Tiers: []PricingTier{
				{Name: "Promo", StartsAt: start, EndsAt: end, DiscountPercent: 10},
			}},
			wantErr: true,
			errMsg:  "relative discounts require a discount code",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.tt.Validate()
			if tc.wantErr {
				if err == nil {
					t.Errorf("TicketType.Validate() expected error but got none")
					return
				}
				if tc.errMsg != "" && err.Error() != tc.errMsg {
					t.Errorf("TicketType.Validate() error = %v, want %v", err.Error(), tc.errMsg)
				}
			} else if err != nil {
				t.Errorf("TicketType.Validate() unexpected error = %v", err)
			}
		})
	}
}

func TestTicketType_IsOnSale(t *testing.T) {
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	tests := []struct {
		name string
		tt   TicketType
		at   time.Time
		want bool
	}{
		{"open ended", TicketType{Status: TicketTypePublished}, start, true},
		{"inside window", TicketType{Status: TicketTypePublished, SaleStart: start, SaleEnd: end}, start.Add(time.Minute), true},
		{"at start", TicketType{Status: TicketTypePublished, SaleStart: start, SaleEnd: end}, start, true},
		{"at end", TicketType{Status: TicketTypePublished, SaleStart: start, SaleEnd: end}, end, false},
		{"before start", TicketType{Status: TicketTypePublished, SaleStart: start}, start.Add(-time.Second), false},
		{"cancelled", TicketType{Status: TicketTypeCancelled}, start, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.tt.IsOnSale(tc.at); got != tc.want {
				t.Errorf("IsOnSale() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestPricingTier_ActiveAt(t *testing.T) {
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	tier := validTier(start, start.Add(time.Hour))

	if !tier.ActiveAt(start) {
		t.Errorf("tier should be active at its start")
	}
	if !tier.ActiveAt(start.Add(59 * time.Minute)) {
		t.Errorf("tier should be active inside its window")
	}
	if tier.ActiveAt(start.Add(time.Hour)) {
		t.Errorf("tier window is half-open, end must be excluded")
	}
	if tier.ActiveAt(start.Add(-time.Nanosecond)) {
		t.Errorf("tier should not be active before its start")
	}
}

func TestPricingTier_MatchesCode(t *testing.T) {
	tier := PricingTier{DiscountCode: "EARLYBIRD"}

	tests := []struct {
		code string
		want bool
	}{
		{"EARLYBIRD", true},
		{"earlybird", true},
		{"  EarlyBird ", true},
		{"EARLY", false},
		{"", false},
	}

	for _, tc := range tests {
		if got := tier.MatchesCode(tc.code); got != tc.want {
			t.Errorf("MatchesCode(%q) = %v, want %v", tc.code, got, tc.want)
		}
	}

	unrestricted := PricingTier{}
	if unrestricted.MatchesCode("") {
		t.Errorf("unrestricted tier must not match any code")
	}
}

func TestPricingTier_DiscountFrom(t *testing.T) {
	tests := []struct {
		name string
		tier PricingTier
		list int64
		want int64
	}{
		{"ten percent", PricingTier{DiscountPercent: 10}, 2000, 1800},
		{"percent rounds half up", PricingTier{DiscountPercent: 15}, 1050, 892},
		{"percent above 100 is free", PricingTier{DiscountPercent: 110}, 2000, 0},
		{"flat cents", PricingTier{DiscountCents: 500}, 2000, 1500},
		{"flat above price is free", PricingTier{DiscountCents: 5000}, 2000, 0},
		{"percent then cents", PricingTier{DiscountPercent: 50, DiscountCents: 100}, 2000, 900},
		{"no discount", PricingTier{}, 2000, 2000},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.tier.DiscountFrom(tc.list); got != tc.want {
				t.Errorf("DiscountFrom(%d) = %d, want %d", tc.list, got, tc.want)
			}
		})
	}
}
