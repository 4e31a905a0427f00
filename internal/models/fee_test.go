package models

import "testing"

func TestFeeSchedule_FeeFor(t *testing.T) {
	tests := []struct {
		name     string
		schedule *FeeSchedule
		list     int64
		unit     int64
		want     int64
	}{
		{"nil schedule", nil, 2000, 2000, 0},
		{"flat only", &FeeSchedule{FlatCents: 150, Base: FeeBaseDiscounted}, 2000, 2000, 150},
		{"percent only", &FeeSchedule{PercentBasisPoints: 500, Base: FeeBaseDiscounted}, 2000, 2000, 100},
		{"flat and percent", &FeeSchedule{FlatCents: 100, PercentBasisPoints: 250, Base: FeeBaseDiscounted}, 2000, 2000, 150},
		{"percent on discounted price", &FeeSchedule{PercentBasisPoints: 1000, Base: FeeBaseDiscounted}, 2000, 1500, 150},
		{"percent on list price", &FeeSchedule{PercentBasisPoints: 1000, Base: FeeBaseList}, 2000, 1500, 200},
		{"compounded percent", &FeeSchedule{FlatCents: 100, PercentBasisPoints: 1000, Base: FeeBaseDiscounted, Compound: true}, 2000, 2000, 310},
		{"rounds half up", &FeeSchedule{PercentBasisPoints: 250, Base: FeeBaseDiscounted}, 1020, 1020, 26},
		{"free ticket carries no fee", &FeeSchedule{FlatCents: 100, PercentBasisPoints: 500, Base: FeeBaseList}, 2000, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.schedule.FeeFor(tt.list, tt.unit); got != tt.want {
				t.Errorf("FeeFor(%d, %d) = %d, want %d", tt.list, tt.unit, got, tt.want)
			}
		})
	}
}

func TestFeeSchedule_Validate(t *testing.T) {
	tests := []struct {
		name     string
		schedule FeeSchedule
		wantErr  bool
	}{
		{"valid", FeeSchedule{FlatCents: 100, PercentBasisPoints: 300, Base: FeeBaseList}, false},
		{"negative flat", FeeSchedule{FlatCents: -1, Base: FeeBaseList}, true},
		{"percent above 100%", FeeSchedule{PercentBasisPoints: 10001, Base: FeeBaseList}, true},
		{"missing base", FeeSchedule{FlatCents: 100}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.schedule.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
