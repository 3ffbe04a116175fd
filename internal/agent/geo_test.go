package agent

import (
	"math"
	"testing"
)

func TestHaversineMeters(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		want                   float64
		tolerance              float64
	}{
		{
			name: "same point",
			lat1: 33.5731, lon1: -7.5898,
			lat2: 33.5731, lon2: -7.5898,
			want: 0, tolerance: 0.001,
		},
		{
			name: "casablanca to rabat",
			lat1: 33.5731, lon1: -7.5898,
			lat2: 34.0209, lon2: -6.8416,
			want: 86000, tolerance: 2000,
		},
		{
			name: "one degree of latitude",
			lat1: 0, lon1: 0,
			lat2: 1, lon2: 0,
			want: 111195, tolerance: 100,
		},
		{
			name: "short hop across a city block",
			lat1: 33.57310, lon1: -7.58980,
			lat2: 33.57400, lon2: -7.58980,
			want: 100.1, tolerance: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := haversineMeters(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			if math.Abs(got-tt.want) > tt.tolerance {
				t.Errorf("haversineMeters() = %.1f, want %.1f (±%.1f)", got, tt.want, tt.tolerance)
			}
		})
	}
}

func TestHaversineMetersSymmetry(t *testing.T) {
	ab := haversineMeters(33.5731, -7.5898, 34.0209, -6.8416)
	ba := haversineMeters(34.0209, -6.8416, 33.5731, -7.5898)
	if math.Abs(ab-ba) > 0.0001 {
		t.Errorf("distance is not symmetric: %.4f vs %.4f", ab, ba)
	}
}
