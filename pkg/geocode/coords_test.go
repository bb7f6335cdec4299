package geocode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCoordinates(t *testing.T) {
	tests := []struct {
		in       string
		lat, lon float64
		ok       bool
	}{
		{"48.8566,2.3522", 48.8566, 2.3522, true},
		{" 48.8566 , 2.3522 ", 48.8566, 2.3522, true},
		{"-33.8688 151.2093", -33.8688, 151.2093, true},
		{"90,180", 90, 180, true},
		{"91,0", 0, 0, false},
		{"0,-181", 0, 0, false},
		{"Paris", 0, 0, false},
		{"1,2,3", 0, 0, false},
		{"NaN,1", 0, 0, false},
		{"", 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			lat, lon, ok := ParseCoordinates(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.lat, lat, 1e-9)
			assert.InDelta(t, tt.lon, lon, 1e-9)
		})
	}
}
