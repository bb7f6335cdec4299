package provider

import (
	"time"

	"github.com/wheelmate/wheelmate/internal/model"
	"github.com/wheelmate/wheelmate/internal/resilience"
)

var paris = model.Coordinates{Lat: 48.8566, Lon: 2.3522}

func testOptions() Options {
	return Options{
		Timeout:       2 * time.Second,
		Policy:        resilience.Policy{MaxAttempts: 3, Backoff: time.Millisecond},
		MaxResults:    50,
		MaxExtraPages: 2,
		PageDelay:     0,
	}
}

func testQuery() Query {
	return Query{Center: paris, RadiusKM: 5, City: "Paris"}
}
