package tariff

import (
	"fmt"
	"time"
)

var (
	// LADWP serves Los Angeles; all tariff boundaries are Pacific local time.
	ptLocation = func() *time.Location {
		loc, err := time.LoadLocation("America/Los_Angeles")
		if err != nil {
			panic(fmt.Errorf("failed to load pacific time location: %w", err))
		}
		return loc
	}()
)

// Location returns the tariff's local time zone.
func Location() *time.Location {
	return ptLocation
}
