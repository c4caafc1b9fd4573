package source

import (
	"fmt"

	"github.com/levenlabs/go-lflag"
)

// Configured sets up the power source provider based on flags.
func Configured() Provider {
	provider := lflag.String("source-provider", "homeassistant", "Power source provider to use (available: homeassistant)")

	var p struct{ Provider }

	ha := configuredHomeAssistant()

	lflag.Do(func() {
		switch *provider {
		case "homeassistant":
			if err := ha.Validate(); err != nil {
				panic(fmt.Sprintf("home assistant validation failed: %v", err))
			}
			p.Provider = ha
		default:
			panic(fmt.Sprintf("unknown source provider: %s", *provider))
		}
	})

	return &p
}
