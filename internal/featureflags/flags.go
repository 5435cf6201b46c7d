// Package featureflags reads FLAG_<NAME> switches from the environment.
package featureflags

import (
	"os"
	"strings"
)

// Flag names a switch. The environment variable is FLAG_ followed by the name.
type Flag string

// LenientStatusTransitions lets any tenant status be written, skipping the lifecycle table.
const LenientStatusTransitions Flag = "LENIENT_STATUS_TRANSITIONS"

// Known lists the flags reported by Snapshot.
var Known = []Flag{LenientStatusTransitions}

// Enabled reports whether FLAG_<NAME> is set to 1, true, yes or on (any case).
func Enabled(name Flag) bool {
	return enabledIn(os.LookupEnv, name)
}

// Snapshot returns the state of every known flag, for startup logging.
func Snapshot() map[Flag]bool {
	out := make(map[Flag]bool, len(Known))
	for _, f := range Known {
		out[f] = Enabled(f)
	}
	return out
}

func enabledIn(lookup func(string) (string, bool), name Flag) bool {
	v, ok := lookup("FLAG_" + strings.ToUpper(string(name)))
	if !ok {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
