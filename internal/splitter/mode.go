package splitter

import "fmt"

// Mode is the idempotency policy applied before splitting a source.
type Mode string

const (
	// ModeAlways splits every source, overwriting existing hands.
	ModeAlways Mode = "always"
	// ModeSkipIfAnyFileExists skips a source when its split directory
	// already holds at least one file.
	ModeSkipIfAnyFileExists Mode = "skip-if-any-file-exists"
	// ModeSkipIfEverSplit skips a source the ledger reports as split before.
	ModeSkipIfEverSplit Mode = "skip-if-ever-split"
)

// ParseMode validates s as a Mode. An empty string means ModeAlways.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case "":
		return ModeAlways, nil
	case ModeAlways, ModeSkipIfAnyFileExists, ModeSkipIfEverSplit:
		return m, nil
	default:
		return "", fmt.Errorf("unknown idempotency mode %q", s)
	}
}
