// Package hands splits raw hand history text into individual hands and
// maps raw history locations to the directory holding their split hands.
package hands

import (
	"fmt"
	"regexp"
)

const (
	// DefaultBoundaryPattern matches the header line that opens every Winamax hand.
	DefaultBoundaryPattern = `(?m)^Winamax Poker - `
	// DefaultIDPattern captures the hand id from a Winamax hand header.
	DefaultIDPattern = `HandId: #(?P<hand_id>[0-9-]+)`

	idGroupName = "hand_id"
)

// Patterns holds the boundary and identifier expressions used to split a history.
type Patterns struct {
	boundary *regexp.Regexp
	id       *regexp.Regexp
	idGroup  int
}

// Compile builds a Patterns from the boundary and identifier expressions.
// The identifier expression must have at least one capture group; the group
// named hand_id is used when present, otherwise the first one.
func Compile(boundary, id string) (*Patterns, error) {
	boundaryRe, err := regexp.Compile(boundary)
	if err != nil {
		return nil, fmt.Errorf("invalid boundary pattern: %w", err)
	}
	idRe, err := regexp.Compile(id)
	if err != nil {
		return nil, fmt.Errorf("invalid hand id pattern: %w", err)
	}
	if idRe.NumSubexp() == 0 {
		return nil, fmt.Errorf("hand id pattern %q has no capture group", id)
	}

	group := 1
	if named := idRe.SubexpIndex(idGroupName); named > 0 {
		group = named
	}
	return &Patterns{boundary: boundaryRe, id: idRe, idGroup: group}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(boundary, id string) *Patterns {
	p, err := Compile(boundary, id)
	if err != nil {
		panic(err)
	}
	return p
}

// DefaultPatterns returns the Winamax pattern set.
func DefaultPatterns() *Patterns {
	return MustCompile(DefaultBoundaryPattern, DefaultIDPattern)
}

func (p *Patterns) String() string {
	return fmt.Sprintf("boundary=%q id=%q", p.boundary, p.id)
}
