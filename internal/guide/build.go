// Package guide defines the normalized build model shared by every guide source.
package guide

import (
	"errors"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a champion is unknown to the champion map or to a provider
	ErrNotFound = errors.New("not found")
	// ErrMalformed is returned when an upstream payload cannot be parsed into a complete value
	ErrMalformed = errors.New("malformed upstream response")
)

// RuneSelection is the rune page recommended for a build
type RuneSelection struct {
	PrimaryStyle int   `json:"primaryStyle"`
	SubStyle     int   `json:"subStyle"`
	Perks        []int `json:"perks"`
	StatShards   []int `json:"statShards"`
}

// Build is the provider-independent representation of a recommended build
type Build struct {
	Source       string              `json:"source"`
	Champion     string              `json:"champion"`
	Items        []int               `json:"items"`
	StarterItems []int               `json:"starterItems"`
	SkillOrder   []string            `json:"skillOrder"`
	Runes        RuneSelection       `json:"runes"`
	WinRate      decimal.NullDecimal `json:"winRate"`
	Patch        string              `json:"patch"`
}

// Clone returns a deep copy of the build. A nil build clones to nil.
func (b *Build) Clone() *Build {
	if b == nil {
		return nil
	}
	out := *b
	out.Items = slices.Clone(b.Items)
	out.StarterItems = slices.Clone(b.StarterItems)
	out.SkillOrder = slices.Clone(b.SkillOrder)
	out.Runes = b.Runes.Clone()
	return &out
}

// Clone returns a deep copy of the rune selection
func (r RuneSelection) Clone() RuneSelection {
	r.Perks = slices.Clone(r.Perks)
	r.StatShards = slices.Clone(r.StatShards)
	return r
}

// Validate reports whether every required field is populated.
// Adapters call it before returning so partial builds never leave a source.
func (b *Build) Validate() error {
	if b == nil {
		return fmt.Errorf("%w: empty build", ErrMalformed)
	}
	if len(b.Items) == 0 {
		return fmt.Errorf("%w: build has no items", ErrMalformed)
	}
	if b.Runes.PrimaryStyle == 0 {
		return fmt.Errorf("%w: build has no primary rune style", ErrMalformed)
	}
	if len(b.Runes.Perks) == 0 {
		return fmt.Errorf("%w: build has no perks", ErrMalformed)
	}
	for _, skill := range b.SkillOrder {
		switch skill {
		case "Q", "W", "E", "R":
		default:
			return fmt.Errorf("%w: invalid skill %q", ErrMalformed, skill)
		}
	}
	return nil
}
