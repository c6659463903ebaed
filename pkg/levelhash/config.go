package levelhash

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tailscale/hujson"
)

// Options configures the tunables Open does not take positionally: the
// displacement budget for bounded stashing, and the shrink trigger policy
// spec.md §9 leaves to the implementer.
type Options struct {
	// DisplacementBudget bounds how many stash attempts a single expansion
	// pass makes against the interim level (spec.md §4.4 step 2) before it
	// doubles the interim further.
	DisplacementBudget int

	// ShrinkEnabled turns on the optional symmetric Shrink operation
	// (spec.md §4.4). Disabled by default: an index that never shrinks is
	// simpler to reason about, and shrinking is purely an optimization.
	ShrinkEnabled bool

	// ShrinkLoadFactor is the load factor below which Shrink becomes
	// eligible.
	ShrinkLoadFactor float64

	// ShrinkHysteresis is the number of consecutive Delete calls the load
	// factor must stay below ShrinkLoadFactor before Shrink actually runs,
	// to avoid flapping expand/shrink cycles right at the threshold.
	ShrinkHysteresis int

	// MinLevelSize is L_min from spec.md §4.4: Shrink never takes the top
	// level's L below this.
	MinLevelSize uint8

	// Guard, if true, makes Open acquire a cross-process Guard for the
	// lifetime of the handle automatically. Most callers that already run a
	// single writer process can leave this false and rely on the
	// in-process registry alone.
	Guard bool
}

// OptionFunc mutates an Options in place, the functional-options idiom used
// throughout this module's configuration surface.
type OptionFunc func(*Options)

// WithDisplacementBudget overrides the default displacement budget.
func WithDisplacementBudget(n int) OptionFunc {
	return func(o *Options) { o.DisplacementBudget = n }
}

// WithShrink enables Shrink with the given load factor and hysteresis.
func WithShrink(loadFactor float64, hysteresis int) OptionFunc {
	return func(o *Options) {
		o.ShrinkEnabled = true
		o.ShrinkLoadFactor = loadFactor
		o.ShrinkHysteresis = hysteresis
	}
}

// WithMinLevelSize overrides L_min for Shrink.
func WithMinLevelSize(l uint8) OptionFunc {
	return func(o *Options) { o.MinLevelSize = l }
}

// WithGuard makes Open hold a cross-process Guard for the handle's lifetime.
func WithGuard() OptionFunc {
	return func(o *Options) { o.Guard = true }
}

func defaultOptions() Options {
	return Options{
		DisplacementBudget: defaultDisplacementBudget,
		ShrinkEnabled:      false,
		ShrinkLoadFactor:   defaultShrinkLoadFactor,
		ShrinkHysteresis:   defaultShrinkHysteresis,
		MinLevelSize:       minLevelSizeForShrink,
		Guard:              false,
	}
}

// fileOptions mirrors the subset of Options a deployment may want to pin
// outside of Go code. Field names match the HuJSON keys.
type fileOptions struct {
	DisplacementBudget *int     `json:"displacement_budget"`
	ShrinkEnabled      *bool    `json:"shrink_enabled"`
	ShrinkLoadFactor   *float64 `json:"shrink_load_factor"`
	ShrinkHysteresis   *int     `json:"shrink_hysteresis"`
	MinLevelSize       *uint8   `json:"min_level_size"`
	Guard              *bool    `json:"guard"`
}

// LoadOptionsFile parses a HuJSON (JSON-with-comments) config file into an
// OptionFunc: standardize HuJSON to plain JSON, then unmarshal.
func LoadOptionsFile(path string) (OptionFunc, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read options file %q: %w", path, err)
	}

	std, err := hujson.Standardize(raw)
	if err != nil {
		return nil, fmt.Errorf("parse options file %q: %w", path, err)
	}

	var fo fileOptions
	if err := json.Unmarshal(std, &fo); err != nil {
		return nil, fmt.Errorf("decode options file %q: %w", path, err)
	}

	return func(o *Options) {
		if fo.DisplacementBudget != nil {
			o.DisplacementBudget = *fo.DisplacementBudget
		}
		if fo.ShrinkEnabled != nil {
			o.ShrinkEnabled = *fo.ShrinkEnabled
		}
		if fo.ShrinkLoadFactor != nil {
			o.ShrinkLoadFactor = *fo.ShrinkLoadFactor
		}
		if fo.ShrinkHysteresis != nil {
			o.ShrinkHysteresis = *fo.ShrinkHysteresis
		}
		if fo.MinLevelSize != nil {
			o.MinLevelSize = *fo.MinLevelSize
		}
		if fo.Guard != nil {
			o.Guard = *fo.Guard
		}
	}, nil
}
