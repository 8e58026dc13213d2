package compute

import (
	"fmt"
	"strconv"
	"strings"
)

// ModeKind selects the cadence of scheduling cycles.
type ModeKind int

const (
	// ModeInteractive runs a cycle at the instant of every submission and
	// whenever capacity frees up.
	ModeInteractive ModeKind = iota
	// ModeBatch runs cycles at multiples of a quantum after service start.
	ModeBatch
	// ModeRandom runs each cycle after a uniformly jittered delay.
	ModeRandom
)

// DefaultMaxJitter is the upper bound of random-mode delays in ms.
const DefaultMaxJitter int64 = 1000

// Mode is a parsed scheduling cadence.
type Mode struct {
	Kind ModeKind
	// Quantum is the batch period in ms.
	Quantum int64
	// Seed seeds the random-mode generator when HasSeed is set; otherwise
	// the service's scheduler stream is used.
	Seed    int64
	HasSeed bool
	// MaxJitter bounds random-mode delays, inclusive.
	MaxJitter int64
}

// Interactive returns the interactive mode.
func Interactive() Mode { return Mode{Kind: ModeInteractive} }

// Batch returns a batch mode with the given quantum.
func Batch(quantum int64) Mode { return Mode{Kind: ModeBatch, Quantum: quantum} }

// Random returns a random mode seeded with seed.
func Random(seed, maxJitter int64) Mode {
	return Mode{Kind: ModeRandom, Seed: seed, HasSeed: true, MaxJitter: maxJitter}
}

func (m Mode) String() string {
	switch m.Kind {
	case ModeInteractive:
		return "interactive"
	case ModeBatch:
		return fmt.Sprintf("batch:%d", m.Quantum)
	case ModeRandom:
		if !m.HasSeed {
			return fmt.Sprintf("random::%d", m.MaxJitter)
		}
		return fmt.Sprintf("random:%d:%d", m.Seed, m.MaxJitter)
	default:
		return fmt.Sprintf("mode(%d)", int(m.Kind))
	}
}

// validModeNames maps mode names to validity. Unexported to prevent mutation.
var validModeNames = map[string]bool{
	"interactive": true,
	"batch":       true,
	"random":      true,
}

// IsValidMode returns true if the name before the first colon is a
// recognized mode.
func IsValidMode(s string) bool {
	name, _, _ := strings.Cut(s, ":")
	return validModeNames[name]
}

// ParseMode parses "interactive", "batch:<quantum>" or
// "random[:<seed>[:<max>]]". An empty string is interactive.
// An empty seed ("random::500") uses the service's scheduler stream.
func ParseMode(s string) (Mode, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	switch parts[0] {
	case "", "interactive":
		if len(parts) > 1 {
			return Mode{}, fmt.Errorf("%w: interactive takes no parameters, got %q", ErrInvalidMode, s)
		}
		return Interactive(), nil

	case "batch":
		if len(parts) != 2 {
			return Mode{}, fmt.Errorf("%w: expected batch:<quantum>, got %q", ErrInvalidMode, s)
		}
		q, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || q <= 0 {
			return Mode{}, fmt.Errorf("%w: batch quantum must be a positive integer, got %q", ErrInvalidMode, parts[1])
		}
		return Batch(q), nil

	case "random":
		if len(parts) > 3 {
			return Mode{}, fmt.Errorf("%w: expected random[:<seed>[:<max>]], got %q", ErrInvalidMode, s)
		}
		m := Mode{Kind: ModeRandom, MaxJitter: DefaultMaxJitter}
		if len(parts) >= 2 && parts[1] != "" {
			seed, err := strconv.ParseInt(parts[1], 10, 64)
			if err != nil {
				return Mode{}, fmt.Errorf("%w: random seed must be an integer, got %q", ErrInvalidMode, parts[1])
			}
			m.Seed, m.HasSeed = seed, true
		}
		if len(parts) == 3 {
			j, err := strconv.ParseInt(parts[2], 10, 64)
			if err != nil || j < 0 {
				return Mode{}, fmt.Errorf("%w: random max jitter must be a non-negative integer, got %q", ErrInvalidMode, parts[2])
			}
			m.MaxJitter = j
		}
		return m, nil

	default:
		return Mode{}, fmt.Errorf("%w: unknown mode %q; valid: batch, interactive, random", ErrInvalidMode, parts[0])
	}
}
