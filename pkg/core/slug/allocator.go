// Package slug allocates human readable, namespace wide unique collection slugs.
package slug

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"
	"unicode"

	"github.com/juju/clock"
	"github.com/juju/retry"
	"golang.org/x/text/unicode/norm"

	"github.com/wadjakorntonsri/go-photo-wall/pkg/core/domain"
	"github.com/wadjakorntonsri/go-photo-wall/pkg/observability"
	"github.com/wadjakorntonsri/go-photo-wall/pkg/ports"
)

const (
	DefaultMaxAttempts = 20
	suffixRange        = 10000
)

var errCollision = errors.New("slug collision")

// Normalize turns a human supplied name into a base slug: lower case,
// accents folded off Latin letters, letters and digits of any script kept,
// every run of other characters collapsed into one "-".
func Normalize(name string) string {
	decomposed := norm.NFD.String(name)

	var b strings.Builder
	sep := false
	latin := false
	for _, r := range decomposed {
		switch {
		case unicode.IsMark(r):
			if !latin && b.Len() > 0 && !sep {
				b.WriteRune(r)
			}
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
			sep = false
			latin = unicode.Is(unicode.Latin, r)
		default:
			if b.Len() > 0 && !sep {
				b.WriteByte('-')
				sep = true
			}
			latin = false
		}
	}
	return norm.NFC.String(strings.TrimSuffix(b.String(), "-"))
}

// Config holds the dependencies of an Allocator.
type Config struct {
	Probe ports.NamespaceProbe

	// MaxAttempts bounds the number of probes per allocation.
	MaxAttempts int
	// Delay is the pause between probes.
	Delay time.Duration
	Clock clock.Clock
	// Suffix returns the number appended to the base on collisions.
	Suffix func() int

	Logger  *slog.Logger
	Metrics *observability.Metrics
}

func (c Config) Validate() error {
	if c.Probe == nil {
		return errors.New("nil Probe not valid")
	}
	if c.MaxAttempts < 0 {
		return fmt.Errorf("negative MaxAttempts %d not valid", c.MaxAttempts)
	}
	return nil
}

// Allocator produces unique slugs against a namespace it does not own.
type Allocator struct {
	probe       ports.NamespaceProbe
	maxAttempts int
	delay       time.Duration
	clock       clock.Clock
	suffix      func() int
	logger      *slog.Logger
	metrics     *observability.Metrics
}

func New(cfg Config) (*Allocator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &Allocator{
		probe:       cfg.Probe,
		maxAttempts: cfg.MaxAttempts,
		delay:       cfg.Delay,
		clock:       cfg.Clock,
		suffix:      cfg.Suffix,
		logger:      observability.OrDefault(cfg.Logger),
		metrics:     cfg.Metrics,
	}
	if a.maxAttempts == 0 {
		a.maxAttempts = DefaultMaxAttempts
	}
	if a.delay <= 0 {
		a.delay = time.Millisecond
	}
	if a.clock == nil {
		a.clock = clock.WallClock
	}
	if a.suffix == nil {
		a.suffix = func() int { return rand.IntN(suffixRange) }
	}
	return a, nil
}

// Allocate finds a free slug derived from name and claims it for collectionID.
//
// The first probe uses the base slug, later probes append a random suffix to
// the base. A failing probe aborts the allocation without claiming anything.
// The returned slug is only as good as the claim: a concurrent writer can
// still win the final insert, in which case the caller must allocate again.
func (a *Allocator) Allocate(ctx context.Context, name, collectionID string) (string, error) {
	base := Normalize(name)
	if base == "" {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidName, name)
	}

	var (
		candidate string
		attempts  int
	)
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			attempts++
			candidate = base
			if attempts > 1 {
				candidate = fmt.Sprintf("%s-%d", base, a.suffix())
			}
			exists, err := a.probe.SlugExists(ctx, candidate)
			if err != nil {
				return fmt.Errorf("probe slug %q: %w", candidate, err)
			}
			if exists {
				return errCollision
			}
			return nil
		},
		IsFatalError: func(err error) bool {
			return !errors.Is(err, errCollision)
		},
		NotifyFunc: func(err error, attempt int) {
			a.logger.Debug("slug taken", "slug", candidate, "attempt", attempt)
		},
		Attempts: a.maxAttempts,
		Delay:    a.delay,
		Clock:    a.clock,
		Stop:     ctx.Done(),
	})
	switch {
	case err == nil:
	case retry.IsAttemptsExceeded(err):
		a.metrics.Allocation("exhausted", attempts)
		return "", fmt.Errorf("%w: no free slug for %q after %d attempts", domain.ErrAllocationExhausted, base, attempts)
	case retry.IsRetryStopped(err):
		a.metrics.Allocation("error", attempts)
		return "", fmt.Errorf("allocate slug for %q: %w", base, ctx.Err())
	default:
		a.metrics.Allocation("error", attempts)
		return "", fmt.Errorf("allocate slug for %q: %w", base, err)
	}

	ok, err := a.probe.ClaimSlug(ctx, candidate, collectionID)
	if err != nil {
		a.metrics.Allocation("error", attempts)
		return "", fmt.Errorf("claim slug %q: %w", candidate, err)
	}
	if !ok {
		a.metrics.Allocation("race", attempts)
		return "", fmt.Errorf("%w: %q", domain.ErrAllocationRace, candidate)
	}
	a.metrics.Allocation("ok", attempts)
	return candidate, nil
}
