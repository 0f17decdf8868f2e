// Package refcode hands out document reference codes such as
// CNV-2026-00001, numbered from the sys_sequences table.
package refcode

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
)

// Strategy selects how sequence numbers are obtained.
type Strategy int

const (
	// StrategyStrict takes one number per call from the database.
	// Gap-free within a sequence key.
	StrategyStrict Strategy = iota

	// StrategyCached reserves a block of numbers and serves from memory.
	// A restart loses the unused tail of the block.
	StrategyCached
)

// Options tunes number fetching.
type Options struct {
	Strategy Strategy
	// RangeSize is the block size for StrategyCached. Default 50.
	RangeSize int64
}

// DefaultOptions selects the strict strategy.
func DefaultOptions() *Options {
	return &Options{Strategy: StrategyStrict}
}

// Querier is the database surface the generator needs, satisfied by both
// the pool and a transaction.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Config shapes the formatted code.
type Config struct {
	// Prefix such as "CNV".
	Prefix string

	// IncludeYear inserts the year segment.
	IncludeYear bool

	// PadWidth is the minimum digit count. Default 5.
	PadWidth int

	// ResetPeriod scopes the counter: "year", "month" or "never".
	ResetPeriod string
}

// DefaultConfig numbers per year with 5-digit padding.
func DefaultConfig(prefix string) Config {
	return Config{
		Prefix:      prefix,
		IncludeYear: true,
		PadWidth:    5,
		ResetPeriod: "year",
	}
}

type window struct {
	next int64
	max  int64
}

// Service issues reference codes.
type Service struct {
	querier Querier

	mu      sync.Mutex
	windows map[string]*window
}

// New binds the generator to a querier.
func New(querier Querier) *Service {
	return &Service{
		querier: querier,
		windows: make(map[string]*window),
	}
}

// Next issues a code under the default config for the prefix.
func (s *Service) Next(ctx context.Context, prefix string) (string, error) {
	return s.NextCode(ctx, DefaultConfig(prefix), nil, time.Now())
}

// NextCode issues the next code, PREFIX-YEAR-XXXXX by default. The period
// picks the counter scope per cfg.ResetPeriod.
func (s *Service) NextCode(ctx context.Context, cfg Config, opts *Options, period time.Time) (string, error) {
	if s == nil {
		return "", fmt.Errorf("refcode service is not initialized")
	}
	if opts == nil {
		opts = DefaultOptions()
	}
	key := sequenceKey(cfg, period)

	var (
		num int64
		err error
	)
	if opts.Strategy == StrategyCached {
		num, err = s.takeCached(ctx, key, opts)
	} else {
		num, err = s.takeStrict(ctx, key)
	}
	if err != nil {
		return "", err
	}
	return formatCode(cfg, period, num), nil
}

const bumpSequenceSQL = `
	INSERT INTO sys_sequences (key, current_val)
	VALUES ($1, $2)
	ON CONFLICT (key) DO UPDATE SET current_val = sys_sequences.current_val + $2
	RETURNING current_val
`

func (s *Service) takeStrict(ctx context.Context, key string) (int64, error) {
	var num int64
	if err := s.querier.QueryRow(ctx, bumpSequenceSQL, key, int64(1)).Scan(&num); err != nil {
		return 0, fmt.Errorf("strict next: %w", err)
	}
	return num, nil
}

func (s *Service) takeCached(ctx context.Context, key string, opts *Options) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.windows[key]
	if w == nil {
		w = &window{}
		s.windows[key] = w
	}

	if w.next >= w.max {
		size := opts.RangeSize
		if size <= 0 {
			size = 50
		}
		// current_val holds the highest reserved number, so a bump of
		// size claims (top-size, top].
		var top int64
		if err := s.querier.QueryRow(ctx, bumpSequenceSQL, key, size).Scan(&top); err != nil {
			return 0, fmt.Errorf("reserve range: %w", err)
		}
		w.next = top - size
		w.max = top
	}

	w.next++
	return w.next, nil
}

// SetNext forces the counter to value and drops any cached window for the
// key. Used when seeding from imported data.
func (s *Service) SetNext(ctx context.Context, cfg Config, period time.Time, value int64) error {
	key := sequenceKey(cfg, period)

	var stored int64
	err := s.querier.QueryRow(ctx, `
		INSERT INTO sys_sequences (key, current_val)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET current_val = $2
		RETURNING current_val
	`, key, value).Scan(&stored)

	s.mu.Lock()
	delete(s.windows, key)
	s.mu.Unlock()

	return err
}

func sequenceKey(cfg Config, period time.Time) string {
	switch cfg.ResetPeriod {
	case "month":
		return fmt.Sprintf("%s_%s", cfg.Prefix, period.Format("2006_01"))
	case "year":
		return fmt.Sprintf("%s_%s", cfg.Prefix, period.Format("2006"))
	default:
		return cfg.Prefix
	}
}

func formatCode(cfg Config, period time.Time, num int64) string {
	width := cfg.PadWidth
	if width == 0 {
		width = 5
	}
	if cfg.IncludeYear {
		return fmt.Sprintf("%s-%s-%0*d", cfg.Prefix, period.Format("2006"), width, num)
	}
	return fmt.Sprintf("%s-%0*d", cfg.Prefix, width, num)
}

// ParseCode recovers the numeric part of a formatted code, -1 when the
// shape does not match. The number is always the last dash segment.
func ParseCode(formatted string) int64 {
	segments := strings.Split(formatted, "-")
	if len(segments) < 2 {
		return -1
	}
	num, err := strconv.ParseInt(segments[len(segments)-1], 10, 64)
	if err != nil {
		return -1
	}
	return num
}
