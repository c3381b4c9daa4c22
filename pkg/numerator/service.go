// Package numerator provides document auto-numbering.
package numerator

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// Querier interface for database operations.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Config holds numbering configuration.
type Config struct {
	// Prefix added to all numbers (e.g., "VAL")
	Prefix string

	// IncludeYear adds year to the number
	IncludeYear bool

	// PadWidth is the minimum number width (default 5)
	PadWidth int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(prefix string) Config {
	return Config{
		Prefix:      prefix,
		IncludeYear: true,
		PadWidth:    5,
	}
}

// Service issues sequential document numbers backed by sys_sequences.
// Numbers are allocated with UPSERT + RETURNING, so they are gap-free and
// safe under concurrent allocation. Sequences reset per year.
type Service struct {
	querier Querier
}

// New creates a new numerator service.
func New(querier Querier) *Service {
	return &Service{querier: querier}
}

// GetNextNumber generates the next document number.
// Pattern: PREFIX-YEAR-XXXXX (e.g., VAL-2026-00001).
func (s *Service) GetNextNumber(ctx context.Context, cfg Config, period time.Time) (string, error) {
	if s == nil {
		return "", fmt.Errorf("numerator service is not initialized")
	}

	var num int64
	err := s.querier.QueryRow(ctx, `
        INSERT INTO sys_sequences (sequence_type, year, current_val)
        VALUES ($1, $2, 1)
        ON CONFLICT (sequence_type, year) DO UPDATE SET current_val = sys_sequences.current_val + 1
        RETURNING current_val
	`, cfg.Prefix, period.Year()).Scan(&num)
	if err != nil {
		return "", fmt.Errorf("next number: %w", err)
	}

	return formatNumber(cfg, period, num), nil
}

// SetNextNumber sets the current sequence value (for migration purposes).
func (s *Service) SetNextNumber(ctx context.Context, cfg Config, period time.Time, value int64) error {
	var result int64
	err := s.querier.QueryRow(ctx, `
		INSERT INTO sys_sequences (sequence_type, year, current_val)
		VALUES ($1, $2, $3)
		ON CONFLICT (sequence_type, year) DO UPDATE SET current_val = $3
		RETURNING current_val
	`, cfg.Prefix, period.Year(), value).Scan(&result)
	return err
}

// formatNumber creates the final number string.
func formatNumber(cfg Config, period time.Time, num int64) string {
	padWidth := cfg.PadWidth
	if padWidth == 0 {
		padWidth = 5
	}

	if cfg.IncludeYear {
		return fmt.Sprintf("%s-%s-%0*d", cfg.Prefix, period.Format("2006"), padWidth, num)
	}
	return fmt.Sprintf("%s-%0*d", cfg.Prefix, padWidth, num)
}

// ParseNumber extracts the numeric part from a formatted number. The counter
// is always the segment after the last dash, whether or not a year is present.
// Returns -1 if parsing fails.
func ParseNumber(formatted string) int64 {
	idx := strings.LastIndex(formatted, "-")
	if idx < 0 || idx == len(formatted)-1 {
		return -1
	}

	num, err := strconv.ParseInt(formatted[idx+1:], 10, 64)
	if err != nil || num < 0 {
		return -1
	}
	return num
}
