package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"charterhub/berth/pkg/storage"
)

// Config contains configuration for the retention pruner.
type Config struct {
	// RetentionDays is how many days of past slots to keep.
	// 0 means keep slots forever (no pruning).
	RetentionDays int `yaml:"days"`

	// PruneSchedule is a cron expression for scheduling pruning.
	// Example: "0 3 * * *" (daily at 3 AM)
	PruneSchedule string `yaml:"schedule"`
}

// DefaultConfig returns the default retention configuration.
func DefaultConfig() *Config {
	return &Config{
		RetentionDays: 90,
		PruneSchedule: "0 3 * * *",
	}
}

// Error represents a failed pruning run.
type Error struct {
	RetentionDays int   // Configured retention period
	Cause         error // Underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("retention error [retention_days=%d]: %v", e.RetentionDays, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Pruner deletes slots, and their bookings, dated more than RetentionDays
// in the past.
type Pruner struct {
	exec   storage.Executor
	config *Config
	now    func() time.Time
	logger *slog.Logger
}

// NewPruner creates a pruner that borrows sessions from exec.
func NewPruner(exec storage.Executor, config *Config) *Pruner {
	if config == nil {
		config = DefaultConfig()
	}
	return &Pruner{
		exec:   exec,
		config: config,
		now:    time.Now,
		logger: slog.Default().With("component", "storage.retention"),
	}
}

// Cutoff returns the first date that is kept.
func (p *Pruner) Cutoff() string {
	return p.now().UTC().AddDate(0, 0, -p.config.RetentionDays).Format(storage.DateLayout)
}

// Prune deletes expired slots and returns how many were removed.
func (p *Pruner) Prune(ctx context.Context) (int, error) {
	if p.config.RetentionDays <= 0 {
		p.logger.Debug("retention disabled, nothing to prune")
		return 0, nil
	}

	cutoff := p.Cutoff()
	p.logger.Debug("pruning by age",
		"cutoff_date", cutoff,
		"retention_days", p.config.RetentionDays,
	)

	var deleted int
	err := p.exec.ExecuteWithRetry(ctx, func(ctx context.Context, s storage.Session) error {
		n, err := s.PruneBefore(ctx, cutoff)
		deleted = n
		return err
	}, 0)
	if err != nil {
		return 0, &Error{RetentionDays: p.config.RetentionDays, Cause: err}
	}

	if deleted == 0 {
		p.logger.Debug("no slots pruned", "cutoff_date", cutoff)
	} else {
		p.logger.Info("slot pruning completed",
			"deleted_count", deleted,
			"cutoff_date", cutoff,
		)
	}
	return deleted, nil
}
