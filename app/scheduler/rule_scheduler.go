// Package scheduler polls for due rules and hands them to the execution
// engine. It owns dueness: the engine never looks at schedules.
package scheduler

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/tokopulse/tokopulse/config"
	"github.com/tokopulse/tokopulse/engine"
	"github.com/tokopulse/tokopulse/models"
	"github.com/tokopulse/tokopulse/repository"
	"github.com/tokopulse/tokopulse/utils"
)

// RuleExecutionEngine is the minimal surface the scheduler needs from the
// engine. This keeps the scheduler independent and easy to test.
type RuleExecutionEngine interface {
	ExecuteRule(ctx context.Context, rule *models.Rule) (*engine.ExecutionResult, error)
}

// RuleScheduler periodically scans active rules, decides which are due, and
// launches one engine invocation per due rule.
type RuleScheduler struct {
	ruleRepo repository.RuleRepository
	logRepo  repository.ExecutionLogRepository
	executor RuleExecutionEngine
	cfg      config.SchedulerConfig
	logger   *log.Logger

	cron *cron.Cron
	now  func() time.Time
}

func NewRuleScheduler(
	ruleRepo repository.RuleRepository,
	logRepo repository.ExecutionLogRepository,
	executor RuleExecutionEngine,
	cfg config.SchedulerConfig,
	logger *log.Logger,
) *RuleScheduler {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	if cfg.RuleBatchSize <= 0 {
		cfg.RuleBatchSize = 100
	}
	if cfg.AutoIntervalMinutes <= 0 {
		cfg.AutoIntervalMinutes = 60
	}
	if logger == nil {
		logger = log.Default()
	}

	return &RuleScheduler{
		ruleRepo: ruleRepo,
		logRepo:  logRepo,
		executor: executor,
		cfg:      cfg,
		logger:   logger,
		now:      utils.UTCNow,
	}
}

// NewSchedulerLogger builds a logger that writes to both stdout and a
// size-rotated file, so rule audit trails survive restarts in containers.
// Falls back to stdout-only when the log directory cannot be created.
func NewSchedulerLogger(logCfg config.LoggingConfig) *log.Logger {
	// log.Logger is goroutine-safe; include timestamps with microseconds and UTC
	flags := log.LstdFlags | log.Lmicroseconds | log.LUTC

	dir := filepath.Dir(logCfg.FilePath)
	if logCfg.FilePath == "" || os.MkdirAll(dir, 0o755) != nil {
		return log.New(os.Stdout, "scheduler ", flags)
	}
	rotated := &lumberjack.Logger{
		Filename:   logCfg.FilePath,
		MaxSize:    logCfg.MaxSize,
		MaxBackups: logCfg.MaxBackups,
		MaxAge:     logCfg.MaxAge,
		Compress:   logCfg.Compress,
	}
	return log.New(io.MultiWriter(os.Stdout, rotated), "scheduler ", flags)
}

// Start launches the poll and retention jobs and returns a stop function.
func (s *RuleScheduler) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)

	s.cron = cron.New()
	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.cfg.PollInterval), func() { s.runOnce(ctx) }); err != nil {
		s.logger.Printf("scheduler: registering poll job failed: %v", err)
	}
	if s.cfg.ExecutionLogLifetime > 0 {
		if _, err := s.cron.AddFunc("@every 1h", func() { s.pruneExecutionLogs(ctx) }); err != nil {
			s.logger.Printf("scheduler: registering retention job failed: %v", err)
		}
	}
	s.cron.Start()

	// First pass immediately; the cron entries only fire after one interval.
	go s.runOnce(ctx)

	return func() {
		cancel()
		<-s.cron.Stop().Done()
	}
}

func (s *RuleScheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	now := s.now()

	for offset := 0; ; offset += s.cfg.RuleBatchSize {
		rules, err := s.ruleRepo.ListActive(ctx, s.cfg.RuleBatchSize, offset)
		if err != nil {
			s.logger.Printf("scheduler: list active rules failed: %v", err)
			return
		}
		if len(rules) == 0 {
			return
		}

		for _, rule := range rules {
			if !s.dueNow(rule, now) {
				continue
			}

			// Stamp before launching so the next poll cannot see the same
			// rule as due while this invocation is still running.
			if err := s.ruleRepo.TouchLastExecuted(ctx, rule.ID, now); err != nil {
				s.logger.Printf("scheduler: touch rule id=%d failed: %v", rule.ID, err)
				continue
			}

			r := rule
			go func() {
				if _, err := s.executor.ExecuteRule(ctx, r); err != nil {
					s.logger.Printf("scheduler: rule id=%d execution failed: %v", r.ID, err)
				}
			}()
		}

		if len(rules) < s.cfg.RuleBatchSize {
			return
		}
	}
}

// dueNow decides whether one rule should run at this poll tick.
func (s *RuleScheduler) dueNow(rule *models.Rule, now time.Time) bool {
	switch rule.ExecutionMode {
	case models.ExecutionModeContinuous:
		return true

	case models.ExecutionModeInterval, models.ExecutionModeAuto:
		minutes := s.cfg.AutoIntervalMinutes
		if rule.ExecutionMode == models.ExecutionModeInterval &&
			rule.IntervalMinutes != nil && *rule.IntervalMinutes > 0 {
			minutes = *rule.IntervalMinutes
		}
		if rule.LastExecutedAt == nil {
			return true
		}
		return now.Sub(*rule.LastExecutedAt) >= time.Duration(minutes)*time.Minute

	case models.ExecutionModeScheduledTimes:
		// Daily wall-clock times in the platform's timezone. The guard on
		// LastExecutedAt keeps a sub-minute poll interval from double-firing.
		local := now.In(utils.JakartaLocation())
		hhmm := local.Format("15:04")
		for _, t := range rule.ScheduleTimes {
			if t != hhmm {
				continue
			}
			if rule.LastExecutedAt != nil && now.Sub(*rule.LastExecutedAt) < time.Minute {
				return false
			}
			return true
		}
		return false

	case models.ExecutionModeScheduledDates:
		// One-shot timestamps: due once the moment has passed and the rule
		// has not run since.
		for _, d := range rule.ScheduleDates {
			at, err := time.Parse(time.RFC3339, d)
			if err != nil {
				s.logger.Printf("scheduler: rule id=%d unparsable schedule date %q", rule.ID, d)
				continue
			}
			if now.Before(at) {
				continue
			}
			if rule.LastExecutedAt == nil || rule.LastExecutedAt.Before(at) {
				return true
			}
		}
		return false

	default:
		return false
	}
}

// pruneExecutionLogs trims the append-only audit trail to the configured
// retention window.
func (s *RuleScheduler) pruneExecutionLogs(ctx context.Context) {
	cutoff := s.now().Add(-s.cfg.ExecutionLogLifetime)
	deleted, err := s.logRepo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Printf("scheduler: execution log prune failed: %v", err)
		return
	}
	if deleted > 0 {
		s.logger.Printf("scheduler: pruned %d execution log rows older than %s", deleted, cutoff.Format(time.RFC3339))
	}
}
