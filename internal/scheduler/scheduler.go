package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/robfig/cron/v3"

	"github.com/feedsift/internal/agent/classify"
	"github.com/feedsift/internal/agent/ingest"
	"github.com/feedsift/internal/models"
	"github.com/feedsift/internal/storage"
	"github.com/feedsift/pkg/logger"
)

// Scheduler owns the background job timers. It is created at startup with
// the sync interval read from the settings store, and torn down by Stop,
// which lets any in-flight job finish. No implicit module-level state.
type Scheduler struct {
	ingestAgent   *ingest.Agent
	classifyAgent *classify.Agent
	repository    storage.Repository
	classifyCron  string
	cron          *cron.Cron
	log           *logger.Logger
}

// New creates a scheduler over the two pipeline agents
func New(ingestAgent *ingest.Agent, classifyAgent *classify.Agent, repository storage.Repository, classifyCron string, log *logger.Logger) *Scheduler {
	return &Scheduler{
		ingestAgent:   ingestAgent,
		classifyAgent: classifyAgent,
		repository:    repository,
		classifyCron:  classifyCron,
		log:           log.WithComponent("scheduler"),
	}
}

// Start reads the sync interval, registers both jobs and starts the timers.
// An initial sync runs immediately so a fresh process has content.
func (s *Scheduler) Start(ctx context.Context) error {
	interval, err := s.syncInterval(ctx)
	if err != nil {
		return err
	}

	s.cron = cron.New(cron.WithLogger(cronLogger{s.log}))

	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %dm", interval), s.syncJob); err != nil {
		return fmt.Errorf("failed to schedule sync job: %w", err)
	}
	s.log.Info().Int("interval_minutes", interval).Msg("Sync job scheduled")

	if _, err := s.cron.AddFunc(s.classifyCron, s.classifyJob); err != nil {
		return fmt.Errorf("failed to schedule classification job: %w", err)
	}
	s.log.Info().Str("cron", s.classifyCron).Msg("Classification job scheduled")

	s.cron.Start()
	s.log.Info().Msg("Scheduler started")

	// Initial sync so the first classification sweep has entries to work on
	go s.syncJob()

	return nil
}

// Stop cancels the timers and waits for any in-flight job to finish
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	s.log.Info().Msg("Stopping scheduler")
	<-s.cron.Stop().Done()
	s.log.Info().Msg("Scheduler stopped")
}

// syncJob runs one ingestion pass
func (s *Scheduler) syncJob() {
	ctx := context.Background()

	result, err := s.ingestAgent.Run(ctx)
	if err != nil {
		s.log.Error().
			Err(err).
			Int64("consecutive_failures", s.ingestAgent.ConsecutiveFailures()).
			Msg("Scheduled sync failed")
		return
	}

	if result.NewCount > 0 {
		s.log.Info().Int("new", result.NewCount).Msg("Scheduled sync completed")
	}
}

// classifyJob runs one classification pass. A pass already in flight just
// means this tick is skipped; the next one picks the entries up.
func (s *Scheduler) classifyJob() {
	ctx := context.Background()

	result, err := s.classifyAgent.Run(ctx)
	if err != nil {
		if errors.Is(err, classify.ErrBusy) {
			s.log.Debug().Msg("Classification pass already running, skipping tick")
			return
		}
		s.log.Error().Err(err).Msg("Scheduled classification failed")
		return
	}

	if result.Classified > 0 || result.Failed > 0 {
		s.log.Info().
			Int("classified", result.Classified).
			Int("failed", result.Failed).
			Msg("Scheduled classification completed")
	}
}

// syncInterval resolves sync_interval_minutes from the settings store
func (s *Scheduler) syncInterval(ctx context.Context) (int, error) {
	value, err := s.repository.GetSetting(ctx, models.SettingSyncInterval)
	if err != nil {
		return 0, fmt.Errorf("failed to read sync interval: %w", err)
	}
	interval, err := strconv.Atoi(value)
	if err != nil || interval <= 0 {
		s.log.Warn().Str("value", value).Msg("Invalid sync interval, using default")
		return models.DefaultSyncIntervalMinutes, nil
	}
	return interval, nil
}

// cronLogger adapts our logger for cron
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Msgf(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Msgf(msg, keysAndValues...)
}
