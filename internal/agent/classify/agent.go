package classify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/feedsift/internal/classifier"
	"github.com/feedsift/internal/models"
	"github.com/feedsift/internal/storage"
	"github.com/feedsift/pkg/logger"
)

// ErrBusy indicates a classification pass was requested while one is
// already in flight. Callers may retry later; the request is never
// silently dropped.
var ErrBusy = errors.New("classification pass already in flight")

// Agent runs classification passes over unclassified entries. At most one
// batch pass runs at a time; a single-entry reprocess may race a batch,
// which is safe because MarkClassified writes all fields atomically and
// classification is a pure function of entry plus settings.
type Agent struct {
	repository storage.Repository
	classifier classifier.Classifier
	batchSize  int
	log        *logger.Logger

	mu      sync.Mutex
	running bool
}

// NewAgent creates a new classification agent
func NewAgent(repository storage.Repository, cls classifier.Classifier, batchSize int, log *logger.Logger) *Agent {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &Agent{
		repository: repository,
		classifier: cls,
		batchSize:  batchSize,
		log:        log.WithComponent("classify"),
	}
}

// RunResult contains the results of a classification pass
type RunResult struct {
	Selected   int
	Classified int
	Failed     int
	Duration   time.Duration
}

// Run executes one classification pass over the eligible unclassified
// entries. Returns ErrBusy if a pass is already in flight.
func (a *Agent) Run(ctx context.Context) (*RunResult, error) {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return nil, ErrBusy
	}
	a.running = true
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
	}()

	return a.pass(ctx)
}

// pass selects the batch and classifies each entry independently. A
// per-entry failure leaves that entry unclassified for a later run; it
// never aborts the batch.
func (a *Agent) pass(ctx context.Context) (*RunResult, error) {
	startTime := time.Now()
	result := &RunResult{}

	interests, prompt, model, err := a.loadContext(ctx)
	if err != nil {
		return nil, err
	}

	entries, err := a.repository.UnclassifiedEntries(ctx, a.batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to select unclassified entries: %w", err)
	}
	result.Selected = len(entries)

	for _, entry := range entries {
		// Interruptible between entries: finish nothing mid-flight,
		// stop selecting on shutdown
		select {
		case <-ctx.Done():
			result.Duration = time.Since(startTime)
			return result, ctx.Err()
		default:
		}

		if err := a.classifyOne(ctx, entry, interests, prompt, model); err != nil {
			result.Failed++
			continue
		}
		result.Classified++
	}

	result.Duration = time.Since(startTime)

	if result.Selected > 0 {
		a.log.Info().
			Int("selected", result.Selected).
			Int("classified", result.Classified).
			Int("failed", result.Failed).
			Dur("duration", result.Duration).
			Msg("Classification pass completed")
	}

	return result, nil
}

// classifyOne invokes the classifier contract and commits the result. The
// store is touched only before and after the blocking classifier call.
func (a *Agent) classifyOne(ctx context.Context, entry *models.Entry, interests []*models.Interest, prompt, model string) error {
	result, err := a.classifier.Classify(ctx, entry, interests, prompt, model)
	if err != nil {
		a.log.Warn().
			Err(err).
			Uint("entry_id", entry.ID).
			Str("title", entry.Title).
			Msg("Classification failed, entry stays unclassified")
		return err
	}

	if _, err := a.repository.MarkClassified(ctx, entry.ID, result.Interest, result.IsSignal, result.Reasoning); err != nil {
		a.log.Warn().
			Err(err).
			Uint("entry_id", entry.ID).
			Msg("Failed to commit classification")
		return err
	}

	a.log.Debug().
		Uint("entry_id", entry.ID).
		Str("interest", deref(result.Interest)).
		Bool("is_signal", result.IsSignal).
		Msg("Entry classified")

	return nil
}

// Reprocess clears one entry's classification and immediately reclassifies
// it through the same classify core as the batch pass.
func (a *Agent) Reprocess(ctx context.Context, id uint) (*models.Entry, error) {
	if err := a.repository.Requeue(ctx, id); err != nil {
		return nil, err
	}

	entry, err := a.repository.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}

	interests, prompt, model, err := a.loadContext(ctx)
	if err != nil {
		return nil, err
	}

	if err := a.classifyOne(ctx, entry, interests, prompt, model); err != nil {
		return nil, err
	}

	return a.repository.GetEntry(ctx, id)
}

// RequeueAndRun clears classification for entries inside the window and
// runs a pass over the resulting unclassified set.
func (a *Agent) RequeueAndRun(ctx context.Context, window time.Duration) (int64, *RunResult, error) {
	requeued, err := a.repository.RequeueSince(ctx, window)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to requeue entries: %w", err)
	}

	a.log.Info().
		Int64("requeued", requeued).
		Dur("window", window).
		Msg("Entries requeued for reclassification")

	result, err := a.Run(ctx)
	if err != nil {
		return requeued, nil, err
	}
	return requeued, result, nil
}

// loadContext reads the interest registry and the runtime prompt/model
// settings a pass classifies against.
func (a *Agent) loadContext(ctx context.Context) ([]*models.Interest, string, string, error) {
	interests, err := a.repository.ListInterests(ctx)
	if err != nil {
		return nil, "", "", fmt.Errorf("failed to load interests: %w", err)
	}

	prompt, err := a.repository.GetSetting(ctx, models.SettingClassificationPrompt)
	if err != nil {
		return nil, "", "", fmt.Errorf("failed to load classification prompt: %w", err)
	}

	model, err := a.repository.GetSetting(ctx, models.SettingModel)
	if err != nil {
		return nil, "", "", fmt.Errorf("failed to load model setting: %w", err)
	}

	return interests, prompt, model, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
