package downloader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"market-terminal/src/analysis"
	"market-terminal/src/config"
	"market-terminal/src/gateway"
	"market-terminal/src/interfaces"
	"market-terminal/src/logger"
	"market-terminal/src/metrics"
	"market-terminal/src/models"
)

// batchJob is the live state of one multi-symbol download. The mutex covers
// every field; Status hands out deep copies only.
type batchJob struct {
	mu     sync.Mutex
	status models.MBatchStatus
}

// BatchOrchestrator fans a symbol list out into per-symbol historical
// requests and folds the outcomes back into one job record. Submission
// returns immediately; progress is polled through Status.
type BatchOrchestrator struct {
	mu     sync.RWMutex
	jobs   map[string]*batchJob
	nextID int64

	supervisor *gateway.ConnectionSupervisor
	config     *config.Config
	logger     *logger.Logger
	metrics    *metrics.Metrics
	db         interfaces.IDatabase
	publisher  interfaces.IPublisher
}

// -----------------------------------------------------------------------------

func NewBatchOrchestrator(supervisor *gateway.ConnectionSupervisor, cfg *config.Config, log *logger.Logger, m *metrics.Metrics) *BatchOrchestrator {
	return &BatchOrchestrator{
		jobs:       make(map[string]*batchJob),
		nextID:     1,
		supervisor: supervisor,
		config:     cfg,
		logger:     log,
		metrics:    m,
	}
}

// -----------------------------------------------------------------------------

// SetDatabase wires optional persistence for completed downloads.
func (b *BatchOrchestrator) SetDatabase(db interfaces.IDatabase) {
	b.db = db
}

// SetPublisher wires optional event publishing for completed jobs.
func (b *BatchOrchestrator) SetPublisher(p interfaces.IPublisher) {
	b.publisher = p
}

// -----------------------------------------------------------------------------

// Submit registers a batch job and starts dispatching its symbols in the
// order given. The returned job id is valid immediately.
func (b *BatchOrchestrator) Submit(ctx context.Context, symbols []string, params models.MBatchParams) (string, error) {
	if len(symbols) == 0 {
		return "", fmt.Errorf("empty symbol list")
	}

	b.mu.Lock()
	jobID := fmt.Sprintf("batch-%d", b.nextID)
	b.nextID++

	job := &batchJob{
		status: models.MBatchStatus{
			JobID:       jobID,
			State:       models.JobRunning,
			Symbols:     append([]string(nil), symbols...),
			Progress:    models.MBatchProgress{Total: len(symbols)},
			Results:     make(map[string]models.MDataSummary),
			SubmittedAt: time.Now().UnixMilli(),
		},
	}
	b.jobs[jobID] = job
	b.mu.Unlock()

	b.metrics.BatchSubmitted()
	b.logger.Info("Batch %s submitted: %d symbols", jobID, len(symbols))

	go b.run(ctx, job, symbols, params)
	return jobID, nil
}

// -----------------------------------------------------------------------------

// run dispatches one request per symbol, in submission order. Each dispatch
// passes the pacing gate before the next one is issued, so a burst of symbols
// naturally spreads across pacing windows. Waiting for outcomes happens
// concurrently per symbol.
func (b *BatchOrchestrator) run(ctx context.Context, job *batchJob, symbols []string, params models.MBatchParams) {
	var wg sync.WaitGroup

	for _, symbol := range symbols {
		_, waiter, err := b.supervisor.Dispatch(ctx, models.ReqHistoricalBatch, symbol, b.config.DataTimeout(), func(req *models.MGatewayRequest) {
			p := params
			req.Params = &p
			req.SecType = params.SecType
		})
		if err != nil {
			b.recordFailure(job, symbol, err)
			continue
		}

		wg.Add(1)
		go func(symbol string, waiter <-chan models.MRequestOutcome) {
			defer wg.Done()
			outcome := <-waiter
			if outcome.State == models.ReqCompleted {
				b.recordSuccess(job, symbol, outcome.Bars)
			} else {
				b.recordFailure(job, symbol, outcome.Err)
			}
		}(symbol, waiter)
	}

	wg.Wait()
	b.finish(job)
}

// -----------------------------------------------------------------------------

func (b *BatchOrchestrator) recordSuccess(job *batchJob, symbol string, bars []models.MDataBar) {
	summary := analysis.Summarize(symbol, bars)

	job.mu.Lock()
	job.status.Results[symbol] = summary
	job.status.Progress.Completed++
	job.mu.Unlock()

	b.logger.Info("Batch %s: %s done (%d bars)", job.status.JobID, symbol, len(bars))

	if b.db != nil {
		if err := b.db.SaveBarsBulk(symbol, bars); err != nil {
			b.logger.Error("Batch %s: persisting %s bars failed: %v", job.status.JobID, symbol, err)
		}
		if err := b.db.SaveSummary(summary); err != nil {
			b.logger.Error("Batch %s: persisting %s summary failed: %v", job.status.JobID, symbol, err)
		}
	}
}

// -----------------------------------------------------------------------------

func (b *BatchOrchestrator) recordFailure(job *batchJob, symbol string, err error) {
	message := "unknown error"
	if err != nil {
		message = err.Error()
	}

	job.mu.Lock()
	job.status.Errors = append(job.status.Errors, models.MSymbolError{Symbol: symbol, Message: message})
	job.status.Progress.Completed++
	job.mu.Unlock()

	b.logger.Warning("Batch %s: %s failed: %s", job.status.JobID, symbol, message)
}

// -----------------------------------------------------------------------------

func (b *BatchOrchestrator) finish(job *batchJob) {
	job.mu.Lock()
	job.status.State = models.JobComplete
	snapshot := copyStatus(&job.status)
	job.mu.Unlock()

	b.logger.Info("Batch %s complete: %d ok, %d failed",
		snapshot.JobID, len(snapshot.Results), len(snapshot.Errors))

	if b.publisher != nil && b.publisher.IsConnected() {
		b.publisher.OnBatchComplete(snapshot)
	}
}

// -----------------------------------------------------------------------------

// Status returns a deep-copied snapshot of the job, or false for unknown ids.
func (b *BatchOrchestrator) Status(jobID string) (models.MBatchStatus, bool) {
	b.mu.RLock()
	job, ok := b.jobs[jobID]
	b.mu.RUnlock()
	if !ok {
		return models.MBatchStatus{}, false
	}

	job.mu.Lock()
	defer job.mu.Unlock()
	return copyStatus(&job.status), true
}

// -----------------------------------------------------------------------------

// List returns snapshots of every known job.
func (b *BatchOrchestrator) List() []models.MBatchStatus {
	b.mu.RLock()
	jobs := make([]*batchJob, 0, len(b.jobs))
	for _, job := range b.jobs {
		jobs = append(jobs, job)
	}
	b.mu.RUnlock()

	statuses := make([]models.MBatchStatus, 0, len(jobs))
	for _, job := range jobs {
		job.mu.Lock()
		statuses = append(statuses, copyStatus(&job.status))
		job.mu.Unlock()
	}
	return statuses
}

// -----------------------------------------------------------------------------

func copyStatus(st *models.MBatchStatus) models.MBatchStatus {
	out := *st
	out.Symbols = append([]string(nil), st.Symbols...)
	out.Errors = append([]models.MSymbolError(nil), st.Errors...)
	out.Results = make(map[string]models.MDataSummary, len(st.Results))
	for k, v := range st.Results {
		out.Results[k] = v
	}
	return out
}
