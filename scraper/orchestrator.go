package scraper

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"price_crew/identity"
	"price_crew/models"
	"price_crew/registry"
	"price_crew/services"
)

// RunRecorder keeps the operational record of dispatch batches.
type RunRecorder interface {
	CreateRun(run *models.DispatchRun) (int64, error)
	UpdateRun(run *models.DispatchRun) error
	Log(batchID *string, level models.LogLevel, message, source string) error
}

type Options struct {
	WorkerTimeout time.Duration
	SettleDelay   time.Duration
}

// Orchestrator fans a product lookup out to one worker per region and folds
// the outcomes into a report. It holds no per-dispatch state, so concurrent
// Dispatch calls do not interact.
type Orchestrator struct {
	registry *registry.Registry
	ids      *identity.Validator
	invoker  Invoker
	opts     Options
	paused   atomic.Bool

	reports *services.ReportService
	runs    RunRecorder
}

func NewOrchestrator(reg *registry.Registry, ids *identity.Validator, invoker Invoker, opts Options) *Orchestrator {
	return &Orchestrator{
		registry: reg,
		ids:      ids,
		invoker:  invoker,
		opts:     opts,
	}
}

// SetServices injects persistence and run bookkeeping used by Run.
func (o *Orchestrator) SetServices(reports *services.ReportService, runs RunRecorder) {
	o.reports = reports
	o.runs = runs
}

// Dispatch validates the request, runs every region's worker concurrently and
// returns once all of them have settled. Invalid input returns a
// ConfigurationError before any worker starts. When no worker could be started
// at all the complete report is returned together with ErrNoWorkersStarted.
func (o *Orchestrator) Dispatch(ctx context.Context, productID string, codes []string, timeout time.Duration) (*models.AggregateReport, error) {
	id, regions, err := o.resolve(productID, codes)
	if err != nil {
		return nil, err
	}
	return o.dispatch(ctx, uuid.New(), id, regions, timeout)
}

func (o *Orchestrator) resolve(productID string, codes []string) (string, []models.Region, error) {
	id, err := o.ids.Validate(productID)
	if err != nil {
		return "", nil, err
	}
	regions, err := o.registry.Resolve(codes)
	if err != nil {
		return "", nil, err
	}
	return id, regions, nil
}

func (o *Orchestrator) dispatch(ctx context.Context, batchID uuid.UUID, productID string, regions []models.Region, timeout time.Duration) (*models.AggregateReport, error) {
	if timeout <= 0 {
		timeout = o.opts.WorkerTimeout
	}

	started := time.Now()
	outcomes := make([]models.WorkerOutcome, len(regions))

	var wg sync.WaitGroup
	for i, region := range regions {
		wg.Add(1)
		go func(i int, region models.Region) {
			defer wg.Done()
			outcomes[i] = o.invoke(ctx, productID, region, timeout)
		}(i, region)
	}
	wg.Wait()

	o.settle(ctx)

	report := services.Aggregate(productID, outcomes)
	report.BatchID = batchID
	report.StartedAt = started
	report.BatchElapsedMs = time.Since(started).Milliseconds()

	if noneStarted(outcomes) {
		return report, models.ErrNoWorkersStarted
	}
	return report, nil
}

// invoke runs one unit and guarantees a well-formed outcome for region,
// whatever the invoker does.
func (o *Orchestrator) invoke(ctx context.Context, productID string, region models.Region, timeout time.Duration) (outcome models.WorkerOutcome) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Dispatch: %s invoker panic: %v", region.Code, r)
			outcome = models.FailedOutcome(productID, region, models.FailurePanic,
				fmt.Sprintf("worker invocation panicked: %v", r), time.Since(start).Milliseconds())
		}
	}()

	outcome = o.invoker.Invoke(ctx, productID, region, timeout)
	outcome.ProductID = productID
	outcome.Region = region.Code
	if outcome.Currency == "" {
		outcome.Currency = region.Currency
	}
	if err := outcome.Validate(); err != nil {
		log.Printf("Dispatch: %s invalid outcome: %v", region.Code, err)
		return models.FailedOutcome(productID, region, models.FailureMalformed,
			models.MsgMalformedOutput, outcome.ElapsedMs)
	}
	return outcome
}

// settle waits out the configured delay after the barrier. Cancellation cuts
// the wait short but never skips aggregation.
func (o *Orchestrator) settle(ctx context.Context) {
	if o.opts.SettleDelay <= 0 {
		return
	}
	t := time.NewTimer(o.opts.SettleDelay)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func noneStarted(outcomes []models.WorkerOutcome) bool {
	if len(outcomes) == 0 {
		return false
	}
	for _, o := range outcomes {
		if o.Failure != models.FailureSpawn {
			return false
		}
	}
	return true
}

// Run dispatches, persists and publishes one product lookup. Empty codes means
// every registered region. A store failure is returned as *PersistenceError
// next to the report.
func (o *Orchestrator) Run(ctx context.Context, productID string, codes []string) (*models.AggregateReport, error) {
	if len(codes) == 0 {
		codes = o.registry.Codes()
	}
	id, regions, err := o.resolve(productID, codes)
	if err != nil {
		return nil, err
	}

	batchID := uuid.New()
	batch := batchID.String()
	run := &models.DispatchRun{
		BatchID:   batch,
		ProductID: id,
		Regions:   strings.Join(codes, ","),
		StartedAt: time.Now(),
		Status:    models.BatchRunning,
	}
	o.createRun(run)
	o.log(&batch, models.LogLevelInfo, fmt.Sprintf("Dispatching %s to %d regions", id, len(regions)))

	report, err := o.dispatch(ctx, batchID, id, regions, 0)
	if errors.Is(err, models.ErrNoWorkersStarted) {
		o.log(&batch, models.LogLevelError, fmt.Sprintf("No worker started for %s", id))
		o.finishRun(run, report, "")
		return report, err
	}

	o.log(&batch, models.LogLevelInfo, fmt.Sprintf("Completed %s: %s (%d ok, %d failed, %d unavailable) in %dms",
		id, report.Status, report.SucceededCount, report.FailedCount, report.UnavailableCount, report.BatchElapsedMs))

	var persistErr error
	if o.reports != nil {
		o.reports.TrackChanges(ctx, report)
		if perr := o.reports.Persist(ctx, report); perr != nil {
			o.log(&batch, models.LogLevelError, perr.Error())
			persistErr = perr
		}
		o.reports.Publish(ctx, report)
	}

	errText := ""
	if persistErr != nil {
		errText = persistErr.Error()
	}
	o.finishRun(run, report, errText)
	return report, persistErr
}

func (o *Orchestrator) createRun(run *models.DispatchRun) {
	if o.runs == nil {
		return
	}
	id, err := o.runs.CreateRun(run)
	if err != nil {
		log.Printf("Dispatch: failed to record run: %v", err)
		return
	}
	run.ID = id
}

func (o *Orchestrator) finishRun(run *models.DispatchRun, report *models.AggregateReport, persistErr string) {
	if o.runs == nil || run.ID == 0 {
		return
	}
	now := time.Now()
	run.FinishedAt = &now
	run.Status = report.Status
	run.Succeeded = report.SucceededCount
	run.Failed = report.FailedCount
	run.Unavailable = report.UnavailableCount
	run.PersistError = persistErr
	if err := o.runs.UpdateRun(run); err != nil {
		log.Printf("Dispatch: failed to update run %d: %v", run.ID, err)
	}
}

func (o *Orchestrator) HandleCommand(ctx context.Context, cmd *models.Command) error {
	params, err := cmd.DecodeParams()
	if err != nil {
		return err
	}

	switch cmd.Command {
	case models.CmdDispatch:
		if params.ProductID == "" {
			return fmt.Errorf("dispatch command without product_id")
		}
		_, err := o.Run(ctx, params.ProductID, params.Regions)
		return err
	case models.CmdPause:
		o.paused.Store(true)
		log.Println("Scheduled refresh paused")
	case models.CmdResume:
		o.paused.Store(false)
		log.Println("Scheduled refresh resumed")
	default:
		return fmt.Errorf("unknown command: %s", cmd.Command)
	}
	return nil
}

func (o *Orchestrator) IsPaused() bool {
	return o.paused.Load()
}

func (o *Orchestrator) log(batchID *string, level models.LogLevel, message string) {
	log.Printf("[%s] dispatch: %s", level, message)
	if o.runs != nil {
		if err := o.runs.Log(batchID, level, message, "dispatch"); err != nil {
			log.Printf("Dispatch: failed to record log line: %v", err)
		}
	}
}
