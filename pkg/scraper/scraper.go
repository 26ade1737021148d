// Package scraper orchestrates the archival pipeline: list an app's flows,
// download and extract each flow's archive, stage the results, and upload
// them to durable storage. Progress is checkpointed after every state
// change so an interrupted run resumes where it stopped.
package scraper

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"flowvault/pkg/checkpoint"
	"flowvault/pkg/config"
	"flowvault/pkg/errors"
	"flowvault/pkg/logger"
	"flowvault/pkg/metadata"
	"flowvault/pkg/models"
	"flowvault/pkg/retry"
	"flowvault/pkg/staging"
	"flowvault/pkg/storage"

	"flowvault/internal/uploader"
)

// Summary reports what one run accomplished.
type Summary struct {
	AppsProcessed  int
	AppsCompleted  int
	AppsFailed     int
	AppsSkipped    int
	FlowsProcessed int
	FlowsCompleted int
	FlowsFailed    int
	FlowsSkipped   int
	Elapsed        time.Duration
}

// Failures reports whether any work failed during the run.
func (s *Summary) Failures() bool {
	return s.AppsFailed > 0 || s.FlowsFailed > 0
}

// Pipeline wires acquisition, staging, checkpointing, and upload together.
type Pipeline struct {
	cfg         *config.Config
	source      FlowSource
	checkpoints *checkpoint.Store
	staging     *staging.Manager
	pool        *uploader.Pool
	logger      logger.Logger
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewPipeline builds a pipeline from already-constructed components.
func NewPipeline(
	cfg *config.Config,
	source FlowSource,
	store storage.ObjectStore,
	checkpoints *checkpoint.Store,
	stagingMgr *staging.Manager,
	log logger.Logger,
) *Pipeline {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Pipeline{
		cfg:         cfg,
		source:      source,
		checkpoints: checkpoints,
		staging:     stagingMgr,
		pool:        uploader.NewPool(cfg.Upload.Concurrency, store, cfg.Retry.MaxAttempts, log),
		logger:      log,
		sleep:       retry.Wait,
	}
}

// Run processes apps in order. It returns a non-nil error only when the run
// was aborted by a fatal condition; per-app and per-flow failures are
// recorded in checkpoints and counted in the summary instead.
func (p *Pipeline) Run(ctx context.Context, apps []models.App) (*Summary, error) {
	start := time.Now()
	summary := &Summary{}

	for i, app := range apps {
		if err := ctx.Err(); err != nil {
			summary.Elapsed = time.Since(start)
			return summary, err
		}

		appID := app.ID()
		entry := p.checkpoints.AppStatus(appID)
		if entry.Completed() {
			p.logger.InfoWithFields("skipping completed app", map[string]interface{}{
				"app": appID,
			})
			summary.AppsSkipped++
			continue
		}

		summary.AppsProcessed++
		if err := p.processApp(ctx, app, summary); err != nil {
			if errors.IsFatal(err) || ctx.Err() != nil {
				summary.AppsFailed++
				summary.Elapsed = time.Since(start)
				return summary, err
			}
			summary.AppsFailed++
		} else {
			summary.AppsCompleted++
		}

		if i < len(apps)-1 {
			if err := p.delayBetweenApps(ctx); err != nil {
				summary.Elapsed = time.Since(start)
				return summary, err
			}
		}
	}

	summary.Elapsed = time.Since(start)
	p.logger.InfoWithFields("run finished", map[string]interface{}{
		"apps_completed":  summary.AppsCompleted,
		"apps_failed":     summary.AppsFailed,
		"apps_skipped":    summary.AppsSkipped,
		"flows_completed": summary.FlowsCompleted,
		"flows_failed":    summary.FlowsFailed,
		"flows_skipped":   summary.FlowsSkipped,
		"elapsed":         summary.Elapsed,
	})
	return summary, nil
}

// processApp drives one app through its flows. The returned error carries
// the classification that decides whether the run continues.
func (p *Pipeline) processApp(ctx context.Context, app models.App, summary *Summary) error {
	appID := app.ID()

	if err := p.checkpoints.RecordApp(appID, checkpoint.StatusInProgress, ""); err != nil {
		return err
	}

	flows, err := p.listFlows(ctx, app)
	if err != nil {
		reason := err.Error()
		if recordErr := p.checkpoints.RecordApp(appID, checkpoint.StatusFailed, reason); recordErr != nil {
			return recordErr
		}
		if errors.IsFatal(err) {
			return err
		}
		p.logger.ErrorWithFields("app failed: flow listing unavailable", map[string]interface{}{
			"app":   appID,
			"error": reason,
		})
		return errors.TerminalApp(err, "flow listing unavailable")
	}

	if p.cfg.Pipeline.FlowLimit > 0 && len(flows) > p.cfg.Pipeline.FlowLimit {
		flows = flows[:p.cfg.Pipeline.FlowLimit]
	}

	var archived []models.Flow
	anyFailed := false

	for i := range flows {
		flow := flows[i]

		// A malformed record fails its own flow and leaves a checkpoint
		// entry; dropping it silently would let the app complete around it.
		if err := flow.Validate(); err != nil {
			flowID := flowRecordID(flow, i)
			summary.FlowsProcessed++
			summary.FlowsFailed++
			anyFailed = true
			if recordErr := p.checkpoints.RecordFlow(appID, flowID, checkpoint.StatusFailed, err.Error()); recordErr != nil {
				return recordErr
			}
			logger.LogFlowStatus(appID, flowID, "failed")
			continue
		}

		entry := p.checkpoints.FlowStatus(appID, flow.ID)
		if entry.Completed() {
			p.logger.DebugWithFields("skipping completed flow", map[string]interface{}{
				"app":  appID,
				"flow": flow.ID,
			})
			summary.FlowsSkipped++
			archived = append(archived, p.describeArchivedFlow(appID, flow))
			continue
		}

		summary.FlowsProcessed++
		if err := p.checkpoints.RecordFlow(appID, flow.ID, checkpoint.StatusInProgress, ""); err != nil {
			return err
		}

		err := p.processFlow(ctx, app, flow, archived)
		switch {
		case err == nil:
			summary.FlowsCompleted++
			if recordErr := p.checkpoints.RecordFlow(appID, flow.ID, checkpoint.StatusCompleted, ""); recordErr != nil {
				return recordErr
			}
			archived = append(archived, p.describeArchivedFlow(appID, flow))

		case errors.IsFatal(err) || ctx.Err() != nil:
			summary.FlowsFailed++
			p.recordFailure(appID, flow.ID, err)
			if recordErr := p.checkpoints.RecordApp(appID, checkpoint.StatusFailed, err.Error()); recordErr != nil {
				p.logger.ErrorWithFields("failed to record app checkpoint", map[string]interface{}{
					"app":   appID,
					"error": recordErr.Error(),
				})
			}
			return err

		case errors.KindOf(err) == errors.KindTerminalApp:
			summary.FlowsFailed++
			anyFailed = true
			p.recordFailure(appID, flow.ID, err)
			if recordErr := p.checkpoints.RecordApp(appID, checkpoint.StatusFailed, err.Error()); recordErr != nil {
				return recordErr
			}
			p.logger.ErrorWithFields("app failed", map[string]interface{}{
				"app":   appID,
				"flow":  flow.ID,
				"error": err.Error(),
			})
			return err

		default:
			summary.FlowsFailed++
			anyFailed = true
			if recordErr := p.checkpoints.RecordFlow(appID, flow.ID, checkpoint.StatusFailed, err.Error()); recordErr != nil {
				return recordErr
			}
			logger.LogFlowStatus(appID, flow.ID, "failed")
		}

		if i < len(flows)-1 {
			if err := p.delayBetweenFlows(ctx); err != nil {
				return err
			}
		}
	}

	// A failed flow leaves the app failed so the next run revisits it; the
	// completed flows are skipped then via their own checkpoints.
	if anyFailed {
		reason := "one or more flows failed"
		if err := p.checkpoints.RecordApp(appID, checkpoint.StatusFailed, reason); err != nil {
			return err
		}
		return errors.New(errors.KindTerminalApp, reason)
	}

	if err := p.checkpoints.RecordApp(appID, checkpoint.StatusCompleted, ""); err != nil {
		return err
	}
	if err := p.staging.PurgeApp(appID); err != nil {
		p.logger.WarnWithFields("failed to purge app staging", map[string]interface{}{
			"app":   appID,
			"error": err.Error(),
		})
	}
	return nil
}

// recordFailure writes a flow's failed checkpoint entry. The write is
// best-effort on abort paths, but a lost entry must still be diagnosable.
func (p *Pipeline) recordFailure(appID, flowID string, cause error) {
	if err := p.checkpoints.RecordFlow(appID, flowID, checkpoint.StatusFailed, cause.Error()); err != nil {
		p.logger.ErrorWithFields("failed to record flow checkpoint", map[string]interface{}{
			"app":   appID,
			"flow":  flowID,
			"error": err.Error(),
		})
	}
}

// flowRecordID derives a checkpoint key for a flow record that may be too
// malformed to carry its own identifier.
func flowRecordID(flow models.Flow, index int) string {
	if flow.ID != "" {
		return flow.ID
	}
	if id := models.SafeID(flow.Name); id != "" {
		return id
	}
	if id := models.SafeID(flow.URL); id != "" {
		return id
	}
	return fmt.Sprintf("record_%d", index)
}

// listFlows fetches the app's flow listing with retries. Exhausting the
// retry budget fails the whole app.
func (p *Pipeline) listFlows(ctx context.Context, app models.App) ([]models.Flow, error) {
	return retry.DoWithResult(ctx, func() ([]models.Flow, error) {
		return p.source.ListFlows(ctx, app)
	}, p.retryConfig())
}

// processFlow takes one flow from pending to uploaded: download, extract,
// refresh the app's flows document, stage, upload, purge.
func (p *Pipeline) processFlow(ctx context.Context, app models.App, flow models.Flow, archived []models.Flow) error {
	appID := app.ID()

	if err := p.staging.PrepareFlow(appID, flow.ID); err != nil {
		return err
	}

	// A previous run may have left the flow's archive behind after a failed
	// upload; reuse it instead of downloading again.
	if p.staging.HasRetainedArchive(appID, flow.ID) {
		p.logger.InfoWithFields("reusing retained archive", map[string]interface{}{
			"app":  appID,
			"flow": flow.ID,
		})
	} else if err := p.downloadArchive(ctx, appID, flow); err != nil {
		return err
	}

	if _, err := p.staging.Extract(appID, flow.ID); err != nil {
		return err
	}

	staged, err := p.staging.StageFlow(p.cfg.Storage.KeyPrefix, appID, flow.ID)
	if err != nil {
		return err
	}

	// Every batch carries a refreshed flows document covering everything
	// archived so far, this flow included. Overwriting it is idempotent.
	docFlows := append(append([]models.Flow{}, archived...), p.describeArchivedFlow(appID, flow))
	doc := metadata.Build(app, docFlows, time.Now())
	docPath := p.staging.MetadataPath(appID)
	if err := doc.Save(docPath); err != nil {
		return errors.TerminalApp(err, "failed to write flows document")
	}
	staged = append(staged, models.StagedFile{
		LocalPath: docPath,
		Key:       storage.MetadataKey(p.cfg.Storage.KeyPrefix, appID),
		Kind:      models.KindMetadata,
		AppID:     appID,
		FlowID:    flow.ID,
	})

	batch := p.pool.UploadBatch(ctx, staged, time.Now())
	if fatal := batch.FatalError(); fatal != nil {
		return fatal
	}
	// Every staged object must report success before the flow can be marked
	// completed; a cancelled batch comes back with unattempted files.
	if got := batch.Succeeded(); got != len(staged) {
		if err := ctx.Err(); err != nil {
			return err
		}
		return errors.New(errors.KindTerminalFlow,
			fmt.Sprintf("%d of %d uploads failed", len(staged)-got, len(staged)))
	}

	if err := p.staging.PurgeFlow(appID, flow.ID); err != nil {
		p.logger.WarnWithFields("failed to purge flow staging", map[string]interface{}{
			"app":   appID,
			"flow":  flow.ID,
			"error": err.Error(),
		})
	}

	p.logger.InfoWithFields("flow archived", map[string]interface{}{
		"app":     appID,
		"flow":    flow.ID,
		"files":   len(staged),
		"skipped": batch.Skipped(),
	})
	return nil
}

// downloadArchive streams the flow archive into staging with retries. Each
// attempt gets its own timeout so one stalled transfer cannot hang the run.
func (p *Pipeline) downloadArchive(ctx context.Context, appID string, flow models.Flow) error {
	return retry.Do(ctx, func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, p.cfg.Pipeline.DownloadTimeout)
		defer cancel()

		body, err := p.source.FetchArchive(attemptCtx, flow)
		if err != nil {
			if attemptCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
				return errors.Transient(err, "archive download timed out")
			}
			return err
		}
		defer body.Close()

		if _, err := p.staging.WriteArchive(appID, flow.ID, body); err != nil {
			if attemptCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
				return errors.Transient(err, "archive download timed out")
			}
			return err
		}
		return nil
	}, p.retryConfig())
}

// describeArchivedFlow fills in the storage locations the flow's assets
// ended up at, for the flows document.
func (p *Pipeline) describeArchivedFlow(appID string, flow models.Flow) models.Flow {
	flow.ArchivePath = storage.ArchiveKey(p.cfg.Storage.KeyPrefix, appID, flow.ID)
	flow.ExtractedPath = storage.AssetKey(p.cfg.Storage.KeyPrefix, appID, flow.ID, "")
	return flow
}

func (p *Pipeline) retryConfig() *retry.Config {
	return &retry.Config{
		MaxAttempts: p.cfg.Retry.MaxAttempts,
		Backoff: &retry.UniformBackoff{
			MinDelay: p.cfg.Retry.MinDelay,
			MaxDelay: p.cfg.Retry.MaxDelay,
		},
		RetryIf: retry.DefaultRetryIf,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			logger.LogRetry("source fetch", attempt, err)
		},
		Logger: p.logger,
	}
}

// delayBetweenFlows pauses twice the retry jitter window between flows so
// back-to-back flow fetches do not hammer the source.
func (p *Pipeline) delayBetweenFlows(ctx context.Context) error {
	return p.sleep(ctx, drawDelay(2*p.cfg.Retry.MinDelay, 2*p.cfg.Retry.MaxDelay))
}

// delayBetweenApps pauses the configured jitter window between apps.
func (p *Pipeline) delayBetweenApps(ctx context.Context) error {
	return p.sleep(ctx, drawDelay(p.cfg.Pipeline.AppDelayMin, p.cfg.Pipeline.AppDelayMax))
}

func drawDelay(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}
