// Package app wires the pipeline stages together and owns job state. The
// orchestrator is the only writer of job status; handlers and clients only
// read it.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/radlabs/personalization-engine/internal/compliance"
	"github.com/radlabs/personalization-engine/internal/config"
	"github.com/radlabs/personalization-engine/internal/enrich"
	"github.com/radlabs/personalization-engine/internal/persona"
	"github.com/radlabs/personalization-engine/internal/resolve"
	"github.com/radlabs/personalization-engine/internal/store"
)

// Message shown when the wall-clock budget expires mid-pipeline.
const budgetExceededMessage = "processing took too long, please try again"

type Orchestrator struct {
	store     *store.Store
	providers []enrich.Provider
	timeouts  map[string]time.Duration
	generator *persona.Generator
	policy    *compliance.Policy

	budget   time.Duration
	maxIntro int
	maxCTA   int

	logger *log.Logger
}

func NewOrchestrator(
	st *store.Store,
	providers []enrich.Provider,
	timeouts map[string]time.Duration,
	generator *persona.Generator,
	policy *compliance.Policy,
	cfg config.Config,
	logger *log.Logger,
) *Orchestrator {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Orchestrator{
		store:     st,
		providers: providers,
		timeouts:  timeouts,
		generator: generator,
		policy:    policy,
		budget:    cfg.Pipeline.Budget.Std(),
		maxIntro:  cfg.Generator.MaxIntroLen,
		maxCTA:    cfg.Generator.MaxCTALen,
		logger:    logger,
	}
}

// Submit records a new pending job and returns its id. It does not start the
// pipeline; callers decide whether to run it inline or in the background.
func (o *Orchestrator) Submit(ctx context.Context, lead persona.Lead, consent bool) (string, error) {
	id, err := o.store.CreateJob(ctx, store.Job{
		Email:       lead.Email,
		Name:        lead.Name,
		Company:     lead.Company,
		Role:        lead.Role,
		Industry:    lead.Industry,
		BuyingStage: lead.BuyingStage,
		Consent:     consent,
	})
	if err != nil {
		return "", err
	}
	o.logger.Printf("job=%s stage=submit email=%s", id, lead.Email)
	return id, nil
}

// Run drives one job through enrich, generate and validate under the
// wall-clock budget. It always leaves the job in a terminal state.
func (o *Orchestrator) Run(ctx context.Context, jobID string) error {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithTimeout(ctx, o.budget)
	defer cancel()

	if err := o.pipeline(runCtx, job); err != nil {
		msg := "personalization failed, please try again"
		if errors.Is(err, context.DeadlineExceeded) {
			msg = budgetExceededMessage
		}
		o.logger.Printf("job=%s stage=failed err=%v", jobID, err)
		// The run context may already be dead; failing the job must not be.
		failCtx, failCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer failCancel()
		if ferr := o.store.MarkFailed(failCtx, jobID, msg); ferr != nil {
			o.logger.Printf("job=%s stage=failed mark_failed_err=%v", jobID, ferr)
		}
		return err
	}
	return nil
}

func (o *Orchestrator) pipeline(ctx context.Context, job store.Job) error {
	jobID := job.ID
	start := time.Now()

	if err := o.store.UpdateStatus(ctx, jobID, store.StatusEnriching); err != nil {
		return err
	}
	key := enrich.KeyForEmail(job.Email)
	records := enrich.FanOut(ctx, o.providers, o.timeouts, key)
	var succeeded int
	for _, rec := range records {
		if rec.Success {
			succeeded++
		}
		if err := o.store.SaveRawRecord(ctx, key.Email, rec); err != nil {
			return fmt.Errorf("persist raw record: %w", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	// Total provider failure is not fatal: generation proceeds on declared
	// attributes alone.
	profile := resolve.Resolve(key, records)
	if err := o.store.SaveProfile(ctx, profile); err != nil {
		return fmt.Errorf("persist profile: %w", err)
	}
	o.logger.Printf("job=%s stage=enrich providers=%d succeeded=%d fields=%d quality=%.2f",
		jobID, len(records), succeeded, len(profile.Fields), profile.Quality)

	if err := o.store.UpdateStatus(ctx, jobID, store.StatusGenerating); err != nil {
		return err
	}
	lead := persona.Lead{
		Email:       job.Email,
		Name:        job.Name,
		Company:     job.Company,
		Role:        job.Role,
		Industry:    job.Industry,
		BuyingStage: job.BuyingStage,
	}
	draft, err := o.generator.Generate(ctx, lead, profile)
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}
	o.logger.Printf("job=%s stage=generate model=%s attempts=%d tokens=%d",
		jobID, draft.ModelUsed, draft.AttemptCount, draft.TokensUsed)

	if err := o.store.UpdateStatus(ctx, jobID, store.StatusValidating); err != nil {
		return err
	}
	res := o.policy.Validate(draft.IntroHook, draft.CTA, o.maxIntro, o.maxCTA)
	out := store.Output{
		JobID:            jobID,
		Email:            key.Email,
		IntroHook:        res.IntroHook,
		CTA:              res.CTA,
		ModelUsed:        draft.ModelUsed,
		TokensUsed:       draft.TokensUsed,
		AttemptCount:     draft.AttemptCount,
		CompliancePassed: res.Passed,
		Violations:       res.Violations,
	}
	if err := o.store.SaveOutput(ctx, out); err != nil {
		return fmt.Errorf("persist output: %w", err)
	}
	o.logger.Printf("job=%s stage=validate passed=%t violations=%d fellback=%t",
		jobID, res.Passed, len(res.Violations), res.FellBack)

	if err := o.store.UpdateStatus(ctx, jobID, store.StatusCompleted); err != nil {
		return err
	}
	o.logger.Printf("job=%s stage=completed elapsed=%s", jobID, time.Since(start).Round(time.Millisecond))
	return nil
}
