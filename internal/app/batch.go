package app

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/radlabs/personalization-engine/internal/persona"
	"github.com/radlabs/personalization-engine/internal/store"
	"github.com/radlabs/personalization-engine/pkg/pipeline/worker"
)

// BatchRow is one lead from the input CSV.
type BatchRow struct {
	Lead    persona.Lead
	Consent bool
}

// BatchResult is one line of the output CSV.
type BatchResult struct {
	Email            string
	JobID            string
	Status           store.Status
	IntroHook        string
	CTA              string
	ModelUsed        string
	AttemptCount     int
	CompliancePassed bool
	Error            string
}

// RunBatch pushes every row of the input CSV through the pipeline using the
// worker pool, then writes one result row per lead. With the partial-output
// failure policy a bad lead costs one row, not the batch.
func (o *Orchestrator) RunBatch(ctx context.Context, inputPath, outputPath string, opts worker.Options) error {
	rows, err := ReadLeadsCSV(inputPath)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("no leads in %s", inputPath)
	}
	o.logger.Printf("stage=batch leads=%d workers=%d", len(rows), opts.Workers)
	opts.OnProgress = func(completed, total int) {
		o.logger.Printf("stage=batch progress=%d/%d", completed, total)
	}

	results, err := worker.ProcessAll(ctx, rows, o.processBatchRow, opts)
	if err != nil {
		return err
	}

	out := make([]BatchResult, 0, len(results))
	for _, r := range results {
		br := r.Output
		br.Email = r.Input.Lead.Email
		if r.Err != nil && br.Error == "" {
			br.Error = r.Err.Error()
		}
		out = append(out, br)
	}
	return writeResultsCSV(outputPath, out)
}

func (o *Orchestrator) processBatchRow(ctx context.Context, row BatchRow) (BatchResult, error) {
	res := BatchResult{Email: row.Lead.Email}
	if !row.Consent {
		res.Error = "consent not given"
		return res, fmt.Errorf("lead %s: consent not given", row.Lead.Email)
	}

	jobID, err := o.Submit(ctx, row.Lead, row.Consent)
	if err != nil {
		return res, err
	}
	res.JobID = jobID

	runErr := o.Run(ctx, jobID)

	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return res, err
	}
	res.Status = job.Status
	res.Error = job.ErrorMessage

	if job.Status == store.StatusCompleted {
		out, err := o.store.GetOutputByJob(ctx, jobID)
		if err != nil {
			return res, err
		}
		res.IntroHook = out.IntroHook
		res.CTA = out.CTA
		res.ModelUsed = out.ModelUsed
		res.AttemptCount = out.AttemptCount
		res.CompliancePassed = out.CompliancePassed
	}
	return res, runErr
}

// ReadLeadsCSV parses the input file. The header must include an email
// column; name, company, role, industry, buying_stage and consent are
// optional. Consent defaults to true for batch imports, which are expected
// to be pre-screened lists.
func ReadLeadsCSV(path string) ([]BatchRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := map[string]int{}
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	emailIdx, ok := col["email"]
	if !ok {
		return nil, fmt.Errorf("%s: missing required 'email' column", path)
	}

	get := func(record []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var rows []BatchRow
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	for _, record := range records {
		email := strings.TrimSpace(record[emailIdx])
		if email == "" {
			continue
		}
		row := BatchRow{
			Lead: persona.Lead{
				Email:       email,
				Name:        get(record, "name"),
				Company:     get(record, "company"),
				Role:        get(record, "role"),
				Industry:    get(record, "industry"),
				BuyingStage: get(record, "buying_stage"),
			},
			Consent: true,
		}
		if v := get(record, "consent"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("%s: invalid consent %q for %s", path, v, email)
			}
			row.Consent = b
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func writeResultsCSV(path string, results []BatchResult) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	rows := [][]string{{
		"email", "job_id", "status", "intro_hook", "cta",
		"model_used", "attempt_count", "compliance_passed", "error",
	}}
	for _, r := range results {
		rows = append(rows, []string{
			r.Email, r.JobID, string(r.Status), r.IntroHook, r.CTA,
			r.ModelUsed, strconv.Itoa(r.AttemptCount), strconv.FormatBool(r.CompliancePassed), r.Error,
		})
	}
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
