package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/radlabs/personalization-engine/internal/compliance"
	"github.com/radlabs/personalization-engine/internal/enrich"
	"github.com/radlabs/personalization-engine/internal/resolve"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMigrateIsIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer s.Close()
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestJobLifecycle(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.CreateJob(ctx, Job{Email: "jane@acme.com", Name: "Jane", Consent: true})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	job, err := s.GetJob(ctx, id)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != StatusPending {
		t.Errorf("Status = %s, want pending", job.Status)
	}
	if !job.Consent {
		t.Error("Consent not persisted")
	}

	for _, next := range []Status{StatusEnriching, StatusGenerating, StatusValidating, StatusCompleted} {
		if err := s.UpdateStatus(ctx, id, next); err != nil {
			t.Fatalf("UpdateStatus(%s): %v", next, err)
		}
	}

	job, err = s.GetJob(ctx, id)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != StatusCompleted {
		t.Errorf("Status = %s, want completed", job.Status)
	}
	if job.CompletedAt == nil {
		t.Error("CompletedAt not stamped")
	}
}

func TestStatusTransitionsForwardOnly(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.CreateJob(ctx, Job{Email: "x@y.io"})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	// Skipping a stage is illegal.
	if err := s.UpdateStatus(ctx, id, StatusGenerating); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("pending->generating err = %v, want ErrInvalidTransition", err)
	}

	if err := s.UpdateStatus(ctx, id, StatusEnriching); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	// Going backwards is illegal.
	if err := s.UpdateStatus(ctx, id, StatusPending); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("enriching->pending err = %v, want ErrInvalidTransition", err)
	}

	// Failure is reachable from any non-terminal state, then nothing moves.
	if err := s.MarkFailed(ctx, id, "budget exceeded, try again"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if err := s.UpdateStatus(ctx, id, StatusGenerating); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("failed->generating err = %v, want ErrInvalidTransition", err)
	}

	job, _ := s.GetJob(ctx, id)
	if job.ErrorMessage != "budget exceeded, try again" {
		t.Errorf("ErrorMessage = %q", job.ErrorMessage)
	}
}

func TestGetJobNotFound(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	if _, err := s.GetJob(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestRawRecordUpsert(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()
	email := "jane@acme.com"

	first := enrich.RawRecord{
		Provider: "apollo", Priority: 5, Success: false, Error: "status 503",
		FetchedAt: time.Now().UTC(),
	}
	if err := s.SaveRawRecord(ctx, email, first); err != nil {
		t.Fatalf("SaveRawRecord: %v", err)
	}

	second := first
	second.Success = true
	second.Error = ""
	second.Payload = map[string]string{"title": "CTO"}
	second.FetchedAt = first.FetchedAt.Add(time.Minute)
	if err := s.SaveRawRecord(ctx, email, second); err != nil {
		t.Fatalf("SaveRawRecord upsert: %v", err)
	}

	records, err := s.ListRawRecords(ctx, email)
	if err != nil {
		t.Fatalf("ListRawRecords: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1 after upsert", len(records))
	}
	if !records[0].Success || records[0].Payload["title"] != "CTO" {
		t.Errorf("record = %+v, want superseded values", records[0])
	}
}

func TestProfileUpsert(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	p := resolve.NormalizedProfile{
		Email:      "jane@acme.com",
		Fields:     map[string]resolve.Field{"company": {Value: "Acme", Provider: "apollo"}},
		Quality:    0.6,
		Sources:    []string{"apollo"},
		ResolvedAt: time.Now().UTC(),
	}
	if err := s.SaveProfile(ctx, p); err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}

	p.Fields["company"] = resolve.Field{Value: "Acme Corp", Provider: "zoominfo"}
	p.Quality = 0.9
	if err := s.SaveProfile(ctx, p); err != nil {
		t.Fatalf("SaveProfile upsert: %v", err)
	}

	got, err := s.GetProfile(ctx, "jane@acme.com")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if got.Fields["company"].Value != "Acme Corp" {
		t.Errorf("company = %+v", got.Fields["company"])
	}
	if got.Quality != 0.9 {
		t.Errorf("Quality = %v", got.Quality)
	}
	if got.Domain != "acme.com" {
		t.Errorf("Domain = %q", got.Domain)
	}

	if _, err := s.GetProfile(ctx, "absent@x.io"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing profile err = %v, want ErrNotFound", err)
	}
}

func TestOutputRoundTrip(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	out := Output{
		JobID:            "job-1",
		Email:            "jane@acme.com",
		IntroHook:        "Saw the launch.",
		CTA:              "Chat?",
		ModelUsed:        "fast-model",
		TokensUsed:       99,
		AttemptCount:     3,
		CompliancePassed: false,
		Violations: []compliance.Violation{
			{RuleID: "urgency", Field: "intro_hook", Span: "act now"},
		},
	}
	if err := s.SaveOutput(ctx, out); err != nil {
		t.Fatalf("SaveOutput: %v", err)
	}

	got, err := s.GetOutputByJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetOutputByJob: %v", err)
	}
	if got.AttemptCount != 3 || got.CompliancePassed {
		t.Errorf("output = %+v", got)
	}
	if len(got.Violations) != 1 || got.Violations[0].RuleID != "urgency" {
		t.Errorf("Violations = %v", got.Violations)
	}

	latest, err := s.GetLatestOutput(ctx, "jane@acme.com")
	if err != nil {
		t.Fatalf("GetLatestOutput: %v", err)
	}
	if latest.JobID != "job-1" {
		t.Errorf("latest JobID = %q", latest.JobID)
	}
}

func TestDeliveryLifecycle(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.CreateDelivery(ctx, "job-1", "jane@acme.com")
	if err != nil {
		t.Fatalf("CreateDelivery: %v", err)
	}

	expires := time.Now().UTC().Add(7 * 24 * time.Hour)
	if err := s.MarkDelivered(ctx, id, "pdfs/abc.pdf", "https://files.example.com/abc?sig=x", 20480, expires); err != nil {
		t.Fatalf("MarkDelivered: %v", err)
	}

	d, err := s.GetDelivery(ctx, id)
	if err != nil {
		t.Fatalf("GetDelivery: %v", err)
	}
	if d.Status != DeliveryDelivered || d.SizeBytes != 20480 {
		t.Errorf("delivery = %+v", d)
	}
	if d.ExpiresAt == nil {
		t.Error("ExpiresAt not stored")
	}

	id2, _ := s.CreateDelivery(ctx, "job-2", "jane@acme.com")
	if err := s.MarkDeliveryFailed(ctx, id2, "render service returned 500"); err != nil {
		t.Fatalf("MarkDeliveryFailed: %v", err)
	}
	d2, _ := s.GetDelivery(ctx, id2)
	if d2.Status != DeliveryFailed || d2.ErrorMessage == "" {
		t.Errorf("failed delivery = %+v", d2)
	}
}
