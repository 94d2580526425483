// Package httpapi exposes the personalization pipeline over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/radlabs/personalization-engine/internal/app"
	"github.com/radlabs/personalization-engine/internal/compliance"
	"github.com/radlabs/personalization-engine/internal/persona"
	"github.com/radlabs/personalization-engine/internal/render"
	"github.com/radlabs/personalization-engine/internal/resolve"
	"github.com/radlabs/personalization-engine/internal/store"
)

type Server struct {
	orch     *app.Orchestrator
	store    *store.Store
	renderer *render.Client
	syncMode bool
	logger   *log.Logger
	mux      *http.ServeMux
}

func NewServer(orch *app.Orchestrator, st *store.Store, renderer *render.Client, syncMode bool, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	s := &Server{orch: orch, store: st, renderer: renderer, syncMode: syncMode, logger: logger, mux: http.NewServeMux()}
	s.mux.HandleFunc("POST /enrich", s.handleEnrich)
	s.mux.HandleFunc("GET /jobs/{id}", s.handleJobStatus)
	s.mux.HandleFunc("GET /profile/{email}", s.handleProfile)
	s.mux.HandleFunc("POST /pdf/{email}", s.handlePDF)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// SubmissionRequest is the POST /enrich body.
type SubmissionRequest struct {
	Email       string `json:"email"`
	Name        string `json:"name"`
	Company     string `json:"company"`
	Role        string `json:"role"`
	Industry    string `json:"industry"`
	BuyingStage string `json:"buying_stage"`
	Consent     bool   `json:"consent"`
}

type jobView struct {
	JobID           string           `json:"job_id"`
	Status          store.Status     `json:"status"`
	ErrorMessage    string           `json:"error_message,omitempty"`
	Personalization *outputView      `json:"personalization,omitempty"`
}

type outputView struct {
	IntroHook        string                 `json:"intro_hook"`
	CTA              string                 `json:"cta"`
	ModelUsed        string                 `json:"model_used"`
	TokensUsed       int                    `json:"tokens_used"`
	AttemptCount     int                    `json:"attempt_count"`
	CompliancePassed bool                   `json:"compliance_passed"`
	Violations       []compliance.Violation `json:"violations"`
}

func toOutputView(out store.Output) *outputView {
	return &outputView{
		IntroHook:        out.IntroHook,
		CTA:              out.CTA,
		ModelUsed:        out.ModelUsed,
		TokensUsed:       out.TokensUsed,
		AttemptCount:     out.AttemptCount,
		CompliancePassed: out.CompliancePassed,
		Violations:       out.Violations,
	}
}

func (s *Server) handleEnrich(w http.ResponseWriter, r *http.Request) {
	var req SubmissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		writeError(w, http.StatusBadRequest, "email is not a valid address")
		return
	}
	if !req.Consent {
		writeError(w, http.StatusBadRequest, "consent is required")
		return
	}

	lead := persona.Lead{
		Email:       req.Email,
		Name:        req.Name,
		Company:     req.Company,
		Role:        req.Role,
		Industry:    req.Industry,
		BuyingStage: req.BuyingStage,
	}
	jobID, err := s.orch.Submit(r.Context(), lead, req.Consent)
	if err != nil {
		s.logger.Printf("route=enrich err=%v", err)
		writeError(w, http.StatusInternalServerError, "could not create job")
		return
	}

	if !s.syncMode {
		// The job outlives the request; the budget is enforced inside Run.
		go func() {
			if err := s.orch.Run(context.Background(), jobID); err != nil {
				s.logger.Printf("job=%s route=enrich async_err=%v", jobID, err)
			}
		}()
		writeJSON(w, http.StatusAccepted, jobView{JobID: jobID, Status: store.StatusPending})
		return
	}

	if err := s.orch.Run(r.Context(), jobID); err != nil {
		s.logger.Printf("job=%s route=enrich sync_err=%v", jobID, err)
	}
	s.respondJobView(w, r, jobID)
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	s.respondJobView(w, r, r.PathValue("id"))
}

func (s *Server) respondJobView(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := s.store.GetJob(r.Context(), jobID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		s.logger.Printf("job=%s route=jobs err=%v", jobID, err)
		writeError(w, http.StatusInternalServerError, "could not load job")
		return
	}

	view := jobView{JobID: job.ID, Status: job.Status, ErrorMessage: job.ErrorMessage}
	if job.Status == store.StatusCompleted {
		if out, err := s.store.GetOutputByJob(r.Context(), job.ID); err == nil {
			view.Personalization = toOutputView(out)
		}
	}
	writeJSON(w, http.StatusOK, view)
}

type profileView struct {
	Profile         resolve.NormalizedProfile `json:"profile"`
	Personalization *outputView               `json:"personalization,omitempty"`
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	email := strings.ToLower(strings.TrimSpace(r.PathValue("email")))
	profile, err := s.store.GetProfile(r.Context(), email)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no profile for this email; run POST /enrich first")
		return
	}
	if err != nil {
		s.logger.Printf("route=profile email=%s err=%v", email, err)
		writeError(w, http.StatusInternalServerError, "could not load profile")
		return
	}

	view := profileView{Profile: profile}
	if out, err := s.store.GetLatestOutput(r.Context(), email); err == nil {
		view.Personalization = toOutputView(out)
	}
	writeJSON(w, http.StatusOK, view)
}

type deliveryView struct {
	URL         string    `json:"url"`
	StoragePath string    `json:"storage_path"`
	SizeBytes   int64     `json:"size_bytes"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (s *Server) handlePDF(w http.ResponseWriter, r *http.Request) {
	email := strings.ToLower(strings.TrimSpace(r.PathValue("email")))
	out, err := s.store.GetLatestOutput(r.Context(), email)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no personalization for this email; run POST /enrich first")
		return
	}
	if err != nil {
		s.logger.Printf("route=pdf email=%s err=%v", email, err)
		writeError(w, http.StatusInternalServerError, "could not load personalization")
		return
	}

	deliveryID, err := s.store.CreateDelivery(r.Context(), out.JobID, email)
	if err != nil {
		s.logger.Printf("route=pdf email=%s err=%v", email, err)
		writeError(w, http.StatusInternalServerError, "could not record delivery")
		return
	}

	renderReq := render.Request{Email: email, IntroHook: out.IntroHook, CTA: out.CTA}
	if profile, err := s.store.GetProfile(r.Context(), email); err == nil {
		fields := make(map[string]string, len(profile.Fields))
		for name, f := range profile.Fields {
			fields[name] = f.Value
		}
		renderReq.Fields = fields
	}

	res, err := s.renderer.Render(r.Context(), renderReq)
	if err != nil {
		s.logger.Printf("route=pdf email=%s delivery=%d render_err=%v", email, deliveryID, err)
		if derr := s.store.MarkDeliveryFailed(r.Context(), deliveryID, err.Error()); derr != nil {
			s.logger.Printf("route=pdf delivery=%d err=%v", deliveryID, derr)
		}
		writeError(w, http.StatusBadGateway, "pdf rendering failed")
		return
	}
	if err := s.store.MarkDelivered(r.Context(), deliveryID, res.StoragePath, res.URL, res.SizeBytes, res.ExpiresAt); err != nil {
		s.logger.Printf("route=pdf delivery=%d err=%v", deliveryID, err)
	}
	writeJSON(w, http.StatusOK, deliveryView{
		URL:         res.URL,
		StoragePath: res.StoragePath,
		SizeBytes:   res.SizeBytes,
		ExpiresAt:   res.ExpiresAt,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "db": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
