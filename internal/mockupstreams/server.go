// Package mockupstreams implements local fakes of every external
// collaborator the engine talks to: the five enrichment providers and the
// PDF renderer. It exists for keyless development and for tests.
package mockupstreams

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
)

// Call records a request made to the mock.
type Call struct {
	Method   string
	Path     string
	Upstream string
}

// Server serves provider-shaped responses derived deterministically from the
// requested email, so the same input always enriches the same way.
type Server struct {
	mu    sync.Mutex
	calls []Call

	expectedAuthorization string

	// failing marks upstreams that answer 503 until cleared.
	failing map[string]bool
}

func New() *Server {
	return &Server{failing: make(map[string]bool)}
}

// RequireBearerToken enforces an Authorization header on the render routes.
// An empty token disables the check.
func (s *Server) RequireBearerToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token = strings.TrimSpace(token)
	if token == "" {
		s.expectedAuthorization = ""
		return
	}
	s.expectedAuthorization = "Bearer " + token
}

// SetFailing makes one upstream return 503 on every call.
func (s *Server) SetFailing(upstream string, failing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing[upstream] = failing
}

// Calls returns a copy of all recorded requests.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// Handler returns the mock API surface. Each upstream lives under its own
// path prefix so one listener can stand in for all of them.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /apollo/v1/people/match", s.wrap("apollo", s.handleApollo))
	mux.HandleFunc("POST /zoominfo/search/contact", s.wrap("zoominfo", s.handleZoomInfo))
	mux.HandleFunc("GET /pdl/v5/person/enrich", s.wrap("pdl", s.handlePDL))
	mux.HandleFunc("GET /hunter/v2/email-verifier", s.wrap("hunter", s.handleHunter))
	mux.HandleFunc("POST /tavily/search", s.wrap("tavily", s.handleTavily))
	mux.HandleFunc("POST /render/render", s.wrap("render", s.handleRender))
	return mux
}

func (s *Server) wrap(upstream string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls = append(s.calls, Call{Method: r.Method, Path: r.URL.Path, Upstream: upstream})
		down := s.failing[upstream]
		s.mu.Unlock()
		if down {
			http.Error(w, `{"error":"service unavailable"}`, http.StatusServiceUnavailable)
			return
		}
		h(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// identity derives stable fake person/company attributes from an email.
type identity struct {
	name    string
	company string
	domain  string
}

func identityFor(email string) identity {
	email = strings.ToLower(strings.TrimSpace(email))
	local, domain, _ := strings.Cut(email, "@")

	parts := strings.FieldsFunc(local, func(r rune) bool { return r == '.' || r == '_' || r == '-' })
	for i, p := range parts {
		parts[i] = title(p)
	}
	name := strings.Join(parts, " ")

	company, _, _ := strings.Cut(domain, ".")
	return identity{name: name, company: title(company), domain: domain}
}

func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func (s *Server) handleApollo(w http.ResponseWriter, r *http.Request) {
	id := identityFor(r.URL.Query().Get("email"))
	writeJSON(w, map[string]any{
		"person": map[string]any{
			"name":         id.name,
			"title":        "Director of Operations",
			"linkedin_url": fmt.Sprintf("https://linkedin.com/in/%s", strings.ReplaceAll(strings.ToLower(id.name), " ", "-")),
			"city":         "Denver",
			"state":        "CO",
			"organization": map[string]any{
				"name":                    id.company,
				"industry":                "Software",
				"estimated_num_employees": 180,
			},
		},
	})
}

func (s *Server) handleZoomInfo(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EmailAddress string `json:"emailAddress"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"bad request"}`, http.StatusBadRequest)
		return
	}
	id := identityFor(req.EmailAddress)
	first, last, _ := strings.Cut(id.name, " ")
	writeJSON(w, map[string]any{
		"data": map[string]any{
			"result": []map[string]any{{
				"firstName":            first,
				"lastName":             last,
				"jobTitle":             "Operations Director",
				"companyName":          id.company,
				"companyIndustry":      "Software",
				"companyEmployeeCount": 200,
				"location":             "Denver, CO",
			}},
		},
	})
}

func (s *Server) handlePDL(w http.ResponseWriter, r *http.Request) {
	id := identityFor(r.URL.Query().Get("email"))
	writeJSON(w, map[string]any{
		"status": 200,
		"data": map[string]any{
			"full_name":            id.name,
			"job_title":            "Head of Operations",
			"job_company_name":     id.company,
			"job_company_industry": "Software",
			"location_name":        "Denver, Colorado",
		},
	})
}

func (s *Server) handleHunter(w http.ResponseWriter, r *http.Request) {
	id := identityFor(r.URL.Query().Get("email"))
	first, last, _ := strings.Cut(id.name, " ")
	writeJSON(w, map[string]any{
		"data": map[string]any{
			"first_name": first,
			"last_name":  last,
			"position":   "Operations Lead",
			"company":    id.company,
		},
	})
}

func (s *Server) handleTavily(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"bad request"}`, http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]any{
		"answer": "The company recently announced a new product line and expanded its team.",
		"results": []map[string]any{
			{"title": "Company news", "content": "Expansion announced this quarter."},
		},
	})
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	expected := s.expectedAuthorization
	s.mu.Unlock()
	if expected != "" && r.Header.Get("Authorization") != expected {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		http.Error(w, `{"error":"email is required"}`, http.StatusBadRequest)
		return
	}
	slug := strings.ReplaceAll(req.Email, "@", "-at-")
	writeJSON(w, map[string]any{
		"url":          fmt.Sprintf("https://files.mock.local/%s.pdf?sig=mock", slug),
		"storage_path": fmt.Sprintf("pdfs/%s.pdf", slug),
		"size_bytes":   24576,
	})
}
