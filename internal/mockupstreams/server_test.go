package mockupstreams

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/radlabs/personalization-engine/internal/config"
	"github.com/radlabs/personalization-engine/internal/enrich"
	"github.com/radlabs/personalization-engine/internal/enrich/providers"
	"github.com/radlabs/personalization-engine/internal/render"
)

func TestProvidersAgainstMock(t *testing.T) {
	t.Parallel()

	mock := New()
	srv := httptest.NewServer(mock.Handler())
	defer srv.Close()

	key := enrich.KeyForEmail("jane.doe@acme.com")
	client := srv.Client()

	set := []enrich.Provider{
		providers.NewApollo(srv.URL+"/apollo", "k", 5, client),
		providers.NewZoomInfo(srv.URL+"/zoominfo", "k", 4, client),
		providers.NewPDL(srv.URL+"/pdl", "k", 3, client),
		providers.NewHunter(srv.URL+"/hunter", "k", 2, client),
		providers.NewTavily(srv.URL+"/tavily", "k", 1, client),
	}
	for _, p := range set {
		rec := p.Fetch(context.Background(), key)
		if !rec.Success {
			t.Errorf("%s: fetch failed: %s", p.ID(), rec.Error)
			continue
		}
		if len(rec.Payload) == 0 {
			t.Errorf("%s: empty payload", p.ID())
		}
	}

	// Person fakes agree on the derived identity.
	apollo := set[0].Fetch(context.Background(), key)
	if apollo.Payload["full_name"] != "Jane Doe" {
		t.Errorf("apollo full_name = %q, want Jane Doe", apollo.Payload["full_name"])
	}
	if apollo.Payload["company"] != "Acme" {
		t.Errorf("apollo company = %q, want Acme", apollo.Payload["company"])
	}

	if got := len(mock.Calls()); got != 6 {
		t.Errorf("recorded %d calls, want 6", got)
	}
}

func TestFailingUpstream(t *testing.T) {
	t.Parallel()

	mock := New()
	mock.SetFailing("apollo", true)
	srv := httptest.NewServer(mock.Handler())
	defer srv.Close()

	a := providers.NewApollo(srv.URL+"/apollo", "k", 5, srv.Client())
	rec := a.Fetch(context.Background(), enrich.KeyForEmail("jane@acme.com"))
	if rec.Success {
		t.Fatal("want failure from failing upstream")
	}
	if !strings.Contains(rec.Error, "503") {
		t.Errorf("error = %q, want status 503", rec.Error)
	}

	mock.SetFailing("apollo", false)
	if rec := a.Fetch(context.Background(), enrich.KeyForEmail("jane@acme.com")); !rec.Success {
		t.Errorf("still failing after clear: %s", rec.Error)
	}
}

func TestRenderRoute(t *testing.T) {
	t.Parallel()

	mock := New()
	srv := httptest.NewServer(mock.Handler())
	defer srv.Close()

	c := render.New(config.RenderConfig{
		BaseURL: srv.URL + "/render",
		Timeout: config.Duration(5 * time.Second),
		URLTTL:  config.Duration(7 * 24 * time.Hour),
	}, srv.Client())

	res, err := c.Render(context.Background(), render.Request{
		Email: "jane@acme.com", IntroHook: "Hi.", CTA: "Chat?",
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.HasSuffix(res.StoragePath, ".pdf") {
		t.Errorf("StoragePath = %q", res.StoragePath)
	}
	if res.SizeBytes != 24576 {
		t.Errorf("SizeBytes = %d", res.SizeBytes)
	}
}

func TestRenderAuthEnforced(t *testing.T) {
	mock := New()
	mock.RequireBearerToken("rt-123")
	srv := httptest.NewServer(mock.Handler())
	defer srv.Close()

	t.Setenv("TEST_MOCK_RENDER_TOKEN", "rt-123")
	ok := render.New(config.RenderConfig{
		BaseURL:  srv.URL + "/render",
		TokenEnv: "TEST_MOCK_RENDER_TOKEN",
		Timeout:  config.Duration(5 * time.Second),
		URLTTL:   config.Duration(time.Hour),
	}, srv.Client())
	if _, err := ok.Render(context.Background(), render.Request{Email: "a@b.co"}); err != nil {
		t.Errorf("authorized render failed: %v", err)
	}

	anon := render.New(config.RenderConfig{
		BaseURL: srv.URL + "/render",
		Timeout: config.Duration(5 * time.Second),
		URLTTL:  config.Duration(time.Hour),
	}, srv.Client())
	_, err := anon.Render(context.Background(), render.Request{Email: "a@b.co"})
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Errorf("unauthorized render err = %v, want 401", err)
	}
}
