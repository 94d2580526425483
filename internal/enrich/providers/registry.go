package providers

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/radlabs/personalization-engine/internal/config"
	"github.com/radlabs/personalization-engine/internal/enrich"
)

// Build constructs the provider set from configuration. A provider whose key
// environment variable is empty is degraded to a stub; startup never fails on
// missing credentials. Unknown provider ids are a config error.
func Build(cfgs []config.Provider, client *http.Client, logger *log.Logger) ([]enrich.Provider, map[string]time.Duration, error) {
	if client == nil {
		client = http.DefaultClient
	}
	set := make([]enrich.Provider, 0, len(cfgs))
	timeouts := make(map[string]time.Duration, len(cfgs))

	for _, cfg := range cfgs {
		timeouts[cfg.ID] = cfg.Timeout.Std()

		key := cfg.APIKey()
		if key == "" {
			if logger != nil {
				logger.Printf("provider=%s mode=stub reason=missing_credentials env=%s", cfg.ID, cfg.APIKeyEnv)
			}
			set = append(set, NewStub(cfg.ID, cfg.Priority))
			continue
		}

		var p enrich.Provider
		switch cfg.ID {
		case "apollo":
			p = NewApollo(cfg.BaseURL, key, cfg.Priority, client)
		case "zoominfo":
			p = NewZoomInfo(cfg.BaseURL, key, cfg.Priority, client)
		case "pdl":
			p = NewPDL(cfg.BaseURL, key, cfg.Priority, client)
		case "hunter":
			p = NewHunter(cfg.BaseURL, key, cfg.Priority, client)
		case "tavily":
			p = NewTavily(cfg.BaseURL, key, cfg.Priority, client)
		default:
			return nil, nil, fmt.Errorf("unknown provider id %q", cfg.ID)
		}
		set = append(set, p)
	}
	return set, timeouts, nil
}
