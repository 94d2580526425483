// Command mock-upstreams serves local fakes of the enrichment providers and
// the PDF renderer, so the engine can run end to end without real
// credentials. Point each provider's base_url at this server's matching path
// prefix (e.g. http://localhost:9090/apollo).
package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/radlabs/personalization-engine/internal/config"
	"github.com/radlabs/personalization-engine/internal/mockupstreams"
)

func main() {
	fs := flag.NewFlagSet("mock-upstreams", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	addr := fs.String("addr", config.EnvStr("MOCK_UPSTREAMS_ADDR", ":9090"), "Listen address (env: MOCK_UPSTREAMS_ADDR)")
	renderToken := fs.String("render-token", config.EnvStr("MOCK_RENDER_TOKEN", ""), "If set, the render route requires this bearer token (env: MOCK_RENDER_TOKEN)")
	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}

	srv := mockupstreams.New()
	srv.RequireBearerToken(*renderToken)

	logger := log.New(os.Stderr, "", log.LstdFlags|log.LUTC)
	logger.Printf("stage=mock-upstreams addr=%s", *addr)
	if err := http.ListenAndServe(*addr, srv.Handler()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "mock-upstreams error: %v\n", err)
		os.Exit(1)
	}
}
