// This command provides an executable version of oauth2gate: a reverse
// proxy filter that gates access to an upstream behind an OAuth2
// Authorization Code flow.
//
// For the list of command line options, run:
//
//	oauth2gate -help
package main

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	oconfig "github.com/Yueren-Wang/oauth2gate/internal/config"
	"github.com/Yueren-Wang/oauth2gate/internal/oauth2"
	"github.com/Yueren-Wang/oauth2gate/internal/oauthlog"
	"github.com/Yueren-Wang/oauth2gate/internal/secretreader"
)

func main() {
	cfg := oconfig.NewConfig()
	if err := cfg.Parse(); err != nil {
		log.Fatal(err)
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	oauthlog.Init(oauthlog.Options{JSON: cfg.LogFormatJSON, Level: level})

	if cfg.UpstreamAddress == "" {
		log.Fatal("oauth2gate: -upstream-address is required")
	}
	upstreamURL, err := url.Parse(cfg.UpstreamAddress)
	if err != nil {
		log.Fatalf("oauth2gate: invalid -upstream-address: %v", err)
	}

	oc, sr, err := cfg.Build()
	if err != nil {
		log.Fatal(err)
	}
	defer sr.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	stats := oauth2.NewPrometheusStats(registry, cfg.MetricsNamespace)

	client := oauth2.NewHTTPClient(oc.TokenEndpoint, cfg.TokenRequestTimeout, cfg.DefaultExpiresIn)
	rng := oauth2.NewRandomGenerator()
	logger := oauthlog.New()

	filter := oauth2.NewFilter(oc, client, time.Now, rng, stats, logger)
	proxy := httputil.NewSingleHostReverseProxy(upstreamURL)

	server := &http.Server{
		Addr:         cfg.Address,
		Handler:      filter.Middleware(proxy),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	if cfg.MetricsListener != "" {
		go serveMetrics(cfg.MetricsListener, registry)
	}

	go watchReloadSignal(sr)

	log.Infof("oauth2gate: listening on %s, forwarding to %s", cfg.Address, upstreamURL)
	log.Fatal(server.ListenAndServe())
}

// watchReloadSignal forces an out-of-band secret reload on SIGHUP, so an
// operator rotating the secret file doesn't have to wait for the next
// ticker tick. Concurrent with the ticker's own reloads, both collapse
// through FileSecretReader.Reload's singleflight group.
func watchReloadSignal(sr *secretreader.FileSecretReader) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP)
	for range sig {
		log.Infoln("oauth2gate: SIGHUP received, reloading secret file")
		if err := sr.Reload(); err != nil {
			log.Errorf("oauth2gate: secret reload failed: %v", err)
		}
	}
}

func serveMetrics(addr string, registry *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "ok")
	})
	log.Infof("oauth2gate: metrics listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Errorf("oauth2gate: metrics listener stopped: %v", err)
	}
}
