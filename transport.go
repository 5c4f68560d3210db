package main

import (
	"net"
	"net/http"
	"time"

	"github.com/tonimelisma/sharepoint-sync/internal/config"
	"github.com/tonimelisma/sharepoint-sync/internal/graph"
)

const (
	idleConnTimeout = 90 * time.Second
	maxRetryDelay   = 60 * time.Second
)

// newTransport dials with connect_timeout and waits at most data_timeout
// for response headers.
func newTransport(cfg *config.Resolved) *http.Transport {
	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout, KeepAlive: 30 * time.Second}

	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ResponseHeaderTimeout: cfg.DataTimeout,
		IdleConnTimeout:       idleConnTimeout,
		MaxIdleConnsPerHost:   4,
		ForceAttemptHTTP2:     true,
	}
}

// metaHTTPClient serves token, drive and folder calls. Their bodies are
// small, so the whole exchange is bounded.
func metaHTTPClient(cfg *config.Resolved) *http.Client {
	return &http.Client{
		Transport: newTransport(cfg),
		Timeout:   cfg.ConnectTimeout + cfg.DataTimeout,
	}
}

// transferHTTPClient serves uploads. A chunk may legitimately take longer
// than data_timeout to send, so only the header wait is bounded.
func transferHTTPClient(cfg *config.Resolved) *http.Client {
	return &http.Client{Transport: newTransport(cfg)}
}

func retryPolicy(cfg *config.Resolved) graph.RetryPolicy {
	return graph.RetryPolicy{
		MaxRetries: uint64(max(cfg.MaxRetries, 0)),
		BaseDelay:  cfg.RetryBaseDelay,
		MaxDelay:   maxRetryDelay,
	}
}

func userAgent(cfg *config.Resolved) string {
	if cfg.UserAgent != "" {
		return cfg.UserAgent
	}

	return "sharepoint-sync/" + version
}
