package client

import (
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/Laisky/zap"

	"github.com/one-chat/one-chat/common/config"
	"github.com/one-chat/one-chat/common/logger"
)

var (
	// HTTPClient talks to the upstream LLM API. It carries no overall timeout;
	// callers bound each request with a context deadline so streams may run long.
	HTTPClient *http.Client
	// UserContentRequestHTTPClient downloads generated images from upstream-provided URLs.
	UserContentRequestHTTPClient *http.Client

	initOnce sync.Once
)

// Init builds the shared clients once. Safe to call from multiple goroutines.
func Init() {
	initOnce.Do(func() {
		transport := newTransport()
		HTTPClient = &http.Client{Transport: transport}
		UserContentRequestHTTPClient = &http.Client{
			Transport: transport,
			Timeout:   config.RelayImageTimeout,
		}
	})
}

func newTransport() *http.Transport {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
		ForceAttemptHTTP2:     true,
	}

	if config.RelayProxy != "" {
		proxyURL, err := url.Parse(config.RelayProxy)
		if err != nil {
			logger.Logger.Fatal("failed to parse RELAY_PROXY", zap.Error(err))
		}
		transport.Proxy = http.ProxyURL(proxyURL)
		logger.Logger.Info("using relay proxy", zap.String("proxy", proxyURL.Redacted()))
	} else {
		transport.Proxy = http.ProxyFromEnvironment
	}

	return transport
}
