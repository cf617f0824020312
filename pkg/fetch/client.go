package fetch

import (
	"errors"
	"net"
	"net/http"
	"net/http/cookiejar"

	"github.com/sirupsen/logrus"

	"github.com/sriram-pr/article-scraper/pkg/config"
)

// maxRedirects caps redirect chains. News URLs commonly hop through a
// tracking redirect and an http->https upgrade; anything longer is a loop.
const maxRedirects = 10

// NewClient creates the shared HTTP client from the provided configuration.
// One client serves all workers so connection pooling and the cookie jar
// work across the app. The jar matters for news sites that set a consent
// or session cookie on the first hit and redirect until it comes back.
func NewClient(cfg config.HTTPClientConfig, log *logrus.Logger) *http.Client {
	log.Info("Initializing HTTP client...")

	dialer := &net.Dialer{
		Timeout:   cfg.DialerTimeout,
		KeepAlive: cfg.DialerKeepAlive,
	}

	transport := &http.Transport{
		Proxy:                  http.ProxyFromEnvironment,
		DialContext:            dialer.DialContext,
		ForceAttemptHTTP2:      true,
		MaxIdleConns:           cfg.MaxIdleConns,
		MaxIdleConnsPerHost:    cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:        cfg.IdleConnTimeout,
		TLSHandshakeTimeout:    cfg.TLSHandshakeTimeout,
		ExpectContinueTimeout:  cfg.ExpectContinueTimeout,
		MaxResponseHeaderBytes: 1 << 20, // article pages never legitimately exceed this
	}
	if cfg.ForceAttemptHTTP2 != nil {
		transport.ForceAttemptHTTP2 = *cfg.ForceAttemptHTTP2
	}

	// nil options: no public suffix list, cookies are still scoped per host
	jar, _ := cookiejar.New(nil)

	client := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
		Jar:       jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return errors.New("stopped after 10 redirects")
			}
			log.Debugf("Redirecting: %s -> %s (hop %d)", via[len(via)-1].URL, req.URL, len(via))
			return nil
		},
	}
	log.Info("HTTP client initialized.")
	return client
}
