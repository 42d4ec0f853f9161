// Package collyfetcher implements fetcher.Transport using gocolly.
package collyfetcher

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/lotto-store-crawler/internal/fetcher"
)

const defaultTimeout = 10 * time.Second

// Transport performs single GET/POST exchanges through a Colly collector.
type Transport struct {
	cfg           fetcher.Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Transport from the shared client configuration.
func New(cfg fetcher.Config) *Transport {
	c := colly.NewCollector(colly.Async(false))
	// Retries revisit the same URL and status handling belongs to the fetcher.
	c.AllowURLRevisit = true
	c.ParseHTTPErrorResponse = true
	c.IgnoreRobotsTxt = true
	c.DetectCharset = true
	c.WithTransport(newHTTPTransport(cfg.InsecureSkipVerify))
	return &Transport{cfg: cfg, baseCollector: c}
}

// RoundTrip executes exactly one request.
func (t *Transport) RoundTrip(ctx context.Context, req fetcher.Request) (fetcher.Response, error) {
	var (
		result   fetcher.Response
		fetchErr error
	)
	collector := t.buildCollector(&result, &fetchErr)
	if err := t.runCollector(ctx, collector, req, &fetchErr); err != nil {
		return fetcher.Response{}, err
	}
	return result, nil
}

func (t *Transport) buildCollector(result *fetcher.Response, fetchErr *error) *colly.Collector {
	collector := t.baseCollector.Clone()
	if t.cfg.UserAgent != "" {
		collector.UserAgent = t.cfg.UserAgent
	}
	timeout := t.cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	collector.SetRequestTimeout(timeout)
	t.configureCollectorHooks(collector, result, fetchErr)
	return collector
}

func (t *Transport) configureCollectorHooks(hooks collectorHooks, result *fetcher.Response, fetchErr *error) {
	hooks.OnRequest(func(r *colly.Request) {
		if t.cfg.Referer != "" {
			r.Headers.Set("Referer", t.cfg.Referer)
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = fetcher.Response{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		// With ParseHTTPErrorResponse set, this only fires when no usable response arrived.
		if r != nil && r.StatusCode != 0 {
			*result = fetcher.Response{
				URL:        r.Request.URL.String(),
				StatusCode: r.StatusCode,
				Headers:    r.Headers.Clone(),
				Body:       append([]byte(nil), r.Body...),
			}
			return
		}
		*fetchErr = err
	})
}

func (t *Transport) runCollector(ctx context.Context, collector *colly.Collector, req fetcher.Request, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		if strings.EqualFold(req.Method, http.MethodPost) {
			done <- collector.Post(req.URL, req.Form)
			return
		}
		done <- collector.Visit(req.URL)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func newHTTPTransport(insecure bool) *http.Transport {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}
	if insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // the results site serves a chain some clients reject
	}
	return transport
}
