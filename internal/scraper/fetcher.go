package scraper

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// FetcherConfig carries the knobs for the HTTP fetch layer.
type FetcherConfig struct {
	UserAgent    string
	Timeout      time.Duration
	ProxyURL     string
	Encoding     string
	Concurrency  int
	RequestDelay time.Duration
	Policy       *BackoffPolicy
}

// Fetcher retrieves pages via a shared Colly collector with retry,
// forced legacy-charset decoding, and a courtesy throttle. All fetches
// through one instance share a connection pool.
type Fetcher struct {
	base     *colly.Collector
	policy   *BackoffPolicy
	throttle *rate.Limiter
	encoding string
	proxied  bool
	logger   *zap.Logger
}

// NewFetcher constructs a configured Fetcher.
func NewFetcher(cfg FetcherConfig, logger *zap.Logger) (*Fetcher, error) {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Policy == nil {
		cfg.Policy = NewBackoffPolicy(0, 0, 0)
	}
	if cfg.Encoding == "" {
		cfg.Encoding = "iso-8859-1"
	}

	base := colly.NewCollector(colly.UserAgent(cfg.UserAgent))
	base.AllowURLRevisit = true
	base.WithTransport(&http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   cfg.Concurrency,
		MaxConnsPerHost:       cfg.Concurrency * 2,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.Timeout,
	})
	base.SetRequestTimeout(cfg.Timeout)

	proxied := false
	if cfg.ProxyURL != "" {
		if err := base.SetProxy(cfg.ProxyURL); err != nil {
			return nil, err
		}
		proxied = true
	}

	var throttle *rate.Limiter
	if cfg.RequestDelay > 0 {
		// One fetch completion per delay/concurrency across all
		// workers, matching a per-task sleep of the same interval.
		throttle = rate.NewLimiter(rate.Every(cfg.RequestDelay/time.Duration(cfg.Concurrency)), 1)
	}

	return &Fetcher{
		base:     base,
		policy:   cfg.Policy,
		throttle: throttle,
		encoding: cfg.Encoding,
		proxied:  proxied,
		logger:   logger,
	}, nil
}

// ProxyEnabled reports whether requests go through an upstream proxy.
func (f *Fetcher) ProxyEnabled() bool { return f.proxied }

// Fetch retrieves rawURL and returns the decoded page text. Transient
// transport failures are retried per the backoff policy; HTTP error
// statuses fail permanently after the first attempt.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < f.policy.MaxAttempts(); attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		text, err := f.visit(rawURL)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !f.policy.ShouldRetry(err, attempt) {
			break
		}
		wait := f.policy.Backoff(attempt)
		f.logger.Debug("retrying fetch",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}
	return "", lastErr
}

// Throttle blocks for the courtesy delay slice after a successful
// article fetch so the aggregate request rate stays bounded.
func (f *Fetcher) Throttle(ctx context.Context) error {
	if f.throttle == nil {
		return nil
	}
	return f.throttle.Wait(ctx)
}

type fetchResult struct {
	text string
	err  error
}

func (f *Fetcher) visit(rawURL string) (string, error) {
	collector := f.base.Clone()
	resultCh := make(chan fetchResult, 1)
	var once sync.Once
	send := func(res fetchResult) {
		once.Do(func() {
			resultCh <- res
		})
	}

	collector.OnRequest(func(r *colly.Request) {
		// The site's advertised charset is unreliable; always decode
		// with the configured legacy encoding.
		r.ResponseCharacterEncoding = f.encoding
	})

	collector.OnResponse(func(r *colly.Response) {
		send(fetchResult{text: string(r.Body)})
	})

	collector.OnError(func(r *colly.Response, err error) {
		if err == nil {
			err = errors.New("unknown colly error")
		}
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		send(fetchResult{err: &FetchError{
			URL:        rawURL,
			StatusCode: status,
			Transient:  status == 0,
			Err:        err,
		}})
	})

	if err := collector.Visit(rawURL); err != nil {
		select {
		case res := <-resultCh:
			return res.text, res.err
		default:
		}
		var fe *FetchError
		if errors.As(err, &fe) {
			return "", err
		}
		return "", &FetchError{URL: rawURL, Transient: true, Err: err}
	}
	collector.Wait()

	select {
	case res := <-resultCh:
		return res.text, res.err
	default:
		return "", &FetchError{
			URL:       rawURL,
			Transient: true,
			Err:       errors.New("fetch produced no result"),
		}
	}
}
