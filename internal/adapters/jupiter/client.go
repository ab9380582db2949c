package jupiter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/alejandrodnm/pulsesurfer/internal/retry"
	"golang.org/x/time/rate"
)

const (
	defaultQuoteBase = "https://quote-api.jup.ag/v6"
	defaultPriceBase = "https://price.jup.ag/v6/price"

	// Jupiter free tier: 600 req/min → 60% = 6/s
	defaultRatePerSec = 6

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
	maxRetryWait  = 5 * time.Second

	priceAttempts   = 5
	priceRetryDelay = 5 * time.Second
)

// Options configura el Client. Los campos vacíos usan los valores de producción.
type Options struct {
	QuoteBase string
	PriceBase string

	// UserPublicKey es el wallet de sesión que firma los swaps.
	UserPublicKey string
	// ReferralAccount activa el fee de plataforma: sin él no se envía platformFeeBps
	// ni feeAccount.
	ReferralAccount string

	SlippageBps        int
	MaxAutoSlippageBps int
	BaseFeeBps         int

	RatePerSec  float64
	HTTPTimeout time.Duration

	// PricePolicy sobreescribe los reintentos del oráculo (5 × 5s por defecto).
	PricePolicy *retry.Policy
	// RequestPolicy sobreescribe los reintentos de quote/swap.
	RequestPolicy *retry.Policy
}

// Client es el HTTP client del router Jupiter (quote, swap y precio) con rate limiting y retries.
type Client struct {
	http    *http.Client
	opts    Options
	limiter *rate.Limiter

	request retry.Policy
	price   retry.Policy
}

// HTTPError es una respuesta no-2xx del API.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Body)
}

// NewClient crea un Client con las opciones dadas.
func NewClient(opts Options) *Client {
	if opts.QuoteBase == "" {
		opts.QuoteBase = defaultQuoteBase
	}
	if opts.PriceBase == "" {
		opts.PriceBase = defaultPriceBase
	}
	if opts.SlippageBps <= 0 {
		opts.SlippageBps = 200
	}
	if opts.MaxAutoSlippageBps <= 0 {
		opts.MaxAutoSlippageBps = 500
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = defaultRatePerSec
	}
	if opts.HTTPTimeout <= 0 {
		opts.HTTPTimeout = 15 * time.Second
	}

	c := &Client{
		http:    &http.Client{Timeout: opts.HTTPTimeout},
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSec), 3),
		request: retry.Exponential(maxRetries+1, baseRetryWait, maxRetryWait, 0.3),
		price:   retry.Fixed(priceAttempts, priceRetryDelay),
	}
	if opts.RequestPolicy != nil {
		c.request = *opts.RequestPolicy
	}
	if opts.PricePolicy != nil {
		c.price = *opts.PricePolicy
	}
	return c
}

// get hace un GET con rate limiting y la política dada.
func (c *Client) get(ctx context.Context, policy retry.Policy, url string, out any) error {
	return c.doWithRetry(ctx, policy, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	}, out)
}

// post hace un POST JSON con rate limiting y la política dada.
func (c *Client) post(ctx context.Context, policy retry.Policy, url string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}
	return c.doWithRetry(ctx, policy, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		return req, nil
	}, out)
}

// doWithRetry ejecuta la petición según policy: 429 y 5xx se reintentan, el resto de 4xx no.
func (c *Client) doWithRetry(ctx context.Context, policy retry.Policy, build func(context.Context) (*http.Request, error), out any) error {
	return policy.Do(ctx, func(ctx context.Context, attempt int) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return retry.Permanent(fmt.Errorf("rate limiter: %w", err))
		}
		req, err := build(ctx)
		if err != nil {
			return retry.Permanent(err)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return retry.Permanent(ctx.Err())
			}
			slog.Warn("jupiter: request failed", "url", req.URL.Path, "attempt", attempt+1, "err", err)
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			slog.Warn("jupiter: rate limited by API", "attempt", attempt+1)
			return &HTTPError{StatusCode: resp.StatusCode}
		}
		if resp.StatusCode >= 500 {
			return &HTTPError{StatusCode: resp.StatusCode}
		}
		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return retry.Permanent(&HTTPError{StatusCode: resp.StatusCode, Body: string(body)})
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	})
}

// IsClientError devuelve true si err es una respuesta 4xx distinta de 429.
func IsClientError(err error) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.StatusCode >= 400 && he.StatusCode < 500 && he.StatusCode != http.StatusTooManyRequests
}
