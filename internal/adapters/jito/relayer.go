// Package jito habla con el block engine de Jito: envío de bundles por JSON-RPC
// y lectura del stream de tips por websocket.
package jito

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alejandrodnm/pulsesurfer/internal/domain"
	"github.com/alejandrodnm/pulsesurfer/internal/retry"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/mr-tron/base58"
	"golang.org/x/time/rate"
)

const (
	DefaultBlockEngine = "https://mainnet.block-engine.jito.wtf/api/v1/bundles"

	sendAttempts  = 6 // 1 + 5 reintentos
	sendBaseDelay = 500 * time.Millisecond
	sendMaxDelay  = 5 * time.Second
	sendJitter    = 0.3

	// El block engine limita a ~5 req/s por IP
	relayerRatePerSec = 4
)

// Relayer es el cliente JSON-RPC del block engine.
type Relayer struct {
	client  *rpc.Client
	limiter *rate.Limiter
	send    retry.Policy
}

// NewRelayer conecta con endpoint (DefaultBlockEngine si está vacío).
// send sobreescribe la política de reintentos de sendBundle; nil usa la de producción.
func NewRelayer(endpoint string, send *retry.Policy) (*Relayer, error) {
	if endpoint == "" {
		endpoint = DefaultBlockEngine
	}
	client, err := rpc.DialHTTPWithClient(endpoint, &http.Client{Timeout: 15 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("jito.NewRelayer: dial %s: %w", endpoint, err)
	}
	policy := retry.Exponential(sendAttempts, sendBaseDelay, sendMaxDelay, sendJitter)
	if send != nil {
		policy = *send
	}
	policy.Retryable = isRetryable
	return &Relayer{
		client:  client,
		limiter: rate.NewLimiter(relayerRatePerSec, 2),
		send:    policy,
	}, nil
}

// Close libera el cliente RPC.
func (r *Relayer) Close() {
	r.client.Close()
}

// SendBundle envía las transacciones firmadas (base58) como un bundle y devuelve su id.
// 429 y 5xx se reintentan con backoff exponencial y jitter; 400 es terminal.
func (r *Relayer) SendBundle(ctx context.Context, b domain.SignedBundle) (string, error) {
	if len(b.Transactions) == 0 {
		return "", fmt.Errorf("jito.SendBundle: empty bundle")
	}
	encoded := make([]string, len(b.Transactions))
	for i, tx := range b.Transactions {
		encoded[i] = base58.Encode(tx)
	}

	var bundleID string
	err := r.send.Do(ctx, func(ctx context.Context, attempt int) error {
		if err := r.limiter.Wait(ctx); err != nil {
			return retry.Permanent(err)
		}
		err := r.client.CallContext(ctx, &bundleID, "sendBundle", encoded)
		if err != nil {
			slog.Warn("jito: sendBundle failed", "attempt", attempt+1, "err", err)
		}
		return err
	})
	if err != nil {
		return "", fmt.Errorf("jito.SendBundle: %w", err)
	}
	if bundleID == "" {
		return "", fmt.Errorf("jito.SendBundle: empty bundle id in response")
	}
	slog.Info("jito: bundle sent", "bundle_id", bundleID, "url", "https://explorer.jito.wtf/bundle/"+bundleID)
	return bundleID, nil
}

type inflightStatuses struct {
	Value []*struct {
		BundleID   string  `json:"bundle_id"`
		Status     string  `json:"status"`
		LandedSlot *uint64 `json:"landed_slot"`
	} `json:"value"`
}

// BundleStatus consulta getInflightBundleStatuses. Un bundle desconocido es BundleInvalid.
func (r *Relayer) BundleStatus(ctx context.Context, bundleID string) (domain.BundleStatus, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}
	var res inflightStatuses
	if err := r.client.CallContext(ctx, &res, "getInflightBundleStatuses", []string{bundleID}); err != nil {
		return "", fmt.Errorf("jito.BundleStatus: %w", err)
	}
	if len(res.Value) == 0 || res.Value[0] == nil {
		return domain.BundleInvalid, nil
	}
	switch st := domain.BundleStatus(res.Value[0].Status); st {
	case domain.BundlePending, domain.BundleLanded, domain.BundleFailed, domain.BundleInvalid:
		return st, nil
	default:
		slog.Warn("jito: unknown bundle status", "bundle_id", bundleID, "status", res.Value[0].Status)
		return domain.BundleInvalid, nil
	}
}

// isRetryable: 429, 5xx y errores de red se reintentan. 4xx y errores JSON-RPC no.
func isRetryable(err error) bool {
	var he rpc.HTTPError
	if errors.As(err, &he) {
		return he.StatusCode == http.StatusTooManyRequests || he.StatusCode >= 500
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
