// Package retry unifica los "reintentar N veces con espera" de todos los clientes
// de red en una sola política de backoff parametrizable por llamada.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// ErrExhausted se devuelve (envolviendo el último error) cuando se agotan los intentos.
var ErrExhausted = errors.New("retry: attempts exhausted")

// Policy describe cuántas veces y con qué espera se reintenta una operación.
//
// La espera antes del intento n+1 es min(BaseDelay × Multiplier^n, MaxDelay)
// más un jitter aleatorio de hasta Jitter × espera.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration // 0 = sin tope
	Multiplier  float64       // 1 = espera fija
	Jitter      float64       // fracción, 0.3 = hasta +30%

	// Retryable decide si un error merece otro intento. nil = todo salvo Permanent.
	Retryable func(error) bool
}

// Fixed devuelve una política de espera constante sin jitter.
func Fixed(attempts int, delay time.Duration) Policy {
	return Policy{MaxAttempts: attempts, BaseDelay: delay, Multiplier: 1}
}

// Exponential devuelve una política de backoff exponencial (×2) con tope y jitter.
func Exponential(attempts int, base, max time.Duration, jitter float64) Policy {
	return Policy{MaxAttempts: attempts, BaseDelay: base, MaxDelay: max, Multiplier: 2, Jitter: jitter}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marca err como terminal: Do lo devuelve sin reintentar.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent devuelve true si err (o algo que envuelve) fue marcado con Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Delay devuelve la espera antes del intento attempt+1 (attempt empieza en 0).
func (p Policy) Delay(attempt int) time.Duration {
	mult := p.Multiplier
	if mult <= 0 {
		mult = 1
	}
	d := float64(p.BaseDelay) * math.Pow(mult, float64(attempt))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.Jitter > 0 {
		d += d * p.Jitter * rand.Float64()
	}
	return time.Duration(d)
}

// Do ejecuta fn hasta que devuelva nil, un error terminal, se agoten los intentos
// o ctx se cancele. fn recibe el número de intento (0-based).
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var last error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		last = fn(ctx, attempt)
		if last == nil {
			return nil
		}
		if IsPermanent(last) {
			return errors.Unwrap(last)
		}
		if p.Retryable != nil && !p.Retryable(last) {
			return last
		}
		if attempt == attempts-1 {
			break
		}
		if err := Sleep(ctx, p.Delay(attempt)); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempts, last)
}

// Sleep espera d respetando el contexto. Devuelve ctx.Err() si se cancela antes.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
