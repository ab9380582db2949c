package chain

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/alejandrodnm/pulsesurfer/internal/domain"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"golang.org/x/sync/errgroup"
)

// Ledger lee saldos y estados del ledger para el wallet de sesión.
type Ledger struct {
	rpc    *rpc.Client
	owner  solana.PublicKey
	asset  domain.Asset
	stable domain.Asset

	stableAccount solana.PublicKey // ATA del activo estable
}

// NewLedger crea un Ledger contra endpoint. asset debe ser SOL nativo;
// stable se lee de su cuenta de token asociada.
func NewLedger(endpoint string, owner solana.PublicKey, asset, stable domain.Asset) (*Ledger, error) {
	mint, err := solana.PublicKeyFromBase58(stable.Mint)
	if err != nil {
		return nil, fmt.Errorf("chain.NewLedger: stable mint: %w", err)
	}
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return nil, fmt.Errorf("chain.NewLedger: associated token account: %w", err)
	}
	return &Ledger{
		rpc:           rpc.New(endpoint),
		owner:         owner,
		asset:         asset,
		stable:        stable,
		stableAccount: ata,
	}, nil
}

// Balances lee los dos saldos en paralelo.
func (l *Ledger) Balances(ctx context.Context) (domain.Balances, error) {
	var b domain.Balances
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := l.rpc.GetBalance(gctx, l.owner, rpc.CommitmentConfirmed)
		if err != nil {
			return fmt.Errorf("get %s balance: %w", l.asset.Symbol, err)
		}
		b.Asset = l.asset.FromAtomic(res.Value)
		return nil
	})
	g.Go(func() error {
		v, err := l.tokenBalance(gctx, l.stableAccount)
		if err != nil {
			return fmt.Errorf("get %s balance: %w", l.stable.Symbol, err)
		}
		b.Stable = l.stable.FromAtomic(v)
		return nil
	})
	if err := g.Wait(); err != nil {
		return domain.Balances{}, fmt.Errorf("chain.Balances: %w", err)
	}
	return b, nil
}

// tokenBalance devuelve el saldo en unidades mínimas. Una cuenta inexistente es saldo 0.
func (l *Ledger) tokenBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	res, err := l.rpc.GetTokenAccountBalance(ctx, account, rpc.CommitmentConfirmed)
	if err != nil {
		if strings.Contains(err.Error(), "could not find account") {
			return 0, nil
		}
		return 0, err
	}
	if res == nil || res.Value == nil {
		return 0, nil
	}
	amount, err := strconv.ParseUint(res.Value.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", res.Value.Amount, err)
	}
	return amount, nil
}

// LatestBlockhash devuelve un blockhash confirmado para firmar la transacción de tip.
func (l *Ledger) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	res, err := l.rpc.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("chain.LatestBlockhash: %w", err)
	}
	return res.Value.Blockhash, nil
}

// SignatureStatus consulta el estado de una firma en el ledger.
// Confirmada sin error → Landed, con error → Failed, desconocida → Invalid.
func (l *Ledger) SignatureStatus(ctx context.Context, signature string) (domain.BundleStatus, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return "", fmt.Errorf("chain.SignatureStatus: %w", err)
	}
	res, err := l.rpc.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return "", fmt.Errorf("chain.SignatureStatus: %w", err)
	}
	if res == nil || len(res.Value) == 0 || res.Value[0] == nil {
		return domain.BundleInvalid, nil
	}
	st := res.Value[0]
	if st.Err != nil {
		return domain.BundleFailed, nil
	}
	switch st.ConfirmationStatus {
	case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
		return domain.BundleLanded, nil
	default:
		return domain.BundlePending, nil
	}
}
