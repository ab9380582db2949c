package chain

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/alejandrodnm/pulsesurfer/internal/domain"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
)

// BlockhashSource da blockhashes recientes (Ledger en producción).
type BlockhashSource interface {
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
}

// Builder firma el swap del router y construye la transacción de tip.
type Builder struct {
	wallet    *Wallet
	blockhash BlockhashSource
}

// NewBuilder crea un Builder que firma con wallet.
func NewBuilder(wallet *Wallet, blockhash BlockhashSource) *Builder {
	return &Builder{wallet: wallet, blockhash: blockhash}
}

// Build devuelve el bundle [swap, tip] firmado. El swap conserva el blockhash del router;
// el tip usa uno fresco.
func (b *Builder) Build(ctx context.Context, swap domain.UnsignedTx, tipLamports uint64, tipAccount string) (domain.SignedBundle, error) {
	raw, err := base64.StdEncoding.DecodeString(swap.Base64)
	if err != nil {
		return domain.SignedBundle{}, fmt.Errorf("chain.Build: decode swap: %w", err)
	}
	swapTx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return domain.SignedBundle{}, fmt.Errorf("chain.Build: deserialize swap: %w", err)
	}
	if _, err := swapTx.Sign(b.wallet.signer); err != nil {
		return domain.SignedBundle{}, fmt.Errorf("chain.Build: sign swap: %w", err)
	}

	to, err := solana.PublicKeyFromBase58(tipAccount)
	if err != nil {
		return domain.SignedBundle{}, fmt.Errorf("chain.Build: tip account: %w", err)
	}
	hash, err := b.blockhash.LatestBlockhash(ctx)
	if err != nil {
		return domain.SignedBundle{}, fmt.Errorf("chain.Build: %w", err)
	}
	tipTx, err := solana.NewTransaction(
		[]solana.Instruction{
			system.NewTransferInstruction(tipLamports, b.wallet.pub, to).Build(),
		},
		hash,
		solana.TransactionPayer(b.wallet.pub),
	)
	if err != nil {
		return domain.SignedBundle{}, fmt.Errorf("chain.Build: tip tx: %w", err)
	}
	if _, err := tipTx.Sign(b.wallet.signer); err != nil {
		return domain.SignedBundle{}, fmt.Errorf("chain.Build: sign tip: %w", err)
	}

	swapBytes, err := swapTx.MarshalBinary()
	if err != nil {
		return domain.SignedBundle{}, fmt.Errorf("chain.Build: serialize swap: %w", err)
	}
	tipBytes, err := tipTx.MarshalBinary()
	if err != nil {
		return domain.SignedBundle{}, fmt.Errorf("chain.Build: serialize tip: %w", err)
	}

	return domain.SignedBundle{
		Transactions:  [][]byte{swapBytes, tipBytes},
		SwapSignature: swapTx.Signatures[0].String(),
		TipSignature:  tipTx.Signatures[0].String(),
		TipAccount:    tipAccount,
		TipLamports:   tipLamports,
	}, nil
}
