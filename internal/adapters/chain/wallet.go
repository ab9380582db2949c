// Package chain adapta el ledger: wallet de sesión, lectura de saldos,
// firma de bundles y estado de firmas.
package chain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
)

// ErrInvalidKey indica que la clave privada no es un keypair ed25519 en base58.
var ErrInvalidKey = errors.New("chain: invalid private key")

// Wallet es el keypair de la sesión. Solo vive en memoria.
type Wallet struct {
	key solana.PrivateKey
	pub solana.PublicKey
}

// LoadWallet decodifica una clave privada base58 de 64 bytes (formato de Phantom / solana-keygen).
func LoadWallet(base58Key string) (*Wallet, error) {
	key, err := solana.PrivateKeyFromBase58(strings.TrimSpace(base58Key))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	if len(key) != 64 {
		return nil, fmt.Errorf("%w: expected 64 bytes, got %d", ErrInvalidKey, len(key))
	}
	return &Wallet{key: key, pub: key.PublicKey()}, nil
}

// PublicKey devuelve la clave pública del wallet.
func (w *Wallet) PublicKey() solana.PublicKey {
	return w.pub
}

// Address devuelve la dirección base58 del wallet.
func (w *Wallet) Address() string {
	return w.pub.String()
}

// signer es el getter que espera Transaction.Sign: solo conoce la clave de sesión.
func (w *Wallet) signer(key solana.PublicKey) *solana.PrivateKey {
	if key.Equals(w.pub) {
		return &w.key
	}
	return nil
}
