package jupiter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/alejandrodnm/pulsesurfer/internal/domain"
	"github.com/gagliardetto/solana-go"
)

// referralProgram es el programa de referidos de Jupiter que deriva las cuentas de fee.
var referralProgram = solana.MustPublicKeyFromBase58("REFER4ZgmyYx9c6He5XfaTMiGfdLwRnkV4RPp9t9iF3")

type quoteResponse struct {
	InputMint      string `json:"inputMint"`
	OutputMint     string `json:"outputMint"`
	InAmount       string `json:"inAmount"`
	OutAmount      string `json:"outAmount"`
	SlippageBps    int    `json:"slippageBps"`
	PriceImpactPct string `json:"priceImpactPct"`
}

type swapRequest struct {
	QuoteResponse           json.RawMessage `json:"quoteResponse"`
	UserPublicKey           string          `json:"userPublicKey"`
	WrapAndUnwrapSol        bool            `json:"wrapAndUnwrapSol"`
	DynamicComputeUnitLimit bool            `json:"dynamicComputeUnitLimit"`
	FeeAccount              string          `json:"feeAccount,omitempty"`
}

type swapResponse struct {
	SwapTransaction      string `json:"swapTransaction"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

// Quote pide una ruta para gastar req.Amount unidades mínimas de req.Input.
func (c *Client) Quote(ctx context.Context, req domain.QuoteRequest) (domain.Quote, error) {
	if req.Amount == 0 {
		return domain.Quote{}, fmt.Errorf("jupiter.Quote: zero amount")
	}
	slippage := req.SlippageBps
	if slippage <= 0 {
		slippage = c.opts.SlippageBps
	}

	params := url.Values{}
	params.Set("inputMint", req.Input.Mint)
	params.Set("outputMint", req.Output.Mint)
	params.Set("amount", strconv.FormatUint(req.Amount, 10))
	params.Set("slippageBps", strconv.Itoa(slippage))
	params.Set("autoSlippage", "true")
	params.Set("maxAutoSlippageBps", strconv.Itoa(c.opts.MaxAutoSlippageBps))
	if fee := c.opts.BaseFeeBps + req.FeeBps; c.opts.ReferralAccount != "" && fee > 0 {
		params.Set("platformFeeBps", strconv.Itoa(fee))
	}

	var raw json.RawMessage
	if err := c.get(ctx, c.request, c.opts.QuoteBase+"/quote?"+params.Encode(), &raw); err != nil {
		return domain.Quote{}, fmt.Errorf("jupiter.Quote: %w", err)
	}

	var qr quoteResponse
	if err := json.Unmarshal(raw, &qr); err != nil {
		return domain.Quote{}, fmt.Errorf("jupiter.Quote: decode: %w", err)
	}
	in, err := strconv.ParseUint(qr.InAmount, 10, 64)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("jupiter.Quote: inAmount %q: %w", qr.InAmount, err)
	}
	out, err := strconv.ParseUint(qr.OutAmount, 10, 64)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("jupiter.Quote: outAmount %q: %w", qr.OutAmount, err)
	}
	impact, _ := strconv.ParseFloat(qr.PriceImpactPct, 64)

	return domain.Quote{
		InputMint:      qr.InputMint,
		OutputMint:     qr.OutputMint,
		InAmount:       in,
		OutAmount:      out,
		SlippageBps:    qr.SlippageBps,
		PriceImpactPct: impact,
		Raw:            raw,
	}, nil
}

// BuildSwap pide al router la transacción de swap sin firmar para q.
// El fee de plataforma se cobra en el mint de entrada.
func (c *Client) BuildSwap(ctx context.Context, q domain.Quote) (domain.UnsignedTx, error) {
	if c.opts.UserPublicKey == "" {
		return domain.UnsignedTx{}, fmt.Errorf("jupiter.BuildSwap: no user public key configured")
	}
	body := swapRequest{
		QuoteResponse:           q.Raw,
		UserPublicKey:           c.opts.UserPublicKey,
		WrapAndUnwrapSol:        true,
		DynamicComputeUnitLimit: true,
	}
	if c.opts.ReferralAccount != "" {
		fee, err := FeeAccount(c.opts.ReferralAccount, q.InputMint)
		if err != nil {
			return domain.UnsignedTx{}, fmt.Errorf("jupiter.BuildSwap: %w", err)
		}
		body.FeeAccount = fee
	}

	var resp swapResponse
	if err := c.post(ctx, c.request, c.opts.QuoteBase+"/swap", body, &resp); err != nil {
		return domain.UnsignedTx{}, fmt.Errorf("jupiter.BuildSwap: %w", err)
	}
	if resp.SwapTransaction == "" {
		return domain.UnsignedTx{}, fmt.Errorf("jupiter.BuildSwap: empty swap transaction")
	}
	return domain.UnsignedTx{
		Base64:               resp.SwapTransaction,
		LastValidBlockHeight: resp.LastValidBlockHeight,
	}, nil
}

// FeeAccount deriva la cuenta de fee del referido para mint: PDA("referral_ata", referral, mint).
func FeeAccount(referral, mint string) (string, error) {
	ref, err := solana.PublicKeyFromBase58(referral)
	if err != nil {
		return "", fmt.Errorf("referral account: %w", err)
	}
	m, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return "", fmt.Errorf("fee mint: %w", err)
	}
	pda, _, err := solana.FindProgramAddress([][]byte{
		[]byte("referral_ata"),
		ref.Bytes(),
		m.Bytes(),
	}, referralProgram)
	if err != nil {
		return "", fmt.Errorf("derive fee account: %w", err)
	}
	return pda.String(), nil
}
