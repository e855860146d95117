package deploy

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Abdullah1738/solana-mpc-deploy/offchain/solana"
)

var ErrInsufficientFunds = errors.New("insufficient fee payer funds")

// Keypair pairs a locally generated ephemeral key with its address. Keypairs
// must be fresh per deployment attempt; reusing one trips account-in-use
// failures at creation, which this tool surfaces rather than works around.
type Keypair struct {
	Pub  solana.Pubkey
	Priv ed25519.PrivateKey
}

// Deployer wires the full pipeline. The Ledger and Signer hold only
// connection configuration, so one Deployer can serve many deployments.
type Deployer struct {
	Ledger   Ledger
	Signer   TxSigner
	FeePayer solana.Pubkey
	Config   Config
	Log      zerolog.Logger
}

type Result struct {
	Program      solana.Pubkey
	ProgramData  solana.Pubkey
	Buffer       solana.Pubkey
	Transactions []TxResult
}

// Deploy plans, batches, and executes a full deployment of payload. On any
// fatal failure the buffer stays funded on-chain; Reclaim is the follow-up.
func (d *Deployer) Deploy(ctx context.Context, payload []byte, buffer, program Keypair) (*Result, error) {
	cfg := d.Config.withDefaults()

	plan, err := BuildPlan(ctx, payload, buffer.Pub, program.Pub, d.FeePayer, d.Ledger.MinimumBalanceForRentExemption, cfg)
	if err != nil {
		return nil, err
	}
	envelopes, err := BatchPlan(plan, cfg.MaxTxBytes)
	if err != nil {
		return nil, err
	}

	if err := d.checkFunds(ctx, plan, envelopes); err != nil {
		return nil, err
	}

	d.Log.Info().
		Int("payload_bytes", plan.PayloadLen).
		Int("writes", plan.WriteCount()).
		Int("transactions", len(envelopes)).
		Str("buffer", plan.Buffer.Base58()).
		Str("program", plan.Program.Base58()).
		Msg("deployment planned")

	signers := map[solana.Pubkey]ed25519.PrivateKey{
		buffer.Pub:  buffer.Priv,
		program.Pub: program.Priv,
	}

	exec := &Executor{Ledger: d.Ledger, Signer: d.Signer, Config: cfg, Log: d.Log}
	results, err := exec.Execute(ctx, envelopes, signers)
	if err != nil {
		return nil, err
	}

	d.Log.Info().Str("program", plan.Program.Base58()).Msg("program deployed")
	return &Result{
		Program:      plan.Program,
		ProgramData:  plan.ProgramData,
		Buffer:       plan.Buffer,
		Transactions: results,
	}, nil
}

// checkFunds fails before the first transaction when the fee payer clearly
// cannot cover rent plus base fees for the whole run.
func (d *Deployer) checkFunds(ctx context.Context, plan *Plan, envelopes []Envelope) error {
	needed := plan.BufferRent + plan.ProgramRent + plan.ProgramDataRent
	for _, env := range envelopes {
		signatures := uint64(1 + len(env.SignerKeys()))
		needed += signatures * LamportsPerSignature
	}

	balance, err := d.Ledger.BalanceLamports(ctx, plan.FeePayer.Base58())
	if err != nil {
		return fmt.Errorf("fee payer balance query: %w", err)
	}
	if balance < needed {
		return fmt.Errorf("%w: have %d lamports, need at least %d", ErrInsufficientFunds, balance, needed)
	}
	return nil
}
