package deploy

import (
	"context"
	"errors"
	"fmt"

	"github.com/Abdullah1738/solana-mpc-deploy/offchain/solana"
)

var ErrBufferNotFound = errors.New("buffer account not found")

// Reclaim closes a stranded buffer and returns its lamports to recipient.
// The transaction flows through the same signing and retry pipeline as a
// deployment, with the retry budget cut to a single re-sign. Running it again
// after success fails ErrBufferNotFound instead of double-spending, since the
// closed account no longer exists.
func (d *Deployer) Reclaim(ctx context.Context, buffer, recipient solana.Pubkey) (*TxResult, error) {
	cfg := d.Config.withDefaults()
	cfg.MaxRetries = 2

	info, err := d.Ledger.AccountInfo(ctx, buffer.Base58())
	if err != nil {
		return nil, fmt.Errorf("buffer lookup: %w", err)
	}
	if info == nil {
		return nil, fmt.Errorf("%w: %s", ErrBufferNotFound, buffer.Base58())
	}

	d.Log.Info().
		Str("buffer", buffer.Base58()).
		Uint64("lamports", info.Lamports).
		Str("recipient", recipient.Base58()).
		Msg("reclaiming buffer")

	env := Envelope{
		Index: 0,
		Ops: []Operation{CloseBuffer{
			Buffer:    buffer,
			Recipient: recipient,
			Authority: d.FeePayer,
		}},
	}

	exec := &Executor{Ledger: d.Ledger, Signer: d.Signer, Config: cfg, Log: d.Log}
	results, err := exec.Execute(ctx, []Envelope{env}, nil)
	if err != nil {
		return nil, err
	}

	d.Log.Info().Str("signature", results[0].Signature).Msg("buffer closed")
	return &results[0], nil
}
