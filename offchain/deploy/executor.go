package deploy

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Abdullah1738/solana-mpc-deploy/offchain/solana"
	"github.com/Abdullah1738/solana-mpc-deploy/offchain/solanarpc"
)

// ErrBlockhashExpired marks the one recoverable failure: the transaction's
// blockhash lapsed before the network accepted it. Everything else aborts the
// run.
var ErrBlockhashExpired = errors.New("blockhash expired")

// Status tracks one transaction through the pipeline.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSigning   Status = "signing"
	StatusSigned    Status = "signed"
	StatusBroadcast Status = "broadcast"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// DeploymentError wraps any fatal executor failure with the offending
// transaction's position and whatever simulation logs the node attached.
type DeploymentError struct {
	Index int
	Logs  []string
	cause error
}

func (e *DeploymentError) Error() string {
	if len(e.Logs) > 0 {
		return fmt.Sprintf("deployment failed at tx %d: %v\nsimulation logs:\n  %s",
			e.Index, e.cause, strings.Join(e.Logs, "\n  "))
	}
	return fmt.Sprintf("deployment failed at tx %d: %v", e.Index, e.cause)
}

func (e *DeploymentError) Unwrap() error { return e.cause }

// TxResult records one confirmed transaction.
type TxResult struct {
	Index     int
	Signature string
	OracleID  string
	Attempts  int
}

// Executor runs envelopes strictly in order. Later operations depend on all
// earlier writes having landed in the same buffer, so there is no parallel
// submission path. Expired-blockhash failures re-sign only the failed
// envelope with a fresh blockhash, up to MaxRetries attempts; any other
// failure stops the run before the next envelope is touched.
type Executor struct {
	Ledger Ledger
	Signer TxSigner
	Config Config
	Log    zerolog.Logger
}

func (e *Executor) Execute(ctx context.Context, envelopes []Envelope, localSigners map[solana.Pubkey]ed25519.PrivateKey) ([]TxResult, error) {
	cfg := e.Config.withDefaults()
	results := make([]TxResult, 0, len(envelopes))

	for _, env := range envelopes {
		res, err := e.executeOne(ctx, env, localSigners, cfg)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (e *Executor) executeOne(ctx context.Context, env Envelope, localSigners map[solana.Pubkey]ed25519.PrivateKey, cfg Config) (TxResult, error) {
	log := e.Log.With().Int("tx", env.Index).Strs("ops", env.Kinds()).Logger()

	var lastExpiry error
	for attempt := 1; attempt <= cfg.MaxRetries; attempt++ {
		log.Info().Int("attempt", attempt).Str("status", string(StatusSigning)).Msg("signing transaction")

		signed, err := e.Signer.Sign(ctx, env, localSigners)
		if err != nil {
			return TxResult{}, &DeploymentError{Index: env.Index, cause: err}
		}
		log.Debug().Str("oracle_id", signed.OracleID).Str("status", string(StatusSigned)).Msg("oracle signature merged")

		sig, err := e.Ledger.SendTransaction(ctx, signed.Raw, cfg.SkipPreflight)
		if err != nil {
			if isBlockhashExpired(err) {
				lastExpiry = err
				log.Warn().Int("attempt", attempt).Err(err).Msg("blockhash expired at broadcast, re-signing")
				continue
			}
			return TxResult{}, &DeploymentError{Index: env.Index, Logs: simulationLogs(err), cause: err}
		}
		log.Info().Str("signature", sig).Str("status", string(StatusBroadcast)).Msg("transaction broadcast")

		confirmed, err := e.awaitConfirmation(ctx, sig, cfg.ConfirmTimeout)
		if err != nil {
			return TxResult{}, &DeploymentError{Index: env.Index, Logs: simulationLogs(err), cause: err}
		}
		if !confirmed {
			// The signature never landed before its blockhash lapsed; safe to
			// re-sign since the old transaction can no longer execute.
			lastExpiry = fmt.Errorf("%w: %s unconfirmed after %s", ErrBlockhashExpired, sig, cfg.ConfirmTimeout)
			log.Warn().Int("attempt", attempt).Str("signature", sig).Msg("confirmation window elapsed, re-signing")
			continue
		}

		log.Info().Str("signature", sig).Str("status", string(StatusConfirmed)).Msg("transaction confirmed")
		return TxResult{
			Index:     env.Index,
			Signature: sig,
			OracleID:  signed.OracleID,
			Attempts:  attempt,
		}, nil
	}

	if lastExpiry == nil {
		lastExpiry = ErrBlockhashExpired
	}
	return TxResult{}, &DeploymentError{
		Index: env.Index,
		cause: fmt.Errorf("retries exhausted after %d attempts: %w", cfg.MaxRetries, lastExpiry),
	}
}

// awaitConfirmation polls signature status until the cluster reports the
// transaction confirmed or executed-with-error. Returns false when the window
// elapses with the signature still unknown or unconfirmed.
func (e *Executor) awaitConfirmation(ctx context.Context, sig string, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		st, err := e.Ledger.SignatureStatus(ctx, sig)
		if err != nil {
			return false, fmt.Errorf("signature status: %w", err)
		}
		if st != nil {
			if st.Err != nil {
				return false, fmt.Errorf("transaction %s failed on-chain: %v", sig, st.Err)
			}
			if st.ConfirmationStatus == "confirmed" || st.ConfirmationStatus == "finalized" {
				return true, nil
			}
		}
		if time.Now().After(deadline) {
			return false, nil
		}

		t := time.NewTimer(2 * time.Second)
		select {
		case <-ctx.Done():
			t.Stop()
			return false, ctx.Err()
		case <-t.C:
		}
	}
}

// isBlockhashExpired matches the node's stale-replay-guard signals. Fakes may
// wrap ErrBlockhashExpired directly.
func isBlockhashExpired(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrBlockhashExpired) {
		return true
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "blockhash not found") {
		return true
	}
	return strings.Contains(msg, "block height exceeded")
}

func simulationLogs(err error) []string {
	var rpcErr *solanarpc.RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr.Logs
	}
	return nil
}
