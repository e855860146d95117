package deploy

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Abdullah1738/solana-mpc-deploy/offchain/solana"
	"github.com/Abdullah1738/solana-mpc-deploy/offchain/solanarpc"
)

// fakeLedger satisfies Ledger with per-call hooks so tests can script
// broadcast and confirmation outcomes.
type fakeLedger struct {
	sendFn    func(call int, tx []byte) (string, error)
	statusFn  func(sig string) (*solanarpc.SignatureStatus, error)
	accountFn func(pubkey string) (*solanarpc.AccountInfo, error)
	balance   uint64
	sendCalls int
}

func (l *fakeLedger) LatestBlockhash(ctx context.Context) ([32]byte, error) {
	return [32]byte{0xAA}, nil
}

func (l *fakeLedger) SendTransaction(ctx context.Context, tx []byte, skipPreflight bool) (string, error) {
	l.sendCalls++
	if l.sendFn == nil {
		return fmt.Sprintf("sig-%d", l.sendCalls), nil
	}
	return l.sendFn(l.sendCalls, tx)
}

func (l *fakeLedger) SignatureStatus(ctx context.Context, sig string) (*solanarpc.SignatureStatus, error) {
	if l.statusFn == nil {
		return &solanarpc.SignatureStatus{ConfirmationStatus: "confirmed"}, nil
	}
	return l.statusFn(sig)
}

func (l *fakeLedger) AccountInfo(ctx context.Context, pubkey string) (*solanarpc.AccountInfo, error) {
	if l.accountFn == nil {
		return nil, nil
	}
	return l.accountFn(pubkey)
}

func (l *fakeLedger) MinimumBalanceForRentExemption(ctx context.Context, size uint64) (uint64, error) {
	return fakeRent(ctx, size)
}

func (l *fakeLedger) BalanceLamports(ctx context.Context, pubkey string) (uint64, error) {
	return l.balance, nil
}

// fakeSigner records which envelopes were signed, in order, without touching
// any oracle.
type fakeSigner struct {
	signErr error
	signed  []int
}

func (s *fakeSigner) Sign(ctx context.Context, env Envelope, localSigners map[solana.Pubkey]ed25519.PrivateKey) (SignedTx, error) {
	s.signed = append(s.signed, env.Index)
	if s.signErr != nil {
		return SignedTx{}, s.signErr
	}
	return SignedTx{Raw: []byte{byte(env.Index)}, OracleID: fmt.Sprintf("oracle-%d", env.Index)}, nil
}

func testEnvelopes(t *testing.T, payloadLen int) []Envelope {
	t.Helper()
	p := testPlan(t, payloadLen, Config{})
	envelopes, err := BatchPlan(p, DefaultMaxTxBytes)
	if err != nil {
		t.Fatalf("BatchPlan: %v", err)
	}
	return envelopes
}

func TestExecutor_AllConfirmed(t *testing.T) {
	t.Parallel()

	envelopes := testEnvelopes(t, 1900)
	ledger := &fakeLedger{}
	signer := &fakeSigner{}
	exec := &Executor{Ledger: ledger, Signer: signer, Log: zerolog.Nop()}

	results, err := exec.Execute(context.Background(), envelopes, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(results) != len(envelopes) {
		t.Fatalf("results=%d, want %d", len(results), len(envelopes))
	}
	for i, res := range results {
		if res.Index != i {
			t.Fatalf("result %d has index %d", i, res.Index)
		}
		if res.Attempts != 1 {
			t.Fatalf("result %d attempts=%d, want 1", i, res.Attempts)
		}
		if res.Signature == "" || res.OracleID == "" {
			t.Fatalf("result %d missing signature or oracle id: %+v", i, res)
		}
	}
	if !reflect.DeepEqual(signer.signed, []int{0, 1, 2, 3, 4}) {
		t.Fatalf("signed order=%v", signer.signed)
	}
}

func TestExecutor_RetriesExpiredBlockhash(t *testing.T) {
	t.Parallel()

	envelopes := testEnvelopes(t, 100)
	ledger := &fakeLedger{
		sendFn: func(call int, tx []byte) (string, error) {
			return "", errors.New("Blockhash not found")
		},
	}
	signer := &fakeSigner{}
	exec := &Executor{Ledger: ledger, Signer: signer, Log: zerolog.Nop()}

	_, err := exec.Execute(context.Background(), envelopes, nil)
	var depErr *DeploymentError
	if !errors.As(err, &depErr) {
		t.Fatalf("err=%v, want DeploymentError", err)
	}
	if depErr.Index != 0 {
		t.Fatalf("index=%d, want 0", depErr.Index)
	}
	// Every attempt re-signs with a fresh blockhash, never re-broadcasts the
	// stale bytes.
	if ledger.sendCalls != DefaultMaxRetries {
		t.Fatalf("sends=%d, want %d", ledger.sendCalls, DefaultMaxRetries)
	}
	if len(signer.signed) != DefaultMaxRetries {
		t.Fatalf("signings=%d, want %d", len(signer.signed), DefaultMaxRetries)
	}
}

func TestExecutor_RecoversAfterOneExpiry(t *testing.T) {
	t.Parallel()

	envelopes := testEnvelopes(t, 100)[:1]
	ledger := &fakeLedger{
		sendFn: func(call int, tx []byte) (string, error) {
			if call == 1 {
				return "", fmt.Errorf("send: %w", ErrBlockhashExpired)
			}
			return "sig-ok", nil
		},
	}
	exec := &Executor{Ledger: ledger, Signer: &fakeSigner{}, Log: zerolog.Nop()}

	results, err := exec.Execute(context.Background(), envelopes, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if results[0].Attempts != 2 {
		t.Fatalf("attempts=%d, want 2", results[0].Attempts)
	}
	if results[0].Signature != "sig-ok" {
		t.Fatalf("signature=%q", results[0].Signature)
	}
}

func TestExecutor_FatalFailureStopsRun(t *testing.T) {
	t.Parallel()

	envelopes := testEnvelopes(t, 1900)
	simLogs := []string{"Program log: panicked", "Program failed to complete"}
	ledger := &fakeLedger{
		sendFn: func(call int, tx []byte) (string, error) {
			if call == 2 {
				return "", &solanarpc.RPCError{Code: -32002, Message: "Transaction simulation failed", Logs: simLogs}
			}
			return fmt.Sprintf("sig-%d", call), nil
		},
	}
	signer := &fakeSigner{}
	exec := &Executor{Ledger: ledger, Signer: signer, Log: zerolog.Nop()}

	results, err := exec.Execute(context.Background(), envelopes, nil)
	var depErr *DeploymentError
	if !errors.As(err, &depErr) {
		t.Fatalf("err=%v, want DeploymentError", err)
	}
	if depErr.Index != 1 {
		t.Fatalf("index=%d, want 1", depErr.Index)
	}
	if !reflect.DeepEqual(depErr.Logs, simLogs) {
		t.Fatalf("logs=%v", depErr.Logs)
	}
	if len(results) != 1 {
		t.Fatalf("results=%d, want 1 confirmed before failure", len(results))
	}
	// No envelope past the failed one is ever signed.
	if !reflect.DeepEqual(signer.signed, []int{0, 1}) {
		t.Fatalf("signed=%v", signer.signed)
	}
}

func TestExecutor_SignFailureIsFatal(t *testing.T) {
	t.Parallel()

	envelopes := testEnvelopes(t, 100)[:1]
	signErr := errors.New("vault aborted request")
	ledger := &fakeLedger{}
	exec := &Executor{Ledger: ledger, Signer: &fakeSigner{signErr: signErr}, Log: zerolog.Nop()}

	_, err := exec.Execute(context.Background(), envelopes, nil)
	var depErr *DeploymentError
	if !errors.As(err, &depErr) {
		t.Fatalf("err=%v, want DeploymentError", err)
	}
	if !errors.Is(err, signErr) {
		t.Fatalf("cause lost: %v", err)
	}
	if ledger.sendCalls != 0 {
		t.Fatalf("sends=%d, want 0", ledger.sendCalls)
	}
}

func TestExecutor_UnconfirmedWindowRetries(t *testing.T) {
	t.Parallel()

	envelopes := testEnvelopes(t, 100)[:1]
	ledger := &fakeLedger{
		statusFn: func(sig string) (*solanarpc.SignatureStatus, error) {
			return nil, nil
		},
	}
	signer := &fakeSigner{}
	exec := &Executor{
		Ledger: ledger,
		Signer: signer,
		Config: Config{MaxRetries: 2, ConfirmTimeout: time.Nanosecond},
		Log:    zerolog.Nop(),
	}

	_, err := exec.Execute(context.Background(), envelopes, nil)
	var depErr *DeploymentError
	if !errors.As(err, &depErr) {
		t.Fatalf("err=%v, want DeploymentError", err)
	}
	if !errors.Is(err, ErrBlockhashExpired) {
		t.Fatalf("err=%v, want ErrBlockhashExpired cause", err)
	}
	if len(signer.signed) != 2 {
		t.Fatalf("signings=%d, want 2", len(signer.signed))
	}
}

func TestExecutor_OnChainFailureIsFatal(t *testing.T) {
	t.Parallel()

	envelopes := testEnvelopes(t, 100)[:1]
	ledger := &fakeLedger{
		statusFn: func(sig string) (*solanarpc.SignatureStatus, error) {
			return &solanarpc.SignatureStatus{
				ConfirmationStatus: "confirmed",
				Err:                map[string]any{"InstructionError": []any{0, "Custom"}},
			}, nil
		},
	}
	signer := &fakeSigner{}
	exec := &Executor{Ledger: ledger, Signer: signer, Log: zerolog.Nop()}

	_, err := exec.Execute(context.Background(), envelopes, nil)
	var depErr *DeploymentError
	if !errors.As(err, &depErr) {
		t.Fatalf("err=%v, want DeploymentError", err)
	}
	if len(signer.signed) != 1 {
		t.Fatalf("signings=%d, want 1 (on-chain failure must not retry)", len(signer.signed))
	}
}
