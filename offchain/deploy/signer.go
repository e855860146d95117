package deploy

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/Abdullah1738/solana-mpc-deploy/offchain/fordefi"
	"github.com/Abdullah1738/solana-mpc-deploy/offchain/solana"
	"github.com/Abdullah1738/solana-mpc-deploy/offchain/solanarpc"
)

// Ledger is the RPC surface the deploy pipeline consumes. Satisfied by
// *solanarpc.Client; narrowed so tests can substitute fakes.
type Ledger interface {
	LatestBlockhash(ctx context.Context) ([32]byte, error)
	SendTransaction(ctx context.Context, tx []byte, skipPreflight bool) (string, error)
	SignatureStatus(ctx context.Context, signature string) (*solanarpc.SignatureStatus, error)
	AccountInfo(ctx context.Context, pubkey string) (*solanarpc.AccountInfo, error)
	MinimumBalanceForRentExemption(ctx context.Context, size uint64) (uint64, error)
	BalanceLamports(ctx context.Context, pubkey string) (uint64, error)
}

// Oracle is the remote signing surface. Satisfied by *fordefi.Client.
type Oracle interface {
	CreateTransaction(ctx context.Context, req fordefi.SignRequest) (fordefi.Transaction, error)
	WaitForSignature(ctx context.Context, id string, interval, timeout time.Duration) (fordefi.Transaction, error)
}

// TxSigner turns an envelope into broadcastable bytes. The production
// implementation is OracleSigner.
type TxSigner interface {
	Sign(ctx context.Context, env Envelope, localSigners map[solana.Pubkey]ed25519.PrivateKey) (SignedTx, error)
}

// SignedTx is a fully signed raw transaction plus the oracle's id for it.
type SignedTx struct {
	Raw      []byte
	OracleID string
}

// OracleSigner builds an unsigned transaction with a fresh blockhash,
// co-signs locally with the envelope's ephemeral keypairs, submits the
// message to the vault with an explicit custom fee, polls to completion, and
// merges the vault's fee-payer signature into slot order. It never
// broadcasts; the executor decides when bytes hit the network.
type OracleSigner struct {
	Ledger   Ledger
	Oracle   Oracle
	FeePayer solana.Pubkey
	Config   Config
}

func (s *OracleSigner) Sign(ctx context.Context, env Envelope, localSigners map[solana.Pubkey]ed25519.PrivateKey) (SignedTx, error) {
	cfg := s.Config.withDefaults()

	// A blockhash is fetched per invocation and never reused across attempts:
	// the oracle round-trip alone can consume most of its validity window.
	blockhash, err := s.Ledger.LatestBlockhash(ctx)
	if err != nil {
		return SignedTx{}, fmt.Errorf("fetch blockhash: %w", err)
	}

	var instrs []solana.Instruction
	if cfg.PriorityMicroLamports > 0 {
		instrs = append(instrs, solana.ComputeBudgetSetComputeUnitPrice(cfg.PriorityMicroLamports))
	}
	instrs = append(instrs, env.Instructions()...)

	msg, err := solana.CompileLegacyMessage(blockhash, s.FeePayer, instrs)
	if err != nil {
		return SignedTx{}, fmt.Errorf("compile message: %w", err)
	}

	localSigs := solana.SignMessage(msg, localSigners)
	partials := make([]fordefi.PartialSignature, 0, len(msg.SignerKeys()))
	for _, pk := range msg.SignerKeys() {
		if pk == s.FeePayer {
			partials = append(partials, fordefi.PartialSignature{Data: nil})
			continue
		}
		sig, ok := localSigs[pk]
		if !ok {
			return SignedTx{}, fmt.Errorf("tx %d: signer %s: %w", env.Index, pk.Base58(), solana.ErrMissingSigner)
		}
		data := base64.StdEncoding.EncodeToString(sig[:])
		partials = append(partials, fordefi.PartialSignature{Data: &data})
	}

	created, err := s.Oracle.CreateTransaction(ctx, fordefi.SignRequest{
		VaultID:      cfg.VaultID,
		Chain:        cfg.Chain,
		Message:      msg.Bytes,
		Signatures:   partials,
		FeeUnitPrice: cfg.FeeUnitPrice,
	})
	if err != nil {
		return SignedTx{}, fmt.Errorf("submit signing request: %w", err)
	}

	final, err := s.Oracle.WaitForSignature(ctx, created.ID, cfg.PollInterval, cfg.PollTimeout)
	if err != nil {
		return SignedTx{}, fmt.Errorf("await signature %s: %w", created.ID, err)
	}

	feeSig, err := extractFeePayerSignature(final, msg, s.FeePayer)
	if err != nil {
		return SignedTx{}, err
	}
	localSigs[s.FeePayer] = feeSig
	raw, err := solana.AssembleTransaction(msg, localSigs)
	if err != nil {
		return SignedTx{}, fmt.Errorf("%w: assemble: %w", fordefi.ErrProtocol, err)
	}
	return SignedTx{Raw: raw, OracleID: final.ID}, nil
}

// extractFeePayerSignature prefers the oracle's assembled raw transaction and
// falls back to its discrete signature list, indexed by signer slot.
func extractFeePayerSignature(tx fordefi.Transaction, msg solana.CompiledMessage, feePayer solana.Pubkey) ([64]byte, error) {
	if tx.RawTransaction != "" {
		raw, err := tx.RawTransactionBytes()
		if err != nil {
			return [64]byte{}, err
		}
		parsed, err := solana.ParseLegacyTransaction(raw)
		if err != nil {
			return [64]byte{}, fmt.Errorf("%w: parse raw_transaction: %v", fordefi.ErrProtocol, err)
		}
		sig, ok := parsed.SignatureBySigner(feePayer)
		if !ok || sig == ([64]byte{}) {
			return [64]byte{}, fmt.Errorf("%w: raw_transaction missing fee payer signature", fordefi.ErrProtocol)
		}
		return sig, nil
	}

	for i, pk := range msg.SignerKeys() {
		if pk != feePayer {
			continue
		}
		if i >= len(tx.Signatures) {
			break
		}
		raw, err := base64.StdEncoding.DecodeString(tx.Signatures[i].Data)
		if err != nil || len(raw) != 64 {
			return [64]byte{}, fmt.Errorf("%w: malformed signature entry %d", fordefi.ErrProtocol, i)
		}
		var sig [64]byte
		copy(sig[:], raw)
		return sig, nil
	}
	return [64]byte{}, fmt.Errorf("%w: response carries no usable fee payer signature", fordefi.ErrProtocol)
}
