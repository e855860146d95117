package deploy

import (
	"fmt"

	"github.com/Abdullah1738/solana-mpc-deploy/offchain/solana"
)

// Envelope is one unsigned transaction's worth of operations. The operation
// content is fixed once batched; only the blockhash changes across signing
// attempts.
type Envelope struct {
	Index int
	Ops   []Operation
}

// Kinds returns the operation kinds for logs.
func (e Envelope) Kinds() []string {
	out := make([]string, 0, len(e.Ops))
	for _, op := range e.Ops {
		out = append(out, op.Kind())
	}
	return out
}

// Instructions serializes the envelope's operations in order.
func (e Envelope) Instructions() []solana.Instruction {
	out := make([]solana.Instruction, 0, len(e.Ops))
	for _, op := range e.Ops {
		out = append(out, op.Instruction())
	}
	return out
}

// SignerKeys returns the ephemeral signers the envelope requires besides the
// fee payer, deduplicated in first-use order.
func (e Envelope) SignerKeys() []solana.Pubkey {
	seen := make(map[solana.Pubkey]bool, 2)
	out := make([]solana.Pubkey, 0, 2)
	for _, op := range e.Ops {
		for _, pk := range op.Signers() {
			if seen[pk] {
				continue
			}
			seen[pk] = true
			out = append(out, pk)
		}
	}
	return out
}

// BatchPlan greedily packs consecutive operations into envelopes while the
// serialized transaction estimate stays under maxTxBytes. Write chunks always
// travel alone; chunk size is tuned so nothing else fits alongside anyway,
// and keeping them 1:1 makes a retried write re-sign exactly one chunk.
// Operation order is never changed. The result is deterministic for a given
// plan and ceiling.
func BatchPlan(p *Plan, maxTxBytes int) ([]Envelope, error) {
	if p == nil || len(p.Ops) == 0 {
		return nil, fmt.Errorf("%w: empty plan", ErrPlanning)
	}
	if maxTxBytes <= 0 {
		maxTxBytes = DefaultMaxTxBytes
	}

	var envelopes []Envelope
	var current []Operation

	flush := func() {
		if len(current) == 0 {
			return
		}
		envelopes = append(envelopes, Envelope{Index: len(envelopes), Ops: current})
		current = nil
	}

	for _, op := range p.Ops {
		if _, isWrite := op.(WriteChunk); isWrite {
			flush()
			size, err := estimateTxSize(p.FeePayer, []Operation{op})
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrPlanning, err)
			}
			if size > maxTxBytes {
				return nil, fmt.Errorf("%w: write chunk at op %s exceeds tx ceiling (%d > %d)", ErrPlanning, op.Kind(), size, maxTxBytes)
			}
			envelopes = append(envelopes, Envelope{Index: len(envelopes), Ops: []Operation{op}})
			continue
		}

		candidate := append(append([]Operation{}, current...), op)
		size, err := estimateTxSize(p.FeePayer, candidate)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrPlanning, err)
		}
		if len(current) > 0 && size > maxTxBytes {
			flush()
			candidate = []Operation{op}
			size, err = estimateTxSize(p.FeePayer, candidate)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrPlanning, err)
			}
		}
		if size > maxTxBytes {
			return nil, fmt.Errorf("%w: operation %s alone exceeds tx ceiling (%d > %d)", ErrPlanning, op.Kind(), size, maxTxBytes)
		}
		current = candidate
	}
	flush()

	return envelopes, nil
}

// estimateTxSize compiles the operations against a placeholder blockhash and
// adds the signature section. Account ordering and shortvec lengths match the
// final envelope exactly, so the estimate equals the real size.
func estimateTxSize(feePayer solana.Pubkey, ops []Operation) (int, error) {
	instrs := make([]solana.Instruction, 0, len(ops))
	for _, op := range ops {
		instrs = append(instrs, op.Instruction())
	}
	msg, err := solana.CompileLegacyMessage([32]byte{}, feePayer, instrs)
	if err != nil {
		return 0, err
	}
	return 1 + 64*len(msg.SignerKeys()) + len(msg.Bytes), nil
}
