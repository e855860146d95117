// Package deploy orchestrates chunked program deployment through a remote
// signing vault: planning the instruction sequence, batching it into
// transactions, signing via the oracle, and broadcasting in strict order.
package deploy

import (
	"context"
	"errors"
	"fmt"

	"github.com/Abdullah1738/solana-mpc-deploy/offchain/loader"
	"github.com/Abdullah1738/solana-mpc-deploy/offchain/solana"
)

var (
	ErrEmptyPayload = errors.New("empty program payload")
	ErrPlanning     = errors.New("planning failed")
)

// Operation is one ledger instruction of a deployment plan. The set of
// implementations is closed; every variant carries all addresses and scalars
// needed to serialize its instruction, fixed at planning time.
type Operation interface {
	// Kind names the operation for logs and errors.
	Kind() string
	// Instruction serializes the operation.
	Instruction() solana.Instruction
	// Signers lists required signers besides the fee payer.
	Signers() []solana.Pubkey
}

// CreateBuffer allocates the rent-funded buffer account. The new account
// co-signs its own creation.
type CreateBuffer struct {
	Payer    solana.Pubkey
	Buffer   solana.Pubkey
	Lamports uint64
	Space    uint64
}

func (op CreateBuffer) Kind() string { return "create_buffer" }

func (op CreateBuffer) Instruction() solana.Instruction {
	return solana.SystemCreateAccount(op.Payer, op.Buffer, op.Lamports, op.Space, loader.ProgramID)
}

func (op CreateBuffer) Signers() []solana.Pubkey { return []solana.Pubkey{op.Buffer} }

// InitBuffer sets the buffer's write authority.
type InitBuffer struct {
	Buffer    solana.Pubkey
	Authority solana.Pubkey
}

func (op InitBuffer) Kind() string { return "init_buffer" }

func (op InitBuffer) Instruction() solana.Instruction {
	return loader.InitializeBuffer(op.Buffer, op.Authority)
}

func (op InitBuffer) Signers() []solana.Pubkey { return nil }

// WriteChunk stores Bytes into the buffer at Offset. The write authority
// signs; here that is the vault, which is also the fee payer.
type WriteChunk struct {
	Buffer    solana.Pubkey
	Authority solana.Pubkey
	Offset    uint32
	Bytes     []byte
}

func (op WriteChunk) Kind() string { return "write_chunk" }

func (op WriteChunk) Instruction() solana.Instruction {
	return loader.Write(op.Buffer, op.Authority, op.Offset, op.Bytes)
}

func (op WriteChunk) Signers() []solana.Pubkey { return nil }

// CreateProgram allocates the program account.
type CreateProgram struct {
	Payer    solana.Pubkey
	Program  solana.Pubkey
	Lamports uint64
	Space    uint64
}

func (op CreateProgram) Kind() string { return "create_program" }

func (op CreateProgram) Instruction() solana.Instruction {
	return solana.SystemCreateAccount(op.Payer, op.Program, op.Lamports, op.Space, loader.ProgramID)
}

func (op CreateProgram) Signers() []solana.Pubkey { return []solana.Pubkey{op.Program} }

// DeployProgram finalizes: moves the buffer contents into the programdata
// account sized for MaxDataLen and marks the program executable.
type DeployProgram struct {
	Payer       solana.Pubkey
	Program     solana.Pubkey
	ProgramData solana.Pubkey
	Buffer      solana.Pubkey
	Authority   solana.Pubkey
	MaxDataLen  uint64
}

func (op DeployProgram) Kind() string { return "deploy_program" }

func (op DeployProgram) Instruction() solana.Instruction {
	return loader.DeployWithMaxDataLen(op.Payer, op.ProgramData, op.Program, op.Buffer, op.Authority, op.MaxDataLen)
}

func (op DeployProgram) Signers() []solana.Pubkey { return []solana.Pubkey{op.Program} }

// CloseBuffer reclaims a stranded buffer's lamports.
type CloseBuffer struct {
	Buffer    solana.Pubkey
	Recipient solana.Pubkey
	Authority solana.Pubkey
}

func (op CloseBuffer) Kind() string { return "close_buffer" }

func (op CloseBuffer) Instruction() solana.Instruction {
	return loader.Close(op.Buffer, op.Recipient, op.Authority)
}

func (op CloseBuffer) Signers() []solana.Pubkey { return nil }

// Plan is the full ordered operation sequence for one deployment attempt.
// It is immutable after construction; a retry re-signs a single transaction,
// never re-plans.
type Plan struct {
	Ops []Operation

	Buffer      solana.Pubkey
	Program     solana.Pubkey
	ProgramData solana.Pubkey
	FeePayer    solana.Pubkey

	PayloadLen      int
	BufferRent      uint64
	ProgramRent     uint64
	ProgramDataRent uint64
}

// WriteCount returns the number of write operations in the plan.
func (p *Plan) WriteCount() int {
	n := 0
	for _, op := range p.Ops {
		if _, ok := op.(WriteChunk); ok {
			n++
		}
	}
	return n
}

// RentFunc resolves the rent-exempt minimum for an account size, normally
// solanarpc.Client.MinimumBalanceForRentExemption.
type RentFunc func(ctx context.Context, size uint64) (uint64, error)

// BuildPlan walks the payload in chunkSize strides and emits the complete
// operation sequence: create buffer, initialize, writes covering
// [0, len(payload)) with no gaps or overlaps, create program, deploy with
// maxDataLen = len(payload) + headroom. The only side effects are the three
// read-only rent queries.
func BuildPlan(
	ctx context.Context,
	payload []byte,
	buffer, program, feePayer solana.Pubkey,
	rent RentFunc,
	cfg Config,
) (*Plan, error) {
	cfg = cfg.withDefaults()
	if len(payload) == 0 {
		return nil, ErrEmptyPayload
	}
	if rent == nil {
		return nil, fmt.Errorf("%w: nil rent func", ErrPlanning)
	}

	programData, err := loader.ProgramDataAddress(program)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPlanning, err)
	}

	bufferSize := uint64(loader.BufferSize(len(payload)))
	bufferRent, err := rent(ctx, bufferSize)
	if err != nil {
		return nil, fmt.Errorf("%w: buffer rent query: %w", ErrPlanning, err)
	}
	programRent, err := rent(ctx, loader.ProgramAccountSize)
	if err != nil {
		return nil, fmt.Errorf("%w: program rent query: %w", ErrPlanning, err)
	}
	maxDataLen := uint64(len(payload)) + cfg.UpgradeHeadroom
	programDataRent, err := rent(ctx, loader.ProgramDataSize(maxDataLen))
	if err != nil {
		return nil, fmt.Errorf("%w: programdata rent query: %w", ErrPlanning, err)
	}

	ops := make([]Operation, 0, 4+(len(payload)+cfg.ChunkSize-1)/cfg.ChunkSize)
	ops = append(ops, CreateBuffer{
		Payer:    feePayer,
		Buffer:   buffer,
		Lamports: bufferRent,
		Space:    bufferSize,
	})
	ops = append(ops, InitBuffer{
		Buffer:    buffer,
		Authority: feePayer,
	})

	for offset := 0; offset < len(payload); offset += cfg.ChunkSize {
		end := offset + cfg.ChunkSize
		if end > len(payload) {
			end = len(payload)
		}
		chunk := make([]byte, end-offset)
		copy(chunk, payload[offset:end])
		ops = append(ops, WriteChunk{
			Buffer:    buffer,
			Authority: feePayer,
			Offset:    uint32(offset),
			Bytes:     chunk,
		})
	}

	ops = append(ops, CreateProgram{
		Payer:    feePayer,
		Program:  program,
		Lamports: programRent,
		Space:    loader.ProgramAccountSize,
	})
	ops = append(ops, DeployProgram{
		Payer:       feePayer,
		Program:     program,
		ProgramData: programData,
		Buffer:      buffer,
		Authority:   feePayer,
		MaxDataLen:  maxDataLen,
	})

	return &Plan{
		Ops:             ops,
		Buffer:          buffer,
		Program:         program,
		ProgramData:     programData,
		FeePayer:        feePayer,
		PayloadLen:      len(payload),
		BufferRent:      bufferRent,
		ProgramRent:     programRent,
		ProgramDataRent: programDataRent,
	}, nil
}
