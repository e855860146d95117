// Package loader encodes instructions for the upgradeable BPF loader. The
// bincode layout (u32 little-endian enum tag, u64 little-endian Vec length
// prefix) is kept here so the wire format can be tested on its own.
package loader

import (
	"encoding/binary"
	"errors"

	"github.com/Abdullah1738/solana-mpc-deploy/offchain/solana"
)

var ProgramID = solana.MustParsePubkey("BPFLoaderUpgradeab1e11111111111111111111111")

// Account sizes fixed by the loader's state layout.
const (
	// BufferMetadataSize is the header preceding program bytes in a buffer
	// account: 4-byte state tag + optional authority (1 + 32).
	BufferMetadataSize = 37

	// ProgramAccountSize holds the state tag plus the programdata address.
	ProgramAccountSize = 36

	// ProgramDataMetadataSize is the header of the programdata account:
	// state tag + slot + optional upgrade authority.
	ProgramDataMetadataSize = 45
)

// Instruction tags, in the loader's enum order.
const (
	tagInitializeBuffer      = 0
	tagWrite                 = 1
	tagDeployWithMaxDataLen  = 2
	tagClose                 = 5
)

var ErrSeedDerivation = errors.New("programdata address derivation failed")

// BufferSize returns the full byte size of a buffer account holding
// programLen bytes of program data.
func BufferSize(programLen int) int {
	return BufferMetadataSize + programLen
}

// ProgramDataSize returns the full byte size of a programdata account able to
// hold maxDataLen bytes of program data.
func ProgramDataSize(maxDataLen uint64) uint64 {
	return ProgramDataMetadataSize + maxDataLen
}

// ProgramDataAddress derives the programdata account for a program.
func ProgramDataAddress(program solana.Pubkey) (solana.Pubkey, error) {
	pda, _, err := solana.FindProgramAddress([][]byte{program[:]}, ProgramID)
	if err != nil {
		return solana.Pubkey{}, ErrSeedDerivation
	}
	return pda, nil
}

func InitializeBuffer(buffer, authority solana.Pubkey) solana.Instruction {
	var data [4]byte
	binary.LittleEndian.PutUint32(data[:], tagInitializeBuffer)
	return solana.Instruction{
		ProgramID: ProgramID,
		Accounts: []solana.AccountMeta{
			{Pubkey: buffer, IsSigner: false, IsWritable: true},
			{Pubkey: authority, IsSigner: false, IsWritable: false},
		},
		Data: data[:],
	}
}

// Write appends bytes into the buffer at offset. The bytes vector carries a
// u64 length prefix per bincode; the offset is a bare u32. No padding between
// the two fields.
func Write(buffer, authority solana.Pubkey, offset uint32, bytes []byte) solana.Instruction {
	data := make([]byte, 4+4+8+len(bytes))
	binary.LittleEndian.PutUint32(data[0:4], tagWrite)
	binary.LittleEndian.PutUint32(data[4:8], offset)
	binary.LittleEndian.PutUint64(data[8:16], uint64(len(bytes)))
	copy(data[16:], bytes)
	return solana.Instruction{
		ProgramID: ProgramID,
		Accounts: []solana.AccountMeta{
			{Pubkey: buffer, IsSigner: false, IsWritable: true},
			{Pubkey: authority, IsSigner: true, IsWritable: false},
		},
		Data: data,
	}
}

// WriteOverhead is the serialized size of a Write instruction minus its chunk
// bytes: the instruction data framing only, excluding message-level overhead.
const WriteOverhead = 4 + 4 + 8

func DeployWithMaxDataLen(payer, programData, program, buffer, authority solana.Pubkey, maxDataLen uint64) solana.Instruction {
	data := make([]byte, 4+8)
	binary.LittleEndian.PutUint32(data[0:4], tagDeployWithMaxDataLen)
	binary.LittleEndian.PutUint64(data[4:12], maxDataLen)
	return solana.Instruction{
		ProgramID: ProgramID,
		Accounts: []solana.AccountMeta{
			{Pubkey: payer, IsSigner: true, IsWritable: true},
			{Pubkey: programData, IsSigner: false, IsWritable: true},
			{Pubkey: program, IsSigner: false, IsWritable: true},
			{Pubkey: buffer, IsSigner: false, IsWritable: true},
			{Pubkey: solana.SysvarRentID, IsSigner: false, IsWritable: false},
			{Pubkey: solana.SysvarClockID, IsSigner: false, IsWritable: false},
			{Pubkey: solana.SystemProgramID, IsSigner: false, IsWritable: false},
			{Pubkey: authority, IsSigner: true, IsWritable: false},
		},
		Data: data,
	}
}

// Close drains account's lamports to recipient. Works on buffers that never
// reached deployment; authority must match the one set at initialization.
func Close(account, recipient, authority solana.Pubkey) solana.Instruction {
	var data [4]byte
	binary.LittleEndian.PutUint32(data[:], tagClose)
	return solana.Instruction{
		ProgramID: ProgramID,
		Accounts: []solana.AccountMeta{
			{Pubkey: account, IsSigner: false, IsWritable: true},
			{Pubkey: recipient, IsSigner: false, IsWritable: true},
			{Pubkey: authority, IsSigner: true, IsWritable: false},
		},
		Data: data[:],
	}
}
