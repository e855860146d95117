package solana

import (
	"encoding/binary"
)

var (
	SystemProgramID        = MustParsePubkey("11111111111111111111111111111111")
	ComputeBudgetProgramID = MustParsePubkey("ComputeBudget111111111111111111111111111111")
	SysvarRentID           = MustParsePubkey("SysvarRent111111111111111111111111111111111")
	SysvarClockID          = MustParsePubkey("SysvarC1ock11111111111111111111111111111111")
)

func ComputeBudgetSetComputeUnitLimit(limit uint32) Instruction {
	var data [5]byte
	data[0] = 2
	binary.LittleEndian.PutUint32(data[1:], limit)
	return Instruction{
		ProgramID: ComputeBudgetProgramID,
		Accounts:  nil,
		Data:      data[:],
	}
}

func ComputeBudgetSetComputeUnitPrice(microLamports uint64) Instruction {
	var data [9]byte
	data[0] = 3
	binary.LittleEndian.PutUint64(data[1:], microLamports)
	return Instruction{
		ProgramID: ComputeBudgetProgramID,
		Accounts:  nil,
		Data:      data[:],
	}
}

// SystemCreateAccount funds and allocates a new account owned by owner. The
// new account must co-sign its own creation.
func SystemCreateAccount(payer, newAccount Pubkey, lamports, space uint64, owner Pubkey) Instruction {
	data := make([]byte, 4+8+8+32)
	binary.LittleEndian.PutUint32(data[0:4], 0)
	binary.LittleEndian.PutUint64(data[4:12], lamports)
	binary.LittleEndian.PutUint64(data[12:20], space)
	copy(data[20:], owner[:])
	return Instruction{
		ProgramID: SystemProgramID,
		Accounts: []AccountMeta{
			{Pubkey: payer, IsSigner: true, IsWritable: true},
			{Pubkey: newAccount, IsSigner: true, IsWritable: true},
		},
		Data: data,
	}
}

func SystemTransfer(from, to Pubkey, lamports uint64) Instruction {
	data := make([]byte, 4+8)
	binary.LittleEndian.PutUint32(data[0:4], 2)
	binary.LittleEndian.PutUint64(data[4:12], lamports)
	return Instruction{
		ProgramID: SystemProgramID,
		Accounts: []AccountMeta{
			{Pubkey: from, IsSigner: true, IsWritable: true},
			{Pubkey: to, IsSigner: false, IsWritable: true},
		},
		Data: data,
	}
}
