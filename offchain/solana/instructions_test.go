package solana

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestComputeBudgetSetComputeUnitPrice_Layout(t *testing.T) {
	ix := ComputeBudgetSetComputeUnitPrice(12345)
	if ix.ProgramID != ComputeBudgetProgramID {
		t.Fatalf("unexpected program id")
	}
	if len(ix.Accounts) != 0 {
		t.Fatalf("expected no accounts")
	}
	if len(ix.Data) != 9 || ix.Data[0] != 3 {
		t.Fatalf("unexpected data: %x", ix.Data)
	}
	if got := binary.LittleEndian.Uint64(ix.Data[1:]); got != 12345 {
		t.Fatalf("price=%d, want 12345", got)
	}
}

func TestComputeBudgetSetComputeUnitLimit_Layout(t *testing.T) {
	ix := ComputeBudgetSetComputeUnitLimit(200_000)
	if len(ix.Data) != 5 || ix.Data[0] != 2 {
		t.Fatalf("unexpected data: %x", ix.Data)
	}
	if got := binary.LittleEndian.Uint32(ix.Data[1:]); got != 200_000 {
		t.Fatalf("limit=%d, want 200000", got)
	}
}

func TestSystemCreateAccount_Layout(t *testing.T) {
	var payer, newAccount, owner Pubkey
	payer[0] = 1
	newAccount[0] = 2
	owner[0] = 3

	ix := SystemCreateAccount(payer, newAccount, 890_880, 165, owner)
	if ix.ProgramID != SystemProgramID {
		t.Fatalf("unexpected program id")
	}
	if len(ix.Accounts) != 2 {
		t.Fatalf("accounts=%d, want 2", len(ix.Accounts))
	}
	if !ix.Accounts[0].IsSigner || !ix.Accounts[0].IsWritable {
		t.Fatalf("payer must be writable signer")
	}
	if !ix.Accounts[1].IsSigner || !ix.Accounts[1].IsWritable {
		t.Fatalf("new account must co-sign its creation")
	}

	if len(ix.Data) != 4+8+8+32 {
		t.Fatalf("data len=%d", len(ix.Data))
	}
	if got := binary.LittleEndian.Uint32(ix.Data[0:4]); got != 0 {
		t.Fatalf("tag=%d, want 0", got)
	}
	if got := binary.LittleEndian.Uint64(ix.Data[4:12]); got != 890_880 {
		t.Fatalf("lamports=%d", got)
	}
	if got := binary.LittleEndian.Uint64(ix.Data[12:20]); got != 165 {
		t.Fatalf("space=%d", got)
	}
	if !bytes.Equal(ix.Data[20:], owner[:]) {
		t.Fatalf("owner mismatch")
	}
}

func TestSystemTransfer_Layout(t *testing.T) {
	var from, to Pubkey
	from[0] = 1
	to[0] = 2

	ix := SystemTransfer(from, to, 42)
	if got := binary.LittleEndian.Uint32(ix.Data[0:4]); got != 2 {
		t.Fatalf("tag=%d, want 2", got)
	}
	if got := binary.LittleEndian.Uint64(ix.Data[4:12]); got != 42 {
		t.Fatalf("lamports=%d, want 42", got)
	}
	if ix.Accounts[1].IsSigner {
		t.Fatalf("recipient must not sign")
	}
}
