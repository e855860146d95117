package loader

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/Abdullah1738/solana-mpc-deploy/offchain/solana"
)

func pk(fill byte) solana.Pubkey {
	var out solana.Pubkey
	for i := range out {
		out[i] = fill
	}
	return out
}

func TestWrite_Encoding(t *testing.T) {
	chunk := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	ix := Write(pk(1), pk(2), 900, chunk)

	if ix.ProgramID != ProgramID {
		t.Fatalf("unexpected program id")
	}
	// tag u32 | offset u32 | len u64 | bytes — no padding between fields.
	want := []byte{
		1, 0, 0, 0,
		0x84, 0x03, 0, 0,
		4, 0, 0, 0, 0, 0, 0, 0,
		0xDE, 0xAD, 0xBE, 0xEF,
	}
	if !bytes.Equal(ix.Data, want) {
		t.Fatalf("data=%x, want %x", ix.Data, want)
	}
	if len(ix.Data) != WriteOverhead+len(chunk) {
		t.Fatalf("overhead mismatch: %d", len(ix.Data))
	}

	if !ix.Accounts[0].IsWritable || ix.Accounts[0].IsSigner {
		t.Fatalf("buffer must be writable non-signer")
	}
	if !ix.Accounts[1].IsSigner {
		t.Fatalf("authority must sign writes")
	}
}

func TestInitializeBuffer_Encoding(t *testing.T) {
	ix := InitializeBuffer(pk(1), pk(2))
	if !bytes.Equal(ix.Data, []byte{0, 0, 0, 0}) {
		t.Fatalf("data=%x", ix.Data)
	}
	if ix.Accounts[1].IsSigner {
		t.Fatalf("authority does not sign initialization")
	}
}

func TestDeployWithMaxDataLen_Encoding(t *testing.T) {
	ix := DeployWithMaxDataLen(pk(1), pk(2), pk(3), pk(4), pk(5), 11_900)

	if got := binary.LittleEndian.Uint32(ix.Data[0:4]); got != 2 {
		t.Fatalf("tag=%d, want 2", got)
	}
	if got := binary.LittleEndian.Uint64(ix.Data[4:12]); got != 11_900 {
		t.Fatalf("maxDataLen=%d", got)
	}

	if len(ix.Accounts) != 8 {
		t.Fatalf("accounts=%d, want 8", len(ix.Accounts))
	}
	if !ix.Accounts[0].IsSigner || !ix.Accounts[0].IsWritable {
		t.Fatalf("payer must be writable signer")
	}
	if ix.Accounts[4].Pubkey != solana.SysvarRentID {
		t.Fatalf("account 4 must be rent sysvar")
	}
	if ix.Accounts[5].Pubkey != solana.SysvarClockID {
		t.Fatalf("account 5 must be clock sysvar")
	}
	if ix.Accounts[6].Pubkey != solana.SystemProgramID {
		t.Fatalf("account 6 must be system program")
	}
	if !ix.Accounts[7].IsSigner {
		t.Fatalf("authority must sign deploy")
	}
}

func TestClose_Encoding(t *testing.T) {
	ix := Close(pk(1), pk(2), pk(3))
	if !bytes.Equal(ix.Data, []byte{5, 0, 0, 0}) {
		t.Fatalf("data=%x", ix.Data)
	}
	if !ix.Accounts[0].IsWritable || !ix.Accounts[1].IsWritable {
		t.Fatalf("account and recipient must be writable")
	}
	if !ix.Accounts[2].IsSigner {
		t.Fatalf("authority must sign close")
	}
}

func TestAccountSizes(t *testing.T) {
	if got := BufferSize(1900); got != 1937 {
		t.Fatalf("BufferSize(1900)=%d, want 1937", got)
	}
	if got := ProgramDataSize(11_900); got != 11_945 {
		t.Fatalf("ProgramDataSize(11900)=%d, want 11945", got)
	}
}

func TestProgramDataAddress_Deterministic(t *testing.T) {
	program := solana.MustParsePubkey("9Weyw3FD5WuXdXMcMMiCRusTQwNLZaMeWQPBKBpFFjwa")
	a, err := ProgramDataAddress(program)
	if err != nil {
		t.Fatalf("ProgramDataAddress: %v", err)
	}
	b, err := ProgramDataAddress(program)
	if err != nil {
		t.Fatalf("ProgramDataAddress: %v", err)
	}
	if a != b {
		t.Fatalf("derivation not deterministic")
	}
	if a == program {
		t.Fatalf("programdata must differ from program")
	}
}
