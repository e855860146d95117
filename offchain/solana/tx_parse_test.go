package solana

import (
	"bytes"
	"crypto/ed25519"
	"testing"
)

func testKey(t *testing.T, fill byte) (ed25519.PrivateKey, Pubkey) {
	t.Helper()
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = fill
	}
	priv := ed25519.NewKeyFromSeed(seed)
	var pub Pubkey
	copy(pub[:], priv.Public().(ed25519.PublicKey))
	return priv, pub
}

func TestParseLegacyTransaction_RoundTrip(t *testing.T) {
	priv, feePayer := testKey(t, 7)

	var recipient Pubkey
	for i := range recipient {
		recipient[i] = 0x21
	}
	var blockhash [32]byte
	for i := range blockhash {
		blockhash[i] = 0x42
	}

	data := []byte{9, 8, 7, 6}
	tx, err := BuildAndSignLegacyTransaction(
		blockhash,
		feePayer,
		map[Pubkey]ed25519.PrivateKey{feePayer: priv},
		[]Instruction{
			{
				ProgramID: SystemProgramID,
				Accounts: []AccountMeta{
					{Pubkey: feePayer, IsSigner: true, IsWritable: true},
					{Pubkey: recipient, IsSigner: false, IsWritable: true},
				},
				Data: data,
			},
		},
	)
	if err != nil {
		t.Fatalf("BuildAndSignLegacyTransaction: %v", err)
	}

	parsed, err := ParseLegacyTransaction(tx)
	if err != nil {
		t.Fatalf("ParseLegacyTransaction: %v", err)
	}
	if len(parsed.Signatures) != 1 {
		t.Fatalf("signatures=%d, want 1", len(parsed.Signatures))
	}
	if parsed.RecentBlockhash != blockhash {
		t.Fatalf("blockhash mismatch")
	}
	if len(parsed.AccountKeys) == 0 || parsed.AccountKeys[0] != feePayer {
		t.Fatalf("fee payer must be first account key")
	}
	if len(parsed.Instructions) != 1 {
		t.Fatalf("instructions=%d, want 1", len(parsed.Instructions))
	}
	if parsed.Instructions[0].ProgramID != SystemProgramID {
		t.Fatalf("unexpected program id")
	}
	if !bytes.Equal(parsed.Instructions[0].Data, data) {
		t.Fatalf("data mismatch: %x", parsed.Instructions[0].Data)
	}
}

func TestParsedLegacyMessage_SignatureBySigner(t *testing.T) {
	priv, feePayer := testKey(t, 3)

	var blockhash [32]byte
	tx, err := BuildAndSignLegacyTransaction(
		blockhash,
		feePayer,
		map[Pubkey]ed25519.PrivateKey{feePayer: priv},
		[]Instruction{{ProgramID: SystemProgramID, Data: []byte{1}}},
	)
	if err != nil {
		t.Fatalf("BuildAndSignLegacyTransaction: %v", err)
	}

	parsed, err := ParseLegacyTransaction(tx)
	if err != nil {
		t.Fatalf("ParseLegacyTransaction: %v", err)
	}
	sig, ok := parsed.SignatureBySigner(feePayer)
	if !ok {
		t.Fatalf("fee payer signature not found")
	}
	_, off, _ := decodeShortVecLenAt(tx, 0)
	msg := tx[off+len(parsed.Signatures)*64:]
	if !ed25519.Verify(feePayer[:], msg, sig[:]) {
		t.Fatalf("extracted signature did not verify")
	}

	var stranger Pubkey
	stranger[0] = 0xAA
	if _, ok := parsed.SignatureBySigner(stranger); ok {
		t.Fatalf("expected no signature for non-signer")
	}
}

func TestParseLegacyTransaction_Truncated(t *testing.T) {
	if _, err := ParseLegacyTransaction(nil); err == nil {
		t.Fatalf("expected error for empty tx")
	}
	if _, err := ParseLegacyTransaction([]byte{1, 0xAB}); err == nil {
		t.Fatalf("expected error for truncated signatures")
	}
}
