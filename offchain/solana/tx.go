package solana

import (
	"crypto/ed25519"
	"errors"
)

var ErrMissingSigner = errors.New("missing signer for required signature")

type AccountMeta struct {
	Pubkey     Pubkey
	IsSigner   bool
	IsWritable bool
}

type Instruction struct {
	ProgramID Pubkey
	Accounts  []AccountMeta
	Data      []byte
}

type messageHeader struct {
	NumRequiredSignatures       uint8
	NumReadonlySignedAccounts   uint8
	NumReadonlyUnsignedAccounts uint8
}

// CompiledMessage is a serialized legacy message plus the account metadata
// needed to place signatures into their slots later. The fee payer is always
// AccountKeys[0].
type CompiledMessage struct {
	Bytes       []byte
	AccountKeys []Pubkey

	numRequiredSignatures int
}

// SignerKeys returns the required signer pubkeys in signature-slot order.
func (m CompiledMessage) SignerKeys() []Pubkey {
	return m.AccountKeys[:m.numRequiredSignatures]
}

func CompileLegacyMessage(
	recentBlockhash [32]byte,
	feePayer Pubkey,
	instructions []Instruction,
) (CompiledMessage, error) {
	msg, accountKeys, header, err := compileLegacyMessage(recentBlockhash, feePayer, instructions)
	if err != nil {
		return CompiledMessage{}, err
	}
	return CompiledMessage{
		Bytes:                 msg,
		AccountKeys:           accountKeys,
		numRequiredSignatures: int(header.NumRequiredSignatures),
	}, nil
}

// SignMessage produces signatures for every required signer whose private key
// is present. Missing keys are skipped so the caller can merge in externally
// produced signatures (e.g. the fee payer's) before assembly.
func SignMessage(msg CompiledMessage, signers map[Pubkey]ed25519.PrivateKey) map[Pubkey][64]byte {
	out := make(map[Pubkey][64]byte, len(signers))
	for _, pk := range msg.SignerKeys() {
		priv, ok := signers[pk]
		if !ok {
			continue
		}
		var sig [64]byte
		copy(sig[:], ed25519.Sign(priv, msg.Bytes))
		out[pk] = sig
	}
	return out
}

// AssembleTransaction serializes a complete transaction from a compiled
// message and one signature per required signer, in signature-slot order.
func AssembleTransaction(msg CompiledMessage, sigs map[Pubkey][64]byte) ([]byte, error) {
	signerKeys := msg.SignerKeys()
	out := make([]byte, 0, 1+len(signerKeys)*64+len(msg.Bytes))
	out = append(out, encodeShortVecLen(len(signerKeys))...)
	for _, pk := range signerKeys {
		sig, ok := sigs[pk]
		if !ok {
			return nil, ErrMissingSigner
		}
		out = append(out, sig[:]...)
	}
	out = append(out, msg.Bytes...)
	return out, nil
}

func BuildAndSignLegacyTransaction(
	recentBlockhash [32]byte,
	feePayer Pubkey,
	signers map[Pubkey]ed25519.PrivateKey,
	instructions []Instruction,
) ([]byte, error) {
	msg, err := CompileLegacyMessage(recentBlockhash, feePayer, instructions)
	if err != nil {
		return nil, err
	}
	return AssembleTransaction(msg, SignMessage(msg, signers))
}

type accountInfo struct {
	Pubkey     Pubkey
	IsSigner   bool
	IsWritable bool
	FirstSeen  int
}

func compileLegacyMessage(
	recentBlockhash [32]byte,
	feePayer Pubkey,
	instructions []Instruction,
) ([]byte, []Pubkey, messageHeader, error) {
	infos := make(map[Pubkey]*accountInfo, 32)
	seen := 0

	touch := func(pk Pubkey, signer, writable bool) {
		if ai, ok := infos[pk]; ok {
			ai.IsSigner = ai.IsSigner || signer
			ai.IsWritable = ai.IsWritable || writable
			return
		}
		infos[pk] = &accountInfo{
			Pubkey:     pk,
			IsSigner:   signer,
			IsWritable: writable,
			FirstSeen:  seen,
		}
		seen++
	}

	// Fee payer must be a writable signer.
	touch(feePayer, true, true)

	for _, ix := range instructions {
		touch(ix.ProgramID, false, false)
		for _, am := range ix.Accounts {
			touch(am.Pubkey, am.IsSigner, am.IsWritable)
		}
	}

	signersWritable := make([]*accountInfo, 0, 8)
	signersReadonly := make([]*accountInfo, 0, 8)
	nonsignersWritable := make([]*accountInfo, 0, 16)
	nonsignersReadonly := make([]*accountInfo, 0, 16)

	for _, ai := range infos {
		if ai.IsSigner {
			if ai.IsWritable {
				signersWritable = append(signersWritable, ai)
			} else {
				signersReadonly = append(signersReadonly, ai)
			}
			continue
		}
		if ai.IsWritable {
			nonsignersWritable = append(nonsignersWritable, ai)
		} else {
			nonsignersReadonly = append(nonsignersReadonly, ai)
		}
	}

	sortByFirstSeen(signersWritable)
	sortByFirstSeen(signersReadonly)
	sortByFirstSeen(nonsignersWritable)
	sortByFirstSeen(nonsignersReadonly)

	accountKeys := make([]Pubkey, 0, len(infos))
	for _, ai := range signersWritable {
		accountKeys = append(accountKeys, ai.Pubkey)
	}
	for _, ai := range signersReadonly {
		accountKeys = append(accountKeys, ai.Pubkey)
	}
	for _, ai := range nonsignersWritable {
		accountKeys = append(accountKeys, ai.Pubkey)
	}
	for _, ai := range nonsignersReadonly {
		accountKeys = append(accountKeys, ai.Pubkey)
	}

	h := messageHeader{
		NumRequiredSignatures:       uint8(len(signersWritable) + len(signersReadonly)),
		NumReadonlySignedAccounts:   uint8(len(signersReadonly)),
		NumReadonlyUnsignedAccounts: uint8(len(nonsignersReadonly)),
	}

	indexOf := make(map[Pubkey]uint8, len(accountKeys))
	for i, pk := range accountKeys {
		indexOf[pk] = uint8(i)
	}

	out := make([]byte, 0, 512)
	out = append(out, h.NumRequiredSignatures, h.NumReadonlySignedAccounts, h.NumReadonlyUnsignedAccounts)
	out = append(out, encodeShortVecLen(len(accountKeys))...)
	for _, pk := range accountKeys {
		out = append(out, pk[:]...)
	}
	out = append(out, recentBlockhash[:]...)

	out = append(out, encodeShortVecLen(len(instructions))...)
	for _, ix := range instructions {
		pid := indexOf[ix.ProgramID]
		out = append(out, pid)
		out = append(out, encodeShortVecLen(len(ix.Accounts))...)
		for _, am := range ix.Accounts {
			out = append(out, indexOf[am.Pubkey])
		}
		out = append(out, encodeShortVecLen(len(ix.Data))...)
		out = append(out, ix.Data...)
	}

	return out, accountKeys, h, nil
}

func sortByFirstSeen(infos []*accountInfo) {
	for i := 0; i < len(infos); i++ {
		for j := i + 1; j < len(infos); j++ {
			if infos[j].FirstSeen < infos[i].FirstSeen {
				infos[i], infos[j] = infos[j], infos[i]
			}
		}
	}
}
