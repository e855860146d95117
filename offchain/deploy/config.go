package deploy

import (
	"time"

	"github.com/Abdullah1738/solana-mpc-deploy/offchain/fordefi"
)

const (
	// DefaultChunkSize keeps one write instruction plus transaction overhead
	// under the 1232-byte packet ceiling.
	DefaultChunkSize = 900

	// DefaultMaxTxBytes is the serialized transaction size limit enforced by
	// the network's packet layer.
	DefaultMaxTxBytes = 1232

	// DefaultUpgradeHeadroom is extra programdata capacity reserved so a
	// later redeploy does not need to resize the account.
	DefaultUpgradeHeadroom = 10_000

	// DefaultFeeUnitPrice is sent as an explicit custom fee on every signing
	// request. The oracle's own fee prediction overcharges by orders of
	// magnitude and is never used.
	DefaultFeeUnitPrice = 5_000

	// DefaultMaxRetries bounds signing+broadcast attempts per transaction
	// when the blockhash expires in flight.
	DefaultMaxRetries = 3

	// LamportsPerSignature is the cluster base fee, used only for the
	// pre-flight funds estimate.
	LamportsPerSignature = 5_000
)

type Config struct {
	ChunkSize       int
	MaxTxBytes      int
	UpgradeHeadroom uint64

	// FeeUnitPrice overrides the oracle's fee prediction on every request.
	FeeUnitPrice uint64
	// PriorityMicroLamports, when nonzero, prepends a compute-unit-price
	// instruction to every transaction.
	PriorityMicroLamports uint64

	Chain         fordefi.Chain
	VaultID       string
	SkipPreflight bool

	MaxRetries     int
	PollInterval   time.Duration
	PollTimeout    time.Duration
	ConfirmTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.MaxTxBytes <= 0 {
		c.MaxTxBytes = DefaultMaxTxBytes
	}
	if c.UpgradeHeadroom == 0 {
		c.UpgradeHeadroom = DefaultUpgradeHeadroom
	}
	if c.FeeUnitPrice == 0 {
		c.FeeUnitPrice = DefaultFeeUnitPrice
	}
	if c.Chain == "" {
		c.Chain = fordefi.ChainMainnet
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 1500 * time.Millisecond
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = 90 * time.Second
	}
	if c.ConfirmTimeout <= 0 {
		c.ConfirmTimeout = 60 * time.Second
	}
	return c
}
