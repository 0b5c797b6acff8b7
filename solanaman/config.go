package solanaman

import (
	"time"

	"github.com/gagliardetto/solana-go/rpc"
)

const (
	DefaultBridgeProgramId          = "3si68i2yXFAGy5k8BpqGpPJR5wE27id1Jenx3uN8GCws"
	DefaultChainSignaturesProgramId = "4uvZW8K4g4jBg7dzPNbb9XDxJLFBK7V6iC76uofmYvEU"

	// Transactions the relayer submits are polled until they reach
	// this level.
	DefaultCommitment = rpc.CommitmentConfirmed

	DefaultConfirmInterval = 2 * time.Second
	DefaultConfirmTimeout  = 60 * time.Second

	// TTLs of the cached reads used to find signer events.
	TransactionCacheTTL = 2 * time.Minute
	SignaturesCacheTTL  = 30 * time.Second

	transactionCacheSize = 4 * DefaultScanLimit
	signaturesCacheSize  = 64

	// Number of recent chain signatures program transactions searched for
	// an event.
	DefaultScanLimit = 100
)

type Config struct {
	URL string

	BridgeProgramId          string
	ChainSignaturesProgramId string

	ConfirmInterval time.Duration
	ConfirmTimeout  time.Duration
}

func (cfg *Config) withDefaults() *Config {
	c := *cfg
	if c.BridgeProgramId == "" {
		c.BridgeProgramId = DefaultBridgeProgramId
	}
	if c.ChainSignaturesProgramId == "" {
		c.ChainSignaturesProgramId = DefaultChainSignaturesProgramId
	}
	if c.ConfirmInterval <= 0 {
		c.ConfirmInterval = DefaultConfirmInterval
	}
	if c.ConfirmTimeout <= 0 {
		c.ConfirmTimeout = DefaultConfirmTimeout
	}
	return &c
}
