package etherman

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/params"
)

const (
	// Sepolia
	DefaultChainId = 11155111

	// Gas estimates are padded by this percentage.
	GasBufferPercent = 20

	DefaultReceiptInterval = 3 * time.Second
)

var (
	DefaultPriorityFee = big.NewInt(2 * params.GWei)
	DefaultMaxFee      = big.NewInt(20 * params.GWei)
)

type Config struct {
	// URL is the URL of the Ethereum node
	URL string

	// ChainId signed into every transaction. Zero means ask the node.
	ChainId int64

	// ReceiptInterval is how often WaitReceipt polls the node.
	ReceiptInterval time.Duration
}
