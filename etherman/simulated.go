package etherman

import (
	"crypto/ecdsa"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"

	"github.com/TEENet-io/vault-relayer/agreement"
	"github.com/TEENet-io/vault-relayer/mpcderive"
)

var (
	simulatedChainID = big.NewInt(1337)
	blockGasLimit    = uint64(999999999999999999)
)

// SimulatedChain is an in-process EVM chain. Its keys stand in for MPC
// derived addresses: tests sign with them and hand the signature to
// BroadcastSigned as if it came from the signer network.
type SimulatedChain struct {
	Backend *simulated.Backend
	Keys    []*ecdsa.PrivateKey
}

func NewSimulatedChain() *SimulatedChain {
	// create accounts
	nAccount := 10
	keys := make([]*ecdsa.PrivateKey, nAccount)
	for i := 0; i < nAccount; i++ {
		keys[i], _ = crypto.GenerateKey()
	}

	// allocate funds to accounts
	genesisAlloc := map[common.Address]types.Account{}
	for _, key := range keys {
		balance, _ := new(big.Int).SetString("100000000000000000000", 10)
		genesisAlloc[crypto.PubkeyToAddress(key.PublicKey)] = types.Account{
			Balance: balance,
		}
	}

	// create simulated backend
	backend := simulated.NewBackend(genesisAlloc, simulated.WithBlockGasLimit(blockGasLimit))

	return &SimulatedChain{
		Backend: backend,
		Keys:    keys,
	}
}

func (sim *SimulatedChain) Address(i int) common.Address {
	return crypto.PubkeyToAddress(sim.Keys[i].PublicKey)
}

// Sign produces the signature the MPC signer would emit for tx if account
// i were the derived key.
func (sim *SimulatedChain) Sign(i int, tx *types.DynamicFeeTx) (*agreement.MpcSignature, error) {
	hash := types.NewLondonSigner(tx.ChainID).Hash(types.NewTx(tx))
	raw, err := crypto.Sign(hash[:], sim.Keys[i])
	if err != nil {
		return nil, err
	}
	return mpcderive.SignatureFromRaw(raw)
}

// NewSimEtherman returns an Etherman wired to the simulated chain.
func NewSimEtherman(sim *SimulatedChain) (*Etherman, error) {
	return newEtherman(&Config{
		ChainId:         simulatedChainID.Int64(),
		ReceiptInterval: 10 * time.Millisecond,
	}, sim.Backend.Client())
}
