package etherman

import (
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/TEENet-io/vault-relayer/common"
)

// TxParams are the fields of an unsigned EIP-1559 transaction, as handed
// to the MPC signer and later broadcast with its signature.
type TxParams struct {
	ChainId              *big.Int
	Nonce                uint64
	MaxPriorityFeePerGas *big.Int
	MaxFeePerGas         *big.Int
	GasLimit             uint64
	To                   ethcommon.Address
	Value                *big.Int
	Data                 []byte
}

func (p *TxParams) DynamicFeeTx() *types.DynamicFeeTx {
	to := p.To
	value := p.Value
	if value == nil {
		value = new(big.Int)
	}
	return &types.DynamicFeeTx{
		ChainID:   new(big.Int).Set(p.ChainId),
		Nonce:     p.Nonce,
		GasTipCap: new(big.Int).Set(p.MaxPriorityFeePerGas),
		GasFeeCap: new(big.Int).Set(p.MaxFeePerGas),
		Gas:       p.GasLimit,
		To:        &to,
		Value:     new(big.Int).Set(value),
		Data:      append([]byte(nil), p.Data...),
	}
}

func TxParamsFromTx(tx *types.DynamicFeeTx) *TxParams {
	p := &TxParams{
		ChainId:              common.BigIntClone(tx.ChainID),
		Nonce:                tx.Nonce,
		MaxPriorityFeePerGas: common.BigIntClone(tx.GasTipCap),
		MaxFeePerGas:         common.BigIntClone(tx.GasFeeCap),
		GasLimit:             tx.Gas,
		Value:                common.BigIntClone(tx.Value),
		Data:                 append([]byte(nil), tx.Data...),
	}
	if tx.To != nil {
		p.To = *tx.To
	}
	return p
}
