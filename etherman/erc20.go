package etherman

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	ethcommon "github.com/ethereum/go-ethereum/common"
)

const Erc20ABI = `[
	{"type":"function","name":"transfer","stateMutability":"nonpayable",
	 "inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],
	 "outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"balanceOf","stateMutability":"view",
	 "inputs":[{"name":"owner","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"event","name":"Transfer","anonymous":false,
	 "inputs":[{"name":"from","type":"address","indexed":true},
	           {"name":"to","type":"address","indexed":true},
	           {"name":"value","type":"uint256","indexed":false}]}
]`

var erc20ABI abi.ABI

func init() {
	var err error
	erc20ABI, err = abi.JSON(strings.NewReader(Erc20ABI))
	if err != nil {
		panic(err)
	}
}

// TransferCalldata encodes transfer(to, amount).
func TransferCalldata(to ethcommon.Address, amount *big.Int) ([]byte, error) {
	return erc20ABI.Pack("transfer", to, amount)
}

// DecodeTransferCalldata is the inverse of TransferCalldata.
func DecodeTransferCalldata(data []byte) (ethcommon.Address, *big.Int, error) {
	if len(data) < 4 {
		return ethcommon.Address{}, nil, fmt.Errorf("calldata too short")
	}
	method, err := erc20ABI.MethodById(data[:4])
	if err != nil || method.Name != "transfer" {
		return ethcommon.Address{}, nil, fmt.Errorf("not an erc20 transfer")
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return ethcommon.Address{}, nil, err
	}
	return args[0].(ethcommon.Address), args[1].(*big.Int), nil
}

func (em *Etherman) Erc20BalanceOf(ctx context.Context, token, owner ethcommon.Address) (*big.Int, error) {
	data, err := erc20ABI.Pack("balanceOf", owner)
	if err != nil {
		return nil, err
	}
	out, err := em.ethClient.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	res, err := erc20ABI.Unpack("balanceOf", out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack balanceOf: %w", err)
	}
	return res[0].(*big.Int), nil
}
