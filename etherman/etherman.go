package etherman

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rlp"
	logger "github.com/sirupsen/logrus"

	"github.com/TEENet-io/vault-relayer/agreement"
	"github.com/TEENet-io/vault-relayer/mpcderive"
)

var (
	ErrSenderMismatch  = errors.New("signature does not recover to the expected sender")
	ErrReceiptStatus   = errors.New("transaction reverted")
	ErrReceiptNotFound = errors.New("receipt not found before deadline")
)

type ethereumClient interface {
	ethereum.ChainReader
	ethereum.ContractCaller
	ethereum.GasEstimator
	ethereum.PendingStateReader
	ethereum.TransactionReader
	ethereum.TransactionSender

	ChainID(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
}

// Etherman builds the EVM transactions the MPC signer signs and broadcasts
// them once signed. It holds no key of its own.
type Etherman struct {
	ethClient ethereumClient
	cfg       *Config
	chainId   *big.Int
}

func NewEtherman(cfg *Config) (*Etherman, error) {
	ethClient, err := ethclient.Dial(cfg.URL)
	if err != nil {
		return nil, err
	}
	return newEtherman(cfg, ethClient)
}

func newEtherman(cfg *Config, ethClient ethereumClient) (*Etherman, error) {
	c := *cfg
	if c.ReceiptInterval <= 0 {
		c.ReceiptInterval = DefaultReceiptInterval
	}

	em := &Etherman{ethClient: ethClient, cfg: &c}
	if c.ChainId != 0 {
		em.chainId = big.NewInt(c.ChainId)
		return em, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	chainId, err := ethClient.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain id: %w", err)
	}
	em.chainId = chainId
	return em, nil
}

func (em *Etherman) ChainId() *big.Int {
	return new(big.Int).Set(em.chainId)
}

func (em *Etherman) PendingNonce(ctx context.Context, addr ethcommon.Address) (uint64, error) {
	nonce, err := em.ethClient.PendingNonceAt(ctx, addr)
	if err != nil {
		return 0, agreement.RpcError("pendingNonceAt", err)
	}
	return nonce, nil
}

// EstimateGas pads the node's estimate by GasBufferPercent.
func (em *Etherman) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	gas, err := em.ethClient.EstimateGas(ctx, msg)
	if err != nil {
		return 0, agreement.RpcError("estimateGas", err)
	}
	return gas * (100 + GasBufferPercent) / 100, nil
}

// FeeData returns (maxFeePerGas, maxPriorityFeePerGas). Nodes that cannot
// suggest a tip or report no base fee get the fixed defaults.
func (em *Etherman) FeeData(ctx context.Context) (*big.Int, *big.Int, error) {
	tip, err := em.ethClient.SuggestGasTipCap(ctx)
	if err != nil || tip == nil {
		logger.Debugf("no tip suggestion, using default: %v", err)
		tip = new(big.Int).Set(DefaultPriorityFee)
	}

	head, err := em.ethClient.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, nil, agreement.RpcError("headerByNumber", err)
	}
	if head.BaseFee == nil {
		maxFee := new(big.Int).Set(DefaultMaxFee)
		if maxFee.Cmp(tip) < 0 {
			maxFee.Set(tip)
		}
		return maxFee, tip, nil
	}

	maxFee := new(big.Int).Mul(head.BaseFee, big.NewInt(2))
	return maxFee.Add(maxFee, tip), tip, nil
}

// BuildErc20Transfer prepares token.transfer(recipient, amount) sent from
// an MPC derived address.
func (em *Etherman) BuildErc20Transfer(ctx context.Context, from, token, recipient ethcommon.Address, amount *big.Int) (*types.DynamicFeeTx, error) {
	data, err := TransferCalldata(recipient, amount)
	if err != nil {
		return nil, agreement.ValidationError("buildErc20Transfer", "failed to encode transfer: %v", err)
	}

	nonce, err := em.PendingNonce(ctx, from)
	if err != nil {
		return nil, err
	}
	gas, err := em.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &token,
		Data:  data,
		Value: new(big.Int),
	})
	if err != nil {
		return nil, err
	}
	maxFee, tip, err := em.FeeData(ctx)
	if err != nil {
		return nil, err
	}

	return &types.DynamicFeeTx{
		ChainID:   em.ChainId(),
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: maxFee,
		Gas:       gas,
		To:        &token,
		Value:     new(big.Int),
		Data:      data,
	}, nil
}

func (em *Etherman) signer(tx *types.DynamicFeeTx) types.Signer {
	return types.NewLondonSigner(tx.ChainID)
}

// UnsignedRLP is the payload the MPC signer is asked to sign. Its hash
// feeds the request id.
func (em *Etherman) UnsignedRLP(tx *types.DynamicFeeTx) ([]byte, error) {
	return UnsignedRLP(tx)
}

// UnsignedRLP is the type byte followed by the rlp list of the unsigned
// fields. Its keccak256 is the signing hash.
func UnsignedRLP(tx *types.DynamicFeeTx) ([]byte, error) {
	payload, err := rlp.EncodeToBytes([]interface{}{
		tx.ChainID,
		tx.Nonce,
		tx.GasTipCap,
		tx.GasFeeCap,
		tx.Gas,
		tx.To,
		tx.Value,
		tx.Data,
		tx.AccessList,
	})
	if err != nil {
		return nil, err
	}
	return append([]byte{types.DynamicFeeTxType}, payload...), nil
}

func (em *Etherman) SigningHash(tx *types.DynamicFeeTx) ethcommon.Hash {
	return em.signer(tx).Hash(types.NewTx(tx))
}

// BroadcastSigned attaches the MPC signature to tx, checks that it
// recovers to expectedFrom and sends it.
func (em *Etherman) BroadcastSigned(ctx context.Context, tx *types.DynamicFeeTx, sig *agreement.MpcSignature, expectedFrom ethcommon.Address) (*types.Transaction, error) {
	raw, err := mpcderive.RawSignature(sig)
	if err != nil {
		return nil, agreement.ValidationError("broadcastSigned", "%v", err)
	}

	signer := em.signer(tx)
	signed, err := types.NewTx(tx).WithSignature(signer, raw)
	if err != nil {
		return nil, agreement.ValidationError("broadcastSigned", "failed to attach signature: %v", err)
	}

	from, err := types.Sender(signer, signed)
	if err != nil {
		return nil, agreement.ValidationError("broadcastSigned", "failed to recover sender: %v", err)
	}
	if from != expectedFrom {
		return nil, agreement.ValidationError("broadcastSigned", "%v: got %s, want %s", ErrSenderMismatch, from.Hex(), expectedFrom.Hex())
	}

	if err := em.ethClient.SendTransaction(ctx, signed); err != nil {
		return nil, agreement.ChainSubmissionError("sendTransaction", err)
	}
	logger.WithFields(logger.Fields{
		"txHash": signed.Hash().Hex(),
		"from":   from.Hex(),
		"nonce":  signed.Nonce(),
	}).Info("evm transaction broadcast")
	return signed, nil
}

// WaitReceipt polls for the receipt of hash until ctx is done. A reverted
// transaction is a ChainSubmissionError.
func (em *Etherman) WaitReceipt(ctx context.Context, hash ethcommon.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(em.cfg.ReceiptInterval)
	defer ticker.Stop()

	for {
		receipt, err := em.ethClient.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return receipt, agreement.ChainSubmissionError("waitReceipt",
					fmt.Errorf("%w: tx %s status %d", ErrReceiptStatus, hash.Hex(), receipt.Status))
			}
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			logger.WithField("txHash", hash.Hex()).Debugf("failed to get receipt: %v", err)
		}

		select {
		case <-ctx.Done():
			return nil, agreement.TimeoutError("waitReceipt", fmt.Errorf("%w: %s", ErrReceiptNotFound, hash.Hex()))
		case <-ticker.C:
		}
	}
}
