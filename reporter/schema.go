package reporter

import (
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/gagliardetto/solana-go"
	"github.com/go-playground/validator/v10"

	"github.com/TEENet-io/vault-relayer/agreement"
	"github.com/TEENet-io/vault-relayer/common"
	"github.com/TEENet-io/vault-relayer/etherman"
	"github.com/TEENet-io/vault-relayer/orchestrator"
)

// Inbound bodies. Field names follow the web client.

type NotifyDepositBody struct {
	UserAddress     string `json:"userAddress" validate:"required,solana_pubkey"`
	Erc20Address    string `json:"erc20Address" validate:"required,eth_addr"`
	EthereumAddress string `json:"ethereumAddress" validate:"required,eth_addr"`
}

// TransactionParamsBody accepts numbers either as JSON numbers or as
// decimal strings.
type TransactionParamsBody struct {
	Type                 *int        `json:"type,omitempty" validate:"omitempty,eq=2"`
	ChainId              json.Number `json:"chainId" validate:"required,uint_str"`
	Nonce                json.Number `json:"nonce" validate:"required,uint_str"`
	MaxPriorityFeePerGas json.Number `json:"maxPriorityFeePerGas" validate:"required,uint_str"`
	MaxFeePerGas         json.Number `json:"maxFeePerGas" validate:"required,uint_str"`
	GasLimit             json.Number `json:"gasLimit" validate:"required,uint_str"`
	To                   string      `json:"to,omitempty" validate:"omitempty,eth_addr"`
	Value                json.Number `json:"value,omitempty" validate:"omitempty,uint_str"`
	Data                 string      `json:"data,omitempty" validate:"omitempty,hexadecimal|eq=0x"`
}

type NotifyWithdrawalBody struct {
	RequestId         string                 `json:"requestId" validate:"required,bytes32hex"`
	Erc20Address      string                 `json:"erc20Address" validate:"required,eth_addr"`
	TransactionParams *TransactionParamsBody `json:"transactionParams" validate:"required"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// report json names in errors
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	mustRegister(v, "solana_pubkey", func(fl validator.FieldLevel) bool {
		_, err := solana.PublicKeyFromBase58(fl.Field().String())
		return err == nil
	})
	mustRegister(v, "bytes32hex", func(fl validator.FieldLevel) bool {
		_, err := common.ParseBytes32(fl.Field().String())
		return err == nil
	})
	mustRegister(v, "uint_str", func(fl validator.FieldLevel) bool {
		n, ok := common.ParseBigInt(fl.Field().String())
		return ok && n.Sign() >= 0
	})
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(err)
	}
}

// describe turns validator errors into one line naming the bad fields.
func describe(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		ns := fe.Namespace()
		if i := strings.Index(ns, "."); i >= 0 {
			ns = ns[i+1:]
		}
		fields = append(fields, fmt.Sprintf("%s (%s)", ns, fe.Tag()))
	}
	return "Missing or invalid fields: " + strings.Join(fields, ", ")
}

func (b *NotifyDepositBody) Notice() (*orchestrator.DepositNotice, error) {
	user, err := solana.PublicKeyFromBase58(b.UserAddress)
	if err != nil {
		return nil, agreement.ValidationError("notify deposit", "invalid userAddress: %v", err)
	}
	return &orchestrator.DepositNotice{
		User:            user,
		Erc20:           ethcommon.HexToAddress(b.Erc20Address),
		EthereumAddress: ethcommon.HexToAddress(b.EthereumAddress),
	}, nil
}

func parseUint(field string, n json.Number) (*big.Int, error) {
	v, ok := common.ParseBigInt(n.String())
	if !ok || v.Sign() < 0 {
		return nil, agreement.ValidationError("transaction params", "invalid %s %q", field, n)
	}
	return v, nil
}

func (p *TransactionParamsBody) TxParams() (*etherman.TxParams, error) {
	if p.Type != nil && *p.Type != types.DynamicFeeTxType {
		return nil, agreement.ValidationError("transaction params", "unsupported transaction type %d", *p.Type)
	}

	nums := map[string]json.Number{
		"chainId":              p.ChainId,
		"nonce":                p.Nonce,
		"maxPriorityFeePerGas": p.MaxPriorityFeePerGas,
		"maxFeePerGas":         p.MaxFeePerGas,
		"gasLimit":             p.GasLimit,
		"value":                p.Value,
	}
	vals := make(map[string]*big.Int, len(nums))
	for field, n := range nums {
		if n == "" {
			vals[field] = new(big.Int)
			continue
		}
		v, err := parseUint(field, n)
		if err != nil {
			return nil, err
		}
		vals[field] = v
	}
	if !vals["nonce"].IsUint64() || !vals["gasLimit"].IsUint64() {
		return nil, agreement.ValidationError("transaction params", "nonce and gasLimit must fit in 64 bits")
	}

	data, err := common.DecodeHex(p.Data)
	if err != nil {
		return nil, agreement.ValidationError("transaction params", "invalid data: %v", err)
	}

	return &etherman.TxParams{
		ChainId:              vals["chainId"],
		Nonce:                vals["nonce"].Uint64(),
		MaxPriorityFeePerGas: vals["maxPriorityFeePerGas"],
		MaxFeePerGas:         vals["maxFeePerGas"],
		GasLimit:             vals["gasLimit"].Uint64(),
		To:                   ethcommon.HexToAddress(p.To),
		Value:                vals["value"],
		Data:                 data,
	}, nil
}

func (b *NotifyWithdrawalBody) Notice() (*orchestrator.WithdrawalNotice, error) {
	id, err := common.ParseBytes32(b.RequestId)
	if err != nil {
		return nil, agreement.ValidationError("notify withdrawal", "invalid requestId: %v", err)
	}
	params, err := b.TransactionParams.TxParams()
	if err != nil {
		return nil, err
	}
	return &orchestrator.WithdrawalNotice{
		RequestId: id,
		Erc20:     ethcommon.HexToAddress(b.Erc20Address),
		TxParams:  params,
	}, nil
}
