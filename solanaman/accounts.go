package solanaman

import (
	"bytes"
	"fmt"
	"math/big"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/TEENet-io/vault-relayer/agreement"
)

var (
	pendingDepositDisc    = AccountDiscriminator("PendingErc20Deposit")
	pendingWithdrawalDisc = AccountDiscriminator("PendingErc20Withdrawal")
	userBalanceDisc       = AccountDiscriminator("UserErc20Balance")
	vaultConfigDisc       = AccountDiscriminator("VaultConfig")
)

// PendingErc20Deposit is created by deposit_erc20 and closed by claim_erc20.
type PendingErc20Deposit struct {
	Requester    solana.PublicKey
	Amount       *big.Int
	Erc20Address [20]byte
	Path         string
	RequestId    [32]byte
}

// PendingErc20Withdrawal is created when a user withdraws and settled by
// complete_withdraw_erc20.
type PendingErc20Withdrawal struct {
	Requester        solana.PublicKey
	Amount           *big.Int
	Erc20Address     [20]byte
	RecipientAddress [20]byte
	Path             string
	RequestId        [32]byte
}

type UserErc20Balance struct {
	Amount *big.Int
}

type VaultConfig struct {
	MpcRootSignerAddress [20]byte
}

func decodeErr(account string, err error) error {
	return agreement.ValidationError("decode"+account, "malformed account data: %v", err)
}

func DecodePendingDeposit(data []byte) (*PendingErc20Deposit, error) {
	dec := bin.NewBorshDecoder(data)
	if err := checkDiscriminator(dec, pendingDepositDisc); err != nil {
		return nil, decodeErr("PendingDeposit", err)
	}

	acc := &PendingErc20Deposit{}
	err := readFixed(dec, acc.Requester[:])
	if err == nil {
		acc.Amount, err = readU128(dec)
	}
	if err == nil {
		err = readFixed(dec, acc.Erc20Address[:])
	}
	if err == nil {
		acc.Path, err = dec.ReadString()
	}
	if err == nil {
		err = readFixed(dec, acc.RequestId[:])
	}
	if err != nil {
		return nil, decodeErr("PendingDeposit", err)
	}
	return acc, nil
}

func DecodePendingWithdrawal(data []byte) (*PendingErc20Withdrawal, error) {
	dec := bin.NewBorshDecoder(data)
	if err := checkDiscriminator(dec, pendingWithdrawalDisc); err != nil {
		return nil, decodeErr("PendingWithdrawal", err)
	}

	acc := &PendingErc20Withdrawal{}
	err := readFixed(dec, acc.Requester[:])
	if err == nil {
		acc.Amount, err = readU128(dec)
	}
	if err == nil {
		err = readFixed(dec, acc.Erc20Address[:])
	}
	if err == nil {
		err = readFixed(dec, acc.RecipientAddress[:])
	}
	if err == nil {
		acc.Path, err = dec.ReadString()
	}
	if err == nil {
		err = readFixed(dec, acc.RequestId[:])
	}
	if err != nil {
		return nil, decodeErr("PendingWithdrawal", err)
	}
	return acc, nil
}

func DecodeUserBalance(data []byte) (*UserErc20Balance, error) {
	dec := bin.NewBorshDecoder(data)
	if err := checkDiscriminator(dec, userBalanceDisc); err != nil {
		return nil, decodeErr("UserBalance", err)
	}
	amount, err := readU128(dec)
	if err != nil {
		return nil, decodeErr("UserBalance", err)
	}
	return &UserErc20Balance{Amount: amount}, nil
}

func DecodeVaultConfig(data []byte) (*VaultConfig, error) {
	dec := bin.NewBorshDecoder(data)
	if err := checkDiscriminator(dec, vaultConfigDisc); err != nil {
		return nil, decodeErr("VaultConfig", err)
	}
	cfg := &VaultConfig{}
	if err := readFixed(dec, cfg.MpcRootSignerAddress[:]); err != nil {
		return nil, decodeErr("VaultConfig", err)
	}
	return cfg, nil
}

// The encoders below produce the on-chain layout. The relayer never writes
// these accounts; they back the simulated ledger and tests.

func (acc *PendingErc20Deposit) MarshalBorsh() ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)

	err := enc.WriteBytes(pendingDepositDisc[:], false)
	if err == nil {
		err = enc.WriteBytes(acc.Requester[:], false)
	}
	if err == nil {
		err = writeU128(enc, acc.Amount)
	}
	if err == nil {
		err = enc.WriteBytes(acc.Erc20Address[:], false)
	}
	if err == nil {
		err = enc.WriteString(acc.Path)
	}
	if err == nil {
		err = enc.WriteBytes(acc.RequestId[:], false)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode pending deposit: %w", err)
	}
	return buf.Bytes(), nil
}

func (acc *PendingErc20Withdrawal) MarshalBorsh() ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)

	err := enc.WriteBytes(pendingWithdrawalDisc[:], false)
	if err == nil {
		err = enc.WriteBytes(acc.Requester[:], false)
	}
	if err == nil {
		err = writeU128(enc, acc.Amount)
	}
	if err == nil {
		err = enc.WriteBytes(acc.Erc20Address[:], false)
	}
	if err == nil {
		err = enc.WriteBytes(acc.RecipientAddress[:], false)
	}
	if err == nil {
		err = enc.WriteString(acc.Path)
	}
	if err == nil {
		err = enc.WriteBytes(acc.RequestId[:], false)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode pending withdrawal: %w", err)
	}
	return buf.Bytes(), nil
}

func (acc *UserErc20Balance) MarshalBorsh() ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)
	if err := enc.WriteBytes(userBalanceDisc[:], false); err != nil {
		return nil, err
	}
	if err := writeU128(enc, acc.Amount); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (cfg *VaultConfig) MarshalBorsh() ([]byte, error) {
	out := make([]byte, 0, discriminatorLen+20)
	out = append(out, vaultConfigDisc[:]...)
	return append(out, cfg.MpcRootSignerAddress[:]...), nil
}
