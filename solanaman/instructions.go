package solanaman

import (
	"bytes"
	"fmt"
	"math/big"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/TEENet-io/vault-relayer/agreement"
)

const (
	IxInitializeConfig      = "initialize_config"
	IxUpdateConfig          = "update_config"
	IxDepositErc20          = "deposit_erc20"
	IxClaimErc20            = "claim_erc20"
	IxCompleteWithdrawErc20 = "complete_withdraw_erc20"
)

// EvmTransactionParams are the fields of the EVM transaction the MPC signer
// rebuilds on its side. They must match the tx the relayer broadcasts.
type EvmTransactionParams struct {
	Value                *big.Int
	GasLimit             *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	Nonce                uint64
	ChainId              uint64
}

func (p *EvmTransactionParams) encode(enc *bin.Encoder) error {
	for _, v := range []*big.Int{p.Value, p.GasLimit, p.MaxFeePerGas, p.MaxPriorityFeePerGas} {
		if err := writeU128(enc, v); err != nil {
			return err
		}
	}
	if err := enc.WriteUint64(p.Nonce, bin.LE); err != nil {
		return err
	}
	return enc.WriteUint64(p.ChainId, bin.LE)
}

func encodeSignature(enc *bin.Encoder, sig *agreement.MpcSignature) error {
	if err := enc.WriteBytes(sig.BigR.X[:], false); err != nil {
		return err
	}
	if err := enc.WriteBytes(sig.BigR.Y[:], false); err != nil {
		return err
	}
	if err := enc.WriteBytes(sig.S[:], false); err != nil {
		return err
	}
	return enc.WriteUint8(sig.RecoveryId)
}

type ixData struct {
	buf *bytes.Buffer
	enc *bin.Encoder
	err error
}

func newIxData(name string) *ixData {
	d := &ixData{buf: new(bytes.Buffer)}
	d.enc = bin.NewBorshEncoder(d.buf)
	disc := InstructionDiscriminator(name)
	d.err = d.enc.WriteBytes(disc[:], false)
	return d
}

func (d *ixData) write(f func(enc *bin.Encoder) error) *ixData {
	if d.err == nil {
		d.err = f(d.enc)
	}
	return d
}

func (d *ixData) fixed(b []byte) *ixData {
	return d.write(func(enc *bin.Encoder) error { return enc.WriteBytes(b, false) })
}

func (d *ixData) bytes() ([]byte, error) {
	return d.buf.Bytes(), d.err
}

// Builder assembles custody program instructions with the relayer as payer.
type Builder struct {
	pdas  *PDAs
	payer solana.PublicKey
}

func NewBuilder(pdas *PDAs, payer solana.PublicKey) *Builder {
	return &Builder{pdas: pdas, payer: payer}
}

func (b *Builder) configIx(name string, mpcRootSigner [20]byte) (solana.Instruction, error) {
	data, err := newIxData(name).fixed(mpcRootSigner[:]).bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", name, err)
	}
	return solana.NewInstruction(
		b.pdas.BridgeProgram,
		solana.AccountMetaSlice{
			solana.Meta(b.payer).WRITE().SIGNER(),
			solana.Meta(b.pdas.VaultConfig()).WRITE(),
			solana.Meta(solana.SystemProgramID),
		},
		data,
	), nil
}

func (b *Builder) InitializeConfig(mpcRootSigner [20]byte) (solana.Instruction, error) {
	return b.configIx(IxInitializeConfig, mpcRootSigner)
}

func (b *Builder) UpdateConfig(mpcRootSigner [20]byte) (solana.Instruction, error) {
	return b.configIx(IxUpdateConfig, mpcRootSigner)
}

type DepositErc20Params struct {
	RequestId    [32]byte
	Requester    solana.PublicKey // the user, not the vault authority PDA
	Erc20Address [20]byte
	Amount       *big.Int
	TxParams     *EvmTransactionParams
}

func (b *Builder) DepositErc20(p *DepositErc20Params) (solana.Instruction, error) {
	data, err := newIxData(IxDepositErc20).
		fixed(p.RequestId[:]).
		fixed(p.Requester[:]).
		fixed(p.Erc20Address[:]).
		write(func(enc *bin.Encoder) error { return writeU128(enc, p.Amount) }).
		write(p.TxParams.encode).
		bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", IxDepositErc20, err)
	}

	// Optional accounts are passed as the program id, which Anchor reads
	// as None.
	return solana.NewInstruction(
		b.pdas.BridgeProgram,
		solana.AccountMetaSlice{
			solana.Meta(b.payer).WRITE().SIGNER(),
			solana.Meta(b.pdas.VaultAuthority(p.Requester)).WRITE(),
			solana.Meta(b.pdas.PendingDeposit(p.RequestId)).WRITE(),
			solana.Meta(b.pdas.BridgeProgram),
			solana.Meta(b.pdas.ChainSignaturesState()).WRITE(),
			solana.Meta(b.pdas.EventAuthority()),
			solana.Meta(b.pdas.ChainSignaturesProgram),
			solana.Meta(solana.SystemProgramID),
			solana.Meta(b.pdas.BridgeProgram),
		},
		data,
	), nil
}

func (b *Builder) respondData(name string, requestId [32]byte, serializedOutput []byte, sig *agreement.MpcSignature) ([]byte, error) {
	data, err := newIxData(name).
		fixed(requestId[:]).
		write(func(enc *bin.Encoder) error { return enc.WriteBytes(serializedOutput, true) }).
		write(func(enc *bin.Encoder) error { return encodeSignature(enc, sig) }).
		bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", name, err)
	}
	return data, nil
}

// ClaimErc20 credits the user with a settled deposit and closes the
// pending account.
func (b *Builder) ClaimErc20(requestId [32]byte, requester solana.PublicKey, erc20 [20]byte, serializedOutput []byte, sig *agreement.MpcSignature) (solana.Instruction, error) {
	data, err := b.respondData(IxClaimErc20, requestId, serializedOutput, sig)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(
		b.pdas.BridgeProgram,
		solana.AccountMetaSlice{
			solana.Meta(b.payer).WRITE().SIGNER(),
			solana.Meta(b.pdas.PendingDeposit(requestId)).WRITE(),
			solana.Meta(b.pdas.UserBalance(requester, erc20)).WRITE(),
			solana.Meta(solana.SystemProgramID),
		},
		data,
	), nil
}

// CompleteWithdrawErc20 settles a withdrawal once the EVM transfer result
// is signed. A failed transfer refunds the user's balance on chain.
func (b *Builder) CompleteWithdrawErc20(requestId [32]byte, requester solana.PublicKey, erc20 [20]byte, serializedOutput []byte, sig *agreement.MpcSignature) (solana.Instruction, error) {
	data, err := b.respondData(IxCompleteWithdrawErc20, requestId, serializedOutput, sig)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(
		b.pdas.BridgeProgram,
		solana.AccountMetaSlice{
			solana.Meta(b.payer).WRITE().SIGNER(),
			solana.Meta(b.pdas.PendingWithdrawal(requestId)).WRITE(),
			solana.Meta(b.pdas.UserBalance(requester, erc20)).WRITE(),
			solana.Meta(solana.SystemProgramID),
		},
		data,
	), nil
}
