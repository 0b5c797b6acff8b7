package solanaman

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// PDA seeds used by the custody program and the chain signatures program.
const (
	SeedVaultAuthority       = "vault_authority"
	SeedGlobalVaultAuthority = "global_vault_authority"
	SeedVaultConfig          = "vault_config"
	SeedPendingDeposit       = "pending_erc20_deposit"
	SeedPendingWithdrawal    = "pending_erc20_withdrawal"
	SeedUserBalance          = "user_erc20_balance"

	SeedChainSignaturesState = "program-state"
	SeedEventAuthority       = "__event_authority"
)

// PDAs derives every program account address the relayer touches.
type PDAs struct {
	BridgeProgram          solana.PublicKey
	ChainSignaturesProgram solana.PublicKey
}

func NewPDAs(bridgeProgramId, chainSigProgramId string) (*PDAs, error) {
	bridge, err := solana.PublicKeyFromBase58(bridgeProgramId)
	if err != nil {
		return nil, fmt.Errorf("invalid bridge program id: %w", err)
	}
	chainSig, err := solana.PublicKeyFromBase58(chainSigProgramId)
	if err != nil {
		return nil, fmt.Errorf("invalid chain signatures program id: %w", err)
	}
	return &PDAs{BridgeProgram: bridge, ChainSignaturesProgram: chainSig}, nil
}

// find panics because FindProgramAddress only fails when no bump in
// [0, 255] yields an off-curve point, which never happens for these seeds.
func find(programId solana.PublicKey, seeds ...[]byte) solana.PublicKey {
	pk, _, err := solana.FindProgramAddress(seeds, programId)
	if err != nil {
		panic(fmt.Sprintf("failed to find program address: %v", err))
	}
	return pk
}

// VaultAuthority is the per-user requester PDA. Its base58 string is the
// requester passed to the MPC signer for deposits.
func (p *PDAs) VaultAuthority(user solana.PublicKey) solana.PublicKey {
	return find(p.BridgeProgram, []byte(SeedVaultAuthority), user[:])
}

func (p *PDAs) GlobalVaultAuthority() solana.PublicKey {
	return find(p.BridgeProgram, []byte(SeedGlobalVaultAuthority))
}

func (p *PDAs) VaultConfig() solana.PublicKey {
	return find(p.BridgeProgram, []byte(SeedVaultConfig))
}

func (p *PDAs) PendingDeposit(requestId [32]byte) solana.PublicKey {
	return find(p.BridgeProgram, []byte(SeedPendingDeposit), requestId[:])
}

func (p *PDAs) PendingWithdrawal(requestId [32]byte) solana.PublicKey {
	return find(p.BridgeProgram, []byte(SeedPendingWithdrawal), requestId[:])
}

func (p *PDAs) UserBalance(user solana.PublicKey, erc20 [20]byte) solana.PublicKey {
	return find(p.BridgeProgram, []byte(SeedUserBalance), user[:], erc20[:])
}

func (p *PDAs) ChainSignaturesState() solana.PublicKey {
	return find(p.ChainSignaturesProgram, []byte(SeedChainSignaturesState))
}

func (p *PDAs) EventAuthority() solana.PublicKey {
	return find(p.ChainSignaturesProgram, []byte(SeedEventAuthority))
}
