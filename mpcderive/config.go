package mpcderive

const (
	// Prefix of the epsilon derivation message, fixed by the MPC network.
	EpsilonDerivationPrefix = "sig.network v1.0.0 epsilon derivation"

	// CAIP-2 style chain id of the requester's ledger (Solana) in hex.
	SolanaChainIdHex = "0x800001f5"

	// Base public key of the chain signatures MPC network (65 bytes, uncompressed).
	DefaultBasePublicKey = "0x04bb50e2d89a4ed70663d080659fe0ad4b9bc3e06c17a227433966cb59ceee020decddbf6e00192011648d13b1c00af770c0c1bb609d4d3a5c98a43772e0e18ef4"

	// Path used by the custody program for the global vault.
	RootPath = "root"
)

// Signing request constants, see GenerateRequestId.
const (
	Slip44Ethereum    uint32 = 60
	DefaultKeyVersion uint32 = 0
	SignatureAlgo            = "ECDSA"
	TargetBlockchain         = "ethereum"
)
