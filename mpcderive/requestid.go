package mpcderive

import (
	"bytes"
	"encoding/binary"

	"golang.org/x/crypto/sha3"
)

// EncodePacked mimics solidity's abi.encodePacked for the value types the
// signing request id needs: strings and bytes verbatim, uint32 as 4 bytes big-endian.
func EncodePacked(values ...interface{}) []byte {
	var buf bytes.Buffer
	for _, value := range values {
		switch v := value.(type) {
		case string:
			buf.WriteString(v)
		case []byte:
			buf.Write(v)
		case uint32:
			var b [4]byte
			binary.BigEndian.PutUint32(b[:], v)
			buf.Write(b[:])
		default:
			panic("unsupported packed type")
		}
	}
	return buf.Bytes()
}

// SignRequest is the set of fields the chain signatures program hashes into a request id.
type SignRequest struct {
	Sender      string // base58 of the requesting PDA
	Payload     []byte // RLP of the unsigned EVM transaction
	Slip44      uint32
	KeyVersion  uint32
	Path        string
	Algo        string
	Destination string
	Params      string
}

// NewSignRequest fills in the defaults used for EVM transfers.
func NewSignRequest(sender string, payload []byte, path string) *SignRequest {
	return &SignRequest{
		Sender:      sender,
		Payload:     payload,
		Slip44:      Slip44Ethereum,
		KeyVersion:  DefaultKeyVersion,
		Path:        path,
		Algo:        SignatureAlgo,
		Destination: TargetBlockchain,
	}
}

// GenerateRequestId = keccak256(encodePacked(sender, payload, slip44, keyVersion, path, algo, dest, params)).
func GenerateRequestId(r *SignRequest) [32]byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(EncodePacked(r.Sender, r.Payload, r.Slip44, r.KeyVersion, r.Path, r.Algo, r.Destination, r.Params))

	var id [32]byte
	copy(id[:], h.Sum(nil))
	return id
}
