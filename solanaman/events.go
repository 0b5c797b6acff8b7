package solanaman

import (
	"bytes"
	"encoding/base64"
	"strings"

	bin "github.com/gagliardetto/binary"

	"github.com/TEENet-io/vault-relayer/agreement"
)

const programDataPrefix = "Program data: "

var (
	signatureRespondedDisc = EventDiscriminator("SignatureRespondedEvent")
	readRespondedDisc      = EventDiscriminator("ReadRespondedEvent")
)

func decodeMpcSignature(dec *bin.Decoder, sig *agreement.MpcSignature) error {
	if err := readFixed(dec, sig.BigR.X[:]); err != nil {
		return err
	}
	if err := readFixed(dec, sig.BigR.Y[:]); err != nil {
		return err
	}
	if err := readFixed(dec, sig.S[:]); err != nil {
		return err
	}
	id, err := dec.ReadUint8()
	if err != nil {
		return err
	}
	sig.RecoveryId = id
	return nil
}

// DecodeEventLog decodes one transaction log line emitted by the chain
// signatures program. Lines that are not one of the two signer events
// return ok == false.
func DecodeEventLog(line string) (kind agreement.EventKind, ev *agreement.SignatureEvent, ok bool) {
	if !strings.HasPrefix(line, programDataPrefix) {
		return "", nil, false
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(line, programDataPrefix))
	if err != nil || len(raw) < discriminatorLen {
		return "", nil, false
	}

	var disc Discriminator
	copy(disc[:], raw[:discriminatorLen])
	switch disc {
	case signatureRespondedDisc:
		kind = agreement.SignatureResponded
	case readRespondedDisc:
		kind = agreement.ReadResponded
	default:
		return "", nil, false
	}

	dec := bin.NewBorshDecoder(raw[discriminatorLen:])
	ev = &agreement.SignatureEvent{}
	if err := readFixed(dec, ev.RequestId[:]); err != nil {
		return "", nil, false
	}
	if err := readFixed(dec, ev.Responder[:]); err != nil {
		return "", nil, false
	}
	if kind == agreement.ReadResponded {
		if ev.SerializedOutput, err = dec.ReadByteSlice(); err != nil {
			return "", nil, false
		}
	}
	if err := decodeMpcSignature(dec, &ev.Signature); err != nil {
		return "", nil, false
	}
	return kind, ev, true
}

// FindEvent returns the first event of kind for requestId in logs.
func FindEvent(logs []string, requestId [32]byte, kind agreement.EventKind) (*agreement.SignatureEvent, bool) {
	for _, line := range logs {
		k, ev, ok := DecodeEventLog(line)
		if !ok || k != kind || ev.RequestId != requestId {
			continue
		}
		return ev, true
	}
	return nil, false
}

// EncodeEventLog is the inverse of DecodeEventLog.
func EncodeEventLog(kind agreement.EventKind, ev *agreement.SignatureEvent) (string, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)

	disc := signatureRespondedDisc
	if kind == agreement.ReadResponded {
		disc = readRespondedDisc
	}
	err := enc.WriteBytes(disc[:], false)
	if err == nil {
		err = enc.WriteBytes(ev.RequestId[:], false)
	}
	if err == nil {
		err = enc.WriteBytes(ev.Responder[:], false)
	}
	if err == nil && kind == agreement.ReadResponded {
		err = enc.WriteBytes(ev.SerializedOutput, true)
	}
	if err == nil {
		err = encodeSignature(enc, &ev.Signature)
	}
	if err != nil {
		return "", err
	}
	return programDataPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
