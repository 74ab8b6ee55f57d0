package merkleproof2019

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/mr-tron/base58"

	"certverify/internal/verifier/models"
)

// Multibase prefixes accepted in proofValue.
const (
	multibaseBase58BTC = 'z'
	multibaseBase64URL = 'u'
)

// DecodeProofValue decodes a multibase proofValue holding a JSON Merkle
// receipt.
func DecodeProofValue(value string) (models.Receipt, error) {
	var receipt models.Receipt
	if len(value) < 2 {
		return receipt, fmt.Errorf("proof value is empty")
	}

	var raw []byte
	var err error
	switch value[0] {
	case multibaseBase58BTC:
		raw, err = base58.Decode(value[1:])
	case multibaseBase64URL:
		raw, err = base64.RawURLEncoding.DecodeString(value[1:])
	default:
		return receipt, fmt.Errorf("unsupported multibase prefix %q", value[0])
	}
	if err != nil {
		return receipt, fmt.Errorf("decode proof value: %w", err)
	}
	if err := json.Unmarshal(raw, &receipt); err != nil {
		return receipt, fmt.Errorf("decode receipt: %w", err)
	}
	return receipt, nil
}

// EncodeProofValue encodes a receipt as a base58btc multibase string.
func EncodeProofValue(receipt models.Receipt) (string, error) {
	raw, err := json.Marshal(receipt)
	if err != nil {
		return "", err
	}
	return string(multibaseBase58BTC) + base58.Encode(raw), nil
}
