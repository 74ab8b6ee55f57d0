// Package parsing extracts values from anchors and issuer profiles.
package parsing

import (
	"fmt"
	"strings"
	"time"

	"certverify/internal/verifier/models"
	"certverify/internal/verifier/steps"
)

// NoRevocationKey is returned when an issuer declares no revocation keys.
const NoRevocationKey = ""

const anchorDelimiter = ":"

// TransactionID returns the transaction identifier an anchor points at. Object
// anchors carry it as sourceId; string anchors carry it as the last
// colon-delimited segment.
func TransactionID(anchor models.Anchor) (string, error) {
	switch anchor.Kind {
	case models.AnchorObject:
		if anchor.SourceID != "" {
			return anchor.SourceID, nil
		}
	case models.AnchorString:
		if i := strings.LastIndex(anchor.Value, anchorDelimiter); i >= 0 && i < len(anchor.Value)-1 {
			return anchor.Value[i+1:], nil
		}
	}
	return "", models.NewError(models.KindMalformedAnchor, steps.GetTransactionID,
		"Cannot verify this certificate without a transaction ID to compare against.")
}

// ReceiptTransactionID returns the transaction id of the receipt's first
// anchor.
func ReceiptTransactionID(receipt models.Receipt) (string, error) {
	if len(receipt.Anchors) == 0 {
		return "", models.NewError(models.KindMalformedAnchor, steps.GetTransactionID,
			"Cannot verify this certificate without a transaction ID to compare against.")
	}
	return TransactionID(receipt.Anchors[0])
}

// RevocationKey returns the issuer's first revocation key, or NoRevocationKey.
func RevocationKey(issuer *models.Issuer) string {
	if issuer == nil || len(issuer.RevocationKeys) == 0 {
		return NoRevocationKey
	}
	return issuer.RevocationKeys[0].Key
}

// BlinkNetwork returns the "<ledger>:<network>" part of a blink anchor, e.g.
// "btc:mainnet" for "blink:btc:mainnet:<txid>".
func BlinkNetwork(anchor models.Anchor) (string, bool) {
	if anchor.Kind != models.AnchorString {
		return "", false
	}
	parts := strings.Split(anchor.Value, anchorDelimiter)
	if len(parts) != 4 || parts[0] != "blink" {
		return "", false
	}
	return parts[1] + anchorDelimiter + parts[2], true
}

// IssuerKeys indexes the issuer's public keys by address with their validity
// windows parsed.
func IssuerKeys(issuer *models.Issuer) (map[string]models.KeyInfo, error) {
	if issuer == nil || len(issuer.PublicKey) == 0 {
		return nil, models.NewError(models.KindProofVerification, steps.ParseIssuerKeys,
			"Unable to parse JSON out of issuer identification data.")
	}
	keys := make(map[string]models.KeyInfo, len(issuer.PublicKey))
	for _, k := range issuer.PublicKey {
		info := models.KeyInfo{Address: k.Address()}
		var err error
		if info.Created, err = optionalTime(k.Created); err != nil {
			return nil, keyError(k, err)
		}
		if info.Revoked, err = optionalTime(k.Revoked); err != nil {
			return nil, keyError(k, err)
		}
		if info.Expires, err = optionalTime(k.Expires); err != nil {
			return nil, keyError(k, err)
		}
		keys[info.Address] = info
	}
	return keys, nil
}

func optionalTime(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func keyError(k models.IssuerKey, err error) error {
	return models.WrapError(err, models.KindProofVerification, steps.ParseIssuerKeys,
		fmt.Sprintf("Unable to parse issuer key %s.", k.ID))
}
