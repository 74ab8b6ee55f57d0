// Package inspectors holds the individual checks run during verification.
// Every function here is pure: callers fetch the data first.
package inspectors

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"certverify/internal/verifier/models"
	"certverify/internal/verifier/steps"
)

const urnUUIDPrefix = "urn:uuid:"

// EnsureNotRevoked fails when documentID, or its urn:uuid form with the prefix
// added or removed, appears in revoked.
func EnsureNotRevoked(revoked []string, documentID string) error {
	if len(revoked) == 0 {
		return nil
	}
	candidates := revocationCandidates(documentID)
	for _, id := range revoked {
		for _, c := range candidates {
			if id == c {
				return models.NewError(models.KindRevoked, steps.CheckRevokedStatus,
					"This certificate has been revoked by the issuer.")
			}
		}
	}
	return nil
}

// EnsureNotRevokedBySpentOutput fails when the output paid to the issuer's
// revocation key has been spent. An empty key disables the check.
func EnsureNotRevokedBySpentOutput(revokedAddresses []string, revocationKey string) error {
	if revocationKey == "" {
		return nil
	}
	address := models.KeyAddress(revocationKey)
	for _, a := range revokedAddresses {
		if a == address {
			return models.NewError(models.KindRevoked, steps.CheckRevokedStatus,
				"This certificate has been revoked by the issuer.")
		}
	}
	return nil
}

func revocationCandidates(id string) []string {
	if id == "" {
		return nil
	}
	if bare, ok := strings.CutPrefix(id, urnUUIDPrefix); ok {
		return []string{id, bare}
	}
	return []string{id, urnUUIDPrefix + id}
}

// EnsureNotExpired fails when expires is set and before now.
func EnsureNotExpired(expires *time.Time, now time.Time) error {
	if expires == nil {
		return nil
	}
	if expires.Before(now) {
		return models.NewError(models.KindExpired, steps.CheckExpiresDate,
			"This certificate has expired.")
	}
	return nil
}

// ControlVerificationMethod fails unless method names a verification method of
// did that is also listed under assertionMethod or authentication. Relative
// "#fragment" references resolve against the DID document id.
func ControlVerificationMethod(did *models.DIDDocument, method string) error {
	mismatch := models.NewError(models.KindVerificationMethodMismatch, steps.ControlVerificationMethod,
		"The verification method of the document does not match the provided issuer identity.")
	if did == nil || method == "" {
		return mismatch
	}

	target := resolveMethodID(did.ID, method)
	declared := false
	for _, vm := range did.VerificationMethod {
		if resolveMethodID(did.ID, vm.ID) == target {
			declared = true
			break
		}
	}
	if !declared {
		return mismatch
	}

	for _, refs := range [][]models.MethodRef{did.AssertionMethod, did.Authentication} {
		for _, ref := range refs {
			if resolveMethodID(did.ID, ref.ID) == target {
				return nil
			}
		}
	}
	return mismatch
}

func resolveMethodID(didID, id string) string {
	if strings.HasPrefix(id, "#") {
		return didID + id
	}
	return id
}

// EnsureHashesEqual compares the locally computed document hash with the
// target hash of the proof.
func EnsureHashesEqual(local, remote string) error {
	if !strings.EqualFold(local, remote) {
		return models.NewError(models.KindProofVerification, steps.CompareHashes,
			"Computed hash does not match remote hash")
	}
	return nil
}

// EnsureMerkleRootEqual compares the receipt's Merkle root with the value read
// from the blockchain.
func EnsureMerkleRootEqual(merkleRoot, remoteHash string) error {
	if !strings.EqualFold(merkleRoot, remoteHash) {
		return models.NewError(models.KindProofVerification, steps.CheckMerkleRoot,
			"Merkle root does not match remote hash.")
	}
	return nil
}

// EnsureValidReceipt walks the receipt's Merkle path from the target hash and
// checks that it ends at the Merkle root.
func EnsureValidReceipt(receipt models.Receipt) error {
	invalid := models.NewError(models.KindProofVerification, steps.CheckReceipt,
		"The receipt is malformed. There was a problem navigating the merkle tree in the receipt.")

	current, err := hex.DecodeString(receipt.TargetHash)
	if err != nil || len(current) == 0 {
		return invalid
	}
	root, err := hex.DecodeString(receipt.MerkleRoot)
	if err != nil {
		return invalid
	}

	for _, node := range receipt.Path {
		var sibling []byte
		var combined []byte
		switch {
		case node.Left != "":
			if sibling, err = hex.DecodeString(node.Left); err != nil {
				return invalid
			}
			combined = append(sibling, current...)
		case node.Right != "":
			if sibling, err = hex.DecodeString(node.Right); err != nil {
				return invalid
			}
			combined = append(current, sibling...)
		default:
			return invalid
		}
		sum := sha256.Sum256(combined)
		current = sum[:]
	}

	if !bytes.Equal(current, root) {
		return models.NewError(models.KindProofVerification, steps.CheckReceipt,
			"Invalid Merkle Receipt. Proof hash did not match Merkle root")
	}
	return nil
}

// EnsureValidIssuingKey checks that issuingAddress belongs to the issuer and
// was valid when the anchoring transaction happened.
func EnsureValidIssuingKey(keys map[string]models.KeyInfo, issuingAddress string, txTime time.Time) error {
	key, ok := keys[issuingAddress]
	if !ok || !key.ValidAt(txTime) {
		return models.NewError(models.KindProofVerification, steps.CheckAuthenticity,
			"Transaction occurred at time when issuing address was not considered valid.")
	}
	return nil
}

// EnsureIssuingAddressMatches checks that the address that anchored the proof
// is a blockchain account declared by the issuer's DID document.
func EnsureIssuingAddressMatches(did *models.DIDDocument, issuingAddress string) error {
	mismatch := models.NewError(models.KindIdentityVerification, steps.CompareIssuingAddress,
		"The issuing address does not match the issuer identity.")
	if did == nil || issuingAddress == "" {
		return mismatch
	}
	for _, vm := range did.VerificationMethod {
		account := vm.BlockchainAccountID
		if i := strings.LastIndex(account, ":"); i >= 0 {
			account = account[i+1:]
		}
		if account != "" && strings.EqualFold(account, issuingAddress) {
			return nil
		}
	}
	return mismatch
}
