package steps

// Code identifies a top-level verification step or a sub-step. Codes are part
// of the status callback protocol and must stay stable.
type Code string

// Top-level steps, in display order.
const (
	ProofVerification    Code = "proofVerification"
	IdentityVerification Code = "identityVerification"
	StatusCheck          Code = "statusCheck"

	// Final is the code carried by the verdict.
	Final Code = "final"
)

// Sub-steps. The orchestrator's own operations share this namespace with the
// sub-steps contributed by proof suites.
const (
	GetTransactionID          Code = "getTransactionId"
	ComputeLocalHash          Code = "computeLocalHash"
	FetchRemoteHash           Code = "fetchRemoteHash"
	GetIssuerProfile          Code = "getIssuerProfile"
	ParseIssuerKeys           Code = "parseIssuerKeys"
	CompareHashes             Code = "compareHashes"
	CheckMerkleRoot           Code = "checkMerkleRoot"
	CheckReceipt              Code = "checkReceipt"
	CheckAuthenticity         Code = "checkAuthenticity"
	CompareIssuingAddress     Code = "compareIssuingAddress"
	ControlVerificationMethod Code = "controlVerificationMethod"
	CheckImagesIntegrity      Code = "checkImagesIntegrity"
	CheckRevokedStatus        Code = "checkRevokedStatus"
	CheckExpiresDate          Code = "checkExpiresDate"
)

// Untracked marks work that runs through the action wrapper without being
// reported or gating anything (e.g. fetching the revocation list).
const Untracked Code = ""

func (c Code) String() string {
	return string(c)
}

// IsTracked reports whether the code produces status callbacks.
func (c Code) IsTracked() bool {
	return c != Untracked
}
