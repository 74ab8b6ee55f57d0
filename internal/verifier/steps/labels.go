package steps

// Label is the display text for a step. The orchestrator treats it as opaque.
type Label struct {
	Label   string
	Pending string
}

var labels = map[Code]Label{
	ProofVerification:    {Label: "Proof Verification", Pending: "Verifying proof"},
	IdentityVerification: {Label: "Identity Verification", Pending: "Verifying identity"},
	StatusCheck:          {Label: "Status Check", Pending: "Checking record status"},

	GetTransactionID:          {Label: "Get transaction ID", Pending: "Getting transaction ID"},
	ComputeLocalHash:          {Label: "Compute local hash", Pending: "Computing local hash"},
	FetchRemoteHash:           {Label: "Fetch remote hash", Pending: "Fetching remote hash"},
	GetIssuerProfile:          {Label: "Get issuer profile", Pending: "Getting issuer profile"},
	ParseIssuerKeys:           {Label: "Parse issuer keys", Pending: "Parsing issuer keys"},
	CompareHashes:             {Label: "Compare hashes", Pending: "Comparing hashes"},
	CheckMerkleRoot:           {Label: "Check Merkle Root", Pending: "Checking Merkle Root"},
	CheckReceipt:              {Label: "Check Receipt", Pending: "Checking Receipt"},
	CheckAuthenticity:         {Label: "Check authenticity", Pending: "Checking authenticity"},
	CompareIssuingAddress:     {Label: "Compare issuing address", Pending: "Comparing issuing address"},
	ControlVerificationMethod: {Label: "Control verification method", Pending: "Controlling verification method"},
	CheckImagesIntegrity:      {Label: "Check images integrity", Pending: "Checking images integrity"},
	CheckRevokedStatus:        {Label: "Check revoked status", Pending: "Checking revoked status"},
	CheckExpiresDate:          {Label: "Check expiration date", Pending: "Checking expiration date"},
}

// LabelFor returns the English labels for code; unknown codes fall back to the
// code itself.
func LabelFor(code Code) Label {
	if l, ok := labels[code]; ok {
		return l
	}
	return Label{Label: string(code), Pending: string(code)}
}
