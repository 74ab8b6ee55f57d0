// Package models holds the credential document shapes and the runtime records
// produced by a verification run.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Document is a parsed credential. Raw keeps the full JSON object so the local
// hash can be computed over fields this struct does not model.
type Document struct {
	ID             string     `json:"id"`
	Issuer         IssuerRef  `json:"issuer"`
	IssuedOn       string     `json:"issuedOn,omitempty"`
	IssuanceDate   string     `json:"issuanceDate,omitempty"`
	ValidFrom      string     `json:"validFrom,omitempty"`
	Expires        string     `json:"expires,omitempty"`
	ExpirationDate string     `json:"expirationDate,omitempty"`
	Signature      *Signature `json:"signature,omitempty"`
	Proof          ProofSet   `json:"proof,omitempty"`

	Raw map[string]any `json:"-"`
}

// ParseDocument decodes a credential and keeps its raw form.
func ParseDocument(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, WrapError(err, KindMalformedDocument, "", "document is not valid JSON")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc.Raw); err != nil {
		return nil, WrapError(err, KindMalformedDocument, "", "document must be a JSON object")
	}
	return &doc, nil
}

// ExpiresAt returns the expiry of the credential, nil when it never expires.
func (d *Document) ExpiresAt() (*time.Time, error) {
	raw := d.Expires
	if raw == "" {
		raw = d.ExpirationDate
	}
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, WrapError(err, KindMalformedDocument, "", fmt.Sprintf("invalid expiration date %q", raw))
	}
	return &t, nil
}

// FirstProof returns the first proof of a v3 document.
func (d *Document) FirstProof() (*Proof, bool) {
	if len(d.Proof) == 0 {
		return nil, false
	}
	return &d.Proof[0], true
}

// StringList accepts either a JSON string or an array of strings.
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	if isNull(data) {
		return nil
	}
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*l = StringList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("expected string or string array: %w", err)
	}
	*l = many
	return nil
}

// First returns the first entry or "".
func (l StringList) First() string {
	if len(l) == 0 {
		return ""
	}
	return l[0]
}

// Signature is the Blockcerts v2 proof block.
type Signature struct {
	Type       StringList  `json:"type"`
	TargetHash string      `json:"targetHash"`
	MerkleRoot string      `json:"merkleRoot"`
	Proof      []ProofNode `json:"proof"`
	Anchors    []Anchor    `json:"anchors"`
}

// Receipt returns the signature as a Merkle receipt.
func (s *Signature) Receipt() Receipt {
	return Receipt{
		TargetHash: s.TargetHash,
		MerkleRoot: s.MerkleRoot,
		Path:       s.Proof,
		Anchors:    s.Anchors,
	}
}

// Proof is one entry of a Blockcerts v3 proof block.
type Proof struct {
	Type               string `json:"type"`
	Created            string `json:"created,omitempty"`
	ProofValue         string `json:"proofValue"`
	ProofPurpose       string `json:"proofPurpose,omitempty"`
	VerificationMethod string `json:"verificationMethod,omitempty"`
}

// ProofSet accepts a single proof object or an array of them.
type ProofSet []Proof

func (p *ProofSet) UnmarshalJSON(data []byte) error {
	if isNull(data) {
		return nil
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var many []Proof
		if err := json.Unmarshal(trimmed, &many); err != nil {
			return err
		}
		*p = many
		return nil
	}
	var one Proof
	if err := json.Unmarshal(trimmed, &one); err != nil {
		return err
	}
	*p = ProofSet{one}
	return nil
}

// Receipt is a Merkle inclusion proof of a document hash plus its anchors.
type Receipt struct {
	TargetHash string      `json:"targetHash"`
	MerkleRoot string      `json:"merkleRoot"`
	Path       []ProofNode `json:"path"`
	Anchors    []Anchor    `json:"anchors"`
}

// ProofNode is one sibling on a Merkle path; exactly one side is set.
type ProofNode struct {
	Left  string `json:"left,omitempty"`
	Right string `json:"right,omitempty"`
}

// AnchorKind is the JSON shape an anchor was given in.
type AnchorKind int

const (
	AnchorUnsupported AnchorKind = iota
	AnchorObject
	AnchorString
)

// Anchor points at the on-chain transaction committing a Merkle root. It is
// either an object carrying sourceId or a delimited string such as
// "blink:btc:mainnet:<txid>".
type Anchor struct {
	Kind     AnchorKind
	SourceID string
	Type     string
	Chain    string
	Value    string
}

// StringAnchor builds a delimited-string anchor.
func StringAnchor(v string) Anchor {
	return Anchor{Kind: AnchorString, Value: v}
}

// ObjectAnchor builds an object anchor.
func ObjectAnchor(sourceID, typ, chain string) Anchor {
	return Anchor{Kind: AnchorObject, SourceID: sourceID, Type: typ, Chain: chain}
}

func (a *Anchor) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		*a = Anchor{}
		return nil
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*a = StringAnchor(s)
	case '{':
		var obj struct {
			SourceID string `json:"sourceId"`
			Type     string `json:"type"`
			Chain    string `json:"chain"`
		}
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return err
		}
		*a = ObjectAnchor(obj.SourceID, obj.Type, obj.Chain)
	default:
		// Kept so the transaction id lookup can report it as malformed.
		*a = Anchor{Kind: AnchorUnsupported, Value: string(trimmed)}
	}
	return nil
}

func (a Anchor) MarshalJSON() ([]byte, error) {
	switch a.Kind {
	case AnchorString:
		return json.Marshal(a.Value)
	case AnchorObject:
		return json.Marshal(struct {
			SourceID string `json:"sourceId"`
			Type     string `json:"type,omitempty"`
			Chain    string `json:"chain,omitempty"`
		}{a.SourceID, a.Type, a.Chain})
	default:
		if a.Value == "" {
			return []byte("null"), nil
		}
		return []byte(a.Value), nil
	}
}

// IssuerRef is the document's issuer: either a profile URL or an embedded
// profile.
type IssuerRef struct {
	ID       string
	Embedded *Issuer
}

func (r *IssuerRef) UnmarshalJSON(data []byte) error {
	if isNull(data) {
		return nil
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		return json.Unmarshal(trimmed, &r.ID)
	}
	var iss Issuer
	if err := json.Unmarshal(trimmed, &iss); err != nil {
		return err
	}
	r.ID = iss.ID
	r.Embedded = &iss
	return nil
}

func (r IssuerRef) MarshalJSON() ([]byte, error) {
	if r.Embedded != nil {
		return json.Marshal(r.Embedded)
	}
	return json.Marshal(r.ID)
}

// Issuer is an issuer profile.
type Issuer struct {
	ID             string          `json:"id"`
	Type           string          `json:"type,omitempty"`
	Name           string          `json:"name,omitempty"`
	URL            string          `json:"url,omitempty"`
	Email          string          `json:"email,omitempty"`
	PublicKey      []IssuerKey     `json:"publicKey,omitempty"`
	RevocationList string          `json:"revocationList,omitempty"`
	RevocationKeys []RevocationKey `json:"revocationKeys,omitempty"`
	DIDDocument    *DIDDocument    `json:"didDocument,omitempty"`
}

// HasIdentityBinding reports whether the issuer carries a DID document.
func (i *Issuer) HasIdentityBinding() bool {
	return i != nil && i.DIDDocument != nil
}

// IssuerKey is one entry of an issuer's key history. Timestamps are RFC 3339
// and optional.
type IssuerKey struct {
	ID      string `json:"id"`
	Created string `json:"created,omitempty"`
	Revoked string `json:"revoked,omitempty"`
	Expires string `json:"expires,omitempty"`
}

// Address strips the key scheme prefix, e.g. "ecdsa-koblitz-pubkey:".
func (k IssuerKey) Address() string {
	return KeyAddress(k.ID)
}

// KeyAddress strips the scheme prefix of a key id.
func KeyAddress(id string) string {
	if i := strings.LastIndex(id, ":"); i >= 0 {
		return id[i+1:]
	}
	return id
}

// RevocationKey is one entry of an issuer's revocation keys.
type RevocationKey struct {
	Key string `json:"key"`
}

// DIDDocument is the subset of a DID document used for identity binding.
type DIDDocument struct {
	ID                 string               `json:"id"`
	VerificationMethod []VerificationMethod `json:"verificationMethod"`
	AssertionMethod    []MethodRef          `json:"assertionMethod,omitempty"`
	Authentication     []MethodRef          `json:"authentication,omitempty"`
}

// VerificationMethod is a key declared by a DID document.
type VerificationMethod struct {
	ID                  string         `json:"id"`
	Type                string         `json:"type"`
	Controller          string         `json:"controller,omitempty"`
	PublicKeyJwk        map[string]any `json:"publicKeyJwk,omitempty"`
	BlockchainAccountID string         `json:"blockchainAccountId,omitempty"`
}

// MethodRef is a relationship entry: a method id or an embedded method.
type MethodRef struct {
	ID       string
	Embedded *VerificationMethod
}

func (m *MethodRef) UnmarshalJSON(data []byte) error {
	if isNull(data) {
		return nil
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		return json.Unmarshal(trimmed, &m.ID)
	}
	var vm VerificationMethod
	if err := json.Unmarshal(trimmed, &vm); err != nil {
		return err
	}
	m.ID = vm.ID
	m.Embedded = &vm
	return nil
}

func (m MethodRef) MarshalJSON() ([]byte, error) {
	if m.Embedded != nil {
		return json.Marshal(m.Embedded)
	}
	return json.Marshal(m.ID)
}

// TransactionData is what a blockchain explorer reports for an anchoring
// transaction. RevokedAddresses lists the addresses of spent outputs; an
// issuer revokes a credential by spending the output paid to its revocation
// key.
type TransactionData struct {
	RemoteHash       string    `json:"remoteHash"`
	IssuingAddress   string    `json:"issuingAddress"`
	Time             time.Time `json:"time"`
	RevokedAddresses []string  `json:"revokedAddresses,omitempty"`
}

func isNull(data []byte) bool {
	return bytes.Equal(bytes.TrimSpace(data), []byte("null"))
}

// KeyInfo is an issuer key with its validity window parsed.
type KeyInfo struct {
	Address string
	Created *time.Time
	Revoked *time.Time
	Expires *time.Time
}

// ValidAt reports whether the key could sign at t.
func (k KeyInfo) ValidAt(t time.Time) bool {
	if k.Created != nil && t.Before(*k.Created) {
		return false
	}
	if k.Revoked != nil && !t.Before(*k.Revoked) {
		return false
	}
	if k.Expires != nil && !t.Before(*k.Expires) {
		return false
	}
	return true
}
