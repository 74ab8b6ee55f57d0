// Package canonical computes the local hash of a credential: the SHA-256 of
// its URDNA2015-normalized N-Quads, with the proof members removed.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/piprate/json-gold/ld"
)

// ProofKeys are the top-level members excluded from the local hash.
var ProofKeys = []string{"signature", "proof"}

// fallbackVocab catches terms no context defines. JSON-LD expansion drops
// such terms silently, so a document could change without changing its hash.
const fallbackVocab = "http://fallback.org/"

var fallbackTerm = regexp.MustCompile(`<` + regexp.QuoteMeta(fallbackVocab) + `([^>]*)>`)

// ErrUnmappedFields is returned when the document uses terms that none of its
// contexts define.
var ErrUnmappedFields = errors.New("found unmapped fields during JSON-LD normalization")

// Hasher normalizes and hashes documents. It is safe for concurrent use when
// its loader is.
type Hasher struct {
	loader ld.DocumentLoader
}

// NewHasher builds a Hasher resolving contexts through loader. A nil loader
// resolves only the bundled contexts.
func NewHasher(loader ld.DocumentLoader) *Hasher {
	if loader == nil {
		loader = NewContextLoader(nil)
	}
	return &Hasher{loader: loader}
}

var offline = NewHasher(nil)

// LocalHash hashes raw with the bundled contexts only.
func LocalHash(raw map[string]any) (string, error) {
	return offline.LocalHash(raw)
}

// LocalHash returns the hex SHA-256 of the normalized document.
func (h *Hasher) LocalHash(raw map[string]any) (string, error) {
	nquads, err := h.Normalize(raw)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(nquads))
	return hex.EncodeToString(sum[:]), nil
}

// Normalize returns the URDNA2015 N-Quads of raw without its proof members.
// The input map is not modified.
func (h *Hasher) Normalize(raw map[string]any) (string, error) {
	if raw == nil {
		return "", errors.New("document is empty")
	}
	doc, err := stripProof(raw)
	if err != nil {
		return "", err
	}

	opts := ld.NewJsonLdOptions("")
	opts.ProcessingMode = ld.JsonLd_1_1
	opts.Algorithm = "URDNA2015"
	opts.Format = "application/n-quads"
	opts.DocumentLoader = h.loader
	opts.ExpandContext = map[string]any{"@vocab": fallbackVocab}

	out, err := ld.NewJsonLdProcessor().Normalize(doc, opts)
	if err != nil {
		return "", fmt.Errorf("normalize document: %w", err)
	}
	nquads, ok := out.(string)
	if !ok {
		return "", fmt.Errorf("normalize document: unexpected output %T", out)
	}
	if terms := unmapped(nquads); len(terms) > 0 {
		return "", fmt.Errorf("%w: %s", ErrUnmappedFields, strings.Join(terms, ", "))
	}
	return nquads, nil
}

// stripProof copies raw without the proof members. The round trip through
// encoding/json also turns json.Number values into float64, which is what
// the JSON-LD processor expects.
func stripProof(raw map[string]any) (map[string]any, error) {
	stripped := make(map[string]any, len(raw))
	for k, v := range raw {
		stripped[k] = v
	}
	for _, k := range ProofKeys {
		delete(stripped, k)
	}

	b, err := json.Marshal(stripped)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

func unmapped(nquads string) []string {
	seen := map[string]struct{}{}
	for _, m := range fallbackTerm.FindAllStringSubmatch(nquads, -1) {
		seen[m[1]] = struct{}{}
	}
	terms := make([]string, 0, len(seen))
	for t := range seen {
		terms = append(terms, t)
	}
	sort.Strings(terms)
	return terms
}
