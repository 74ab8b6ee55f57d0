// Package hashlink finds and checks hashlinks: content-addressed references
// ("hl:<multihash>[:<metadata>]", or an "hl" query parameter on a URL) to
// resources embedded in a credential, such as badge images.
package hashlink

import (
	"bytes"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/sha3"
)

// Multihash function codes.
const (
	CodeSHA2_256 uint64 = 0x12
	CodeSHA2_512 uint64 = 0x13
	CodeSHA3_512 uint64 = 0x14
	CodeSHA3_256 uint64 = 0x16
)

var hashFuncs = map[uint64]func() hash.Hash{
	CodeSHA2_256: sha256.New,
	CodeSHA2_512: sha512.New,
	CodeSHA3_256: sha3.New256,
	CodeSHA3_512: sha3.New512,
}

// Link is a parsed hashlink.
type Link struct {
	Raw    string
	Code   uint64
	Digest []byte
	// URLs where the resource can be fetched.
	URLs []string
}

type metadata struct {
	URLs        []string `cbor:"15,keyasint,omitempty"`
	ContentType string   `cbor:"14,keyasint,omitempty"`
}

// Parse accepts "hl:<hash>[:<metadata>]" and "<url>?hl=<hash>".
func Parse(s string) (Link, error) {
	if strings.HasPrefix(s, "hl:") {
		return parseURN(s)
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return Link{}, fmt.Errorf("hashlink %q: not a hashlink", s)
	}
	mh := u.Query().Get("hl")
	if mh == "" {
		return Link{}, fmt.Errorf("hashlink %q: no hl parameter", s)
	}
	link := Link{Raw: s}
	if link.Code, link.Digest, err = decodeMultihash(mh); err != nil {
		return Link{}, fmt.Errorf("hashlink %q: %w", s, err)
	}
	q := u.Query()
	q.Del("hl")
	u.RawQuery = q.Encode()
	link.URLs = []string{u.String()}
	return link, nil
}

func parseURN(s string) (Link, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return Link{}, fmt.Errorf("hashlink %q: expected hl:<hash>[:<metadata>]", s)
	}
	link := Link{Raw: s}
	var err error
	if link.Code, link.Digest, err = decodeMultihash(parts[1]); err != nil {
		return Link{}, fmt.Errorf("hashlink %q: %w", s, err)
	}
	if len(parts) == 3 {
		raw, err := decodeMultibase(parts[2])
		if err != nil {
			return Link{}, fmt.Errorf("hashlink %q metadata: %w", s, err)
		}
		var meta metadata
		if err := cbor.Unmarshal(raw, &meta); err != nil {
			return Link{}, fmt.Errorf("hashlink %q metadata: %w", s, err)
		}
		link.URLs = meta.URLs
	}
	return link, nil
}

func decodeMultibase(s string) ([]byte, error) {
	if len(s) < 2 || s[0] != 'z' {
		return nil, errors.New("only base58btc multibase values are supported")
	}
	return base58.Decode(s[1:])
}

func decodeMultihash(s string) (uint64, []byte, error) {
	raw, err := decodeMultibase(s)
	if err != nil {
		return 0, nil, err
	}
	code, n := binary.Uvarint(raw)
	if n <= 0 {
		return 0, nil, errors.New("invalid multihash code")
	}
	raw = raw[n:]
	size, n := binary.Uvarint(raw)
	if n <= 0 || uint64(len(raw)-n) != size {
		return 0, nil, errors.New("invalid multihash length")
	}
	if _, ok := hashFuncs[code]; !ok {
		return 0, nil, fmt.Errorf("unsupported multihash function 0x%x", code)
	}
	return code, raw[n:], nil
}

// Encode builds "hl:<multihash>" for data, with the given URLs as metadata.
func Encode(code uint64, data []byte, urls ...string) (string, error) {
	newHash, ok := hashFuncs[code]
	if !ok {
		return "", fmt.Errorf("unsupported multihash function 0x%x", code)
	}
	h := newHash()
	h.Write(data)
	digest := h.Sum(nil)

	mh := binary.AppendUvarint(nil, code)
	mh = binary.AppendUvarint(mh, uint64(len(digest)))
	mh = append(mh, digest...)

	out := "hl:z" + base58.Encode(mh)
	if len(urls) > 0 {
		meta, err := cbor.Marshal(metadata{URLs: urls})
		if err != nil {
			return "", err
		}
		out += ":z" + base58.Encode(meta)
	}
	return out, nil
}

// Matches reports whether data hashes to the link digest.
func (l Link) Matches(data []byte) bool {
	newHash, ok := hashFuncs[l.Code]
	if !ok {
		return false
	}
	h := newHash()
	h.Write(data)
	return bytes.Equal(h.Sum(nil), l.Digest)
}

var (
	urnPattern   = regexp.MustCompile(`hl:z[1-9A-HJ-NP-Za-km-z]+(?::z[1-9A-HJ-NP-Za-km-z]+)?`)
	queryPattern = regexp.MustCompile(`https?://[^\s"'<>]+[?&]hl=z[1-9A-HJ-NP-Za-km-z]+[^\s"'<>]*`)
)

// Find returns the distinct hashlinks found in any string of v, which is a
// decoded JSON value.
func Find(v any) []string {
	seen := make(map[string]struct{})
	walk(v, func(s string) {
		for _, m := range urnPattern.FindAllString(s, -1) {
			seen[m] = struct{}{}
		}
		for _, m := range queryPattern.FindAllString(s, -1) {
			seen[strings.ReplaceAll(m, "&amp;", "&")] = struct{}{}
		}
	})
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func walk(v any, visit func(string)) {
	switch t := v.(type) {
	case string:
		visit(t)
	case map[string]any:
		for _, child := range t {
			walk(child, visit)
		}
	case []any:
		for _, child := range t {
			walk(child, visit)
		}
	}
}
