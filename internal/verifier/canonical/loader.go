package canonical

import (
	"bytes"
	"embed"
	"fmt"
	"sync"

	"github.com/piprate/json-gold/ld"
)

// CredentialsV1 is the W3C Verifiable Credentials v1 context.
const CredentialsV1 = "https://www.w3.org/2018/credentials/v1"

//go:embed contexts/*.jsonld
var bundledFS embed.FS

var bundled = map[string]string{
	CredentialsV1: "contexts/credentials-v1.jsonld",
}

// ContextLoader resolves JSON-LD contexts from a preloaded set, then from
// next. Documents returned by next are kept for later calls.
type ContextLoader struct {
	mu   sync.RWMutex
	docs map[string]any
	next ld.DocumentLoader
}

// NewContextLoader preloads the bundled contexts. With a nil next, any other
// context fails to load.
func NewContextLoader(next ld.DocumentLoader) *ContextLoader {
	l := &ContextLoader{docs: make(map[string]any, len(bundled)), next: next}
	for url, file := range bundled {
		raw, err := bundledFS.ReadFile(file)
		if err != nil {
			panic(fmt.Sprintf("bundled context %s: %v", file, err))
		}
		doc, err := ld.DocumentFromReader(bytes.NewReader(raw))
		if err != nil {
			panic(fmt.Sprintf("bundled context %s: %v", file, err))
		}
		l.docs[url] = doc
	}
	return l
}

// Add registers doc as the context served at url.
func (l *ContextLoader) Add(url string, doc any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.docs[url] = doc
}

// LoadDocument implements ld.DocumentLoader.
func (l *ContextLoader) LoadDocument(url string) (*ld.RemoteDocument, error) {
	l.mu.RLock()
	doc, ok := l.docs[url]
	l.mu.RUnlock()
	if ok {
		return &ld.RemoteDocument{DocumentURL: url, Document: doc}, nil
	}

	if l.next == nil {
		return nil, ld.NewJsonLdError(ld.LoadingDocumentFailed,
			fmt.Sprintf("context %s is not available offline", url))
	}
	remote, err := l.next.LoadDocument(url)
	if err != nil {
		return nil, err
	}
	l.Add(url, remote.Document)
	return remote, nil
}
