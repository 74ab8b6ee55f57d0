// Package chains lists the blockchains a credential may be anchored to.
package chains

import (
	"fmt"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
)

// Chain describes one anchoring network.
type Chain struct {
	Code                   string   `toml:"code" json:"code"`
	Name                   string   `toml:"name" json:"name"`
	Signature              string   `toml:"signature" json:"signatureValue"`
	Test                   bool     `toml:"test" json:"test"`
	Mock                   bool     `toml:"mock" json:"-"`
	TransactionTemplate    string   `toml:"transaction_template" json:"-"`
	RawTransactionTemplate string   `toml:"raw_transaction_template" json:"-"`
	Explorers              []string `toml:"explorers" json:"-"`
}

// TransactionLink renders the explorer link for txID, "" when the chain has no
// template.
func (c Chain) TransactionLink(txID string) string {
	return render(c.TransactionTemplate, txID)
}

// RawTransactionLink renders the raw transaction link for txID.
func (c Chain) RawTransactionLink(txID string) string {
	return render(c.RawTransactionTemplate, txID)
}

func render(tpl, txID string) string {
	if tpl == "" || txID == "" {
		return ""
	}
	return strings.ReplaceAll(tpl, "{transaction_id}", txID)
}

const (
	BitcoinMainnet  = "bitcoin"
	BitcoinTestnet  = "testnet"
	BitcoinRegtest  = "regtest"
	EthereumMainnet = "ethmain"
	EthereumRopsten = "ethropst"
	EthereumSepolia = "ethsepolia"
	Mocknet         = "mocknet"
)

var builtin = []Chain{
	{
		Code: BitcoinMainnet, Name: "Bitcoin", Signature: "bitcoinMainnet",
		TransactionTemplate:    "https://blockchain.info/tx/{transaction_id}",
		RawTransactionTemplate: "https://blockchain.info/rawtx/{transaction_id}",
	},
	{
		Code: BitcoinTestnet, Name: "Bitcoin Testnet", Signature: "bitcoinTestnet", Test: true,
		TransactionTemplate:    "https://testnet.blockchain.info/tx/{transaction_id}",
		RawTransactionTemplate: "https://testnet.blockchain.info/rawtx/{transaction_id}",
	},
	{Code: BitcoinRegtest, Name: "Bitcoin Regtest", Signature: "bitcoinRegtest", Test: true, Mock: true},
	{
		Code: EthereumMainnet, Name: "Ethereum", Signature: "ethereumMainnet",
		TransactionTemplate:    "https://etherscan.io/tx/{transaction_id}",
		RawTransactionTemplate: "https://etherscan.io/getRawTx?tx={transaction_id}",
	},
	{
		Code: EthereumRopsten, Name: "Ethereum Testnet", Signature: "ethereumRopsten", Test: true,
		TransactionTemplate:    "https://ropsten.etherscan.io/tx/{transaction_id}",
		RawTransactionTemplate: "https://ropsten.etherscan.io/getRawTx?tx={transaction_id}",
	},
	{
		Code: EthereumSepolia, Name: "Ethereum Sepolia", Signature: "ethereumSepolia", Test: true,
		TransactionTemplate:    "https://sepolia.etherscan.io/tx/{transaction_id}",
		RawTransactionTemplate: "https://sepolia.etherscan.io/getRawTx?tx={transaction_id}",
	},
	{Code: Mocknet, Name: "Mocknet", Signature: "mockchain", Test: true, Mock: true},
}

// blinkNetworks maps the "<ledger>:<network>" part of a blink anchor to a
// chain code.
var blinkNetworks = map[string]string{
	"btc:mainnet":  BitcoinMainnet,
	"btc:testnet":  BitcoinTestnet,
	"btc:regtest":  BitcoinRegtest,
	"eth:mainnet":  EthereumMainnet,
	"eth:ropsten":  EthereumRopsten,
	"eth:sepolia":  EthereumSepolia,
	"mock:mocknet": Mocknet,
}

// Registry resolves chains by code or signature value. The zero value is not
// usable; call NewRegistry.
type Registry struct {
	mu     sync.RWMutex
	chains map[string]Chain
}

// NewRegistry returns a registry holding the built-in chains.
func NewRegistry() *Registry {
	r := &Registry{chains: make(map[string]Chain, len(builtin))}
	for _, c := range builtin {
		r.chains[c.Code] = c
	}
	return r
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default is the process-wide registry of built-in chains.
func Default() *Registry {
	defaultOnce.Do(func() { defaultRegistry = NewRegistry() })
	return defaultRegistry
}

// Register adds or replaces a chain.
func (r *Registry) Register(c Chain) error {
	if c.Code == "" {
		return fmt.Errorf("chain code is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chains[c.Code] = c
	return nil
}

// ByCode returns the chain with the given code.
func (r *Registry) ByCode(code string) (Chain, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.chains[code]
	return c, ok
}

// BySignature resolves the chain named in a v2 anchor (e.g. "bitcoinMainnet").
func (r *Registry) BySignature(sig string) (Chain, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.chains {
		if strings.EqualFold(c.Signature, sig) {
			return c, true
		}
	}
	return Chain{}, false
}

// ByBlink resolves the chain of a "blink:<ledger>:<network>:<txid>" anchor.
func (r *Registry) ByBlink(anchor string) (Chain, bool) {
	parts := strings.Split(anchor, ":")
	if len(parts) < 4 || parts[0] != "blink" {
		return Chain{}, false
	}
	code, ok := blinkNetworks[parts[1]+":"+parts[2]]
	if !ok {
		return Chain{}, false
	}
	return r.ByCode(code)
}

// IsMockChain reports whether c is a test chain that anchors nothing real.
func IsMockChain(c *Chain) bool {
	return c != nil && c.Mock
}

type chainsFile struct {
	Chains []Chain `toml:"chain"`
}

// LoadFile registers the chains declared in a TOML file:
//
//	[[chain]]
//	code = "ethholesky"
//	name = "Ethereum Holesky"
//	signature = "ethereumHolesky"
//	test = true
//	transaction_template = "https://holesky.etherscan.io/tx/{transaction_id}"
func (r *Registry) LoadFile(path string) (int, error) {
	var f chainsFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return 0, fmt.Errorf("decode chains file %s: %w", path, err)
	}
	for _, c := range f.Chains {
		if err := r.Register(c); err != nil {
			return 0, fmt.Errorf("chains file %s: %w", path, err)
		}
	}
	return len(f.Chains), nil
}
