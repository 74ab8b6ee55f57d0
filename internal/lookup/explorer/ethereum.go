package explorer

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"certverify/internal/lookup/httpfetch"
	"certverify/internal/verifier/chains"
	"certverify/internal/verifier/models"
)

// Etherscan reads transactions through the Etherscan JSON-RPC proxy. Two
// calls are needed: the transaction, then its block for the timestamp.
type Etherscan struct {
	client *httpfetch.Client
	bases  map[string]string
	apiKey string
}

var etherscanBases = map[string]string{
	chains.EthereumMainnet: "https://api.etherscan.io/api",
	chains.EthereumRopsten: "https://api-ropsten.etherscan.io/api",
	chains.EthereumSepolia: "https://api-sepolia.etherscan.io/api",
}

func NewEtherscan(client *httpfetch.Client, bases map[string]string, apiKey string) *Etherscan {
	if bases == nil {
		bases = etherscanBases
	}
	return &Etherscan{client: client, bases: bases, apiKey: apiKey}
}

func (e *Etherscan) Name() string { return "etherscan" }

func (e *Etherscan) Supports(chain chains.Chain) bool {
	_, ok := e.bases[chain.Code]
	return ok
}

type etherscanTx struct {
	Result *struct {
		From        string `json:"from"`
		Input       string `json:"input"`
		BlockNumber string `json:"blockNumber"`
	} `json:"result"`
}

type etherscanBlock struct {
	Result *struct {
		Timestamp string `json:"timestamp"`
	} `json:"result"`
}

func (e *Etherscan) endpoint(chain chains.Chain, params url.Values) string {
	params.Set("module", "proxy")
	if e.apiKey != "" {
		params.Set("apikey", e.apiKey)
	}
	return e.bases[chain.Code] + "?" + params.Encode()
}

func (e *Etherscan) Transaction(ctx context.Context, chain chains.Chain, txID string) (*models.TransactionData, error) {
	var tx etherscanTx
	txURL := e.endpoint(chain, url.Values{
		"action": {"eth_getTransactionByHash"},
		"txhash": {txID},
	})
	if err := e.client.GetJSON(ctx, txURL, &tx); err != nil {
		return nil, err
	}
	if tx.Result == nil {
		return nil, errors.New("transaction not found")
	}
	if tx.Result.BlockNumber == "" {
		return nil, ErrUnconfirmed
	}

	var block etherscanBlock
	blockURL := e.endpoint(chain, url.Values{
		"action":  {"eth_getBlockByNumber"},
		"tag":     {tx.Result.BlockNumber},
		"boolean": {"false"},
	})
	if err := e.client.GetJSON(ctx, blockURL, &block); err != nil {
		return nil, err
	}
	if block.Result == nil {
		return nil, errors.New("block not found")
	}
	ts, err := parseHexInt(block.Result.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("block timestamp: %w", err)
	}

	return &models.TransactionData{
		RemoteHash:     strings.TrimPrefix(strings.ToLower(tx.Result.Input), "0x"),
		IssuingAddress: strings.ToLower(tx.Result.From),
		Time:           time.Unix(ts, 0).UTC(),
	}, nil
}

func parseHexInt(s string) (int64, error) {
	return strconv.ParseInt(strings.TrimPrefix(s, "0x"), 16, 64)
}
