package explorer

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"certverify/internal/lookup/httpfetch"
	"certverify/internal/verifier/chains"
	"certverify/internal/verifier/models"
)

var errNoOpReturn = errors.New("transaction has no OP_RETURN output")

// opReturnData extracts the payload of an OP_RETURN script given in hex.
func opReturnData(script string) (string, error) {
	raw, err := hex.DecodeString(script)
	if err != nil {
		return "", fmt.Errorf("decode script: %w", err)
	}
	if len(raw) < 2 || raw[0] != 0x6a {
		return "", errNoOpReturn
	}
	n, offset := int(raw[1]), 2
	switch {
	case raw[1] == 0x4c && len(raw) > 2: // OP_PUSHDATA1
		n, offset = int(raw[2]), 3
	case raw[1] > 0x4b:
		return "", fmt.Errorf("unsupported push opcode 0x%x", raw[1])
	}
	if len(raw) < offset+n {
		return "", errors.New("truncated OP_RETURN payload")
	}
	return hex.EncodeToString(raw[offset : offset+n]), nil
}

// Blockstream reads transactions from an Esplora API.
type Blockstream struct {
	client *httpfetch.Client
	bases  map[string]string
}

var blockstreamBases = map[string]string{
	chains.BitcoinMainnet: "https://blockstream.info/api",
	chains.BitcoinTestnet: "https://blockstream.info/testnet/api",
}

// NewBlockstream uses bases (chain code to API root) or the public endpoints
// when bases is nil.
func NewBlockstream(client *httpfetch.Client, bases map[string]string) *Blockstream {
	if bases == nil {
		bases = blockstreamBases
	}
	return &Blockstream{client: client, bases: bases}
}

func (b *Blockstream) Name() string { return "blockstream" }

func (b *Blockstream) Supports(chain chains.Chain) bool {
	_, ok := b.bases[chain.Code]
	return ok
}

type esploraTx struct {
	Vin []struct {
		Prevout struct {
			Address string `json:"scriptpubkey_address"`
		} `json:"prevout"`
	} `json:"vin"`
	Vout []struct {
		Script string `json:"scriptpubkey"`
		Type   string `json:"scriptpubkey_type"`
	} `json:"vout"`
	Status struct {
		Confirmed bool  `json:"confirmed"`
		BlockTime int64 `json:"block_time"`
	} `json:"status"`
}

func (b *Blockstream) Transaction(ctx context.Context, chain chains.Chain, txID string) (*models.TransactionData, error) {
	var tx esploraTx
	if err := b.client.GetJSON(ctx, b.bases[chain.Code]+"/tx/"+txID, &tx); err != nil {
		return nil, err
	}
	if !tx.Status.Confirmed {
		return nil, ErrUnconfirmed
	}
	if len(tx.Vin) == 0 {
		return nil, errors.New("transaction has no inputs")
	}

	for _, out := range tx.Vout {
		if out.Type != "op_return" {
			continue
		}
		data, err := opReturnData(out.Script)
		if err != nil {
			return nil, err
		}
		return &models.TransactionData{
			RemoteHash:     data,
			IssuingAddress: tx.Vin[0].Prevout.Address,
			Time:           time.Unix(tx.Status.BlockTime, 0).UTC(),
		}, nil
	}
	return nil, errNoOpReturn
}

// Blockcypher reads transactions from the BlockCypher API, which also reports
// which outputs were spent: a spent output revokes its address.
type Blockcypher struct {
	client *httpfetch.Client
	bases  map[string]string
}

var blockcypherBases = map[string]string{
	chains.BitcoinMainnet: "https://api.blockcypher.com/v1/btc/main",
	chains.BitcoinTestnet: "https://api.blockcypher.com/v1/btc/test3",
}

func NewBlockcypher(client *httpfetch.Client, bases map[string]string) *Blockcypher {
	if bases == nil {
		bases = blockcypherBases
	}
	return &Blockcypher{client: client, bases: bases}
}

func (b *Blockcypher) Name() string { return "blockcypher" }

func (b *Blockcypher) Supports(chain chains.Chain) bool {
	_, ok := b.bases[chain.Code]
	return ok
}

type blockcypherTx struct {
	Confirmations int       `json:"confirmations"`
	Confirmed     time.Time `json:"confirmed"`
	Inputs        []struct {
		Addresses []string `json:"addresses"`
	} `json:"inputs"`
	Outputs []struct {
		Script    string   `json:"script"`
		Addresses []string `json:"addresses"`
		SpentBy   string   `json:"spent_by"`
	} `json:"outputs"`
}

func (b *Blockcypher) Transaction(ctx context.Context, chain chains.Chain, txID string) (*models.TransactionData, error) {
	var tx blockcypherTx
	if err := b.client.GetJSON(ctx, b.bases[chain.Code]+"/txs/"+txID+"?limit=500", &tx); err != nil {
		return nil, err
	}
	if tx.Confirmations < 1 {
		return nil, ErrUnconfirmed
	}
	if len(tx.Inputs) == 0 || len(tx.Inputs[0].Addresses) == 0 {
		return nil, errors.New("transaction has no input address")
	}

	var (
		remoteHash string
		revoked    []string
	)
	for _, out := range tx.Outputs {
		if strings.HasPrefix(out.Script, "6a") {
			data, err := opReturnData(out.Script)
			if err != nil {
				return nil, err
			}
			remoteHash = data
			continue
		}
		if out.SpentBy != "" && len(out.Addresses) > 0 {
			revoked = append(revoked, out.Addresses[0])
		}
	}
	if remoteHash == "" {
		return nil, errNoOpReturn
	}

	return &models.TransactionData{
		RemoteHash:       remoteHash,
		IssuingAddress:   tx.Inputs[0].Addresses[0],
		Time:             tx.Confirmed.UTC(),
		RevokedAddresses: revoked,
	}, nil
}
