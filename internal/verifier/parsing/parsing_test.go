package parsing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certverify/internal/verifier/models"
)

func TestTransactionID(t *testing.T) {
	t.Run("object anchor uses sourceId", func(t *testing.T) {
		id, err := TransactionID(models.ObjectAnchor("tx123", "BTCOpReturn", "bitcoinMainnet"))
		require.NoError(t, err)
		assert.Equal(t, "tx123", id)
	})

	t.Run("string anchor uses last segment", func(t *testing.T) {
		id, err := TransactionID(models.StringAnchor("chain:mainnet:tx456"))
		require.NoError(t, err)
		assert.Equal(t, "tx456", id)
	})

	t.Run("unsupported shape is malformed", func(t *testing.T) {
		_, err := TransactionID(models.Anchor{Kind: models.AnchorUnsupported, Value: "42"})
		require.Error(t, err)
		assert.True(t, models.IsKind(err, models.KindMalformedAnchor))
	})

	t.Run("object without sourceId is malformed", func(t *testing.T) {
		_, err := TransactionID(models.ObjectAnchor("", "BTCOpReturn", ""))
		assert.True(t, models.IsKind(err, models.KindMalformedAnchor))
	})

	t.Run("receipt without anchors is malformed", func(t *testing.T) {
		_, err := ReceiptTransactionID(models.Receipt{})
		assert.True(t, models.IsKind(err, models.KindMalformedAnchor))
	})

	t.Run("receipt uses first anchor", func(t *testing.T) {
		id, err := ReceiptTransactionID(models.Receipt{Anchors: []models.Anchor{
			models.StringAnchor("blink:btc:testnet:first"),
			models.StringAnchor("blink:btc:testnet:second"),
		}})
		require.NoError(t, err)
		assert.Equal(t, "first", id)
	})
}

func TestRevocationKey(t *testing.T) {
	issuer := &models.Issuer{RevocationKeys: []models.RevocationKey{{Key: "k1"}, {Key: "k2"}}}
	assert.Equal(t, "k1", RevocationKey(issuer))
	assert.Equal(t, NoRevocationKey, RevocationKey(&models.Issuer{}))
	assert.Equal(t, NoRevocationKey, RevocationKey(nil))
}

func TestBlinkNetwork(t *testing.T) {
	network, ok := BlinkNetwork(models.StringAnchor("blink:eth:sepolia:0xabc"))
	require.True(t, ok)
	assert.Equal(t, "eth:sepolia", network)

	_, ok = BlinkNetwork(models.ObjectAnchor("tx", "", ""))
	assert.False(t, ok)
}

func TestIssuerKeys(t *testing.T) {
	issuer := &models.Issuer{PublicKey: []models.IssuerKey{
		{ID: "ecdsa-koblitz-pubkey:1Addr", Created: "2017-01-01T00:00:00Z", Revoked: "2018-01-01T00:00:00Z"},
		{ID: "ecdsa-koblitz-pubkey:1Other"},
	}}

	keys, err := IssuerKeys(issuer)
	require.NoError(t, err)
	require.Len(t, keys, 2)

	k := keys["1Addr"]
	require.NotNil(t, k.Created)
	require.NotNil(t, k.Revoked)
	assert.True(t, k.ValidAt(time.Date(2017, 6, 1, 0, 0, 0, 0, time.UTC)))
	assert.False(t, k.ValidAt(time.Date(2018, 6, 1, 0, 0, 0, 0, time.UTC)))
	assert.Nil(t, keys["1Other"].Expires)

	_, err = IssuerKeys(&models.Issuer{PublicKey: []models.IssuerKey{{ID: "x", Created: "yesterday"}}})
	assert.Error(t, err)

	_, err = IssuerKeys(&models.Issuer{})
	assert.Error(t, err)
}
