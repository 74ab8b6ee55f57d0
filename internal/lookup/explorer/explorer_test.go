package explorer

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"certverify/internal/verifier/chains"
	"certverify/internal/verifier/models"
	"certverify/pkg/platform/circuit"
)

type stubExplorer struct {
	name   string
	chains map[string]bool
	data   *models.TransactionData
	err    error
	delay  time.Duration
	calls  atomic.Int32
}

func (s *stubExplorer) Name() string { return s.name }

func (s *stubExplorer) Supports(chain chains.Chain) bool { return s.chains[chain.Code] }

func (s *stubExplorer) Transaction(ctx context.Context, _ chains.Chain, _ string) (*models.TransactionData, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.data, s.err
}

func btcStub(name string, data *models.TransactionData, err error) *stubExplorer {
	return &stubExplorer{name: name, chains: map[string]bool{chains.BitcoinMainnet: true}, data: data, err: err}
}

type LookupSuite struct {
	suite.Suite
	bitcoin chains.Chain
	tx      *models.TransactionData
}

func TestLookupSuite(t *testing.T) {
	suite.Run(t, new(LookupSuite))
}

func (s *LookupSuite) SetupTest() {
	c, ok := chains.NewRegistry().ByCode(chains.BitcoinMainnet)
	s.Require().True(ok)
	s.bitcoin = c
	s.tx = &models.TransactionData{RemoteHash: "abc", IssuingAddress: "1Issuer"}
}

func (s *LookupSuite) TestPrefersFirstExplorerInOrder() {
	slow := btcStub("slow", s.tx, nil)
	slow.delay = 20 * time.Millisecond
	fast := btcStub("fast", &models.TransactionData{RemoteHash: "ABC", IssuingAddress: "1issuer"}, nil)

	got, err := New([]Explorer{slow, fast}).LookupTransaction(context.Background(), s.bitcoin, "tx")
	s.Require().NoError(err)
	s.Same(s.tx, got)
}

func (s *LookupSuite) TestFallsBackWhenAnExplorerFails() {
	broken := btcStub("broken", nil, errors.New("boom"))
	ok := btcStub("ok", s.tx, nil)

	got, err := New([]Explorer{broken, ok}).LookupTransaction(context.Background(), s.bitcoin, "tx")
	s.Require().NoError(err)
	s.Same(s.tx, got)
}

func (s *LookupSuite) TestAllExplorersFail() {
	a := btcStub("a", nil, errors.New("timeout"))
	b := btcStub("b", nil, ErrUnconfirmed)

	_, err := New([]Explorer{a, b}).LookupTransaction(context.Background(), s.bitcoin, "tx")
	s.Require().Error(err)
	s.ErrorIs(err, ErrUnconfirmed)
	s.Contains(err.Error(), "a: timeout")
}

func (s *LookupSuite) TestDisagreementIsAnError() {
	a := btcStub("a", s.tx, nil)
	b := btcStub("b", &models.TransactionData{RemoteHash: "def", IssuingAddress: "1Issuer"}, nil)

	_, err := New([]Explorer{a, b}).LookupTransaction(context.Background(), s.bitcoin, "tx")
	s.ErrorIs(err, ErrDisagreement)
}

func (s *LookupSuite) TestMinAnswers() {
	a := btcStub("a", s.tx, nil)
	b := btcStub("b", nil, errors.New("down"))

	_, err := New([]Explorer{a, b}, WithMinAnswers(2)).LookupTransaction(context.Background(), s.bitcoin, "tx")
	s.Require().Error(err)
}

func (s *LookupSuite) TestNoExplorerForChain() {
	eth, ok := chains.NewRegistry().ByCode(chains.EthereumMainnet)
	s.Require().True(ok)

	_, err := New([]Explorer{btcStub("a", s.tx, nil)}).LookupTransaction(context.Background(), eth, "tx")
	s.ErrorIs(err, ErrNoExplorer)
}

func (s *LookupSuite) TestChainRestrictsExplorers() {
	a := btcStub("a", nil, errors.New("should not be called"))
	b := btcStub("b", s.tx, nil)
	restricted := s.bitcoin
	restricted.Explorers = []string{"B"}

	got, err := New([]Explorer{a, b}).LookupTransaction(context.Background(), restricted, "tx")
	s.Require().NoError(err)
	s.Same(s.tx, got)
	s.Equal(int32(0), a.calls.Load())
}

func (s *LookupSuite) TestBreakerSkipsFailingExplorer() {
	broken := btcStub("broken", nil, errors.New("502"))
	ok := btcStub("ok", s.tx, nil)
	l := New([]Explorer{broken, ok}, WithBreakerOptions(
		circuit.WithFailureThreshold(2),
		circuit.WithCooldown(time.Hour),
	))

	for range 4 {
		_, err := l.LookupTransaction(context.Background(), s.bitcoin, "tx")
		s.Require().NoError(err)
	}

	b, found := l.Breaker("broken")
	s.Require().True(found)
	s.True(b.IsOpen())
	s.Equal(int32(2), broken.calls.Load())
}
