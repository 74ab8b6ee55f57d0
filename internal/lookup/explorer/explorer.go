// Package explorer looks up anchoring transactions through public block
// explorer APIs.
package explorer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"certverify/internal/lookup/httpfetch"
	"certverify/internal/verifier/chains"
	"certverify/internal/verifier/models"
	"certverify/pkg/platform/circuit"
	"certverify/pkg/platform/tracer"
)

var (
	ErrNoExplorer   = errors.New("no explorer supports this chain")
	ErrCircuitOpen  = errors.New("explorer circuit open")
	ErrDisagreement = errors.New("explorers returned different transaction data")
	ErrUnconfirmed  = errors.New("transaction is not confirmed yet")
)

// Explorer reads one transaction from one explorer API.
type Explorer interface {
	Name() string
	Supports(chain chains.Chain) bool
	Transaction(ctx context.Context, chain chains.Chain, txID string) (*models.TransactionData, error)
}

// Lookup queries every explorer supporting a chain concurrently and returns
// the answer of the first explorer, in configuration order, that succeeded.
// It implements ports.TransactionLookup.
type Lookup struct {
	explorers  []Explorer
	breakers   map[string]*circuit.Breaker
	minAnswers int
	logger     *slog.Logger
	tracer     tracer.Tracer
}

type Option func(*Lookup)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Lookup) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(l *Lookup) {
		if t != nil {
			l.tracer = t
		}
	}
}

// WithMinAnswers requires n explorers to agree before a transaction is
// trusted. Values below 1 are ignored.
func WithMinAnswers(n int) Option {
	return func(l *Lookup) {
		if n > 0 {
			l.minAnswers = n
		}
	}
}

// WithBreakerOptions configures the per-explorer circuit breakers.
func WithBreakerOptions(opts ...circuit.Option) Option {
	return func(l *Lookup) {
		for name := range l.breakers {
			l.breakers[name] = circuit.New(name, opts...)
		}
	}
}

func New(explorers []Explorer, opts ...Option) *Lookup {
	l := &Lookup{
		explorers:  explorers,
		breakers:   make(map[string]*circuit.Breaker, len(explorers)),
		minAnswers: 1,
		logger:     slog.Default(),
		tracer:     tracer.NewNoop(),
	}
	for _, e := range explorers {
		l.breakers[e.Name()] = circuit.New(e.Name(), circuit.WithFailureThreshold(3), circuit.WithCooldown(time.Minute))
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// Breaker exposes the breaker guarding explorer name.
func (l *Lookup) Breaker(name string) (*circuit.Breaker, bool) {
	b, ok := l.breakers[name]
	return b, ok
}

func (l *Lookup) candidates(chain chains.Chain) []Explorer {
	var allowed map[string]bool
	if len(chain.Explorers) > 0 {
		allowed = make(map[string]bool, len(chain.Explorers))
		for _, name := range chain.Explorers {
			allowed[strings.ToLower(name)] = true
		}
	}
	var out []Explorer
	for _, e := range l.explorers {
		if allowed != nil && !allowed[strings.ToLower(e.Name())] {
			continue
		}
		if e.Supports(chain) {
			out = append(out, e)
		}
	}
	return out
}

type answer struct {
	data *models.TransactionData
	err  error
}

func (l *Lookup) LookupTransaction(ctx context.Context, chain chains.Chain, txID string) (*models.TransactionData, error) {
	explorers := l.candidates(chain)
	if len(explorers) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoExplorer, chain.Code)
	}

	answers := make([]answer, len(explorers))
	g, gctx := errgroup.WithContext(ctx)
	for i, e := range explorers {
		g.Go(func() error {
			data, err := l.query(gctx, e, chain, txID)
			answers[i] = answer{data: data, err: err}
			// failures stay per explorer; the group is never cancelled
			return nil
		})
	}
	_ = g.Wait()

	var (
		first *models.TransactionData
		count int
		errs  []error
	)
	for i, a := range answers {
		if a.err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", explorers[i].Name(), a.err))
			continue
		}
		count++
		if first == nil {
			first = a.data
			continue
		}
		if !agree(first, a.data) {
			l.logger.WarnContext(ctx, "explorers disagree",
				"chain", chain.Code, "explorer", explorers[i].Name(), "transaction", txID)
			return nil, ErrDisagreement
		}
	}

	if first == nil || count < l.minAnswers {
		if len(errs) == 0 {
			errs = append(errs, fmt.Errorf("%d of %d required explorers answered", count, l.minAnswers))
		}
		return nil, errors.Join(errs...)
	}
	return first, nil
}

func (l *Lookup) query(ctx context.Context, e Explorer, chain chains.Chain, txID string) (data *models.TransactionData, err error) {
	breaker := l.breakers[e.Name()]
	if breaker != nil && !breaker.Allow() {
		return nil, ErrCircuitOpen
	}

	ctx, span := l.tracer.Start(ctx, tracer.SpanExplorerTx,
		tracer.String(tracer.AttrExplorer, e.Name()),
		tracer.String(tracer.AttrChain, chain.Code),
	)
	defer func() { span.End(err) }()

	data, err = e.Transaction(ctx, chain, txID)
	if breaker == nil {
		return data, err
	}
	if err != nil {
		if _, change := breaker.RecordFailure(); change.Opened {
			l.logger.WarnContext(ctx, "explorer circuit opened", "explorer", e.Name(), "error", err)
		}
		return nil, err
	}
	if _, change := breaker.RecordSuccess(); change.Closed {
		l.logger.InfoContext(ctx, "explorer circuit closed", "explorer", e.Name())
	}
	return data, nil
}

func agree(a, b *models.TransactionData) bool {
	return strings.EqualFold(a.RemoteHash, b.RemoteHash) &&
		strings.EqualFold(a.IssuingAddress, b.IssuingAddress)
}

// Defaults returns the public explorers in priority order.
func Defaults(client *httpfetch.Client, etherscanKey string) []Explorer {
	return []Explorer{
		NewBlockcypher(client, nil),
		NewBlockstream(client, nil),
		NewEtherscan(client, nil, etherscanKey),
	}
}
