package hashlink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"certverify/internal/lookup/httpfetch"
	"certverify/internal/verifier/models"
	"certverify/pkg/platform/tracer"
)

// MismatchError lists the hashlinks whose resource could not be verified.
type MismatchError struct {
	Links []string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%d hashlink(s) failed verification: %s", len(e.Links), strings.Join(e.Links, ", "))
}

// Verifier implements ports.HashlinkVerifier.
type Verifier struct {
	client      *httpfetch.Client
	concurrency int
	logger      *slog.Logger
	tracer      tracer.Tracer
}

type Option func(*Verifier)

func WithConcurrency(n int) Option {
	return func(v *Verifier) {
		if n > 0 {
			v.concurrency = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(v *Verifier) {
		if logger != nil {
			v.logger = logger
		}
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(v *Verifier) {
		if t != nil {
			v.tracer = t
		}
	}
}

func NewVerifier(client *httpfetch.Client, opts ...Option) *Verifier {
	v := &Verifier{
		client:      client,
		concurrency: 4,
		logger:      slog.Default(),
		tracer:      tracer.NewNoop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

// VerifyHashlinks fetches every hashlinked resource of doc and checks its
// digest. A document without hashlinks passes.
func (v *Verifier) VerifyHashlinks(ctx context.Context, doc *models.Document) error {
	raws := Find(doc.Raw)
	if len(raws) == 0 {
		return nil
	}

	failed := make([]bool, len(raws))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.concurrency)
	for i, raw := range raws {
		g.Go(func() error {
			if err := v.verify(gctx, raw); err != nil {
				v.logger.WarnContext(gctx, "hashlink mismatch", "hashlink", raw, "error", err)
				failed[i] = true
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var mismatched []string
	for i, f := range failed {
		if f {
			mismatched = append(mismatched, raws[i])
		}
	}
	if len(mismatched) > 0 {
		return &MismatchError{Links: mismatched}
	}
	return nil
}

func (v *Verifier) verify(ctx context.Context, raw string) (err error) {
	ctx, span := v.tracer.Start(ctx, tracer.SpanHashlinkGet)
	defer func() { span.End(err) }()

	link, err := Parse(raw)
	if err != nil {
		return err
	}
	if len(link.URLs) == 0 {
		return errors.New("hashlink carries no resource url")
	}

	var errs []error
	for _, u := range link.URLs {
		span.SetAttributes(tracer.String(tracer.AttrURL, u))
		body, err := v.client.Get(ctx, u)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if link.Matches(body) {
			return nil
		}
		errs = append(errs, fmt.Errorf("content of %s does not match its digest", u))
	}
	return errors.Join(errs...)
}
