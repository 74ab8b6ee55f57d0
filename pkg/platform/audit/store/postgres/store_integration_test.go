//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"

	audit "certverify/pkg/platform/audit"
	txcontext "certverify/pkg/platform/tx"
	"certverify/pkg/testutil/containers"
)

type AuditStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *Store
}

func TestAuditStoreSuite(t *testing.T) {
	suite.Run(t, new(AuditStoreSuite))
}

func (s *AuditStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = New(s.postgres.DB)
}

func (s *AuditStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateAll(context.Background()))
}

func (s *AuditStoreSuite) TestEmitAndList() {
	ctx := context.Background()
	s.Require().NoError(s.store.Emit(ctx, audit.Event{
		Action: audit.ActionVerified, DocumentID: "urn:uuid:1", ResultID: "r-1", Status: "success",
	}))
	s.Require().NoError(s.store.Emit(ctx, audit.Event{
		Action: audit.ActionRejected, DocumentID: "urn:uuid:1", Reason: "malformed_document",
	}))
	s.Require().NoError(s.store.Emit(ctx, audit.Event{Action: audit.ActionVerified, DocumentID: "urn:uuid:2"}))

	events, err := s.store.ListByDocument(ctx, "urn:uuid:1")
	s.Require().NoError(err)
	s.Require().Len(events, 2)
	s.Equal(audit.ActionVerified, events[0].Action)
	s.Equal("r-1", events[0].ResultID)
	s.Equal(audit.SeverityInfo, events[0].Severity)
	s.Equal(audit.SeverityWarning, events[1].Severity)
	s.False(events[0].Timestamp.IsZero())
}

func (s *AuditStoreSuite) TestEmitJoinsTransaction() {
	ctx := context.Background()
	runner := txcontext.NewSQL(s.postgres.DB)

	err := runner.RunInTx(ctx, func(txCtx context.Context) error {
		s.Require().NoError(s.store.Emit(txCtx, audit.Event{Action: audit.ActionVerified, DocumentID: "rolled-back"}))
		return errors.New("abort")
	})
	s.Require().Error(err)

	err = runner.RunInTx(ctx, func(txCtx context.Context) error {
		return s.store.Emit(txCtx, audit.Event{Action: audit.ActionVerified, DocumentID: "committed"})
	})
	s.Require().NoError(err)

	events, err := s.store.ListByDocument(ctx, "rolled-back")
	s.Require().NoError(err)
	s.Empty(events)

	events, err = s.store.ListByDocument(ctx, "committed")
	s.Require().NoError(err)
	s.Len(events, 1)
}
