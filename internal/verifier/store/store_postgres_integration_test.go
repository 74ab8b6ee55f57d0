//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"certverify/internal/verifier/steps"
	"certverify/pkg/platform/sentinel"
	"certverify/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateAll(context.Background()))
}

func (s *PostgresStoreSuite) TestSaveAndFind() {
	ctx := context.Background()
	r := sampleResult("urn:uuid:pg-1", time.Now().UTC().Truncate(time.Microsecond), true)
	s.Require().NoError(s.store.Save(ctx, r))
	// duplicate saves are ignored
	s.Require().NoError(s.store.Save(ctx, r))

	got, err := s.store.FindByID(ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(r.DocumentID, got.DocumentID)
	s.Equal(r.Verdict, got.Verdict)
	s.Require().Len(got.Steps, 2)
	s.Equal(steps.CompareHashes, got.Steps[1].Code)
	s.True(r.CreatedAt.Equal(got.CreatedAt))
	s.Equal(r.IssuerPublicKey, got.IssuerPublicKey)

	_, err = s.store.FindByID(ctx, uuid.New())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestListAndCount() {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Microsecond)
	s.Require().NoError(s.store.Save(ctx, sampleResult("doc", base, false)))
	s.Require().NoError(s.store.Save(ctx, sampleResult("doc", base.Add(time.Second), true)))
	s.Require().NoError(s.store.Save(ctx, sampleResult("other", base, true)))

	list, err := s.store.ListByDocument(ctx, "doc", 10)
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal("failure", string(list[0].Verdict.Status))

	counts, err := s.store.CountFailuresByStep(ctx)
	s.Require().NoError(err)
	s.Equal(map[string]int{"compareHashes": 2}, counts)
}
