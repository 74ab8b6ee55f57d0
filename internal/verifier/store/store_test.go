package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certverify/internal/verifier/models"
	"certverify/internal/verifier/steps"
	"certverify/pkg/platform/sentinel"
)

func sampleResult(documentID string, createdAt time.Time, failed bool) *models.Result {
	r := &models.Result{
		ID:         uuid.New(),
		DocumentID: documentID,
		ProofType:  "MerkleProof2019",
		Chain:      "mocknet",
		CreatedAt:  createdAt,
		Steps: []models.StepStatus{
			{Code: steps.ComputeLocalHash, Label: "Computing local hash", Status: models.StatusSuccess},
		},
		Verdict:         models.NewVerdict(models.StatusSuccess, "ok"),
		IssuerPublicKey: "mgdWjvq4RYAAP5goUNagTRMx7Xw534S5am",
	}
	if failed {
		r.Steps = append(r.Steps, models.StepStatus{
			Code: steps.CompareHashes, Label: "Comparing hashes", Status: models.StatusFailure,
			ErrorMessage: "Computed hash does not match remote hash",
		})
		r.Verdict = models.NewVerdict(models.StatusFailure, "Computed hash does not match remote hash")
	}
	return r
}

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	older := sampleResult("doc-1", base, false)
	newer := sampleResult("doc-1", base.Add(time.Minute), true)
	other := sampleResult("doc-2", base, false)
	for _, r := range []*models.Result{older, newer, other} {
		require.NoError(t, s.Save(ctx, r))
	}

	got, err := s.FindByID(ctx, newer.ID)
	require.NoError(t, err)
	assert.Equal(t, newer.Verdict, got.Verdict)
	failed, ok := got.FailedStep()
	require.True(t, ok)
	assert.Equal(t, steps.CompareHashes, failed.Code)

	_, err = s.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	list, err := s.ListByDocument(ctx, "doc-1", 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)

	list, err = s.ListByDocument(ctx, "doc-1", 1)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.Error(t, s.Save(ctx, &models.Result{}))
}

func TestInMemoryStoreCopiesSteps(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	r := sampleResult("doc", time.Now(), false)
	require.NoError(t, s.Save(ctx, r))

	r.Steps[0].Status = models.StatusFailure
	got, err := s.FindByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, got.Steps[0].Status)
}
