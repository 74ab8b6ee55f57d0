package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"certverify/internal/verifier/handler/mocks"
	"certverify/internal/verifier/models"
	"certverify/internal/verifier/service"
	"certverify/internal/verifier/steps"
	dErrors "certverify/pkg/domain-errors"
	"certverify/pkg/testutil"
)

type HandlerSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	service *mocks.MockService
	router  chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.service = mocks.NewMockService(s.ctrl)
	s.router = chi.NewRouter()
	New(s.service, WithBatchConcurrency(2)).Register(s.router)
}

func successResult() *models.Result {
	return &models.Result{
		ID:         uuid.New(),
		DocumentID: "urn:uuid:1",
		ProofType:  "MerkleProof2019",
		Chain:      "mocknet",
		Verdict:    models.NewVerdict(models.StatusSuccess, "This is a valid blockchain credential."),
	}
}

func (s *HandlerSuite) post(path, body string) *httptest.ResponseRecorder {
	return testutil.DoRequest(s.router, testutil.NewRequestWithBody(s.T(), http.MethodPost, path, body))
}

func (s *HandlerSuite) TestVerify() {
	s.Run("returns the result", func() {
		want := successResult()
		s.service.EXPECT().Verify(gomock.Any(), []byte(`{"id":"urn:uuid:1"}`), gomock.Nil()).Return(want, nil)

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/verify", map[string]string{"id": "urn:uuid:1"})
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatusOK(s.T(), rr)
		got := testutil.UnmarshalResponse[models.Result](s.T(), rr)
		s.Equal(want.ID, got.ID)
		s.Equal(models.StatusSuccess, got.Verdict.Status)
	})

	s.Run("empty body", func() {
		rr := s.post("/v1/verify", "")
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})

	s.Run("unsupported proof type maps to 422", func() {
		s.service.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeUnsupported, `unsupported proof type "Ed25519Signature2020"`))

		rr := s.post("/v1/verify", `{"proof":{"type":"Ed25519Signature2020"}}`)

		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnprocessableEntity, "unsupported")
	})

	s.Run("issuer unavailable maps to 503", func() {
		s.service.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, dErrors.Wrap(errors.New("dial tcp"), dErrors.CodeUnavailable, "unable to retrieve the issuer profile"))

		rr := s.post("/v1/verify", `{}`)
		testutil.AssertStatus(s.T(), rr, http.StatusServiceUnavailable)
		testutil.AssertJSONContains(s.T(), rr, "error_description", "unable to retrieve the issuer profile")
	})
}

func (s *HandlerSuite) TestVerifyStream() {
	s.Run("streams steps then the result", func() {
		want := successResult()
		s.service.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Not(gomock.Nil())).
			DoAndReturn(func(_ context.Context, _ []byte, cb models.StepCallback) (*models.Result, error) {
				cb(models.StepStatus{Code: steps.ComputeLocalHash, Status: models.StatusStarting})
				cb(models.StepStatus{Code: steps.ComputeLocalHash, Status: models.StatusSuccess})
				return want, nil
			})

		rr := s.post("/v1/verify/stream", `{}`)

		s.Equal(http.StatusOK, rr.Code)
		s.Equal("application/x-ndjson", rr.Header().Get("Content-Type"))

		var events []StreamEvent
		sc := bufio.NewScanner(rr.Body)
		for sc.Scan() {
			var ev StreamEvent
			s.Require().NoError(json.Unmarshal(sc.Bytes(), &ev))
			events = append(events, ev)
		}
		s.Require().Len(events, 3)
		s.Equal(EventStep, events[0].Type)
		s.Equal(models.StatusStarting, events[0].Step.Status)
		s.Equal(models.StatusSuccess, events[1].Step.Status)
		s.Equal(EventResult, events[2].Type)
		s.Equal(want.ID, events[2].Result.ID)
	})

	s.Run("rejection before any step is a plain error", func() {
		s.service.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeBadRequest, "document is not a valid credential"))

		rr := s.post("/v1/verify/stream", `not json`)

		s.Equal("application/json", rr.Header().Get("Content-Type"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})
}

func (s *HandlerSuite) TestVerifyBatch() {
	s.Run("reports each credential independently", func() {
		var calls atomic.Int32
		s.service.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Nil()).
			DoAndReturn(func(_ context.Context, raw []byte, _ models.StepCallback) (*models.Result, error) {
				calls.Add(1)
				if strings.Contains(string(raw), "broken") {
					return nil, dErrors.New(dErrors.CodeBadRequest, "document is not a valid credential")
				}
				return successResult(), nil
			}).Times(3)

		rr := s.post("/v1/verify/batch", `{"credentials":[{"id":"a"},{"id":"broken"},{"id":"c"}]}`)

		s.Equal(http.StatusOK, rr.Code)
		resp := testutil.UnmarshalResponse[BatchResponse](s.T(), rr)
		s.Require().Len(resp.Results, 3)
		s.EqualValues(3, calls.Load())

		for i, item := range resp.Results {
			s.Equal(i, item.Index)
		}
		s.NotNil(resp.Results[0].Result)
		s.Equal("bad_request", resp.Results[1].Error)
		s.Equal("document is not a valid credential", resp.Results[1].ErrorDescription)
		s.Nil(resp.Results[1].Result)
		s.NotNil(resp.Results[2].Result)
	})

	s.Run("empty batch", func() {
		rr := s.post("/v1/verify/batch", `{"credentials":[]}`)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
	})

	s.Run("oversized batch", func() {
		creds := make([]json.RawMessage, MaxBatchSize+1)
		for i := range creds {
			creds[i] = json.RawMessage(`{}`)
		}
		rr := s.post("/v1/verify/batch", testutil.MustMarshal(s.T(), BatchRequest{Credentials: creds}))
		testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
		testutil.AssertJSONContains(s.T(), rr, "error_description", "too many credentials in one batch")
	})
}

func (s *HandlerSuite) TestSteps() {
	report := &service.StepsReport{
		ProofType: "MerkleProof2019",
		Process:   []steps.Code{steps.CheckImagesIntegrity, steps.CheckRevokedStatus, steps.CheckExpiresDate},
		Chain:     "mocknet",
	}
	s.service.EXPECT().Steps(gomock.Any(), []byte(`{}`)).Return(report, nil)

	rr := s.post("/v1/steps", `{}`)

	s.Equal(http.StatusOK, rr.Code)
	got := testutil.UnmarshalResponse[service.StepsReport](s.T(), rr)
	s.Equal(report.Process, got.Process)
	s.Equal("mocknet", got.Chain)
}

func (s *HandlerSuite) TestGetResult() {
	s.Run("found", func() {
		want := successResult()
		s.service.EXPECT().Result(gomock.Any(), want.ID).Return(want, nil)

		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/v1/verifications/"+want.ID.String()))

		testutil.AssertStatusOK(s.T(), rr)
		testutil.AssertJSONContains(s.T(), rr, "documentId", want.DocumentID)
	})

	s.Run("not found", func() {
		id := uuid.New()
		s.service.EXPECT().Result(gomock.Any(), id).Return(nil, dErrors.New(dErrors.CodeNotFound, "verification result not found"))

		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/v1/verifications/"+id.String()))
		testutil.AssertStatus(s.T(), rr, http.StatusNotFound)
		testutil.AssertJSONHasKey(s.T(), rr, "error_description")
	})

	s.Run("invalid id", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/v1/verifications/not-a-uuid"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})
}

func (s *HandlerSuite) TestHistory() {
	s.Run("lists runs of a document", func() {
		want := successResult()
		s.service.EXPECT().History(gomock.Any(), "urn:uuid:1", 5).Return([]*models.Result{want}, nil)

		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/v1/verifications?documentId=urn:uuid:1&limit=5"))

		s.Equal(http.StatusOK, rr.Code)
		got := testutil.UnmarshalResponse[HistoryResponse](s.T(), rr)
		s.Equal("urn:uuid:1", got.DocumentID)
		s.Len(got.Results, 1)
	})

	s.Run("missing document id", func() {
		s.service.EXPECT().History(gomock.Any(), "", 0).
			Return(nil, dErrors.New(dErrors.CodeValidation, "documentId is required"))

		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/v1/verifications"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
	})

	s.Run("invalid limit", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/v1/verifications?documentId=x&limit=-1"))
		s.Equal(http.StatusBadRequest, rr.Code)
	})
}

func TestHealth(t *testing.T) {
	testutil.Given(t, "a health endpoint with two backends", func(t *testing.T) {
		h := NewHealth()
		h.Add("redis", func(context.Context) error { return nil })

		testutil.When(t, "all checks pass", func(t *testing.T) {
			rr := testutil.DoRequest(h, testutil.NewRequest(t, http.MethodGet, "/health"))
			testutil.Then(t, "it answers ok", func(t *testing.T) {
				if rr.Code != http.StatusOK {
					t.Fatalf("expected 200, got %d", rr.Code)
				}
			})
		})

		h.Add("postgres", func(context.Context) error { return errors.New("connection refused") })

		testutil.When(t, "a check fails", func(t *testing.T) {
			rr := testutil.DoRequest(h, testutil.NewRequest(t, http.MethodGet, "/health"))
			testutil.Then(t, "it reports the failing backend", func(t *testing.T) {
				if rr.Code != http.StatusServiceUnavailable {
					t.Fatalf("expected 503, got %d", rr.Code)
				}
				body := testutil.UnmarshalErrorResponse(t, rr)
				if body["postgres"] != "connection refused" || body["redis"] != "ok" {
					t.Fatalf("unexpected body %v", body)
				}
			})
		})
	})
}
