package httpfetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"certverify/internal/lookup/cache"
	"certverify/pkg/platform/sentinel"
)

type ClientSuite struct {
	suite.Suite
	hits   atomic.Int32
	server *httptest.Server
	handle func(w http.ResponseWriter, n int32)
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientSuite))
}

func (s *ClientSuite) SetupTest() {
	s.hits.Store(0)
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := s.hits.Add(1)
		s.handle(w, n)
	}))
}

func (s *ClientSuite) TearDownTest() {
	s.server.Close()
}

func (s *ClientSuite) client(opts ...Option) *Client {
	return New(append([]Option{WithRetries(2, time.Millisecond)}, opts...)...)
}

func (s *ClientSuite) TestGetJSONDecodesBody() {
	s.handle = func(w http.ResponseWriter, _ int32) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"Example University"}`))
	}

	var out struct {
		Name string `json:"name"`
	}
	err := s.client().GetJSON(context.Background(), s.server.URL, &out)
	s.Require().NoError(err)
	s.Equal("Example University", out.Name)
}

func (s *ClientSuite) TestServerErrorsAreRetried() {
	s.handle = func(w http.ResponseWriter, n int32) {
		if n < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`ok`))
	}

	body, err := s.client().Get(context.Background(), s.server.URL)
	s.Require().NoError(err)
	s.Equal("ok", string(body))
	s.Equal(int32(3), s.hits.Load())
}

func (s *ClientSuite) TestRetriesAreBounded() {
	s.handle = func(w http.ResponseWriter, _ int32) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	_, err := s.client().Get(context.Background(), s.server.URL)
	s.Require().Error(err)
	s.True(errors.Is(err, sentinel.ErrUnavailable))
	s.Equal(int32(3), s.hits.Load(), "one attempt plus two retries")
}

func (s *ClientSuite) TestClientErrorsAreNotRetried() {
	s.handle = func(w http.ResponseWriter, _ int32) {
		w.WriteHeader(http.StatusNotFound)
	}

	_, err := s.client().Get(context.Background(), s.server.URL)
	s.Require().Error(err)
	s.True(errors.Is(err, sentinel.ErrNotFound))

	var se *StatusError
	s.Require().ErrorAs(err, &se)
	s.Equal(http.StatusNotFound, se.StatusCode)
	s.Equal(int32(1), s.hits.Load())
}

func (s *ClientSuite) TestCacheServesRepeatedGets() {
	s.handle = func(w http.ResponseWriter, _ int32) {
		_, _ = w.Write([]byte(`{"v":1}`))
	}

	c := s.client(WithCache(cache.NewMemory(), time.Minute))
	for range 3 {
		body, err := c.Get(context.Background(), s.server.URL)
		s.Require().NoError(err)
		s.JSONEq(`{"v":1}`, string(body))
	}
	s.Equal(int32(1), s.hits.Load())
}

func (s *ClientSuite) TestFreshGetsBypassTheCache() {
	s.handle = func(w http.ResponseWriter, n int32) {
		_, _ = w.Write([]byte(fmt.Sprintf(`{"v":%d}`, n)))
	}

	c := s.client(WithCache(cache.NewMemory(), time.Minute))
	cached, err := c.Get(context.Background(), s.server.URL)
	s.Require().NoError(err)
	s.JSONEq(`{"v":1}`, string(cached))

	var out struct {
		V int `json:"v"`
	}
	s.Require().NoError(c.GetJSONFresh(context.Background(), s.server.URL, &out))
	s.Equal(2, out.V)

	again, err := c.Get(context.Background(), s.server.URL)
	s.Require().NoError(err)
	s.JSONEq(`{"v":1}`, string(again), "fresh reads do not overwrite the cached body")
	s.Equal(int32(2), s.hits.Load())
}

func (s *ClientSuite) TestFailuresAreNotCached() {
	s.handle = func(w http.ResponseWriter, n int32) {
		if n == 1 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`later`))
	}

	c := s.client(WithCache(cache.NewMemory(), time.Minute))
	_, err := c.Get(context.Background(), s.server.URL)
	s.Require().Error(err)

	body, err := c.Get(context.Background(), s.server.URL)
	s.Require().NoError(err)
	s.Equal("later", string(body))
}

func TestCanceledContextStopsRetrying(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(WithRetries(5, time.Millisecond)).Get(ctx, server.URL)
	require.Error(t, err)
	assert.LessOrEqual(t, hits.Load(), int32(1))
}
