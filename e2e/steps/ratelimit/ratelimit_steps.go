package ratelimit

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	GET(path string, headers map[string]string) error
	POSTRaw(path string, body []byte) error
	GetLastResponseStatus() int
	GetLastResponseHeader(name string) string
}

// RegisterSteps registers rate limiting steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &ratelimitSteps{tc: tc}

	ctx.Step(`^I send (\d+) step requests with an empty credential$`, steps.sendRequests)
	ctx.Step(`^at least one response should be rate limited$`, steps.atLeastOneLimited)
	ctx.Step(`^the rate limited response should carry "([^"]*)"$`, steps.limitedCarries)
}

type ratelimitSteps struct {
	tc         TestContext
	limited    int
	retryAfter string
}

// sendRequests uses a cheap request that fails validation after the limiter.
func (s *ratelimitSteps) sendRequests(ctx context.Context, n int) error {
	for range n {
		if err := s.tc.POSTRaw("/v1/steps", []byte(`{}`)); err != nil {
			return err
		}
		if s.tc.GetLastResponseStatus() == 429 {
			s.limited++
			s.retryAfter = s.tc.GetLastResponseHeader("Retry-After")
		}
	}
	return nil
}

func (s *ratelimitSteps) atLeastOneLimited(ctx context.Context) error {
	if s.limited == 0 {
		return fmt.Errorf("no request was rate limited")
	}
	return nil
}

func (s *ratelimitSteps) limitedCarries(ctx context.Context, header string) error {
	if header == "Retry-After" && s.retryAfter == "" {
		return fmt.Errorf("rate limited response had no Retry-After")
	}
	return nil
}
