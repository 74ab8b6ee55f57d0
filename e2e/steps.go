package e2e

import (
	"github.com/cucumber/godog"

	"certverify/e2e/steps/common"
	"certverify/e2e/steps/ratelimit"
	"certverify/e2e/steps/verify"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	common.RegisterSteps(ctx, tc)
	verify.RegisterSteps(ctx, &verifyContext{tc})
	ratelimit.RegisterSteps(ctx, tc)
}

// verifyContext adapts the fixtures to the verify steps.
type verifyContext struct {
	*TestContext
}

func (v *verifyContext) Fixture(name string) ([]byte, bool) {
	switch name {
	case "valid":
		return v.Fixtures.Valid, true
	case "tampered":
		return v.Fixtures.Tampered, true
	case "unsupported":
		return v.Fixtures.Unsupported, true
	}
	return nil, false
}
