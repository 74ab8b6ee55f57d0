package verify

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POSTRaw(path string, body []byte) error
	GET(path string, headers map[string]string) error
	GetResponseField(field string) (interface{}, error)
	GetLastResponseBody() []byte
	SaveResult(name, id string)
	SavedResult(name string) (string, bool)
	Fixture(name string) ([]byte, bool)
}

// RegisterSteps registers credential verification steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &verifySteps{tc: tc}

	ctx.Step(`^I verify the "([^"]*)" credential$`, steps.verify)
	ctx.Step(`^I stream the verification of the "([^"]*)" credential$`, steps.stream)
	ctx.Step(`^I verify a batch of the "([^"]*)" and "([^"]*)" credentials$`, steps.batch)
	ctx.Step(`^I request the steps of the "([^"]*)" credential$`, steps.steps)
	ctx.Step(`^I save the verification id as "([^"]*)"$`, steps.saveID)
	ctx.Step(`^I fetch the verification "([^"]*)"$`, steps.fetch)

	ctx.Step(`^the failed step should be "([^"]*)"$`, steps.failedStepShouldBe)
	ctx.Step(`^the stream should end with a "([^"]*)" verdict$`, steps.streamShouldEndWith)
	ctx.Step(`^batch item (\d+) should have status "([^"]*)"$`, steps.batchItemShouldHaveStatus)
}

type verifySteps struct {
	tc TestContext
}

func (s *verifySteps) fixture(name string) ([]byte, error) {
	raw, ok := s.tc.Fixture(name)
	if !ok {
		return nil, fmt.Errorf("unknown credential fixture %q", name)
	}
	return raw, nil
}

func (s *verifySteps) verify(ctx context.Context, name string) error {
	raw, err := s.fixture(name)
	if err != nil {
		return err
	}
	return s.tc.POSTRaw("/v1/verify", raw)
}

func (s *verifySteps) stream(ctx context.Context, name string) error {
	raw, err := s.fixture(name)
	if err != nil {
		return err
	}
	return s.tc.POSTRaw("/v1/verify/stream", raw)
}

func (s *verifySteps) batch(ctx context.Context, first, second string) error {
	a, err := s.fixture(first)
	if err != nil {
		return err
	}
	b, err := s.fixture(second)
	if err != nil {
		return err
	}
	body, err := json.Marshal(map[string]any{
		"credentials": []json.RawMessage{a, b},
	})
	if err != nil {
		return err
	}
	return s.tc.POSTRaw("/v1/verify/batch", body)
}

func (s *verifySteps) steps(ctx context.Context, name string) error {
	raw, err := s.fixture(name)
	if err != nil {
		return err
	}
	return s.tc.POSTRaw("/v1/steps", raw)
}

func (s *verifySteps) saveID(ctx context.Context, name string) error {
	id, err := s.tc.GetResponseField("id")
	if err != nil {
		return err
	}
	s.tc.SaveResult(name, fmt.Sprint(id))
	return nil
}

func (s *verifySteps) fetch(ctx context.Context, name string) error {
	id, ok := s.tc.SavedResult(name)
	if !ok {
		return fmt.Errorf("no verification saved as %q", name)
	}
	return s.tc.GET("/v1/verifications/"+id, nil)
}

func (s *verifySteps) failedStepShouldBe(ctx context.Context, code string) error {
	raw, err := s.tc.GetResponseField("steps")
	if err != nil {
		return err
	}
	list, _ := raw.([]interface{})
	for _, entry := range list {
		step, _ := entry.(map[string]interface{})
		if step["status"] == "failure" {
			if step["code"] != code {
				return fmt.Errorf("expected failed step %q, got %v", code, step["code"])
			}
			return nil
		}
	}
	return fmt.Errorf("no failed step in response")
}

type streamEvent struct {
	Type   string `json:"type"`
	Result *struct {
		Verdict struct {
			Status string `json:"status"`
		} `json:"verdict"`
	} `json:"result"`
}

func (s *verifySteps) streamShouldEndWith(ctx context.Context, status string) error {
	var last streamEvent
	steps := 0
	scanner := bufio.NewScanner(bytes.NewReader(s.tc.GetLastResponseBody()))
	for scanner.Scan() {
		if len(bytes.TrimSpace(scanner.Bytes())) == 0 {
			continue
		}
		if err := json.Unmarshal(scanner.Bytes(), &last); err != nil {
			return fmt.Errorf("stream line is not JSON: %w", err)
		}
		if last.Type == "step" {
			steps++
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if steps == 0 {
		return fmt.Errorf("stream carried no step events")
	}
	if last.Type != "result" || last.Result == nil {
		return fmt.Errorf("stream did not end with a result event")
	}
	if last.Result.Verdict.Status != status {
		return fmt.Errorf("expected %q verdict, got %q", status, last.Result.Verdict.Status)
	}
	return nil
}

func (s *verifySteps) batchItemShouldHaveStatus(ctx context.Context, index int, status string) error {
	var body struct {
		Results []struct {
			Result *struct {
				Verdict struct {
					Status string `json:"status"`
				} `json:"verdict"`
			} `json:"result"`
			Error string `json:"error"`
		} `json:"results"`
	}
	if err := json.Unmarshal(s.tc.GetLastResponseBody(), &body); err != nil {
		return err
	}
	if index >= len(body.Results) {
		return fmt.Errorf("batch has %d items", len(body.Results))
	}
	item := body.Results[index]
	if item.Result == nil {
		return fmt.Errorf("batch item %d failed: %s", index, item.Error)
	}
	if item.Result.Verdict.Status != status {
		return fmt.Errorf("expected batch item %d %q, got %q", index, status, item.Result.Verdict.Status)
	}
	return nil
}
