// Package e2e drives a running certverify server through Gherkin scenarios.
package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Fixtures are credentials prepared before the suite starts.
type Fixtures struct {
	Valid       []byte
	Tampered    []byte
	Unsupported []byte
}

// TestContext holds the HTTP client and the last response of a scenario.
type TestContext struct {
	BaseURL     string
	AccessToken string
	Fixtures    Fixtures

	client       *http.Client
	lastStatus   int
	lastHeaders  http.Header
	lastBody     []byte
	savedResults map[string]string
}

func NewTestContext(baseURL, token string, fixtures Fixtures) *TestContext {
	return &TestContext{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		AccessToken:  token,
		Fixtures:     fixtures,
		client:       &http.Client{Timeout: 30 * time.Second},
		savedResults: make(map[string]string),
	}
}

// POSTRaw sends body unchanged as JSON.
func (tc *TestContext) POSTRaw(path string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, tc.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return tc.do(req)
}

func (tc *TestContext) POST(path string, body interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return tc.POSTRaw(path, raw)
}

func (tc *TestContext) GET(path string, headers map[string]string) error {
	req, err := http.NewRequest(http.MethodGet, tc.BaseURL+path, nil)
	if err != nil {
		return err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return tc.do(req)
}

func (tc *TestContext) do(req *http.Request) error {
	if tc.AccessToken != "" && req.Header.Get("Authorization") == "" {
		req.Header.Set("Authorization", "Bearer "+tc.AccessToken)
	}
	resp, err := tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	tc.lastStatus = resp.StatusCode
	tc.lastHeaders = resp.Header
	tc.lastBody = body
	return nil
}

func (tc *TestContext) GetLastResponseStatus() int {
	return tc.lastStatus
}

func (tc *TestContext) GetLastResponseBody() []byte {
	return tc.lastBody
}

func (tc *TestContext) GetLastResponseHeader(name string) string {
	return tc.lastHeaders.Get(name)
}

// GetResponseField reads a dotted path such as "verdict.status" from the
// last JSON response.
func (tc *TestContext) GetResponseField(field string) (interface{}, error) {
	var doc interface{}
	if err := json.Unmarshal(tc.lastBody, &doc); err != nil {
		return nil, fmt.Errorf("response is not JSON: %w", err)
	}
	cur := doc
	for _, part := range strings.Split(field, ".") {
		obj, ok := cur.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("field %q: %q is not an object", field, part)
		}
		cur, ok = obj[part]
		if !ok {
			return nil, fmt.Errorf("field %q not found in response", field)
		}
	}
	return cur, nil
}

func (tc *TestContext) SaveResult(name, id string) {
	tc.savedResults[name] = id
}

func (tc *TestContext) SavedResult(name string) (string, bool) {
	id, ok := tc.savedResults[name]
	return id, ok
}

func (tc *TestContext) GetFixtures() Fixtures {
	return tc.Fixtures
}
