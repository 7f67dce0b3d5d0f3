package invoker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/raaihank/guardbench/internal/bench"
	"github.com/raaihank/guardbench/internal/config"
	"github.com/raaihank/guardbench/internal/logger"
	"github.com/raaihank/guardbench/internal/wire"
	"go.uber.org/zap"
)

// HeaderErrorType carries the service error code on non-2xx responses
const HeaderErrorType = "X-Amzn-ErrorType"

// errorBody is the JSON body returned with non-2xx responses
type errorBody struct {
	Message string `json:"message"`
}

// HTTPClient speaks the runtime REST protocol to any compatible endpoint,
// such as the bundled stub service
type HTTPClient struct {
	baseURL          string
	client           *http.Client
	modelID          string
	guardrailID      string
	guardrailVersion string
	inference        wire.InferenceConfig
	logger           *logger.Logger
}

// NewHTTPClient creates a client for provider.Endpoint
func NewHTTPClient(provider config.ProviderConfig, inference config.InferenceConfig, log *logger.Logger) (*HTTPClient, error) {
	u, err := url.Parse(provider.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, &bench.SetupError{Component: "http", Detail: fmt.Sprintf("invalid endpoint %q", provider.Endpoint), Err: err}
	}
	if log == nil {
		log = logger.NewNop()
	}

	return &HTTPClient{
		baseURL:          strings.TrimRight(provider.Endpoint, "/"),
		client:           &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()},
		modelID:          provider.ModelID,
		guardrailID:      provider.GuardrailID,
		guardrailVersion: provider.GuardrailVersion,
		inference:        toWireInference(inference),
		logger:           log.WithComponent("http_client"),
	}, nil
}

// GuardrailID returns the configured guardrail identifier
func (c *HTTPClient) GuardrailID() string {
	return c.guardrailID
}

// Ping verifies the endpoint is reachable
func (c *HTTPClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return &bench.SetupError{Component: "http", Detail: "failed to build health request", Err: err}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &bench.SetupError{Component: "http", Detail: "endpoint unreachable", Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return &bench.SetupError{Component: "http", Detail: fmt.Sprintf("health check returned %d", resp.StatusCode)}
	}
	return nil
}

// Generate posts an invoke request, adding guardrail headers when guarded is set
func (c *HTTPClient) Generate(ctx context.Context, text string, guarded bool) (Call, error) {
	body, err := json.Marshal(wire.NewInvokeRequest(text, c.inference))
	if err != nil {
		return Call{}, fmt.Errorf("failed to encode request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/model/%s/invoke", c.baseURL, url.PathEscape(c.modelID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Call{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if guarded {
		req.Header.Set(wire.HeaderGuardrailID, c.guardrailID)
		req.Header.Set(wire.HeaderGuardrailVersion, c.guardrailVersion)
	}

	call := Call{Start: time.Now()}
	payload, status, errType, err := c.do(req)
	call.End = time.Now()
	if err != nil {
		return call, translate(serviceFailure{err: err, message: err.Error()}, guarded, c.guardrailID)
	}
	if status < 200 || status > 299 {
		return call, translate(failureFromBody(status, errType, payload), guarded, c.guardrailID)
	}

	resp, err := wire.DecodeInvokeResponse(payload)
	if err != nil {
		return call, &bench.ServiceError{StatusCode: status, Code: "DecodeError", Err: err}
	}

	call.Output = resp.Text()
	call.Blocked = guarded && resp.Intervened()
	if resp.Usage != nil {
		call.InputTokens = resp.Usage.InputTokens
		call.OutputTokens = resp.Usage.OutputTokens
	}

	c.logger.Debug("Model invoked",
		zap.Bool("guarded", guarded),
		zap.Bool("blocked", call.Blocked),
		zap.Duration("duration", call.End.Sub(call.Start)),
	)

	return call, nil
}

// ApplyGuardrail posts a standalone guardrail check
func (c *HTTPClient) ApplyGuardrail(ctx context.Context, text string) (Verdict, error) {
	body, err := json.Marshal(wire.NewApplyRequest(text))
	if err != nil {
		return Verdict{}, fmt.Errorf("failed to encode request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/guardrail/%s/version/%s/apply",
		c.baseURL, url.PathEscape(c.guardrailID), url.PathEscape(c.guardrailVersion))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Verdict{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	verdict := Verdict{Start: time.Now()}
	payload, status, errType, err := c.do(req)
	verdict.End = time.Now()
	if err != nil {
		return verdict, translate(serviceFailure{err: err, message: err.Error()}, false, c.guardrailID)
	}
	if status < 200 || status > 299 {
		return verdict, translate(failureFromBody(status, errType, payload), false, c.guardrailID)
	}

	var resp wire.ApplyResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return verdict, &bench.ServiceError{StatusCode: status, Code: "DecodeError", Err: err}
	}

	verdict.Action = resp.Action
	verdict.EntityTypes = resp.EntityTypes()
	verdict.Detected = len(verdict.EntityTypes) > 0
	return verdict, nil
}

// do performs the round trip and drains the body
func (c *HTTPClient) do(req *http.Request) ([]byte, int, string, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, "", err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, "", err
	}
	return payload, resp.StatusCode, resp.Header.Get(HeaderErrorType), nil
}

func failureFromBody(status int, errType string, payload []byte) serviceFailure {
	var body errorBody
	message := strings.TrimSpace(string(payload))
	if json.Unmarshal(payload, &body) == nil && body.Message != "" {
		message = body.Message
	}

	return serviceFailure{
		status:  status,
		code:    errType,
		message: message,
		err:     errors.New(message),
	}
}
