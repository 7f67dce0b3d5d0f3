package invoker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
	"github.com/raaihank/guardbench/internal/bench"
	"github.com/raaihank/guardbench/internal/config"
	"github.com/raaihank/guardbench/internal/logger"
	"github.com/raaihank/guardbench/internal/wire"
	"go.uber.org/zap"
)

// RuntimeAPI is the subset of the Bedrock runtime client used here
type RuntimeAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
	ApplyGuardrail(ctx context.Context, params *bedrockruntime.ApplyGuardrailInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ApplyGuardrailOutput, error)
}

// BedrockClient talks to the managed generation and guardrail service
type BedrockClient struct {
	runtime          RuntimeAPI
	modelID          string
	guardrailID      string
	guardrailVersion string
	inference        wire.InferenceConfig
	logger           *logger.Logger
}

// NewBedrockClient loads AWS configuration and verifies credentials resolve
func NewBedrockClient(ctx context.Context, provider config.ProviderConfig, inference config.InferenceConfig, log *logger.Logger) (*BedrockClient, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(provider.Region))
	if err != nil {
		return nil, &bench.SetupError{Component: "bedrock", Detail: "failed to load AWS configuration", Err: err}
	}

	if awsCfg.Credentials == nil {
		return nil, &bench.SetupError{Component: "bedrock", Detail: "no AWS credentials provider configured"}
	}
	if _, err := awsCfg.Credentials.Retrieve(ctx); err != nil {
		return nil, &bench.SetupError{Component: "bedrock", Detail: "failed to resolve AWS credentials", Err: err}
	}

	return NewBedrockClientWithRuntime(bedrockruntime.NewFromConfig(awsCfg), provider, inference, log), nil
}

// NewBedrockClientWithRuntime wraps an existing runtime client
func NewBedrockClientWithRuntime(runtime RuntimeAPI, provider config.ProviderConfig, inference config.InferenceConfig, log *logger.Logger) *BedrockClient {
	if log == nil {
		log = logger.NewNop()
	}

	return &BedrockClient{
		runtime:          runtime,
		modelID:          provider.ModelID,
		guardrailID:      provider.GuardrailID,
		guardrailVersion: provider.GuardrailVersion,
		inference:        toWireInference(inference),
		logger:           log.WithComponent("bedrock"),
	}
}

// GuardrailID returns the configured guardrail identifier
func (c *BedrockClient) GuardrailID() string {
	return c.guardrailID
}

// Generate invokes the model, attaching the guardrail when guarded is set
func (c *BedrockClient) Generate(ctx context.Context, text string, guarded bool) (Call, error) {
	body, err := json.Marshal(wire.NewInvokeRequest(text, c.inference))
	if err != nil {
		return Call{}, fmt.Errorf("failed to encode request: %w", err)
	}

	input := &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(c.modelID),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	}
	if guarded {
		input.GuardrailIdentifier = aws.String(c.guardrailID)
		input.GuardrailVersion = aws.String(c.guardrailVersion)
	}

	call := Call{Start: time.Now()}
	out, err := c.runtime.InvokeModel(ctx, input)
	call.End = time.Now()
	if err != nil {
		return call, translate(describeAWSError(err), guarded, c.guardrailID)
	}

	resp, err := wire.DecodeInvokeResponse(out.Body)
	if err != nil {
		return call, &bench.ServiceError{Code: "DecodeError", Err: err}
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

// ApplyGuardrail evaluates text against the guardrail's sensitive information policy
func (c *BedrockClient) ApplyGuardrail(ctx context.Context, text string) (Verdict, error) {
	input := &bedrockruntime.ApplyGuardrailInput{
		GuardrailIdentifier: aws.String(c.guardrailID),
		GuardrailVersion:    aws.String(c.guardrailVersion),
		Source:              types.GuardrailContentSourceInput,
		Content: []types.GuardrailContentBlock{
			&types.GuardrailContentBlockMemberText{
				Value: types.GuardrailTextBlock{Text: aws.String(text)},
			},
		},
	}

	verdict := Verdict{Start: time.Now()}
	out, err := c.runtime.ApplyGuardrail(ctx, input)
	verdict.End = time.Now()
	if err != nil {
		return verdict, translate(describeAWSError(err), false, c.guardrailID)
	}

	resp := fromAssessments(string(out.Action), out.Assessments)
	verdict.Action = resp.Action
	verdict.EntityTypes = resp.EntityTypes()
	verdict.Detected = len(verdict.EntityTypes) > 0
	return verdict, nil
}

func fromAssessments(action string, assessments []types.GuardrailAssessment) wire.ApplyResponse {
	resp := wire.ApplyResponse{Action: action}
	for _, a := range assessments {
		if a.SensitiveInformationPolicy == nil {
			continue
		}

		policy := &wire.SensitiveInformationAssessment{}
		for _, e := range a.SensitiveInformationPolicy.PiiEntities {
			policy.PIIEntities = append(policy.PIIEntities, wire.PIIEntity{
				Type:   string(e.Type),
				Match:  aws.ToString(e.Match),
				Action: string(e.Action),
			})
		}
		for _, r := range a.SensitiveInformationPolicy.Regexes {
			policy.Regexes = append(policy.Regexes, wire.RegexMatch{
				Name:   aws.ToString(r.Name),
				Match:  aws.ToString(r.Match),
				Action: string(r.Action),
			})
		}
		resp.Assessments = append(resp.Assessments, wire.Assessment{SensitiveInformationPolicy: policy})
	}
	return resp
}

func describeAWSError(err error) serviceFailure {
	failure := serviceFailure{err: err, message: err.Error()}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		failure.code = apiErr.ErrorCode()
		failure.message = apiErr.ErrorMessage()
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		failure.status = respErr.HTTPStatusCode()
	}

	return failure
}

func toWireInference(cfg config.InferenceConfig) wire.InferenceConfig {
	return wire.InferenceConfig{
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		TopP:        cfg.TopP,
	}
}
