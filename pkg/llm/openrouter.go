// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/vigil/pkg/fabric"
	"github.com/teradata-labs/vigil/pkg/tool"
)

// Default OpenRouter configuration values.
const (
	DefaultEndpoint    = "https://openrouter.ai/api/v1/chat/completions"
	DefaultFastModel   = "openai/gpt-4o-mini"
	DefaultSmartModel  = "anthropic/claude-sonnet-4"
	DefaultTimeout     = 60 * time.Second
	DefaultMaxTokens   = 2048
	DefaultTemperature = 0.7
)

// OpenRouterConfig holds configuration for the OpenRouter client.
type OpenRouterConfig struct {
	APIKey      string
	FastModel   string
	SmartModel  string
	Endpoint    string
	Timeout     time.Duration
	MaxTokens   int
	Temperature float64
}

// OpenRouterClient implements Provider against OpenRouter's
// chat-completions API, which speaks the OpenAI wire format.
type OpenRouterClient struct {
	config      OpenRouterConfig
	httpClient  *http.Client
	rateLimiter *RateLimiter
	counter     *Counter
	logger      *zap.Logger
}

// NewOpenRouterClient creates a client for both model tiers.
func NewOpenRouterClient(config OpenRouterConfig, limiter *RateLimiter, counter *Counter, logger *zap.Logger) *OpenRouterClient {
	if config.FastModel == "" {
		config.FastModel = DefaultFastModel
	}
	if config.SmartModel == "" {
		config.SmartModel = DefaultSmartModel
	}
	if config.Endpoint == "" {
		config.Endpoint = DefaultEndpoint
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = DefaultMaxTokens
	}
	if config.Temperature == 0 {
		config.Temperature = DefaultTemperature
	}
	if counter == nil {
		counter = NewCounter()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenRouterClient{
		config:      config,
		httpClient:  &http.Client{Timeout: config.Timeout},
		rateLimiter: limiter,
		counter:     counter,
		logger:      logger,
	}
}

// Name returns the provider name.
func (c *OpenRouterClient) Name() string { return "openrouter" }

// Model returns the model identifier serving the given role.
func (c *OpenRouterClient) Model(role Role) string {
	if role == RoleSmart {
		return c.config.SmartModel
	}
	return c.config.FastModel
}

// Complete sends a conversation to the selected model tier.
func (c *OpenRouterClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	apiReq := &chatCompletionRequest{
		Model:       c.Model(req.Role),
		Messages:    convertMessages(req.Messages),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if apiReq.MaxTokens == 0 {
		apiReq.MaxTokens = c.config.MaxTokens
	}
	if apiReq.Temperature == 0 {
		apiReq.Temperature = c.config.Temperature
	}
	if req.ResponseFormat == "json" {
		apiReq.ResponseFormat = map[string]interface{}{"type": "json_object"}
	}
	if len(req.Tools) > 0 {
		apiReq.Tools = convertTools(req.Tools)
		apiReq.ToolChoice = "auto"
		if req.ToolChoice != "" && req.ToolChoice != "auto" {
			apiReq.ToolChoice = req.ToolChoice
		}
	}

	if c.rateLimiter != nil {
		estimate := int64(c.counter.CountMessages(req.Messages) + apiReq.MaxTokens)
		if err := c.rateLimiter.Acquire(ctx, estimate); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	apiResp, err := c.callAPI(ctx, apiReq)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("llm_call_completed",
		zap.String("model", apiReq.Model),
		zap.String("role", string(req.Role)),
		zap.Int("total_tokens", apiResp.Usage.TotalTokens),
		zap.Duration("duration", time.Since(start)))

	if c.rateLimiter != nil {
		c.rateLimiter.RecordUsage(int64(apiResp.Usage.TotalTokens))
	}
	return convertResponse(apiResp)
}

func (c *OpenRouterClient) callAPI(ctx context.Context, req *chatCompletionRequest) (*chatCompletionResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fabric.Transient("HTTP request failed", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fabric.Transient("failed to read response", err)
	}

	switch {
	case httpResp.StatusCode == http.StatusOK:
	case httpResp.StatusCode == http.StatusTooManyRequests || httpResp.StatusCode >= 500:
		return nil, fabric.Transient(
			fmt.Sprintf("API error (status %d): %s", httpResp.StatusCode, truncate(respBody, 200)), nil)
	default:
		return nil, fabric.Protocol(
			fmt.Sprintf("API error (status %d): %s", httpResp.StatusCode, truncate(respBody, 200)), nil)
	}

	var resp chatCompletionResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fabric.Protocol("failed to unmarshal response", err)
	}
	if resp.Error != nil {
		return nil, fabric.Protocol(
			fmt.Sprintf("provider error: %s (type: %s)", resp.Error.Message, resp.Error.Type), nil)
	}
	if len(resp.Choices) == 0 {
		return nil, fabric.Protocol("response contains no choices", nil)
	}
	return &resp, nil
}

func convertMessages(messages []Message) []chatMessage {
	apiMessages := make([]chatMessage, 0, len(messages))
	for _, msg := range messages {
		apiMsg := chatMessage{Role: msg.Role, Content: msg.Content, ToolCallID: msg.ToolCallID}
		for _, tc := range msg.ToolCalls {
			argsJSON, err := json.Marshal(tc.Input)
			if err != nil {
				argsJSON = []byte("{}")
			}
			apiMsg.ToolCalls = append(apiMsg.ToolCalls, apiToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: functionCall{
					Name:      tc.Name,
					Arguments: string(argsJSON),
				},
			})
		}
		apiMessages = append(apiMessages, apiMsg)
	}
	return apiMessages
}

func convertTools(tools []tool.Tool) []apiTool {
	apiTools := make([]apiTool, 0, len(tools))
	for _, t := range tools {
		def := apiTool{
			Type: "function",
			Function: functionDef{
				Name:        t.Name(),
				Description: t.Description(),
			},
		}
		if schema := t.InputSchema(); schema != nil {
			raw, err := schema.ToJSON()
			if err == nil {
				params := make(map[string]interface{})
				if json.Unmarshal(raw, &params) == nil {
					def.Function.Parameters = params
				}
			}
		}
		apiTools = append(apiTools, def)
	}
	return apiTools
}

func convertResponse(resp *chatCompletionResponse) (*Response, error) {
	choice := resp.Choices[0]
	out := &Response{
		Content:    choice.Message.Content,
		StopReason: choice.FinishReason,
		Usage: Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		input := make(map[string]interface{})
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &input); err != nil {
				return nil, fabric.Protocol(
					fmt.Sprintf("tool call %s carries malformed arguments", tc.Function.Name), err)
			}
		}
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: input,
		})
	}
	return out, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
