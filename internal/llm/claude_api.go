package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ClaudeAPIClient is a direct HTTP client for the Anthropic Messages API.
type ClaudeAPIClient struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewClaudeAPIClient creates a new Claude API client.
// baseURL defaults to "https://api.anthropic.com".
func NewClaudeAPIClient(baseURL, apiKey, model string) *ClaudeAPIClient {
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	return &ClaudeAPIClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: defaultHTTPTimeout},
	}
}

// SetTimeout changes the per-request timeout.
func (c *ClaudeAPIClient) SetTimeout(d time.Duration) { c.client.Timeout = d }

// Name returns the provider name.
func (c *ClaudeAPIClient) Name() string {
	return "claude"
}

// Complete sends a non-streaming completion request to the Claude API.
func (c *ClaudeAPIClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	model := req.Model
	if model == "" {
		model = c.model
	}

	payload, err := json.Marshal(c.buildRequestBody(model, req))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	var result claudeAPIResponse
	if err := doJSON(c.client, httpReq, c.Name(), &result); err != nil {
		return nil, err
	}

	return c.responseToCompletion(&result, time.Since(start)), nil
}

func (c *ClaudeAPIClient) buildRequestBody(model string, req CompletionRequest) map[string]interface{} {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	body := map[string]interface{}{
		"model":      model,
		"messages":   c.messagesToClaude(req.Messages),
		"max_tokens": maxTokens,
	}

	if req.System != "" {
		body["system"] = req.System
	}

	if req.Temperature != nil {
		body["temperature"] = *req.Temperature
	}

	if len(req.Tools) > 0 {
		tools := make([]map[string]interface{}, len(req.Tools))
		for i, t := range req.Tools {
			tools[i] = map[string]interface{}{
				"name":         t.Name,
				"description":  t.Description,
				"input_schema": parseJSONSchema(t.InputSchema),
			}
		}
		body["tools"] = tools
	}

	return body
}

// messagesToClaude converts history into content blocks. Consecutive tool
// results are merged into one user turn as the API requires.
func (c *ClaudeAPIClient) messagesToClaude(msgs []Message) []map[string]interface{} {
	var result []map[string]interface{}
	for _, m := range msgs {
		switch m.Role {
		case RoleAssistant:
			var blocks []map[string]interface{}
			if m.Content != "" {
				blocks = append(blocks, map[string]interface{}{"type": "text", "text": m.Content})
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, map[string]interface{}{
					"type":  "tool_use",
					"id":    tc.ID,
					"name":  tc.Name,
					"input": parseArguments(tc.Input),
				})
			}
			result = append(result, map[string]interface{}{"role": RoleAssistant, "content": blocks})

		case RoleTool:
			block := map[string]interface{}{
				"type":        "tool_result",
				"tool_use_id": m.ToolCallID,
				"content":     m.Content,
			}
			if n := len(result); n > 0 && result[n-1]["role"] == RoleUser {
				if blocks, ok := result[n-1]["content"].([]map[string]interface{}); ok {
					result[n-1]["content"] = append(blocks, block)
					continue
				}
			}
			result = append(result, map[string]interface{}{
				"role":    RoleUser,
				"content": []map[string]interface{}{block},
			})

		default:
			result = append(result, map[string]interface{}{
				"role":    RoleUser,
				"content": []map[string]interface{}{{"type": "text", "text": m.Content}},
			})
		}
	}
	return result
}

func (c *ClaudeAPIClient) responseToCompletion(resp *claudeAPIResponse, duration time.Duration) *CompletionResponse {
	var content strings.Builder
	var toolCalls []ToolCall

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			content.WriteString(block.Text)
		case "tool_use":
			input := string(block.Input)
			if input == "" {
				input = "{}"
			}
			toolCalls = append(toolCalls, ToolCall{
				ID:    block.ID,
				Name:  block.Name,
				Input: input,
			})
		}
	}

	return &CompletionResponse{
		Content:    content.String(),
		StopReason: resp.StopReason,
		ToolCalls:  toolCalls,
		Usage: Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
		Model:    resp.Model,
		Duration: duration,
	}
}

// API Response structures

type claudeAPIResponse struct {
	ID         string               `json:"id"`
	Type       string               `json:"type"`
	Role       string               `json:"role"`
	Content    []claudeContentBlock `json:"content"`
	Model      string               `json:"model"`
	StopReason string               `json:"stop_reason"`
	Usage      claudeUsage          `json:"usage"`
}

type claudeContentBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

type claudeUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}
