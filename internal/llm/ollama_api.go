package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// OllamaAPIClient is a direct HTTP client for the Ollama chat API.
type OllamaAPIClient struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllamaAPIClient creates a new Ollama API client.
// baseURL should be like "http://localhost:11434"
func NewOllamaAPIClient(baseURL, model string) *OllamaAPIClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	// Remove trailing slash if present
	baseURL = strings.TrimSuffix(baseURL, "/")

	return &OllamaAPIClient{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: defaultHTTPTimeout},
	}
}

// SetTimeout changes the per-request timeout.
func (o *OllamaAPIClient) SetTimeout(d time.Duration) { o.client.Timeout = d }

// Name returns the provider name.
func (o *OllamaAPIClient) Name() string {
	return "ollama"
}

// Complete sends a non-streaming chat request to the Ollama API.
func (o *OllamaAPIClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	model := req.Model
	if model == "" {
		model = o.model
	}

	payload, err := json.Marshal(o.buildRequestBody(model, req))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST",
		fmt.Sprintf("%s/api/chat", o.baseURL), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var result ollamaChatResponse
	if err := doJSON(o.client, httpReq, o.Name(), &result); err != nil {
		return nil, err
	}

	out := &CompletionResponse{
		Content:    result.Message.Content,
		StopReason: result.DoneReason,
		Model:      result.Model,
		Usage: Usage{
			InputTokens:  result.PromptEvalCount,
			OutputTokens: result.EvalCount,
		},
		Duration: time.Since(start),
	}
	for _, tc := range result.Message.ToolCalls {
		args, err := json.Marshal(tc.Function.Arguments)
		if err != nil {
			args = []byte("{}")
		}
		// Ollama does not assign call ids.
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:    "call_" + uuid.NewString()[:8],
			Name:  tc.Function.Name,
			Input: string(args),
		})
	}
	return out, nil
}

func (o *OllamaAPIClient) buildRequestBody(model string, req CompletionRequest) map[string]interface{} {
	messages := make([]map[string]interface{}, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, map[string]interface{}{"role": RoleSystem, "content": req.System})
	}
	for _, m := range req.Messages {
		msg := map[string]interface{}{"role": m.Role, "content": m.Content}
		if m.Role == RoleAssistant && len(m.ToolCalls) > 0 {
			calls := make([]map[string]interface{}, len(m.ToolCalls))
			for i, tc := range m.ToolCalls {
				calls[i] = map[string]interface{}{
					"function": map[string]interface{}{
						"name":      tc.Name,
						"arguments": parseArguments(tc.Input),
					},
				}
			}
			msg["tool_calls"] = calls
		}
		if m.Role == RoleTool && m.Name != "" {
			msg["tool_name"] = m.Name
		}
		messages = append(messages, msg)
	}

	body := map[string]interface{}{
		"model":    model,
		"messages": messages,
		"stream":   false,
	}

	options := map[string]interface{}{}
	if req.Temperature != nil {
		options["temperature"] = *req.Temperature
	}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}
	if len(options) > 0 {
		body["options"] = options
	}

	if len(req.Tools) > 0 {
		tools := make([]map[string]interface{}, len(req.Tools))
		for i, t := range req.Tools {
			tools[i] = map[string]interface{}{
				"type": "function",
				"function": map[string]interface{}{
					"name":        t.Name,
					"description": t.Description,
					"parameters":  parseJSONSchema(t.InputSchema),
				},
			}
		}
		body["tools"] = tools
	}
	return body
}

// API Response structures

type ollamaChatResponse struct {
	Model      string `json:"model"`
	CreatedAt  string `json:"created_at"`
	Done       bool   `json:"done"`
	DoneReason string `json:"done_reason"`
	Message    struct {
		Role      string           `json:"role"`
		Content   string           `json:"content"`
		ToolCalls []ollamaToolCall `json:"tool_calls"`
	} `json:"message"`
	PromptEvalCount int `json:"prompt_eval_count"`
	EvalCount       int `json:"eval_count"`
}

type ollamaToolCall struct {
	Function struct {
		Name      string                 `json:"name"`
		Arguments map[string]interface{} `json:"arguments"`
	} `json:"function"`
}
