package llm

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// defaultHTTPTimeout bounds a single provider request.
const defaultHTTPTimeout = 120 * time.Second

// parseJSONSchema converts a JSON schema string to a map.
func parseJSONSchema(schemaStr string) map[string]interface{} {
	if schemaStr == "" {
		return map[string]interface{}{"type": "object"}
	}

	var schema map[string]interface{}
	if err := json.Unmarshal([]byte(schemaStr), &schema); err != nil {
		// If parsing fails, return a permissive schema - the API will handle the rest
		return map[string]interface{}{"type": "object"}
	}

	return schema
}

// parseArguments decodes a tool call's JSON input into a map, accepting
// an empty string as no arguments.
func parseArguments(input string) map[string]interface{} {
	args := map[string]interface{}{}
	if strings.TrimSpace(input) == "" {
		return args
	}
	_ = json.Unmarshal([]byte(input), &args)
	return args
}

// doJSON posts payload to url and decodes a 200 response into out. Non-200
// responses become a *ProviderError carrying the status code.
func doJSON(client *http.Client, req *http.Request, provider string, out interface{}) error {
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return &ProviderError{
			Provider: provider,
			Code:     resp.StatusCode,
			Message:  fmt.Sprintf("API error: %s", strings.TrimSpace(string(respBody))),
		}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
