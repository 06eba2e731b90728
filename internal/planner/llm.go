// Package planner implements the AI planning worker: it inspects endpoint
// health on its own cadence, drives an LLM over a bounded tool set, and
// persists the resulting analysis sessions. The LLM client speaks the
// OpenAI-compatible chat-completions format, which works with OpenAI,
// Anthropic proxies, and any compatible endpoint.
package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/weskerllc/cronicorn/internal/domain"
)

// MaxToolCalls caps tool invocations per session. Enforced here defensively
// even when the model misbehaves.
const MaxToolCalls = 15

// Tool is one callable exposed to the model for a single session. Handlers
// receive the raw argument JSON and return a result that is serialized back
// as the tool message; validation failures are returned as tool-result
// errors visible to the model, never raised.
type Tool struct {
	Name        string
	Description string
	Parameters  json.RawMessage
	Handler     func(ctx context.Context, args json.RawMessage) (any, error)
}

// PlanRequest drives one tool-loop session.
type PlanRequest struct {
	Input         string
	Tools         []Tool
	MaxTokens     int
	FinalToolName string
}

// PlanResult is what a completed session produced.
type PlanResult struct {
	ToolCalls  []domain.ToolCallRecord
	Reasoning  string
	TokenUsage int
	FinalArgs  json.RawMessage // args of the terminal tool call, nil if absent
}

// Client runs one planning session against the model. It invokes tool
// handlers up to the cap and returns when the terminal tool is called.
type Client interface {
	PlanWithTools(ctx context.Context, req PlanRequest) (*PlanResult, error)
}

// ---------- Wire types (OpenAI-compatible) ----------

type chatMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type chatRequest struct {
	Model     string           `json:"model"`
	Messages  []chatMessage    `json:"messages"`
	Tools     []toolDefinition `json:"tools,omitempty"`
	MaxTokens int              `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content   string         `json:"content"`
			ToolCalls []wireToolCall `json:"tool_calls,omitempty"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

type toolDefinition struct {
	Type     string      `json:"type"`
	Function functionDef `json:"function"`
}

type functionDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

type wireToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function functionCall `json:"function"`
}

type functionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ---------- HTTP client ----------

// HTTPClient is the production Client implementation.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewHTTPClient(baseURL, apiKey, model string, logger *slog.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		logger: logger.With("component", "llm"),
	}
}

// PlanWithTools runs the chat loop: send the prompt with tool definitions,
// execute each requested tool, feed results back, and stop when the model
// calls the terminal tool (or the cap is reached, or the model stops).
func (c *HTTPClient) PlanWithTools(ctx context.Context, req PlanRequest) (*PlanResult, error) {
	handlers := make(map[string]Tool, len(req.Tools))
	defs := make([]toolDefinition, 0, len(req.Tools))
	for _, t := range req.Tools {
		handlers[t.Name] = t
		defs = append(defs, toolDefinition{
			Type: "function",
			Function: functionDef{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	messages := []chatMessage{{Role: "user", Content: req.Input}}
	result := &PlanResult{}

	for len(result.ToolCalls) < MaxToolCalls {
		resp, err := c.complete(ctx, chatRequest{
			Model:     c.model,
			Messages:  messages,
			Tools:     defs,
			MaxTokens: req.MaxTokens,
		})
		if err != nil {
			return nil, err
		}
		result.TokenUsage += resp.Usage.TotalTokens

		if len(resp.Choices) == 0 {
			return nil, fmt.Errorf("no response from model")
		}
		choice := resp.Choices[0]

		if content := strings.TrimSpace(choice.Message.Content); content != "" {
			result.Reasoning = content
		}

		if len(choice.Message.ToolCalls) == 0 {
			// Model ended without the terminal tool; the caller records the
			// session as-is.
			return result, nil
		}

		messages = append(messages, chatMessage{
			Role:      "assistant",
			Content:   choice.Message.Content,
			ToolCalls: choice.Message.ToolCalls,
		})

		for _, call := range choice.Message.ToolCalls {
			if len(result.ToolCalls) >= MaxToolCalls {
				break
			}
			args := json.RawMessage(call.Function.Arguments)
			resultJSON := c.invoke(ctx, handlers, call.Function.Name, args)

			result.ToolCalls = append(result.ToolCalls, domain.ToolCallRecord{
				Tool:   call.Function.Name,
				Args:   args,
				Result: resultJSON,
			})

			if call.Function.Name == req.FinalToolName {
				result.FinalArgs = args
				return result, nil
			}

			messages = append(messages, chatMessage{
				Role:       "tool",
				Content:    string(resultJSON),
				ToolCallID: call.ID,
			})
		}
	}

	return result, nil
}

func (c *HTTPClient) invoke(ctx context.Context, handlers map[string]Tool, name string, args json.RawMessage) json.RawMessage {
	tool, ok := handlers[name]
	if !ok {
		return toolError(fmt.Sprintf("unknown tool: %s", name))
	}
	out, err := tool.Handler(ctx, args)
	if err != nil {
		return toolError(err.Error())
	}
	b, err := json.Marshal(out)
	if err != nil {
		return toolError(fmt.Sprintf("marshal result: %v", err))
	}
	return b
}

func toolError(msg string) json.RawMessage {
	b, _ := json.Marshal(map[string]string{"error": msg})
	return b
}

func (c *HTTPClient) complete(ctx context.Context, reqBody chatRequest) (*chatResponse, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("LLM API key not configured")
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("LLM request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("LLM returned %d: %s", resp.StatusCode, truncate(string(respBody), 500))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if chatResp.Error != nil {
		return nil, fmt.Errorf("LLM error: %s", chatResp.Error.Message)
	}

	c.logger.Debug("chat completion done",
		"model", c.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"total_tokens", chatResp.Usage.TotalTokens,
	)

	return &chatResp, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
