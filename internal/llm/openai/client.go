package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/treesum-io/treesum/internal/llm"
)

// Invoke implements llm.Invoker over text-only chat/completions.
func (c *Client) Invoke(ctx context.Context, prompt string, opts llm.Options) (llm.Response, error) {
	rid := uuid.New().String()
	start := time.Now()

	c.logger.Info("llm.invoke.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"temp", opts.Temperature,
		"prompt_len", len(prompt),
		"max_output_tokens", opts.MaxOutputTokens,
	)

	body := map[string]any{
		"model":       c.cfg.Model,
		"temperature": opts.Temperature,
		"messages": []map[string]any{
			{"role": "user", "content": prompt},
		},
	}
	if opts.MaxOutputTokens > 0 {
		body["max_tokens"] = opts.MaxOutputTokens
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}

	raw, status, respHeaders, err := llm.SendJSON(ctx, c.http, endpoint, body, headers, c.logger)
	if err != nil {
		c.logger.Error("llm.invoke.transport_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.Response{}, err
	}
	if status/100 != 2 {
		perr := &llm.ProviderError{
			Status:     status,
			RetryAfter: parseRetryAfter(respHeaders.Get("Retry-After")),
			Body:       truncate(string(raw), 512),
		}
		c.logger.Error("llm.invoke.provider_error",
			"req_id", rid, "status", status,
			"retry_after_ms", perr.RetryAfter.Milliseconds(),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.Response{}, perr
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage *struct {
			PromptTokens     *int `json:"prompt_tokens"`
			CompletionTokens *int `json:"completion_tokens"`
			TotalTokens      *int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.logger.Error("llm.invoke.decode_error",
			"req_id", rid, "error", err, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.Response{}, fmt.Errorf("decode openai response: %w", err)
	}
	if len(cc.Choices) == 0 {
		c.logger.Error("llm.invoke.no_choices",
			"req_id", rid, "raw", truncate(string(raw), 512),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.Response{}, fmt.Errorf("no choices in openai response")
	}

	out := llm.Response{Content: strings.TrimSpace(cc.Choices[0].Message.Content)}
	if cc.Usage != nil {
		out.Usage = &llm.Usage{
			InputTokens:  cc.Usage.PromptTokens,
			OutputTokens: cc.Usage.CompletionTokens,
			TotalTokens:  cc.Usage.TotalTokens,
		}
	}

	billed, hasUsage := out.Usage.Billed()
	c.logger.Info("llm.invoke.ok",
		"req_id", rid,
		"content_len", len(out.Content),
		"has_usage", hasUsage,
		"billed_tokens", billed,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// parseRetryAfter accepts the delta-seconds form of the Retry-After header.
// The HTTP-date form is rare on model APIs and is treated as absent.
func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
