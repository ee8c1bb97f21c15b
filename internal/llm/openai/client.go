// Package openai implements llm.Client over the OpenAI Responses API,
// adapted from the teacher's llm/openai client: same structured-output
// path, retry loop and slog instrumentation, generalized from
// persona-cognition prompts to the townlife domain schemas.
package openai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fvdveen/townlife/internal/llm"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
	"github.com/openai/openai-go/v3/responses"
	"github.com/xeipuuv/gojsonschema"
)

type ClientOpt func(c *Client)

func WithAPIKey(key string) ClientOpt {
	return func(c *Client) { c.apiKey = key }
}

func WithURL(url string) ClientOpt {
	return func(c *Client) { c.url = url }
}

func WithLogger(logger *slog.Logger) ClientOpt {
	return func(c *Client) { c.logger = logger }
}

func WithModel(model string) ClientOpt {
	return func(c *Client) { c.model = model }
}

func WithDefaultTimeout(d time.Duration) ClientOpt {
	return func(c *Client) { c.defaultTimeout = d }
}

// Client wraps the OpenAI Responses API for structured-output calls.
type Client struct {
	client openai.Client
	logger *slog.Logger

	apiKey string
	url    string
	model  string

	defaultTimeout time.Duration
	maxRetries     int

	callSeq atomic.Uint64
}

func New(opts ...ClientOpt) *Client {
	c := &Client{
		model:          "gpt-5-nano",
		defaultTimeout: 30 * time.Second,
		maxRetries:     3,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	openaiOpts := []option.RequestOption{option.WithAPIKey(c.apiKey)}
	if c.url != "" {
		openaiOpts = append(openaiOpts, option.WithBaseURL(c.url))
	}
	c.client = openai.NewClient(openaiOpts...)

	return c
}

// IsAvailable reports whether the client has credentials configured.
func (c *Client) IsAvailable() bool {
	return c != nil && c.apiKey != ""
}

func (c *Client) newCallID() string {
	n := c.callSeq.Add(1)
	return fmt.Sprintf("llm-%d", n)
}

func hashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}

// GenerateObject implements llm.Client. It sends prompt to the Responses
// API constrained to schema's JSON Schema, validates the raw JSON against
// that schema with gojsonschema before unmarshalling into out. It makes up
// to maxRetries attempts in all, retrying immediately after a transport
// error, a schema-validation failure or an unmarshal failure; a timeout
// returns at once.
func (c *Client) GenerateObject(ctx context.Context, prompt string, schema llm.Schema, opts llm.Options, out any) error {
	if !c.IsAvailable() {
		return llm.ErrUnavailable
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = c.defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	callID := c.newCallID()
	log := c.logger.With(
		slog.String("llm_call_id", callID),
		slog.String("schema", schema.Name),
		slog.String("type", "llm_call"),
	)

	schemaLoader := gojsonschema.NewGoLoader(schema.Schema)

	var lastErr error
	start := time.Now()
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		raw, err := c.doRequest(ctx, prompt, schema, opts.System)
		if err != nil {
			lastErr = err
			if errors.Is(err, context.DeadlineExceeded) {
				log.Error("llm_call_timeout", slog.Int("attempt", attempt+1))
				return fmt.Errorf("llm: request timed out: %w", err)
			}
			log.Warn("llm_retry", slog.Int("attempt", attempt+1), slog.String("reason", "transport"), slog.Any("err", err))
			continue
		}

		result, verr := gojsonschema.Validate(schemaLoader, gojsonschema.NewStringLoader(raw))
		if verr != nil {
			lastErr = fmt.Errorf("llm: schema validation error: %w", verr)
			continue
		}
		if !result.Valid() {
			errs := make([]string, 0, len(result.Errors()))
			for _, e := range result.Errors() {
				errs = append(errs, e.String())
			}
			lastErr = &llm.ErrSchemaMismatch{Errors: errs}
			log.Warn("llm_retry", slog.Int("attempt", attempt+1), slog.String("reason", "schema_mismatch"), slog.Any("errors", errs))
			continue
		}

		if err := json.Unmarshal([]byte(raw), out); err != nil {
			lastErr = fmt.Errorf("llm: unmarshal response: %w", err)
			log.Warn("llm_retry", slog.Int("attempt", attempt+1), slog.String("reason", "json_unmarshal"))
			continue
		}

		log.Info("llm_call_ok", slog.Int("attempts_total", attempt+1), slog.Duration("latency", time.Since(start)))
		return nil
	}

	log.Error("llm_call_fail", slog.Int("attempts_total", c.maxRetries), slog.Any("err", lastErr), slog.String("prompt_hash", hashString(prompt)))
	return fmt.Errorf("llm: failed after %d attempts: %w", c.maxRetries, lastErr)
}

func (c *Client) doRequest(ctx context.Context, prompt string, schema llm.Schema, system string) (string, error) {
	params := responses.ResponseNewParams{
		Model: c.model,
		Input: responses.ResponseNewParamsInputUnion{
			OfString: param.NewOpt(prompt),
		},
		Text: responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigParamOfJSONSchema(schema.Name, schema.Schema),
		},
	}
	if system != "" {
		params.Instructions = param.NewOpt(system)
	}

	resp, err := c.client.Responses.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("llm: responses.new: %w", err)
	}
	raw := resp.OutputText()
	if strings.TrimSpace(raw) == "" {
		return "", errors.New("llm: empty response")
	}
	return raw, nil
}
