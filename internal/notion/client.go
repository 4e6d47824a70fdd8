// Package notion implements the task store on top of the Notion REST API.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/benvon/taskbot/internal/logger"
	"github.com/benvon/taskbot/internal/tasks"
	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	// DefaultBaseURL is the public Notion API endpoint
	DefaultBaseURL = "https://api.notion.com/v1"
	// DefaultVersion is the Notion-Version header sent with every call
	DefaultVersion = "2022-06-28"

	requestTimeout   = 30 * time.Second
	maxResponseBytes = 8 << 20
	maxRetries       = 4
)

// Client performs authenticated Notion API calls with retry on rate limits
// and server errors
type Client struct {
	baseURL    string
	version    string
	httpClient *http.Client
	logger     *zap.Logger
	newBackOff func() backoff.BackOff
}

// NewClient creates a Notion API client authenticating with an integration token
func NewClient(ctx context.Context, token, baseURL, version string, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if version == "" {
		version = DefaultVersion
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
	}))
	httpClient.Timeout = requestTimeout

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		version:    version,
		httpClient: httpClient,
		logger:     logger,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxElapsedTime = time.Minute
			return backoff.WithMaxRetries(b, maxRetries)
		},
	}
}

// errorBody is Notion's error envelope
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// do sends one API call, retrying while the failure is retryable. Every
// failure is returned as a *tasks.StoreError wrapping ErrStoreUnavailable.
func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	ctx, span := otel.Tracer("taskbot/notion").Start(ctx, "notion."+op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("notion.path", path),
	)

	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", op, err)
		}
	}

	attempt := 0
	call := func() error {
		attempt++
		err := c.send(ctx, op, method, path, body, out)
		if err == nil {
			return nil
		}
		var storeErr *tasks.StoreError
		if errors.As(err, &storeErr) && !storeErr.Retryable() {
			return backoff.Permanent(err)
		}
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		c.logger.Warn("notion_call_retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.String("error", logger.SanitizeError(err)),
		)
		return err
	}

	err := backoff.Retry(call, backoff.WithContext(c.newBackOff(), ctx))
	span.SetAttributes(attribute.Int("notion.attempts", attempt))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, op+" failed")
		return err
	}
	return nil
}

func (c *Client) send(ctx context.Context, op, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", op, err)
	}
	req.Header.Set("Notion-Version", c.version)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &tasks.StoreError{Op: op, Message: err.Error(), Err: tasks.ErrStoreUnavailable}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &tasks.StoreError{Op: op, Message: "failed to read response: " + err.Error(), Err: tasks.ErrStoreUnavailable}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr errorBody
		message := strings.TrimSpace(string(respBody))
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			message = apiErr.Code + ": " + apiErr.Message
		}
		return &tasks.StoreError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    logger.SanitizeString(message, logger.MaxErrorMessageLength),
			Err:        tasks.ErrStoreUnavailable,
		}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			// A non-zero 2xx status keeps this out of the retry path
			return &tasks.StoreError{
				Op:         op,
				StatusCode: resp.StatusCode,
				Message:    "failed to decode response: " + err.Error(),
				Err:        tasks.ErrStoreUnavailable,
			}
		}
	}
	return nil
}
