// Package telegram is a minimal Telegram Bot API client: JSON over HTTPS with
// long-polling for updates.
package telegram

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

	"github.com/benvon/taskbot/internal/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DefaultAPIRoot is the public Bot API endpoint
const DefaultAPIRoot = "https://api.telegram.org"

// maxResponseBytes caps how much of a response body is read
const maxResponseBytes = 4 << 20

// APIError is a Bot API call that returned ok=false or a non-2xx status
type APIError struct {
	Method      string
	StatusCode  int
	Description string
	RetryAfter  time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s failed: status %d: %s", e.Method, e.StatusCode, e.Description)
}

// isParseError reports whether Telegram rejected the message's Markdown
func (e *APIError) isParseError() bool {
	return e.StatusCode == http.StatusBadRequest && strings.Contains(e.Description, "can't parse entities")
}

// Client calls the Bot API
type Client struct {
	apiRoot    string
	token      string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a Bot API client. An empty apiRoot uses DefaultAPIRoot.
// pollTimeout is the long-poll duration in seconds; the HTTP timeout leaves
// headroom above it.
func NewClient(token, apiRoot string, pollTimeout int, logger *zap.Logger) *Client {
	if strings.TrimSpace(apiRoot) == "" {
		apiRoot = DefaultAPIRoot
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		apiRoot: strings.TrimRight(apiRoot, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: time.Duration(pollTimeout)*time.Second + 15*time.Second,
		},
		logger: logger,
	}
}

// SendText sends a message, falling back to plain text when Telegram cannot
// parse the Markdown
func (c *Client) SendText(ctx context.Context, chatID int64, text string, opts SendOptions) (MessageRef, error) {
	payload := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	if len(opts.Buttons) > 0 {
		payload["reply_markup"] = inlineKeyboard{InlineKeyboard: opts.Buttons}
	}

	var sent struct {
		Result Message `json:"result"`
	}
	err := c.callWithMarkdown(ctx, "sendMessage", payload, opts.Markdown, &sent)
	if err != nil {
		return MessageRef{}, err
	}
	return MessageRef{ChatID: sent.Result.Chat.ID, MessageID: sent.Result.MessageID}, nil
}

// EditText replaces the text of a sent message and drops its keyboard
func (c *Client) EditText(ctx context.Context, ref MessageRef, text string) error {
	payload := map[string]any{
		"chat_id":    ref.ChatID,
		"message_id": ref.MessageID,
		"text":       text,
	}
	return c.call(ctx, "editMessageText", payload, nil)
}

// AnswerCallback acknowledges a button press, optionally with a toast
func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string) error {
	payload := map[string]any{
		"callback_query_id": callbackID,
	}
	if text != "" {
		payload["text"] = text
	}
	return c.call(ctx, "answerCallbackQuery", payload, nil)
}

// ChatUsername returns the current username of a chat
func (c *Client) ChatUsername(ctx context.Context, chatID int64) (string, error) {
	var chat struct {
		Result Chat `json:"result"`
	}
	if err := c.call(ctx, "getChat", map[string]any{"chat_id": chatID}, &chat); err != nil {
		return "", err
	}
	return chat.Result.Username, nil
}

// SetCommands replaces the bot's command menu
func (c *Client) SetCommands(ctx context.Context, commands []Command) error {
	return c.call(ctx, "setMyCommands", map[string]any{"commands": commands}, nil)
}

// Commands returns the bot's command menu
func (c *Client) Commands(ctx context.Context) ([]Command, error) {
	var out struct {
		Result []Command `json:"result"`
	}
	if err := c.call(ctx, "getMyCommands", map[string]any{}, &out); err != nil {
		return nil, err
	}
	return out.Result, nil
}

// GetMe returns the bot's own account, which doubles as a token check
func (c *Client) GetMe(ctx context.Context) (User, error) {
	var out struct {
		Result User `json:"result"`
	}
	if err := c.call(ctx, "getMe", map[string]any{}, &out); err != nil {
		return User{}, err
	}
	return out.Result, nil
}

// getUpdates long-polls for updates after offset
func (c *Client) getUpdates(ctx context.Context, offset int64, timeout int) ([]Update, error) {
	payload := map[string]any{
		"timeout":         timeout,
		"allowed_updates": []string{"message", "callback_query"},
	}
	if offset > 0 {
		payload["offset"] = offset
	}
	var out struct {
		Result []Update `json:"result"`
	}
	if err := c.call(ctx, "getUpdates", payload, &out); err != nil {
		return nil, err
	}
	return out.Result, nil
}

func (c *Client) callWithMarkdown(ctx context.Context, method string, payload map[string]any, markdown bool, out any) error {
	if !markdown {
		return c.call(ctx, method, payload, out)
	}

	payload["parse_mode"] = "Markdown"
	err := c.call(ctx, method, payload, out)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || !apiErr.isParseError() {
		return err
	}

	c.logger.Warn("telegram_markdown_rejected",
		zap.String("method", method),
		zap.String("description", logger.SanitizeString(apiErr.Description, logger.MaxErrorMessageLength)),
	)
	delete(payload, "parse_mode")
	return c.call(ctx, method, payload, out)
}

func (c *Client) call(ctx context.Context, method string, payload any, out any) error {
	ctx, span := otel.Tracer("taskbot/telegram").Start(ctx, "telegram."+method, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("telegram.method", method))

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", method, err)
	}

	url := c.apiRoot + "/bot" + c.token + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		// The URL embeds the token; never let it reach the logs
		return fmt.Errorf("telegram %s request failed: %w", method, stripURL(err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", method, err)
	}

	var base apiResponse
	if err := json.Unmarshal(respBody, &base); err != nil {
		return fmt.Errorf("failed to decode %s response (status %d): %w", method, resp.StatusCode, err)
	}
	if resp.StatusCode >= 300 || !base.OK {
		apiErr := &APIError{Method: method, StatusCode: resp.StatusCode, Description: base.Description}
		if base.Parameters != nil && base.Parameters.RetryAfter > 0 {
			apiErr.RetryAfter = time.Duration(base.Parameters.RetryAfter) * time.Second
		}
		span.SetStatus(codes.Error, apiErr.Description)
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode %s result: %w", method, err)
		}
	}
	return nil
}

// stripURL drops the request URL from transport errors
func stripURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}
