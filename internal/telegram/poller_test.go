package telegram

import (
	"context"
	"net/http"
	"testing"
	"time"
)

func TestPoller_PollOnce(t *testing.T) {
	t.Parallel()

	api, server := newFakeAPI(t)
	api.on("getUpdates", func(payload map[string]any) (int, any) {
		if _, ok := payload["offset"]; ok {
			return http.StatusOK, map[string]any{"ok": true, "result": []any{}}
		}
		return http.StatusOK, map[string]any{
			"ok": true,
			"result": []any{
				map[string]any{
					"update_id": 101,
					"message": map[string]any{
						"message_id": 7,
						"text":       "/start",
						"from":       map[string]any{"id": 11, "username": "alice"},
						"chat":       map[string]any{"id": 22, "type": "private"},
					},
				},
				map[string]any{
					"update_id": 102,
					"callback_query": map[string]any{
						"id":   "cb-9",
						"from": map[string]any{"id": 11},
						"data": "done:t1",
						"message": map[string]any{
							"message_id": 8,
							"chat":       map[string]any{"id": 22},
						},
					},
				},
			},
		}
	})

	poller := NewPoller(NewClient("test-token", server.URL, 1, nil), 1, nil)

	var got []Update
	n, err := poller.pollOnce(context.Background(), func(ctx context.Context, u Update) {
		got = append(got, u)
	})
	if err != nil {
		t.Fatalf("pollOnce failed: %v", err)
	}
	if n != 2 || len(got) != 2 {
		t.Fatalf("Expected 2 updates, got %d", len(got))
	}
	if got[0].Message == nil || got[0].Message.Text != "/start" || got[0].Message.Chat.ID != 22 {
		t.Errorf("Unexpected message update: %+v", got[0].Message)
	}
	if got[1].CallbackQuery == nil || got[1].CallbackQuery.Data != "done:t1" {
		t.Errorf("Unexpected callback update: %+v", got[1].CallbackQuery)
	}
	if poller.Offset() != 103 {
		t.Errorf("Expected offset 103, got %d", poller.Offset())
	}

	// The next poll acknowledges the batch through the offset
	if _, err := poller.pollOnce(context.Background(), func(context.Context, Update) {}); err != nil {
		t.Fatalf("second pollOnce failed: %v", err)
	}
	calls := api.recorded()
	if offset, ok := calls[1].Payload["offset"].(float64); !ok || offset != 103 {
		t.Errorf("Expected offset 103 in second poll, got %v", calls[1].Payload["offset"])
	}
}

func TestPoller_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	api, server := newFakeAPI(t)
	api.on("getUpdates", func(map[string]any) (int, any) {
		return http.StatusInternalServerError, map[string]any{"ok": false, "description": "boom"}
	})

	poller := NewPoller(NewClient("test-token", server.URL, 1, nil), 1, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- poller.Run(ctx, func(context.Context, Update) {})
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Error("Expected context error from Run")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}
