package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestGateway(t *testing.T, handler http.HandlerFunc) *GatewayClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewGatewayClient(srv.Client(), srv.URL, "test-token", 100)
}

func TestSend(t *testing.T) {
	t.Parallel()

	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sendMessage" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q", got)
		}
		var req sendMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if req.ChatID != -100123 || req.Text != "hello" {
			t.Errorf("request = %+v", req)
		}
		_ = json.NewEncoder(w).Encode(sendMessageResponse{
			OK:     true,
			Result: gatewayMessage{ID: 900, Date: 1743508800},
		})
	})

	sent, err := gw.Send(context.Background(), -100123, "hello")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if sent.ID != 900 {
		t.Fatalf("Send() id = %d, want 900", sent.ID)
	}
	if sent.Timestamp.Unix() != 1743508800 {
		t.Fatalf("Send() timestamp = %v", sent.Timestamp)
	}
}

func TestRecentNewestFirst(t *testing.T) {
	t.Parallel()

	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chatHistory" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("limit"); got != "5" {
			t.Errorf("limit = %q", got)
		}
		_ = json.NewEncoder(w).Encode(historyResponse{
			OK: true,
			Result: []gatewayMessage{
				{ID: 3, Text: "newest", Date: 300, SenderID: 7},
				{ID: 2, Text: "older", Date: 200, SenderID: 8},
			},
		})
	})

	msgs, err := gw.Recent(context.Background(), 1, 5)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("Recent() = %d messages, want 2", len(msgs))
	}
	if msgs[0].ID != 3 || msgs[0].Text != "newest" || msgs[0].SenderID != 7 {
		t.Fatalf("first message = %+v", msgs[0])
	}
	if !msgs[0].Timestamp.Equal(time.Unix(300, 0)) {
		t.Fatalf("timestamp = %v", msgs[0].Timestamp)
	}
}

func TestDeleteGatewayRefusal(t *testing.T) {
	t.Parallel()

	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(okResponse{OK: false})
	})
	if err := gw.Delete(context.Background(), 1, 2); err == nil {
		t.Fatal("Delete() error = nil for ok=false")
	}
}

func TestCallHTTPError(t *testing.T) {
	t.Parallel()

	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "session expired", http.StatusUnauthorized)
	})
	if _, err := gw.Me(context.Background()); err == nil {
		t.Fatal("Me() error = nil for http 401")
	}
}

func TestDialogs(t *testing.T) {
	t.Parallel()

	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(dialogsResponse{
			OK:     true,
			Result: []gatewayChat{{ID: 1, Title: "Saved Messages"}, {ID: -100123, Title: "Payments"}},
		})
	})
	chats, err := gw.Dialogs(context.Background())
	if err != nil {
		t.Fatalf("Dialogs() error = %v", err)
	}
	if len(chats) != 2 || chats[1].Title != "Payments" {
		t.Fatalf("Dialogs() = %+v", chats)
	}
}
