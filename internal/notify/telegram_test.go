package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"library/internal/models"
)

type fakeBotAPI struct {
	mu   sync.Mutex
	sent []map[string]string
}

func (f *fakeBotAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasSuffix(r.URL.Path, "/getMe"):
		_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Library","username":"library_bot"}}`))
	case strings.HasSuffix(r.URL.Path, "/sendMessage"):
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.sent = append(f.sent, map[string]string{
			"chat_id": r.FormValue("chat_id"),
			"text":    r.FormValue("text"),
		})
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"private"},"text":"ok"}}`))
	default:
		_, _ = w.Write([]byte(`{"ok":false,"error_code":404,"description":"Not Found"}`))
	}
}

func newTestTelegram(t *testing.T) (*Telegram, *fakeBotAPI) {
	t.Helper()
	fake := &fakeBotAPI{}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	notifier, err := NewTelegramWithEndpoint("test-token", server.URL+"/bot%s/%s", 42, server.Client(), zap.NewNop())
	require.NoError(t, err)
	return notifier, fake
}

func TestTelegram_BookBorrowed(t *testing.T) {
	notifier, fake := newTestTelegram(t)

	book := models.Book{ID: "b1", Title: "Dune", Author: "Frank Herbert", ISBN: "9780441013593", Copies: 2}
	borrow := models.Borrow{ID: "r1", BookID: "b1", Quantity: 3, DueDate: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)}

	require.NoError(t, notifier.BookBorrowed(context.Background(), book, borrow))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.sent, 1)
	assert.Equal(t, "42", fake.sent[0]["chat_id"])
	assert.Contains(t, fake.sent[0]["text"], "Dune by Frank Herbert")
	assert.Contains(t, fake.sent[0]["text"], "Quantity: 3")
	assert.Contains(t, fake.sent[0]["text"], "Due: 2025-04-01")
	assert.Contains(t, fake.sent[0]["text"], "Copies left: 2")
}

func TestTelegram_CancelledContext(t *testing.T) {
	notifier, fake := newTestTelegram(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := notifier.BookBorrowed(ctx, models.Book{}, models.Borrow{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, fake.sent)
}

func TestNewTelegram_RejectsBadToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":false,"error_code":401,"description":"Unauthorized"}`))
	}))
	defer server.Close()

	_, err := NewTelegramWithEndpoint("bad", server.URL+"/bot%s/%s", 42, server.Client(), zap.NewNop())
	assert.Error(t, err)
}
