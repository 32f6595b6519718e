package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTelegramSend(t *testing.T) {
	ctx := context.Background()

	t.Run("posts sendMessage with chat id and text", func(t *testing.T) {
		var gotPath string
		var gotBody map[string]string

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
			w.Write([]byte(`{"ok":true}`))
		}))
		defer srv.Close()

		tg := NewTelegram("test-token", "12345", slog.Default())
		tg.SetBaseURL(srv.URL)

		err := tg.ProductAvailable(ctx, "Hot Wheels Batmobile", "https://example.com/p/1", "Home")
		require.NoError(t, err)

		assert.Equal(t, "/bottest-token/sendMessage", gotPath)
		assert.Equal(t, "12345", gotBody["chat_id"])
		assert.Contains(t, gotBody["text"], "AVAILABLE")
		assert.Contains(t, gotBody["text"], "Hot Wheels Batmobile")
		assert.Contains(t, gotBody["text"], "https://example.com/p/1")
	})

	t.Run("cart alert names the product and location", func(t *testing.T) {
		var gotBody map[string]string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewDecoder(r.Body).Decode(&gotBody)
			w.Write([]byte(`{"ok":true}`))
		}))
		defer srv.Close()

		tg := NewTelegram("tok", "chat", slog.Default())
		tg.SetBaseURL(srv.URL)

		require.NoError(t, tg.CartAlert(ctx, "Hot Wheels Batmobile", "https://example.com/p/1", "Office"))
		assert.Contains(t, gotBody["text"], "CART")
		assert.Contains(t, gotBody["text"], "Office")
	})

	t.Run("non-200 response surfaces as an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"ok":false,"description":"Unauthorized"}`))
		}))
		defer srv.Close()

		tg := NewTelegram("bad-token", "chat", slog.Default())
		tg.SetBaseURL(srv.URL)

		err := tg.Alert(ctx, "title", "message")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "401")
	})

	t.Run("unreachable host surfaces as an error", func(t *testing.T) {
		tg := NewTelegram("tok", "chat", slog.Default())
		tg.SetBaseURL("http://127.0.0.1:1")

		assert.Error(t, tg.Alert(ctx, "title", "message"))
	})
}

func TestNoop(t *testing.T) {
	ctx := context.Background()
	n := Noop{}
	assert.NoError(t, n.ProductAvailable(ctx, "p", "u", "l"))
	assert.NoError(t, n.CartAlert(ctx, "p", "u", "l"))
	assert.NoError(t, n.Alert(ctx, "t", "m"))
}
