package slack_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifeguard/lifeguard/internal/notify"
	"github.com/lifeguard/lifeguard/internal/provider/slack"
)

func TestNotifier_SendMessage(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	n := slack.New(srv.URL, http.DefaultClient, nil, zerolog.Nop())
	receipt, err := n.SendMessage(context.Background(), notify.Message{
		To:   "+15551234",
		Body: "🚨 *LIFEGUARD SOS*\nID: LG-ABC123",
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(receipt.Reference, "slack-"))
	assert.Equal(t, "posted", receipt.Status)

	blocks, ok := got["blocks"].([]any)
	require.True(t, ok)
	require.Len(t, blocks, 3)

	section := blocks[1].(map[string]any)
	text := section["text"].(map[string]any)["text"].(string)
	assert.Contains(t, text, "LG-ABC123")

	ctxBlock := blocks[2].(map[string]any)
	elements := ctxBlock["elements"].([]any)
	assert.Contains(t, elements[0].(map[string]any)["text"], "+15551234")
}

func TestNotifier_WebhookError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("invalid_token"))
	}))
	defer srv.Close()

	n := slack.New(srv.URL, http.DefaultClient, nil, zerolog.Nop())
	_, err := n.SendMessage(context.Background(), notify.Message{Body: "x"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Contains(t, err.Error(), "invalid_token")
}

func TestNotifier_NoWebhook(t *testing.T) {
	n := slack.New("", http.DefaultClient, nil, zerolog.Nop())

	_, err := n.SendMessage(context.Background(), notify.Message{Body: "x"})
	assert.Error(t, err)
}

func TestNotifier_TruncatesLongBody(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	n := slack.New(srv.URL, http.DefaultClient, nil, zerolog.Nop())
	_, err := n.SendMessage(context.Background(), notify.Message{Body: strings.Repeat("a", 5000)})
	require.NoError(t, err)

	section := got["blocks"].([]any)[1].(map[string]any)
	text := section["text"].(map[string]any)["text"].(string)
	assert.Len(t, text, 3000)
	assert.True(t, strings.HasSuffix(text, "..."))
}

func TestNotifier_TruncatesOnRuneBoundary(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	n := slack.New(srv.URL, http.DefaultClient, nil, zerolog.Nop())
	body := "ab" + strings.Repeat("\U0001F6A8", 1000)
	_, err := n.SendMessage(context.Background(), notify.Message{Body: body})
	require.NoError(t, err)

	section := got["blocks"].([]any)[1].(map[string]any)
	text := section["text"].(map[string]any)["text"].(string)
	assert.True(t, utf8.ValidString(text))
	assert.NotContains(t, text, "\uFFFD")
	assert.LessOrEqual(t, len(text), 3000)
	assert.True(t, strings.HasSuffix(text, "\U0001F6A8..."))
}

func TestNotifier_AsChatAdapterTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	adapter := notify.NewChatAdapter(slack.New(srv.URL, nil, nil, zerolog.Nop()), "", "")
	result := adapter.Send(context.Background(), notify.Recipient{Name: "Ops", PhoneNumber: "+15551234"}, testIncident(), nil)

	assert.True(t, result.Delivered())
	assert.Equal(t, "+15551234", result.Target)
}
