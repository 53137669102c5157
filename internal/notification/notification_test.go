package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-backtestv1/internal/model"
)

func entrySignal() model.LatestSignal {
	return model.LatestSignal{
		Symbol: "2330.TW", Strategy: "turtle", HasSignal: true,
		Kind: model.SignalEnterLong, SignalDate: time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC),
		Price: 812.5, CurrentPrice: 815,
	}
}

func TestSignalAlert(t *testing.T) {
	a := SignalAlert(entrySignal())
	assert.Equal(t, AlertInfo, a.Level)
	assert.Equal(t, "turtle 2330.TW", a.Title)
	assert.Contains(t, a.Message, "BUY ENTER_LONG on 2024-05-02 at 812.50")
	require.NotNil(t, a.Signal)

	exit := entrySignal()
	exit.Kind = model.SignalExitLong
	assert.Equal(t, AlertWarning, SignalAlert(exit).Level)

	failed := model.LatestSignal{Symbol: "X", Strategy: "turtle", Error: "data unavailable"}
	a = SignalAlert(failed)
	assert.Equal(t, AlertCritical, a.Level)
	assert.Contains(t, a.Title, "failed")
}

func TestEscapeMarkdown(t *testing.T) {
	assert.Equal(t, `2330\.TW: BUY ENTER\_LONG \(last 1\.5\)`, escapeMarkdown("2330.TW: BUY ENTER_LONG (last 1.5)"))
}

func TestTelegramNotifier(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewTelegramNotifier("TOKEN", "42")
	n.baseURL = srv.URL
	require.NoError(t, n.Send(context.Background(), SignalAlert(entrySignal())))
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "MarkdownV2", got["parse_mode"])
	assert.Contains(t, got["text"], `2330\.TW`)
}

func TestWebhookNotifier(t *testing.T) {
	var got WebhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	require.NoError(t, NewWebhookNotifier(srv.URL).Send(context.Background(), SignalAlert(entrySignal())))
	assert.Equal(t, AlertInfo, got.Level)
	require.NotNil(t, got.Signal)
	assert.Equal(t, 812.5, got.Signal.Price)
	assert.NotEmpty(t, got.TS)
}

func TestWebhookNotifier_Status(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	assert.ErrorContains(t, NewWebhookNotifier(srv.URL).Send(context.Background(), Alert{}), "502")
}

type failing struct{}

func (failing) Name() string                      { return "failing" }
func (failing) Send(context.Context, Alert) error { return errors.New("boom") }

func TestMulti(t *testing.T) {
	m := Multi{NewLogNotifier(), failing{}}
	err := m.Send(context.Background(), Alert{Title: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failing: boom")
	assert.NoError(t, Multi{NewLogNotifier()}.Send(context.Background(), Alert{}))
}
