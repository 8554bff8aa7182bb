package alerts_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ogulcanaydogan/LLM-Provider-Gateway/pkg/alerts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlackNotifier_Name(t *testing.T) {
	n := alerts.NewSlackNotifier("https://hooks.slack.com/test", "#test")
	assert.Equal(t, "slack", n.Name())
}

func TestSlackNotifier_Send(t *testing.T) {
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, http.MethodPost, r.Method)

		err := json.NewDecoder(r.Body).Decode(&received)
		require.NoError(t, err)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := alerts.NewSlackNotifier(server.URL, "#llm-gateway")
	alert := alerts.Alert{
		Level:        alerts.AlertWarning,
		Period:       "daily",
		SpendUSD:     8.5,
		LimitUSD:     10,
		UsagePct:     85,
		ThresholdPct: 80,
		Outstanding:  2,
		Message:      "daily budget at 85.0%",
	}

	err := n.Send(context.Background(), alert)
	require.NoError(t, err)
	assert.Equal(t, "#llm-gateway", received["channel"])
	assert.Equal(t, "LLM gateway daily budget warning", received["text"])

	attachments, ok := received["attachments"].([]any)
	require.True(t, ok)
	require.Len(t, attachments, 1)
	blocks := attachments[0].(map[string]any)["blocks"].([]any)
	require.Len(t, blocks, 4)

	header := blocks[0].(map[string]any)
	assert.Equal(t, "header", header["type"])
	assert.Equal(t, "LLM gateway daily budget warning", header["text"].(map[string]any)["text"])

	summary := blocks[1].(map[string]any)
	assert.Equal(t, "daily budget at 85.0%", summary["text"].(map[string]any)["text"])

	fields := blocks[2].(map[string]any)["fields"].([]any)
	require.Len(t, fields, 4)
	assert.Equal(t, "*Spend*\n$8.50", fields[0].(map[string]any)["text"])
	assert.Equal(t, "*In flight*\n2 reservations", fields[3].(map[string]any)["text"])
}

func TestSlackNotifier_Send_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	n := alerts.NewSlackNotifier(server.URL, "#test")
	err := n.Send(context.Background(), alerts.Alert{Level: alerts.AlertWarning})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "slack returned status 500")
}

func TestSlackNotifier_Send_ErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("no_service\n"))
	}))
	defer server.Close()

	n := alerts.NewSlackNotifier(server.URL, "")
	err := n.Send(context.Background(), alerts.Alert{Level: alerts.AlertExceeded})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404: no_service")
}

func TestSlackNotifier_AlertLevelColors(t *testing.T) {
	tests := []struct {
		level alerts.AlertLevel
		color string
	}{
		{alerts.AlertWarning, "#ff9900"},
		{alerts.AlertCritical, "#ff0000"},
		{alerts.AlertExceeded, "#cc0000"},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			var received map[string]any
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewDecoder(r.Body).Decode(&received)
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			n := alerts.NewSlackNotifier(server.URL, "#test")
			err := n.Send(context.Background(), alerts.Alert{Level: tt.level, LimitUSD: 100})
			require.NoError(t, err)

			first := received["attachments"].([]any)[0].(map[string]any)
			assert.Equal(t, tt.color, first["color"])
		})
	}
}

func TestAlertLevel_Rank(t *testing.T) {
	assert.Less(t, alerts.AlertLevel("").Rank(), alerts.AlertWarning.Rank())
	assert.Less(t, alerts.AlertWarning.Rank(), alerts.AlertCritical.Rank())
	assert.Less(t, alerts.AlertCritical.Rank(), alerts.AlertExceeded.Rank())
}
