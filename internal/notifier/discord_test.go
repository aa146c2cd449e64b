package notifier_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/italolelis/redump_downloader/internal/notifier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscordNotifier_Notify(t *testing.T) {
	var received map[string]string

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	n := &notifier.DiscordNotifier{WebhookURL: ts.URL}
	require.NoError(t, n.Notify("job done"))
	assert.Equal(t, "job done", received["content"])
}

func TestDiscordNotifier_Notify_Failure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer ts.Close()

	n := &notifier.DiscordNotifier{WebhookURL: ts.URL}
	assert.Error(t, n.Notify("job done"))
}

func TestDiscordNotifier_Notify_NoURL(t *testing.T) {
	n := &notifier.DiscordNotifier{}
	assert.Error(t, n.Notify("job done"))
}
