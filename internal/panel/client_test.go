package panel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type panelStub struct {
	t            *testing.T
	logins       int
	updates      int
	failUpdates  int // first N update calls return an empty body
	lastSettings map[string]any
}

func (p *panelStub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		p.logins++
		var creds map[string]string
		require.NoError(p.t, json.NewDecoder(r.Body).Decode(&creds))
		if creds["username"] != "admin" || creds["password"] != "pass" {
			json.NewEncoder(w).Encode(map[string]any{"success": false, "msg": "bad credentials"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"success": true})
	})
	mux.HandleFunc("/panel/api/inbounds/", func(w http.ResponseWriter, r *http.Request) {
		p.updates++
		if p.failUpdates > 0 {
			p.failUpdates--
			return // empty body, looks like a stale session
		}
		require.NoError(p.t, json.NewDecoder(r.Body).Decode(&p.lastSettings))
		json.NewEncoder(w).Encode(map[string]any{"success": true})
	})
	return mux
}

func newTestClient(t *testing.T, stub *panelStub) *Client {
	t.Helper()
	server := httptest.NewServer(stub.handler())
	t.Cleanup(server.Close)

	client, err := NewClient(map[string]string{"fi": server.URL}, "admin", "pass", 1)
	require.NoError(t, err)
	return client
}

func TestEnableClientLogsInFirst(t *testing.T) {
	stub := &panelStub{t: t}
	client := newTestClient(t, stub)

	require.NoError(t, client.EnableClient(context.Background(), "fi", "uid-1", 1700000000000))
	require.Equal(t, 1, stub.logins)
	require.Equal(t, 1, stub.updates)

	settings, ok := stub.lastSettings["settings"].(string)
	require.True(t, ok)
	require.Contains(t, settings, `"id":"uid-1"`)
	require.Contains(t, settings, `"expiryTime":1700000000000`)
	require.Contains(t, settings, `"enable":true`)
}

func TestUpdateReusesSession(t *testing.T) {
	stub := &panelStub{t: t}
	client := newTestClient(t, stub)

	require.NoError(t, client.EnableClient(context.Background(), "fi", "uid-1", 1))
	require.NoError(t, client.UpdateClientExpiry(context.Background(), "fi", "uid-1", 2))
	require.Equal(t, 1, stub.logins)
	require.Equal(t, 2, stub.updates)
}

func TestStaleSessionTriggersRelogin(t *testing.T) {
	stub := &panelStub{t: t, failUpdates: 1}
	client := newTestClient(t, stub)

	require.NoError(t, client.EnableClient(context.Background(), "fi", "uid-1", 1))
	require.Equal(t, 2, stub.logins)
	require.Equal(t, 2, stub.updates)
}

func TestPersistentFailureGivesUp(t *testing.T) {
	stub := &panelStub{t: t, failUpdates: 10}
	client := newTestClient(t, stub)

	err := client.EnableClient(context.Background(), "fi", "uid-1", 1)
	require.Error(t, err)
	require.Equal(t, 3, stub.updates)
}

func TestDisableClient(t *testing.T) {
	stub := &panelStub{t: t}
	client := newTestClient(t, stub)

	require.NoError(t, client.DisableClient(context.Background(), "fi", "uid-1"))

	settings, ok := stub.lastSettings["settings"].(string)
	require.True(t, ok)
	require.Contains(t, settings, `"enable":false`)
}

func TestUnknownRegion(t *testing.T) {
	client := newTestClient(t, &panelStub{t: t})

	err := client.EnableClient(context.Background(), "mars", "uid-1", 1)
	require.ErrorIs(t, err, ErrRegionUnknown)
}
