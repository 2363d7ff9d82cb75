package web_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/hardware/can"
	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/head/bsi"
	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/head/web"
	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/log2"
	"github.com/kyrylomyronov-mr/Peugeot-308-SMEG/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type env struct {
	g   *state.Global
	srv *httptest.Server
}

func newEnv(t *testing.T) *env {
	_, g := state.NewTestContext(t, "", nil)
	s := web.NewServer(g.Emulator, g.Config.BusProfile, log2.NewTest(t, log2.LDebug))
	s.StreamInterval = 10 * time.Millisecond
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return &env{g: g, srv: srv}
}

func (e *env) do(t testing.TB, method, path, body string) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	var raw json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	return resp.StatusCode, raw
}

func TestState(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	code, b := e.do(t, http.MethodGet, "/api/state", "")
	require.Equal(t, http.StatusOK, code)
	var snap bsi.Snapshot
	require.NoError(t, json.Unmarshal(b, &snap))
	assert.Equal(t, "8040000000000000", snap.Settings.Frame)
	assert.False(t, snap.ClockSet)
	assert.False(t, snap.Running)
}

func TestRequests(t *testing.T) {
	t.Parallel()

	type Case struct {
		name   string
		method string
		path   string
		body   string
		code   int
		errstr string
		check  func(testing.TB, *env)
	}
	cases := []Case{
		{name: "settings-language", method: "POST", path: "/api/settings", body: `{"language":5}`, code: 200,
			check: func(t testing.TB, e *env) {
				assert.Equal(t, "9440000000000000", e.g.Emulator.CurrentSettings().Frame)
			}},
		{name: "settings-units-h24", method: "POST", path: "/api/settings", body: `{"celsius":false,"h24":false}`, code: 200,
			check: func(t testing.TB, e *env) {
				s := e.g.Emulator.CurrentSettings()
				assert.False(t, s.Celsius)
				assert.False(t, s.Hour24)
			}},
		{name: "settings-language-invalid", method: "POST", path: "/api/settings", body: `{"language":40}`, code: 400, errstr: "language=40"},
		{name: "settings-unknown-field", method: "POST", path: "/api/settings", body: `{"volume":1}`, code: 400, errstr: "request body"},
		{name: "settings-body-garbage", method: "POST", path: "/api/settings", body: `{`, code: 400, errstr: "request body"},
		{name: "time", method: "POST", path: "/api/time", body: `{"epoch":1710513000}`, code: 200,
			check: func(t testing.TB, e *env) {
				assert.True(t, e.g.Emulator.ClockSet())
				assert.Contains(t, e.g.Emulator.CurrentTimeISO(), "2024-03-15T14:30")
			}},
		{name: "time-invalid", method: "POST", path: "/api/time", body: `{"epoch":0}`, code: 400, errstr: "epoch=0"},
		{name: "rebroadcast-stopped", method: "POST", path: "/api/rebroadcast?kind=time", code: 409, errstr: "not running"},
		{name: "rebroadcast-kind", method: "POST", path: "/api/rebroadcast?kind=radio", code: 400, errstr: `kind="radio"`},
		{name: "bus-profile", method: "POST", path: "/api/bus", body: `{"profile":"250k"}`, code: 200,
			check: func(t testing.TB, e *env) {
				p, ok := e.g.Emulator.Profile()
				assert.True(t, ok)
				assert.Equal(t, can.Profile{Name: "250k", Bitrate: 250000}, p)
			}},
		{name: "bus-profile-unknown", method: "POST", path: "/api/bus", body: `{"profile":"1m"}`, code: 404, errstr: "bus profile=1m not found"},
		{name: "method", method: "GET", path: "/api/time", code: 405},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			e := newEnv(t)
			req, err := http.NewRequest(c.method, e.srv.URL+c.path, strings.NewReader(c.body))
			require.NoError(t, err)
			resp, err := e.srv.Client().Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			require.Equal(t, c.code, resp.StatusCode)
			if c.errstr != "" {
				var r struct {
					Error string `json:"error"`
				}
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&r))
				assert.Contains(t, r.Error, c.errstr)
			}
			if c.check != nil {
				c.check(t, e)
			}
		})
	}
}

func TestRebroadcastRunning(t *testing.T) {
	t.Parallel()
	ctx, g := state.NewTestContext(t, "", nil)
	require.NoError(t, g.StartBus(ctx))
	m := state.MockTransport(g)
	m.TakeSentID(0x260)
	srv := httptest.NewServer(web.NewServer(g.Emulator, g.Config.BusProfile, log2.NewTest(t, log2.LDebug)))
	defer srv.Close()

	resp, err := srv.Client().Post(srv.URL+"/api/rebroadcast?kind=settings", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sent := m.TakeSentID(0x260)
	require.Len(t, sent, 1)
	assert.Equal(t, "260#8040000000000000", sent[0].String())
}

func TestStream(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var snap bsi.Snapshot
	require.NoError(t, conn.ReadJSON(&snap))
	assert.Equal(t, uint8(0), snap.Settings.Language)

	require.NoError(t, e.g.Emulator.SetLanguage(5))
	// stream catches up within few intervals
	for i := 0; i < 100 && snap.Settings.Language != 5; i++ {
		require.NoError(t, conn.ReadJSON(&snap))
	}
	assert.Equal(t, uint8(5), snap.Settings.Language)
}

func TestTimeKeepsHour24(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.g.Emulator.SetHour24(false)

	code, _ := e.do(t, http.MethodPost, "/api/time", `{"epoch":1710513000}`)
	require.Equal(t, http.StatusOK, code)
	assert.False(t, e.g.Emulator.CurrentSettings().Hour24)

	code, _ = e.do(t, http.MethodPost, "/api/time", `{"epoch":1710513000,"h24":true}`)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, e.g.Emulator.CurrentSettings().Hour24)
}
