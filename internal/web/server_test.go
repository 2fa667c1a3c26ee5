package web

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sweeney/water-level/internal/logic"
	"github.com/sweeney/water-level/internal/status"
	"github.com/sweeney/water-level/internal/telemetry"
)

var start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) (*httptest.Server, *status.Tracker, *telemetry.Buffer) {
	t.Helper()
	cfg := status.Config{
		IntervalMs:  5000,
		Samples:     10,
		HeartbeatMs: 900000,
		Broker:      "tcp://192.168.1.200:1883",
		HTTPAddr:    ":8080",
		Schedule:    []string{"00:00-24:00"},
		TankHeight:  2000,
		Upper:       logic.Thresholds{Low: 8, High: 2},
		Lower:       logic.Thresholds{Low: 8, High: 2},
	}
	tr := status.NewTracker(start, cfg)
	buf := telemetry.NewBuffer(telemetry.DefaultCapacity)
	srv := New(":0", tr, buf, zap.NewNop().Sugar())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, tr, buf
}

func getJSON(t *testing.T, url string, v any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return resp
}

func TestJSONEndpoint(t *testing.T) {
	ts, tr, _ := newTestServer(t)
	at := start.Add(time.Minute)
	tr.Update(logic.TankLow, logic.TankOK, logic.RelayState{On: true, Since: at},
		&logic.Event{Timestamp: at, Type: logic.EventReading, Distance: 9, Level: 0.9955, Active: true},
		logic.EventCounts{Readings: 5, RelayOn: 1})
	tr.SetMQTTConnected(true)

	var sj status.StatusJSON
	resp := getJSON(t, ts.URL+"/index.json", &sj)

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}
	if sj.Status.Upper != "LOW" {
		t.Errorf("Upper: got %q, want LOW", sj.Status.Upper)
	}
	if sj.Status.Relay.State != "ON" {
		t.Errorf("Relay: got %q, want ON", sj.Status.Relay.State)
	}
	if !sj.Status.Ready {
		t.Error("expected Ready=true")
	}
	if !sj.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if sj.Status.Counts.Readings != 5 {
		t.Errorf("Counts.Readings: got %d, want 5", sj.Status.Counts.Readings)
	}
	if sj.Status.Config.IntervalMs != 5000 {
		t.Errorf("Config.IntervalMs: got %d, want 5000", sj.Status.Config.IntervalMs)
	}
}

func TestJSONUnknownStateBeforeFirstReading(t *testing.T) {
	ts, _, _ := newTestServer(t)

	var sj status.StatusJSON
	getJSON(t, ts.URL+"/index.json", &sj)

	if sj.Status.Upper != "UNKNOWN" || sj.Status.Lower != "UNKNOWN" {
		t.Errorf("before first reading: got %q/%q, want UNKNOWN", sj.Status.Upper, sj.Status.Lower)
	}
	if sj.Status.Ready {
		t.Error("expected Ready=false")
	}
}

func TestDataEndpointEmpty(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/data")
	if err != nil {
		t.Fatalf("GET /data: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}
	if string(body) != `{"values":[]}` {
		t.Errorf("body: got %s, want {\"values\":[]}", body)
	}
}

func TestDataEndpointPoints(t *testing.T) {
	ts, _, buf := newTestServer(t)
	buf.Append(telemetry.Point{Time: start.Add(1500 * time.Millisecond), Level: 0.25})
	buf.Append(telemetry.Point{Time: start.Add(3 * time.Second), Level: 0.5})

	resp, err := http.Get(ts.URL + "/data")
	if err != nil {
		t.Fatalf("GET /data: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	base := start.Unix() * 1000
	want := `{"values":[[` + itoa(base+1000) + `,0.25],[` + itoa(base+3000) + `,0.5]]}`
	if string(body) != want {
		t.Errorf("body:\ngot:  %s\nwant: %s", body, want)
	}

	var dj DataJSON
	if err := json.Unmarshal(body, &dj); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(dj.Values) != 2 || dj.Values[1].Level != 0.5 {
		t.Errorf("decoded: got %+v", dj.Values)
	}
}

func TestDataEndpointBounded(t *testing.T) {
	ts, _, buf := newTestServer(t)
	for i := 0; i < telemetry.DefaultCapacity+20; i++ {
		buf.Append(telemetry.Point{Time: start.Add(time.Duration(i) * time.Second), Level: 0.5})
	}

	var dj DataJSON
	getJSON(t, ts.URL+"/data", &dj)

	if len(dj.Values) != telemetry.DefaultCapacity {
		t.Fatalf("values: got %d, want %d", len(dj.Values), telemetry.DefaultCapacity)
	}
	if dj.Values[0].Millis != (start.Unix()+20)*1000 {
		t.Errorf("oldest point: got %d", dj.Values[0].Millis)
	}
	for i := 1; i < len(dj.Values); i++ {
		if dj.Values[i].Millis <= dj.Values[i-1].Millis {
			t.Fatalf("values not oldest-first at %d", i)
		}
	}
}

func TestDataPointUnmarshalErrors(t *testing.T) {
	var p DataPoint
	for _, in := range []string{`[1]`, `[1,2,3]`, `["x",1]`, `{}`} {
		if err := json.Unmarshal([]byte(in), &p); err == nil {
			t.Errorf("expected error for %s", in)
		}
	}
}

func TestHTMLEndpointRoot(t *testing.T) {
	ts, tr, _ := newTestServer(t)
	tr.Update(logic.TankOK, logic.TankHigh, logic.RelayState{},
		&logic.Event{Timestamp: start, Type: logic.EventReading, Distance: 500, Level: 0.75},
		logic.EventCounts{Readings: 1})

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type: got %q, want text/html", ct)
	}
	for _, want := range []string{"Water Level", "75.0%", "500.0 cm", "/data", "00:00-24:00"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestHTMLEndpointBeforeFirstReading(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/index.html")
	if err != nil {
		t.Fatalf("GET /index.html: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if !strings.Contains(string(body), "no reading yet") {
		t.Error("expected placeholder before first reading")
	}
}

func TestNotFoundForUnknownPath(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/nonexistent")
	if err != nil {
		t.Fatalf("GET /nonexistent: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

type wsMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func readWS(t *testing.T, conn *websocket.Conn) wsMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg wsMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read ws: %v", err)
	}
	return msg
}

func TestWebSocketHistoryThenPoints(t *testing.T) {
	ts, _, buf := newTestServer(t)
	buf.Append(telemetry.Point{Time: start, Level: 0.1})
	buf.Append(telemetry.Point{Time: start.Add(time.Second), Level: 0.2})

	conn := dialWS(t, ts)

	msg := readWS(t, conn)
	if msg.Type != "history" {
		t.Fatalf("first message: got %q, want history", msg.Type)
	}
	var history []DataPoint
	if err := json.Unmarshal(msg.Data, &history); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(history) != 2 || history[0].Level != 0.1 || history[1].Level != 0.2 {
		t.Errorf("history: got %+v", history)
	}

	buf.Append(telemetry.Point{Time: start.Add(2 * time.Second), Level: 0.3})

	msg = readWS(t, conn)
	if msg.Type != "point" {
		t.Fatalf("second message: got %q, want point", msg.Type)
	}
	var p DataPoint
	if err := json.Unmarshal(msg.Data, &p); err != nil {
		t.Fatalf("decode point: %v", err)
	}
	if p.Level != 0.3 || p.Millis != (start.Unix()+2)*1000 {
		t.Errorf("point: got %+v", p)
	}
}

func TestWebSocketRejectsForeignOrigin(t *testing.T) {
	ts, _, _ := newTestServer(t)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	header := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err == nil {
		t.Fatal("expected handshake failure for foreign origin")
	}
	if resp != nil && resp.StatusCode != http.StatusForbidden {
		t.Errorf("status: got %d, want 403", resp.StatusCode)
	}
}

func itoa(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
