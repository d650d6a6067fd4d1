package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

func startTestServer(t *testing.T) (*httptest.Server, *Hub) {
	t.Helper()
	hub := NewHub(nil, nil)
	go hub.Run()
	srv := httptest.NewServer(SetupRoutes(hub, t.TempDir(), ""))
	t.Cleanup(func() {
		srv.Close()
		hub.Game().Stop()
	})
	return srv, hub
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

type wsEnv struct {
	T string          `json:"t"`
	D json.RawMessage `json:"d"`
}

func sendMsg(t *testing.T, conn *websocket.Conn, msgType string, data interface{}) {
	t.Helper()
	payload := map[string]interface{}{"t": msgType}
	if data != nil {
		payload["d"] = data
	}
	if err := conn.WriteJSON(payload); err != nil {
		t.Fatalf("write %s: %v", msgType, err)
	}
}

// readEnvelope discards frames until a text envelope of the wanted type
// arrives
func readEnvelope(t *testing.T, conn *websocket.Conn, want string) wsEnv {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		msgType, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %q: %v", want, err)
		}
		if msgType != websocket.TextMessage {
			continue
		}
		var env wsEnv
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("bad envelope: %v", err)
		}
		if env.T == want {
			return env
		}
	}
}

// readSnapshotUntil discards frames until a binary snapshot satisfying ok
// arrives
func readSnapshotUntil(t *testing.T, conn *websocket.Conn, ok func(GameSnapshot) bool) GameSnapshot {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		msgType, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for snapshot: %v", err)
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		var snap GameSnapshot
		if err := msgpack.Unmarshal(raw, &snap); err != nil {
			t.Fatalf("bad snapshot: %v", err)
		}
		if ok(snap) {
			return snap
		}
	}
}

func joinAndAssign(t *testing.T, conn *websocket.Conn) AssignedMsg {
	t.Helper()
	sendMsg(t, conn, MsgJoin, nil)
	env := readEnvelope(t, conn, MsgAssigned)
	var assigned AssignedMsg
	if err := json.Unmarshal(env.D, &assigned); err != nil {
		t.Fatalf("bad assignment: %v", err)
	}
	return assigned
}

func TestEndToEndEconomicWin(t *testing.T) {
	srv, _ := startTestServer(t)

	c1 := dialWS(t, srv)
	a1 := joinAndAssign(t, c1)
	if a1.Team != TeamBlue || a1.Role != RoleQueen {
		t.Fatalf("first join: expected blue queen, got %s %s", a1.Team, a1.Role)
	}

	c2 := dialWS(t, srv)
	a2 := joinAndAssign(t, c2)
	if a2.Team != TeamGold || a2.Role != RoleQueen {
		t.Fatalf("second join: expected gold queen, got %s %s", a2.Team, a2.Role)
	}
	readSnapshotUntil(t, c2, func(s GameSnapshot) bool { return s.Status == StatusPlaying })

	c3 := dialWS(t, srv)
	a3 := joinAndAssign(t, c3)
	if a3.Team != TeamBlue || a3.Role != RoleWorker {
		t.Fatalf("third join: expected blue worker, got %s %s", a3.Team, a3.Role)
	}

	for i := 0; i < BerryWinCount; i++ {
		sendMsg(t, c3, MsgCollectBerry, nil)
	}

	env := readEnvelope(t, c1, MsgGameOver)
	var over GameOverMsg
	if err := json.Unmarshal(env.D, &over); err != nil {
		t.Fatalf("bad gameOver: %v", err)
	}
	if over.Winner != TeamBlue || over.Reason != ReasonEconomic {
		t.Fatalf("expected blue economic win, got %+v", over)
	}

	snap := readSnapshotUntil(t, c3, func(s GameSnapshot) bool { return s.Status == StatusEnded })
	if snap.BlueBerries != BerryWinCount {
		t.Errorf("expected %d blue berries, got %d", BerryWinCount, snap.BlueBerries)
	}
	if len(snap.Players) != 3 {
		t.Errorf("expected 3 players in snapshot, got %d", len(snap.Players))
	}
}

func TestEndToEndReconnect(t *testing.T) {
	srv, hub := startTestServer(t)

	c1 := dialWS(t, srv)
	a1 := joinAndAssign(t, c1)
	c2 := dialWS(t, srv)
	joinAndAssign(t, c2)

	c1.Close()

	// The drop is processed asynchronously; the seat must survive the grace
	deadline := time.Now().Add(2 * time.Second)
	for hub.Game().PlayerCount() != 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if !hub.Game().HasPlayer(a1.PlayerID) {
		t.Fatal("seat should survive the disconnect grace")
	}

	c3 := dialWS(t, srv)
	sendMsg(t, c3, MsgReconnect, ReconnectMsg{PlayerID: a1.PlayerID})
	env := readEnvelope(t, c3, MsgAssigned)
	var resumed AssignedMsg
	if err := json.Unmarshal(env.D, &resumed); err != nil {
		t.Fatalf("bad assignment: %v", err)
	}
	if resumed.PlayerID != a1.PlayerID || resumed.Team != a1.Team || resumed.Role != a1.Role {
		t.Errorf("identity should survive reconnect: had %+v, got %+v", a1, resumed)
	}

	readSnapshotUntil(t, c3, func(s GameSnapshot) bool {
		p, ok := s.Players[a1.PlayerID]
		return ok && p.Active
	})
}

func TestEndToEndReconnectSurvivesStaleClose(t *testing.T) {
	srv, hub := startTestServer(t)

	c1 := dialWS(t, srv)
	a1 := joinAndAssign(t, c1)

	// Rebind the identity on a new connection while c1 is still open
	c3 := dialWS(t, srv)
	sendMsg(t, c3, MsgReconnect, ReconnectMsg{PlayerID: a1.PlayerID})
	env := readEnvelope(t, c3, MsgAssigned)
	var resumed AssignedMsg
	if err := json.Unmarshal(env.D, &resumed); err != nil {
		t.Fatalf("bad assignment: %v", err)
	}
	if resumed.PlayerID != a1.PlayerID {
		t.Fatalf("expected resumed identity, got %+v", resumed)
	}

	// The lingering old connection drops; its teardown must not touch the
	// rebound session
	c1.Close()

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if !hub.Game().HasPlayer(a1.PlayerID) {
			t.Fatal("stale teardown deleted the rebound player")
		}
		if !hub.Game().Snapshot().Players[a1.PlayerID].Active {
			t.Fatal("stale teardown deactivated the rebound player")
		}
		time.Sleep(20 * time.Millisecond)
	}

	// The rebound session still acts on the game
	sendMsg(t, c3, MsgPlayerUpdate, PlayerUpdateMsg{Position: Vec3{1, 0, 1}})
	readSnapshotUntil(t, c3, func(s GameSnapshot) bool {
		p, ok := s.Players[a1.PlayerID]
		return ok && p.Active
	})
}

func TestEndToEndReconnectUnknownID(t *testing.T) {
	srv, _ := startTestServer(t)

	c1 := dialWS(t, srv)
	sendMsg(t, c1, MsgReconnect, ReconnectMsg{PlayerID: "stale-from-before-restart"})
	env := readEnvelope(t, c1, MsgAssigned)
	var assigned AssignedMsg
	if err := json.Unmarshal(env.D, &assigned); err != nil {
		t.Fatalf("bad assignment: %v", err)
	}
	if assigned.PlayerID == "" || assigned.PlayerID == "stale-from-before-restart" {
		t.Errorf("stale id should yield a fresh identity, got %q", assigned.PlayerID)
	}
}

func TestEndToEndDuplicateJoinIgnored(t *testing.T) {
	srv, hub := startTestServer(t)

	c1 := dialWS(t, srv)
	joinAndAssign(t, c1)
	sendMsg(t, c1, MsgJoin, nil)

	time.Sleep(100 * time.Millisecond)
	if n := hub.Game().PlayerCount(); n != 1 {
		t.Errorf("duplicate join should be ignored, roster has %d", n)
	}
}

func TestEndToEndMovementDelta(t *testing.T) {
	srv, _ := startTestServer(t)

	c1 := dialWS(t, srv)
	joinAndAssign(t, c1)
	c2 := dialWS(t, srv)
	a2 := joinAndAssign(t, c2)

	sendMsg(t, c2, MsgPlayerUpdate, PlayerUpdateMsg{
		Position: Vec3{3.14159, 0, -1.005},
		Rotation: Vec3{0, 1.5708, 0},
	})

	env := readEnvelope(t, c1, MsgPositionUpdate)
	var upd PositionUpdateMsg
	if err := json.Unmarshal(env.D, &upd); err != nil {
		t.Fatalf("bad delta: %v", err)
	}
	if upd.ID != a2.PlayerID {
		t.Errorf("delta should carry the mover's id, got %q", upd.ID)
	}
	if upd.Position[0] != 3.14 || upd.Rotation[1] != 1.57 {
		t.Errorf("delta should be rounded: %+v", upd)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := startTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		OK      bool   `json:"ok"`
		Players int    `json:"players"`
		Status  string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.OK || body.Status != string(StatusWaiting) {
		t.Errorf("unexpected health body: %+v", body)
	}
}

func TestQREndpoint(t *testing.T) {
	srv, _ := startTestServer(t)

	resp, err := http.Get(srv.URL + "/qr")
	if err != nil {
		t.Fatalf("qr: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("expected image/png, got %s", ct)
	}
}
