package compositor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// fakeCompositor speaks the wire protocol over a real websocket.
type fakeCompositor struct {
	server *httptest.Server
	conns  chan *websocket.Conn
}

func newFakeCompositor(t *testing.T, handle func(conn *websocket.Conn, f frame)) *fakeCompositor {
	t.Helper()
	upgrader := websocket.Upgrader{}
	fc := &fakeCompositor{conns: make(chan *websocket.Conn, 1)}

	fc.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		select {
		case fc.conns <- conn:
		default:
		}
		for {
			var f frame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			if f.Op == "request" && f.Type == "Identify" {
				conn.WriteJSON(frame{Op: "response", ID: f.ID, Status: &status{Result: true}})
				continue
			}
			handle(conn, f)
		}
	}))
	t.Cleanup(fc.server.Close)
	return fc
}

func (fc *fakeCompositor) url() string {
	return "ws" + strings.TrimPrefix(fc.server.URL, "http")
}

func TestCallMatchesResponsesByID(t *testing.T) {
	fc := newFakeCompositor(t, func(conn *websocket.Conn, f frame) {
		if f.Type == OpGetSceneList {
			data, _ := json.Marshal(SceneList{
				CurrentProgramScene: "S1",
				Scenes:              []SceneInfo{{Name: "S1"}},
			})
			conn.WriteJSON(frame{Op: "response", ID: f.ID, Data: data, Status: &status{Result: true}})
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := Dial(ctx, fc.url(), "")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	list, err := GetSceneList(ctx, client)
	if err != nil {
		t.Fatalf("GetSceneList: %v", err)
	}
	if list.CurrentProgramScene != "S1" || len(list.Scenes) != 1 {
		t.Errorf("list = %+v", list)
	}
}

func TestCallSurfacesFailureComment(t *testing.T) {
	fc := newFakeCompositor(t, func(conn *websocket.Conn, f frame) {
		conn.WriteJSON(frame{Op: "response", ID: f.ID, Status: &status{Result: false, Comment: "no such scene"}})
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := Dial(ctx, fc.url(), "")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	err = SetProgramScene(ctx, client, "Nope")
	if err == nil || !strings.Contains(err.Error(), "no such scene") {
		t.Fatalf("err = %v, want the compositor's comment", err)
	}
}

func TestEventsDelivered(t *testing.T) {
	fc := newFakeCompositor(t, func(conn *websocket.Conn, f frame) {})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := Dial(ctx, fc.url(), "")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	conn := <-fc.conns
	data, _ := json.Marshal(ProgramSceneChanged{SceneName: "S2"})
	if err := conn.WriteJSON(frame{Op: "event", Type: EventProgramSceneChanged, Data: data}); err != nil {
		t.Fatalf("server write: %v", err)
	}

	select {
	case ev := <-client.Events():
		if ev.Type != EventProgramSceneChanged {
			t.Errorf("event type = %q", ev.Type)
		}
		var payload ProgramSceneChanged
		if err := json.Unmarshal(ev.Data, &payload); err != nil || payload.SceneName != "S2" {
			t.Errorf("payload = %+v err = %v", payload, err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
	}
}
