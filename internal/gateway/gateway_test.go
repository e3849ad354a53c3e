package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/BrickBench/AutoMarathon/internal/audio"
	"github.com/BrickBench/AutoMarathon/internal/domain"
	"github.com/BrickBench/AutoMarathon/internal/hub"
	"github.com/BrickBench/AutoMarathon/internal/slashcmd"
	"github.com/BrickBench/AutoMarathon/internal/store"
)

const testSecret = "marathon-secret"

type fixture struct {
	hub    *hub.Hub
	router *gin.Engine
	now    *int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st, err := store.Open(filepath.Join(t.TempDir(), "am.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	if err := st.SaveHostConfig(store.HostConfig{Name: "main"}); err != nil {
		t.Fatalf("SaveHostConfig: %v", err)
	}

	now := int64(1_000_000)
	clock := func() int64 { return now }
	h, err := hub.New(st, clock)
	if err != nil {
		t.Fatalf("hub.New: %v", err)
	}
	h.Start(context.Background())
	t.Cleanup(func() {
		h.Stop()
		<-h.Done()
	})

	sessions := NewSessions(testSecret, time.Hour)
	cmds := slashcmd.New(h, nil, nil)
	gw := New(h, sessions, audio.NewLevelsBus(), cmds, clock)

	return &fixture{hub: h, router: gw.Router(), now: &now}
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode envelope: %v (%s)", err, w.Body.String())
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			t.Fatalf("decode data: %v (%s)", err, envelope.Data)
		}
	}
}

func errorKind(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Kind string `json:"error_kind"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode error envelope: %v (%s)", err, w.Body.String())
	}
	return envelope.Error.Kind
}

func TestUnauthenticatedRejected(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/participant", "", domain.Person{Name: "ana"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if kind := errorKind(t, w); kind != "ERR_UNAUTHORIZED" {
		t.Errorf("kind = %q", kind)
	}
}

func TestSessionIssueAndUse(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/session", "", map[string]string{"secret": "wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong secret status = %d, want 401", w.Code)
	}

	w = f.do(t, http.MethodPost, "/session", "", map[string]string{"secret": testSecret, "name": "alice"})
	if w.Code != http.StatusOK {
		t.Fatalf("session status = %d: %s", w.Code, w.Body.String())
	}
	var data struct {
		Token string `json:"token"`
	}
	decodeData(t, w, &data)
	if data.Token == "" {
		t.Fatal("empty token")
	}

	w = f.do(t, http.MethodPost, "/participant", data.Token, domain.Person{Name: "ana"})
	if w.Code != http.StatusOK {
		t.Fatalf("create person with token status = %d: %s", w.Code, w.Body.String())
	}
}

func TestSharedSecretActsAsBearer(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/participant", testSecret, domain.Person{Name: "ana"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var created domain.Person
	decodeData(t, w, &created)
	if created.ID == 0 || created.Name != "ana" {
		t.Errorf("created = %+v", created)
	}
}

func TestDeleteRunnerInUseSurfacesKind(t *testing.T) {
	f := newFixture(t)

	var ana domain.Person
	w := f.do(t, http.MethodPost, "/participant", testSecret, domain.Person{Name: "ana"})
	decodeData(t, w, &ana)

	w = f.do(t, http.MethodPost, "/runner", testSecret, domain.Runner{Participant: ana.ID, StreamVolumePercent: 100})
	if w.Code != http.StatusOK {
		t.Fatalf("create runner: %d %s", w.Code, w.Body.String())
	}

	var ev domain.Event
	w = f.do(t, http.MethodPost, "/event", testSecret, domain.Event{
		Name:        "any%",
		RunnerState: map[int64]domain.RunnerEntry{ana.ID: {Runner: ana.ID}},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("create event: %d %s", w.Code, w.Body.String())
	}
	decodeData(t, w, &ev)

	w = f.do(t, http.MethodDelete, "/runner", testSecret, map[string]int64{"id": ana.ID})
	if w.Code != http.StatusConflict {
		t.Fatalf("delete in-use runner status = %d, want 409", w.Code)
	}
	if kind := errorKind(t, w); kind != "ERR_IN_USE" {
		t.Errorf("kind = %q, want ERR_IN_USE", kind)
	}

	w = f.do(t, http.MethodDelete, "/event", testSecret, map[string]int64{"id": ev.ID})
	if w.Code != http.StatusOK {
		t.Fatalf("delete event: %d", w.Code)
	}
	w = f.do(t, http.MethodDelete, "/runner", testSecret, map[string]int64{"id": ana.ID})
	if w.Code != http.StatusOK {
		t.Fatalf("delete runner after event removal: %d %s", w.Code, w.Body.String())
	}
}

func TestLayoutMutationRequiresLock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var ev domain.Event
	w := f.do(t, http.MethodPost, "/event", testSecret, domain.Event{Name: "any%"})
	decodeData(t, w, &ev)
	w = f.do(t, http.MethodPost, "/stream", testSecret, domain.Stream{Event: ev.ID, OBSHost: "main"})
	if w.Code != http.StatusOK {
		t.Fatalf("create stream: %d %s", w.Code, w.Body.String())
	}

	// Updating the stream rearranges the layout, so it needs the lock.
	w = f.do(t, http.MethodPut, "/stream", testSecret, domain.Stream{Event: ev.ID, OBSHost: "main"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
	if kind := errorKind(t, w); kind != "ERR_NOT_LOCK_HOLDER" {
		t.Errorf("kind = %q, want ERR_NOT_LOCK_HOLDER", kind)
	}

	// The session named "operator" claims the lock and may mutate.
	if _, err := f.hub.Apply(ctx, hub.ClaimLock{Editor: "operator"}); err != nil {
		t.Fatalf("claim: %v", err)
	}
	w = f.do(t, http.MethodPut, "/stream", testSecret, domain.Stream{Event: ev.ID, OBSHost: "main"})
	if w.Code != http.StatusOK {
		t.Fatalf("status with lock = %d: %s", w.Code, w.Body.String())
	}
}

func TestStreamCreationDoesNotNeedLock(t *testing.T) {
	f := newFixture(t)

	var ev domain.Event
	w := f.do(t, http.MethodPost, "/event", testSecret, domain.Event{Name: "any%"})
	decodeData(t, w, &ev)

	w = f.do(t, http.MethodPost, "/stream", testSecret, domain.Stream{Event: ev.ID, OBSHost: "main"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
}

func TestMutationRateLimit(t *testing.T) {
	f := newFixture(t)

	limited := false
	for i := 0; i < 60; i++ {
		w := f.do(t, http.MethodPut, "/custom-field", testSecret,
			map[string]string{"key": "k", "value": "v"})
		if w.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	if !limited {
		t.Fatal("expected the 20/s session budget to trip within 60 calls")
	}
}

func TestGetEventByIDAndHost(t *testing.T) {
	f := newFixture(t)

	var ev domain.Event
	w := f.do(t, http.MethodPost, "/event", testSecret, domain.Event{Name: "any%"})
	decodeData(t, w, &ev)
	f.do(t, http.MethodPost, "/stream", testSecret, domain.Stream{Event: ev.ID, OBSHost: "main"})

	w = f.do(t, http.MethodGet, "/event?host=main", testSecret, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("by host status = %d: %s", w.Code, w.Body.String())
	}
	var got domain.Event
	decodeData(t, w, &got)
	if got.ID != ev.ID {
		t.Errorf("event = %+v, want id %d", got, ev.ID)
	}

	w = f.do(t, http.MethodGet, "/event?host=idle", testSecret, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown host status = %d, want 404", w.Code)
	}
}

func TestCustomFieldEndpoint(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPut, "/custom-field", testSecret,
		map[string]string{"key": "event_pb", "value": "57:41"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var fields map[string]string
	decodeData(t, w, &fields)
	if fields["event_pb"] != "57:41" {
		t.Errorf("fields = %v", fields)
	}
}

func TestCommandWebhook(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/command", testSecret,
		map[string]string{"author": "mod", "text": "/set event_pb 57:41"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var data struct {
		Reply string `json:"reply"`
	}
	decodeData(t, w, &data)
	if data.Reply != "event_pb = 57:41" {
		t.Errorf("reply = %q", data.Reply)
	}
}
