package store

import (
	"path/filepath"
	"reflect"
	"testing"

	"github.com/BrickBench/AutoMarathon/internal/domain"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "am.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func TestOpenCreatesLockSingleton(t *testing.T) {
	s := testStore(t)
	state, err := s.LoadState()
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if state.Lock.Held() {
		t.Errorf("fresh lock should be unheld, got %+v", state.Lock)
	}
}

func TestPersonRunnerRoundTrip(t *testing.T) {
	s := testStore(t)

	pronouns := "she/her"
	p := domain.Person{Name: "ana", Pronouns: &pronouns, Host: false}
	if err := s.SavePerson(&p); err != nil {
		t.Fatalf("SavePerson: %v", err)
	}
	if p.ID == 0 {
		t.Fatal("SavePerson should assign an id")
	}

	r := domain.Runner{
		Participant:         p.ID,
		StreamURL:           "https://twitch.tv/ana",
		ResolvedURLs:        map[string]string{"best": "https://cdn/a.m3u8", "720p60": "https://cdn/b.m3u8"},
		StreamVolumePercent: 85,
		TheRunHandle:        "ana_runs",
	}
	if err := s.SaveRunner(&r); err != nil {
		t.Fatalf("SaveRunner: %v", err)
	}

	state, err := s.LoadState()
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if got := state.People[p.ID]; !reflect.DeepEqual(got, p) {
		t.Errorf("person = %+v, want %+v", got, p)
	}
	if got := state.Runners[p.ID]; !reflect.DeepEqual(got, r) {
		t.Errorf("runner = %+v, want %+v", got, r)
	}
}

func TestEventJSONColumnsRoundTrip(t *testing.T) {
	s := testStore(t)

	p := domain.Person{Name: "ana"}
	if err := s.SavePerson(&p); err != nil {
		t.Fatalf("SavePerson: %v", err)
	}

	estimate := int64(3600)
	ev := domain.Event{
		Name:             "any%",
		EstimateSec:      &estimate,
		PreferredLayouts: []string{"S2", "S1"},
		Commentators:     []int64{p.ID},
		RunnerState: map[int64]domain.RunnerEntry{
			p.ID: {Runner: p.ID, Result: &domain.RunnerResult{Kind: domain.ResultSingleScore, Score: "57:41"}},
		},
		IsMarathon: true,
	}
	if err := s.SaveEvent(&ev); err != nil {
		t.Fatalf("SaveEvent: %v", err)
	}

	state, err := s.LoadState()
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	got := state.Events[ev.ID]
	if !reflect.DeepEqual(got, ev) {
		t.Errorf("event = %+v, want %+v", got, ev)
	}
	// The result tag survives serialization.
	if got.RunnerState[p.ID].Result.Kind != domain.ResultSingleScore {
		t.Errorf("result kind = %q", got.RunnerState[p.ID].Result.Kind)
	}
}

func TestStreamRoundTripAndDelete(t *testing.T) {
	s := testStore(t)

	ev := domain.Event{Name: "race"}
	if err := s.SaveEvent(&ev); err != nil {
		t.Fatalf("SaveEvent: %v", err)
	}

	audible := int64(7)
	st := domain.Stream{
		Event: ev.ID, OBSHost: "main",
		AudibleRunner:   &audible,
		RequestedLayout: "S2",
		StreamRunners:   map[int]int64{1: 7, 2: 9},
	}
	if err := s.SaveStream(&st); err != nil {
		t.Fatalf("SaveStream: %v", err)
	}

	state, err := s.LoadState()
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if got := state.Streams[ev.ID]; !reflect.DeepEqual(got, st) {
		t.Errorf("stream = %+v, want %+v", got, st)
	}

	if err := s.DeleteEvent(ev.ID); err != nil {
		t.Fatalf("DeleteEvent: %v", err)
	}
	state, err = s.LoadState()
	if err != nil {
		t.Fatalf("LoadState after delete: %v", err)
	}
	if len(state.Streams) != 0 {
		t.Errorf("stream should cascade with its event: %+v", state.Streams)
	}
}

func TestCustomFieldDelete(t *testing.T) {
	s := testStore(t)

	if err := s.SaveCustomField("k", "v"); err != nil {
		t.Fatalf("SaveCustomField: %v", err)
	}
	if err := s.SaveCustomField("k", ""); err != nil {
		t.Fatalf("delete via empty value: %v", err)
	}
	state, _ := s.LoadState()
	if len(state.CustomFields) != 0 {
		t.Errorf("fields = %v, want empty", state.CustomFields)
	}
}

func TestLockPersistence(t *testing.T) {
	s := testStore(t)
	want := domain.LockState{Editor: "alice", HeartbeatMs: 123456}
	if err := s.SaveLock(want); err != nil {
		t.Fatalf("SaveLock: %v", err)
	}
	state, _ := s.LoadState()
	if state.Lock != want {
		t.Errorf("lock = %+v, want %+v", state.Lock, want)
	}
}

func TestHostConfigSeedsHosts(t *testing.T) {
	s := testStore(t)
	if err := s.SaveHostConfig(HostConfig{Name: "main", Endpoint: "ws://h:4455"}); err != nil {
		t.Fatalf("SaveHostConfig: %v", err)
	}
	state, _ := s.LoadState()
	if _, ok := state.Hosts["main"]; !ok {
		t.Errorf("hosts = %v, want main seeded", state.Hosts)
	}
}
