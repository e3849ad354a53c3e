package domain

import "testing"

func sceneWithSlots(name string, slots int) Scene {
	s := Scene{Name: name, Sources: map[int][]StreamSource{}}
	for i := 1; i <= slots; i++ {
		s.Sources[i] = []StreamSource{{Name: "streamer_1_x", W: 960}}
	}
	return s
}

func TestResolveScenePrefersEventLayouts(t *testing.T) {
	host := Host{Name: "main", Scenes: map[string]Scene{
		"Alpha": sceneWithSlots("Alpha", 2),
		"Wide":  sceneWithSlots("Wide", 2),
	}}
	ev := Event{PreferredLayouts: []string{"Wide"}}

	got, err := ResolveScene(host, ev, 2)
	if err != nil {
		t.Fatalf("ResolveScene: %v", err)
	}
	if got != "Wide" {
		t.Errorf("scene = %q, want Wide", got)
	}
}

func TestResolveScenePreferredWrongCountIgnored(t *testing.T) {
	host := Host{Name: "main", Scenes: map[string]Scene{
		"Solo": sceneWithSlots("Solo", 1),
		"Duo":  sceneWithSlots("Duo", 2),
	}}
	ev := Event{PreferredLayouts: []string{"Solo"}}

	got, err := ResolveScene(host, ev, 2)
	if err != nil {
		t.Fatalf("ResolveScene: %v", err)
	}
	if got != "Duo" {
		t.Errorf("scene = %q, want Duo", got)
	}
}

func TestResolveSceneTieBreaksLexicographically(t *testing.T) {
	host := Host{Name: "main", Scenes: map[string]Scene{
		"Zebra": sceneWithSlots("Zebra", 1),
		"Apple": sceneWithSlots("Apple", 1),
	}}

	got, err := ResolveScene(host, Event{}, 1)
	if err != nil {
		t.Fatalf("ResolveScene: %v", err)
	}
	if got != "Apple" {
		t.Errorf("scene = %q, want Apple", got)
	}
}

func TestResolveSceneNoMatch(t *testing.T) {
	host := Host{Name: "main", Scenes: map[string]Scene{
		"Solo": sceneWithSlots("Solo", 1),
	}}
	if _, err := ResolveScene(host, Event{}, 3); err == nil {
		t.Fatal("expected error for impossible runner count")
	}
}

func TestBestStreamURLPicksSmallestSufficientWidth(t *testing.T) {
	urls := map[string]string{
		"best":    "https://cdn/best.m3u8",
		"1080p60": "https://cdn/1080p60.m3u8",
		"720p60":  "https://cdn/720p60.m3u8",
		"480p":    "https://cdn/480p.m3u8",
	}

	url, width, ok := BestStreamURL(700, 60, urls)
	if !ok {
		t.Fatal("expected a url")
	}
	if url != "https://cdn/720p60.m3u8" {
		t.Errorf("url = %q, want 720p60", url)
	}
	if width != 720 {
		t.Errorf("width = %d, want 720", width)
	}
}

func TestBestStreamURLPrefers60FPSOnFastHosts(t *testing.T) {
	urls := map[string]string{
		"720p":   "https://cdn/720p.m3u8",
		"720p60": "https://cdn/720p60.m3u8",
	}

	url, _, ok := BestStreamURL(720, 60, urls)
	if !ok {
		t.Fatal("expected a url")
	}
	if url != "https://cdn/720p60.m3u8" {
		t.Errorf("url = %q, want the 60fps rendition", url)
	}
}

func TestBestStreamURLFallsBackToBest(t *testing.T) {
	urls := map[string]string{
		"best": "https://cdn/best.m3u8",
		"480p": "https://cdn/480p.m3u8",
	}

	url, _, ok := BestStreamURL(1920, 30, urls)
	if !ok {
		t.Fatal("expected a url")
	}
	if url != "https://cdn/best.m3u8" {
		t.Errorf("url = %q, want best", url)
	}
}

func TestBestStreamURLEmpty(t *testing.T) {
	if _, _, ok := BestStreamURL(1920, 30, nil); ok {
		t.Fatal("expected no url for empty map")
	}
}
