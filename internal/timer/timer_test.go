package timer

import "testing"

func TestStatus(t *testing.T) {
	start, end := int64(1000), int64(2000)

	cases := []struct {
		name  string
		start *int64
		end   *int64
		want  string
	}{
		{"no endpoints", nil, nil, StatusStopped},
		{"running", &start, nil, StatusRunning},
		{"paused", &start, &end, StatusPaused},
		{"end without start", nil, &end, StatusStopped},
	}
	for _, tc := range cases {
		if got := Status(tc.start, tc.end); got != tc.want {
			t.Errorf("%s: Status = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestElapsedMs(t *testing.T) {
	start, end := int64(1000), int64(4000)

	if got := ElapsedMs(nil, nil, 9000); got != 0 {
		t.Errorf("stopped elapsed = %d, want 0", got)
	}
	if got := ElapsedMs(&start, nil, 9000); got != 8000 {
		t.Errorf("running elapsed = %d, want 8000", got)
	}
	if got := ElapsedMs(&start, &end, 9000); got != 3000 {
		t.Errorf("paused elapsed = %d, want 3000", got)
	}
}
