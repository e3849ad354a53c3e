package hub

import "github.com/BrickBench/AutoMarathon/internal/domain"

// RunnerMedia is everything a reconciler needs to bind one slot.
type RunnerMedia struct {
	ID            int64
	Name          string
	URLs          map[string]string
	OverrideURL   string
	VolumePercent int
}

// Desired is the per-host target the reconciler converges the compositor
// toward. Streaming is nil until an operator toggles the live state.
type Desired struct {
	Layout    string
	Slots     map[int]RunnerMedia
	Audible   *int64
	Streaming *bool
}

// Equal compares two desired states field by field.
func (d Desired) Equal(o Desired) bool {
	if d.Layout != o.Layout || len(d.Slots) != len(o.Slots) {
		return false
	}
	if (d.Audible == nil) != (o.Audible == nil) {
		return false
	}
	if d.Audible != nil && *d.Audible != *o.Audible {
		return false
	}
	if (d.Streaming == nil) != (o.Streaming == nil) {
		return false
	}
	if d.Streaming != nil && *d.Streaming != *o.Streaming {
		return false
	}
	for slot, m := range d.Slots {
		om, ok := o.Slots[slot]
		if !ok || m.ID != om.ID || m.Name != om.Name ||
			m.OverrideURL != om.OverrideURL || m.VolumePercent != om.VolumePercent {
			return false
		}
		if len(m.URLs) != len(om.URLs) {
			return false
		}
		for q, u := range m.URLs {
			if om.URLs[q] != u {
				return false
			}
		}
	}
	return true
}

// desiredFor derives the target state of one host from the snapshot.
func desiredFor(s *domain.AMState, host string, streaming *bool) Desired {
	d := Desired{Slots: make(map[int]RunnerMedia), Streaming: streaming}

	st, ok := s.StreamForHost(host)
	if !ok {
		return d
	}
	d.Layout = st.RequestedLayout
	if st.AudibleRunner != nil {
		a := *st.AudibleRunner
		d.Audible = &a
	}
	for slot, id := range st.StreamRunners {
		runner, ok := s.Runners[id]
		if !ok {
			continue
		}
		name := ""
		if p, ok := s.People[id]; ok {
			name = p.Name
		}
		urls := make(map[string]string, len(runner.ResolvedURLs))
		for q, u := range runner.ResolvedURLs {
			urls[q] = u
		}
		d.Slots[slot] = RunnerMedia{
			ID:            id,
			Name:          name,
			URLs:          urls,
			OverrideURL:   runner.OverrideStreamURL,
			VolumePercent: runner.StreamVolumePercent,
		}
	}
	return d
}
