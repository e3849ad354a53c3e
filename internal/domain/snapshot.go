package domain

// AMState is the full authoritative state broadcast to every
// state-subscriber. Snapshots are value copies; subscribers never observe a
// partial mutation.
type AMState struct {
	// Revision increases by one per applied mutation.
	Revision uint64 `json:"revision"`

	People       map[int64]Person  `json:"people"`
	Runners      map[int64]Runner  `json:"runners"`
	Events       map[int64]Event   `json:"events"`
	Streams      map[int64]Stream  `json:"streams"`
	Hosts        map[string]Host   `json:"hosts"`
	CustomFields map[string]string `json:"custom_fields"`
	Lock         LockState         `json:"lock"`
}

// NewAMState returns an empty state with all maps allocated.
func NewAMState() AMState {
	return AMState{
		People:       make(map[int64]Person),
		Runners:      make(map[int64]Runner),
		Events:       make(map[int64]Event),
		Streams:      make(map[int64]Stream),
		Hosts:        make(map[string]Host),
		CustomFields: make(map[string]string),
	}
}

// Clone deep-copies the state for copy-on-broadcast publication.
func (s AMState) Clone() AMState {
	out := s
	out.People = make(map[int64]Person, len(s.People))
	for k, v := range s.People {
		out.People[k] = v
	}
	out.Runners = make(map[int64]Runner, len(s.Runners))
	for k, v := range s.Runners {
		v.ResolvedURLs = copyMap(v.ResolvedURLs)
		out.Runners[k] = v
	}
	out.Events = make(map[int64]Event, len(s.Events))
	for k, v := range s.Events {
		v.PreferredLayouts = append([]string(nil), v.PreferredLayouts...)
		v.Commentators = append([]int64(nil), v.Commentators...)
		rs := make(map[int64]RunnerEntry, len(v.RunnerState))
		for rk, rv := range v.RunnerState {
			if rv.Result != nil {
				res := *rv.Result
				rv.Result = &res
			}
			rs[rk] = rv
		}
		v.RunnerState = rs
		out.Events[k] = v
	}
	out.Streams = make(map[int64]Stream, len(s.Streams))
	for k, v := range s.Streams {
		sr := make(map[int]int64, len(v.StreamRunners))
		for sk, sv := range v.StreamRunners {
			sr[sk] = sv
		}
		v.StreamRunners = sr
		if v.AudibleRunner != nil {
			a := *v.AudibleRunner
			v.AudibleRunner = &a
		}
		out.Streams[k] = v
	}
	out.Hosts = make(map[string]Host, len(s.Hosts))
	for k, v := range s.Hosts {
		scenes := make(map[string]Scene, len(v.Scenes))
		for sk, sv := range v.Scenes {
			src := make(map[int][]StreamSource, len(sv.Sources))
			for idx, list := range sv.Sources {
				src[idx] = append([]StreamSource(nil), list...)
			}
			sv.Sources = src
			scenes[sk] = sv
		}
		v.Scenes = scenes
		users := make(map[string]VoiceUser, len(v.VoiceUsers))
		for uk, uv := range v.VoiceUsers {
			if uv.Participant != nil {
				p := *uv.Participant
				uv.Participant = &p
			}
			users[uk] = uv
		}
		v.VoiceUsers = users
		out.Hosts[k] = v
	}
	out.CustomFields = copyMap(s.CustomFields)
	return out
}

func copyMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// StreamForHost returns the stream bound to the named host, if any.
func (s *AMState) StreamForHost(host string) (Stream, bool) {
	for _, st := range s.Streams {
		if st.OBSHost == host {
			return st, true
		}
	}
	return Stream{}, false
}
