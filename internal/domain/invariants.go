package domain

// ValidateEvent checks that every runner_state key references an existing
// runner and that the timer interval is well-formed.
func ValidateEvent(s *AMState, ev *Event) error {
	for runner := range ev.RunnerState {
		if _, ok := s.Runners[runner]; !ok {
			return Invariantf("invariant 1: runner %d in event %q does not exist", runner, ev.Name)
		}
	}
	for _, c := range ev.Commentators {
		if _, ok := s.People[c]; !ok {
			return Invariantf("commentator %d in event %q does not exist", c, ev.Name)
		}
	}
	return ValidateTimer(ev.TimerStartMs, ev.TimerEndMs)
}

// ValidateTimer checks invariant 5: timer_end >= timer_start when both set.
func ValidateTimer(start, end *int64) error {
	if start != nil && end != nil && *end < *start {
		return Invariantf("invariant 5: timer end %d before start %d", *end, *start)
	}
	return nil
}

// ValidateStream checks invariants 2-4 for a stream against the current
// state. Layout checks are skipped while the host is disconnected and its
// scene graph unknown.
func ValidateStream(s *AMState, st *Stream) error {
	ev, ok := s.Events[st.Event]
	if !ok {
		return Invariantf("stream references unknown event %d", st.Event)
	}

	seen := make(map[int64]int, len(st.StreamRunners))
	for slot, runner := range st.StreamRunners {
		if slot < 1 {
			return Invariantf("invariant 2: slot %d is not 1-based", slot)
		}
		if !ev.HasRunner(runner) {
			return Invariantf("invariant 2: runner %d in slot %d is not in event %q", runner, slot, ev.Name)
		}
		if prev, dup := seen[runner]; dup {
			return Invariantf("invariant 3: runner %d occupies slots %d and %d", runner, prev, slot)
		}
		seen[runner] = slot
	}

	host, hostKnown := s.Hosts[st.OBSHost]
	if hostKnown && st.RequestedLayout != "" && len(host.Scenes) > 0 {
		scene, ok := host.Scenes[st.RequestedLayout]
		if !ok {
			return Invariantf("invariant 2: layout %q not in host %q scenes", st.RequestedLayout, st.OBSHost)
		}
		for slot := range st.StreamRunners {
			if slot > scene.SlotCount() {
				return Invariantf("invariant 2: slot %d exceeds layout %q (%d sources)", slot, scene.Name, scene.SlotCount())
			}
		}
	}

	if st.AudibleRunner != nil {
		if slot, ok := seen[*st.AudibleRunner]; !ok {
			return Invariantf("invariant 4: audible runner %d occupies no slot", *st.AudibleRunner)
		} else if hostKnown && st.RequestedLayout != "" {
			if scene, ok := host.Scenes[st.RequestedLayout]; ok && slot > scene.SlotCount() {
				return Invariantf("invariant 4: audible runner slot %d outside layout", slot)
			}
		}
	}
	return nil
}

// RunnerInUse returns the id of an event still referencing the runner, if any.
func RunnerInUse(s *AMState, runner int64) (int64, bool) {
	for id, ev := range s.Events {
		if ev.HasRunner(runner) {
			return id, true
		}
	}
	return 0, false
}
