package domain

import "fmt"

// AddStreamRunner appends a runner to the stream's next free slot, promoting
// the requested layout to a scene matching the new runner count. Inserting
// into an empty stream also makes the added runner audible.
func AddStreamRunner(s *Stream, host Host, ev Event, runner int64) error {
	if !ev.HasRunner(runner) {
		return Invariantf("runner %d is not in event %d", runner, ev.ID)
	}
	if s.RunnerSlot(runner) != 0 {
		return Invariantf("runner %d already occupies a slot", runner)
	}

	count := s.RunnerCount()
	scene, err := ResolveScene(host, ev, count+1)
	if err != nil {
		return err
	}

	if s.StreamRunners == nil {
		s.StreamRunners = make(map[int]int64)
	}
	s.StreamRunners[count+1] = runner
	s.RequestedLayout = scene
	if count == 0 {
		s.AudibleRunner = &runner
	}
	return nil
}

// RemoveStreamSlot removes the runner in the given slot, shifting higher
// slots down to keep them contiguous and demoting the requested layout.
// When the audible runner is removed, audibility passes to the new slot-1
// runner, or is cleared when the stream empties.
func RemoveStreamSlot(s *Stream, host Host, ev Event, slot int) error {
	removed, ok := s.StreamRunners[slot]
	if !ok {
		return fmt.Errorf("%w: no runner in slot %d", ErrNotFound, slot)
	}

	count := s.RunnerCount()
	delete(s.StreamRunners, slot)
	for i := slot; i < count; i++ {
		s.StreamRunners[i] = s.StreamRunners[i+1]
		delete(s.StreamRunners, i+1)
	}

	if count == 1 {
		s.RequestedLayout = ""
	} else {
		scene, err := ResolveScene(host, ev, count-1)
		if err != nil {
			return err
		}
		s.RequestedLayout = scene
	}

	if s.AudibleRunner != nil && *s.AudibleRunner == removed {
		if next, ok := s.StreamRunners[1]; ok {
			s.AudibleRunner = &next
		} else {
			s.AudibleRunner = nil
		}
	}
	return nil
}

// SwapStreamSlots exchanges the runners in two slots. A swap against an
// empty slot becomes a move, provided the target slot exists in the
// requested layout.
func SwapStreamSlots(s *Stream, host Host, a, b int) error {
	if a == b {
		return fmt.Errorf("%w: cannot swap slot %d with itself", ErrBadRequest, a)
	}
	ra, okA := s.StreamRunners[a]
	rb, okB := s.StreamRunners[b]

	switch {
	case okA && okB:
		s.StreamRunners[a], s.StreamRunners[b] = rb, ra
	case okA:
		if err := checkSlotInLayout(s, host, b); err != nil {
			return err
		}
		delete(s.StreamRunners, a)
		s.StreamRunners[b] = ra
	case okB:
		if err := checkSlotInLayout(s, host, a); err != nil {
			return err
		}
		delete(s.StreamRunners, b)
		s.StreamRunners[a] = rb
	default:
		return fmt.Errorf("%w: both slots %d and %d are empty", ErrNotFound, a, b)
	}
	return nil
}

func checkSlotInLayout(s *Stream, host Host, slot int) error {
	scene, ok := host.Scenes[s.RequestedLayout]
	if !ok {
		return Invariantf("stream layout %q not present on host %q", s.RequestedLayout, host.Name)
	}
	if slot < 1 || slot > scene.SlotCount() {
		return Invariantf("slot %d outside layout %q (%d sources)", slot, scene.Name, scene.SlotCount())
	}
	return nil
}
