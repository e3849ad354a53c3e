package hub

import "github.com/BrickBench/AutoMarathon/internal/domain"

// Mutation is a tagged request applied serially by the Hub. Every mutation
// is validated against the model invariants, persisted, applied to the
// in-memory snapshot, and broadcast, in that order.
type Mutation interface{ mutation() }

type CreatePerson struct{ Person domain.Person }
type UpdatePerson struct{ Person domain.Person }
type DeletePerson struct{ ID int64 }

type CreateRunner struct{ Runner domain.Runner }
type UpdateRunner struct{ Runner domain.Runner }
type DeleteRunner struct{ ID int64 }

// SetRunnerURLs installs freshly resolved media URLs for a runner. Applied
// by the resolver worker after a RefreshRunnerURLs round-trip.
type SetRunnerURLs struct {
	ID   int64
	URLs map[string]string
}

// RefreshRunnerURLs requests asynchronous re-resolution of a runner's
// stream URL. The mutation succeeds once the request is queued; the result
// arrives later as SetRunnerURLs.
type RefreshRunnerURLs struct{ ID int64 }

type CreateEvent struct{ Event domain.Event }
type UpdateEvent struct{ Event domain.Event }
type DeleteEvent struct{ ID int64 }

type CreateStream struct{ Stream domain.Stream }
type UpdateStream struct{ Stream domain.Stream }
type DeleteStream struct{ Event int64 }

// StreamAddRunner appends a runner to the stream's next slot, promoting the
// layout; StreamRemoveSlot removes and demotes; StreamSwapSlots exchanges
// two slots (a move when one side is empty).
type StreamAddRunner struct {
	Event  int64
	Runner int64
}
type StreamRemoveSlot struct {
	Event int64
	Slot  int
}
type StreamSwapSlots struct {
	Event int64
	A, B  int
}

// SetAudible selects the unducked runner; nil clears it.
type SetAudible struct {
	Event  int64
	Runner *int64
}

// SetStreamLayout pins the requested layout for a stream.
type SetStreamLayout struct {
	Event  int64
	Layout string
}

// SetTimer updates an event's timer endpoints.
type SetTimer struct {
	Event int64
	Start *int64
	End   *int64
}

// SetCustomField upserts an overlay variable; empty value deletes the key.
type SetCustomField struct{ Key, Value string }

// SetVoiceGain sets a commentator's gain on every host carrying the user.
type SetVoiceGain struct {
	User string
	Gain int
}

// SetStreaming toggles the desired live state of a host.
type SetStreaming struct {
	Host      string
	Streaming bool
}

// Lock mutations. Timestamps are supplied by the Hub clock.
type ClaimLock struct{ Editor string }
type HeartbeatLock struct{ Editor string }
type ReleaseLock struct{ Editor string }

// SetHostStatus installs a reconciler's observed host state. Transient:
// broadcast in snapshots but never persisted.
type SetHostStatus struct{ Host domain.Host }

// SetHostVoiceUsers installs the voice bridge's user roster for a host.
type SetHostVoiceUsers struct {
	Host  string
	Users map[string]domain.VoiceUser
}

func (CreatePerson) mutation()      {}
func (UpdatePerson) mutation()      {}
func (DeletePerson) mutation()      {}
func (CreateRunner) mutation()      {}
func (UpdateRunner) mutation()      {}
func (DeleteRunner) mutation()      {}
func (SetRunnerURLs) mutation()     {}
func (RefreshRunnerURLs) mutation() {}
func (CreateEvent) mutation()       {}
func (UpdateEvent) mutation()       {}
func (DeleteEvent) mutation()       {}
func (CreateStream) mutation()      {}
func (UpdateStream) mutation()      {}
func (DeleteStream) mutation()      {}
func (StreamAddRunner) mutation()   {}
func (StreamRemoveSlot) mutation()  {}
func (StreamSwapSlots) mutation()   {}
func (SetAudible) mutation()        {}
func (SetStreamLayout) mutation()   {}
func (SetTimer) mutation()          {}
func (SetCustomField) mutation()    {}
func (SetVoiceGain) mutation()      {}
func (SetStreaming) mutation()      {}
func (ClaimLock) mutation()         {}
func (HeartbeatLock) mutation()     {}
func (ReleaseLock) mutation()       {}
func (SetHostStatus) mutation()     {}
func (SetHostVoiceUsers) mutation() {}

// LayoutAffecting reports whether a mutation rearranges a host's scene and
// therefore requires the dashboard editor lock.
func LayoutAffecting(m Mutation) bool {
	switch m.(type) {
	case StreamAddRunner, StreamRemoveSlot, StreamSwapSlots,
		SetAudible, SetStreamLayout, UpdateStream:
		return true
	}
	return false
}
