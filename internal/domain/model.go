package domain

// Person is a human participant. A Person may additionally be a Runner.
type Person struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	Pronouns  *string `json:"pronouns,omitempty"`
	Location  *string `json:"location,omitempty"`
	DiscordID *string `json:"discord_id,omitempty"`
	Host      bool    `json:"host"`
}

// Runner is a Person who competes. Keyed by the parent Person's id.
type Runner struct {
	Participant int64 `json:"participant"`

	// StreamURL is the public channel URL handed to the resolver.
	StreamURL string `json:"stream_url,omitempty"`
	// OverrideStreamURL short-circuits resolution when non-empty.
	OverrideStreamURL string `json:"override_stream_url,omitempty"`
	// ResolvedURLs maps quality name ("best", "720p60", ...) to a media URL.
	ResolvedURLs map[string]string `json:"resolved_urls,omitempty"`

	StreamVolumePercent int    `json:"stream_volume_percent"`
	TheRunHandle        string `json:"therun_handle,omitempty"`
}

// Result tags for RunnerResult.
const ResultSingleScore = "SingleScore"

// RunnerResult is a tagged variant; SingleScore is the only defined tag today,
// the tag key is preserved in the serialized form so new variants can be added
// without a schema change.
type RunnerResult struct {
	Kind  string `json:"kind"`
	Score string `json:"score,omitempty"`
}

// RunnerEntry is one runner's participation record within an Event.
type RunnerEntry struct {
	Runner int64         `json:"runner"`
	Result *RunnerResult `json:"result,omitempty"`
}

// Event is a single run (game/race/relay).
type Event struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Game     *string `json:"game,omitempty"`
	Category *string `json:"category,omitempty"`
	Console  *string `json:"console,omitempty"`
	Complete bool    `json:"complete"`

	EstimateSec      *int64 `json:"estimate_sec,omitempty"`
	EventStartMs     *int64 `json:"event_start_epoch_ms,omitempty"`
	TimerStartMs     *int64 `json:"timer_start_epoch_ms,omitempty"`
	TimerEndMs       *int64 `json:"timer_end_epoch_ms,omitempty"`
	PreferredLayouts []string `json:"preferred_layouts,omitempty"`

	IsRelay    bool `json:"is_relay"`
	IsMarathon bool `json:"is_marathon"`

	Commentators []int64               `json:"commentators,omitempty"`
	RunnerState  map[int64]RunnerEntry `json:"runner_state,omitempty"`
}

// HasRunner reports whether the event references the given runner.
func (e *Event) HasRunner(runner int64) bool {
	_, ok := e.RunnerState[runner]
	return ok
}

// Stream binds an Event to a compositor host. At most one Stream per host
// and one per event.
type Stream struct {
	Event   int64  `json:"event"`
	OBSHost string `json:"obs_host"`

	AudibleRunner   *int64 `json:"audible_runner,omitempty"`
	RequestedLayout string `json:"requested_layout,omitempty"`

	// StreamRunners maps 1-based slot index to a Runner id. Slots are
	// contiguous from 1 up to the source count of the requested layout.
	StreamRunners map[int]int64 `json:"stream_runners"`
}

// RunnerSlot returns the slot a runner occupies, or 0.
func (s *Stream) RunnerSlot(runner int64) int {
	for slot, r := range s.StreamRunners {
		if r == runner {
			return slot
		}
	}
	return 0
}

// RunnerCount returns the number of occupied slots.
func (s *Stream) RunnerCount() int {
	return len(s.StreamRunners)
}

// StreamSource is one placeholder rectangle in 1920x1080 canvas coordinates.
type StreamSource struct {
	Name       string  `json:"name"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	W          float64 `json:"w"`
	H          float64 `json:"h"`
	CropLeft   int     `json:"crop_l"`
	CropRight  int     `json:"crop_r"`
	CropTop    int     `json:"crop_t"`
	CropBottom int     `json:"crop_b"`
}

// Scene is a named arrangement of sources, grouped by slot index.
type Scene struct {
	Name    string                 `json:"name"`
	Active  bool                   `json:"active"`
	Sources map[int][]StreamSource `json:"sources"`
}

// SlotCount returns the number of distinct slots in the scene.
func (s *Scene) SlotCount() int {
	return len(s.Sources)
}

// VoiceUser is a commentator present on a host's voice channel.
type VoiceUser struct {
	Name        string `json:"name"`
	GainPercent int    `json:"gain_percent"`
	Participant *int64 `json:"participant,omitempty"`
}

// Host is the observed state of one compositor machine, keyed by name.
type Host struct {
	Name         string               `json:"name"`
	Connected    bool                 `json:"connected"`
	Streaming    bool                 `json:"streaming"`
	FrameRate    int                  `json:"frame_rate"`
	ProgramScene string               `json:"program_scene,omitempty"`
	PreviewScene *string              `json:"preview_scene,omitempty"`
	Scenes       map[string]Scene     `json:"scenes,omitempty"`
	VoiceUsers   map[string]VoiceUser `json:"voice_users,omitempty"`
}

// LockState is the single dashboard editor lock record.
type LockState struct {
	// Editor is the lock holder's user name, or empty when unheld.
	Editor      string `json:"editor,omitempty"`
	HeartbeatMs int64  `json:"heartbeat_epoch_ms"`
}

// Held reports whether the lock has a holder.
func (l LockState) Held() bool { return l.Editor != "" }
