package store

import "github.com/BrickBench/AutoMarathon/internal/domain"

type personModel struct {
	ID        int64 `gorm:"primaryKey;autoIncrement"`
	Name      string
	Pronouns  *string
	Location  *string
	DiscordID *string
	Host      bool
}

func (personModel) TableName() string { return "person" }

type runnerModel struct {
	Participant int64       `gorm:"primaryKey"`
	Person      personModel `gorm:"foreignKey:Participant;constraint:OnDelete:CASCADE"`

	StreamURL           string
	OverrideStreamURL   string
	ResolvedURLs        StringMap `gorm:"type:text"`
	StreamVolumePercent int
	TheRunHandle        string
}

func (runnerModel) TableName() string { return "runner" }

type eventModel struct {
	ID       int64 `gorm:"primaryKey;autoIncrement"`
	Name     string
	Game     *string
	Category *string
	Console  *string
	Complete bool

	EstimateSec  *int64
	EventStartMs *int64
	TimerStartMs *int64
	TimerEndMs   *int64

	PreferredLayouts StringSlice `gorm:"type:text"`
	IsRelay          bool
	IsMarathon       bool

	Commentators Int64Slice     `gorm:"type:text"`
	RunnerState  RunnerStateMap `gorm:"type:text"`
}

func (eventModel) TableName() string { return "event" }

type streamModel struct {
	Event    int64      `gorm:"primaryKey"`
	EventRef eventModel `gorm:"foreignKey:Event;constraint:OnDelete:CASCADE"`

	OBSHost         string `gorm:"uniqueIndex"`
	AudibleRunner   *int64
	RequestedLayout string
	StreamRunners   SlotMap `gorm:"type:text"`
}

func (streamModel) TableName() string { return "stream" }

type hostConfigModel struct {
	Name         string `gorm:"primaryKey"`
	Endpoint     string
	Password     string
	VoiceGateway string
	VoiceUDP     string
	EnableVoice  bool
}

func (hostConfigModel) TableName() string { return "host_config" }

type customFieldModel struct {
	Key   string `gorm:"primaryKey"`
	Value string
}

func (customFieldModel) TableName() string { return "custom_fields" }

// lockStateModel is a single-row table (id always 1), satisfying the
// exactly-one-lock-record invariant.
type lockStateModel struct {
	ID          int64 `gorm:"primaryKey"`
	Editor      string
	HeartbeatMs int64
}

func (lockStateModel) TableName() string { return "lock_state" }

func (m *personModel) toDomain() domain.Person {
	return domain.Person{
		ID:        m.ID,
		Name:      m.Name,
		Pronouns:  m.Pronouns,
		Location:  m.Location,
		DiscordID: m.DiscordID,
		Host:      m.Host,
	}
}

func personFromDomain(p *domain.Person) personModel {
	return personModel{
		ID:        p.ID,
		Name:      p.Name,
		Pronouns:  p.Pronouns,
		Location:  p.Location,
		DiscordID: p.DiscordID,
		Host:      p.Host,
	}
}

func (m *runnerModel) toDomain() domain.Runner {
	return domain.Runner{
		Participant:         m.Participant,
		StreamURL:           m.StreamURL,
		OverrideStreamURL:   m.OverrideStreamURL,
		ResolvedURLs:        m.ResolvedURLs,
		StreamVolumePercent: m.StreamVolumePercent,
		TheRunHandle:        m.TheRunHandle,
	}
}

func runnerFromDomain(r *domain.Runner) runnerModel {
	return runnerModel{
		Participant:         r.Participant,
		StreamURL:           r.StreamURL,
		OverrideStreamURL:   r.OverrideStreamURL,
		ResolvedURLs:        r.ResolvedURLs,
		StreamVolumePercent: r.StreamVolumePercent,
		TheRunHandle:        r.TheRunHandle,
	}
}

func (m *eventModel) toDomain() domain.Event {
	return domain.Event{
		ID:               m.ID,
		Name:             m.Name,
		Game:             m.Game,
		Category:         m.Category,
		Console:          m.Console,
		Complete:         m.Complete,
		EstimateSec:      m.EstimateSec,
		EventStartMs:     m.EventStartMs,
		TimerStartMs:     m.TimerStartMs,
		TimerEndMs:       m.TimerEndMs,
		PreferredLayouts: m.PreferredLayouts,
		IsRelay:          m.IsRelay,
		IsMarathon:       m.IsMarathon,
		Commentators:     m.Commentators,
		RunnerState:      m.RunnerState,
	}
}

func eventFromDomain(e *domain.Event) eventModel {
	return eventModel{
		ID:               e.ID,
		Name:             e.Name,
		Game:             e.Game,
		Category:         e.Category,
		Console:          e.Console,
		Complete:         e.Complete,
		EstimateSec:      e.EstimateSec,
		EventStartMs:     e.EventStartMs,
		TimerStartMs:     e.TimerStartMs,
		TimerEndMs:       e.TimerEndMs,
		PreferredLayouts: e.PreferredLayouts,
		IsRelay:          e.IsRelay,
		IsMarathon:       e.IsMarathon,
		Commentators:     e.Commentators,
		RunnerState:      e.RunnerState,
	}
}

func (m *streamModel) toDomain() domain.Stream {
	return domain.Stream{
		Event:           m.Event,
		OBSHost:         m.OBSHost,
		AudibleRunner:   m.AudibleRunner,
		RequestedLayout: m.RequestedLayout,
		StreamRunners:   m.StreamRunners,
	}
}

func streamFromDomain(s *domain.Stream) streamModel {
	return streamModel{
		Event:           s.Event,
		OBSHost:         s.OBSHost,
		AudibleRunner:   s.AudibleRunner,
		RequestedLayout: s.RequestedLayout,
		StreamRunners:   s.StreamRunners,
	}
}

// HostConfig is the persisted connection record for one compositor host.
type HostConfig struct {
	Name         string
	Endpoint     string
	Password     string
	VoiceGateway string
	VoiceUDP     string
	EnableVoice  bool
}
