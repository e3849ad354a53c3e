package store

import (
	"errors"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BrickBench/AutoMarathon/internal/domain"
)

// Store is the durable projection of the domain model. It is accessed
// exclusively through the State Hub; no other component holds a handle.
type Store struct {
	db *gorm.DB
}

// Open connects to the single-file SQLite datastore, runs migrations, and
// ensures the lock_state singleton row exists.
func Open(filePath string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(filePath+"?_fk=1"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", domain.ErrStore, filePath, err)
	}

	if err := db.AutoMigrate(
		&personModel{}, &runnerModel{}, &eventModel{}, &streamModel{},
		&hostConfigModel{}, &customFieldModel{}, &lockStateModel{},
	); err != nil {
		return nil, fmt.Errorf("%w: migrate: %v", domain.ErrStore, err)
	}

	var lock lockStateModel
	if err := db.FirstOrCreate(&lock, lockStateModel{ID: 1}).Error; err != nil {
		return nil, fmt.Errorf("%w: init lock row: %v", domain.ErrStore, err)
	}

	return &Store{db: db}, nil
}

// LoadState rebuilds the full in-memory state from disk. Host observed state
// is transient and comes back empty; host names are seeded from host_config.
func (s *Store) LoadState() (domain.AMState, error) {
	state := domain.NewAMState()

	var people []personModel
	if err := s.db.Find(&people).Error; err != nil {
		return state, storeErr("load people", err)
	}
	for i := range people {
		state.People[people[i].ID] = people[i].toDomain()
	}

	var runners []runnerModel
	if err := s.db.Find(&runners).Error; err != nil {
		return state, storeErr("load runners", err)
	}
	for i := range runners {
		state.Runners[runners[i].Participant] = runners[i].toDomain()
	}

	var events []eventModel
	if err := s.db.Find(&events).Error; err != nil {
		return state, storeErr("load events", err)
	}
	for i := range events {
		state.Events[events[i].ID] = events[i].toDomain()
	}

	var streams []streamModel
	if err := s.db.Find(&streams).Error; err != nil {
		return state, storeErr("load streams", err)
	}
	for i := range streams {
		state.Streams[streams[i].Event] = streams[i].toDomain()
	}

	var fields []customFieldModel
	if err := s.db.Find(&fields).Error; err != nil {
		return state, storeErr("load custom fields", err)
	}
	for _, f := range fields {
		state.CustomFields[f.Key] = f.Value
	}

	var lock lockStateModel
	if err := s.db.First(&lock, 1).Error; err != nil {
		return state, storeErr("load lock", err)
	}
	state.Lock = domain.LockState{Editor: lock.Editor, HeartbeatMs: lock.HeartbeatMs}

	configs, err := s.HostConfigs()
	if err != nil {
		return state, err
	}
	for _, hc := range configs {
		state.Hosts[hc.Name] = domain.Host{Name: hc.Name}
	}

	return state, nil
}

// SavePerson inserts or updates a person, assigning a fresh id on insert.
func (s *Store) SavePerson(p *domain.Person) error {
	m := personFromDomain(p)
	if err := s.db.Save(&m).Error; err != nil {
		return storeErr("save person", err)
	}
	p.ID = m.ID
	return nil
}

// DeletePerson removes a person; the runner row cascades.
func (s *Store) DeletePerson(id int64) error {
	if err := s.db.Delete(&runnerModel{}, "participant = ?", id).Error; err != nil {
		return storeErr("delete runner for person", err)
	}
	if err := s.db.Delete(&personModel{}, id).Error; err != nil {
		return storeErr("delete person", err)
	}
	return nil
}

func (s *Store) SaveRunner(r *domain.Runner) error {
	m := runnerFromDomain(r)
	if err := s.db.Omit(clause.Associations).Save(&m).Error; err != nil {
		return storeErr("save runner", err)
	}
	return nil
}

func (s *Store) DeleteRunner(participant int64) error {
	if err := s.db.Delete(&runnerModel{}, "participant = ?", participant).Error; err != nil {
		return storeErr("delete runner", err)
	}
	return nil
}

// SaveEvent inserts or updates an event, assigning a fresh id on insert.
func (s *Store) SaveEvent(e *domain.Event) error {
	m := eventFromDomain(e)
	if err := s.db.Save(&m).Error; err != nil {
		return storeErr("save event", err)
	}
	e.ID = m.ID
	return nil
}

// DeleteEvent removes an event; its stream detaches via cascade.
func (s *Store) DeleteEvent(id int64) error {
	if err := s.db.Delete(&streamModel{}, "event = ?", id).Error; err != nil {
		return storeErr("delete stream for event", err)
	}
	if err := s.db.Delete(&eventModel{}, id).Error; err != nil {
		return storeErr("delete event", err)
	}
	return nil
}

func (s *Store) SaveStream(st *domain.Stream) error {
	m := streamFromDomain(st)
	if err := s.db.Omit(clause.Associations).Save(&m).Error; err != nil {
		return storeErr("save stream", err)
	}
	return nil
}

func (s *Store) DeleteStream(event int64) error {
	if err := s.db.Delete(&streamModel{}, "event = ?", event).Error; err != nil {
		return storeErr("delete stream", err)
	}
	return nil
}

// SaveCustomField upserts a field; an empty value deletes the key.
func (s *Store) SaveCustomField(key, value string) error {
	if value == "" {
		if err := s.db.Delete(&customFieldModel{}, "key = ?", key).Error; err != nil {
			return storeErr("delete custom field", err)
		}
		return nil
	}
	if err := s.db.Save(&customFieldModel{Key: key, Value: value}).Error; err != nil {
		return storeErr("save custom field", err)
	}
	return nil
}

func (s *Store) SaveLock(l domain.LockState) error {
	m := lockStateModel{ID: 1, Editor: l.Editor, HeartbeatMs: l.HeartbeatMs}
	if err := s.db.Save(&m).Error; err != nil {
		return storeErr("save lock", err)
	}
	return nil
}

// HostConfigs returns every persisted host connection record.
func (s *Store) HostConfigs() ([]HostConfig, error) {
	var models []hostConfigModel
	if err := s.db.Find(&models).Error; err != nil {
		return nil, storeErr("load host configs", err)
	}
	configs := make([]HostConfig, 0, len(models))
	for _, m := range models {
		configs = append(configs, HostConfig{
			Name:         m.Name,
			Endpoint:     m.Endpoint,
			Password:     m.Password,
			VoiceGateway: m.VoiceGateway,
			VoiceUDP:     m.VoiceUDP,
			EnableVoice:  m.EnableVoice,
		})
	}
	return configs, nil
}

// SaveHostConfig upserts a host connection record.
func (s *Store) SaveHostConfig(hc HostConfig) error {
	m := hostConfigModel{
		Name:         hc.Name,
		Endpoint:     hc.Endpoint,
		Password:     hc.Password,
		VoiceGateway: hc.VoiceGateway,
		VoiceUDP:     hc.VoiceUDP,
		EnableVoice:  hc.EnableVoice,
	}
	if err := s.db.Save(&m).Error; err != nil {
		return storeErr("save host config", err)
	}
	return nil
}

func storeErr(op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, op)
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrStore, op, err)
}
