package store

import (
	"database/sql/driver"
	"encoding/json"
	"errors"

	"github.com/BrickBench/AutoMarathon/internal/domain"
)

// JSON-in-text column types. SQLite stores these as TEXT; Scan accepts both
// []byte and string drivers.

func scanJSON(value interface{}, out interface{}) error {
	if value == nil {
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, out)
	case string:
		return json.Unmarshal([]byte(v), out)
	default:
		return errors.New("store: unsupported scan type for JSON column")
	}
}

func valueJSON(in interface{}) (driver.Value, error) {
	data, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// StringSlice stores an ordered list of strings.
type StringSlice []string

func (a *StringSlice) Scan(value interface{}) error { return scanJSON(value, a) }
func (a StringSlice) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	return valueJSON(a)
}
func (StringSlice) GormDataType() string { return "text" }

// Int64Slice stores an ordered list of ids.
type Int64Slice []int64

func (a *Int64Slice) Scan(value interface{}) error { return scanJSON(value, a) }
func (a Int64Slice) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	return valueJSON(a)
}
func (Int64Slice) GormDataType() string { return "text" }

// StringMap stores a map<string,string>.
type StringMap map[string]string

func (a *StringMap) Scan(value interface{}) error { return scanJSON(value, a) }
func (a StringMap) Value() (driver.Value, error) {
	if a == nil {
		return "{}", nil
	}
	return valueJSON(a)
}
func (StringMap) GormDataType() string { return "text" }

// RunnerStateMap stores an event's runner_state keyed by runner id.
type RunnerStateMap map[int64]domain.RunnerEntry

func (a *RunnerStateMap) Scan(value interface{}) error { return scanJSON(value, a) }
func (a RunnerStateMap) Value() (driver.Value, error) {
	if a == nil {
		return "{}", nil
	}
	return valueJSON(a)
}
func (RunnerStateMap) GormDataType() string { return "text" }

// SlotMap stores a stream's slot->runner assignment.
type SlotMap map[int]int64

func (a *SlotMap) Scan(value interface{}) error { return scanJSON(value, a) }
func (a SlotMap) Value() (driver.Value, error) {
	if a == nil {
		return "{}", nil
	}
	return valueJSON(a)
}
func (SlotMap) GormDataType() string { return "text" }
