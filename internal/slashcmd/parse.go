package slashcmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/BrickBench/AutoMarathon/internal/domain"
)

// parsed is one recognized slash command with raw arguments.
type parsed struct {
	name string
	args []string
}

func parse(text string) (parsed, error) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return parsed{}, fmt.Errorf("%w: commands start with /", domain.ErrBadRequest)
	}
	fields := strings.Fields(text[1:])
	if len(fields) == 0 {
		return parsed{}, fmt.Errorf("%w: empty command", domain.ErrBadRequest)
	}
	return parsed{name: strings.ToLower(fields[0]), args: fields[1:]}, nil
}

// findPerson matches a name case-insensitively against people.
func findPerson(s *domain.AMState, name string) (domain.Person, error) {
	for _, p := range s.People {
		if strings.EqualFold(p.Name, name) {
			return p, nil
		}
	}
	return domain.Person{}, fmt.Errorf("%w: no participant named %q", domain.ErrNotFound, name)
}

// findRunner matches a name against people who are runners.
func findRunner(s *domain.AMState, name string) (int64, error) {
	p, err := findPerson(s, name)
	if err != nil {
		return 0, err
	}
	if _, ok := s.Runners[p.ID]; !ok {
		return 0, fmt.Errorf("%w: %q is not a runner", domain.ErrNotFound, name)
	}
	return p.ID, nil
}

// findEvent matches an event by name or numeric id.
func findEvent(s *domain.AMState, name string) (domain.Event, error) {
	if id, err := strconv.ParseInt(name, 10, 64); err == nil {
		if ev, ok := s.Events[id]; ok {
			return ev, nil
		}
	}
	for _, ev := range s.Events {
		if strings.EqualFold(ev.Name, name) {
			return ev, nil
		}
	}
	return domain.Event{}, fmt.Errorf("%w: no event named %q", domain.ErrNotFound, name)
}

// inferStreamedEvent resolves the optional trailing event argument: an
// explicit name wins; otherwise the single active stream is used, and
// anything else is an error.
func inferStreamedEvent(s *domain.AMState, arg string) (int64, error) {
	if arg != "" {
		ev, err := findEvent(s, arg)
		if err != nil {
			return 0, err
		}
		if _, ok := s.Streams[ev.ID]; !ok {
			return 0, fmt.Errorf("%w: event %q has no stream", domain.ErrNotFound, ev.Name)
		}
		return ev.ID, nil
	}

	switch len(s.Streams) {
	case 0:
		return 0, fmt.Errorf("%w: no streams are active", domain.ErrNotFound)
	case 1:
		for id := range s.Streams {
			return id, nil
		}
	}
	return 0, fmt.Errorf("%w: multiple streams are active, name the event", domain.ErrBadRequest)
}
