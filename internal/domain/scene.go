package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ResolveScene picks the layout for the given runner count on a host.
// The event's preferred layouts win in the order given; among the remaining
// scenes with a matching source count the lexicographically smallest name
// is chosen.
func ResolveScene(host Host, ev Event, runnerCount int) (string, error) {
	for _, name := range ev.PreferredLayouts {
		if scene, ok := host.Scenes[name]; ok && scene.SlotCount() == runnerCount {
			return name, nil
		}
	}

	var candidates []string
	for name, scene := range host.Scenes {
		if scene.SlotCount() == runnerCount {
			candidates = append(candidates, name)
		}
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("%w: host %q has no scene with %d sources", ErrInvariant, host.Name, runnerCount)
	}
	sort.Strings(candidates)
	return candidates[0], nil
}

// BestStreamURL selects the resolved media URL whose width best fits a slot
// of the given width on a host running at hostFPS. Quality names follow the
// "<width>p[60]" convention plus the synthetic "best" entry. Returns the URL
// and the source width it implies.
func BestStreamURL(width, hostFPS int, urls map[string]string) (string, int, bool) {
	if len(urls) == 0 {
		return "", 0, false
	}

	desire60 := hostFPS >= 30

	bestURL, haveBest := urls["best"]
	closestURL := bestURL
	closestWidth := 1080
	closestDiff := int(^uint(0) >> 1)

	for quality, url := range urls {
		elements := strings.SplitN(quality, "p", 2)
		streamWidth, err := strconv.Atoi(elements[0])
		if err != nil {
			continue
		}
		streamFPS := 30
		if len(elements) > 1 && strings.Contains(elements[1], "60") {
			streamFPS = 60
		}

		if streamWidth < width {
			continue
		}
		diff := streamWidth - width
		switch {
		case diff < closestDiff:
			closestURL = url
			closestWidth = streamWidth
			closestDiff = diff
		case diff == closestDiff && ((desire60 && streamFPS == 60) || (!desire60 && streamFPS == 30)):
			closestURL = url
			closestWidth = streamWidth
		}
	}

	if closestURL == "" {
		if !haveBest {
			return "", 0, false
		}
		return bestURL, 1080, true
	}
	return closestURL, closestWidth, true
}
