package reconciler

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/BrickBench/AutoMarathon/internal/compositor"
	"github.com/BrickBench/AutoMarathon/internal/domain"
)

// Stream placeholder sources are named "streamer_<slot>_..."; text name
// tags are "name_<slot>".
var (
	streamSourceRe = regexp.MustCompile(`^streamer_(\d+)(?:_.*)?$`)
	nameSourceRe   = regexp.MustCompile(`^name_(\d+)$`)
)

// SourceState is one observed stream placeholder.
type SourceState struct {
	Name  string
	URL   string
	Muted bool
	Rect  domain.StreamSource
}

// SceneState is the observed layout of one scene.
type SceneState struct {
	Slots map[int][]SourceState
	// Names maps slot index to the name-tag input present in the scene.
	Names map[int]string
}

// Observed is the most recent compositor-side truth for one host.
type Observed struct {
	ProgramScene string
	PreviewScene string
	Streaming    bool
	FrameRate    int
	Scenes       map[string]SceneState
	// NameTexts tracks the last text written per name-tag input.
	NameTexts map[string]string
}

func newObserved() Observed {
	return Observed{
		Scenes:    make(map[string]SceneState),
		NameTexts: make(map[string]string),
	}
}

// ingestSceneList replaces the observed scene graph from a full pull.
func (o *Observed) ingestSceneList(list compositor.SceneList) {
	o.ProgramScene = list.CurrentProgramScene
	o.PreviewScene = list.PreviewScene
	o.Scenes = make(map[string]SceneState, len(list.Scenes))
	for _, scene := range list.Scenes {
		state := SceneState{
			Slots: make(map[int][]SourceState),
			Names: make(map[int]string),
		}
		for _, src := range scene.Sources {
			if m := streamSourceRe.FindStringSubmatch(src.Name); m != nil {
				slot, err := strconv.Atoi(m[1])
				if err != nil || slot < 1 {
					continue
				}
				state.Slots[slot] = append(state.Slots[slot], SourceState{
					Name:  src.Name,
					URL:   src.URL,
					Muted: src.Muted,
					Rect: domain.StreamSource{
						Name:       src.Name,
						X:          src.X,
						Y:          src.Y,
						W:          src.W,
						H:          src.H,
						CropLeft:   src.CropLeft,
						CropRight:  src.CropRight,
						CropTop:    src.CropTop,
						CropBottom: src.CropBottom,
					},
				})
			} else if m := nameSourceRe.FindStringSubmatch(src.Name); m != nil {
				slot, err := strconv.Atoi(m[1])
				if err != nil || slot < 1 {
					continue
				}
				state.Names[slot] = src.Name
			}
		}
		o.Scenes[scene.Name] = state
	}
}

// setSourceURL records a source URL change across every scene carrying it.
func (o *Observed) setSourceURL(input, url string) {
	for name, scene := range o.Scenes {
		for slot, sources := range scene.Slots {
			for i := range sources {
				if sources[i].Name == input {
					sources[i].URL = url
				}
			}
			scene.Slots[slot] = sources
		}
		o.Scenes[name] = scene
	}
}

// setSourceMuted records a mute change across every scene carrying it.
func (o *Observed) setSourceMuted(input string, muted bool) {
	for name, scene := range o.Scenes {
		for slot, sources := range scene.Slots {
			for i := range sources {
				if sources[i].Name == input {
					sources[i].Muted = muted
				}
			}
			scene.Slots[slot] = sources
		}
		o.Scenes[name] = scene
	}
}

// toHost projects the observed state into the broadcastable host record.
func (o *Observed) toHost(name string, connected bool) domain.Host {
	host := domain.Host{
		Name:         name,
		Connected:    connected,
		Streaming:    o.Streaming,
		FrameRate:    o.FrameRate,
		ProgramScene: o.ProgramScene,
		Scenes:       make(map[string]domain.Scene, len(o.Scenes)),
	}
	if o.PreviewScene != "" {
		preview := o.PreviewScene
		host.PreviewScene = &preview
	}
	for sceneName, state := range o.Scenes {
		scene := domain.Scene{
			Name:    sceneName,
			Active:  sceneName == o.ProgramScene,
			Sources: make(map[int][]domain.StreamSource, len(state.Slots)),
		}
		for slot, sources := range state.Slots {
			for _, src := range sources {
				scene.Sources[slot] = append(scene.Sources[slot], src.Rect)
			}
		}
		host.Scenes[sceneName] = scene
	}
	return host
}

// maxSlotWidth returns the widest placeholder rectangle for a slot, used to
// pick the stream quality.
func maxSlotWidth(scene SceneState, slot int) int {
	width := 0
	for _, src := range scene.Slots[slot] {
		if int(src.Rect.W) > width {
			width = int(src.Rect.W)
		}
	}
	if width == 0 {
		width = 1920
	}
	return width
}

// upperName formats a runner's display name for a name tag.
func upperName(name string) string { return strings.ToUpper(name) }
