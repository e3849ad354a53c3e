package reconciler

import (
	"github.com/BrickBench/AutoMarathon/internal/compositor"
	"github.com/BrickBench/AutoMarathon/internal/domain"
	"github.com/BrickBench/AutoMarathon/internal/hub"
)

// Command is one intent to apply against the compositor.
type Command struct {
	Op       string
	Scene    string
	Input    string
	Settings map[string]any
	Muted    bool
	Start    bool
}

// Diff computes the commands needed to converge observed onto desired.
// Recomputation is idempotent: once observed equals desired it returns
// nothing, so replaying an unchanged desired after a reconnect is safe.
func Diff(obs *Observed, d hub.Desired) []Command {
	var cmds []Command

	scene, sceneKnown := obs.Scenes[d.Layout]

	if d.Layout != "" && sceneKnown && obs.ProgramScene != d.Layout {
		cmds = append(cmds, Command{Op: compositor.OpSetProgramScene, Scene: d.Layout})
	}

	if sceneKnown {
		for slot, media := range d.Slots {
			url, ok := slotURL(scene, slot, media, obs.FrameRate)
			audible := d.Audible != nil && *d.Audible == media.ID

			for _, src := range scene.Slots[slot] {
				if ok && src.URL != url {
					cmds = append(cmds, Command{
						Op:       compositor.OpSetInputSettings,
						Input:    src.Name,
						Settings: map[string]any{"url": url},
					})
				}
				if src.Muted == audible {
					cmds = append(cmds, Command{
						Op:    compositor.OpSetInputMute,
						Input: src.Name,
						Muted: !audible,
					})
				}
			}

			if tag, hasTag := scene.Names[slot]; hasTag && media.Name != "" {
				text := upperName(media.Name)
				if obs.NameTexts[tag] != text {
					cmds = append(cmds, Command{
						Op:       compositor.OpSetInputSettings,
						Input:    tag,
						Settings: map[string]any{"text": text},
					})
				}
			}
		}
	}

	if d.Streaming != nil && obs.Streaming != *d.Streaming {
		if *d.Streaming {
			cmds = append(cmds, Command{Op: compositor.OpStartStream, Start: true})
		} else {
			cmds = append(cmds, Command{Op: compositor.OpStopStream})
		}
	}

	return cmds
}

// slotURL picks the media URL for one slot: the override wins, otherwise
// the resolved quality best fitting the widest placeholder.
func slotURL(scene SceneState, slot int, media hub.RunnerMedia, fps int) (string, bool) {
	if media.OverrideURL != "" {
		return media.OverrideURL, true
	}
	url, _, ok := domain.BestStreamURL(maxSlotWidth(scene, slot), fps, media.URLs)
	return url, ok
}
