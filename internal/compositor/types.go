package compositor

import "encoding/json"

// Wire frame. Requests carry a monotonic id that the response echoes;
// events carry no id.
type frame struct {
	Op     string          `json:"op"`
	ID     uint64          `json:"id,omitempty"`
	Type   string          `json:"type,omitempty"`
	Data   json.RawMessage `json:"d,omitempty"`
	Status *status         `json:"status,omitempty"`
}

type status struct {
	Result  bool   `json:"result"`
	Comment string `json:"comment,omitempty"`
}

// Operation names.
const (
	OpGetSceneList     = "GetSceneList"
	OpSetProgramScene  = "SetProgramScene"
	OpSetInputSettings = "SetInputSettings"
	OpSetInputMute     = "SetInputMute"
	OpGetStreamStatus  = "GetStreamStatus"
	OpStartStream      = "StartStream"
	OpStopStream       = "StopStream"
)

// Event names.
const (
	EventProgramSceneChanged  = "CurrentProgramSceneChanged"
	EventInputSettingsChanged = "InputSettingsChanged"
	EventStreamStateChanged   = "StreamStateChanged"
)

// Event is a compositor push notification.
type Event struct {
	Type string
	Data json.RawMessage
}

// SourceInfo is one scene item as reported by the compositor.
type SourceInfo struct {
	Name       string  `json:"name"`
	URL        string  `json:"url,omitempty"`
	Muted      bool    `json:"muted"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	W          float64 `json:"w"`
	H          float64 `json:"h"`
	CropLeft   int     `json:"crop_l"`
	CropRight  int     `json:"crop_r"`
	CropTop    int     `json:"crop_t"`
	CropBottom int     `json:"crop_b"`
}

// SceneInfo is one scene in the compositor's scene list.
type SceneInfo struct {
	Name    string       `json:"name"`
	Sources []SourceInfo `json:"sources"`
}

// SceneList is the GetSceneList response.
type SceneList struct {
	CurrentProgramScene string      `json:"current_program_scene"`
	PreviewScene        string      `json:"preview_scene,omitempty"`
	Scenes              []SceneInfo `json:"scenes"`
}

// StreamStatus is the GetStreamStatus response.
type StreamStatus struct {
	Active    bool `json:"active"`
	FrameRate int  `json:"frame_rate"`
}

// ProgramSceneChanged is the payload of CurrentProgramSceneChanged.
type ProgramSceneChanged struct {
	SceneName string `json:"scene_name"`
}

// InputSettingsChanged is the payload of InputSettingsChanged.
type InputSettingsChanged struct {
	Input    string         `json:"input"`
	Settings map[string]any `json:"settings"`
}

// StreamStateChanged is the payload of StreamStateChanged.
type StreamStateChanged struct {
	Active bool `json:"active"`
}
