// Package mediastream implements the built-in mediastream_recording profile:
// it reports the recorders described in the gateway configuration.
package mediastream

import (
	"fmt"
	"net/http"

	"github.com/mattjoyce/dconnect-gw/internal/profile"
	"github.com/mattjoyce/dconnect-gw/internal/protocol"
)

const (
	// Name is the profile name served by this module.
	Name = "mediastream_recording"

	attrMediaRecorder = "mediarecorder"

	TypeCamera = "camera"
	TypeAudio  = "audio"

	stateInactive = "inactive"
)

// Config lists the recorders known to the gateway.
type Config struct {
	Recorders []Recorder `yaml:"recorders"`
}

// Recorder is one configured capture device.
type Recorder struct {
	Name         string        `yaml:"name"`
	Type         string        `yaml:"type"`   // camera | audio
	Module       string        `yaml:"module"` // device node or driver name
	PreviewSizes []PreviewSize `yaml:"preview_sizes,omitempty"`
	Audio        *AudioFormat  `yaml:"audio,omitempty"`
}

// PreviewSize is a supported preview resolution.
type PreviewSize struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// AudioFormat describes the capture format of an audio recorder.
type AudioFormat struct {
	Channels   int `yaml:"channels" json:"channels"`
	SampleRate int `yaml:"sample_rate" json:"sampleRate"`
	SampleSize int `yaml:"sample_size" json:"sampleSize"`
	BlockSize  int `yaml:"block_size" json:"blockSize"`
}

func (a *AudioFormat) complete() bool {
	return a != nil && a.Channels > 0 && a.SampleRate > 0 && a.SampleSize > 0 && a.BlockSize > 0
}

// RecorderInfo is the per-recorder entry of the mediarecorder result.
type RecorderInfo struct {
	ID            int          `json:"id"`
	Name          string       `json:"name"`
	State         string       `json:"state"`
	MimeType      string       `json:"mimeType"`
	PreviewWidth  int          `json:"previewWidth,omitempty"`
	PreviewHeight int          `json:"previewHeight,omitempty"`
	Audio         *AudioFormat `json:"audio,omitempty"`
}

// Validate checks recorder types and names.
func (c Config) Validate() error {
	for i, r := range c.Recorders {
		if r.Name == "" {
			return fmt.Errorf("recorders[%d].name is required", i)
		}
		if r.Type != TypeCamera && r.Type != TypeAudio {
			return fmt.Errorf("recorders[%d].type must be %q or %q (got %q)", i, TypeCamera, TypeAudio, r.Type)
		}
	}
	return nil
}

// Module is the mediastream_recording profile.
type Module struct {
	recorders []Recorder
}

// New creates the module from cfg.
func New(cfg Config) *Module {
	return &Module{recorders: append([]Recorder(nil), cfg.Recorders...)}
}

func (m *Module) Name() string { return Name }

func (m *Module) Descriptors() []profile.Descriptor {
	return []profile.Descriptor{
		{
			Method:    http.MethodGet,
			Profile:   Name,
			Attribute: attrMediaRecorder,
			OnRequest: m.onGetMediaRecorder,
		},
	}
}

func (m *Module) onGetMediaRecorder(_ *protocol.Request, resp *protocol.Response) error {
	resp.Put("recorders", m.Recorders())
	resp.OK()
	return nil
}

// Recorders describes every configured recorder. Nothing is probed: preview
// dimensions come from the first configured preview size.
func (m *Module) Recorders() []RecorderInfo {
	out := make([]RecorderInfo, 0, len(m.recorders))
	for i, r := range m.recorders {
		info := RecorderInfo{
			ID:       i,
			Name:     r.Name,
			State:    stateInactive,
			MimeType: "audio/wav",
		}
		if r.Type == TypeCamera {
			info.MimeType = "image/jpeg"
			if len(r.PreviewSizes) > 0 {
				info.PreviewWidth = r.PreviewSizes[0].Width
				info.PreviewHeight = r.PreviewSizes[0].Height
			}
		} else if r.Audio.complete() {
			audio := *r.Audio
			info.Audio = &audio
		}
		out = append(out, info)
	}
	return out
}
