// Package config loads the immutable settings snapshots the sprayer runs on.
package config

import (
	"fmt"
	"time"

	"github.com/Masterminds/semver"

	"github.com/CodedInternet/gowl/onboard/actuation"
	"github.com/CodedInternet/gowl/onboard/hardware"
)

const (
	FormatVersion    = "1.0.0"
	FormatConstraint = "~1"

	// frames larger than this are clamped to the fallback resolution
	MaxPixels      = 832 * 640
	FallbackWidth  = 416
	FallbackHeight = 320
)

type System struct {
	Algorithm           string  `yaml:"algorithm"`
	RelayNum            int     `yaml:"relay_num"`
	ActuationDuration   float64 `yaml:"actuation_duration"` // seconds
	Delay               float64 `yaml:"delay"`              // seconds
	EnableAudibleErrors bool    `yaml:"enable_audible_errors"`
	BuzzerPin           int     `yaml:"buzzer_pin"` // header pin, as are all pins below
	Input               string  `yaml:"input_file_or_directory"`
}

type Camera struct {
	ResolutionWidth  int `yaml:"resolution_width"`
	ResolutionHeight int `yaml:"resolution_height"`
	ExpCompensation  int `yaml:"exp_compensation"`
}

type Controller struct {
	Enable        bool   `yaml:"enable_controller"`
	SwitchPurpose string `yaml:"switch_purpose"`
	SwitchPin     int    `yaml:"switch_pin"`
	StopPin       int    `yaml:"stop_pin"` // 0 disables the stop button
	ActiveLow     bool   `yaml:"active_low"`
}

type GreenOnBrown struct {
	ExgMin           int  `yaml:"exg_min"`
	ExgMax           int  `yaml:"exg_max"`
	HueMin           int  `yaml:"hue_min"`
	HueMax           int  `yaml:"hue_max"`
	SaturationMin    int  `yaml:"saturation_min"`
	SaturationMax    int  `yaml:"saturation_max"`
	BrightnessMin    int  `yaml:"brightness_min"`
	BrightnessMax    int  `yaml:"brightness_max"`
	MinDetectionArea int  `yaml:"min_detection_area"`
	InvertHue        bool `yaml:"invert_hue"`
}

type GreenOnGreen struct {
	ModelPath  string  `yaml:"model_path"`
	Confidence float64 `yaml:"confidence"`
}

type DataCollection struct {
	SampleImages     bool   `yaml:"sample_images"`
	SampleMethod     string `yaml:"sample_method"`
	SampleFrequency  int    `yaml:"sample_frequency"`
	DisableDetection bool   `yaml:"disable_detection"`
	SaveDirectory    string `yaml:"save_directory"`
	CameraName       string `yaml:"camera_name"`
	LogFPS           bool   `yaml:"log_fps"`
}

type CANBus struct {
	Enable    bool   `yaml:"enable_can_bus"`
	Interface string `yaml:"can_interface"`
	Bitrate   int    `yaml:"bitrate"`
}

type Telemetry struct {
	NatsURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
}

// Snapshot is one complete parameter set. Snapshots are never modified once
// loaded; a change of settings means a new snapshot.
type Snapshot struct {
	Format string `yaml:"format"`
	Name   string `yaml:"-"`

	System         System         `yaml:"system"`
	Camera         Camera         `yaml:"camera"`
	Controller     Controller     `yaml:"controller"`
	Relays         map[int]int    `yaml:"relays"`
	GreenOnBrown   GreenOnBrown   `yaml:"green_on_brown"`
	GreenOnGreen   GreenOnGreen   `yaml:"green_on_green"`
	DataCollection DataCollection `yaml:"data_collection"`
	CANBus         CANBus         `yaml:"can_bus"`
	Telemetry      Telemetry      `yaml:"telemetry"`
}

// Default returns the settings used for anything a file leaves out.
func Default() *Snapshot {
	return &Snapshot{
		Format: FormatVersion,
		Name:   "default",
		System: System{
			Algorithm:           "exhsv",
			RelayNum:            4,
			ActuationDuration:   0.15,
			Delay:               0,
			EnableAudibleErrors: true,
			BuzzerPin:           7,
		},
		Camera: Camera{
			ResolutionWidth:  416,
			ResolutionHeight: 320,
		},
		Controller: Controller{
			SwitchPurpose: "recording",
			SwitchPin:     37,
		},
		Relays: map[int]int{0: 13, 1: 15, 2: 16, 3: 18},
		GreenOnBrown: GreenOnBrown{
			ExgMin:           25,
			ExgMax:           200,
			HueMin:           39,
			HueMax:           83,
			SaturationMin:    50,
			SaturationMax:    220,
			BrightnessMin:    60,
			BrightnessMax:    190,
			MinDetectionArea: 10,
		},
		GreenOnGreen: GreenOnGreen{
			ModelPath:  "models",
			Confidence: 0.5,
		},
		DataCollection: DataCollection{
			SampleMethod:    "whole",
			SampleFrequency: 30,
			SaveDirectory:   "data",
			CameraName:      "cam1",
		},
		CANBus: CANBus{
			Interface: "can0",
			Bitrate:   500000,
		},
		Telemetry: Telemetry{
			Subject: "gowl.actuation",
		},
	}
}

// Validate checks the snapshot can drive the sprayer.
func (s *Snapshot) Validate() error {
	constraint, err := semver.NewConstraint(FormatConstraint)
	if err != nil {
		return err
	}

	version, err := semver.NewVersion(s.Format)
	if err != nil {
		return fmt.Errorf("config format %q: %w", s.Format, err)
	}
	if !constraint.Check(version) {
		return fmt.Errorf("config format %s not supported, require %s", s.Format, FormatConstraint)
	}

	if s.System.RelayNum < 1 {
		return fmt.Errorf("relay_num must be at least 1, got %d", s.System.RelayNum)
	}
	if err := hardware.RelayMap(s.Relays).Validate(s.System.RelayNum); err != nil {
		return err
	}

	if s.DataCollection.SampleFrequency < 1 {
		return fmt.Errorf("sample_frequency must be at least 1, got %d", s.DataCollection.SampleFrequency)
	}

	switch s.DataCollection.SampleMethod {
	case "whole", "bbox":
	default:
		return fmt.Errorf("unknown sample_method %q", s.DataCollection.SampleMethod)
	}

	return nil
}

// Resolution returns the frame size to use. Anything above MaxPixels is
// replaced by the fallback size and clamped is set.
func (s *Snapshot) Resolution() (width, height int, clamped bool) {
	width, height = s.Camera.ResolutionWidth, s.Camera.ResolutionHeight
	if width*height > MaxPixels {
		return FallbackWidth, FallbackHeight, true
	}
	return width, height, false
}

// Timing converts the pulse settings into durations.
func (s *Snapshot) Timing() actuation.Timing {
	return actuation.Timing{
		Delay:    seconds(s.System.Delay),
		Duration: seconds(s.System.ActuationDuration),
	}
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}
