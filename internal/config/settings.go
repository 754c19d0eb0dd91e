package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/local/printorder/internal/blank"
	"github.com/local/printorder/internal/coordinator"
	"github.com/local/printorder/internal/layout"
	"github.com/local/printorder/internal/thumbnail"
)

// DefaultOutputSuffix is appended to the order file stem.
const DefaultOutputSuffix = "_완료"

// BoxSpec is a thumbnail box as written in the settings file. A missing
// opacity means fully opaque.
type BoxSpec struct {
	ID       string   `toml:"id"`
	Name     string   `toml:"name"`
	X        float64  `toml:"x"`
	Y        float64  `toml:"y"`
	Width    float64  `toml:"width"`
	Height   float64  `toml:"height"`
	Rotation float64  `toml:"rotation"`
	Opacity  *float64 `toml:"opacity"`
}

// QRBoxSpec is a QR box as written in the settings file.
type QRBoxSpec struct {
	ID       string  `toml:"id"`
	Name     string  `toml:"name"`
	X        float64 `toml:"x"`
	Y        float64 `toml:"y"`
	Size     float64 `toml:"size"`
	Rotation float64 `toml:"rotation"`
}

type ThumbnailSettings struct {
	MaxWidth  int               `toml:"max_width"`
	MaxHeight int               `toml:"max_height"`
	DPI       float64           `toml:"dpi"`
	Selection string            `toml:"page_selection"`
	MultiPage bool              `toml:"multi_page"`
	Effects   thumbnail.Effects `toml:"effects"`
}

type QRSettings struct {
	Skip bool `toml:"skip"`
}

type PerformanceSettings struct {
	MaxWorkers         int  `toml:"max_workers"`
	Multithreading     bool `toml:"multithreading"`
	TaskTimeoutSeconds int  `toml:"task_timeout_seconds"`
}

type OutputSettings struct {
	Dir    string `toml:"dir"`
	Suffix string `toml:"suffix"`
}

// Settings is the snapshot of tunables one job runs with. Jobs take a copy;
// nothing mutates a Settings value shared between jobs.
type Settings struct {
	Boxes        []BoxSpec           `toml:"boxes"`
	QRBoxList    []QRBoxSpec         `toml:"qr_boxes"`
	QR           QRSettings          `toml:"qr"`
	Blank        blank.Options       `toml:"blank_detection"`
	Thumbnail    ThumbnailSettings   `toml:"thumbnail"`
	Performance  PerformanceSettings `toml:"performance"`
	Output       OutputSettings      `toml:"output"`
	BuiltinRules bool                `toml:"builtin_rules"`
	Rules        []Rule              `toml:"rules"`
}

// DefaultSettings returns the stock box layout and processing defaults.
func DefaultSettings() Settings {
	return Settings{
		Boxes: []BoxSpec{
			{ID: "thumb_1", Name: "썸네일 1", X: 230, Y: 234, Width: 160, Height: 250},
			{ID: "thumb_2", Name: "썸네일 2", X: 658, Y: 228, Width: 160, Height: 250},
		},
		QRBoxList: []QRBoxSpec{
			{ID: "qr_1", Name: "QR 1", X: 315, Y: 500, Size: 70},
			{ID: "qr_2", Name: "QR 2", X: 730, Y: 500, Size: 70},
		},
		Blank: blank.DefaultOptions(),
		Thumbnail: ThumbnailSettings{
			MaxWidth:  160,
			MaxHeight: 250,
			DPI:       thumbnail.DefaultDPI,
			Selection: "1",
			Effects:   thumbnail.NeutralEffects(),
		},
		Performance: PerformanceSettings{
			MaxWorkers:         coordinator.DefaultWorkers,
			Multithreading:     true,
			TaskTimeoutSeconds: int(coordinator.DefaultTaskTimeout / time.Second),
		},
		Output: OutputSettings{Suffix: DefaultOutputSuffix},
	}
}

// LoadSettings reads a TOML settings file over the defaults. Keys absent from
// the file keep their default value; an empty path returns the defaults.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("read settings %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse settings %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return s, fmt.Errorf("settings %s: %w", path, err)
	}
	return s, nil
}

// ApplyPipeline overlays the process-wide environment overrides. Zero values
// keep what the settings file says.
func (s *Settings) ApplyPipeline(p PipelineConfig) {
	if p.RenderDPI > 0 {
		s.Thumbnail.DPI = p.RenderDPI
	}
	if p.MaxWorkers > 0 {
		s.Performance.MaxWorkers = p.MaxWorkers
	}
	if p.TaskTimeout > 0 {
		s.Performance.TaskTimeoutSeconds = max(1, int(p.TaskTimeout/time.Second))
	}
}

// Validate clamps soft limits in place and reports values no job can run with.
func (s *Settings) Validate() error {
	var errs []error

	if s.Thumbnail.MaxWidth <= 0 || s.Thumbnail.MaxHeight <= 0 {
		errs = append(errs, fmt.Errorf("thumbnail size %dx%d must be positive", s.Thumbnail.MaxWidth, s.Thumbnail.MaxHeight))
	}
	if s.Thumbnail.DPI <= 0 {
		s.Thumbnail.DPI = thumbnail.DefaultDPI
	}
	if s.Blank.Threshold < 0 || s.Blank.Threshold > 100 {
		errs = append(errs, fmt.Errorf("blank threshold %.1f outside 0..100", s.Blank.Threshold))
	}
	m := s.Blank.Margins
	if m.Top < 0 || m.Bottom < 0 || m.Left < 0 || m.Right < 0 {
		errs = append(errs, errors.New("blank margins must not be negative"))
	}
	for i, b := range s.Boxes {
		if b.Width <= 0 || b.Height <= 0 {
			errs = append(errs, fmt.Errorf("box %q: size %.0fx%.0f must be positive", b.ID, b.Width, b.Height))
		}
		if b.Opacity != nil {
			v := clampUnit(*b.Opacity)
			s.Boxes[i].Opacity = &v
		}
	}
	for _, q := range s.QRBoxList {
		if q.Size <= 0 {
			errs = append(errs, fmt.Errorf("qr box %q: size must be positive", q.ID))
		}
	}
	if s.Performance.MaxWorkers < 1 {
		s.Performance.MaxWorkers = 1
	}
	if s.Performance.TaskTimeoutSeconds <= 0 {
		s.Performance.TaskTimeoutSeconds = int(coordinator.DefaultTaskTimeout / time.Second)
	}
	if s.Output.Suffix == "" {
		s.Output.Suffix = DefaultOutputSuffix
	}
	for _, r := range s.Rules {
		if _, err := regexp.Compile("(?i)" + r.Pattern); err != nil {
			errs = append(errs, fmt.Errorf("rule %q: %w", r.Name, err))
		}
	}
	return errors.Join(errs...)
}

// ThumbnailBoxes converts the box specs for the layout resolver.
func (s Settings) ThumbnailBoxes() []layout.Box {
	out := make([]layout.Box, 0, len(s.Boxes))
	for _, b := range s.Boxes {
		op := 1.0
		if b.Opacity != nil {
			op = *b.Opacity
		}
		out = append(out, layout.Box{
			ID: b.ID, Name: b.Name,
			X: b.X, Y: b.Y, Width: b.Width, Height: b.Height,
			Rotation: b.Rotation, Opacity: op,
		})
	}
	return out
}

// QRBoxes converts the QR box specs. Skipping QR yields no boxes.
func (s Settings) QRBoxes() []layout.QRBox {
	if s.QR.Skip {
		return nil
	}
	out := make([]layout.QRBox, 0, len(s.QRBoxList))
	for _, q := range s.QRBoxList {
		out = append(out, layout.QRBox{ID: q.ID, Name: q.Name, X: q.X, Y: q.Y, Size: q.Size, Rotation: q.Rotation})
	}
	return out
}

// Pool sizes the coordinator from the performance settings.
func (s Settings) Pool() coordinator.Pool {
	return coordinator.NewPool(s.Performance.MaxWorkers,
		time.Duration(s.Performance.TaskTimeoutSeconds)*time.Second,
		s.Performance.Multithreading)
}

// ThumbnailRequest builds the render request for one print document.
func (s Settings) ThumbnailRequest(path string) thumbnail.Request {
	return thumbnail.Request{
		Path:      path,
		Selection: s.Thumbnail.Selection,
		MaxWidth:  s.Thumbnail.MaxWidth,
		MaxHeight: s.Thumbnail.MaxHeight,
		DPI:       s.Thumbnail.DPI,
		Effects:   s.Thumbnail.Effects,
		MultiPage: s.Thumbnail.MultiPage,
	}
}

// Clone returns a deep copy safe to modify.
func (s Settings) Clone() Settings {
	c := s
	c.Boxes = make([]BoxSpec, len(s.Boxes))
	for i, b := range s.Boxes {
		if b.Opacity != nil {
			v := *b.Opacity
			b.Opacity = &v
		}
		c.Boxes[i] = b
	}
	c.QRBoxList = append([]QRBoxSpec(nil), s.QRBoxList...)
	c.Rules = append([]Rule(nil), s.Rules...)
	return c
}

func clampUnit(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
