package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/printorder/internal/blank"
	"github.com/local/printorder/internal/config"
)

func writeSettings(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultSettings(t *testing.T) {
	t.Parallel()

	s := config.DefaultSettings()
	require.NoError(t, s.Validate())

	boxes := s.ThumbnailBoxes()
	require.Len(t, boxes, 2)
	assert.Equal(t, "thumb_1", boxes[0].ID)
	assert.Equal(t, 230.0, boxes[0].X)
	assert.Equal(t, 1.0, boxes[0].Opacity)
	assert.Len(t, s.QRBoxes(), 2)
	assert.Equal(t, "1", s.Thumbnail.Selection)
	assert.Equal(t, 432.0, s.Thumbnail.DPI)
	assert.Equal(t, blank.Simple, s.Blank.Algorithm)
	assert.Equal(t, "_완료", s.Output.Suffix)

	pool := s.Pool()
	assert.Equal(t, 4, pool.Workers)
	assert.Equal(t, 30*time.Second, pool.TaskTimeout)
}

func TestLoadSettingsOverridesDefaults(t *testing.T) {
	t.Parallel()

	path := writeSettings(t, `
[thumbnail]
max_width = 200
page_selection = "1-3"

[blank_detection]
algorithm = "histogram"
threshold = 90

[performance]
multithreading = false

[[boxes]]
id = "only"
x = 10
y = 20
width = 100
height = 150
opacity = 0.5
`)
	s, err := config.LoadSettings(path)
	require.NoError(t, err)

	assert.Equal(t, 200, s.Thumbnail.MaxWidth)
	assert.Equal(t, 250, s.Thumbnail.MaxHeight, "unset keys keep defaults")
	assert.Equal(t, "1-3", s.Thumbnail.Selection)
	assert.Equal(t, blank.Histogram, s.Blank.Algorithm)
	assert.Equal(t, 90.0, s.Blank.Threshold)
	assert.True(t, s.Blank.Enabled)
	assert.True(t, s.Pool().Sequential())

	boxes := s.ThumbnailBoxes()
	require.Len(t, boxes, 1, "a boxes table replaces the default layout")
	assert.Equal(t, "only", boxes[0].ID)
	assert.Equal(t, 0.5, boxes[0].Opacity)
}

func TestLoadSettingsEmptyPath(t *testing.T) {
	t.Parallel()

	s, err := config.LoadSettings("")
	require.NoError(t, err)
	assert.Equal(t, config.DefaultSettings(), s)
}

func TestLoadSettingsErrors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		body string
	}{
		{name: "syntax", body: "thumbnail = ["},
		{name: "algorithm", body: "[blank_detection]\nalgorithm = \"magic\""},
		{name: "threshold", body: "[blank_detection]\nthreshold = 120"},
		{name: "thumbnail size", body: "[thumbnail]\nmax_width = 0"},
		{name: "rule pattern", body: "[[rules]]\nname = \"bad\"\npattern = \"(\""},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadSettings(writeSettings(t, tc.body))
			assert.Error(t, err)
		})
	}

	_, err := config.LoadSettings(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestValidateClamps(t *testing.T) {
	t.Parallel()

	s := config.DefaultSettings()
	op := 1.7
	s.Boxes[0].Opacity = &op
	s.Performance.MaxWorkers = 0
	s.Thumbnail.DPI = 0
	s.Output.Suffix = ""

	require.NoError(t, s.Validate())
	assert.Equal(t, 1.0, *s.Boxes[0].Opacity)
	assert.Equal(t, 1.7, op, "caller's value untouched")
	assert.Equal(t, 1, s.Performance.MaxWorkers)
	assert.Equal(t, 432.0, s.Thumbnail.DPI)
	assert.Equal(t, "_완료", s.Output.Suffix)
}

func TestApplyRules(t *testing.T) {
	t.Parallel()

	low, high := "2", "1-4"
	dpi := 300.0
	s := config.DefaultSettings()
	s.Rules = []config.Rule{
		{Name: "high", Pattern: "URGENT", Priority: 20, Set: config.RuleOverrides{Selection: &high}},
		{Name: "low", Pattern: "urgent", Priority: 1, Set: config.RuleOverrides{Selection: &low, DPI: &dpi}},
		{Name: "other", Pattern: "catalog", Priority: 50, Skip: true},
		{Name: "off", Pattern: "urgent", Priority: 99, Disabled: true, Skip: true},
	}

	got, res := s.ApplyRules("/in/Urgent_order.pdf")
	assert.Equal(t, []string{"low", "high"}, res.Applied)
	assert.False(t, res.Skip)
	assert.Equal(t, "1-4", got.Thumbnail.Selection, "highest priority wins")
	assert.Equal(t, 300.0, got.Thumbnail.DPI, "lower priority fields survive")
	assert.Equal(t, "1", s.Thumbnail.Selection, "receiver unchanged")

	_, res = s.ApplyRules("catalog.pdf")
	assert.True(t, res.Skip)

	_, res = s.ApplyRules("plain.pdf")
	assert.Empty(t, res.Applied)
}

func TestBuiltinCoverRule(t *testing.T) {
	t.Parallel()

	s := config.DefaultSettings()
	s.BuiltinRules = true

	got, res := s.ApplyRules("COVER_order.pdf")
	assert.Equal(t, []string{"cover"}, res.Applied)
	assert.Empty(t, got.QRBoxes())
	assert.False(t, got.Blank.Enabled)
	for _, b := range got.ThumbnailBoxes() {
		assert.Equal(t, 0.8, b.Opacity)
	}
	assert.Nil(t, s.Boxes[0].Opacity, "defaults not aliased")
}

func TestFromEnv(t *testing.T) {
	t.Setenv("MAX_WORKERS", "6")
	t.Setenv("TASK_TIMEOUT", "45s")
	t.Setenv("REDIS_ENABLED", "yes")
	t.Setenv("AXIOM_DATASET", "prod")
	t.Setenv("RENDER_DPI", "300")
	t.Setenv("RESULT_PREFIX", "/out/")

	cfg := config.FromEnv()
	assert.Equal(t, 6, cfg.Pipeline.MaxWorkers)
	assert.Equal(t, 45*time.Second, cfg.Pipeline.TaskTimeout)
	assert.Equal(t, 300.0, cfg.Pipeline.RenderDPI)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "prod_printorder", cfg.Axiom.Dataset)
	assert.Equal(t, "out", cfg.Storage.ResultPrefix)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestFromEnvTaskTimeoutUnset(t *testing.T) {
	t.Setenv("TASK_TIMEOUT", "")

	cfg := config.FromEnv()
	assert.Zero(t, cfg.Pipeline.TaskTimeout)
}

func TestApplyPipeline(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      config.PipelineConfig
		timeout time.Duration
		workers int
		dpi     float64
	}{
		{name: "zero keeps settings", timeout: 30 * time.Second, workers: 4, dpi: 432},
		{name: "timeout override", in: config.PipelineConfig{TaskTimeout: 45 * time.Second}, timeout: 45 * time.Second, workers: 4, dpi: 432},
		{name: "sub-second rounds up", in: config.PipelineConfig{TaskTimeout: 200 * time.Millisecond}, timeout: time.Second, workers: 4, dpi: 432},
		{name: "workers and dpi", in: config.PipelineConfig{MaxWorkers: 8, RenderDPI: 150}, timeout: 30 * time.Second, workers: 8, dpi: 150},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := config.DefaultSettings()
			s.ApplyPipeline(tt.in)
			require.NoError(t, s.Validate())

			pool := s.Pool()
			assert.Equal(t, tt.timeout, pool.TaskTimeout)
			assert.Equal(t, tt.workers, pool.Workers)
			assert.Equal(t, tt.dpi, s.Thumbnail.DPI)
		})
	}
}
