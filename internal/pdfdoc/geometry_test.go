package pdfdoc_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/printorder/internal/pdfdoc"
	"github.com/local/printorder/internal/pdftest"
)

func TestNormalizeRotation(t *testing.T) {
	t.Parallel()

	testCases := map[int]int{0: 0, 90: 90, 180: 180, 270: 270, 360: 0, 450: 90, -90: 270, -270: 90, 95: 90}
	for in, want := range testCases {
		assert.Equal(t, want, pdfdoc.NormalizeRotation(in), "rotation %d", in)
	}
}

func TestPageGeometryLandscape(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		geom pdfdoc.PageGeometry
		want bool
	}{
		{name: "a4 landscape", geom: pdfdoc.PageGeometry{Width: 842, Height: 595}, want: true},
		{name: "a4 portrait", geom: pdfdoc.PageGeometry{Width: 595, Height: 842}, want: false},
		{name: "portrait rotated 90", geom: pdfdoc.PageGeometry{Width: 595, Height: 842, Rotation: 90}, want: true},
		{name: "landscape rotated 270", geom: pdfdoc.PageGeometry{Width: 842, Height: 595, Rotation: 270}, want: false},
		{name: "landscape rotated 180", geom: pdfdoc.PageGeometry{Width: 842, Height: 595, Rotation: 180}, want: true},
		{name: "square", geom: pdfdoc.PageGeometry{Width: 500, Height: 500}, want: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, tc.geom.Landscape())
		})
	}
}

func TestPDFCPUGeometry(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "portrait.pdf")
	require.NoError(t, pdftest.WritePDF(path, 595, 842, pdftest.Inked(60, 84, 0.3)))

	pages, err := pdfdoc.PDFCPUGeometry{}.Geometry(path)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.InDelta(t, 595, pages[0].Width, 1)
	assert.InDelta(t, 842, pages[0].Height, 1)
	assert.Zero(t, pages[0].Rotation)
	assert.False(t, pages[0].Landscape())

	_, err = pdfdoc.PDFCPUGeometry{}.Geometry(filepath.Join(t.TempDir(), "missing.pdf"))
	assert.Error(t, err)
}
