package normalize_test

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/printorder/internal/normalize"
	"github.com/local/printorder/internal/pdfdoc"
	"github.com/local/printorder/internal/pdftest"
)

type fakeGeometry struct {
	pages []pdfdoc.PageGeometry
	err   error
}

func (g fakeGeometry) Geometry(string) ([]pdfdoc.PageGeometry, error) { return g.pages, g.err }

// recordingBuilder decodes the page images it is given and writes a stub file.
type recordingBuilder struct {
	sizes []image.Point
	err   error
}

func (b *recordingBuilder) Build(files []string, out string) error {
	for _, f := range files {
		img, err := imaging.Open(f)
		if err != nil {
			return err
		}
		b.sizes = append(b.sizes, img.Bounds().Size())
	}
	if b.err != nil {
		return b.err
	}
	return os.WriteFile(out, []byte("%PDF-1.7\n"), 0o644)
}

// topMarked is white with its top quarter red.
func topMarked(w, h int) *image.RGBA {
	img := pdftest.Blank(w, h)
	draw.Draw(img, image.Rect(0, 0, w, h/4), image.NewUniform(color.RGBA{255, 0, 0, 255}), image.Point{}, draw.Src)
	return img
}

func TestNeedsNormalization(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		pages []pdfdoc.PageGeometry
		want  bool
	}{
		{name: "landscape", pages: []pdfdoc.PageGeometry{{Width: 842, Height: 595}}, want: false},
		{name: "square", pages: []pdfdoc.PageGeometry{{Width: 500, Height: 500}}, want: false},
		{name: "portrait", pages: []pdfdoc.PageGeometry{{Width: 842, Height: 595}, {Width: 595, Height: 842}}, want: true},
		{name: "rotated", pages: []pdfdoc.PageGeometry{{Width: 842, Height: 595, Rotation: 180}}, want: true},
		{name: "empty", pages: nil, want: false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, normalize.NeedsNormalization(tc.pages))
		})
	}
}

func TestCanvasRotatesPortrait(t *testing.T) {
	t.Parallel()

	got := normalize.Canvas(topMarked(60, 80), 0.5)
	require.Equal(t, image.Pt(421, 298), got.Bounds().Size())

	// Fitted region is 397 wide, centered: x in [12, 409).
	margin := got.NRGBAAt(3, 149)
	assert.Equal(t, color.NRGBA{255, 255, 255, 255}, margin)

	// The top edge ends up on the right after a clockwise quarter turn.
	right := got.NRGBAAt(390, 149)
	assert.Greater(t, right.R, uint8(200))
	assert.Less(t, right.G, uint8(60))

	left := got.NRGBAAt(40, 149)
	assert.Greater(t, left.G, uint8(200))
}

func TestCanvasKeepsLandscape(t *testing.T) {
	t.Parallel()

	got := normalize.Canvas(topMarked(80, 40), 0.5)
	require.Equal(t, image.Pt(421, 298), got.Bounds().Size())

	// 80x40 scales by 421/80 to 421x211, centered vertically from y=43.
	assert.Equal(t, color.NRGBA{255, 255, 255, 255}, got.NRGBAAt(210, 10))
	top := got.NRGBAAt(210, 50)
	assert.Greater(t, top.R, uint8(200))
	assert.Less(t, top.G, uint8(60))
}

func TestNormalizeNoopLeavesNoFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	opener := pdftest.NewOpener(nil)
	n := normalize.New(opener, fakeGeometry{pages: []pdfdoc.PageGeometry{{Width: 842, Height: 595}}}, &recordingBuilder{})

	got, changed := n.Normalize(context.Background(), "/in/order.pdf", dir)
	assert.False(t, changed)
	assert.Equal(t, "/in/order.pdf", got)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestNormalizeRebuildsPages(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	doc := &pdftest.Doc{Pages: []pdftest.Page{
		{Image: topMarked(60, 80)},
		{Image: topMarked(80, 60)},
	}}
	opener := pdftest.NewOpener(map[string]*pdftest.Doc{"/in/order.pdf": doc})
	builder := &recordingBuilder{}
	geom := fakeGeometry{pages: []pdfdoc.PageGeometry{{Width: 595, Height: 842}, {Width: 842, Height: 595}}}

	n := normalize.New(opener, geom, builder)
	n.Scale = 0.5

	got, changed := n.Normalize(context.Background(), "/in/order.pdf", dir)
	require.True(t, changed)
	assert.Equal(t, filepath.Join(dir, "normalized_order.pdf"), got)
	assert.FileExists(t, got)
	assert.Equal(t, []image.Point{{421, 298}, {421, 298}}, builder.sizes)
	assert.Equal(t, []float64{36, 36}, doc.Renders())
	assert.Equal(t, 1, doc.Closed())

	// Scratch page images are gone; only the output remains.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestNormalizeFailureKeepsOriginal(t *testing.T) {
	t.Parallel()

	portrait := fakeGeometry{pages: []pdfdoc.PageGeometry{{Width: 595, Height: 842}}}
	okDoc := func() *pdftest.Opener {
		return pdftest.NewOpener(map[string]*pdftest.Doc{"/in/order.pdf": {Pages: []pdftest.Page{{Image: pdftest.Blank(60, 80)}}}})
	}

	testCases := []struct {
		name    string
		opener  pdfdoc.Opener
		geom    pdfdoc.GeometryReader
		builder *recordingBuilder
	}{
		{name: "geometry error", opener: okDoc(), geom: fakeGeometry{err: errors.New("broken xref")}, builder: &recordingBuilder{}},
		{name: "open error", opener: pdftest.NewOpener(nil), geom: portrait, builder: &recordingBuilder{}},
		{
			name: "render error",
			opener: pdftest.NewOpener(map[string]*pdftest.Doc{"/in/order.pdf": {Pages: []pdftest.Page{
				{Err: errors.New("bad stream")},
			}}}),
			geom:    portrait,
			builder: &recordingBuilder{},
		},
		{name: "builder error", opener: okDoc(), geom: portrait, builder: &recordingBuilder{err: errors.New("disk full")}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()

			n := normalize.New(tc.opener, tc.geom, tc.builder)
			n.Scale = 0.5
			got, changed := n.Normalize(context.Background(), "/in/order.pdf", dir)
			assert.False(t, changed)
			assert.Equal(t, "/in/order.pdf", got)

			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestNormalizeRealPortraitDocument(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	src := filepath.Join(dir, "order.pdf")
	require.NoError(t, pdftest.WritePDF(src, 595, 842, topMarked(595, 842)))

	n := normalize.New(nil, nil, nil)
	n.Scale = 1

	got, changed := n.Normalize(context.Background(), src, dir)
	require.True(t, changed)
	assert.Equal(t, normalize.OutputPath(src, dir), got)

	pages, err := pdfdoc.PDFCPUGeometry{}.Geometry(got)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.InDelta(t, normalize.PageWidth, pages[0].Width, 1)
	assert.InDelta(t, normalize.PageHeight, pages[0].Height, 1)
	assert.Zero(t, pages[0].Rotation)

	doc, err := pdfdoc.Open(got)
	require.NoError(t, err)
	defer doc.Close()
	img, err := doc.RenderDPI(0, 72)
	require.NoError(t, err)
	b := img.Bounds()
	require.InDelta(t, 842, b.Dx(), 2)
	require.InDelta(t, 595, b.Dy(), 2)

	// the marked top edge of the portrait page now runs down the right side
	right := color.NRGBAModel.Convert(img.At(b.Min.X+800, b.Min.Y+297)).(color.NRGBA)
	assert.Greater(t, right.R, uint8(200))
	assert.Less(t, right.G, uint8(80))
	left := color.NRGBAModel.Convert(img.At(b.Min.X+100, b.Min.Y+297)).(color.NRGBA)
	assert.Greater(t, left.G, uint8(200))
}

func TestPDFCPUBuilderPageSize(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	page := filepath.Join(dir, "page.png")
	require.NoError(t, imaging.Save(normalize.Canvas(pdftest.Inked(84, 60, 0.5), 0.5), page))

	out := filepath.Join(dir, "out.pdf")
	require.NoError(t, normalize.PDFCPUBuilder{}.Build([]string{page, page}, out))

	pages, err := pdfdoc.PDFCPUGeometry{}.Geometry(out)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	for _, p := range pages {
		assert.InDelta(t, 842, p.Width, 1)
		assert.InDelta(t, 595, p.Height, 1)
	}
}

func TestOutputPath(t *testing.T) {
	t.Parallel()
	assert.Equal(t, filepath.Join("/tmp/run", "normalized_a b.pdf"), normalize.OutputPath("/x/y/a b.pdf", "/tmp/run"))
}
