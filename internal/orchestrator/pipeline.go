// Package orchestrator runs print-order jobs end to end: it fetches and
// validates the inputs, normalizes the order document, renders thumbnails
// from the print documents on the coordinator pool, and composites them with
// the QR image onto the order pages.
package orchestrator

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/printorder/internal/blank"
	"github.com/local/printorder/internal/compose"
	"github.com/local/printorder/internal/config"
	"github.com/local/printorder/internal/coordinator"
	"github.com/local/printorder/internal/filetype"
	"github.com/local/printorder/internal/layout"
	"github.com/local/printorder/internal/metrics"
	"github.com/local/printorder/internal/normalize"
	"github.com/local/printorder/internal/pdfdoc"
	"github.com/local/printorder/internal/storage"
	"github.com/local/printorder/internal/store"
	"github.com/local/printorder/internal/thumbnail"
)

// ProcessingJob binds the inputs of one run to its settings snapshot.
// Paths may be local, file://, s3:// or http(s):// references.
type ProcessingJob struct {
	ID         string
	OrderPath  string
	PrintPaths []string
	QRPath     string
	Settings   config.Settings
	OutputDir  string
}

// Stats summarizes what a run did.
type Stats struct {
	Normalized    bool          `json:"normalized"`
	OrderPages    int           `json:"order_pages"`
	BlankPages    int           `json:"blank_pages"`
	Thumbnails    int           `json:"thumbnails"`
	Placements    int           `json:"placements"`
	FailedSources int           `json:"failed_sources"`
	RulesApplied  []string      `json:"rules_applied,omitempty"`
	Duration      time.Duration `json:"duration_ns"`
}

// ProcessingResult is returned for every job. Error is set iff Success is
// false.
type ProcessingResult struct {
	JobID      string      `json:"job_id"`
	Success    bool        `json:"success"`
	OutputPath string      `json:"output_path,omitempty"`
	ResultURL  string      `json:"result_url,omitempty"`
	Error      *Diagnostic `json:"error,omitempty"`
	Stats      Stats       `json:"stats"`
}

// Normalizer rewrites rotated or portrait order documents.
type Normalizer interface {
	Normalize(ctx context.Context, path, tempDir string) (string, bool)
}

// Compositor stamps placements onto the order document.
type Compositor interface {
	Apply(ctx context.Context, inPath, outPath string, placements []layout.Placement) error
}

// Fetcher turns input references into local files.
type Fetcher interface {
	Fetch(ctx context.Context, ref, dir string) (string, error)
}

// Uploader publishes finished documents.
type Uploader interface {
	UploadFile(ctx context.Context, key, src, contentType string) (string, error)
}

// Dependencies are the collaborators of a Pipeline. Zero values select the
// production backends.
type Dependencies struct {
	Opener      pdfdoc.Opener
	Normalizer  Normalizer
	Compositor  Compositor
	Fetcher     Fetcher
	Uploader    Uploader // nil disables result upload
	Status      StatusStore
	Detector    *filetype.Detector
	BlankCache  *blank.Cache      // shared by all jobs
	RemoteCache blank.RemoteCache // optional second cache tier

	TempDir      string // parent of per-job run directories
	OutputDir    string // used when neither job nor settings name one
	ResultPrefix string
}

// Pipeline processes jobs. It is safe for concurrent use.
type Pipeline struct {
	deps Dependencies
}

func New(deps Dependencies) *Pipeline {
	if deps.Opener == nil {
		deps.Opener = pdfdoc.DefaultOpener()
	}
	if deps.Normalizer == nil {
		deps.Normalizer = normalize.New(deps.Opener, nil, nil)
	}
	if deps.Compositor == nil {
		deps.Compositor = compose.New(nil)
	}
	if deps.Fetcher == nil {
		deps.Fetcher = &storage.Fetcher{}
	}
	if deps.Status == nil {
		deps.Status = NewMemoryStatus()
	}
	if deps.Detector == nil {
		deps.Detector = filetype.New()
	}
	if deps.BlankCache == nil {
		deps.BlankCache = blank.NewCache()
	}
	if deps.TempDir == "" {
		deps.TempDir = os.TempDir()
	}
	return &Pipeline{deps: deps}
}

// Process runs job to completion. It never returns an error: failures are
// reported through the result's Diagnostic, and no output file exists
// unless Success is true.
func (p *Pipeline) Process(ctx context.Context, job ProcessingJob) (res ProcessingResult) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	start := time.Now()
	res.JobID = job.ID

	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("job_id", job.ID).Interface("panic", r).Msg("job panicked")
			res.Success = false
			res.OutputPath = ""
			res.Error = &Diagnostic{Kind: KindInternal, Message: fmt.Sprintf("panic: %v", r)}
		}
		res.Stats.Duration = time.Since(start)
		p.finish(job, &res, start)
	}()

	p.setStatus(ctx, job.ID, store.Status{
		State: StateProcessing, Progress: 5, Message: "started", Start: &start,
		Metadata: map[string]any{"order": job.OrderPath, "prints": len(job.PrintPaths), "qr": job.QRPath != ""},
	})
	log.Info().
		Str("job_id", job.ID).
		Str("order", job.OrderPath).
		Int("prints", len(job.PrintPaths)).
		Bool("qr", job.QRPath != "").
		Msg("job started")

	if err := p.run(ctx, job, &res); err != nil {
		res.Success = false
		res.OutputPath = ""
		res.Error = diagnose(err)
		return res
	}
	res.Success = true
	return res
}

func (p *Pipeline) finish(job ProcessingJob, res *ProcessingResult, start time.Time) {
	end := time.Now()
	// the request context may be gone by now; status must still land
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if !res.Success {
		metrics.IncJob(string(res.Error.Kind))
		log.Error().
			Str("job_id", job.ID).
			Str("kind", string(res.Error.Kind)).
			Str("error", res.Error.Message).
			Dur("took", res.Stats.Duration).
			Msg("job failed")
		p.setStatus(ctx, job.ID, store.Status{
			State: StateFailed, Progress: 100, Message: res.Error.Message, End: &end,
			Metadata: map[string]any{"kind": string(res.Error.Kind), "details": res.Error.Details},
		})
		return
	}

	metrics.IncJob("success")
	metrics.Since("total", start)
	log.Info().
		Str("job_id", job.ID).
		Str("output", res.OutputPath).
		Int("thumbnails", res.Stats.Thumbnails).
		Int("placements", res.Stats.Placements).
		Int("blank_pages", res.Stats.BlankPages).
		Dur("took", res.Stats.Duration).
		Msg("job completed")
	meta := map[string]any{
		"thumbnails":     res.Stats.Thumbnails,
		"placements":     res.Stats.Placements,
		"blank_pages":    res.Stats.BlankPages,
		"failed_sources": res.Stats.FailedSources,
		"normalized":     res.Stats.Normalized,
	}
	if res.ResultURL != "" {
		meta["result_url"] = res.ResultURL
	}
	p.setStatus(ctx, job.ID, store.Status{
		State: StateSuccess, Progress: 100, Message: "completed", OutputPath: res.OutputPath, End: &end,
		Metadata: meta,
	})
}

// localInputs are the job inputs as files inside or next to the run dir.
type localInputs struct {
	order       string
	prints      []string
	qr          string
	remoteOrder bool
}

func (p *Pipeline) run(ctx context.Context, job ProcessingJob, res *ProcessingResult) error {
	runDir, err := os.MkdirTemp(p.deps.TempDir, runDirPrefix+"*")
	if err != nil {
		return fmt.Errorf("create run dir: %w", err)
	}
	cleanup := func() {
		if err := os.RemoveAll(runDir); err != nil {
			log.Warn().Err(err).Str("dir", runDir).Msg("run dir cleanup failed")
		}
	}
	defer cleanup()

	in, err := p.localize(ctx, job, runDir)
	if err != nil {
		return err
	}

	settings, rules := job.Settings.ApplyRules(ruleSubject(in))
	res.Stats.RulesApplied = rules.Applied
	if rules.Skip {
		return &SkipError{Rules: rules.Applied}
	}
	if err := p.validate(in); err != nil {
		return err
	}
	outDir := firstNonEmpty(job.OutputDir, settings.Output.Dir, p.deps.OutputDir)
	if outDir == "" && in.remoteOrder {
		return &ValidationError{Field: "output_dir", Path: job.OrderPath, Reason: "required for remote order documents"}
	}

	p.progress(ctx, job.ID, 20, "normalizing order document")
	t := time.Now()
	orderPath, normalized := p.deps.Normalizer.Normalize(ctx, in.order, runDir)
	metrics.Since("normalize", t)
	res.Stats.Normalized = normalized

	classifier := blank.New(settings.Blank).WithCache(p.deps.BlankCache)
	if p.deps.RemoteCache != nil {
		classifier.WithRemote(p.deps.RemoteCache)
	}

	p.progress(ctx, job.ID, 40, "rendering thumbnails")
	t = time.Now()
	thumbs, qr, failed := p.renderSources(ctx, job.ID, settings, classifier, in)
	metrics.Since("thumbnails", t)
	res.Stats.Thumbnails = len(thumbs)
	res.Stats.FailedSources = failed

	p.progress(ctx, job.ID, 70, "compositing")
	t = time.Now()
	doc, err := p.deps.Opener.Open(orderPath)
	if err != nil {
		return &ValidationError{Field: "order", Path: job.OrderPath, Reason: "cannot open: " + err.Error()}
	}
	defer doc.Close()

	res.Stats.OrderPages = doc.NumPage()
	placements := layout.Resolve(layout.Input{
		PageCount: doc.NumPage(),
		Blank: func(page int) bool {
			b := classifier.IsBlank(ctx, doc, page)
			if b {
				res.Stats.BlankPages++
			}
			return b
		},
		Boxes:      settings.ThumbnailBoxes(),
		QRBoxes:    settings.QRBoxes(),
		Thumbnails: thumbs,
		QR:         qr,
	})
	res.Stats.Placements = len(placements)

	if outDir != "" {
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return &compose.WriteError{Path: outDir, Err: err}
		}
	}
	outPath := outputPath(in.order, outDir, settings.Output.Suffix)
	if err := p.deps.Compositor.Apply(ctx, orderPath, outPath, placements); err != nil {
		return err
	}
	metrics.Since("composite", t)
	res.OutputPath = outPath

	if p.deps.Uploader != nil {
		key := storage.ResultKey(p.deps.ResultPrefix, job.ID, outPath)
		url, err := p.deps.Uploader.UploadFile(ctx, key, outPath, "application/pdf")
		if err != nil {
			log.Warn().Err(err).Str("job_id", job.ID).Str("key", key).Msg("result upload failed; local output kept")
		} else {
			res.ResultURL = url
		}
	}
	return nil
}

// ruleSubject is the file name processing rules match against: the first
// print document, whose name describes the print job, or the order when
// there are no prints.
func ruleSubject(in localInputs) string {
	if len(in.prints) > 0 {
		return in.prints[0]
	}
	return in.order
}

// localize downloads remote inputs into runDir.
func (p *Pipeline) localize(ctx context.Context, job ProcessingJob, runDir string) (localInputs, error) {
	var in localInputs
	if job.OrderPath == "" {
		return in, &ValidationError{Field: "order", Reason: "required"}
	}
	fetch := func(field, ref string) (string, error) {
		local, err := p.deps.Fetcher.Fetch(ctx, ref, runDir)
		if err != nil {
			return "", &ValidationError{Field: field, Path: ref, Reason: "download failed: " + err.Error()}
		}
		return local, nil
	}

	var err error
	in.remoteOrder = storage.IsRemote(job.OrderPath)
	if in.order, err = fetch("order", job.OrderPath); err != nil {
		return in, err
	}
	for i, ref := range job.PrintPaths {
		local, err := fetch(fmt.Sprintf("prints[%d]", i), ref)
		if err != nil {
			return in, err
		}
		in.prints = append(in.prints, local)
	}
	if job.QRPath != "" {
		if in.qr, err = fetch("qr", job.QRPath); err != nil {
			return in, err
		}
	}
	return in, nil
}

// validate checks existence and content type of every input before any
// output is produced.
func (p *Pipeline) validate(in localInputs) error {
	if err := p.checkFile("order", in.order, filetype.PDF); err != nil {
		return err
	}
	for i, path := range in.prints {
		if err := p.checkFile(fmt.Sprintf("prints[%d]", i), path, filetype.PDF); err != nil {
			return err
		}
	}
	if in.qr != "" {
		if err := p.checkFile("qr", in.qr, filetype.Image); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) checkFile(field, path string, want filetype.Kind) error {
	info, err := os.Stat(path)
	switch {
	case err != nil:
		return &ValidationError{Field: field, Path: path, Reason: "not found"}
	case info.IsDir():
		return &ValidationError{Field: field, Path: path, Reason: "is a directory"}
	case info.Size() == 0:
		return &ValidationError{Field: field, Path: path, Reason: "empty file"}
	}
	ft, err := p.deps.Detector.Detect(path)
	if err != nil {
		return &ValidationError{Field: field, Path: path, Reason: err.Error()}
	}
	if ft.Kind != want {
		return &ValidationError{Field: field, Path: path, Reason: fmt.Sprintf("expected %s, got %s", want, ft.MIMEType)}
	}
	return nil
}

// renderSources renders every print document and decodes the QR image on
// the coordinator pool. Thumbnails come back concatenated in input order; a
// failed or timed-out source contributes nothing.
func (p *Pipeline) renderSources(ctx context.Context, jobID string, s config.Settings, classifier *blank.Classifier, in localInputs) ([]image.Image, image.Image, int) {
	renderer := thumbnail.NewRenderer(p.deps.Opener, classifier)

	tasks := make([]coordinator.Task[[]image.Image], 0, len(in.prints)+1)
	for _, path := range in.prints {
		req := s.ThumbnailRequest(path)
		tasks = append(tasks, coordinator.Task[[]image.Image]{
			Name: filepath.Base(path),
			Run: func(ctx context.Context) ([]image.Image, error) {
				thumbs, err := renderer.Render(ctx, req)
				if err != nil {
					return nil, err
				}
				imgs := make([]image.Image, len(thumbs))
				for i, t := range thumbs {
					imgs[i] = t.Image
				}
				return imgs, nil
			},
		})
	}
	if in.qr != "" {
		qrPath := in.qr
		tasks = append(tasks, coordinator.Task[[]image.Image]{
			Name: "qr",
			Run: func(context.Context) ([]image.Image, error) {
				img, err := LoadImage(qrPath)
				if err != nil {
					return nil, err
				}
				return []image.Image{img}, nil
			},
		})
	}

	outcomes := coordinator.Run(ctx, s.Pool(), tasks)

	var thumbs []image.Image
	failed := 0
	for _, o := range outcomes[:len(in.prints)] {
		if !o.OK() {
			failed++
			log.Warn().Err(o.Err).Str("job_id", jobID).Str("source", o.Name).Msg("print document yielded no thumbnails")
			continue
		}
		thumbs = append(thumbs, o.Value...)
	}

	var qr image.Image
	if in.qr != "" {
		o := outcomes[len(in.prints)]
		if o.OK() && len(o.Value) == 1 {
			qr = o.Value[0]
		} else {
			log.Warn().Err(o.Err).Str("job_id", jobID).Str("qr", in.qr).Msg("QR image unusable; QR boxes left empty")
		}
	}
	return thumbs, qr, failed
}

// LoadImage decodes a PNG, JPEG or BMP file, honouring EXIF orientation.
func LoadImage(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

func (p *Pipeline) progress(ctx context.Context, jobID string, pct int, msg string) {
	p.setStatus(ctx, jobID, store.Status{State: StateProcessing, Progress: pct, Message: msg})
}

func (p *Pipeline) setStatus(ctx context.Context, jobID string, st store.Status) {
	if err := p.deps.Status.Set(ctx, jobID, st); err != nil {
		log.Debug().Err(err).Str("job_id", jobID).Msg("status update failed")
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
