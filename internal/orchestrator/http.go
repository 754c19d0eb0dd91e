package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/printorder/internal/config"
	"github.com/local/printorder/internal/storage"
	"github.com/local/printorder/internal/store"
)

// maxUploadMemory is held in memory before multipart parts spill to disk.
const maxUploadMemory = 64 << 20

// Server exposes the pipeline over HTTP. Jobs run in the background; their
// progress is read from the status store.
type Server struct {
	pipeline  *Pipeline
	settings  config.Settings
	uploadDir string
	root      string

	wg   sync.WaitGroup
	base context.Context
	stop context.CancelFunc
}

// ServerOptions configures where the server reads and writes files.
type ServerOptions struct {
	// UploadDir keeps uploaded files under UploadDir/<job id>.
	UploadDir string
	// FileRoot is the only directory request paths may name. Relative paths
	// resolve against it. Empty accepts remote references only.
	FileRoot string
}

// NewServer serves jobs with a copy of settings.
func NewServer(p *Pipeline, settings config.Settings, opts ServerOptions) *Server {
	if opts.UploadDir == "" {
		opts.UploadDir = "uploads"
	}
	root := opts.FileRoot
	if root != "" {
		if abs, err := filepath.Abs(root); err == nil {
			root = abs
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{pipeline: p, settings: settings.Clone(), uploadDir: opts.UploadDir, root: root, base: ctx, stop: cancel}
}

// localPath maps a request path into the file root. Paths that leave the root
// are refused, as is every local path when no root is configured.
func (s *Server) localPath(field, ref string) (string, error) {
	if s.root == "" {
		return "", &ValidationError{Field: field, Path: ref, Reason: "local paths are not accepted"}
	}
	p := ref
	if !filepath.IsAbs(p) {
		p = filepath.Join(s.root, p)
	}
	p = filepath.Clean(p)
	rel, err := filepath.Rel(s.root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", &ValidationError{Field: field, Path: ref, Reason: "path outside the file root"}
	}
	return p, nil
}

// inputRef passes remote references through and confines local ones.
func (s *Server) inputRef(field, ref string) (string, error) {
	if ref == "" || storage.IsRemote(ref) {
		return ref, nil
	}
	return s.localPath(field, ref)
}

// resolve confines every path a process request names.
func (s *Server) resolve(req *processReq) error {
	var err error
	if req.Order, err = s.inputRef("order", req.Order); err != nil {
		return err
	}
	if req.QR, err = s.inputRef("qr", req.QR); err != nil {
		return err
	}
	for i := range req.Prints {
		if req.Prints[i], err = s.inputRef("prints", req.Prints[i]); err != nil {
			return err
		}
	}
	for i := range req.Files {
		if req.Files[i], err = s.inputRef("files", req.Files[i]); err != nil {
			return err
		}
	}
	if req.OutputDir != "" {
		if req.OutputDir, err = s.localPath("output_dir", req.OutputDir); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/process", s.handleProcess)
	mux.HandleFunc("/process_upload", s.handleProcessUpload)
	mux.HandleFunc("/status/", s.handleStatus)
	mux.HandleFunc("/download_result/", s.handleDownloadResult)
}

// Shutdown waits for running jobs, cancelling them when ctx expires first.
func (s *Server) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.stop()
		<-done
		return ctx.Err()
	}
}

type processReq struct {
	Order     string   `json:"order"`
	Prints    []string `json:"prints"`
	QR        string   `json:"qr"`
	Files     []string `json:"files"`
	OutputDir string   `json:"output_dir"`
	Wait      bool     `json:"wait"`
}

type processResp struct {
	Status  string            `json:"status"`
	JobID   string            `json:"job_id"`
	Message string            `json:"message"`
	Ignored []string          `json:"ignored,omitempty"`
	Result  *ProcessingResult `json:"result,omitempty"`
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req processReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if err := s.resolve(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"status": "error", "error": diagnose(err)})
		return
	}

	var (
		job     ProcessingJob
		ignored []string
	)
	switch {
	case req.Order != "":
		job = ProcessingJob{ID: uuid.NewString(), OrderPath: req.Order, PrintPaths: req.Prints, QRPath: req.QR, Settings: s.settings}
	case len(req.Files) > 0:
		var err error
		job, ignored, err = JobFromFiles(s.pipeline.deps.Detector, req.Files, s.settings)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"status": "error", "error": diagnose(err)})
			return
		}
	default:
		http.Error(w, "missing order or files", http.StatusBadRequest)
		return
	}
	job.OutputDir = req.OutputDir

	if req.Wait {
		res := s.pipeline.Process(r.Context(), job)
		code := http.StatusOK
		if !res.Success {
			code = statusFor(res.Error)
		}
		writeJSON(w, code, processResp{Status: resultStatus(res), JobID: res.JobID, Message: "processed", Ignored: ignored, Result: &res})
		return
	}

	s.submit(r.Context(), job)
	writeJSON(w, http.StatusAccepted, processResp{Status: "ok", JobID: job.ID, Message: "job queued", Ignored: ignored})
}

// handleProcessUpload accepts multipart "files" parts, stores them and
// queues a job over them.
func (s *Server) handleProcessUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		http.Error(w, "missing files", http.StatusBadRequest)
		return
	}

	outDir := r.FormValue("output_dir")
	if outDir != "" {
		var err error
		if outDir, err = s.localPath("output_dir", outDir); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"status": "error", "error": diagnose(err)})
			return
		}
	}

	jobID := uuid.NewString()
	dir := filepath.Join(s.uploadDir, jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		http.Error(w, "cannot create upload dir", http.StatusInternalServerError)
		return
	}
	var paths []string
	for i, hdr := range headers {
		name := filepath.Base(hdr.Filename)
		if name == "." || name == string(filepath.Separator) || name == "" {
			name = fmt.Sprintf("upload_%d", i)
		}
		dst := filepath.Join(dir, name)
		if err := saveUpload(hdr, dst); err != nil {
			log.Error().Err(err).Str("job_id", jobID).Str("file", name).Msg("cannot save upload")
			http.Error(w, "write failed", http.StatusInternalServerError)
			return
		}
		paths = append(paths, dst)
	}

	job, ignored, err := JobFromFiles(s.pipeline.deps.Detector, paths, s.settings)
	if err != nil {
		_ = os.RemoveAll(dir)
		writeJSON(w, http.StatusBadRequest, map[string]any{"status": "error", "error": diagnose(err)})
		return
	}
	job.ID = jobID
	job.OutputDir = outDir

	s.submit(r.Context(), job)
	writeJSON(w, http.StatusCreated, processResp{Status: "ok", JobID: jobID, Message: "upload job created", Ignored: ignored})
}

func saveUpload(hdr *multipart.FileHeader, dst string) error {
	src, err := hdr.Open()
	if err != nil {
		return err
	}
	defer src.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// submit records the job as queued and runs it in the background.
func (s *Server) submit(ctx context.Context, job ProcessingJob) {
	now := time.Now()
	if err := s.pipeline.deps.Status.Set(ctx, job.ID, store.Status{
		State: StateQueued, Message: "queued", Start: &now,
		Metadata: map[string]any{"order": job.OrderPath, "prints": len(job.PrintPaths), "qr": job.QRPath != ""},
	}); err != nil {
		log.Warn().Err(err).Str("job_id", job.ID).Msg("cannot record queued status")
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.pipeline.Process(s.base, job)
	}()
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/status/")
	st, ok, err := s.pipeline.deps.Status.Get(r.Context(), id)
	if err != nil {
		http.Error(w, "error", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     st.State == StateSuccess,
		"job_id":      id,
		"status":      st.State,
		"progress":    st.Progress,
		"message":     st.Message,
		"output_path": st.OutputPath,
		"start_time":  st.Start,
		"end_time":    st.End,
		"metadata":    st.Metadata,
	})
}

// handleDownloadResult serves the finished order document of a job.
func (s *Server) handleDownloadResult(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/download_result/")
	st, ok, err := s.pipeline.deps.Status.Get(r.Context(), id)
	if err != nil || !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if st.State != StateSuccess {
		http.Error(w, "not ready", http.StatusAccepted)
		return
	}
	if st.OutputPath == "" {
		http.Error(w, "result not available", http.StatusNotFound)
		return
	}
	f, err := os.Open(st.OutputPath)
	if err != nil {
		http.Error(w, "failed to read", http.StatusInternalServerError)
		return
	}
	defer f.Close()
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(st.OutputPath)))
	_, _ = io.Copy(w, f)
}

func resultStatus(res ProcessingResult) string {
	if res.Success {
		return "ok"
	}
	return "error"
}

func statusFor(d *Diagnostic) int {
	if d == nil {
		return http.StatusOK
	}
	switch d.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindSkipped:
		return http.StatusOK
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
