package orchestrator_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/printorder/internal/orchestrator"
	"github.com/local/printorder/internal/pdfdoc"
	"github.com/local/printorder/internal/pdftest"
)

func newServer(t *testing.T, f *fixture) (*orchestrator.Server, *http.ServeMux) {
	t.Helper()
	return newServerWithRoot(t, f, f.dir)
}

func newServerWithRoot(t *testing.T, f *fixture, root string) (*orchestrator.Server, *http.ServeMux) {
	t.Helper()
	srv := orchestrator.NewServer(f.pipeline, settings(), orchestrator.ServerOptions{UploadDir: t.TempDir(), FileRoot: root})
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	return srv, mux
}

func do(mux *http.ServeMux, method, path string, body []byte, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	t.Parallel()
	_, mux := newServer(t, newFixture(t))

	rec := do(mux, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestProcessEndpointWaits(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	_, mux := newServer(t, f)

	body, _ := json.Marshal(map[string]any{"order": f.order, "prints": []string{f.print}, "qr": f.qr, "wait": true})
	rec := do(mux, http.MethodPost, "/process", body, "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	out := decode(t, rec)
	assert.Equal(t, "ok", out["status"])
	result := out["result"].(map[string]any)
	assert.Equal(t, true, result["success"])
	assert.Equal(t, filepath.Join(f.dir, "order_완료.pdf"), result["output_path"])
}

func TestProcessEndpointValidation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	_, mux := newServer(t, f)

	body, _ := json.Marshal(map[string]any{"order": filepath.Join(f.dir, "missing.pdf"), "wait": true})
	rec := do(mux, http.MethodPost, "/process", body, "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	result := decode(t, rec)["result"].(map[string]any)
	assert.Equal(t, "validation", result["error"].(map[string]any)["kind"])

	rec = do(mux, http.MethodPost, "/process", []byte("{"), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(mux, http.MethodPost, "/process", []byte("{}"), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(mux, http.MethodGet, "/process", nil, "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestProcessEndpointConfinesPaths(t *testing.T) {
	t.Parallel()
	outside := t.TempDir()

	tests := []struct {
		name  string
		root  bool
		body  func(f *fixture) map[string]any
		code  int
		field string
	}{
		{
			name: "relative to root",
			root: true,
			body: func(*fixture) map[string]any {
				return map[string]any{"order": "order.pdf", "prints": []string{"print.pdf"}, "wait": true}
			},
			code: http.StatusOK,
		},
		{
			name: "order escapes root",
			root: true,
			body: func(*fixture) map[string]any {
				return map[string]any{"order": "../order.pdf", "wait": true}
			},
			code:  http.StatusBadRequest,
			field: "order",
		},
		{
			name: "absolute print outside root",
			root: true,
			body: func(f *fixture) map[string]any {
				return map[string]any{"order": f.order, "prints": []string{filepath.Join(outside, "print.pdf")}, "wait": true}
			},
			code:  http.StatusBadRequest,
			field: "prints",
		},
		{
			name: "files outside root",
			root: true,
			body: func(f *fixture) map[string]any {
				return map[string]any{"files": []string{f.order, "/etc/passwd"}}
			},
			code:  http.StatusBadRequest,
			field: "files",
		},
		{
			name: "output dir outside root",
			root: true,
			body: func(f *fixture) map[string]any {
				return map[string]any{"order": f.order, "output_dir": outside, "wait": true}
			},
			code:  http.StatusBadRequest,
			field: "output_dir",
		},
		{
			name: "no root refuses local paths",
			body: func(f *fixture) map[string]any {
				return map[string]any{"order": f.order, "wait": true}
			},
			code:  http.StatusBadRequest,
			field: "order",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			root := ""
			if tt.root {
				root = f.dir
			}
			_, mux := newServerWithRoot(t, f, root)

			body, _ := json.Marshal(tt.body(f))
			rec := do(mux, http.MethodPost, "/process", body, "application/json")
			require.Equal(t, tt.code, rec.Code, rec.Body.String())
			if tt.field == "" {
				return
			}
			diag := decode(t, rec)["error"].(map[string]any)
			assert.Equal(t, "validation", diag["kind"])
			assert.Equal(t, tt.field, diag["details"].(map[string]any)["field"])
			assert.Zero(t, f.compositor.calls)
		})
	}
}

func TestProcessEndpointAsync(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	srv, mux := newServer(t, f)

	body, _ := json.Marshal(map[string]any{"files": []string{f.qr, f.print, f.order}})
	rec := do(mux, http.MethodPost, "/process", body, "application/json")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	id, _ := decode(t, rec)["job_id"].(string)
	require.NotEmpty(t, id)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	rec = do(mux, http.MethodGet, "/status/"+id, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode(t, rec)
	assert.Equal(t, "success", st["status"])
	assert.Equal(t, true, st["success"])
	assert.EqualValues(t, 100, st["progress"])

	rec = do(mux, http.MethodGet, "/download_result/"+id, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, minimalPDF, rec.Body.String())

	rec = do(mux, http.MethodGet, "/status/unknown", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProcessUploadEndpoint(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	// uploads land under a job directory; serve the fake documents by name
	byName := map[string]*pdftest.Doc{}
	for path, d := range f.docs {
		byName[filepath.Base(path)] = d
	}
	p := orchestrator.New(orchestrator.Dependencies{
		Opener: pdfdoc.OpenerFunc(func(path string) (pdfdoc.Document, error) {
			return pdftest.NewOpener(byName).Open(filepath.Base(path))
		}),
		Normalizer: passNormalizer{},
		Compositor: f.compositor,
		Status:     f.status,
		TempDir:    t.TempDir(),
	})
	uploads := t.TempDir()
	srv := orchestrator.NewServer(p, settings(), orchestrator.ServerOptions{UploadDir: uploads})
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, path := range []string{f.order, f.print, f.qr} {
		fw, err := mw.CreateFormFile("files", filepath.Base(path))
		require.NoError(t, err)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	rec := do(mux, http.MethodPost, "/process_upload", buf.Bytes(), mw.FormDataContentType())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id, _ := decode(t, rec)["job_id"].(string)
	require.NotEmpty(t, id)
	assert.FileExists(t, filepath.Join(uploads, id, "order.pdf"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	st, ok, err := f.status.Get(context.Background(), id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, orchestrator.StateSuccess, st.State, st.Message)
	assert.Equal(t, filepath.Join(uploads, id, "order_완료.pdf"), st.OutputPath)
}

func TestProcessUploadRejectsOutputDirOutsideRoot(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	_, mux := newServer(t, f)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("files", "order.pdf")
	require.NoError(t, err)
	_, err = fw.Write([]byte(minimalPDF))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("output_dir", t.TempDir()))
	require.NoError(t, mw.Close())

	rec := do(mux, http.MethodPost, "/process_upload", buf.Bytes(), mw.FormDataContentType())
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	diag := decode(t, rec)["error"].(map[string]any)
	assert.Equal(t, "output_dir", diag["details"].(map[string]any)["field"])
}
