package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/local/printorder/internal/blank"
	cfgpkg "github.com/local/printorder/internal/config"
	logpkg "github.com/local/printorder/internal/logger"
	"github.com/local/printorder/internal/metrics"
	"github.com/local/printorder/internal/orchestrator"
	"github.com/local/printorder/internal/storage"
	"github.com/local/printorder/internal/store"
)

const usage = `usage:
  app process [-settings file] [-out dir] files...
  app serve [-settings file]`

func main() {
	_ = godotenv.Load()
	cfg := cfgpkg.FromEnv()

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	_ = logpkg.Init(logpkg.Options{
		Level:        cfg.Logging.Level,
		Pretty:       cfg.Logging.Pretty,
		File:         cfg.Logging.File,
		MaxSizeMB:    cfg.Logging.MaxSizeMB,
		MaxBackups:   cfg.Logging.MaxBackups,
		MaxAgeDays:   cfg.Logging.MaxAgeDays,
		Compress:     cfg.Logging.Compress,
		SendToAxiom:  cfg.Axiom.Send && cfg.Axiom.APIKey != "",
		AxiomAPIKey:  cfg.Axiom.APIKey,
		AxiomOrgID:   cfg.Axiom.OrgID,
		AxiomDataset: cfg.Axiom.Dataset,
		AxiomFlush:   cfg.Axiom.FlushInterval,
	})
	metrics.Init()

	var code int
	switch os.Args[1] {
	case "process":
		code = runProcess(cfg, os.Args[2:])
	case "serve":
		code = runServe(cfg, os.Args[2:])
	default:
		fmt.Fprintln(os.Stderr, usage)
		code = 2
	}
	logpkg.Close()
	os.Exit(code)
}

// loadSettings reads the settings file and applies the process-wide
// environment overrides on top.
func loadSettings(cfg cfgpkg.Config, path string) (cfgpkg.Settings, error) {
	if path == "" {
		path = cfg.Pipeline.SettingsFile
	}
	s, err := cfgpkg.LoadSettings(path)
	if err != nil {
		return s, err
	}
	s.ApplyPipeline(cfg.Pipeline)
	return s, s.Validate()
}

// backends holds the optional Redis and S3 clients of a process.
type backends struct {
	deps    orchestrator.Dependencies
	closers []func() error
}

func (b *backends) Close() {
	for _, c := range b.closers {
		_ = c()
	}
}

func newBackends(ctx context.Context, cfg cfgpkg.Config) (*backends, error) {
	b := &backends{deps: orchestrator.Dependencies{
		BlankCache:   blank.NewCache(),
		TempDir:      cfg.Pipeline.TempDir,
		OutputDir:    cfg.Pipeline.OutputDir,
		ResultPrefix: cfg.Storage.ResultPrefix,
	}}

	if cfg.Redis.Enabled {
		rs, err := store.NewRedisStatus(cfg.Redis.URL, cfg.Redis.StatusTTL)
		if err != nil {
			return nil, fmt.Errorf("init redis status store: %w", err)
		}
		b.closers = append(b.closers, rs.Close)
		b.deps.Status = rs
		// verdicts share the status store's connection
		b.deps.RemoteCache = store.NewBlankCacheFromClient(rs.Client(), cfg.Redis.BlankCacheTTL)
		log.Info().Str("url", cfg.Redis.URL).Msg("redis enabled for status and blank cache")
	}

	fetcher := &storage.Fetcher{}
	if cfg.Storage.Bucket != "" || cfg.Storage.AccessKeyID != "" {
		s3c, err := storage.NewS3Client(ctx, storage.Options{
			Bucket:          cfg.Storage.Bucket,
			Region:          cfg.Storage.Region,
			AccessKeyID:     cfg.Storage.AccessKeyID,
			SecretAccessKey: cfg.Storage.SecretAccessKey,
		})
		if err != nil {
			return nil, fmt.Errorf("init s3: %w", err)
		}
		fetcher.S3 = s3c
		if cfg.Storage.UploadResults {
			b.deps.Uploader = s3c
		}
		log.Info().Str("bucket", s3c.Bucket()).Bool("upload_results", cfg.Storage.UploadResults).Msg("s3 enabled")
	}
	b.deps.Fetcher = fetcher
	return b, nil
}

func runProcess(cfg cfgpkg.Config, args []string) int {
	fs := flag.NewFlagSet("process", flag.ContinueOnError)
	settingsFile := fs.String("settings", "", "TOML settings file")
	outDir := fs.String("out", "", "output directory (default: next to the order document)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, usage)
		return 2
	}

	settings, err := loadSettings(cfg, *settingsFile)
	if err != nil {
		log.Error().Err(err).Msg("invalid settings")
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := newBackends(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("backend init failed")
		return 1
	}
	defer b.Close()
	p := orchestrator.New(b.deps)

	job, ignored, err := orchestrator.JobFromFiles(nil, fs.Args(), settings)
	for _, f := range ignored {
		log.Warn().Str("file", f).Msg("unsupported input ignored")
	}
	if err != nil {
		log.Error().Err(err).Msg("cannot build job from inputs")
		return 1
	}
	job.OutputDir = *outDir

	res := p.Process(ctx, job)
	if !res.Success {
		fmt.Fprintf(os.Stderr, "failed: %s\n", res.Error.Message)
		return 1
	}
	fmt.Println(res.OutputPath)
	if res.ResultURL != "" {
		fmt.Println(res.ResultURL)
	}
	return 0
}

func runServe(cfg cfgpkg.Config, args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	settingsFile := fs.String("settings", "", "TOML settings file")
	uploadDir := fs.String("uploads", getenv("UPLOAD_DIR", "uploads"), "directory for uploaded inputs")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	settings, err := loadSettings(cfg, *settingsFile)
	if err != nil {
		log.Error().Err(err).Msg("invalid settings")
		return 2
	}

	b, err := newBackends(context.Background(), cfg)
	if err != nil {
		log.Error().Err(err).Msg("backend init failed")
		return 1
	}
	defer b.Close()

	orchestrator.CleanupTemps(cfg.Pipeline.TempDir, cfg.Pipeline.TempMaxAge)

	p := orchestrator.New(b.deps)
	api := orchestrator.NewServer(p, settings, orchestrator.ServerOptions{
		UploadDir: *uploadDir,
		FileRoot:  cfg.Pipeline.FileRoot,
	})
	mux := http.NewServeMux()
	api.RegisterRoutes(mux)
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{Addr: cfg.Server.Addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Msgf("HTTP server listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	janitor := time.NewTicker(time.Hour)
	defer janitor.Stop()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	code := 0
loop:
	for {
		select {
		case <-stop:
			break loop
		case err := <-errCh:
			log.Error().Err(err).Msg("http server error")
			code = 1
			break loop
		case <-janitor.C:
			orchestrator.CleanupTemps(cfg.Pipeline.TempDir, cfg.Pipeline.TempMaxAge)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	_ = srv.Shutdown(ctx)
	if err := api.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("jobs cancelled at shutdown")
	}
	log.Info().Msg("shutdown complete")
	return code
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
