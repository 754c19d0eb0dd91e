// Package logger configures the global zerolog logger: a rotating log file,
// the console, and optional forwarding to Axiom.
package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/axiomhq/axiom-go/axiom"
	"github.com/axiomhq/axiom-go/axiom/ingest"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

const (
	serviceName    = "printorder"
	defaultDataset = "dev_printorder"
	axiomBatch     = 200
)

// Options defines logger initialization parameters.
type Options struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool

	SendToAxiom  bool
	AxiomAPIKey  string
	AxiomOrgID   string
	AxiomDataset string
	AxiomFlush   time.Duration

	// Console overrides stdout; tests use it to capture output.
	Console io.Writer
}

var (
	mu sync.Mutex
	ax *axiomClient
)

// Init sets up the global logger. A failing Axiom client is reported on
// stderr and logging continues without it.
func Init(opts Options) error {
	var writers []io.Writer

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return fmt.Errorf("create logs dir: %w", err)
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
		})
	}

	console := opts.Console
	if console == nil {
		console = os.Stdout
	}
	if opts.Pretty {
		writers = append(writers, zerolog.ConsoleWriter{Out: console, TimeFormat: time.RFC3339})
	} else {
		writers = append(writers, console)
	}

	mu.Lock()
	defer mu.Unlock()
	if opts.SendToAxiom && opts.AxiomAPIKey != "" {
		client, err := newAxiomClient(opts.AxiomAPIKey, opts.AxiomOrgID, opts.AxiomDataset, opts.AxiomFlush)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Axiom disabled: %v\n", err)
		} else {
			ax = client
			writers = append(writers, &axiomWriter{client: client})
		}
	}

	zerolog.TimeFieldFormat = time.RFC3339
	lvl, err := zerolog.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		lvl = zerolog.InfoLevel
	}

	log.Logger = zerolog.New(io.MultiWriter(writers...)).
		Level(lvl).
		With().Timestamp().Str("service", serviceName).
		Logger()
	return nil
}

// Close flushes any buffered external loggers.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if ax != nil {
		_ = ax.Close()
		ax = nil
	}
}

// axiomWriter forwards zerolog JSON lines to Axiom, dropping debug lines.
type axiomWriter struct{ client *axiomClient }

func (w *axiomWriter) Write(p []byte) (int, error) {
	ev, ok := axiomEvent(p)
	if ok {
		w.client.Send(ev)
	}
	return len(p), nil
}

func axiomEvent(p []byte) (axiom.Event, bool) {
	var ev map[string]any
	if err := json.Unmarshal(p, &ev); err != nil {
		ev = map[string]any{"message": string(p), "level": "info"}
	}
	if lvl, _ := ev["level"].(string); lvl == "debug" || lvl == "trace" {
		return nil, false
	}
	ev["service"] = serviceName
	if _, ok := ev[ingest.TimestampField]; !ok {
		ev[ingest.TimestampField] = time.Now()
	}
	return axiom.Event(ev), true
}

// axiomClient batches events and ingests them on a timer or when a batch fills.
type axiomClient struct {
	client  *axiom.Client
	dataset string
	ch      chan axiom.Event
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

func newAxiomClient(token, orgID, dataset string, flushEvery time.Duration) (*axiomClient, error) {
	if dataset == "" {
		dataset = defaultDataset
	}
	opts := []axiom.Option{axiom.SetToken(token)}
	if orgID != "" {
		opts = append(opts, axiom.SetOrganizationID(orgID))
	}
	c, err := axiom.NewClient(opts...)
	if err != nil {
		return nil, err
	}
	if flushEvery <= 0 {
		flushEvery = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	ac := &axiomClient{
		client:  c,
		dataset: dataset,
		ch:      make(chan axiom.Event, 1000),
		cancel:  cancel,
	}
	ac.wg.Add(1)
	go ac.loop(ctx, flushEvery)
	return ac, nil
}

// Send enqueues ev, dropping it when the buffer is full.
func (a *axiomClient) Send(ev axiom.Event) {
	select {
	case a.ch <- ev:
	default:
	}
}

func (a *axiomClient) loop(ctx context.Context, flushEvery time.Duration) {
	defer a.wg.Done()
	ticker := time.NewTicker(flushEvery)
	defer ticker.Stop()

	batch := make([]axiom.Event, 0, axiomBatch)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		fctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		_, _ = a.client.IngestEvents(fctx, a.dataset, batch)
		cancel()
		batch = batch[:0]
	}
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case ev := <-a.ch:
					batch = append(batch, ev)
				default:
					flush()
					return
				}
			}
		case <-ticker.C:
			flush()
		case ev := <-a.ch:
			batch = append(batch, ev)
			if len(batch) >= axiomBatch {
				flush()
			}
		}
	}
}

func (a *axiomClient) Close() error {
	a.cancel()
	a.wg.Wait()
	return nil
}
