package cli

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/veridoc/internal/cache"
	"github.com/dshills/veridoc/internal/config"
	"github.com/dshills/veridoc/internal/history"
	"github.com/dshills/veridoc/internal/metrics"
	"github.com/dshills/veridoc/internal/output"
	"github.com/dshills/veridoc/internal/project"
	"github.com/dshills/veridoc/internal/prompt"
	"github.com/dshills/veridoc/internal/providers"
	"github.com/dshills/veridoc/internal/redact"
	"github.com/dshills/veridoc/internal/verify"
)

// newBackend is swapped out in tests.
var newBackend = providers.New

// loadProject reads the project named by --project, falling back to the
// continuous-review project file.
func loadProject(cfg config.Config) (*project.Project, error) {
	path := flagProject
	if path == "" {
		path = cfg.CR.ProjectFile
	}
	if path == "" {
		return nil, usagef("no project file: pass --project or set CR_PROJECT_FILE")
	}
	p, err := project.Load(path)
	if err != nil {
		return nil, err
	}
	if dups := p.DuplicateNames(); len(dups) > 0 {
		logger.Warn("duplicate verification names, the last definition wins", zap.Strings("names", dups))
	}
	return p, nil
}

// engine bundles a coordinator with the collaborators that outlive a batch.
type engine struct {
	coord   *verify.Coordinator
	metrics *metrics.Recorder
	backend providers.Config
}

// newEngine builds the backend, composer, cache and metrics for p.
func newEngine(ctx context.Context, cfg config.Config, p *project.Project, sink verify.Sink) (*engine, error) {
	bcfg, err := cfg.Backend(p)
	if err != nil {
		return nil, err
	}

	backend, err := newBackend(ctx, bcfg)
	if err != nil {
		return nil, err
	}

	filter := redact.New(cfg.Privacy.RedactSecrets, cfg.Privacy.RedactPaths)
	composer := prompt.NewComposer(prompt.NewLocator(cfg.Lookup(), cfg.Exclude), prompt.WithRedaction(filter))

	rec := metrics.New()
	opts := []verify.Option{
		verify.WithSink(sink),
		verify.WithLogger(logger),
		verify.WithMetrics(rec),
		verify.WithStreaming(cfg.Stream),
		verify.WithConcurrency(cfg.Concurrency),
		verify.WithSavePrompt(cfg.SavePrompt),
		verify.WithLookup(cfg.Lookup()),
	}
	if cfg.Cache.Enabled {
		c, err := openCache(cfg, true)
		if err != nil {
			return nil, fmt.Errorf("opening cache: %w", err)
		}
		opts = append(opts, verify.WithCache(c))
	}

	logger.Debug("backend ready",
		zap.String("provider", string(bcfg.Provider)),
		zap.String("model", bcfg.Model),
		zap.Bool("stream", cfg.Stream))
	return &engine{
		coord:   verify.New(backend, bcfg, composer, opts...),
		metrics: rec,
		backend: bcfg,
	}, nil
}

const (
	progressBuffer  = 256
	progressTimeout = 2 * time.Second
)

// progress feeds the terminal printer from a buffered channel so a slow
// stderr never stalls the coordinator.
type progress struct {
	sink *verify.ChannelSink
	done chan struct{}
	once sync.Once
}

// startProgress prints events to w unless quiet. Every event is also logged
// at debug level.
func startProgress(w io.Writer, cfg config.Config, quiet, jsonEvents bool) *progress {
	out := verify.Discard
	if !quiet {
		out = output.NewProgress(w, output.ProgressOptions{
			NoColor: flagNoColor,
			Stream:  cfg.Stream,
			JSON:    jsonEvents,
		})
	}
	out = verify.Multi(out, logEvents(logger))

	pr := &progress{
		sink: verify.NewChannelSink(progressBuffer, progressTimeout),
		done: make(chan struct{}),
	}
	go func() {
		defer close(pr.done)
		for e := range pr.sink.Events() {
			out.Emit(e)
		}
	}()
	return pr
}

// Sink is what the coordinator emits to.
func (pr *progress) Sink() verify.Sink { return pr.sink }

// Stop waits for queued events to be printed. Call it only once the
// coordinator has returned.
func (pr *progress) Stop() {
	pr.once.Do(func() {
		pr.sink.Close()
		<-pr.done
		if n := pr.sink.Dropped(); n > 0 {
			logger.Debug("progress events dropped", zap.Int64("count", n))
		}
	})
}

func logEvents(l *zap.Logger) verify.Sink {
	return verify.SinkFunc(func(e verify.Event) {
		if e.Kind == verify.EventStreamingContent {
			return
		}
		l.Debug("event",
			zap.String("kind", string(e.Kind)),
			zap.String("unit", e.Unit),
			zap.String("message", e.Message))
	})
}

// finishBatch records history and metrics for a completed batch. Failures
// here are logged and never change the exit code.
func finishBatch(ctx context.Context, cfg config.Config, e *engine, res *verify.BatchResult, trigger string) {
	if cfg.History.Enabled {
		if err := recordHistory(ctx, cfg, res, trigger); err != nil {
			logger.Warn("recording history failed", zap.Error(err))
		}
	}
	if cfg.MetricsFile != "" {
		if err := e.metrics.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.Warn("writing metrics failed", zap.String("path", cfg.MetricsFile), zap.Error(err))
		}
	}
}

// openCache opens the response cache in the configured directory or the
// platform default.
func openCache(cfg config.Config, enabled bool) (*cache.Cache, error) {
	dir := cfg.Cache.Dir
	if dir == "" && enabled {
		d, err := cache.DefaultDir(cfg.Lookup())
		if err != nil {
			return nil, err
		}
		dir = d
	}
	return cache.New(enabled, dir, cfg.Cache.TTLSeconds)
}

func openHistory(cfg config.Config) (*history.Store, error) {
	path := cfg.History.Path
	if path == "" {
		p, err := history.DefaultPath(cfg.Lookup())
		if err != nil {
			return nil, err
		}
		path = p
	}
	return history.Open(path)
}

func recordHistory(ctx context.Context, cfg config.Config, res *verify.BatchResult, trigger string) error {
	store, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Record(ctx, res, trigger)
}

// batchExit maps a batch to its exit code.
func batchExit(res *verify.BatchResult) int {
	if res == nil || res.OK() {
		return ExitSuccess
	}
	return ExitFailedUnits
}
