// Package engine wires the CSV tables, the CSMS, a batch of connected
// CP clients, and one Scenario together for a single simulation run,
// per spec.md §4.5.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aegischarge/simulator/internal/config"
	"github.com/aegischarge/simulator/internal/control"
	"github.com/aegischarge/simulator/internal/cpclient"
	"github.com/aegischarge/simulator/internal/csms"
	"github.com/aegischarge/simulator/internal/csvlog"
	"github.com/aegischarge/simulator/internal/eventbus"
	"github.com/aegischarge/simulator/internal/livefeed"
	"github.com/aegischarge/simulator/internal/ocpp"
	"github.com/aegischarge/simulator/internal/telemetry"
	"github.com/aegischarge/simulator/internal/wire"
)

// Scenario is the value-type contract every scenario catalog entry
// satisfies. Registry maps names to Scenario values rather than to a
// base class with overridable methods — spec.md §9 calls out
// inheritance as an anti-pattern this port deliberately avoids.
type Scenario interface {
	// Drive runs the scenario's full charge-session choreography
	// against cps, for the given mode ("normal" or "attack") and
	// duration (number of MeterValues ticks).
	Drive(ctx context.Context, cps []*cpclient.Client, mode string, duration int, params config.ScenarioParams) error
	// Label classifies one emitted event for the unified table.
	Label(ev ocpp.Event, mode string) string
}

// Registry is the name -> Scenario lookup table the CLI resolves
// --scenario against.
type Registry map[string]Scenario

// Options configures one Engine.Run invocation.
type Options struct {
	ScenarioName string
	Scenario     Scenario
	Mode         string
	Duration int
	Stations int

	// TypedTableDir is where the five typed CSV tables are written;
	// UnifiedTablePath is the single unified-table file, per spec.md §6's
	// logs/raw/.../ vs logs/ocpp/... split layout. Both are computed by
	// the CLI so the engine itself stays agnostic of the naming scheme.
	TypedTableDir    string
	UnifiedTablePath string

	CSMSAddr string
	Params       config.ScenarioParams
	AuthTags     csms.AuthorizedTags

	DefaultIntervalSec int
	WatchdogTick       time.Duration

	RedisAddr      string
	TracingEnabled bool

	// Control, if non-nil, is told about this run's start/finish so an
	// external dashboard can poll /status or request /stop.
	Control *control.Controller
}

// Engine owns one run's lifecycle: CSV prep, CSMS start, batched
// connect, Drive, cleanup — in that order, each as its own span when
// tracing is enabled.
type Engine struct {
	opts Options
}

// New builds an Engine for the given Options.
func New(opts Options) *Engine {
	return &Engine{opts: opts}
}

// Run executes the full lifecycle and blocks until the scenario's
// Drive returns (or ctx is canceled).
func (e *Engine) Run(ctx context.Context) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()
	if e.opts.Control != nil {
		e.opts.Control.Start(e.opts.ScenarioName, e.opts.Mode, e.opts.Stations, stop)
		defer e.opts.Control.Finish()
	}

	tracer, err := telemetry.New(ctx, e.opts.TracingEnabled)
	if err != nil {
		return fmt.Errorf("engine: init tracing: %w", err)
	}
	defer func() { _ = tracer.Shutdown(context.Background()) }()

	writerCtx, writerSpan := tracer.StartPhase(ctx, "csv_prep")
	writer, err := csvlog.Open(e.opts.TypedTableDir, e.opts.UnifiedTablePath)
	writerSpan.End()
	if err != nil {
		return fmt.Errorf("engine: prepare CSV output: %w", err)
	}
	defer writer.Close()

	bus := eventbus.New()
	bus.Subscribe(func(ev ocpp.Event) {
		label := e.opts.Scenario.Label(ev, e.opts.Mode)
		if err := writer.WriteEvent(ev, e.opts.ScenarioName, e.opts.Mode, label); err != nil {
			slog.Warn("failed to write event row", "error", err)
		}
	})

	if e.opts.RedisAddr != "" {
		redisClient, err := eventbus.Dial(writerCtx, e.opts.RedisAddr)
		if err != nil {
			slog.Warn("redis mirror unavailable, continuing without it", "error", err)
		} else {
			mirror := eventbus.NewRedisMirror(redisClient, "")
			bus.Subscribe(mirror.Handler())
		}
	}

	csmsCtx, csmsSpan := tracer.StartPhase(ctx, "csms_start")
	server := csms.New(bus, e.opts.AuthTags, e.opts.DefaultIntervalSec, e.opts.WatchdogTick)

	feed := livefeed.New()
	bus.Subscribe(feed.Handle)
	server.MountLiveFeed(feed.Handler())
	go func() {
		if err := feed.Serve(); err != nil {
			slog.Warn("livefeed server stopped", "error", err)
		}
	}()
	defer feed.Close()

	httpServer := &http.Server{Addr: e.opts.CSMSAddr, Handler: server.Router()}

	serveErr := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	watchdogCtx, watchdogCancel := context.WithCancel(csmsCtx)
	go server.RunWatchdog(watchdogCtx)

	time.Sleep(200 * time.Millisecond) // let the listener come up before CPs dial
	csmsSpan.End()

	connectCtx, connectSpan := tracer.StartPhase(ctx, "connect")
	clients, err := e.connectStations(connectCtx)
	connectSpan.End()
	if err != nil {
		watchdogCancel()
		_ = httpServer.Close()
		return fmt.Errorf("engine: connect stations: %w", err)
	}

	driveCtx, driveSpan := tracer.StartPhase(ctx, "drive")
	driveErr := e.opts.Scenario.Drive(driveCtx, clients, e.opts.Mode, e.opts.Duration, e.opts.Params)
	driveSpan.End()

	_, cleanupSpan := tracer.StartPhase(ctx, "cleanup")
	for _, c := range clients {
		_ = c.Close()
	}
	watchdogCancel()
	_ = httpServer.Close()
	cleanupSpan.End()

	select {
	case err := <-serveErr:
		if driveErr == nil {
			return fmt.Errorf("engine: CSMS listener failed: %w", err)
		}
	default:
	}

	if driveErr != nil {
		return fmt.Errorf("%w: %v", ocpp.ErrScenario, driveErr)
	}
	return nil
}

// connectBatchSize bounds how many CP clients dial concurrently, per
// spec.md §4.5's "batches of five."
const connectBatchSize = 5

// connectStations dials Stations CP clients in batches of
// connectBatchSize, each with its own back-off-wrapped Connect
// (internal/backoff.Linear, inside cpclient.Client.Connect). A CP that
// still fails after its retries is logged and skipped rather than
// aborting the run — spec.md §4.5 tolerates missing connections and
// only requires the run proceed with whichever CPs succeeded. Run
// fails only if every CP fails to connect.
func (e *Engine) connectStations(ctx context.Context) ([]*cpclient.Client, error) {
	url := "ws://" + dialHost(e.opts.CSMSAddr)

	type result struct {
		client *cpclient.Client
		err    error
		cpID   string
	}

	clients := make([]*cpclient.Client, 0, e.opts.Stations)

	for batchStart := 1; batchStart <= e.opts.Stations; batchStart += connectBatchSize {
		batchEnd := batchStart + connectBatchSize - 1
		if batchEnd > e.opts.Stations {
			batchEnd = e.opts.Stations
		}

		results := make(chan result, batchEnd-batchStart+1)
		for i := batchStart; i <= batchEnd; i++ {
			cpID := fmt.Sprintf("CP_%03d", i)
			go func(cpID string) {
				client := cpclient.New(cpID)
				err := client.Connect(ctx, url, wire.TLSConfig{})
				results <- result{client: client, err: err, cpID: cpID}
			}(cpID)
		}

		for i := batchStart; i <= batchEnd; i++ {
			r := <-results
			if r.err != nil {
				slog.Warn("CP failed to connect after retries, skipping", "cp_id", r.cpID, "error", r.err)
				continue
			}
			clients = append(clients, r.client)
		}
	}

	if len(clients) == 0 {
		return nil, fmt.Errorf("%w: no CP connected out of %d requested", ocpp.ErrTransport, e.opts.Stations)
	}
	return clients, nil
}

// dialHost turns a listen address like ":9000" into a dialable host
// like "localhost:9000"; addresses that already name a host pass through.
func dialHost(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "localhost" + addr
	}
	return addr
}
