// Package app assembles the daemon from its configured parts and
// sequences their startup and shutdown.
package app

import (
	"context"
	"fmt"
	"time"

	"botweave/internal/adapter"
	"botweave/internal/adapter/onebot"
	"botweave/internal/adapter/qq"
	"botweave/internal/api"
	"botweave/internal/config"
	"botweave/internal/domain"
	"botweave/internal/infrastructure/sqlite"
	"botweave/internal/kv"
	"botweave/internal/log"
	"botweave/internal/orchestration"
	"botweave/internal/orchestration/metrics"
	"botweave/internal/orchestration/tracing"
	"botweave/internal/paths"
	"botweave/internal/render"
	"botweave/internal/snippet"
	"botweave/internal/storage"
	"botweave/internal/watcher"
	"botweave/internal/workflow"
	"botweave/internal/workflow/node"
)

// App owns the daemon's long-lived components: the key-value store,
// the database, the workflow cache, the adapter manager, the
// scheduler, the catalog watcher and the HTTP server. Build one with
// New, run it with Start (which blocks serving HTTP) and shut it down
// with Stop.
type App struct {
	cfg     config.Config
	dataDir string

	logCleanup func()
	tracer     *tracing.Provider
	store      kv.Store
	db         *sqlite.DB
	globals    *workflow.Globals
	debug      *workflow.DebugStore
	registry   *workflow.Registry
	cache      *workflow.Cache
	counters   *metrics.Counters
	dispatcher *orchestration.Dispatcher
	adapters   *adapter.Manager
	scheduler  *orchestration.Scheduler
	watch      *watcher.Watcher
	server     *api.Server

	// watchDone is created in Start; Stop waits on it so the reload
	// loop finishes before resources close underneath it.
	watchDone chan struct{}
}

// New wires every component in dependency order. Nothing runs until
// Start; on error whatever was already opened is closed again.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	a := &App{cfg: cfg}

	ok := false
	defer func() {
		if ok {
			return
		}
		if a.watch != nil {
			_ = a.watch.Stop()
		}
		_ = a.closeCore(context.Background())
	}()

	a.dataDir = paths.ResolveDataDir(cfg.DataDir)
	if err := paths.EnsureLayout(a.dataDir); err != nil {
		return nil, fmt.Errorf("failed to prepare data directory: %w", err)
	}

	logDir := cfg.Log.Dir
	if logDir == "" {
		logDir = paths.LogDir(a.dataDir)
	}
	cleanup, err := log.Init(logDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	a.logCleanup = cleanup
	log.SetMinLevel(log.ParseLevel(cfg.Log.Level))
	log.Info(log.CatConfig, "daemon starting", "data_dir", a.dataDir)

	tcfg := tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		Exporter:     cfg.Tracing.Exporter,
		FilePath:     cfg.Tracing.FilePath,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		SampleRate:   cfg.Tracing.SampleRate,
		ServiceName:  "botweave",
	}
	if tcfg.FilePath == "" {
		tcfg.FilePath = paths.TracesPath(a.dataDir)
	}
	a.tracer, err = tracing.NewProvider(tcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	switch cfg.KV.Backend {
	case "redis":
		a.store = kv.NewRedisStore(cfg.KV.Redis.Addr, cfg.KV.Redis.Password, cfg.KV.Redis.DB)
		if err := a.store.Ping(ctx); err != nil {
			return nil, fmt.Errorf("redis unreachable at %s: %w", cfg.KV.Redis.Addr, err)
		}
		log.Info(log.CatKV, "using redis key-value store", "addr", cfg.KV.Redis.Addr)
	default:
		a.store = kv.NewMemoryStore()
	}

	a.db, err = sqlite.NewDB(paths.DBPath(a.dataDir))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	a.globals = workflow.NewGlobals(a.db.GlobalVariables(), a.store)
	loadedGlobals, err := a.globals.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load global variables: %w", err)
	}
	log.Info(log.CatCache, "global variables loaded", "count", loadedGlobals)

	a.adapters = adapter.NewManager()

	a.registry = workflow.NewRegistry()
	node.RegisterBuiltins(a.registry, node.Deps{
		Store:    storage.NewFileStore(paths.DataFilesDir(a.dataDir)),
		Renderer: render.NewHTMLRenderer(paths.RenderDir(a.dataDir)),
		Snippets: snippet.NewExecRunner(
			paths.SnippetsDir(a.dataDir),
			cfg.Engine.SnippetRunner,
			time.Duration(cfg.Engine.SnippetTimeout)*time.Second,
		),
		CallAPI: a.adapters.CallAPI,
	})

	a.debug = workflow.NewDebugStore(a.store)
	a.cache = workflow.NewCache(workflow.CacheParams{
		Workflows:     a.db.Workflows(),
		Subscriptions: a.db.Subscriptions(),
		Registry:      a.registry,
		Globals:       a.globals,
		Debug:         a.debug,
		MaxSteps:      cfg.Engine.MaxSteps,
		Tracer:        a.tracer.Tracer(),
	})
	loadedWorkflows, err := a.cache.Reload()
	if err != nil {
		return nil, fmt.Errorf("failed to load workflows: %w", err)
	}
	log.Info(log.CatCache, "workflows loaded", "count", loadedWorkflows)

	a.counters = metrics.NewCounters()
	a.dispatcher = orchestration.NewDispatcher(orchestration.DispatcherParams{
		Bots:     a.db.Bots(),
		Cache:    a.cache,
		Sender:   a.adapters,
		Tracer:   a.tracer.Tracer(),
		Counters: a.counters,
	})

	a.adapters.Register(qq.Protocol, qq.New)
	a.adapters.Register(onebot.Protocol, onebot.New)

	loc := time.Local
	if tz := cfg.Scheduler.Timezone; tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("invalid scheduler timezone %q: %w", tz, err)
		}
		loc = l
	}
	a.scheduler = orchestration.NewScheduler(orchestration.SchedulerParams{
		Cache:         a.cache,
		Bots:          a.db.Bots(),
		Subscriptions: a.db.Subscriptions(),
		Adapters:      a.adapters,
		Location:      loc,
		Tracer:        a.tracer.Tracer(),
		Counters:      a.counters,
	})
	a.cache.SetReloadHook(func() { a.scheduler.Resync() })

	a.watch, err = watcher.New(map[string]string{
		"data":     paths.DataFilesDir(a.dataDir),
		"snippets": paths.SnippetsDir(a.dataDir),
		"render":   paths.RenderDir(a.dataDir),
	}, watcher.DefaultDebounce)
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog watcher: %w", err)
	}

	a.server, err = api.NewServer(api.ServerConfig{
		Addr: cfg.Server.Addr(),
		Handler: api.HandlerConfig{
			Bots:      a.db.Bots(),
			Workflows: a.db.Workflows(),
			Adapters:  a.adapters,
			Cache:     a.cache,
			Registry:  a.registry,
			Dispatch:  a.dispatcher.Handler(),
			KV:        a.store,
			Debug:     a.debug,
			Jobs:      a.scheduler,
			Counters:  a.counters,
			Tracer:    a.tracer.Tracer(),
		},
	})
	if err != nil {
		return nil, err
	}

	ok = true
	return a, nil
}

// Start launches the runtime: previously-running bots, schedule
// entries, the catalog watcher and finally the HTTP listener. It
// blocks until the server stops; after Stop it returns
// http.ErrServerClosed.
func (a *App) Start(ctx context.Context) error {
	a.startRunningBots(ctx)

	installed := a.scheduler.Resync()
	if a.cfg.Scheduler.Enabled {
		a.scheduler.Start()
	} else if installed > 0 {
		log.Info(log.CatScheduler, "scheduler disabled, schedules will not fire", "installed", installed)
	}

	changes, err := a.watch.Start()
	if err != nil {
		return fmt.Errorf("failed to start catalog watcher: %w", err)
	}
	a.watchDone = make(chan struct{})
	go a.watchLoop(changes)

	return a.server.Start()
}

// Stop shuts the runtime down in reverse start order and releases
// every resource New opened. In-flight HTTP requests get until the
// context deadline to finish.
func (a *App) Stop(ctx context.Context) error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if err := a.server.Stop(ctx); err != nil {
		log.ErrorErr(log.CatAPI, "failed to stop http server", err)
		record(err)
	}

	if err := a.watch.Stop(); err != nil {
		log.ErrorErr(log.CatWatcher, "failed to stop catalog watcher", err)
		record(err)
	}
	if a.watchDone != nil {
		<-a.watchDone
	}

	a.scheduler.Stop()
	a.adapters.StopAll()

	log.Info(log.CatConfig, "daemon stopped")
	record(a.closeCore(ctx))
	return firstErr
}

// Port returns the port the HTTP server is bound to. Useful when the
// configured port is 0.
func (a *App) Port() int {
	return a.server.Port()
}

// startRunningBots restarts every enabled bot whose running flag
// survived the last shutdown. A bot that fails to come up gets its
// flag cleared so the stored state matches reality.
func (a *App) startRunningBots(ctx context.Context) {
	running, enabled := true, true
	bots, err := a.db.Bots().List(domain.BotFilter{Enabled: &enabled, Running: &running})
	if err != nil {
		log.ErrorErr(log.CatAdapter, "failed to list bots for auto-start", err)
		return
	}
	for _, b := range bots {
		if err := a.adapters.Start(ctx, b.ID, string(b.Protocol), b.Config, a.dispatcher.Handler()); err != nil {
			log.ErrorErr(log.CatAdapter, "auto-start failed", err, "bot_id", b.ID, "bot", b.Name)
			if dbErr := a.db.Bots().SetRunning(b.ID, false); dbErr != nil {
				log.ErrorErr(log.CatDB, "failed to clear running flag", dbErr, "bot_id", b.ID)
			}
			continue
		}
		log.Info(log.CatAdapter, "bot auto-started", "bot_id", b.ID, "bot", b.Name)
	}
}

// watchLoop reloads the workflow cache whenever a catalog directory
// changes, so workflows referencing renamed snippets or templates
// re-validate without a restart. The cache's reload hook resyncs the
// scheduler as part of each reload.
func (a *App) watchLoop(changes <-chan watcher.Change) {
	defer close(a.watchDone)
	for ch := range changes {
		log.Info(log.CatWatcher, "catalog changed, reloading workflows", "catalog", ch.Catalog)
		if _, err := a.cache.Reload(); err != nil {
			log.ErrorErr(log.CatWatcher, "reload after catalog change failed", err)
		}
	}
}

// closeCore releases the resources New opened, newest first. Safe on
// a partially built App.
func (a *App) closeCore(ctx context.Context) error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			log.ErrorErr(log.CatConfig, "failed to shut down tracing", err)
			record(err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			log.ErrorErr(log.CatKV, "failed to close key-value store", err)
			record(err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			log.ErrorErr(log.CatDB, "failed to close database", err)
			record(err)
		}
	}
	if a.logCleanup != nil {
		a.logCleanup()
	}
	return firstErr
}
