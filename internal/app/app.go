// Package app wires configuration, storage, detection, delivery and the ops
// endpoint into a runnable bot.
package app

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"announcebot/internal/bot"
	"announcebot/internal/config"
	"announcebot/internal/metrics"
	"announcebot/internal/opsserver"
	"announcebot/internal/queue"
	"announcebot/internal/runtime/supervisor"
	"announcebot/internal/storage"
	logx "announcebot/pkg/logx"
	"announcebot/pkg/systemd"
)

const stopTimeout = 5 * time.Second

type Options struct {
	// Debug forces the debug log level regardless of config.
	Debug bool
	// Lookup replaces os.LookupEnv for environment overrides.
	Lookup func(string) (string, bool)
}

type App struct {
	cfgm  *config.Manager
	debug bool

	log  logx.Logger
	logs *logx.Service

	reg     *prometheus.Registry
	metrics *metrics.Collector

	state *storage.State
	queue *queue.Queue
	bot   *bot.Bot
	ops   *opsserver.Server

	sup *supervisor.Supervisor
}

// New loads the config and builds every component. Any error here is an
// initialization failure and the process should not start.
func New(cfgPath string, opts Options) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	if opts.Lookup != nil {
		cfgm.SetLookup(opts.Lookup)
	}
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, root := logx.New(mapLogging(cfg, opts.Debug))
	log := root.Component("app")
	cfgm.SetLogger(root.Component("config"))

	a := &App{cfgm: cfgm, debug: opts.Debug, log: log, logs: logSvc}
	if err := a.build(cfg, root); err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(cfg *config.Config, root logx.Logger) error {
	a.reg = prometheus.NewRegistry()
	a.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = metrics.NewCollector(a.reg)

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return err
	}
	backend, err := storage.Open(sc, root.Component("storage"))
	if err != nil {
		return err
	}
	a.state = storage.NewState(backend, root.Component("state"), storage.WithErrorHook(a.metrics.StoreError))

	fail := func(err error) error {
		_ = a.state.Close()
		return err
	}

	policy, err := mapPolicy(cfg)
	if err != nil {
		return fail(err)
	}
	p, err := mapPoster(cfg, root.Component("poster"))
	if err != nil {
		return fail(err)
	}
	src, err := mapSources(cfg, root)
	if err != nil {
		return fail(err)
	}
	composer, err := mapComposer(cfg, root.Component("compose"))
	if err != nil {
		return fail(err)
	}

	a.queue = queue.New(a.state, p, policy, root.Component("queue"),
		queue.WithObserver(a.metrics),
		queue.WithMaxAttempts(cfg.Queue.MaxAttempts),
		queue.WithRetryDelay(cfg.Queue.RetryDelayOrDefault()),
		queue.WithSendTimeout(cfg.Queue.SendTimeoutOrDefault()),
	)
	a.queue.Restore(context.Background())

	a.bot, err = bot.New(mapBotConfig(cfg), bot.Deps{
		State:    a.state,
		Queue:    a.queue,
		Source:   src,
		Poster:   p,
		Composer: composer,
	}, root.Component("bot"), bot.WithMetrics(a.metrics))
	if err != nil {
		return fail(err)
	}

	if cfg.Ops.Enabled {
		a.ops = opsserver.New(mapOps(cfg), a.reg, a.health, a.stats, root.Component("ops"))
	}

	a.log.Info("initialized",
		logx.String("storage", a.state.Driver()),
		logx.String("poster", p.Name()),
		logx.String("source", src.Name()),
		logx.Int("queued", a.queue.Len()),
		logx.Bool("ops", a.ops != nil),
	)
	return nil
}

func (a *App) Bot() *bot.Bot { return a.bot }

func (a *App) Queue() *queue.Queue { return a.queue }

func (a *App) Log() logx.Logger { return a.log }

func (a *App) health(ctx context.Context) (bool, any) {
	h := a.bot.HealthCheck(ctx)
	return h.Healthy, h
}

func (a *App) stats(ctx context.Context) any {
	type payload struct {
		bot.Stats
		Tasks []supervisor.TaskStats `json:"tasks,omitempty"`
	}
	out := payload{Stats: a.bot.Stats(ctx)}
	if a.sup != nil {
		out.Tasks = a.sup.Tasks()
	}
	return out
}

// Run starts continuous mode and blocks until ctx is done or a supervised
// task fails.
func (a *App) Run(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log.Component("supervisor")), supervisor.WithCancelOnError(true))
	sctx := a.sup.Context()

	a.sup.Go("bot", a.bot.RunForever)
	if a.ops != nil {
		a.sup.GoRestart("ops", a.ops.Run, time.Second, 30*time.Second)
	}
	a.sup.Go("config.watch", a.cfgm.Watch)
	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
		return nil
	})
	if a.cfgm.Get().Bot.Watchdog {
		a.sup.Go("systemd.watchdog", func(c context.Context) error {
			return systemd.Watchdog(c, func(c context.Context) bool {
				return a.state.HealthCheck(c)
			})
		})
	}
	if ok, err := systemd.Ready(); err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
	} else if ok {
		a.log.Debug("sd_notify ready sent")
	}

	<-sctx.Done()

	reason := StopSignal
	if a.sup.Err() != nil {
		reason = StopFatalError
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = systemd.Stopping()

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	err := a.sup.Stop(stopCtx)
	if errors.Is(err, context.DeadlineExceeded) {
		a.log.Warn("supervised tasks did not stop in time", logx.Duration("timeout", stopTimeout))
		return a.sup.Err()
	}
	return err
}

// Close releases storage and log sinks.
func (a *App) Close() error {
	var errs []error
	if a.state != nil {
		errs = append(errs, a.state.Close())
	}
	a.log.Info("stopped")
	if a.logs != nil {
		errs = append(errs, a.logs.Close())
	}
	return errors.Join(errs...)
}
