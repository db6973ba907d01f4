package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"medremind/internal/channel"
	"medremind/internal/config"
	"medremind/internal/httpapi"
	"medremind/internal/notify"
	"medremind/internal/processor"
	"medremind/internal/runtime/supervisor"
	"medremind/internal/schedule"
	"medremind/internal/store"
	"medremind/internal/tokens"
	logx "medremind/pkg/logx"
)

// App wires the daemon together: config, logging, storage, the token
// registry, the channel dispatcher and the services on top of them.
type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	store  store.Store
	tokens tokens.Registry

	dispatcher *channel.Dispatcher
	notify     *notify.Service
	sched      *schedule.Service
	proc       *processor.Service
	api        *httpapi.Server
}

func NewApp(ctx context.Context, cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogxConfig(cfg))
	log = log.With(logx.String("comp", "app"))

	// Storage
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	log.Info("storage ready", logx.String("driver", sc.Driver))

	// Device token registry
	var registry tokens.Registry
	if rc, enabled, err := mapRedisConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		registry, err = tokens.NewRedis(ctx, rc)
		if err != nil {
			return nil, fmt.Errorf("redis token registry: %w", err)
		}
		log.Info("token registry ready", logx.String("backend", "redis"), logx.String("addr", rc.Addr))
	} else {
		registry = tokens.NewMemory()
		log.Info("token registry ready", logx.String("backend", "memory"))
	}

	// Delivery channels
	ccfg, err := mapChannelConfigs(cfg)
	if err != nil {
		return nil, err
	}
	dispatcher, err := buildDispatcher(ccfg, registry, log.With(logx.String("comp", "channel")))
	if err != nil {
		return nil, err
	}

	notifSvc := notify.New(st, dispatcher, log.With(logx.String("comp", "notify")))

	schedSvc := schedule.New(st, schedule.Config{
		Timezone: cfg.Processor.Timezone,
	}, log.With(logx.String("comp", "schedule")))

	procCfg, err := mapProcessorConfig(cfg)
	if err != nil {
		return nil, err
	}
	procSvc := processor.New(st, notifSvc, procCfg, log.With(logx.String("comp", "processor")))

	httpCfg, err := mapHTTPConfig(cfg)
	if err != nil {
		return nil, err
	}
	apiSrv := httpapi.New(httpCfg, schedSvc, notifSvc, procSvc, registry,
		log.With(logx.String("comp", "http")))

	return &App{
		cfgPath:    cfgPath,
		cfgm:       cfgm,
		log:        log,
		logs:       logSvc,
		store:      st,
		tokens:     registry,
		dispatcher: dispatcher,
		notify:     notifSvc,
		sched:      schedSvc,
		proc:       procSvc,
		api:        apiSrv,
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.NewSupervisor(ctx,
		supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := mapStorageConfig(cfg); err != nil {
			return err
		}
		if _, _, err := mapRedisConfig(cfg); err != nil {
			return err
		}
		if _, err := mapHTTPConfig(cfg); err != nil {
			return err
		}
		if _, err := mapProcessorConfig(cfg); err != nil {
			return err
		}
		if _, err := mapChannelConfigs(cfg); err != nil {
			return err
		}
		return nil
	})

	if cfg := a.cfgm.Get(); cfg != nil && cfg.Processor.Enabled {
		if err := a.proc.Start(a.sup.Context()); err != nil {
			return err
		}
	} else {
		a.log.Info("processor disabled; reminder dispatch requires manual triggers")
	}

	if cfg := a.cfgm.Get(); cfg != nil && cfg.HTTP.Enabled {
		if err := a.api.Start(); err != nil {
			return err
		}
	} else {
		a.log.Info("http api disabled")
	}

	// hot reload config fan-out
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

// applyConfig hot-applies a validated config. Logging and processor
// tunables go live in place; storage, redis, http and channel transports
// need a restart and are logged as such.
func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)

	for _, s := range sections {
		switch s {
		case "storage", "redis", "http", "channels":
			a.log.Warn("config section changed; restart required for changes to take effect",
				logx.String("section", s))
		}
	}

	a.logs.Apply(mapLogxConfig(newCfg))

	// Processor windows and retry policy apply live; enable/disable flips
	// the cron loop on the fly.
	if procCfg, err := mapProcessorConfig(newCfg); err != nil {
		a.log.Warn("invalid processor config; keeping previous", logx.Err(err))
	} else {
		a.proc.Apply(procCfg)
		prevEnabled := oldCfg != nil && oldCfg.Processor.Enabled
		switch {
		case prevEnabled && !newCfg.Processor.Enabled:
			a.log.Info("processor disabled via config")
			a.proc.Stop()
		case !prevEnabled && newCfg.Processor.Enabled:
			a.log.Info("processor enabled via config")
			if err := a.proc.Start(ctx); err != nil {
				a.log.Warn("processor restart failed", logx.Err(err))
			}
		}
	}

	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Cancel the run context first so background loops start unwinding.
	a.sup.Cancel()

	// Run a shutdown step with an upper bound so one component can't
	// stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()

		stepCtx := ctx
		var cancel context.CancelFunc
		if dl, ok := ctx.Deadline(); ok {
			if rem := time.Until(dl); rem < max {
				max = rem
			}
		}
		if max > 0 {
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("http", 3*time.Second, func(c context.Context) error { return a.api.Stop(c) })
	step("processor", 2*time.Second, func(context.Context) error { a.proc.Stop(); return nil })
	step("tokens", time.Second, func(context.Context) error { return a.tokens.Close() })
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	// Finally, wait for supervised goroutines (config watch/reload).
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}
