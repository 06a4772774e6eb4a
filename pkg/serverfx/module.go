package serverfx

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/joeydtaylor/steeze-pool/pkg/bundlefx"
	"github.com/joeydtaylor/steeze-pool/pkg/cluster"
	"github.com/joeydtaylor/steeze-pool/pkg/compress"
	"github.com/joeydtaylor/steeze-pool/pkg/dispatch"
	"github.com/joeydtaylor/steeze-pool/pkg/extension"
	"github.com/joeydtaylor/steeze-pool/pkg/manifest"
	"github.com/joeydtaylor/steeze-pool/pkg/middleware/logger"
	"github.com/joeydtaylor/steeze-pool/pkg/middleware/metrics"
	"github.com/joeydtaylor/steeze-pool/pkg/registry"
	"github.com/joeydtaylor/steeze-pool/pkg/session"
	"github.com/joeydtaylor/steeze-pool/pkg/transport/httpx"
)

// Module returns the full graph for this process: the worker graph when
// the process was spawned by a controller, the controller graph otherwise.
func Module(opts Options) fx.Option {
	common := fx.Options(
		fx.Supply(opts),
		fx.Provide(func(o Options) (manifest.Config, error) { return LoadConfig(o) }),
		bundlefx.Module,
		fx.Provide(httpx.NewChi),
		fx.Provide(extension.NewRuntime),
	)
	if IsWorker() {
		return fx.Options(
			common,
			fx.Provide(provideWorker),
			fx.Provide(func(w *cluster.Worker) dispatch.Resolver { return w }),
			fx.Provide(fx.Annotate(provideApp, fx.ResultTags(`name:"app"`))),
			fx.Invoke(registerWorkerHooks),
		)
	}
	return fx.Options(
		common,
		fx.Provide(provideRegistry),
		fx.Provide(func(r *registry.Registry) dispatch.Resolver { return dispatch.Local{Registry: r} }),
		fx.Provide(fx.Annotate(provideApp, fx.ResultTags(`name:"app"`))),
		fx.Invoke(registerControllerHooks),
	)
}

// ---- Providers ----

func provideRegistry(cfg manifest.Config, sm *session.Manager, log *zap.Logger) (*registry.Registry, error) {
	reg := registry.New(registry.Config{
		MaxEntryBytes: cfg.Cache.MaxEntryBytes,
		Timeout:       time.Duration(cfg.Cache.TimeoutMS) * time.Millisecond,
		RequireSecure: cfg.Server.RequireTLS,
	}, registry.Deps{
		Codecs:   compress.Default(),
		Sessions: sm,
		FS:       registry.OSFS{},
		Log:      log,
	})
	if err := reg.Load(cfg); err != nil {
		reg.Close()
		return nil, err
	}
	log.Info("registry loaded", zap.Int("entries", len(reg.Paths())))
	return reg, nil
}

func provideWorker(rt *extension.Runtime, log *zap.Logger) *cluster.Worker {
	return cluster.NewWorker(cluster.Stdio(), rt, log)
}

type appDeps struct {
	fx.In
	Cfg      manifest.Config
	Resolver dispatch.Resolver
	Sessions *session.Manager
	Runtime  *extension.Runtime
	LogMW    *logger.Middleware
	Metrics  metrics.Handler
	Router   httpx.Router
	Log      *zap.Logger
}

func provideApp(d appDeps) http.Handler {
	disp := dispatch.New(dispatch.Config{
		ConsentPath:   d.Cfg.Session.ConsentPath,
		SignInPath:    d.Cfg.Session.SignInPath,
		RequireSecure: d.Cfg.Server.RequireTLS,
		TrustProxy:    d.Cfg.Server.TrustProxy,
	}, d.Resolver, d.Sessions, d.Runtime, d.Log)

	return dispatch.BuildRouter(disp, dispatch.BuildDeps{
		Router:     d.Router,
		Sessions:   d.Sessions,
		LogMW:      d.LogMW,
		Metrics:    d.Metrics,
		Worker:     workerLabel(),
		TrustProxy: d.Cfg.Server.TrustProxy,
		Log:        d.Log,
	})
}

// ---- Lifecycle ----

type controllerDeps struct {
	fx.In
	Opts     Options
	Cfg      manifest.Config
	Registry *registry.Registry
	Runtime  *extension.Runtime
	Metrics  metrics.Handler
	Logger   *zap.Logger
	App      http.Handler `name:"app"`
}

func registerControllerHooks(lc fx.Lifecycle, d controllerDeps) {
	s := d.Cfg.Server
	ctl := cluster.NewController(cluster.ControllerConfig{Workers: s.Workers}, d.Registry, d.Logger)

	var (
		ln    net.Listener
		srv   *http.Server
		admin *http.Server
	)
	if s.MetricsListen != "" {
		admin = &http.Server{
			Addr:              s.MetricsListen,
			Handler:           d.Metrics,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var err error
			if ln, err = net.Listen("tcp", s.Listen); err != nil {
				return err
			}
			if s.Workers > 0 {
				d.Logger.Info("controller starting",
					zap.String("service", d.Opts.Service),
					zap.String("addr", ln.Addr().String()),
					zap.Int("workers", s.Workers),
				)
				if err := ctl.Start(ln); err != nil {
					_ = ln.Close()
					return err
				}
			} else {
				// No pool: this process answers HTTP itself.
				srv = newServer(d.App)
				serve(d.Logger, d.Opts.Service, srv, ln, s)
			}
			if admin != nil {
				go func() {
					d.Logger.Info("admin listener starting", zap.String("addr", admin.Addr))
					if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						d.Logger.Error("admin listener failed", zap.Error(err))
					}
				}()
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			d.Logger.Info("controller stopping", zap.String("service", d.Opts.Service))
			var errs []error
			if srv != nil {
				errs = append(errs, srv.Shutdown(ctx))
			}
			if admin != nil {
				errs = append(errs, admin.Shutdown(ctx))
			}
			errs = append(errs, ctl.Stop(ctx))
			if ln != nil && srv == nil {
				_ = ln.Close()
			}
			errs = append(errs, d.Runtime.Close())
			d.Registry.Close()
			return errors.Join(errs...)
		},
	})
}

type workerDeps struct {
	fx.In
	Opts     Options
	Cfg      manifest.Config
	Worker   *cluster.Worker
	Runtime  *extension.Runtime
	Logger   *zap.Logger
	App      http.Handler `name:"app"`
	Shutdown fx.Shutdowner
}

func registerWorkerHooks(lc fx.Lifecycle, d workerDeps) {
	srv := newServer(d.App)
	linkCtx, linkCancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := cluster.InheritedListener()
			if err != nil {
				return err
			}
			go func() {
				if err := d.Worker.Serve(linkCtx); err != nil {
					d.Logger.Error("controller link failed", zap.Error(err))
				}
				if linkCtx.Err() == nil {
					// The controller went away; a worker has no purpose without it.
					_ = d.Shutdown.Shutdown(fx.ExitCode(1))
				}
			}()
			serve(d.Logger, d.Opts.Service, srv, ln, d.Cfg.Server)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			d.Logger.Info("worker stopping", zap.String("service", d.Opts.Service))
			err := srv.Shutdown(ctx)
			linkCancel()
			return errors.Join(err, d.Runtime.Close(), d.Worker.Close())
		},
	})
}

// ---- helpers ----

func newServer(h http.Handler) *http.Server {
	return &http.Server{
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
		TLSConfig:    &tls.Config{MinVersion: tls.VersionTLS13, MaxVersion: tls.VersionTLS13},
	}
}

func serve(log *zap.Logger, service string, srv *http.Server, ln net.Listener, s manifest.Server) {
	if fileExists(s.TLSCert) && fileExists(s.TLSKey) {
		log.Info("server starting (TLS)",
			zap.String("service", service),
			zap.String("addr", ln.Addr().String()),
			zap.String("cert", s.TLSCert),
		)
		go func() {
			if err := srv.ServeTLS(ln, s.TLSCert, s.TLSKey); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatal("server failed", zap.Error(err))
			}
		}()
		return
	}
	log.Info("server starting (PLAINTEXT)",
		zap.String("service", service),
		zap.String("addr", ln.Addr().String()),
	)
	go func() {
		srv.TLSConfig = nil
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()
}

// workerLabel is the metrics label for this process.
func workerLabel() string {
	if id, err := strconv.Atoi(envOr(cluster.EnvWorkerID, "")); err == nil {
		return strconv.Itoa(id)
	}
	return "controller"
}
