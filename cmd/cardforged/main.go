// Package main is the entry point for the cardforge content server.
// It wires all dependencies together and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pitabwire/cardforge/internal/config"
	"github.com/pitabwire/cardforge/internal/editor"
	"github.com/pitabwire/cardforge/internal/events"
	"github.com/pitabwire/cardforge/internal/integrity"
	"github.com/pitabwire/cardforge/internal/observability"
	"github.com/pitabwire/cardforge/internal/schema"
	"github.com/pitabwire/cardforge/internal/store"
	"github.com/pitabwire/cardforge/internal/transport"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to configuration file (defaults apply when empty)")
	root := flag.String("root", "", "project directory or bucket URL, overrides the configuration")
	check := flag.Bool("check", false, "load the project, print the integrity report and exit")
	printToken := flag.Bool("print-token", false, "print a bearer token for the configured signing key and exit")
	subject := flag.String("subject", "designer", "token subject for -print-token")
	roles := flag.String("roles", "editor", "comma separated token roles for -print-token")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}
	if *root != "" {
		if strings.Contains(*root, "://") {
			cfg.Project.StorageURL = *root
		} else {
			cfg.Project.Root = *root
			cfg.Project.StorageURL = ""
		}
	}

	if *printToken {
		return issueToken(os.Stdout, cfg.Identity, *subject, strings.Split(*roles, ","))
	}

	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "cardforged", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}

	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	registry := schema.NewRegistry()
	if path := cfg.Schema.ExtensionFile; path != "" {
		if err := registry.LoadExtension(path); err != nil {
			logger.Error("schema extension failed", zap.String("path", path), zap.Error(err))
			return 1
		}
		logger.Info("schema extension applied", zap.String("path", path))
	}

	location := cfg.ProjectLocation()
	fsys, err := store.Open(ctx, location)
	if err != nil {
		logger.Error("project open failed", zap.String("location", location), zap.Error(err))
		return 1
	}
	st := store.New(fsys, store.WithLogger(logger), store.WithReadOnly(cfg.Project.ReadOnly))
	defer st.Close()

	_, loadErrs := st.LoadAll(ctx)
	for _, lerr := range loadErrs {
		logger.Warn("collection failed to load", zap.Error(lerr))
	}

	bus := events.NewBus(64)
	ed := editor.New(st, registry, editor.WithLogger(logger), editor.WithPublisher(bus))
	validator := integrity.NewValidator(registry)

	if *check {
		return printReport(os.Stdout, validator, ed, loadErrs)
	}
	transport.ObserveProject(metrics, ed)

	bgCtx, bgCancel := context.WithCancel(ctx)
	defer bgCancel()

	poller := store.NewPoller(cfg.Project.PollInterval, func(ctx context.Context) {
		res, err := ed.Refresh(ctx)
		if err != nil {
			logger.Warn("external change check failed", zap.Error(err))
			return
		}
		transport.ObserveReload(metrics, ed, transport.TriggerPoll, res)
	}, logger)

	var authenticate func(http.Handler) http.Handler
	if key := cfg.Identity.SigningKey(); key != nil {
		authenticate = transport.JWTAuthenticator(cfg.Identity, key, logger)
	} else {
		logger.Warn("authentication disabled, every caller is the local editor",
			zap.String("signing_key_env", cfg.Identity.SigningKeyEnv),
		)
	}

	router := transport.NewRouter(transport.Dependencies{
		Config:       cfg,
		Editor:       ed,
		Validator:    validator,
		Events:       bus,
		Metrics:      metrics,
		Logger:       logger,
		Authenticate: authenticate,
		Readiness: observability.ReadinessChecks{
			DocumentsLoaded: st.RequiredLoaded,
			SchemaLoaded:    func() bool { return len(registry.Tags()) > 0 },
			Storage:         st,
		},
		// A new project gets a fresh snapshot baseline.
		ProjectSwitched: func() { poller.Start(bgCtx) },
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	poller.Start(bgCtx)
	defer poller.Stop()

	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("location", st.Location()),
		zap.Bool("read_only", st.ReadOnly()),
		zap.Int("load_errors", len(loadErrs)),
	)

	code := 0
	if err := serve(ctx, srv, cfg.Server.ShutdownTimeout, logger); err != nil {
		logger.Error("server error", zap.Error(err))
		code = 1
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tracingShutdown(flushCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return code
}

// serve runs srv until ctx ends or the listener fails, then drains
// in-flight requests for up to timeout. Event streams end with their
// request context.
func serve(ctx context.Context, srv *http.Server, timeout time.Duration, logger *zap.Logger) error {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// issueToken writes a signed bearer token for subject.
func issueToken(w io.Writer, cfg config.IdentityConfig, subject string, roles []string) int {
	key := cfg.SigningKey()
	if key == nil {
		fmt.Fprintf(os.Stderr, "token error: %s is not set\n", cfg.SigningKeyEnv)
		return 1
	}
	token, err := transport.IssueToken(cfg, key, subject, roles, time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "token error: %v\n", err)
		return 1
	}
	fmt.Fprintln(w, token)
	return 0
}

// printReport writes load failures and integrity issues to w. It returns 1
// when anything would stop the project from being used as is.
func printReport(w io.Writer, validator *integrity.Validator, ed *editor.Editor, loadErrs []*store.LoadError) int {
	for _, lerr := range loadErrs {
		fmt.Fprintf(w, "[error] %v\n", lerr)
	}
	report := integrity.NewReport(validator.Validate(ed.Store().Documents(), ed.Graph()))
	for _, issue := range report.Issues {
		fmt.Fprintln(w, issue.String())
	}
	fmt.Fprintf(w, "%d load errors, %d errors, %d warnings\n", len(loadErrs), report.Errors, report.Warnings)
	if len(loadErrs) > 0 || report.HasErrors() {
		return 1
	}
	return 0
}
