package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/cesargomez89/stemforge/internal/app"
	"github.com/cesargomez89/stemforge/internal/bridge"
	"github.com/cesargomez89/stemforge/internal/config"
	"github.com/cesargomez89/stemforge/internal/domain"
	httpapp "github.com/cesargomez89/stemforge/internal/http"
	"github.com/cesargomez89/stemforge/internal/logger"
	"github.com/cesargomez89/stemforge/internal/nativemsg"
	"github.com/cesargomez89/stemforge/internal/proc"
	"github.com/cesargomez89/stemforge/internal/progress"
	"github.com/cesargomez89/stemforge/internal/store"
	"github.com/cesargomez89/stemforge/internal/tagging"
	"github.com/cesargomez89/stemforge/internal/tools"
	"github.com/cesargomez89/stemforge/internal/worker"
)

func main() {
	workerJob := flag.String("worker", "", "run as a detached worker for the given job id")
	workerURL := flag.String("url", "", "media URL (worker mode)")
	workerQuality := flag.String("quality", "fast", "quality tier (worker mode)")
	workerMode := flag.String("mode", "full", "stem mode (worker mode)")
	workerTitle := flag.String("title", "", "resolved title (worker mode)")
	nativeHost := flag.Bool("native-host", false, "serve the browser native messaging channel on stdio")
	flag.Parse()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration error: %v", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("Failed to create data dir: %v", err)
	}

	switch {
	case *workerJob != "":
		runWorker(cfg, worker.Params{
			JobID:   *workerJob,
			URL:     *workerURL,
			Title:   *workerTitle,
			Quality: domainQuality(*workerQuality),
			Mode:    domainMode(*workerMode),
		})
	case *nativeHost:
		runNativeHost(cfg)
	default:
		runServer(cfg)
	}
}

func runServer(cfg *config.Config) {
	appLogger := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})

	db, err := store.NewSQLiteDB(cfg.DBPath())
	if err != nil {
		appLogger.Error("Failed to init DB", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	jobService := buildJobService(cfg, db, appLogger)
	jobService.Reconcile()

	hub := bridge.NewHub(appLogger)
	defer hub.Close()

	notifier := bridge.NewNotifier(cfg.NotifyCommand, tools.NewRunner(), appLogger)
	poller := bridge.NewPoller(jobService, hub, notifier, db, cfg.PollInterval, appLogger)
	defer poller.Close()

	jobService.OnJobStarted = poller.Kick
	if jobService.GetProgress(context.Background()).Stage.Active() {
		// A worker survived the restart; resume fan-out for it.
		poller.Kick()
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	h := httpapp.NewHandler(jobService, db, hub, appLogger)
	h.RegisterRoutes(r)

	srv := &http.Server{
		Addr:    "127.0.0.1:" + cfg.Port,
		Handler: r,
	}

	go func() {
		log.Printf("Server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	poller.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting")
}

// runWorker executes one pipeline and exits. Workers deliberately do
// not trap SIGTERM: cancellation kills the whole process group and the
// server owns the slot reset, so a dying worker must not write.
func runWorker(cfg *config.Config, params worker.Params) {
	logOut, err := os.OpenFile(filepath.Join(cfg.DataDir, "worker.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		logOut = os.Stderr
	} else {
		defer logOut.Close()
	}
	appLogger := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: logOut,
	})

	runner := tools.NewRunner()
	pipe := worker.NewPipeline(
		progress.NewFileStore(cfg.ProgressPath()),
		tools.NewYTDLP(cfg.YTDLPPath, runner, cfg.DownloadTimeout),
		tools.NewDemucs(cfg.DemucsPython, runner),
		tools.NewFFmpeg(cfg.FFmpegPath, cfg.FFprobePath, runner),
		tagging.TagStem,
		cfg,
		appLogger,
	)

	if err := pipe.Run(context.Background(), params); err != nil {
		os.Exit(1)
	}
}

// runNativeHost serves the browser extension over stdio. stdout is the
// message channel, so all logging goes to stderr.
func runNativeHost(cfg *config.Config) {
	appLogger := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: os.Stderr,
	})

	db, err := store.NewSQLiteDB(cfg.DBPath())
	if err != nil {
		appLogger.Error("Failed to init DB", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	jobService := buildJobService(cfg, db, appLogger)

	host := nativemsg.NewHost(jobService, os.Stdin, os.Stdout, appLogger)
	if err := host.Serve(context.Background()); err != nil {
		appLogger.Error("Native host stopped", "error", err)
		os.Exit(1)
	}
}

func domainQuality(s string) domain.Quality {
	q := domain.Quality(s)
	if !domain.ValidQuality(q) {
		return domain.QualityFast
	}
	return q
}

func domainMode(s string) domain.Mode {
	m := domain.Mode(s)
	if !domain.ValidMode(m) {
		return domain.ModeFull
	}
	return m
}

func buildJobService(cfg *config.Config, db *store.DB, appLogger *logger.Logger) *app.JobService {
	exe, err := os.Executable()
	if err != nil {
		appLogger.Error("Failed to resolve own binary", "error", err)
		os.Exit(1)
	}

	workerCmd := func(p app.WorkerParams) (string, []string) {
		return exe, []string{
			"--worker", p.JobID,
			"--url", p.URL,
			"--quality", string(p.Quality),
			"--mode", string(p.Mode),
			"--title", p.Title,
		}
	}

	return app.NewJobService(
		progress.NewFileStore(cfg.ProgressPath()),
		db,
		proc.NewLauncher(),
		proc.NewPIDFile(cfg.PIDPath()),
		tools.NewYTDLP(cfg.YTDLPPath, tools.NewRunner(), cfg.DownloadTimeout),
		workerCmd,
		cfg,
		appLogger,
	)
}
