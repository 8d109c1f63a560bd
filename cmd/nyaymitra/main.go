package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"nyaymitra/client/internal/app"
	"nyaymitra/client/internal/config"
	"nyaymitra/client/internal/export"
	"nyaymitra/client/internal/remote"
	"nyaymitra/client/internal/search"
	"nyaymitra/client/internal/speech"
	"nyaymitra/client/internal/store"
)

var (
	colorRed    = color.New(color.FgRed, color.Bold)
	colorGreen  = color.New(color.FgGreen, color.Bold)
	colorYellow = color.New(color.FgYellow)
	colorCyan   = color.New(color.FgCyan)
)

var (
	cfg     config.Config
	apiURL  string
	langArg string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		colorRed.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "nyaymitra",
	Short: "NyayMitra document intake client",
	Long: `NyayMitra uploads legal documents for plain-language analysis, searches
legal protections, reads reports aloud and exports them as PDF.

Examples:
  nyaymitra serve
  nyaymitra analyze notice.pdf --lang hi
  nyaymitra search "tenant eviction"
  nyaymitra export notice.pdf -o report.pdf`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		cfg = config.Load()
		if apiURL != "" {
			cfg.APIURL = strings.TrimRight(apiURL, "/")
		}
		return setupLogging(cfg.LogDir)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", "", "document service base URL (overrides NYAYMITRA_API_URL)")
	rootCmd.PersistentFlags().StringVar(&langArg, "lang", "en", "report language: en or hi")
	rootCmd.AddCommand(serveCmd, analyzeCmd, searchCmd, exportCmd, speakCmd)
}

// setupLogging tees the standard logger into a rotating file when dir is set.
func setupLogging(dir string) error {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(dir, "nyaymitra.log"),
		MaxSize:    50,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, rotator))
	return nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API in front of the controllers",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, cleanup, err := buildDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	service := app.New(cfg, deps)
	defer service.Close()

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// the upload and export handlers stay open for the analysis budget
		WriteTimeout: cfg.UploadTimeout + cfg.ExportTimeout,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("NyayMitra listening on %s (backend %s)", cfg.Addr, cfg.APIURL)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown error: %v", err)
		}
		return nil
	})
	return g.Wait()
}

// buildDeps connects every configured backend. Optional backends that are
// unset or unavailable are left out and their features degrade.
func buildDeps(ctx context.Context, cfg config.Config) (app.Deps, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	client := remote.NewClient(cfg.APIURL, remote.WithTimeouts(cfg.UploadTimeout, cfg.SearchTimeout))
	checks := map[string]app.Pinger{}

	var index search.Index
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meili := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		closers = append(closers, meili.Close)
		index = meili
		checks["meilisearch"] = app.PingFunc(func(context.Context) error {
			if !meili.Healthy() {
				return errors.New("meilisearch unhealthy")
			}
			return nil
		})
	}
	catalog := search.NewCatalog(index)

	var cache search.Cache
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisCache, err := search.NewRedisCache(cfg.RedisURL, cfg.SearchCacheTTL)
		if err != nil {
			cleanup()
			return app.Deps{}, nil, fmt.Errorf("redis connection failed: %w", err)
		}
		closers = append(closers, func() { _ = redisCache.Close() })
		cache = redisCache
		checks["redis"] = redisCache
	}

	deps := app.Deps{
		Analyzer: client,
		Searcher: search.NewService(client, cache, catalog),
		Catalog:  catalog,
		Packager: export.PDFPackager{},
		Checks:   checks,
	}

	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		reports, err := store.OpenAndMigrate(ctx, cfg.DatabaseURL, cfg.MigrationsDir)
		if err != nil {
			cleanup()
			return app.Deps{}, nil, fmt.Errorf("report archive: %w", err)
		}
		closers = append(closers, func() { _ = reports.Close() })
		deps.Archive = reports
		checks["postgres"] = reports
	}

	switch {
	case strings.TrimSpace(cfg.MinioEndpoint) != "":
		sink, err := export.NewMinioSink(export.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccess,
			SecretKey: cfg.MinioSecret,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			cleanup()
			return app.Deps{}, nil, err
		}
		deps.Sink = sink
	case strings.TrimSpace(cfg.ExportDir) != "":
		deps.Sink = export.LocalDirSink{Dir: cfg.ExportDir}
	}

	if renderer, err := export.NewChromeRenderer(); err != nil {
		log.Printf("export disabled: %v", err)
	} else {
		deps.Renderer = renderer
	}
	if synth, err := speech.NewExecSynthesizer(cfg.TTSCommand); err != nil {
		log.Printf("speech output disabled: %v", err)
	} else {
		deps.Synthesizer = synth
	}
	if recognizer, err := speech.NewExecRecognizer(cfg.STTCommand); err != nil {
		log.Printf("voice input disabled: %v", err)
	} else {
		deps.Recognizer = recognizer
	}

	return deps, cleanup, nil
}
