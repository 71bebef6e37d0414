package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/lexdraft/backend/internal/assistant"
	"github.com/MarcoPoloResearchLab/lexdraft/backend/internal/config"
	"github.com/MarcoPoloResearchLab/lexdraft/backend/internal/database"
	"github.com/MarcoPoloResearchLab/lexdraft/backend/internal/drafts"
	"github.com/MarcoPoloResearchLab/lexdraft/backend/internal/export"
	"github.com/MarcoPoloResearchLab/lexdraft/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/lexdraft/backend/internal/server"
	"github.com/MarcoPoloResearchLab/lexdraft/backend/internal/uploads"
	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "lexdraft-api",
		Short: "LexDraft drafting backend service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newExportCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("allowed-origins", defaults.GetString("cors.allowed_origins"), "Comma separated CORS origins")
	cmd.PersistentFlags().Int64("upload-max-bytes", defaults.GetInt64("uploads.max_bytes"), "Upload size ceiling in bytes")
	cmd.PersistentFlags().String("page-size", defaults.GetString("export.page_size"), "PDF page size (A3, A4, A5, LETTER, LEGAL)")
	cmd.PersistentFlags().String("browser-url", defaults.GetString("export.browser_url"), "DevTools URL of the browser used for PDF rendering")
	cmd.PersistentFlags().String("assistant-api-key", "", "Generative service API key (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "cors.allowed_origins", "allowed-origins")
	bindFlag(cmd, "uploads.max_bytes", "upload-max-bytes")
	bindFlag(cmd, "export.page_size", "page-size")
	bindFlag(cmd, "export.browser_url", "browser-url")
	bindFlag(cmd, "assistant.api_key", "assistant-api-key")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func loadRuntime() (config.AppConfig, *zap.Logger, error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return config.AppConfig{}, nil, err
	}
	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return config.AppConfig{}, nil, err
	}
	return appConfig, logger, nil
}

func pageSpec(exportConfig config.ExportConfig) export.PageSpec {
	return export.PageSpec{
		Size:       exportConfig.PageSize,
		MarginMM:   exportConfig.MarginMM,
		Scale:      exportConfig.RasterScale,
		FontFamily: exportConfig.FontFamily,
		FontSize:   exportConfig.FontSize,
	}
}

func runServer(ctx context.Context) error {
	appConfig, logger, err := loadRuntime()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	dispatcher := server.NewRealtimeDispatcher()
	draftsService, err := drafts.NewService(drafts.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: drafts.NewUUIDProvider(),
		Notifier:   dispatcher,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	rasterizer := export.NewBrowserRasterizer(export.BrowserRasterizerConfig{
		ControlURL: appConfig.Export.BrowserURL,
		Logger:     logger,
	})
	defer rasterizer.Close() //nolint:errcheck
	pipeline := export.NewPipeline(export.Config{
		Rasterizer: rasterizer,
		Page:       pageSpec(appConfig.Export),
		Logger:     logger,
	})

	assistantConfig := assistant.Config{Drafts: draftsService, Logger: logger}
	if appConfig.Assistant.APIKey != "" {
		generator, err := assistant.NewGeminiClient(ctx, assistant.GeminiConfig{
			BaseURL:    appConfig.Assistant.BaseURL,
			APIVersion: appConfig.Assistant.APIVersion,
			Model:      appConfig.Assistant.Model,
			APIKey:     appConfig.Assistant.APIKey,
			Timeout:    appConfig.Assistant.Timeout,
		})
		if err != nil {
			return err
		}
		assistantConfig.Generator = generator
	} else {
		logger.Warn("assistant api key not configured, replies use placeholders")
	}
	assistantService, err := assistant.NewService(assistantConfig)
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		DraftsService:  draftsService,
		Exporter:       pipeline,
		Assistant:      assistantService,
		Uploads:        uploads.NewService(uploads.Config{MaxBytes: appConfig.Uploads.MaxBytes, Logger: logger}),
		Realtime:       dispatcher,
		Logger:         logger,
		AllowedOrigins: appConfig.AllowedOrigins,
		ExportTimeout:  appConfig.Export.Timeout,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func newExportCommand() *cobra.Command {
	var (
		inputPath  string
		formatName string
		outputName string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Convert a saved draft into a document file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd.Context(), inputPath, formatName, outputName)
		},
	}
	cmd.Flags().StringVar(&inputPath, "input", "", "Path to the draft markup file")
	cmd.Flags().StringVar(&formatName, "format", "docx", "Output format (docx, pdf, txt, md)")
	cmd.Flags().StringVar(&outputName, "output", "", "Output file name without extension")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func runExport(ctx context.Context, inputPath, formatName, outputName string) error {
	appConfig, logger, err := loadRuntime()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	format, err := export.ParseFormat(formatName)
	if err != nil {
		return err
	}
	content, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("read draft: %w", err)
	}
	if outputName == "" {
		base := filepath.Base(inputPath)
		outputName = base[:len(base)-len(filepath.Ext(base))]
	}

	cfg := export.Config{Page: pageSpec(appConfig.Export), Logger: logger}
	if format == export.FormatPDF {
		rasterizer := export.NewBrowserRasterizer(export.BrowserRasterizerConfig{
			ControlURL: appConfig.Export.BrowserURL,
			Logger:     logger,
		})
		defer rasterizer.Close() //nolint:errcheck
		cfg.Rasterizer = rasterizer
	}

	exportCtx, cancel := context.WithTimeout(ctx, appConfig.Export.Timeout)
	defer cancel()
	result, err := export.NewPipeline(cfg).Export(exportCtx, export.Request{
		Content:  string(content),
		Format:   format,
		FileName: filepath.Base(outputName),
	})
	if err != nil {
		return err
	}
	if result.Fallback {
		logger.Warn("export served fallback document", zap.Error(result.Err))
	}

	outputPath := filepath.Join(filepath.Dir(outputName), result.FileName)
	if err := os.WriteFile(outputPath, result.Data, 0o644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	logger.Info("export written", zap.String("path", outputPath), zap.Bool("fallback", result.Fallback))
	return nil
}
