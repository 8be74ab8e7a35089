// Package main is the studydesk CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/studydesk/internal/auth"
	"github.com/hyperjump/studydesk/internal/chat"
	"github.com/hyperjump/studydesk/internal/cli"
	"github.com/hyperjump/studydesk/internal/config"
	"github.com/hyperjump/studydesk/internal/extract"
	"github.com/hyperjump/studydesk/internal/library"
	"github.com/hyperjump/studydesk/internal/models"
	"github.com/hyperjump/studydesk/internal/server"
	"github.com/hyperjump/studydesk/internal/storage"
	"github.com/hyperjump/studydesk/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/studydesk/config.yaml"

// loadConfig loads config from path. When path is the default and a config.yaml
// exists in the current directory, that file is used instead so that
// "studydesk server" from a project checkout picks up the local config.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "extract":
		runExtract()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("studydesk version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging and error details in 500 responses")
	port := fs.Int("port", 0, "listen port (overrides config and PORT)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	cfg.Debug = cfg.Debug || *debug
	if *port > 0 {
		cfg.Server.Port = *port
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", cfg.Debug),
		zap.String("storage_driver", cfg.Storage.Driver),
		zap.String("data_dir", cfg.Storage.DataDir),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	for _, p := range components.Providers {
		if p.APIKey == "" {
			logger.Warn("chat provider has no API key", zap.String("provider", p.Name), zap.String("env", p.KeyEnv))
		}
	}

	srv := server.NewServer(
		components.Library,
		components.Tutors,
		components.Extractor,
		components.Auth,
		components.Chat,
		components.Storage,
		cfg,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func printExtractUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: studydesk extract [flags] <file>...\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Files are extracted in the order given and joined into one corpus, each
preceded by a "===== 文件: <name> =====" header. Unsupported files are
reported but never stop the batch.

Examples:
  studydesk extract notes.pdf slides.pptx
  studydesk extract --output json week3/*.docx
  studydesk extract --preview 500 reading.pdf
`)
}

func runExtract() {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	outputFormat := fs.String("output", "text", "output format: text or json")
	preview := fs.Int("preview", 0, "truncate the printed corpus to this many characters (0 = full)")
	debug := fs.Bool("debug", false, "log per-file extraction failures")
	fs.Usage = func() { printExtractUsage(fs) }
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		printExtractUsage(fs)
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	files, err := uploadedFiles(fs.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Extract failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewCLILogger(*debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	result := extract.NewExtractor(logger).ExtractAll(files)
	if err := cli.WriteBatch(os.Stdout, result, format, *preview); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
	if !result.Succeeded {
		os.Exit(1)
	}
}

// uploadedFiles describes local files the way the upload handler describes
// staged parts. The MIME type is left empty so the extractor goes by extension
// and content.
func uploadedFiles(paths []string) ([]extract.UploadedFile, error) {
	files := make([]extract.UploadedFile, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			return nil, fmt.Errorf("%s is a directory", p)
		}
		files = append(files, extract.UploadedFile{
			Path:         p,
			OriginalName: filepath.Base(p),
			Size:         info.Size(),
		})
	}
	return files, nil
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (for direct storage mode)")
	serverURL := fs.String("server", "http://localhost:3000", "server URL (empty = read storage directly)")
	token := fs.String("token", "", "bearer token when the server requires one")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var status *models.Status
	if *serverURL != "" {
		status, err = statusViaHTTP(http.DefaultClient, *serverURL, *token)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		logger, err := utils.NewCLILogger(cfg.Debug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()
		store, err := openStorage(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open storage: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()
		status, err = server.CollectStatus(context.Background(), store, cfg, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
	}

	if err := cli.WriteStatus(os.Stdout, status, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func statusViaHTTP(client *http.Client, serverURL, token string) (*models.Status, error) {
	req, err := http.NewRequest(http.MethodGet, strings.TrimRight(serverURL, "/")+"/api/status", nil)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var s models.Status
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}

// Components holds everything the server command wires together.
type Components struct {
	Storage   storage.Storage
	Library   *library.Library
	Tutors    *library.Tutors
	Extractor *extract.Extractor
	Auth      *auth.Service
	Chat      *chat.Service
	Providers []chat.Provider
}

func (c *Components) Close() {
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

func openStorage(cfg *config.Config) (storage.Storage, error) {
	store, err := storage.Open(cfg.Storage.Driver, cfg.Storage.TablesDir(), cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return store, nil
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := openStorage(cfg)
	if err != nil {
		return nil, err
	}
	lib, err := library.New(store, cfg.Storage.UploadsDir(), library.WithLogger(logger))
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize upload directory: %w", err)
	}
	providers := providersFromConfig(cfg)
	return &Components{
		Storage:   store,
		Library:   lib,
		Tutors:    library.NewTutors(store, nil),
		Extractor: extract.NewExtractor(logger),
		Auth:      auth.NewService(store, cfg.Auth.TokenTTL(), auth.WithLogger(logger)),
		Chat:      chat.NewService(providers, chat.WithLogger(logger)),
		Providers: providers,
	}, nil
}

// providersFromConfig lists the configured chat providers in name order.
func providersFromConfig(cfg *config.Config) []chat.Provider {
	names := cfg.ProviderNames()
	providers := make([]chat.Provider, 0, len(names))
	for _, name := range names {
		p := cfg.Providers[name]
		providers = append(providers, chat.Provider{
			Name:    name,
			BaseURL: p.BaseURL,
			Model:   p.Model,
			APIKey:  p.APIKey,
			KeyEnv:  p.APIKeyEnv,
		})
	}
	return providers
}

func printUsage() {
	fmt.Println(`studydesk - Learning platform backend: uploads, content library, tutors and AI chat

Usage:
  studydesk server [flags]            Start the HTTP server
  studydesk extract [flags] <file>... Extract text from local files
  studydesk status [flags]            Show record counts and disk usage
  studydesk version                   Show version
  studydesk help                      Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/studydesk/config.yaml)
  --port int         Listen port (overrides config and PORT)
  --debug            Enable debug logging and error details in 500 responses

Extract Flags:
  --output string    Output format: text or json (default: text)
  --preview int      Truncate the printed corpus to this many characters
  --debug            Log per-file extraction failures

Status Flags:
  --config string    Config file path (for direct storage mode)
  --server string    Server URL (default: http://localhost:3000). Use empty (--server "") for direct storage.
  --token string     Bearer token when the server requires one
  --output string    Output format: text or json (default: text)

Environment:
  PORT                                Listen port
  DEEPSEEK_API_KEY, KIMI_API_KEY,
  OPENAI_API_KEY, DOUBAO_API_KEY      Chat provider keys

Examples:
  studydesk server
  studydesk extract notes.pdf slides.pptx
  studydesk status --output json
  studydesk status --server ""`)
}
