package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-drowse/internal/config"
	applog "github.com/teslashibe/go-drowse/internal/log"
	"github.com/teslashibe/go-drowse/pkg/drowsiness"
	"github.com/teslashibe/go-drowse/pkg/episode"
	"github.com/teslashibe/go-drowse/pkg/hud/overlay"
	"github.com/teslashibe/go-drowse/pkg/narration"
	"github.com/teslashibe/go-drowse/pkg/tts"
	"github.com/teslashibe/go-drowse/pkg/web"
)

type serveOptions struct {
	Port      string
	StaticDir string
	LogLevel  string
	Overlay   bool
	Sensitive bool
}

var serveOpts serveOptions

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the detector, HUD and landmark ingest server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd, serveOpts)
	},
}

func init() {
	addServeFlags(serveCmd, &serveOpts)
	rootCmd.AddCommand(serveCmd)
}

func addServeFlags(cmd *cobra.Command, opts *serveOptions) {
	cmd.Flags().StringVarP(&opts.Port, "port", "p", "", "HTTP port (default: DROWSE_PORT or 8080)")
	cmd.Flags().StringVar(&opts.StaticDir, "static", "", "Directory served at / (default: DROWSE_STATIC_DIR or ./web)")
	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "", "debug, info, warn or error (default: LOG_LEVEL or info)")
	cmd.Flags().BoolVar(&opts.Overlay, "overlay", false, "Paint the HUD onto camera frames")
	cmd.Flags().BoolVar(&opts.Sensitive, "sensitive", false, "Use the early-warning thresholds")
}

func loadConfig(cmd *cobra.Command, opts serveOptions) (config.Config, error) {
	var files []string
	if envFile != "" {
		files = append(files, envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Port = opts.Port
	}
	if flags.Changed("static") {
		cfg.StaticDir = opts.StaticDir
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = strings.ToLower(opts.LogLevel)
	}
	if flags.Changed("overlay") {
		cfg.Overlay = opts.Overlay
	}
	if opts.Sensitive {
		s := drowsiness.SensitiveConfig()
		cfg.EARThreshold = s.EARThreshold
		cfg.ConsecFrames = s.ConsecFrames
	}
	return cfg, cfg.Validate()
}

func runServe(cmd *cobra.Command, opts serveOptions) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}

	applog.Init(cfg.LogLevel)
	logger := applog.L()
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	provider := buildProvider(ctx, cfg, logger)
	if provider != nil {
		defer provider.Close()
	}

	server := web.NewServer(web.Config{
		Addr:      cfg.Addr(),
		StaticDir: cfg.StaticDir,
		AccessLog: applog.ParseLevel(cfg.LogLevel) == slog.LevelDebug,
	}, logger)

	var narrator drowsiness.Narrator
	speaker := narration.NewSpeaker(provider, server, cfg.Language, narration.WithLogger(logger))
	if provider != nil {
		narrator = speaker
		server.AddHealthCheck("tts", provider.Health)
	}
	server.AddHealthCheck("episodes", func(ctx context.Context) error {
		_, err := store.List(ctx, 1)
		return err
	})

	ctrlOpts := []drowsiness.Option{
		drowsiness.WithPublisher(server),
		drowsiness.WithStore(store),
		drowsiness.WithLogger(logger),
	}
	if cfg.Overlay {
		ctrlOpts = append(ctrlOpts, drowsiness.WithPainter(overlay.New(overlay.DefaultConfig())))
	}
	ctrl := drowsiness.NewController(cfg.Detection(), narrator, ctrlOpts...)
	server.Bind(ctrl, speaker)

	if provider != nil {
		go func() {
			start := time.Now()
			if err := speaker.Warm(ctx, cfg.Phrase); err != nil {
				logger.Warn("warning phrase not pre-synthesized", "provider", provider.Name(), "error", err)
				return
			}
			logger.Info("warning phrase ready", "provider", provider.Name(), "took", time.Since(start))
		}()
	}

	logger.Info("drowse starting",
		"version", Version,
		"addr", cfg.Addr(),
		"ear_threshold", cfg.EARThreshold,
		"consec_frames", cfg.ConsecFrames,
		"cooldown", cfg.Cooldown,
		"overlay", cfg.Overlay,
	)

	errc := make(chan error, 2)
	go func() { errc <- ctrl.Run(ctx) }()
	go func() { errc <- server.Run(ctx) }()

	var first error
	for i := 0; i < 2; i++ {
		err := <-errc
		cancel()
		if err != nil && !errors.Is(err, context.Canceled) && first == nil {
			first = err
		}
	}
	logger.Info("drowse stopped")
	return first
}

// openStore returns the Redis store when configured, otherwise memory.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (episode.Store, error) {
	if cfg.RedisAddress == "" {
		return episode.NewMemory(cfg.EpisodeCapacity), nil
	}
	store, err := episode.NewRedis(ctx, episode.RedisConfig{
		Addr:     cfg.RedisAddress,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		Capacity: cfg.EpisodeCapacity,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("episode store: %w", err)
	}
	return store, nil
}

// buildProvider builds the configured TTS providers that have credentials,
// chained in order. It returns nil when none can be built.
func buildProvider(ctx context.Context, cfg config.Config, logger *slog.Logger) tts.Provider {
	var providers []tts.Provider
	for _, name := range cfg.TTSProviders {
		if !cfg.HasCredentials(name) {
			logger.Debug("tts provider skipped, no credentials", "provider", name)
			continue
		}

		opts := []tts.Option{
			tts.WithLanguage(cfg.Language),
			tts.WithLogger(logger),
		}
		if key := cfg.ProviderKey(name); key != "" {
			opts = append(opts, tts.WithAPIKey(key))
		}
		switch {
		case name == "elevenlabs" && cfg.ElevenLabsVoiceID != "":
			opts = append(opts, tts.WithVoice(cfg.ElevenLabsVoiceID))
		case cfg.TTSVoice != "":
			opts = append(opts, tts.WithVoice(cfg.TTSVoice))
		}

		p, err := tts.New(ctx, name, opts...)
		if err != nil {
			logger.Warn("tts provider unavailable", "provider", name, "error", err)
			continue
		}
		providers = append(providers, p)
	}

	switch len(providers) {
	case 0:
		logger.Warn("no tts provider configured, alerts will be silent")
		return nil
	case 1:
		return providers[0]
	}
	chain, err := tts.NewChain(logger, providers...)
	if err != nil {
		logger.Warn("tts chain", "error", err)
		return providers[0]
	}
	return chain
}
