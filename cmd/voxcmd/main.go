// voxcmd is a voice command daemon that turns short audio recordings into
// structured application commands.
//
// Usage:
//
//	voxcmd [flags]
//	voxcmd --config /path/to/voxcmd.yaml
//
// @title       voxcmd API
// @version     1.0
// @description Turns short voice recordings into structured application commands.
// @BasePath    /
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	_ "github.com/nadzzz/voxcmd/docs"
	"github.com/nadzzz/voxcmd/internal/audio"
	"github.com/nadzzz/voxcmd/internal/command"
	"github.com/nadzzz/voxcmd/internal/config"
	"github.com/nadzzz/voxcmd/internal/health"
	"github.com/nadzzz/voxcmd/internal/interpreter"
	localinterp "github.com/nadzzz/voxcmd/internal/interpreter/local"
	openaiinterp "github.com/nadzzz/voxcmd/internal/interpreter/openai"
	"github.com/nadzzz/voxcmd/internal/metrics"
	"github.com/nadzzz/voxcmd/internal/pipeline"
	"github.com/nadzzz/voxcmd/internal/telemetry"
	"github.com/nadzzz/voxcmd/internal/transcribe"
	openaistt "github.com/nadzzz/voxcmd/internal/transcribe/openai"
	"github.com/nadzzz/voxcmd/internal/transcribe/wyoming"
	"github.com/nadzzz/voxcmd/internal/transport"
	grpctransport "github.com/nadzzz/voxcmd/internal/transport/grpc"
	httptransport "github.com/nadzzz/voxcmd/internal/transport/http"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configFile := flag.String("config", "", "path to config file (e.g. configs/voxcmd.local.yaml)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("voxcmd %s\n", version)
		os.Exit(0)
	}

	// Load configuration.
	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Setup structured logging.
	config.SetupLogging(cfg.Logging)
	log.Info().Str("version", version).Msg("voxcmd starting")

	// Create root context with signal handling for graceful shutdown.
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry, version)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracing")
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn().Err(err).Msg("tracer shutdown")
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	// Initialize the transcription backend. The engine itself is loaded on
	// first use and shared by every run.
	var loader transcribe.Loader
	switch cfg.Transcription.Backend {
	case "openai":
		loader = openaistt.Loader(cfg.Transcription.OpenAI)
		log.Info().
			Str("model", cfg.Transcription.OpenAI.Model).
			Str("base_url", cfg.Transcription.OpenAI.BaseURL).
			Msg("using OpenAI transcription")
	case "wyoming":
		loader = wyoming.Loader(cfg.Transcription.Wyoming)
		log.Info().Str("endpoint", cfg.Transcription.Wyoming.Endpoint).Msg("using Wyoming transcription")
	default:
		log.Fatal().Str("backend", cfg.Transcription.Backend).Msg("unknown transcription backend")
	}
	transcriber := transcribe.NewAdapter(transcribe.NewShared(loader), transcribe.Options{
		MinChars:         cfg.Transcription.MinChars,
		SilenceThreshold: float32(cfg.Transcription.SilenceThreshold),
	})

	// Initialize the extraction backend.
	var extractor interpreter.Extractor
	switch cfg.Extraction.Backend {
	case "openai":
		extractor = openaiinterp.New(cfg.Extraction.OpenAI)
		log.Info().Str("model", cfg.Extraction.OpenAI.Model).Msg("using OpenAI extraction")
	case "local":
		extractor = localinterp.New(cfg.Extraction.Local)
		log.Info().
			Str("endpoint", cfg.Extraction.Local.Endpoint).
			Str("model", cfg.Extraction.Local.Model).
			Msg("using local extraction")
	default:
		log.Fatal().Str("backend", cfg.Extraction.Backend).Msg("unknown extraction backend")
	}
	defer extractor.Close()

	pipe := pipeline.New(
		audio.NewNormalizer(audio.Options{
			FFmpegPath:  cfg.Audio.FFmpegPath,
			TempDir:     cfg.Audio.TempDir,
			MaxDuration: cfg.Limits.MaxAudioDuration,
		}),
		transcriber,
		extractor,
		command.NewParser(cfg.Parser.StrictFields),
		pipeline.Options{
			MaxAudioBytes:        cfg.Limits.MaxAudioBytes,
			IngestTimeout:        cfg.Audio.Timeout,
			TranscriptionTimeout: cfg.Transcription.Timeout,
			ExtractionTimeout:    cfg.Extraction.Timeout,
			Metrics:              m,
		},
	)

	// Initialize enabled transports.
	var transports []transport.Transport
	if cfg.Transports.GRPC.Enabled {
		transports = append(transports, grpctransport.New(cfg.Transports.GRPC.Port, cfg.Limits.MaxAudioBytes))
	}
	if cfg.Transports.HTTP.Enabled {
		transports = append(transports, httptransport.New(cfg.Transports.HTTP.Port, cfg.Limits.MaxAudioBytes))
	}

	// Start health check server.
	healthServer := health.New(cfg.Server.HealthPort, reg)
	healthServer.Report("transcriber", func() string {
		if transcriber.Ready() {
			return "warm"
		}
		return "cold"
	})
	go func() {
		if err := healthServer.ListenAndServe(ctx); err != nil {
			log.Error().Err(err).Msg("health server failed")
		}
	}()

	// Start all transports.
	var wg sync.WaitGroup
	for _, t := range transports {
		wg.Add(1)
		go func(t transport.Transport) {
			defer wg.Done()
			log.Info().Str("name", t.Name()).Msg("starting transport")
			if err := t.Listen(ctx, pipe.Process); err != nil {
				log.Error().Err(err).Str("name", t.Name()).Msg("transport failed")
			}
		}(t)
	}

	// Mark as ready once all transports are started.
	healthServer.SetReady(true)
	log.Info().
		Int("transports", len(transports)).
		Int("health_port", cfg.Server.HealthPort).
		Msg("voxcmd ready")

	// Block until shutdown signal.
	<-ctx.Done()
	log.Info().Msg("shutdown signal received, draining...")
	healthServer.SetReady(false)

	// Close all transports gracefully.
	for _, t := range transports {
		if err := t.Close(); err != nil {
			log.Error().Err(err).Str("name", t.Name()).Msg("transport close error")
		}
	}

	wg.Wait()
	log.Info().Msg("voxcmd stopped")
}
