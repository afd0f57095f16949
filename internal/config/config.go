// Package config handles loading and validating the voxcmd configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config is the root configuration for the voxcmd daemon.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Transports    TransportsConfig    `mapstructure:"transports"`
	Limits        LimitsConfig        `mapstructure:"limits"`
	Audio         AudioConfig         `mapstructure:"audio"`
	Transcription TranscriptionConfig `mapstructure:"transcription"`
	Extraction    ExtractionConfig    `mapstructure:"extraction"`
	Parser        ParserConfig        `mapstructure:"parser"`
	Telemetry     TelemetryConfig     `mapstructure:"telemetry"`
	Logging       LoggingConfig       `mapstructure:"logging"`
}

// ServerConfig holds the health check server settings.
type ServerConfig struct {
	HealthPort int `mapstructure:"health_port" validate:"min=1,max=65535"`
}

// TransportsConfig holds the configuration for each transport layer.
type TransportsConfig struct {
	GRPC GRPCConfig `mapstructure:"grpc"`
	HTTP HTTPConfig `mapstructure:"http"`
}

// GRPCConfig configures the gRPC transport.
type GRPCConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port" validate:"min=1,max=65535"`
}

// HTTPConfig configures the HTTP transport.
type HTTPConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port" validate:"min=1,max=65535"`
}

// LimitsConfig bounds what a single request may cost.
type LimitsConfig struct {
	MaxAudioBytes    int64         `mapstructure:"max_audio_bytes" validate:"gt=0"`
	MaxAudioDuration time.Duration `mapstructure:"max_audio_duration" validate:"gt=0"`
}

// AudioConfig configures ingestion.
type AudioConfig struct {
	FFmpegPath string        `mapstructure:"ffmpeg_path"` // empty disables non-WAV input
	TempDir    string        `mapstructure:"temp_dir"`
	Timeout    time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// TranscriptionConfig selects and configures the speech-to-text backend.
type TranscriptionConfig struct {
	Backend          string                    `mapstructure:"backend" validate:"oneof=openai wyoming"`
	Timeout          time.Duration             `mapstructure:"timeout" validate:"gt=0"`
	MinChars         int                       `mapstructure:"min_chars" validate:"min=1"`
	SilenceThreshold float64                   `mapstructure:"silence_threshold" validate:"gte=0,lt=1"`
	OpenAI           TranscriptionOpenAIConfig `mapstructure:"openai"`
	Wyoming          WyomingConfig             `mapstructure:"wyoming"`
}

// TranscriptionOpenAIConfig holds settings for an OpenAI-compatible
// /audio/transcriptions endpoint (OpenAI, faster-whisper-server, whisper.cpp).
type TranscriptionOpenAIConfig struct {
	APIKey      string `mapstructure:"api_key"`
	BaseURL     string `mapstructure:"base_url"`
	Model       string `mapstructure:"model"`
	Language    string `mapstructure:"language"` // ISO-639-1
	VerifyModel bool   `mapstructure:"verify_model"`
}

// WyomingConfig holds settings for a Wyoming ASR server (wyoming-faster-whisper).
type WyomingConfig struct {
	Endpoint string `mapstructure:"endpoint"` // host:port
	Language string `mapstructure:"language"`
}

// ExtractionConfig selects and configures the text-generation backend.
type ExtractionConfig struct {
	Backend string                 `mapstructure:"backend" validate:"oneof=openai local"`
	Timeout time.Duration          `mapstructure:"timeout" validate:"gt=0"`
	OpenAI  ExtractionOpenAIConfig `mapstructure:"openai"`
	Local   LocalConfig            `mapstructure:"local"`
}

// ExtractionOpenAIConfig holds Chat Completions settings.
type ExtractionOpenAIConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Model       string  `mapstructure:"model"`
	JSONMode    bool    `mapstructure:"json_mode"`
	Temperature float32 `mapstructure:"temperature" validate:"gte=0,lte=2"`
}

// LocalConfig holds self-hosted LLM settings.
type LocalConfig struct {
	Endpoint string `mapstructure:"endpoint"` // Ollama /api/generate or an OpenAI-compatible /v1/chat/completions URL
	Model    string `mapstructure:"model"`    // e.g. "llama3.2:3b"
}

// ParserConfig tunes response validation.
type ParserConfig struct {
	StrictFields bool `mapstructure:"strict_fields"`
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"` // OTLP HTTP host:port
	Insecure    bool    `mapstructure:"insecure"`
	SampleRate  float64 `mapstructure:"sample_rate" validate:"gte=0,lte=1"`
	Environment string  `mapstructure:"environment"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"omitempty,oneof=json console"`
}

// Load reads the configuration from file, environment variables, and defaults.
// If configFile is non-empty it is used directly; otherwise the standard
// search order applies: ./voxcmd.yaml, ./configs/voxcmd.yaml, /etc/voxcmd/voxcmd.yaml.
// A .env file in the working directory, when present, is loaded first.
func Load(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("voxcmd")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/voxcmd")
	}

	// Environment variables: VOXCMD_SERVER_HEALTH_PORT, VOXCMD_EXTRACTION_BACKEND, etc.
	v.SetEnvPrefix("VOXCMD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		log.Info().Msg("no config file found, using defaults and environment variables")
	} else {
		log.Info().Str("path", v.ConfigFileUsed()).Msg("loaded config file")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	// Resolve env var references in sensitive fields (e.g., "${OPENAI_API_KEY}").
	cfg.Transcription.OpenAI.APIKey = resolveEnvRef(cfg.Transcription.OpenAI.APIKey)
	cfg.Extraction.OpenAI.APIKey = resolveEnvRef(cfg.Extraction.OpenAI.APIKey)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.health_port", 8081)
	v.SetDefault("transports.grpc.enabled", true)
	v.SetDefault("transports.grpc.port", 50051)
	v.SetDefault("transports.http.enabled", true)
	v.SetDefault("transports.http.port", 8080)
	v.SetDefault("limits.max_audio_bytes", 10<<20)
	v.SetDefault("limits.max_audio_duration", "60s")
	v.SetDefault("audio.ffmpeg_path", "ffmpeg")
	v.SetDefault("audio.temp_dir", "")
	v.SetDefault("audio.timeout", "15s")
	v.SetDefault("transcription.backend", "openai")
	v.SetDefault("transcription.timeout", "30s")
	v.SetDefault("transcription.min_chars", 2)
	v.SetDefault("transcription.silence_threshold", 0.003)
	v.SetDefault("transcription.openai.api_key", "${OPENAI_API_KEY}")
	v.SetDefault("transcription.openai.model", "whisper-1")
	v.SetDefault("transcription.openai.language", "en")
	v.SetDefault("transcription.openai.verify_model", false)
	v.SetDefault("transcription.wyoming.endpoint", "localhost:10300")
	v.SetDefault("transcription.wyoming.language", "en")
	v.SetDefault("extraction.backend", "openai")
	v.SetDefault("extraction.timeout", "20s")
	v.SetDefault("extraction.openai.api_key", "${OPENAI_API_KEY}")
	v.SetDefault("extraction.openai.model", "gpt-4o-mini")
	v.SetDefault("extraction.openai.json_mode", true)
	v.SetDefault("extraction.openai.temperature", 0.1)
	v.SetDefault("extraction.local.endpoint", "http://localhost:11434/api/generate")
	v.SetDefault("extraction.local.model", "llama3.2:3b")
	v.SetDefault("parser.strict_fields", false)
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "localhost:4318")
	v.SetDefault("telemetry.insecure", true)
	v.SetDefault("telemetry.sample_rate", 1.0)
	v.SetDefault("telemetry.environment", "development")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks field constraints and cross-field requirements.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if !c.Transports.HTTP.Enabled && !c.Transports.GRPC.Enabled {
		return errors.New("invalid config: no transports enabled, enable at least one")
	}
	if c.Transcription.Backend == "wyoming" && c.Transcription.Wyoming.Endpoint == "" {
		return errors.New("invalid config: transcription.wyoming.endpoint is required for the wyoming backend")
	}
	if c.Extraction.Backend == "local" && c.Extraction.Local.Endpoint == "" {
		return errors.New("invalid config: extraction.local.endpoint is required for the local backend")
	}
	return nil
}

// resolveEnvRef replaces "${VAR_NAME}" patterns with the corresponding env var value.
// An unset variable resolves to the empty string.
func resolveEnvRef(val string) string {
	if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
		return os.Getenv(val[2 : len(val)-1])
	}
	return val
}
