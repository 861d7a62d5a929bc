package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/codebuildervaibhav/video-transcription/internal/types"
)

type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

type TranscriptionConfig struct {
	Backend        string `yaml:"backend"` // http, whisper
	Endpoint       string `yaml:"endpoint"`
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	Language       string `yaml:"language"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxAttempts    int    `yaml:"max_attempts"`
	WhisperCommand string `yaml:"whisper_command"`
}

type WorkersConfig struct {
	Count     int `yaml:"count"`
	QueueSize int `yaml:"queue_size"`
}

type StorageConfig struct {
	TempDir   string `yaml:"temp_dir"`
	OutputDir string `yaml:"output_dir"`
	Database  string `yaml:"database"`
	KeepAudio bool   `yaml:"keep_audio"`
}

type CleanupConfig struct {
	IntervalMinutes int `yaml:"interval_minutes"`
	MaxAgeHours     int `yaml:"max_age_hours"`
}

type GoogleDriveConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	TokenFile       string `yaml:"token_file"`
	FolderName      string `yaml:"folder_name"`
}

type LimitsConfig struct {
	MaxFileSizeMB int `yaml:"max_file_size_mb"`
}

type TelemetryConfig struct {
	ServiceName  string `yaml:"service_name"`
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

type EventsConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Servers        []string `yaml:"servers"`
	SubjectPrefix  string   `yaml:"subject_prefix"`
	Token          string   `yaml:"token"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

// Config represents the application configuration
type Config struct {
	Server        ServerConfig            `yaml:"server"`
	Compression   types.CompressionTarget `yaml:"compression"`
	Transcription TranscriptionConfig     `yaml:"transcription"`
	Workers       WorkersConfig           `yaml:"workers"`
	Storage       StorageConfig           `yaml:"storage"`
	Cleanup       CleanupConfig           `yaml:"cleanup"`
	GoogleDrive   GoogleDriveConfig       `yaml:"google_drive"`
	Limits        LimitsConfig            `yaml:"limits"`
	Telemetry     TelemetryConfig         `yaml:"telemetry"`
	Events        EventsConfig            `yaml:"events"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Compression: types.CompressionTarget{
			TargetSizeKB:   20000,
			MinBitrateKbps: 32,
		},
		Transcription: TranscriptionConfig{
			Backend:        "http",
			Endpoint:       "https://api.groq.com/openai/v1",
			Model:          "whisper-large-v3",
			Language:       "en",
			TimeoutSeconds: 600,
			MaxAttempts:    3,
			WhisperCommand: "python -m whisper --model small --fp16 False",
		},
		Workers: WorkersConfig{
			Count:     2,
			QueueSize: 100,
		},
		Storage: StorageConfig{
			TempDir:   "./temp",
			OutputDir: "./outputs",
			Database:  "./data/transcripts.db",
		},
		Cleanup: CleanupConfig{
			IntervalMinutes: 30,
			MaxAgeHours:     6,
		},
		GoogleDrive: GoogleDriveConfig{
			CredentialsFile: "config/credentials.json",
			TokenFile:       "config/token.json",
			FolderName:      "Transcripts",
		},
		Limits: LimitsConfig{
			MaxFileSizeMB: 500,
		},
		Telemetry: TelemetryConfig{
			ServiceName:  "video-transcription",
			LogLevel:     "info",
			OTLPInsecure: true,
		},
		Events: EventsConfig{
			Servers:        []string{"nats://localhost:4222"},
			SubjectPrefix:  "transcription.jobs",
			ConnectTimeout: 2000,
		},
	}
}

// Load reads path over the defaults, then applies environment overrides.
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.Server.Host, "VT_SERVER_HOST")
	overrideInt(&cfg.Server.Port, "VT_SERVER_PORT")
	overrideInt(&cfg.Compression.TargetSizeKB, "VT_COMPRESSION_TARGET_SIZE_KB")
	overrideInt(&cfg.Compression.MinBitrateKbps, "VT_COMPRESSION_MIN_BITRATE_KBPS")
	overrideString(&cfg.Transcription.Backend, "VT_TRANSCRIPTION_BACKEND")
	overrideString(&cfg.Transcription.Endpoint, "VT_TRANSCRIPTION_ENDPOINT")
	overrideString(&cfg.Transcription.APIKey, "GROQ_API_KEY")
	overrideString(&cfg.Transcription.APIKey, "VT_TRANSCRIPTION_API_KEY")
	overrideString(&cfg.Transcription.Model, "VT_TRANSCRIPTION_MODEL")
	overrideString(&cfg.Transcription.Language, "VT_TRANSCRIPTION_LANGUAGE")
	overrideInt(&cfg.Transcription.TimeoutSeconds, "VT_TRANSCRIPTION_TIMEOUT_SECONDS")
	overrideInt(&cfg.Transcription.MaxAttempts, "VT_TRANSCRIPTION_MAX_ATTEMPTS")
	overrideString(&cfg.Transcription.WhisperCommand, "VT_TRANSCRIPTION_WHISPER_COMMAND")
	overrideInt(&cfg.Workers.Count, "VT_WORKERS_COUNT")
	overrideString(&cfg.Storage.TempDir, "VT_STORAGE_TEMP_DIR")
	overrideString(&cfg.Storage.OutputDir, "VT_STORAGE_OUTPUT_DIR")
	overrideString(&cfg.Storage.Database, "VT_STORAGE_DATABASE")
	overrideBool(&cfg.Storage.KeepAudio, "VT_STORAGE_KEEP_AUDIO")
	overrideInt(&cfg.Cleanup.IntervalMinutes, "VT_CLEANUP_INTERVAL_MINUTES")
	overrideInt(&cfg.Cleanup.MaxAgeHours, "VT_CLEANUP_MAX_AGE_HOURS")
	overrideString(&cfg.Telemetry.LogLevel, "VT_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "VT_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "VT_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Events.Enabled, "VT_EVENTS_ENABLED")
	overrideStringSlice(&cfg.Events.Servers, "VT_EVENTS_SERVERS")
	overrideString(&cfg.Events.Token, "VT_EVENTS_TOKEN")
}

func overrideString(target *string, key string) {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		*target = strings.TrimSpace(v)
	}
}

func overrideInt(target *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, key string) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) > 0 {
		*target = out
	}
}

func validate(cfg Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", cfg.Server.Port)
	}
	if cfg.Compression.TargetSizeKB <= 0 {
		return errors.New("compression.target_size_kb must be positive")
	}
	if cfg.Compression.MinBitrateKbps <= 0 {
		return errors.New("compression.min_bitrate_kbps must be positive")
	}
	switch cfg.Transcription.Backend {
	case "http":
		if strings.TrimSpace(cfg.Transcription.Endpoint) == "" {
			return errors.New("transcription.endpoint is required for the http backend")
		}
	case "whisper":
		if strings.TrimSpace(cfg.Transcription.WhisperCommand) == "" {
			return errors.New("transcription.whisper_command is required for the whisper backend")
		}
	default:
		return fmt.Errorf("unknown transcription.backend %q", cfg.Transcription.Backend)
	}
	if cfg.Transcription.MaxAttempts < 1 {
		return errors.New("transcription.max_attempts must be at least 1")
	}
	if cfg.Workers.Count < 1 {
		return errors.New("workers.count must be at least 1")
	}
	if cfg.Cleanup.IntervalMinutes < 1 {
		return errors.New("cleanup.interval_minutes must be at least 1")
	}
	// Anything younger may still belong to a running job.
	if cfg.Cleanup.MaxAgeHours < 1 {
		return errors.New("cleanup.max_age_hours must be at least 1")
	}
	if cfg.Events.Enabled && len(cfg.Events.Servers) == 0 {
		return errors.New("events.servers is required when events are enabled")
	}
	return nil
}
