package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/your-org/facegate/internal/biometric"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	MinIO    MinIOConfig    `yaml:"minio"`
	Vision   VisionConfig   `yaml:"vision"`
	Matching MatchingConfig `yaml:"matching"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
	// MaxImageBytes caps the decoded size of uploaded images.
	MaxImageBytes int `yaml:"max_image_bytes"`
}

type DatabaseConfig struct {
	// Driver is one of postgres, sqlite, memory.
	Driver   string `yaml:"driver"`
	Path     string `yaml:"path"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type NATSConfig struct {
	// URL is optional; without it access events are recorded in-process.
	URL string `yaml:"url"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

func (m MinIOConfig) Enabled() bool {
	return m.Endpoint != "" && m.Bucket != ""
}

type VisionConfig struct {
	ModelsDir          string  `yaml:"models_dir"`
	DetectorModel      string  `yaml:"detector_model"`
	EmbedderModel      string  `yaml:"embedder_model"`
	DetectionThreshold float64 `yaml:"detection_threshold"`
	DetectorInputSize  int     `yaml:"detector_input_size"`
	EmbedderInputSize  int     `yaml:"embedder_input_size"`
	EmbedderInputName  string  `yaml:"embedder_input_name"`
	EmbedderOutputName string  `yaml:"embedder_output_name"`
	SignatureDim       int     `yaml:"signature_dim"`
	// CropMargin enlarges the detected box by this fraction on each side.
	CropMargin float64 `yaml:"crop_margin"`
}

type MatchingConfig struct {
	Tolerance     float64       `yaml:"tolerance"`
	ScanTimeout   time.Duration `yaml:"scan_timeout"`
	MaxRosterSize int           `yaml:"max_roster_size"`
	ArchiveProbes bool          `yaml:"archive_probes"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads an optional .env file, then the YAML config at path, then
// applies FACEGATE_* environment overrides and defaults. A missing config
// file is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	// Tolerance 0 is a legal exact-match setting, so its default is set
	// before decoding rather than in setDefaults.
	cfg := &Config{Matching: MatchingConfig{Tolerance: biometric.DefaultTolerance}}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	setDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite", "memory":
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if !(c.Matching.Tolerance >= 0) || math.IsInf(c.Matching.Tolerance, 1) {
		return fmt.Errorf("matching tolerance must be a non-negative number, got %v", c.Matching.Tolerance)
	}
	if c.Matching.MaxRosterSize < 0 {
		return fmt.Errorf("max roster size must not be negative")
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.MaxImageBytes == 0 {
		cfg.Server.MaxImageBytes = 10 << 20
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./data/facegate.db"
	}
	if cfg.Vision.ModelsDir == "" {
		cfg.Vision.ModelsDir = "./models"
	}
	if cfg.Vision.DetectorModel == "" {
		cfg.Vision.DetectorModel = "det_10g.onnx"
	}
	if cfg.Vision.EmbedderModel == "" {
		cfg.Vision.EmbedderModel = "face_embedding.onnx"
	}
	if cfg.Vision.DetectionThreshold == 0 {
		cfg.Vision.DetectionThreshold = 0.5
	}
	if cfg.Vision.DetectorInputSize == 0 {
		cfg.Vision.DetectorInputSize = 640
	}
	if cfg.Vision.EmbedderInputSize == 0 {
		cfg.Vision.EmbedderInputSize = 150
	}
	if cfg.Vision.EmbedderInputName == "" {
		cfg.Vision.EmbedderInputName = "input"
	}
	if cfg.Vision.EmbedderOutputName == "" {
		cfg.Vision.EmbedderOutputName = "embedding"
	}
	if cfg.Vision.SignatureDim == 0 {
		cfg.Vision.SignatureDim = 128
	}
	if cfg.Vision.CropMargin == 0 {
		cfg.Vision.CropMargin = 0.1
	}
	if cfg.Matching.ScanTimeout == 0 {
		cfg.Matching.ScanTimeout = 5 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) error {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
		return nil
	}

	if err := num("FACEGATE_SERVER_PORT", &cfg.Server.Port); err != nil {
		return err
	}
	str("FACEGATE_API_KEY", &cfg.Server.APIKey)

	str("FACEGATE_DB_DRIVER", &cfg.Database.Driver)
	str("FACEGATE_DB_PATH", &cfg.Database.Path)
	str("FACEGATE_DB_HOST", &cfg.Database.Host)
	if err := num("FACEGATE_DB_PORT", &cfg.Database.Port); err != nil {
		return err
	}
	str("FACEGATE_DB_NAME", &cfg.Database.Name)
	str("FACEGATE_DB_USER", &cfg.Database.User)
	str("FACEGATE_DB_PASSWORD", &cfg.Database.Password)

	str("FACEGATE_NATS_URL", &cfg.NATS.URL)

	str("FACEGATE_MINIO_ENDPOINT", &cfg.MinIO.Endpoint)
	str("FACEGATE_MINIO_ACCESS_KEY", &cfg.MinIO.AccessKey)
	str("FACEGATE_MINIO_SECRET_KEY", &cfg.MinIO.SecretKey)
	str("FACEGATE_MINIO_BUCKET", &cfg.MinIO.Bucket)

	str("FACEGATE_MODELS_DIR", &cfg.Vision.ModelsDir)
	if err := num("FACEGATE_SIGNATURE_DIM", &cfg.Vision.SignatureDim); err != nil {
		return err
	}

	// The legacy name is honoured but the FACEGATE_ one wins.
	for _, key := range []string{"FACE_RECOGNITION_TOLERANCE", "FACEGATE_MATCH_TOLERANCE"} {
		if v := os.Getenv(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			cfg.Matching.Tolerance = f
		}
	}
	if v := os.Getenv("FACEGATE_SCAN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("FACEGATE_SCAN_TIMEOUT: %w", err)
		}
		cfg.Matching.ScanTimeout = d
	}
	if err := num("FACEGATE_MAX_ROSTER_SIZE", &cfg.Matching.MaxRosterSize); err != nil {
		return err
	}

	str("FACEGATE_LOG_LEVEL", &cfg.Logging.Level)
	str("FACEGATE_LOG_FORMAT", &cfg.Logging.Format)
	return nil
}
