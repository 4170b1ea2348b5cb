package app

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/yungbote/docquiz-backend/internal/platform/envutil"
	"github.com/yungbote/docquiz-backend/internal/platform/logger"
)

const (
	RoleAll    = "all"
	RoleAPI    = "api"
	RoleWorker = "worker"
)

type Config struct {
	Role        string   `yaml:"role"`
	Port        string   `yaml:"port"`
	LogMode     string   `yaml:"log_mode"`
	ServiceName string   `yaml:"service_name"`
	CORSOrigins []string `yaml:"cors_origins"`

	DB          DBConfig       `yaml:"db"`
	VectorStore string         `yaml:"vector_store"`
	Storage     StorageConfig  `yaml:"storage"`
	LLM         LLMConfig      `yaml:"llm"`
	Redis       RedisConfig    `yaml:"redis"`
	Pipeline    PipelineConfig `yaml:"pipeline"`
	Upload      UploadConfig   `yaml:"upload"`
	Stream      StreamConfig   `yaml:"stream"`
}

type DBConfig struct {
	Driver     string `yaml:"driver"`
	Host       string `yaml:"host"`
	Port       string `yaml:"port"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	Name       string `yaml:"name"`
	SSLMode    string `yaml:"sslmode"`
	SQLitePath string `yaml:"sqlite_path"`
}

type StorageConfig struct {
	Mode         string `yaml:"mode"`
	Root         string `yaml:"root"`
	Bucket       string `yaml:"bucket"`
	EmulatorHost string `yaml:"emulator_host"`
	S3Endpoint   string `yaml:"s3_endpoint"`
	S3AccessKey  string `yaml:"s3_access_key"`
	S3SecretKey  string `yaml:"s3_secret_key"`
	S3UseSSL     bool   `yaml:"s3_use_ssl"`
}

type LLMConfig struct {
	// Provider is openai, gemini or vertex.
	Provider string `yaml:"provider"`
	// EmbedProvider is placeholder, openai or gemini.
	EmbedProvider    string  `yaml:"embed_provider"`
	RPM              int     `yaml:"rpm"`
	TPM              int     `yaml:"tpm"`
	RateLimitBackend string  `yaml:"rate_limit_backend"`
	EmbedMaxRetries  int     `yaml:"embed_max_retries"`
	SimilarityCutoff float64 `yaml:"similarity_cutoff"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

type PipelineConfig struct {
	WorkerConcurrency int           `yaml:"worker_concurrency"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	StageMaxAttempts  int           `yaml:"stage_max_attempts"`
	StageBackoff      time.Duration `yaml:"stage_backoff"`
	ChunkWords        int           `yaml:"chunk_words"`
	ChunkOverlap      int           `yaml:"chunk_overlap"`
}

type UploadConfig struct {
	MaxBytes int64 `yaml:"max_bytes"`
	RPM      int   `yaml:"rpm"`
}

type StreamConfig struct {
	Interval time.Duration `yaml:"interval"`
	Budget   time.Duration `yaml:"budget"`
}

func defaultConfig() Config {
	return Config{
		Role:        RoleAll,
		Port:        "8080",
		LogMode:     "development",
		ServiceName: "docquiz-api",
		DB: DBConfig{
			Driver:  "postgres",
			Host:    "localhost",
			Port:    "5432",
			User:    "postgres",
			Name:    "docquiz",
			SSLMode: "disable",
		},
		VectorStore: "serialized",
		Storage:     StorageConfig{Mode: "local", Root: "./data/uploads"},
		LLM: LLMConfig{
			Provider:         "gemini",
			EmbedProvider:    "placeholder",
			RPM:              15,
			TPM:              1_000_000,
			RateLimitBackend: "memory",
			EmbedMaxRetries:  3,
		},
		Redis: RedisConfig{Channel: "docquiz:events"},
		Pipeline: PipelineConfig{
			WorkerConcurrency: 2,
			PollInterval:      time.Second,
			StageMaxAttempts:  3,
			StageBackoff:      2 * time.Second,
			ChunkWords:        512,
			ChunkOverlap:      50,
		},
		Upload: UploadConfig{MaxBytes: 50 << 20, RPM: 30},
		Stream: StreamConfig{Interval: 2 * time.Second, Budget: 30 * time.Second},
	}
}

// LoadConfig layers defaults, an optional YAML file (CONFIG_FILE) and the
// environment, in that order. A .env file in the working directory is loaded
// into the environment first when present.
func LoadConfig(log *logger.Logger) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("could not load .env", "error", err)
	}
	cfg := defaultConfig()
	if path := envutil.String("CONFIG_FILE", ""); path != "" {
		if err := loadYAML(path, &cfg); err != nil {
			return cfg, err
		}
		log.Info("loaded config file", "path", path)
	}
	applyEnv(&cfg)
	return cfg, cfg.validate()
}

func loadYAML(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(c *Config) {
	c.Role = strings.ToLower(envutil.String("APP_ROLE", c.Role))
	c.Port = envutil.String("PORT", c.Port)
	c.LogMode = envutil.String("LOG_MODE", c.LogMode)
	c.ServiceName = envutil.String("OTEL_SERVICE_NAME", c.ServiceName)
	if origins := envutil.String("CORS_ORIGINS", ""); origins != "" {
		c.CORSOrigins = splitList(origins)
	}

	c.DB.Driver = envutil.String("DB_DRIVER", c.DB.Driver)
	c.DB.Host = envutil.String("POSTGRES_HOST", c.DB.Host)
	c.DB.Port = envutil.String("POSTGRES_PORT", c.DB.Port)
	c.DB.User = envutil.String("POSTGRES_USER", c.DB.User)
	c.DB.Password = envutil.String("POSTGRES_PASSWORD", c.DB.Password)
	c.DB.Name = envutil.String("POSTGRES_NAME", c.DB.Name)
	c.DB.SSLMode = envutil.String("POSTGRES_SSLMODE", c.DB.SSLMode)
	c.DB.SQLitePath = envutil.String("SQLITE_PATH", c.DB.SQLitePath)
	c.VectorStore = envutil.String("VECTOR_STORE", c.VectorStore)

	c.Storage.Mode = envutil.String("STORAGE_MODE", c.Storage.Mode)
	c.Storage.Root = envutil.String("STORAGE_ROOT", c.Storage.Root)
	c.Storage.Bucket = envutil.String("STORAGE_BUCKET", envutil.String("GCS_BUCKET", c.Storage.Bucket))
	c.Storage.EmulatorHost = envutil.String("STORAGE_EMULATOR_HOST", c.Storage.EmulatorHost)
	c.Storage.S3Endpoint = envutil.String("S3_ENDPOINT", c.Storage.S3Endpoint)
	c.Storage.S3AccessKey = envutil.String("S3_ACCESS_KEY", c.Storage.S3AccessKey)
	c.Storage.S3SecretKey = envutil.String("S3_SECRET_KEY", c.Storage.S3SecretKey)
	c.Storage.S3UseSSL = envutil.Bool("S3_USE_SSL", c.Storage.S3UseSSL)
	if c.Storage.Mode == "s3" || c.Storage.Mode == "minio" {
		c.Storage.Bucket = envutil.String("S3_BUCKET", c.Storage.Bucket)
	}

	c.LLM.Provider = strings.ToLower(envutil.String("LLM_PROVIDER", c.LLM.Provider))
	c.LLM.EmbedProvider = strings.ToLower(envutil.String("EMBED_PROVIDER", c.LLM.EmbedProvider))
	c.LLM.RPM = envutil.Int("LLM_RPM", c.LLM.RPM)
	c.LLM.TPM = envutil.Int("LLM_TPM", c.LLM.TPM)
	c.LLM.RateLimitBackend = strings.ToLower(envutil.String("RATE_LIMIT_BACKEND", c.LLM.RateLimitBackend))
	c.LLM.EmbedMaxRetries = envutil.Int("EMBED_MAX_RETRIES", c.LLM.EmbedMaxRetries)
	c.LLM.SimilarityCutoff = envutil.Float("QUIZ_SIMILARITY_CUTOFF", c.LLM.SimilarityCutoff)

	c.Redis.Addr = envutil.String("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = envutil.String("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = envutil.Int("REDIS_DB", c.Redis.DB)
	c.Redis.Channel = envutil.String("REDIS_CHANNEL", c.Redis.Channel)

	c.Pipeline.WorkerConcurrency = envutil.Int("WORKER_CONCURRENCY", c.Pipeline.WorkerConcurrency)
	c.Pipeline.PollInterval = envutil.Duration("WORKER_POLL_INTERVAL", c.Pipeline.PollInterval)
	c.Pipeline.StageMaxAttempts = envutil.Int("STAGE_MAX_ATTEMPTS", c.Pipeline.StageMaxAttempts)
	c.Pipeline.StageBackoff = envutil.Duration("STAGE_BACKOFF", c.Pipeline.StageBackoff)
	c.Pipeline.ChunkWords = envutil.Int("CHUNK_WORDS", c.Pipeline.ChunkWords)
	c.Pipeline.ChunkOverlap = envutil.Int("CHUNK_OVERLAP", c.Pipeline.ChunkOverlap)

	c.Upload.MaxBytes = envutil.Int64("UPLOAD_MAX_BYTES", c.Upload.MaxBytes)
	c.Upload.RPM = envutil.Int("UPLOAD_RPM", c.Upload.RPM)
	c.Stream.Interval = envutil.Duration("STATUS_STREAM_INTERVAL", c.Stream.Interval)
	c.Stream.Budget = envutil.Duration("STATUS_STREAM_BUDGET", c.Stream.Budget)
}

func (c Config) validate() error {
	switch c.Role {
	case RoleAll, RoleAPI, RoleWorker:
	default:
		return fmt.Errorf("invalid APP_ROLE=%q (allowed: all, api, worker)", c.Role)
	}
	switch c.LLM.Provider {
	case "openai", "gemini", "vertex":
	default:
		return fmt.Errorf("invalid LLM_PROVIDER=%q (allowed: openai, gemini, vertex)", c.LLM.Provider)
	}
	switch c.LLM.EmbedProvider {
	case "placeholder", "openai", "gemini":
	default:
		return fmt.Errorf("invalid EMBED_PROVIDER=%q (allowed: placeholder, openai, gemini)", c.LLM.EmbedProvider)
	}
	switch c.LLM.RateLimitBackend {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			return errors.New("RATE_LIMIT_BACKEND=redis requires REDIS_ADDR")
		}
	default:
		return fmt.Errorf("invalid RATE_LIMIT_BACKEND=%q (allowed: memory, redis)", c.LLM.RateLimitBackend)
	}
	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("UPLOAD_MAX_BYTES must be positive, got %d", c.Upload.MaxBytes)
	}
	return nil
}

// RunsAPI and RunsWorker split one binary across deployments.
func (c Config) RunsAPI() bool    { return c.Role == RoleAll || c.Role == RoleAPI }
func (c Config) RunsWorker() bool { return c.Role == RoleAll || c.Role == RoleWorker }

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
