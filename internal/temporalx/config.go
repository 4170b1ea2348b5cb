package temporalx

import (
	"time"

	"github.com/yungbote/docquiz-backend/internal/platform/envutil"
)

type Config struct {
	Address   string
	Namespace string
	TaskQueue string

	ClientCertPath string
	ClientKeyPath  string
	ClientCAPath   string

	DialTimeout time.Duration
	DialMaxWait time.Duration
	BackoffBase time.Duration
	BackoffMax  time.Duration

	AutoRegisterNamespace bool
	RetentionDays         int
	EnsureTimeout         time.Duration

	WorkerConcurrency int
	// ActivityTimeout bounds one full pipeline run.
	ActivityTimeout time.Duration
}

// Enabled reports whether documents are dispatched through Temporal rather
// than the in-process worker.
func (c Config) Enabled() bool { return c.Address != "" }

func (c Config) hasTLS() bool {
	return c.ClientCertPath != "" || c.ClientKeyPath != "" || c.ClientCAPath != ""
}

func LoadConfig() Config {
	cfg := Config{
		Address:   envutil.String("TEMPORAL_ADDRESS", ""),
		Namespace: envutil.String("TEMPORAL_NAMESPACE", "docquiz"),
		TaskQueue: envutil.String("TEMPORAL_TASK_QUEUE", "docquiz-documents"),

		ClientCertPath: envutil.String("TEMPORAL_CLIENT_CERT_PATH", ""),
		ClientKeyPath:  envutil.String("TEMPORAL_CLIENT_KEY_PATH", ""),
		ClientCAPath:   envutil.String("TEMPORAL_CLIENT_CA_PATH", ""),

		DialTimeout: envutil.Duration("TEMPORAL_DIAL_TIMEOUT", 5*time.Second),
		DialMaxWait: envutil.Duration("TEMPORAL_DIAL_MAX_WAIT", time.Minute),
		BackoffBase: envutil.Duration("TEMPORAL_BACKOFF", 250*time.Millisecond),
		BackoffMax:  envutil.Duration("TEMPORAL_BACKOFF_MAX", 5*time.Second),

		AutoRegisterNamespace: envutil.Bool("TEMPORAL_AUTO_REGISTER_NAMESPACE", false),
		RetentionDays:         envutil.Int("TEMPORAL_NAMESPACE_RETENTION_DAYS", 7),
		EnsureTimeout:         envutil.Duration("TEMPORAL_NAMESPACE_ENSURE_TIMEOUT", 10*time.Second),

		WorkerConcurrency: envutil.Int("WORKER_CONCURRENCY", 4),
		ActivityTimeout:   envutil.Duration("TEMPORAL_ACTIVITY_TIMEOUT", 2*time.Hour),
	}
	return cfg.normalized()
}

func (c Config) normalized() Config {
	if c.RetentionDays < 1 || c.RetentionDays > 365 {
		c.RetentionDays = 7
	}
	if c.EnsureTimeout <= 0 {
		c.EnsureTimeout = 10 * time.Second
	}
	if c.WorkerConcurrency < 1 {
		c.WorkerConcurrency = 1
	}
	if c.ActivityTimeout <= 0 {
		c.ActivityTimeout = 2 * time.Hour
	}
	return c
}
