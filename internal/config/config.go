package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EngineRemotion = "remotion"
	EngineFFmpeg   = "ffmpeg"

	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendLocal  = "local"
	BackendAsynq  = "asynq"
	BackendS3     = "s3"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	filePath := os.Getenv(envKey + "_FILE")
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	os.Setenv(envKey, strings.TrimSpace(string(data)))
}

type Config struct {
	Server    ServerConfig
	Render    RenderConfig
	Queue     QueueConfig
	Store     StoreConfig
	Redis     RedisConfig
	Artifact  ArtifactConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port        string
	Env         string
	LogLevel    string
	BodyLimit   int // bytes
	CORSOrigins string
}

type RenderConfig struct {
	Engine     string
	EntryPoint string
	NpxPath    string
	FFmpegPath string
	WorkDir    string
	Timeout    time.Duration
	Codec      string
}

type QueueConfig struct {
	Backend  string
	MaxDepth int // 0 means unbounded
}

type StoreConfig struct {
	Backend       string
	Retention     time.Duration // 0 keeps jobs until restart
	SweepSchedule string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type ArtifactConfig struct {
	Backend  string
	LocalDir string
	S3       S3Config
}

type S3Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

type RateLimitConfig struct {
	StartPerHour int // 0 disables the limiter
}

// Load reads .env files, Docker secrets, an optional config.yaml and the
// environment, in increasing order of precedence.
func Load() (*Config, error) {
	_ = godotenv.Load(".env", ".env.local")

	readSecret("REDIS_PASSWORD")
	readSecret("S3_ACCESS_KEY_ID")
	readSecret("S3_SECRET_ACCESS_KEY")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.AutomaticEnv()
	bindEnv(v)
	setDefaults(v)

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("server.port", "PORT")
	_ = v.BindEnv("server.env", "APP_ENV")
	_ = v.BindEnv("server.log_level", "LOG_LEVEL")
	_ = v.BindEnv("server.body_limit", "BODY_LIMIT")
	_ = v.BindEnv("server.cors_origins", "CORS_ORIGINS")
	_ = v.BindEnv("render.engine", "RENDER_ENGINE")
	_ = v.BindEnv("render.entry_point", "REMOTION_ENTRY")
	_ = v.BindEnv("render.npx_path", "NPX_PATH")
	_ = v.BindEnv("render.ffmpeg_path", "FFMPEG_PATH")
	_ = v.BindEnv("render.work_dir", "RENDER_WORK_DIR")
	_ = v.BindEnv("render.timeout", "RENDER_TIMEOUT")
	_ = v.BindEnv("render.codec", "RENDER_CODEC")
	_ = v.BindEnv("queue.backend", "QUEUE_BACKEND")
	_ = v.BindEnv("queue.max_depth", "QUEUE_MAX_DEPTH")
	_ = v.BindEnv("store.backend", "STORE_BACKEND")
	_ = v.BindEnv("store.retention", "JOB_RETENTION")
	_ = v.BindEnv("store.sweep_schedule", "JOB_SWEEP_SCHEDULE")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("redis.db", "REDIS_DB")
	_ = v.BindEnv("artifact.backend", "ARTIFACT_BACKEND")
	_ = v.BindEnv("artifact.local_dir", "ARTIFACT_DIR")
	_ = v.BindEnv("artifact.s3.endpoint", "S3_ENDPOINT")
	_ = v.BindEnv("artifact.s3.region", "S3_REGION")
	_ = v.BindEnv("artifact.s3.bucket", "S3_BUCKET")
	_ = v.BindEnv("artifact.s3.access_key_id", "S3_ACCESS_KEY_ID")
	_ = v.BindEnv("artifact.s3.secret_access_key", "S3_SECRET_ACCESS_KEY")
	_ = v.BindEnv("artifact.s3.path_style", "S3_PATH_STYLE")
	_ = v.BindEnv("ratelimit.start_per_hour", "RATE_LIMIT_START_PER_HOUR")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "3000")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.body_limit", 2*1024*1024)
	v.SetDefault("server.cors_origins", "*")
	v.SetDefault("render.engine", EngineRemotion)
	v.SetDefault("render.entry_point", "remotion/entry.jsx")
	v.SetDefault("render.npx_path", "npx")
	v.SetDefault("render.ffmpeg_path", "ffmpeg")
	v.SetDefault("render.work_dir", filepath.Join(os.TempDir(), "brandrender"))
	v.SetDefault("render.timeout", 5*time.Minute)
	v.SetDefault("render.codec", "h264")
	v.SetDefault("queue.backend", BackendLocal)
	v.SetDefault("queue.max_depth", 0)
	v.SetDefault("store.backend", BackendMemory)
	v.SetDefault("store.retention", time.Duration(0))
	v.SetDefault("store.sweep_schedule", "@every 10m")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("artifact.backend", BackendLocal)
	v.SetDefault("artifact.local_dir", "")
	v.SetDefault("artifact.s3.region", "auto")
	v.SetDefault("artifact.s3.path_style", false)
	v.SetDefault("ratelimit.start_per_hour", 0)
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:        v.GetString("server.port"),
			Env:         v.GetString("server.env"),
			LogLevel:    v.GetString("server.log_level"),
			BodyLimit:   v.GetInt("server.body_limit"),
			CORSOrigins: v.GetString("server.cors_origins"),
		},
		Render: RenderConfig{
			Engine:     strings.ToLower(v.GetString("render.engine")),
			EntryPoint: v.GetString("render.entry_point"),
			NpxPath:    v.GetString("render.npx_path"),
			FFmpegPath: v.GetString("render.ffmpeg_path"),
			WorkDir:    v.GetString("render.work_dir"),
			Timeout:    v.GetDuration("render.timeout"),
			Codec:      v.GetString("render.codec"),
		},
		Queue: QueueConfig{
			Backend:  strings.ToLower(v.GetString("queue.backend")),
			MaxDepth: v.GetInt("queue.max_depth"),
		},
		Store: StoreConfig{
			Backend:       strings.ToLower(v.GetString("store.backend")),
			Retention:     v.GetDuration("store.retention"),
			SweepSchedule: v.GetString("store.sweep_schedule"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Artifact: ArtifactConfig{
			Backend:  strings.ToLower(v.GetString("artifact.backend")),
			LocalDir: v.GetString("artifact.local_dir"),
			S3: S3Config{
				Endpoint:        v.GetString("artifact.s3.endpoint"),
				Region:          v.GetString("artifact.s3.region"),
				Bucket:          v.GetString("artifact.s3.bucket"),
				AccessKeyID:     v.GetString("artifact.s3.access_key_id"),
				SecretAccessKey: v.GetString("artifact.s3.secret_access_key"),
				UsePathStyle:    v.GetBool("artifact.s3.path_style"),
			},
		},
		RateLimit: RateLimitConfig{
			StartPerHour: v.GetInt("ratelimit.start_per_hour"),
		},
	}

	if cfg.Artifact.LocalDir == "" {
		cfg.Artifact.LocalDir = filepath.Join(cfg.Render.WorkDir, "artifacts")
	}
	return cfg
}

// Validate rejects combinations the service cannot start with.
func (c *Config) Validate() error {
	var errs []error

	switch c.Render.Engine {
	case EngineRemotion, EngineFFmpeg:
	default:
		errs = append(errs, fmt.Errorf("render.engine: unknown engine %q", c.Render.Engine))
	}
	if c.Render.Timeout <= 0 {
		errs = append(errs, errors.New("render.timeout must be positive"))
	}
	if c.Server.BodyLimit <= 0 {
		errs = append(errs, errors.New("server.body_limit must be positive"))
	}

	switch c.Queue.Backend {
	case BackendLocal, BackendAsynq:
	default:
		errs = append(errs, fmt.Errorf("queue.backend: unknown backend %q", c.Queue.Backend))
	}
	if c.Queue.MaxDepth < 0 {
		errs = append(errs, errors.New("queue.max_depth must not be negative"))
	}

	switch c.Store.Backend {
	case BackendMemory, BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("store.backend: unknown backend %q", c.Store.Backend))
	}
	if c.Store.Retention < 0 {
		errs = append(errs, errors.New("store.retention must not be negative"))
	}
	// Asynq workers read jobs written by other processes.
	if c.Queue.Backend == BackendAsynq && c.Store.Backend != BackendRedis {
		errs = append(errs, errors.New("queue.backend asynq requires store.backend redis"))
	}

	switch c.Artifact.Backend {
	case BackendLocal:
	case BackendS3:
		if c.Artifact.S3.Bucket == "" {
			errs = append(errs, errors.New("artifact.s3.bucket is required for the s3 backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("artifact.backend: unknown backend %q", c.Artifact.Backend))
	}

	if c.RateLimit.StartPerHour < 0 {
		errs = append(errs, errors.New("ratelimit.start_per_hour must not be negative"))
	}

	return errors.Join(errs...)
}

// NeedsRedis reports whether any configured backend talks to Redis.
func (c *Config) NeedsRedis() bool {
	return c.Store.Backend == BackendRedis ||
		c.Queue.Backend == BackendAsynq ||
		c.RateLimit.StartPerHour > 0
}

// IsDevelopment reports whether the service runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}
