package config

import (
	"database/sql"
	"errors"
	"fmt"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/viper"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type Config struct {
	App      App       `yaml:"app"`
	Server   Server    `yaml:"server"`
	Database Database  `yaml:"database"`
	Storage  Storage   `yaml:"storage"`
	Queue    *RabbitMQ `yaml:"rabbitmq"`
	Speech   Speech    `yaml:"speech"`
	Worker   Worker    `yaml:"worker"`
	Upload   Upload    `yaml:"upload"`
	Client   Client    `yaml:"client"`
}

type App struct {
	Environment string `yaml:"environment" validate:"oneof=production staging develop"`
	Host        string `yaml:"host"`
	Protocol    string `yaml:"protocol"`
}

type Server struct {
	HttpPort string `yaml:"http_port" validate:"required"`
	// EmbeddedWorker runs the sweeper inside the http server process.
	EmbeddedWorker bool `yaml:"embedded_worker"`
}

type Database struct {
	URL string `yaml:"url"`
}

type Storage struct {
	Driver   string `yaml:"driver" validate:"oneof=local minio"`
	LocalDir string `yaml:"local_dir" validate:"required_if=Driver local"`
	MinIO    MinIO  `yaml:"minio"`
}

type MinIO struct {
	URL             string `yaml:"url"`
	AccessId        string `yaml:"access_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Bucket          string `yaml:"bucket"`
	Secure          bool   `yaml:"secure"`
}

type RabbitMQ struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
	User    string `json:"user"`
	Pass    string `json:"pass"`
	Kind    string `json:"kind"`
}

type Speech struct {
	Provider        string       `yaml:"provider" validate:"oneof=google openai"`
	CredentialsFile string       `yaml:"credentials_file"`
	LanguageCode    string       `yaml:"language_code" validate:"required"`
	Model           string       `yaml:"model"`
	SampleRateHertz int32        `yaml:"sample_rate_hertz" validate:"gte=0"`
	OpenAI          OpenAISpeech `yaml:"openai"`
}

type OpenAISpeech struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

type Worker struct {
	BatchSize    int           `yaml:"batch_size" validate:"gte=1"`
	Interval     time.Duration `yaml:"interval" validate:"gt=0"`
	JobTimeout   time.Duration `yaml:"job_timeout" validate:"gt=0"`
	ErrorBackoff time.Duration `yaml:"error_backoff" validate:"gt=0"`
}

type Upload struct {
	MaxBytes int64 `yaml:"max_bytes" validate:"gt=0"`
}

type Client struct {
	BaseURL      string        `yaml:"base_url"`
	Token        string        `yaml:"token"`
	PollInterval time.Duration `yaml:"poll_interval" validate:"gt=0"`
	MaxPollFails int           `yaml:"max_poll_failures" validate:"gte=0"`
}

const envPrefix = "VETSCRIBE"

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "develop")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.embedded_worker", true)
	v.SetDefault("storage.driver", "local")
	v.SetDefault("storage.local_dir", "uploads/audio")
	v.SetDefault("minio.bucket", "audio")
	v.SetDefault("rabbitmq_port", 5672)
	v.SetDefault("rabbitmq_kind", "topic")
	v.SetDefault("speech.provider", "google")
	v.SetDefault("speech.language_code", "en-US")
	v.SetDefault("speech.model", "medical_conversation")
	v.SetDefault("speech.sample_rate_hertz", 16000)
	v.SetDefault("speech.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("speech.openai.model", "whisper-1")
	v.SetDefault("worker.batch_size", 5)
	v.SetDefault("worker.interval", 10*time.Second)
	v.SetDefault("worker.job_timeout", 2*time.Minute)
	v.SetDefault("worker.error_backoff", 30*time.Second)
	v.SetDefault("upload.max_bytes", 100<<20)
	v.SetDefault("client.base_url", "http://localhost:8080")
	v.SetDefault("client.poll_interval", 3*time.Second)
	v.SetDefault("client.max_poll_failures", 0)
}

// Load reads config.yaml from path, an optional .env next to it, and
// VETSCRIBE_* environment overrides ("speech.provider" becomes
// VETSCRIBE_SPEECH_PROVIDER).
func Load(path string) (*Config, error) {
	if err := godotenv.Load(filepath.Join(path, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{
		App: App{
			Environment: v.GetString("app.environment"),
			Host:        v.GetString("app.host"),
			Protocol:    v.GetString("app.protocol"),
		},
		Server: Server{
			HttpPort:       v.GetString("server.port"),
			EmbeddedWorker: v.GetBool("server.embedded_worker"),
		},
		Database: Database{
			URL: v.GetString("postgresql_host"),
		},
		Storage: Storage{
			Driver:   v.GetString("storage.driver"),
			LocalDir: v.GetString("storage.local_dir"),
			MinIO: MinIO{
				URL:             v.GetString("minio.url"),
				AccessId:        v.GetString("minio.access_id"),
				SecretAccessKey: v.GetString("minio.secret_access_key"),
				Bucket:          v.GetString("minio.bucket"),
				Secure:          v.GetBool("minio.secure"),
			},
		},
		Queue: &RabbitMQ{
			Enabled: v.GetBool("rabbitmq_enabled"),
			Host:    v.GetString("rabbitmq_host"),
			Port:    v.GetInt("rabbitmq_port"),
			User:    v.GetString("rabbitmq_user"),
			Pass:    v.GetString("rabbitmq_pass"),
			Kind:    v.GetString("rabbitmq_kind"),
		},
		Speech: Speech{
			Provider:        v.GetString("speech.provider"),
			CredentialsFile: v.GetString("speech.credentials_file"),
			LanguageCode:    v.GetString("speech.language_code"),
			Model:           v.GetString("speech.model"),
			SampleRateHertz: v.GetInt32("speech.sample_rate_hertz"),
			OpenAI: OpenAISpeech{
				BaseURL: v.GetString("speech.openai.base_url"),
				APIKey:  v.GetString("speech.openai.api_key"),
				Model:   v.GetString("speech.openai.model"),
			},
		},
		Worker: Worker{
			BatchSize:    v.GetInt("worker.batch_size"),
			Interval:     v.GetDuration("worker.interval"),
			JobTimeout:   v.GetDuration("worker.job_timeout"),
			ErrorBackoff: v.GetDuration("worker.error_backoff"),
		},
		Upload: Upload{
			MaxBytes: v.GetInt64("upload.max_bytes"),
		},
		Client: Client{
			BaseURL:      v.GetString("client.base_url"),
			Token:        v.GetString("client.token"),
			PollInterval: v.GetDuration("client.poll_interval"),
			MaxPollFails: v.GetInt("client.max_poll_failures"),
		},
	}

	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// OpenDB opens the postgres pool. The connection itself is established
// lazily on first use.
func OpenDB(cfg *Config) (*sql.DB, error) {
	if cfg.Database.URL == "" {
		return nil, errors.New("config: postgresql_host is not set")
	}
	return sql.Open("postgres", cfg.Database.URL)
}

func NewMinioClient(cfg *Config) (*minio.Client, error) {
	return minio.New(cfg.Storage.MinIO.URL, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Storage.MinIO.AccessId, cfg.Storage.MinIO.SecretAccessKey, ""),
		Secure: cfg.Storage.MinIO.Secure,
	})
}
