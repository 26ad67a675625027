package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var singleConfig *Config = nil

type Config struct {
	Database  *dbConfig
	Service   *svcConfig
	S3        *s3Config
	OpenAI    *openAIConfig
	Queue     *queueConfig
	Upload    *uploadConfig
	Retention *retentionConfig
	Tools     *toolsConfig
	Pipeline  *pipelineConfig
}

type dbConfig struct {
	Type     string `envconfig:"DB_TYPE" default:"pgsql"`
	Hostname string `envconfig:"DB_HOST" default:"localhost"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	Name     string `envconfig:"DB_NAME" default:"chaptermaker"`
	User     string `envconfig:"DB_USER" default:"admin"`
	Password string `envconfig:"DB_PASS" default:"adminpass"`
}

// DSN is the libpq connection string shared by gorm and the river pgx pool.
func (d *dbConfig) DSN() string {
	dsn := fmt.Sprintf("host=%s user=%s password=%s port=%s", d.Hostname, d.User, d.Password, d.Port)
	if d.Name != "" {
		dsn = fmt.Sprintf("%s dbname=%s", dsn, d.Name)
	}
	return dsn
}

type svcConfig struct {
	Address         string   `envconfig:"CHAPTERMAKER_ADDRESS" default:":8080"`
	MetricsAddress  string   `envconfig:"CHAPTERMAKER_METRICS_ADDRESS" default:":8081"`
	BaseUrl         string   `envconfig:"CHAPTERMAKER_BASE_URL" default:"http://localhost:8080"`
	LogLevel        string   `envconfig:"CHAPTERMAKER_LOG_LEVEL" default:"info"`
	CorsOrigins     []string `envconfig:"CHAPTERMAKER_CORS_ORIGINS" default:"*"`
	BatchMaxSize    int      `envconfig:"CHAPTERMAKER_BATCH_MAX_SIZE" default:"5"`
	MigrationFolder string   `envconfig:"CHAPTERMAKER_MIGRATIONS_FOLDER" default:""`
	WorkDir         string   `envconfig:"CHAPTERMAKER_WORK_DIR" default:""`
	GatewayPrefix   string   `envconfig:"CHAPTERMAKER_GATEWAY_PREFIX" default:""`
}

type s3Config struct {
	Endpoint  string `envconfig:"CHAPTERMAKER_S3_ENDPOINT" default:"localhost:9000"`
	Bucket    string `envconfig:"CHAPTERMAKER_S3_BUCKET" default:"chaptermaker"`
	AccessKey string `envconfig:"CHAPTERMAKER_S3_ACCESS_KEY" default:""`
	SecretKey string `envconfig:"CHAPTERMAKER_S3_SECRET_KEY" default:""`
	Region    string `envconfig:"CHAPTERMAKER_S3_REGION" default:""`
	UseSSL    bool   `envconfig:"CHAPTERMAKER_S3_USE_SSL" default:"false"`
}

type openAIConfig struct {
	APIKey             string        `envconfig:"OPENAI_API_KEY" default:""`
	BaseURL            string        `envconfig:"OPENAI_BASE_URL" default:""`
	TranscriptionModel string        `envconfig:"CHAPTERMAKER_TRANSCRIPTION_MODEL" default:"whisper-1"`
	ChapterModel       string        `envconfig:"CHAPTERMAKER_CHAPTER_MODEL" default:"gpt-4o-mini"`
	Timeout            time.Duration `envconfig:"CHAPTERMAKER_OPENAI_TIMEOUT" default:"5m"`
}

type queueConfig struct {
	MaxWorkers  int           `envconfig:"CHAPTERMAKER_QUEUE_MAX_WORKERS" default:"4"`
	MaxAttempts int           `envconfig:"CHAPTERMAKER_QUEUE_MAX_ATTEMPTS" default:"3"`
	JobTimeout  time.Duration `envconfig:"CHAPTERMAKER_QUEUE_JOB_TIMEOUT" default:"60m"`

	ReconcileInterval time.Duration `envconfig:"CHAPTERMAKER_QUEUE_RECONCILE_INTERVAL" default:"5m"`
}

type uploadConfig struct {
	TicketExpiry   time.Duration `envconfig:"CHAPTERMAKER_UPLOAD_TICKET_EXPIRY" default:"15m"`
	DownloadExpiry time.Duration `envconfig:"CHAPTERMAKER_DOWNLOAD_URL_EXPIRY" default:"1h"`
}

type retentionConfig struct {
	MaxAge   time.Duration `envconfig:"CHAPTERMAKER_RETENTION_MAX_AGE" default:"24h"`
	Interval time.Duration `envconfig:"CHAPTERMAKER_RETENTION_INTERVAL" default:"24h"`
}

type toolsConfig struct {
	FFmpeg   string `envconfig:"CHAPTERMAKER_FFMPEG" default:"ffmpeg"`
	FFprobe  string `envconfig:"CHAPTERMAKER_FFPROBE" default:"ffprobe"`
	Soffice  string `envconfig:"CHAPTERMAKER_SOFFICE" default:"soffice"`
	Pdftoppm string `envconfig:"CHAPTERMAKER_PDFTOPPM" default:"pdftoppm"`
}

type pipelineConfig struct {
	MaxCueDuration        time.Duration `envconfig:"CHAPTERMAKER_MAX_CUE_DURATION" default:"7s"`
	TranscriptTokenBudget int           `envconfig:"CHAPTERMAKER_TRANSCRIPT_TOKEN_BUDGET" default:"12000"`
	QAKeywords            []string      `envconfig:"CHAPTERMAKER_QA_KEYWORDS" default:""`
	SlideResolution       int           `envconfig:"CHAPTERMAKER_SLIDE_RESOLUTION" default:"150"`
}

// New loads the configuration once. A .env file in the working directory, when present,
// seeds the environment before it is processed.
func New() (*Config, error) {
	if singleConfig == nil {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		cfg := new(Config)
		if err := envconfig.Process("", cfg); err != nil {
			return nil, err
		}
		singleConfig = cfg
	}
	return singleConfig, nil
}

// NewDefault returns a fresh configuration backed by an in-memory sqlite database.
// It never touches the singleton.
func NewDefault() *Config {
	cfg := new(Config)
	if err := envconfig.Process("", cfg); err != nil {
		panic(err)
	}
	cfg.Database.Type = "sqlite"
	cfg.Database.Name = "file::memory:?cache=shared"
	return cfg
}
