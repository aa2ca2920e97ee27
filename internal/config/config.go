package config

import (
	"errors"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	DBTypeMemory   = "memory"
	DBTypeSqlite   = "sqlite"
	DBTypePostgres = "pgsql"
	DBTypeRedis    = "redis"
)

var singleConfig *Config = nil

type Config struct {
	Database *dbConfig
	Redis    *redisConfig
	Service  *svcConfig
	Pipeline *pipelineConfig
	Archive  *archiveConfig
}

type dbConfig struct {
	Type     string `envconfig:"DB_TYPE" default:"memory"`
	Hostname string `envconfig:"DB_HOST" default:"localhost"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	Name     string `envconfig:"DB_NAME" default:"pipeline"`
	User     string `envconfig:"DB_USER" default:"admin"`
	Password string `envconfig:"DB_PASS" default:"adminpass"`
}

type redisConfig struct {
	Address  string `envconfig:"REDIS_ADDRESS" default:"localhost:6379"`
	Password string `envconfig:"REDIS_PASSWORD" default:""`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

type svcConfig struct {
	Address        string        `envconfig:"UGC_PIPELINE_ADDRESS" default:":8080"`
	MetricsAddress string        `envconfig:"UGC_PIPELINE_METRICS_ADDRESS" default:":8081"`
	LogLevel       string        `envconfig:"UGC_PIPELINE_LOG_LEVEL" default:"info"`
	LogFormat      string        `envconfig:"UGC_PIPELINE_LOG_FORMAT" default:"console"`
	CorsOrigins    []string      `envconfig:"UGC_PIPELINE_CORS_ORIGINS" default:"*"`
	StreamInterval time.Duration `envconfig:"UGC_PIPELINE_STREAM_INTERVAL" default:"1s"`
	EventsWriter   string        `envconfig:"UGC_PIPELINE_EVENTS_WRITER" default:"stdout"`
	MigrateOnStart bool          `envconfig:"UGC_PIPELINE_MIGRATE_ON_START" default:"true"`
	// MigrationFolder overrides the migrations embedded in the binary.
	MigrationFolder string `envconfig:"UGC_PIPELINE_MIGRATIONS_FOLDER" default:""`
}

type pipelineConfig struct {
	MaxAttempts         int           `envconfig:"UGC_PIPELINE_MAX_ATTEMPTS" default:"3"`
	InitialBackoff      time.Duration `envconfig:"UGC_PIPELINE_INITIAL_BACKOFF" default:"2s"`
	MaxBackoff          time.Duration `envconfig:"UGC_PIPELINE_MAX_BACKOFF" default:"30s"`
	StageTimeout        time.Duration `envconfig:"UGC_PIPELINE_STAGE_TIMEOUT" default:"10m"`
	CollaboratorURL     string        `envconfig:"UGC_PIPELINE_COLLABORATOR_URL" default:""`
	CollaboratorTimeout time.Duration `envconfig:"UGC_PIPELINE_COLLABORATOR_TIMEOUT" default:"5m"`
	SimulatedLatency    time.Duration `envconfig:"UGC_PIPELINE_SIMULATED_LATENCY" default:"200ms"`
}

type archiveConfig struct {
	Enabled   bool   `envconfig:"UGC_PIPELINE_ARCHIVE_ENABLED" default:"false"`
	Endpoint  string `envconfig:"UGC_PIPELINE_ARCHIVE_ENDPOINT" default:"localhost:9000"`
	Bucket    string `envconfig:"UGC_PIPELINE_ARCHIVE_BUCKET" default:"ugc-pipeline"`
	AccessKey string `envconfig:"UGC_PIPELINE_ARCHIVE_ACCESS_KEY" default:""`
	SecretKey string `envconfig:"UGC_PIPELINE_ARCHIVE_SECRET_KEY" default:""`
	UseSSL    bool   `envconfig:"UGC_PIPELINE_ARCHIVE_USE_SSL" default:"false"`
}

// New loads the process configuration once. Variables from envFiles (".env"
// when none is given) are loaded first without overriding the environment.
func New(envFiles ...string) (*Config, error) {
	if singleConfig == nil {
		if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		cfg, err := NewDefault()
		if err != nil {
			return nil, err
		}
		singleConfig = cfg
	}
	return singleConfig, nil
}

// NewDefault builds a fresh configuration from the environment and the defaults.
func NewDefault() (*Config, error) {
	cfg := new(Config)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
