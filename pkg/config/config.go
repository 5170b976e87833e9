package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	// EnvPrefix namespaces every environment variable consumed by the service.
	EnvPrefix = "POSSTACK"

	AppEnvDev  = "dev"
	AppEnvProd = "production"

	EnvAppEnv           = "POSSTACK_APP_ENV"
	EnvStoreBaseURL     = "POSSTACK_STORE_BASE_URL"
	EnvStoreAppID       = "POSSTACK_STORE_APP_ID"
	EnvStoreAdminToken  = "POSSTACK_STORE_ADMIN_TOKEN"
	EnvBackupPassphrase = "POSSTACK_BACKUP_PASSPHRASE"
)

type Config struct {
	App      AppConfig
	Service  ServiceConfig
	Store    StoreConfig
	Backup   BackupConfig
	Archive  ArchiveConfig
	Redis    RedisConfig
	Password PasswordConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env      string `envconfig:"POSSTACK_APP_ENV" required:"true"`
	LogLevel string `envconfig:"POSSTACK_LOG_LEVEL" default:"info"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"POSSTACK_SERVICE_KIND" default:"backupctl"`
}

// StoreConfig points at the hosted document-graph store.
type StoreConfig struct {
	BaseURL     string        `envconfig:"POSSTACK_STORE_BASE_URL" required:"true"`
	AppID       string        `envconfig:"POSSTACK_STORE_APP_ID" required:"true"`
	AdminToken  string        `envconfig:"POSSTACK_STORE_ADMIN_TOKEN" required:"true"`
	CallTimeout time.Duration `envconfig:"POSSTACK_STORE_CALL_TIMEOUT" default:"30s"`
}

type BackupConfig struct {
	Passphrase     string `envconfig:"POSSTACK_BACKUP_PASSPHRASE"`
	AllowPlaintext bool   `envconfig:"POSSTACK_BACKUP_ALLOW_PLAINTEXT" default:"false"`
	Directory      string `envconfig:"POSSTACK_BACKUP_DIR" default:"backup"`
	Enabled        bool   `envconfig:"POSSTACK_BACKUP_ENABLED" default:"true"`

	// IntervalMS wins over IntervalMinutes when both are set; the scheduler
	// falls back to five minutes when neither is usable.
	IntervalMS      int     `envconfig:"POSSTACK_BACKUP_INTERVAL_MS"`
	IntervalMinutes float64 `envconfig:"POSSTACK_BACKUP_INTERVAL_MINUTES"`

	LinkBatchSize    int           `envconfig:"POSSTACK_BACKUP_LINK_BATCH_SIZE" default:"100"`
	RestoreWarnPause time.Duration `envconfig:"POSSTACK_BACKUP_RESTORE_WARN_PAUSE" default:"0s"`
	KeyIterations    int           `envconfig:"POSSTACK_BACKUP_KEY_ITERATIONS" default:"150000"`
	SchedulerLockKey string        `envconfig:"POSSTACK_BACKUP_LOCK_KEY" default:"posstack:backup-worker:lock"`
	SchedulerLockTTL time.Duration `envconfig:"POSSTACK_BACKUP_LOCK_TTL" default:"30m"`
}

const defaultBackupInterval = 5 * time.Minute

// Interval resolves the scheduler cadence from the ms/minutes pair.
func (b BackupConfig) Interval() time.Duration {
	if b.IntervalMS >= 1000 {
		return time.Duration(b.IntervalMS) * time.Millisecond
	}
	if b.IntervalMinutes > 0 {
		return time.Duration(b.IntervalMinutes * float64(time.Minute))
	}
	return defaultBackupInterval
}

// ArchiveConfig describes the optional snapshot record database.
type ArchiveConfig struct {
	DSN             string        `envconfig:"POSSTACK_ARCHIVE_DSN"`
	MaxOpenConns    int           `envconfig:"POSSTACK_ARCHIVE_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `envconfig:"POSSTACK_ARCHIVE_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"POSSTACK_ARCHIVE_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"POSSTACK_ARCHIVE_CONN_MAX_IDLE_TIME" default:"10m"`
}

// Enabled reports whether the archive target is configured at all.
func (a ArchiveConfig) Enabled() bool {
	return strings.TrimSpace(a.DSN) != ""
}

type RedisConfig struct {
	URL          string        `envconfig:"POSSTACK_REDIS_URL"`
	Address      string        `envconfig:"POSSTACK_REDIS_ADDR"`
	Password     string        `envconfig:"POSSTACK_REDIS_PASSWORD"`
	DB           int           `envconfig:"POSSTACK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"POSSTACK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"POSSTACK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"POSSTACK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"POSSTACK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"POSSTACK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether a Redis endpoint is configured.
func (r RedisConfig) Enabled() bool {
	return r.URL != "" || r.Address != ""
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"POSSTACK_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"POSSTACK_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"POSSTACK_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"POSSTACK_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"POSSTACK_ARGON_KEY_LEN" default:"32"`
}
