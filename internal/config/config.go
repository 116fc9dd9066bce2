package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	ReadDatabase DatabaseConfig
	Redis        RedisConfig
	Cache        CacheConfig
	Log          LogConfig
	Worker       WorkerConfig
	ETL          ETLConfig
	Storage      StorageConfig
	Metrics      MetricsConfig
	Categories   CategoryRegistry
}

type ServerConfig struct {
	Host         string
	Port         int
	Env          string
	AllowOrigins string
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	ReadOnly        bool
	MaxConns        int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

type RedisConfig struct {
	Host           string
	Port           int
	Password       string
	DB             int
	PoolSize       int
	ConnectTimeout time.Duration
}

type CacheConfig struct {
	QueryCacheTTL    time.Duration
	MetadataCacheTTL time.Duration
}

type LogConfig struct {
	Level string
}

// MetricsConfig - listen address of the worker and etl /metrics endpoint. The API serves
// /metrics on its own port.
type MetricsConfig struct {
	Addr string
}

type WorkerConfig struct {
	Enabled           bool
	ConsumerGroup     string
	StreamReadTimeout time.Duration
	MaxRetries        int
	RetryBackoff      time.Duration
	ShutdownTimeout   time.Duration
}

// ETLConfig holds the defaults of a climate x infrastructure batch run.
type ETLConfig struct {
	Reduction     string
	ZonalMethod   string
	ConvertLon360 bool
	StateBBox     string
	Parallelism   int
	ZonalWorkers  int
	SourcePrefix  string
	LocalDir      string
	AutoMigrate   bool
}

type StorageConfig struct {
	Backend             string
	Bucket              string
	Region              string
	Endpoint            string
	UsePathStyle        bool
	DownloadPrefix      string
	PresignTTL          time.Duration
	ResponseSizeLimitMB float64
}

func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:         viper.GetString("API_HOST"),
			Port:         viper.GetInt("API_PORT"),
			Env:          viper.GetString("API_ENV"),
			AllowOrigins: viper.GetString("API_ALLOW_ORIGINS"),
		},
		Database:     loadDatabase("DB"),
		ReadDatabase: loadDatabase("READ_DB"),
		Redis: RedisConfig{
			Host:           viper.GetString("REDIS_HOST"),
			Port:           viper.GetInt("REDIS_PORT"),
			Password:       viper.GetString("REDIS_PASSWORD"),
			DB:             viper.GetInt("REDIS_DB"),
			PoolSize:       viper.GetInt("REDIS_POOL_SIZE"),
			ConnectTimeout: time.Duration(viper.GetInt("REDIS_CONNECT_TIMEOUT")) * time.Second,
		},
		Cache: CacheConfig{
			QueryCacheTTL:    time.Duration(viper.GetInt("QUERY_CACHE_TTL")) * time.Second,
			MetadataCacheTTL: time.Duration(viper.GetInt("METADATA_CACHE_TTL")) * time.Second,
		},
		Log: LogConfig{
			Level: viper.GetString("LOG_LEVEL"),
		},
		Metrics: MetricsConfig{
			Addr: viper.GetString("METRICS_ADDR"),
		},
		Worker: WorkerConfig{
			Enabled:           viper.GetBool("WORKER_ENABLED"),
			ConsumerGroup:     viper.GetString("WORKER_CONSUMER_GROUP"),
			StreamReadTimeout: time.Duration(viper.GetInt("WORKER_STREAM_READ_TIMEOUT")) * time.Millisecond,
			MaxRetries:        viper.GetInt("WORKER_MAX_RETRIES"),
			RetryBackoff:      time.Duration(viper.GetInt("WORKER_RETRY_BACKOFF")) * time.Millisecond,
			ShutdownTimeout:   time.Duration(viper.GetInt("WORKER_SHUTDOWN_TIMEOUT")) * time.Second,
		},
		ETL: ETLConfig{
			Reduction:     viper.GetString("ETL_REDUCTION"),
			ZonalMethod:   viper.GetString("ETL_ZONAL_METHOD"),
			ConvertLon360: viper.GetBool("ETL_CONVERT_LON_360"),
			StateBBox:     viper.GetString("ETL_STATE_BBOX"),
			Parallelism:   viper.GetInt("ETL_PARALLELISM"),
			ZonalWorkers:  viper.GetInt("ETL_ZONAL_WORKERS"),
			SourcePrefix:  viper.GetString("ETL_SOURCE_PREFIX"),
			LocalDir:      viper.GetString("ETL_LOCAL_DIR"),
			AutoMigrate:   viper.GetBool("ETL_AUTO_MIGRATE"),
		},
		Storage: StorageConfig{
			Backend:             viper.GetString("STORAGE_BACKEND"),
			Bucket:              viper.GetString("S3_BUCKET"),
			Region:              viper.GetString("S3_REGION"),
			Endpoint:            viper.GetString("S3_ENDPOINT"),
			UsePathStyle:        viper.GetBool("S3_USE_PATH_STYLE"),
			DownloadPrefix:      viper.GetString("S3_BASE_PREFIX_USER_DOWNLOADS"),
			PresignTTL:          time.Duration(viper.GetInt("S3_PRESIGN_TTL")) * time.Second,
			ResponseSizeLimitMB: viper.GetFloat64("DATA_SIZE_RETURN_LIMIT_MB"),
		},
	}

	categories, err := LoadCategories(viper.GetString("OSM_CATEGORIES_FILE"))
	if err != nil {
		return nil, err
	}
	cfg.Categories = categories

	cfg.applyDefaults()

	return cfg, nil
}

func loadDatabase(prefix string) DatabaseConfig {
	key := func(name string) string { return prefix + "_" + name }
	return DatabaseConfig{
		Host:            viper.GetString(key("HOST")),
		Port:            viper.GetInt(key("PORT")),
		User:            viper.GetString(key("USER")),
		Password:        viper.GetString(key("PASSWORD")),
		DBName:          viper.GetString(key("NAME")),
		SSLMode:         viper.GetString(key("SSLMODE")),
		MaxConns:        viper.GetInt(key("MAX_CONNS")),
		MaxIdleConns:    viper.GetInt(key("MAX_IDLE_CONNS")),
		ConnMaxLifetime: time.Duration(viper.GetInt(key("CONN_MAX_LIFETIME"))) * time.Second,
		ConnMaxIdleTime: time.Duration(viper.GetInt(key("CONN_MAX_IDLE_TIME"))) * time.Second,
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = 10
	}

	// The API falls back to the writer coordinates but always opens read-only sessions.
	if c.ReadDatabase.Host == "" {
		ro := c.Database
		ro.User = firstNonEmpty(c.ReadDatabase.User, c.Database.User)
		ro.Password = firstNonEmpty(c.ReadDatabase.Password, c.Database.Password)
		c.ReadDatabase = ro
	}
	c.ReadDatabase.ReadOnly = true
	if c.ReadDatabase.Port == 0 {
		c.ReadDatabase.Port = c.Database.Port
	}
	if c.ReadDatabase.SSLMode == "" {
		c.ReadDatabase.SSLMode = c.Database.SSLMode
	}
	if c.ReadDatabase.MaxConns == 0 {
		c.ReadDatabase.MaxConns = c.Database.MaxConns
	}

	if c.Cache.QueryCacheTTL == 0 {
		c.Cache.QueryCacheTTL = 10 * time.Minute
	}
	if c.Cache.MetadataCacheTTL == 0 {
		c.Cache.MetadataCacheTTL = time.Hour
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}
	if c.Redis.ConnectTimeout == 0 {
		c.Redis.ConnectTimeout = 5 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9090"
	}

	if c.Worker.ConsumerGroup == "" {
		c.Worker.ConsumerGroup = "climate-etl-workers"
	}
	if c.Worker.StreamReadTimeout == 0 {
		c.Worker.StreamReadTimeout = 5000 * time.Millisecond
	}
	if c.Worker.MaxRetries == 0 {
		c.Worker.MaxRetries = 3
	}
	if c.Worker.RetryBackoff == 0 {
		c.Worker.RetryBackoff = 2 * time.Second
	}
	if c.Worker.ShutdownTimeout == 0 {
		c.Worker.ShutdownTimeout = 30 * time.Second
	}

	if c.ETL.Reduction == "" {
		c.ETL.Reduction = "decade_month"
	}
	if c.ETL.ZonalMethod == "" {
		c.ETL.ZonalMethod = "mean"
	}
	if c.ETL.Parallelism == 0 {
		c.ETL.Parallelism = 1
	}
	if c.ETL.ZonalWorkers == 0 {
		c.ETL.ZonalWorkers = 4
	}
	if c.ETL.SourcePrefix == "" {
		c.ETL.SourcePrefix = "climate-risk-map/backend/climate/scenariomip"
	}

	if c.Storage.Backend == "" {
		c.Storage.Backend = "s3"
	}
	if c.Storage.Region == "" {
		c.Storage.Region = "us-west-2"
	}
	if c.Storage.DownloadPrefix == "" {
		c.Storage.DownloadPrefix = "user-downloads/"
	}
	if c.Storage.PresignTTL == 0 {
		c.Storage.PresignTTL = time.Hour
	}
	if c.Storage.ResponseSizeLimitMB == 0 {
		c.Storage.ResponseSizeLimitMB = 5
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// ParseList splits a comma separated value and drops empty entries.
func ParseList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// DSN renders the keyword/value connection string understood by pgx and lib/pq.
func (d *DatabaseConfig) DSN() string {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
	if d.ReadOnly {
		dsn += " default_transaction_read_only=on"
	}
	return dsn
}

// MigrationURL renders the URL form expected by golang-migrate.
func (d *DatabaseConfig) MigrationURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + d.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(d.SSLMode),
	}
	return u.String()
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
