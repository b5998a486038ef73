package configuration

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Storage  StorageConfig
	Uploader UploaderConfig
	Image    ImageConfig
	Auth     AuthConfig
	NATSURL  string `env:"NATS_URL"`
	Redis    RedisConfig
	Tracing  TracingConfig
}

type ServerConfig struct {
	ServiceName     string        `env:"SERVICE_NAME" envDefault:"upload-service"`
	Environment     string        `env:"ENVIRONMENT" envDefault:"development"`
	Port            int           `env:"SERVER_PORT" envDefault:"8080"`
	LogEnabled      bool          `env:"LOG_ENABLED" envDefault:"true"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	Debug           bool          `env:"APP_DEBUG" envDefault:"false"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

type DatabaseConfig struct {
	Driver          string        `env:"DB_DRIVER" envDefault:"postgres"`
	Host            string        `env:"DB_HOST" envDefault:"localhost"`
	Port            string        `env:"DB_PORT" envDefault:"5432"`
	User            string        `env:"DB_USER" envDefault:"fileuser"`
	Password        string        `env:"DB_PASSWORD" envDefault:"filepassword"`
	DBName          string        `env:"DB_NAME" envDefault:"filemanager"`
	SSLMode         string        `env:"DB_SSL_MODE" envDefault:"disable"`
	SQLitePath      string        `env:"DB_SQLITE_PATH" envDefault:"uploads.db"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"25"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"5m"`
}

type StorageConfig struct {
	Disk         string `env:"UPLOADER_DISK" envDefault:"local"`
	Directory    string `env:"UPLOADER_DIRECTORY" envDefault:"uploads"`
	LocalRoot    string `env:"LOCAL_STORAGE_ROOT" envDefault:"./storage"`
	LocalBaseURL string `env:"LOCAL_STORAGE_BASE_URL" envDefault:"http://localhost:8080/files"`
	MinIO        MinIOConfig
	S3           S3Config
}

type MinIOConfig struct {
	Endpoint   string `env:"MINIO_ENDPOINT" envDefault:"localhost:9000"`
	AccessKey  string `env:"MINIO_ACCESS_KEY" envDefault:"minioadmin"`
	SecretKey  string `env:"MINIO_SECRET_KEY" envDefault:"minioadmin"`
	BucketName string `env:"MINIO_BUCKET" envDefault:"uploads"`
	UseSSL     bool   `env:"MINIO_USE_SSL" envDefault:"false"`
	PublicURL  string `env:"MINIO_PUBLIC_URL"`
}

type S3Config struct {
	Endpoint     string `env:"S3_ENDPOINT"`
	Region       string `env:"S3_REGION" envDefault:"us-east-1"`
	Bucket       string `env:"S3_BUCKET"`
	AccessKeyID  string `env:"S3_ACCESS_KEY_ID"`
	SecretKey    string `env:"S3_SECRET_ACCESS_KEY"`
	UsePathStyle bool   `env:"S3_USE_PATH_STYLE" envDefault:"true"`
	PublicURL    string `env:"S3_PUBLIC_URL"`
}

// UploaderConfig holds the ingestion and listing policy.
type UploaderConfig struct {
	AllowedExtensions []string `env:"UPLOADER_ALLOWED_EXTENSIONS" envSeparator:"," envDefault:"jpg,jpeg,png,gif,pdf,doc,docx,xls,xlsx"`
	MaxSizeKB         int64    `env:"UPLOADER_MAX_SIZE_KB" envDefault:"2048"`
	StrictMime        bool     `env:"UPLOADER_STRICT_MIME" envDefault:"true"`
	SaveToDB          bool     `env:"UPLOADER_SAVE_TO_DB" envDefault:"true"`
	SoftDeletes       bool     `env:"UPLOADER_SOFT_DELETES" envDefault:"true"`
	AllowGuests       bool     `env:"UPLOADER_ALLOW_GUESTS" envDefault:"true"`
	GuestLimit        int64    `env:"UPLOADER_GUEST_LIMIT" envDefault:"10"`
	CheckDuplicates   bool     `env:"UPLOADER_CHECK_DUPLICATES" envDefault:"true"`
	ReturnExisting    bool     `env:"UPLOADER_RETURN_EXISTING" envDefault:"true"`
	PerPage           int      `env:"UPLOADER_PER_PAGE" envDefault:"15"`
	PerPageMax        int      `env:"UPLOADER_PER_PAGE_MAX" envDefault:"100"`
}

// MaxSizeBytes converts the KB limit into bytes.
func (u UploaderConfig) MaxSizeBytes() int64 {
	return u.MaxSizeKB * 1024
}

type ImageConfig struct {
	Driver           string `env:"IMAGE_DRIVER" envDefault:"imaging"`
	Optimize         bool   `env:"IMAGE_OPTIMIZATION" envDefault:"true"`
	Quality          int    `env:"IMAGE_QUALITY" envDefault:"85"`
	AutoOrient       bool   `env:"IMAGE_AUTO_ORIENT" envDefault:"true"`
	Thumbnails       bool   `env:"THUMBNAILS_ENABLED" envDefault:"true"`
	ThumbnailSizes   []int  `env:"THUMBNAIL_SIZES" envSeparator:"," envDefault:"150,300,600"`
	ThumbnailQuality int    `env:"THUMBNAIL_QUALITY" envDefault:"80"`
	ThumbnailsAsync  bool   `env:"THUMBNAILS_ASYNC" envDefault:"false"`
}

type AuthConfig struct {
	KeycloakURL string `env:"KEYCLOAK_URL"`
	AllowedAZP  string `env:"OIDC_ALLOWED_AZP" envDefault:"frontend"`
	AdminRole   string `env:"ADMIN_ROLE" envDefault:"uploader-admin"`
}

type RedisConfig struct {
	URL     string        `env:"REDIS_URL"`
	LockTTL time.Duration `env:"LOCK_TTL" envDefault:"30s"`
}

type TracingConfig struct {
	DDEnabled bool `env:"DD_TRACE_ENABLED" envDefault:"false"`
}

// Load reads an optional .env file, then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return Parse()
}

// Parse builds a Config from the process environment only.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	exts := make([]string, 0, len(c.Uploader.AllowedExtensions))
	for _, ext := range c.Uploader.AllowedExtensions {
		ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
		if ext != "" {
			exts = append(exts, ext)
		}
	}
	c.Uploader.AllowedExtensions = exts
	c.Storage.Disk = strings.ToLower(strings.TrimSpace(c.Storage.Disk))
	c.Storage.Directory = strings.Trim(strings.TrimSpace(c.Storage.Directory), "/")
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	c.Image.Driver = strings.ToLower(strings.TrimSpace(c.Image.Driver))
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Disk {
	case "local", "minio", "s3":
	default:
		errs = append(errs, fmt.Errorf("UPLOADER_DISK %q is not one of local, minio, s3", c.Storage.Disk))
	}
	if c.Storage.Directory == "" {
		errs = append(errs, errors.New("UPLOADER_DIRECTORY must not be empty"))
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER %q is not one of postgres, sqlite", c.Database.Driver))
	}
	switch c.Image.Driver {
	case "imaging", "basic", "none":
	default:
		errs = append(errs, fmt.Errorf("IMAGE_DRIVER %q is not one of imaging, basic, none", c.Image.Driver))
	}
	if len(c.Uploader.AllowedExtensions) == 0 {
		errs = append(errs, errors.New("UPLOADER_ALLOWED_EXTENSIONS must list at least one extension"))
	}
	if c.Uploader.MaxSizeKB <= 0 {
		errs = append(errs, errors.New("UPLOADER_MAX_SIZE_KB must be positive"))
	}
	if c.Image.Quality < 1 || c.Image.Quality > 100 {
		errs = append(errs, fmt.Errorf("IMAGE_QUALITY must be between 1 and 100, got %d", c.Image.Quality))
	}
	if c.Image.ThumbnailQuality < 1 || c.Image.ThumbnailQuality > 100 {
		errs = append(errs, fmt.Errorf("THUMBNAIL_QUALITY must be between 1 and 100, got %d", c.Image.ThumbnailQuality))
	}
	for _, size := range c.Image.ThumbnailSizes {
		if size <= 0 {
			errs = append(errs, fmt.Errorf("THUMBNAIL_SIZES contains non-positive size %d", size))
		}
	}
	if c.Uploader.PerPage < 1 || c.Uploader.PerPageMax < 1 || c.Uploader.PerPage > c.Uploader.PerPageMax {
		errs = append(errs, fmt.Errorf("UPLOADER_PER_PAGE (%d) must be between 1 and UPLOADER_PER_PAGE_MAX (%d)",
			c.Uploader.PerPage, c.Uploader.PerPageMax))
	}
	if c.Uploader.GuestLimit < 0 {
		errs = append(errs, errors.New("UPLOADER_GUEST_LIMIT must not be negative"))
	}
	return errors.Join(errs...)
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Server.Environment, "development")
}
