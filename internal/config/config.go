package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/sirupsen/logrus"
)

const (
	PoolCursorDatabase = "database"
	PoolCursorRedis    = "redis"
)

type Config struct {
	HTTPPort           string   `env:"HTTP_PORT" envDefault:"8080"`
	LogLevel           string   `env:"LOG_LEVEL" envDefault:"info"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`

	DBType     string `env:"DBType" envDefault:"sqlite"`
	DSNURL     string `env:"DSN_URL" envDefault:""`
	DBUser     string `env:"DBUser" envDefault:""`
	DBPassword string `env:"DBPassword" envDefault:""`
	DBAddr     string `env:"DBAddr" envDefault:""`
	DBName     string `env:"DBName" envDefault:"snapkit"`
	DBPath     string `env:"DBPath" envDefault:"datas/snapkit.db"`
	DBPort     string `env:"DBPort" envDefault:"3306"`

	StorageType          string `env:"STORAGE_TYPE" envDefault:"local"`
	StorageLocalDir      string `env:"STORAGE_LOCAL_DIR" envDefault:"datas/images"`
	StoragePublicBaseURL string `env:"STORAGE_PUBLIC_BASE_URL" envDefault:"/files"`

	// S3 兼容存储配置
	StorageS3Region          string `env:"STORAGE_S3_REGION"`
	StorageS3Bucket          string `env:"STORAGE_S3_BUCKET"`
	StorageS3Prefix          string `env:"STORAGE_S3_PREFIX"`
	StorageS3Endpoint        string `env:"STORAGE_S3_ENDPOINT"`
	StorageS3AccessKeyID     string `env:"STORAGE_S3_ACCESS_KEY_ID"`
	StorageS3SecretAccessKey string `env:"STORAGE_S3_SECRET_ACCESS_KEY"`
	StorageS3SessionToken    string `env:"STORAGE_S3_SESSION_TOKEN"`
	StorageS3ForcePathStyle  bool   `env:"STORAGE_S3_FORCE_PATH_STYLE" envDefault:"false"`

	// 阿里云 OSS 存储配置
	StorageOSSEndpoint        string `env:"STORAGE_OSS_ENDPOINT"`
	StorageOSSBucket          string `env:"STORAGE_OSS_BUCKET"`
	StorageOSSPrefix          string `env:"STORAGE_OSS_PREFIX"`
	StorageOSSAccessKeyID     string `env:"STORAGE_OSS_ACCESS_KEY_ID"`
	StorageOSSAccessKeySecret string `env:"STORAGE_OSS_ACCESS_KEY_SECRET"`

	// 腾讯云 COS 存储配置
	StorageCOSBucketURL string `env:"STORAGE_COS_BUCKET_URL"`
	StorageCOSPrefix    string `env:"STORAGE_COS_PREFIX"`
	StorageCOSSecretID  string `env:"STORAGE_COS_SECRET_ID"`
	StorageCOSSecretKey string `env:"STORAGE_COS_SECRET_KEY"`

	// Cloudflare R2 存储配置
	StorageR2AccountID       string `env:"STORAGE_R2_ACCOUNT_ID"`
	StorageR2Endpoint        string `env:"STORAGE_R2_ENDPOINT"`
	StorageR2Region          string `env:"STORAGE_R2_REGION" envDefault:"auto"`
	StorageR2Bucket          string `env:"STORAGE_R2_BUCKET"`
	StorageR2Prefix          string `env:"STORAGE_R2_PREFIX"`
	StorageR2AccessKeyID     string `env:"STORAGE_R2_ACCESS_KEY_ID"`
	StorageR2SecretAccessKey string `env:"STORAGE_R2_SECRET_ACCESS_KEY"`

	// 生成模型
	GenerationDriver         string `env:"GENERATION_DRIVER" envDefault:"gemini"`
	GenerationModel          string `env:"GENERATION_MODEL" envDefault:"gemini-2.0-flash"`
	GenerationBaseURL        string `env:"GENERATION_BASE_URL" envDefault:""`
	GenerationTimeoutSeconds int    `env:"GENERATION_TIMEOUT_SECONDS" envDefault:"60"`
	GenerationMaxAttempts    int    `env:"GENERATION_MAX_ATTEMPTS" envDefault:"3"`
	GenerationRetryBackoffMS int    `env:"GENERATION_RETRY_BACKOFF_MS" envDefault:"300"`

	// 免费额度
	FreeGenerationsLimit int  `env:"FREE_GENERATIONS_LIMIT" envDefault:"3"`
	QuotaStrict          bool `env:"QUOTA_STRICT" envDefault:"false"`
	MaxUploadMB          int  `env:"MAX_UPLOAD_MB" envDefault:"10"`

	// 管理员密钥池
	PoolAPIKeys    []string `env:"POOL_API_KEYS" envSeparator:","`
	PoolKeysFile   string   `env:"POOL_KEYS_FILE" envDefault:""`
	PoolCursor     string   `env:"POOL_CURSOR" envDefault:"database"`
	RedisAddr      string   `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword  string   `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB        int      `env:"REDIS_DB" envDefault:"0"`
	RedisCursorKey string   `env:"REDIS_CURSOR_KEY" envDefault:"snapkit:pool:cursor"`

	JWTSecret            string `env:"JWT_SECRET" envDefault:"dev-secret-change-me"`
	JWTIssuer            string `env:"JWT_ISSUER" envDefault:"snapkit"`
	JWTExpirationMinutes int    `env:"JWT_EXPIRATION_MINUTES" envDefault:"1440"`
	AllowRegistration    bool   `env:"ALLOW_REGISTRATION" envDefault:"true"`
}

func ParseConfig() (Config, error) {
	var Conf Config
	err := env.Parse(&Conf)
	if err != nil {
		logrus.WithError(err).Error("env.Parse error")
		return Config{}, err
	}
	if err := Conf.Validate(); err != nil {
		return Config{}, err
	}
	return Conf, nil
}

// Validate 校验数值型配置，避免出现无限重试或零额度
func (c *Config) Validate() error {
	if c.GenerationMaxAttempts < 1 {
		return fmt.Errorf("GENERATION_MAX_ATTEMPTS must be >= 1, got %d", c.GenerationMaxAttempts)
	}
	if c.GenerationRetryBackoffMS < 0 {
		return fmt.Errorf("GENERATION_RETRY_BACKOFF_MS must be >= 0, got %d", c.GenerationRetryBackoffMS)
	}
	if c.GenerationTimeoutSeconds < 1 {
		return fmt.Errorf("GENERATION_TIMEOUT_SECONDS must be >= 1, got %d", c.GenerationTimeoutSeconds)
	}
	if c.FreeGenerationsLimit < 1 {
		return fmt.Errorf("FREE_GENERATIONS_LIMIT must be >= 1, got %d", c.FreeGenerationsLimit)
	}
	if c.MaxUploadMB < 1 {
		return fmt.Errorf("MAX_UPLOAD_MB must be >= 1, got %d", c.MaxUploadMB)
	}
	switch strings.ToLower(strings.TrimSpace(c.PoolCursor)) {
	case PoolCursorDatabase, PoolCursorRedis:
	default:
		return fmt.Errorf("unsupported POOL_CURSOR %q", c.PoolCursor)
	}
	return nil
}

func (c *Config) GenerationTimeout() time.Duration {
	return time.Duration(c.GenerationTimeoutSeconds) * time.Second
}

func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.GenerationRetryBackoffMS) * time.Millisecond
}

func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// LogrusLevel 解析 LOG_LEVEL，非法值回退到 info
func (c *Config) LogrusLevel() logrus.Level {
	level, err := logrus.ParseLevel(strings.TrimSpace(c.LogLevel))
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}
