package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the process configuration, loaded from the environment.
type Config struct {
	AppEnv    string
	Port      string
	LogLevel  string
	LogFormat string

	RedisURL       string
	RedisNamespace string

	ElasticsearchAddrs    []string
	ElasticsearchUser     string
	ElasticsearchPassword string

	S3Bucket  string
	AWSRegion string

	ProjectsFile string
	ReplayDir    string
	SpillDir     string

	WorkerCount       int
	AnnotationMaxSize int
	LabelThreshold    int
	TrendingMaxSize   int
	TopicsMaxSize     int
	RetweetWeight     float64
	TweetExpiry       time.Duration

	CleanupInterval      time.Duration
	TopicsEpochInterval  time.Duration
	ArchiveFlushInterval time.Duration
	IndexFlushInterval   time.Duration
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:         getEnv("APP_ENV", "development"),
		Port:           getEnv("PORT", "8080"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "text"),
		RedisURL:       getEnv("REDIS_URL", "redis://localhost:6379"),
		RedisNamespace: getEnv("REDIS_NAMESPACE", "cs"),
		ElasticsearchAddrs: strings.Split(
			getEnv("ELASTICSEARCH_ADDRS", "http://localhost:9200"), ","),
		ElasticsearchUser:     getEnv("ELASTICSEARCH_USER", ""),
		ElasticsearchPassword: getEnv("ELASTICSEARCH_PASSWORD", ""),
		S3Bucket:              getEnv("S3_BUCKET", ""),
		AWSRegion:             getEnv("AWS_REGION", ""),
		ProjectsFile:          getEnv("PROJECTS_FILE", "projects.yaml"),
		ReplayDir:             getEnv("REPLAY_DIR", "replay"),
		SpillDir:              getEnv("SPILL_DIR", "spill"),
	}

	var err error
	if cfg.WorkerCount, err = getEnvInt("WORKER_COUNT", 4); err != nil {
		return nil, err
	}
	if cfg.AnnotationMaxSize, err = getEnvInt("ANNOTATION_MAX_SIZE", 1000); err != nil {
		return nil, err
	}
	if cfg.LabelThreshold, err = getEnvInt("LABEL_THRESHOLD", 3); err != nil {
		return nil, err
	}
	if cfg.TrendingMaxSize, err = getEnvInt("TRENDING_MAX_SIZE", 1_000_000); err != nil {
		return nil, err
	}
	if cfg.TopicsMaxSize, err = getEnvInt("TOPICS_MAX_SIZE", 10_000); err != nil {
		return nil, err
	}
	if cfg.RetweetWeight, err = getEnvFloat("RETWEET_WEIGHT", 0.2); err != nil {
		return nil, err
	}
	if cfg.TweetExpiry, err = getEnvDuration("TWEET_EXPIRY", 48*time.Hour); err != nil {
		return nil, err
	}
	if cfg.CleanupInterval, err = getEnvDuration("CLEANUP_INTERVAL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.TopicsEpochInterval, err = getEnvDuration("TOPICS_EPOCH_INTERVAL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.ArchiveFlushInterval, err = getEnvDuration("ARCHIVE_FLUSH_INTERVAL", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.IndexFlushInterval, err = getEnvDuration("INDEX_FLUSH_INTERVAL", time.Minute); err != nil {
		return nil, err
	}

	if cfg.WorkerCount < 1 {
		return nil, fmt.Errorf("WORKER_COUNT must be at least 1")
	}
	if cfg.RetweetWeight < 0 || cfg.RetweetWeight >= 1 {
		return nil, fmt.Errorf("RETWEET_WEIGHT must be in [0, 1), got %g", cfg.RetweetWeight)
	}
	if cfg.LabelThreshold < 1 {
		return nil, fmt.Errorf("LABEL_THRESHOLD must be at least 1")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number: %w", key, err)
	}
	return f, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	return d, nil
}
