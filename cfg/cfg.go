package cfg

import (
	"errors"
	"fmt"
	"time"

	"github.com/thep200/github-star-sweeper/internal/partition"
)

// Sink kinds
const (
	SinkDatabase = "database"
	SinkKafka    = "kafka"
	SinkLog      = "log"
)

var ErrMissingAccessToken = errors.New("github access token is not set (GITHUB_TOKEN)")

type (
	App struct {
		Name        string
		Version     string
		WatchConfig bool
	}

	Log struct {
		Driver      string
		Level       string
		Development bool
	}

	Database struct {
		Driver                string
		Host                  string
		Port                  string
		Username              string
		Password              string
		Database              string
		SSLMode               string
		Path                  string
		MaxIdleConnection     int
		MaxOpenConnection     int
		MaxLifeTimeConnection int
		BatchSize             int
	}

	GithubApi struct {
		AccessToken              string
		ApiUrl                   string
		UserAgent                string
		Timeout                  time.Duration
		RateLimitRemainingHeader string
		RateLimitResetHeader     string
		RequestsPerSecond        int
	}

	Sweep struct {
		Sink            string
		PageSize        int
		MaxRepositories int
		PageDelay       time.Duration
		Qualifiers      string
		Bands           []partition.Band
	}

	Retry struct {
		MaxAttempts       int
		Backoff           time.Duration
		MaxBackoff        time.Duration
		Multiplier        float64
		AppErrorBackoff   time.Duration
		MinRateLimitWait  time.Duration
		RateLimitFallback time.Duration
	}

	KafkaProducer struct {
		TopicRepo string
	}

	Kafka struct {
		Brokers  []string
		GroupID  string
		Producer KafkaProducer
	}

	Server struct {
		Port int
	}

	Metrics struct {
		PushgatewayUrl string
		Job            string
	}
)

type Config struct {
	App       App
	Log       Log
	Database  Database
	GithubApi GithubApi
	Sweep     Sweep
	Retry     Retry
	Kafka     Kafka
	Server    Server
	Metrics   Metrics
}

// DefaultBands trả về cấu hình phân vùng mặc định: dày ở vùng ít sao, thưa ở vùng nhiều sao.
// The boundaries are a starting point only; density drifts and they are meant to be tuned.
func DefaultBands() []partition.Band {
	return []partition.Band{
		{Min: 0, Max: 99, Width: 1},
		{Min: 100, Max: 499, Width: 5},
		{Min: 500, Max: 999, Width: 10},
		{Min: 1000, Max: 4999, Width: 50},
		{Min: 5000, Max: 19999, Width: 250, Growth: 1.5},
		{Min: 20000, Max: 99999, Width: 5000, Growth: 2},
		{Min: 100000, Open: true},
	}
}

// Validate reports configuration that would make a sweep meaningless or unsafe.
func (c *Config) Validate() error {
	if c.GithubApi.AccessToken == "" {
		return ErrMissingAccessToken
	}
	if c.GithubApi.ApiUrl == "" {
		return errors.New("githubApi.apiUrl is required")
	}
	if c.Sweep.PageSize < 1 || c.Sweep.PageSize > 100 {
		return fmt.Errorf("sweep.pageSize must be between 1 and 100, got %d", c.Sweep.PageSize)
	}
	if c.Sweep.MaxRepositories < 0 {
		return fmt.Errorf("sweep.maxRepositories must not be negative, got %d", c.Sweep.MaxRepositories)
	}
	switch c.Sweep.Sink {
	case SinkDatabase, SinkLog:
	case SinkKafka:
		if len(c.Kafka.Brokers) == 0 {
			return errors.New("kafka.brokers is required for the kafka sink")
		}
		if c.Kafka.Producer.TopicRepo == "" {
			return errors.New("kafka.producer.topicRepo is required for the kafka sink")
		}
	default:
		return fmt.Errorf("unsupported sweep.sink %q", c.Sweep.Sink)
	}
	if c.Retry.MaxAttempts < 0 {
		return fmt.Errorf("retry.maxAttempts must not be negative, got %d", c.Retry.MaxAttempts)
	}
	partitioner, err := partition.New(c.Sweep.Bands, c.Sweep.Qualifiers)
	if err != nil {
		return fmt.Errorf("sweep.bands: %w", err)
	}
	if err := partition.CheckCoverage(partitioner.Predicates(), partitioner.DomainMin()); err != nil {
		return fmt.Errorf("sweep.bands: %w", err)
	}
	return nil
}
