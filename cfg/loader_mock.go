package cfg

import "time"

type MockLoader struct {
	// Override, when set, is applied to the default config before it is returned.
	Override func(*Config)
}

func NewMockLoader() (*MockLoader, error) {
	return &MockLoader{}, nil
}

func (ml *MockLoader) Load() (*Config, error) {
	config := Default()
	config.GithubApi.AccessToken = "test-token"
	config.Database.Driver = "sqlite"
	config.Database.Path = "file::memory:"
	if ml.Override != nil {
		ml.Override(config)
	}
	return config, nil
}

// Default returns the built-in configuration, the same values the viper loader starts from.
func Default() *Config {
	return &Config{
		// App
		App: App{
			Name:    "github-star-sweeper",
			Version: "0.1.0",
		},

		// Log
		Log: Log{
			Driver: "console",
			Level:  "info",
		},

		// Database
		Database: Database{
			Driver:                "postgres",
			Host:                  "localhost",
			Port:                  "5432",
			Username:              "postgres",
			Password:              "postgres",
			Database:              "github_data",
			SSLMode:               "disable",
			MaxIdleConnection:     2,
			MaxOpenConnection:     4,
			MaxLifeTimeConnection: 3600,
			BatchSize:             100,
		},

		// GithubApi
		GithubApi: GithubApi{
			ApiUrl:                   "https://api.github.com/graphql",
			UserAgent:                "github-star-sweeper",
			Timeout:                  30 * time.Second,
			RateLimitRemainingHeader: "X-RateLimit-Remaining",
			RateLimitResetHeader:     "X-RateLimit-Reset",
		},

		// Sweep
		Sweep: Sweep{
			Sink:            SinkDatabase,
			PageSize:        100,
			MaxRepositories: 100000,
			PageDelay:       time.Second,
			Bands:           DefaultBands(),
		},

		// Retry
		Retry: Retry{
			MaxAttempts:       10,
			Backoff:           10 * time.Second,
			MaxBackoff:        2 * time.Minute,
			Multiplier:        1,
			AppErrorBackoff:   5 * time.Second,
			MinRateLimitWait:  5 * time.Second,
			RateLimitFallback: time.Minute,
		},

		// Kafka
		Kafka: Kafka{
			GroupID: "repositories-consumer-group",
			Producer: KafkaProducer{
				TopicRepo: "github.repositories",
			},
		},

		Server: Server{Port: 8080},

		Metrics: Metrics{Job: "github_star_sweeper"},
	}
}
