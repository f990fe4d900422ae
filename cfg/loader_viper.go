package cfg

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// envBindings maps config keys onto the environment variables operators already use.
var envBindings = map[string][]string{
	"githubapi.accesstoken": {"GITHUB_TOKEN"},
	"database.driver":       {"DB_DRIVER"},
	"database.host":         {"DB_HOST"},
	"database.port":         {"DB_PORT"},
	"database.database":     {"DB_NAME"},
	"database.username":     {"DB_USER"},
	"database.password":     {"DB_PASSWORD"},
	"database.path":         {"DB_PATH"},
	"kafka.brokers":         {"KAFKA_BROKERS"},
	"sweep.sink":            {"SWEEP_SINK"},
	"log.level":             {"LOG_LEVEL"},
}

type ViperLoader struct {
	ConfigPaths []string
	ConfigName  string
	EnvFile     string

	v                     *viper.Viper
	once                  sync.Once
	mu                    sync.RWMutex
	current               *Config
	configChangeCallbacks []func(*Config)
}

// NewViperLoader reads cfg/yaml/mode.yaml (or mode.yaml under the given paths) and the environment.
func NewViperLoader(paths ...string) (*ViperLoader, error) {
	if len(paths) == 0 {
		paths = []string{"cfg/yaml", "."}
	}
	return &ViperLoader{
		ConfigPaths:           paths,
		ConfigName:            "mode",
		EnvFile:               ".env",
		v:                     viper.New(),
		configChangeCallbacks: make([]func(*Config), 0),
	}, nil
}

func (yl *ViperLoader) Load() (*Config, error) {
	var err error
	yl.once.Do(func() {
		err = yl.loadConfig()
		if err == nil && yl.IsWatchChange() {
			yl.v.OnConfigChange(func(e fsnotify.Event) {
				fmt.Printf("[INFO][CONFIG] Config file changed: %s\n", e.Name)
				if errReload := yl.reloadConfig(); errReload != nil {
					fmt.Printf("[ERROR][CONFIG] Failed to reload config: %v\n", errReload)
				}
			})
			yl.v.WatchConfig()
		}
	})

	if err != nil {
		return nil, err
	}

	yl.mu.RLock()
	defer yl.mu.RUnlock()
	return yl.current, nil
}

// IsWatchChange reports whether the config file is watched for changes after the first load.
func (yl *ViperLoader) IsWatchChange() bool {
	yl.mu.RLock()
	defer yl.mu.RUnlock()
	return yl.current != nil && yl.current.App.WatchConfig && yl.v.ConfigFileUsed() != ""
}

func (yl *ViperLoader) RegisterConfigChangeCallback(callback func(*Config)) {
	yl.mu.Lock()
	yl.configChangeCallbacks = append(yl.configChangeCallbacks, callback)
	yl.mu.Unlock()
}

func (yl *ViperLoader) loadConfig() error {
	if yl.EnvFile != "" {
		if err := godotenv.Load(yl.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("[ERROR][CONFIG] failed to read env file %s: %w", yl.EnvFile, err)
		}
	}

	for _, path := range yl.ConfigPaths {
		yl.v.AddConfigPath(path)
	}
	yl.v.SetConfigName(yl.ConfigName)
	yl.v.SetConfigType("yaml")
	for key, envs := range envBindings {
		if err := yl.v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("[ERROR][CONFIG] failed to bind env for %s: %w", key, err)
		}
	}

	// Thiếu file cấu hình thì dùng mặc định + biến môi trường
	if err := yl.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("[ERROR][CONFIG] failed to read config file: %w", err)
		}
	}

	config, err := yl.unmarshal()
	if err != nil {
		return fmt.Errorf("[ERROR][CONFIG] failed to unmarshal config: %w", err)
	}

	yl.mu.Lock()
	yl.current = config
	yl.mu.Unlock()

	return nil
}

func (yl *ViperLoader) unmarshal() (*Config, error) {
	config := Default()
	// Slices are decoded element by element onto existing values, so start from empty ones.
	if yl.v.IsSet("sweep.bands") {
		config.Sweep.Bands = nil
	}
	if yl.v.IsSet("kafka.brokers") {
		config.Kafka.Brokers = nil
	}
	if err := yl.v.Unmarshal(config); err != nil {
		return nil, err
	}
	for i, broker := range config.Kafka.Brokers {
		config.Kafka.Brokers[i] = strings.TrimSpace(broker)
	}
	return config, nil
}

func (yl *ViperLoader) reloadConfig() error {
	config, err := yl.unmarshal()
	if err != nil {
		return fmt.Errorf("[ERROR][CONFIG] failed to unmarshal config during reload: %w", err)
	}

	yl.mu.Lock()
	yl.current = config
	callbacks := make([]func(*Config), len(yl.configChangeCallbacks))
	copy(callbacks, yl.configChangeCallbacks)
	yl.mu.Unlock()

	for _, callback := range callbacks {
		go callback(config)
	}

	fmt.Println("[INFO][CONFIG] Configuration reloaded successfully")
	return nil
}
