package configuration

import (
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/pkg/errors"

	"pricewatch/internal/logger"
)

const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"

	NotifierTelegram = "telegram"
	NotifierFCM      = "fcm"

	minFetchDataInterval = 15 * time.Second
)

type Config struct {
	ServerAddress     string
	DatabaseDriver    string
	DatabaseURI       string
	RedisAddress      string
	RedisPassword     string `json:"-"`
	RedisDB           int
	FetchDataInterval time.Duration
	CycleTimeout      time.Duration
	FetchTimeout      time.Duration
	FetchSpacing      time.Duration
	Workers           int
	Notifier          string
	TelegramBotToken  string `json:"-"`
	FCMKey            string `json:"-"`
	// OpenGraphMarketplaces are served by the generic OpenGraph parser.
	OpenGraphMarketplaces []string
	LogLevel              logger.Level
	LogToFile             bool
	AuthSecretKey         jwk.Key `json:"-"`
	AdminPasswordHash     []byte  `json:"-"`
}

type tomlConfig struct {
	ServerAddress         string   `toml:"server_address"`
	DatabaseDriver        string   `toml:"database_driver"`
	DatabaseURI           string   `toml:"database_uri"`
	RedisAddress          string   `toml:"redis_address"`
	RedisPassword         string   `toml:"redis_password"`
	RedisDB               int      `toml:"redis_db"`
	FetchDataInterval     string   `toml:"fetch_data_interval"`
	CycleTimeout          string   `toml:"cycle_timeout"`
	FetchTimeout          string   `toml:"fetch_timeout"`
	FetchSpacing          string   `toml:"fetch_spacing"`
	Workers               int      `toml:"workers"`
	Notifier              string   `toml:"notifier"`
	TelegramBotToken      string   `toml:"telegram_bot_token"`
	FCMKey                string   `toml:"fcm_key"`
	OpenGraphMarketplaces []string `toml:"opengraph_marketplaces"`
	LogLevel              string   `toml:"log_level"`
	LogToFile             bool     `toml:"log_to_file"`
	AuthSecretKey         string   `toml:"auth_secret_key"`
	AdminPasswordHash     string   `toml:"admin_password_hash"`
}

func GetConfig(path string) (*Config, error) {
	var tc tomlConfig
	_, err := toml.DecodeFile(path, &tc)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode toml file with path: %s", path)
	}
	return tc.toConfig()
}

func ParseConfig(data string) (*Config, error) {
	var tc tomlConfig
	if _, err := toml.Decode(data, &tc); err != nil {
		return nil, errors.Wrap(err, "failed to decode toml config")
	}
	return tc.toConfig()
}

func (tc tomlConfig) toConfig() (*Config, error) {
	if tc.ServerAddress == "" {
		tc.ServerAddress = "localhost:8888"
	}

	tc.DatabaseDriver = strings.ToLower(tc.DatabaseDriver)
	switch tc.DatabaseDriver {
	case "", DriverMongo:
		tc.DatabaseDriver = DriverMongo
		if tc.DatabaseURI == "" {
			tc.DatabaseURI = "mongodb://localhost:27017"
		}
	case DriverPostgres:
		if tc.DatabaseURI == "" {
			tc.DatabaseURI = "postgres://localhost:5432/pricewatch"
		}
	case DriverMemory:
	default:
		return nil, errors.Errorf("invalid database_driver: %s, expected %s, %s or %s",
			tc.DatabaseDriver, DriverMongo, DriverPostgres, DriverMemory)
	}

	if tc.FetchDataInterval == "" {
		return nil, errors.New("fetch_data_interval is not set")
	}
	fetchDataInterval, err := time.ParseDuration(tc.FetchDataInterval)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse fetch_data_interval: %s", tc.FetchDataInterval)
	}
	if fetchDataInterval < minFetchDataInterval {
		return nil, errors.Errorf("fetch_data_interval too short (%v), minimum interval: %v", fetchDataInterval, minFetchDataInterval)
	}

	cycleTimeout, err := parseDurationOr(tc.CycleTimeout, fetchDataInterval, "cycle_timeout")
	if err != nil {
		return nil, err
	}
	fetchTimeout, err := parseDurationOr(tc.FetchTimeout, 15*time.Second, "fetch_timeout")
	if err != nil {
		return nil, err
	}
	fetchSpacing, err := parseDurationOr(tc.FetchSpacing, 300*time.Millisecond, "fetch_spacing")
	if err != nil {
		return nil, err
	}

	if tc.Workers < 0 {
		return nil, errors.Errorf("invalid workers: %d", tc.Workers)
	}
	if tc.Workers == 0 {
		tc.Workers = 4
	}

	tc.Notifier = strings.ToLower(tc.Notifier)
	switch tc.Notifier {
	case "", NotifierTelegram:
		tc.Notifier = NotifierTelegram
		if tc.TelegramBotToken == "" {
			return nil, errors.New("telegram_bot_token is not set")
		}
	case NotifierFCM:
		if tc.FCMKey == "" {
			return nil, errors.New("fcm_key is not set")
		}
	default:
		return nil, errors.Errorf("invalid notifier: %s, expected %s or %s", tc.Notifier, NotifierTelegram, NotifierFCM)
	}

	if tc.LogLevel == "" {
		tc.LogLevel = "INFO"
	}
	logLevel, err := logger.ParseLevel(tc.LogLevel)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse log_level")
	}

	if tc.AuthSecretKey == "" {
		return nil, errors.New("auth_secret_key is not set")
	}
	authSecretKey, err := jwk.FromRaw([]byte(tc.AuthSecretKey))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create key from auth_secret_key")
	}

	return &Config{
		ServerAddress:         tc.ServerAddress,
		DatabaseDriver:        tc.DatabaseDriver,
		DatabaseURI:           tc.DatabaseURI,
		RedisAddress:          tc.RedisAddress,
		RedisPassword:         tc.RedisPassword,
		RedisDB:               tc.RedisDB,
		FetchDataInterval:     fetchDataInterval,
		CycleTimeout:          cycleTimeout,
		FetchTimeout:          fetchTimeout,
		FetchSpacing:          fetchSpacing,
		Workers:               tc.Workers,
		Notifier:              tc.Notifier,
		TelegramBotToken:      tc.TelegramBotToken,
		FCMKey:                tc.FCMKey,
		OpenGraphMarketplaces: tc.OpenGraphMarketplaces,
		LogLevel:              logLevel,
		LogToFile:             tc.LogToFile,
		AuthSecretKey:         authSecretKey,
		AdminPasswordHash:     []byte(tc.AdminPasswordHash),
	}, nil
}

func parseDurationOr(s string, def time.Duration, key string) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to parse %s: %s", key, s)
	}
	if d <= 0 {
		return 0, errors.Errorf("%s must be positive, got %v", key, d)
	}
	return d, nil
}
