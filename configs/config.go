package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type LogConfig struct {
	Level    string `mapstructure:"level"`
	Prettify bool   `mapstructure:"prettify"`
}

type PipelineConfig struct {
	// FailOnValidationError escalates collected per-transaction validation
	// errors to a block-fatal condition.
	FailOnValidationError bool `mapstructure:"failOnValidationError"`
}

type RunnerConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	Interval       int  `mapstructure:"interval"`
	BlocksPerRun   int  `mapstructure:"blocksPerRun"`
	ParallelBlocks int  `mapstructure:"parallelBlocks"`
	FromBlock      int  `mapstructure:"fromBlock"`
	UntilBlock     int  `mapstructure:"untilBlock"`
}

type RetryerConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	Interval     int  `mapstructure:"interval"`
	BlocksPerRun int  `mapstructure:"blocksPerRun"`
}

type StorageConfig struct {
	Registry StorageConnectionConfig `mapstructure:"registry"`
	Main     StorageConnectionConfig `mapstructure:"main"`
	Raw      StorageConnectionConfig `mapstructure:"raw"`
}

type StorageConnectionConfig struct {
	Clickhouse *ClickhouseConfig `mapstructure:"clickhouse"`
	Postgres   *PostgresConfig   `mapstructure:"postgres"`
	S3         *S3Config         `mapstructure:"s3"`
	Memory     *MemoryConfig     `mapstructure:"memory"`
}

type ClickhouseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Username       string `mapstructure:"username"`
	Password       string `mapstructure:"password"`
	Database       string `mapstructure:"database"`
	SSLMode        string `mapstructure:"sslMode"`
	MaxOpenConns   int    `mapstructure:"maxOpenConns"`
	MaxIdleConns   int    `mapstructure:"maxIdleConns"`
	ConnectTimeout int    `mapstructure:"connectTimeout"`
}

type S3Config struct {
	Bucket string `mapstructure:"bucket"`
	Region string `mapstructure:"region"`
	Prefix string `mapstructure:"prefix"`
}

type MemoryConfig struct {
	MaxItems int `mapstructure:"maxItems"`
}

type PublisherConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Brokers  string `mapstructure:"brokers"`
	Topic    string `mapstructure:"topic"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// ContractConfig binds a deployed contract instance to a transformer type.
// A nil Active flag means active.
type ContractConfig struct {
	Name    string `mapstructure:"name"`
	Address string `mapstructure:"address"`
	Type    string `mapstructure:"type"`
	Active  *bool  `mapstructure:"active"`
}

// RuleConfig enables a single event for a contract type. A nil Active flag
// means active.
type RuleConfig struct {
	Name         string `mapstructure:"name"`
	ContractType string `mapstructure:"contractType"`
	Event        string `mapstructure:"event"`
	Active       *bool  `mapstructure:"active"`
}

type Config struct {
	Log       LogConfig        `mapstructure:"log"`
	Pipeline  PipelineConfig   `mapstructure:"pipeline"`
	Runner    RunnerConfig     `mapstructure:"runner"`
	Retryer   RetryerConfig    `mapstructure:"retryer"`
	Storage   StorageConfig    `mapstructure:"storage"`
	Publisher PublisherConfig  `mapstructure:"publisher"`
	Contracts []ContractConfig `mapstructure:"contracts"`
	Rules     []RuleConfig     `mapstructure:"rules"`
}

// Load reads the config file (plus env overrides) and validates it.
// Malformed entries are rejected here, before any block is processed.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./configs")
	}
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// sets e.g. RUNNER_INTERVAL to runner.interval
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	for i, contract := range c.Contracts {
		if contract.Address == "" {
			return fmt.Errorf("contracts[%d]: address is required", i)
		}
		if contract.Type == "" {
			return fmt.Errorf("contracts[%d] (%s): type is required", i, contract.Address)
		}
	}
	for i, rule := range c.Rules {
		if rule.ContractType == "" || rule.Event == "" {
			return fmt.Errorf("rules[%d] (%s): contractType and event are required", i, rule.Name)
		}
	}
	return nil
}
