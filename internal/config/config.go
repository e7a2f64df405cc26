package config

import (
	"os"
	"time"

	"github.com/go-yaml/yaml"
	"github.com/pkg/errors"
)

type Config struct {
	Server     Server `yaml:"server"`
	API        API    `yaml:"api"`
	SchemaPath string `yaml:"schemaPath"`
}

type Server struct {
	Listen        string `yaml:"listen"`
	PostgresDsn   string `yaml:"postgresDsn"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisDB       int    `yaml:"redisDB"`
	MemcachedAddr string `yaml:"memcachedAddr"`
	EnableTrace   bool   `yaml:"enableTrace"`
	TraceEndpoint string `yaml:"traceEndpoint"`
}

type API struct {
	BaseURL            string        `yaml:"baseURL"`
	DefaultPageSize    int           `yaml:"defaultPageSize"`
	MaxPageSize        int           `yaml:"maxPageSize"`
	DescriptorCacheTTL time.Duration `yaml:"descriptorCacheTTL"`
	MaxDepth           int           `yaml:"maxDepth"`
	HydrationDepth     int           `yaml:"hydrationDepth"`
	DocumentCacheTTL   time.Duration `yaml:"documentCacheTTL"` // zero disables the document cache
}

func Load(path string) (Config, error) {

	file, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer file.Close()

	var config Config
	err = yaml.NewDecoder(file).Decode(&config)
	if err != nil {
		return Config{}, errors.Wrap(err, "config.Load")
	}

	config.applyDefaults()

	if config.SchemaPath == "" {
		return Config{}, errors.New("config.Load: schemaPath is required")
	}

	return config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Listen == "" {
		c.Server.Listen = ":8000"
	}
	if c.API.DefaultPageSize <= 0 {
		c.API.DefaultPageSize = 20
	}
	if c.API.MaxPageSize <= 0 {
		c.API.MaxPageSize = 100
	}
	if c.API.DefaultPageSize > c.API.MaxPageSize {
		c.API.DefaultPageSize = c.API.MaxPageSize
	}
	if c.API.DescriptorCacheTTL == 0 {
		c.API.DescriptorCacheTTL = 5 * time.Minute
	}
	if c.API.MaxDepth == 0 {
		c.API.MaxDepth = 32
	}
	if c.API.HydrationDepth <= 0 {
		c.API.HydrationDepth = 3
	}
}
