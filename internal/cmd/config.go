package main

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/joshuahaertel/friendexing/internal/imagery"
	"github.com/joshuahaertel/friendexing/internal/store"
)

// Config is the process configuration: a yaml file with environment
// overrides for the deployment-specific values.
type Config struct {
	Addr      string `yaml:"addr"`
	PublicURL string `yaml:"public_url"`

	Store   store.Config         `yaml:"store"`
	NATSURL string               `yaml:"nats_url"`
	Imagery imagery.ClientConfig `yaml:"imagery"`

	ImageQueueSize int `yaml:"image_queue_size"`
}

func defaultConfig() Config {
	return Config{
		Addr:           ":8080",
		PublicURL:      "http://localhost:8080",
		Store:          store.Config{Addr: "localhost:6379"},
		Imagery:        imagery.DefaultClientConfig(),
		ImageQueueSize: 16,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// loadConfig reads the yaml config when present and applies environment
// overrides on top. A missing file is not an error; the defaults stand.
func loadConfig(path string) (Config, error) {
	config := defaultConfig()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &config); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	config.Addr = ":" + getEnv("PORT", trimLeadingColon(config.Addr))
	config.PublicURL = getEnv("PUBLIC_URL", config.PublicURL)
	config.Store.Addr = getEnv("REDIS_ADDR", config.Store.Addr)
	config.Store.Password = getEnv("REDIS_PASSWORD", config.Store.Password)
	config.Store.DB = getEnvAsInt("REDIS_DB", config.Store.DB)
	config.NATSURL = getEnv("NATS_URL", config.NATSURL)
	return config, nil
}

func trimLeadingColon(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return addr[1:]
	}
	return addr
}
