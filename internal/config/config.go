package config

import (
	"os"
	"time"

	"github.com/go-yaml/yaml"
)

type Config struct {
	Server Server `yaml:"server"`
	Scorer Scorer `yaml:"scorer"`
}

type Server struct {
	Bind          string `yaml:"bind"`
	PostgresDsn   string `yaml:"postgresDsn"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	RedisDB       int    `yaml:"redisDB"`
	MemcachedAddr string `yaml:"memcachedAddr"`
	EnableTrace   bool   `yaml:"enableTrace"`
	TraceEndpoint string `yaml:"traceEndpoint"`
}

type Scorer struct {
	// Domains allowed to appear in sign-in challenges.
	AllowedDomains []string `yaml:"allowedDomains"`

	// AdminKey guards weight configuration and revocation endpoints.
	AdminKey string `yaml:"adminKey"`

	// TrustedIssuers maps key IDs to hex or base64 encoded public keys
	// accepted for credential signatures.
	TrustedIssuers map[string]string `yaml:"trustedIssuers"`

	NonceTTLSeconds    int `yaml:"nonceTTLSeconds"`
	SessionTTLSeconds  int `yaml:"sessionTTLSeconds"`
	VerifyBudgetMillis int `yaml:"verifyBudgetMillis"`
	RescoreWorkerCount int `yaml:"rescoreWorkerCount"`
}

func (s Scorer) NonceTTL() time.Duration {
	if s.NonceTTLSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(s.NonceTTLSeconds) * time.Second
}

func (s Scorer) SessionTTL() time.Duration {
	if s.SessionTTLSeconds <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(s.SessionTTLSeconds) * time.Second
}

func (s Scorer) VerifyBudget() time.Duration {
	if s.VerifyBudgetMillis <= 0 {
		return 2 * time.Second
	}
	return time.Duration(s.VerifyBudgetMillis) * time.Millisecond
}

func (s Scorer) WorkerCount() int {
	if s.RescoreWorkerCount <= 0 {
		return 1
	}
	return s.RescoreWorkerCount
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
		return Config{}, err
	}

	return config, nil
}
