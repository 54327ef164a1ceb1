package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"rewind/api/retry"
)

const (
	ProviderCloudFormation = "cloudformation"
	ProviderNomad          = "nomad"
)

type Config struct {
	Stage    string
	Region   string
	Project  string // path to rewind.yaml
	Provider string // cloudformation or nomad
	Bucket   string // overrides the stack's deployment bucket lookup

	NomadAddr      string
	NomadNamespace string

	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3UseSSL    bool

	PollInterval   time.Duration
	MonitorTimeout time.Duration
	PollRetries    int

	Port           string
	BindAddr       string
	APIToken       string
	AllowedOrigins string
	LogLevel       string
}

func Load() *Config {
	return &Config{
		Stage:    envOr("REWIND_STAGE", "dev"),
		Region:   envOr("REWIND_REGION", envOr("AWS_REGION", "us-east-1")),
		Project:  envOr("REWIND_PROJECT", "rewind.yaml"),
		Provider: envOr("REWIND_PROVIDER", ProviderCloudFormation),
		Bucket:   os.Getenv("REWIND_BUCKET"),

		NomadAddr:      envOr("REWIND_NOMAD_ADDR", "http://localhost:4646"),
		NomadNamespace: envOr("REWIND_NOMAD_NAMESPACE", "default"),

		S3Endpoint:  envOr("REWIND_S3_ENDPOINT", "s3.amazonaws.com"),
		S3AccessKey: os.Getenv("REWIND_S3_ACCESS_KEY"),
		S3SecretKey: os.Getenv("REWIND_S3_SECRET_KEY"),
		S3UseSSL:    os.Getenv("REWIND_S3_USE_SSL") != "false",

		PollInterval:   seconds("REWIND_POLL_INTERVAL", 5),
		MonitorTimeout: seconds("REWIND_MONITOR_TIMEOUT", 1800),
		PollRetries:    intOr("REWIND_POLL_RETRIES", 3),

		Port:           envOr("REWIND_PORT", "8810"),
		BindAddr:       envOr("REWIND_BIND_ADDR", "127.0.0.1"),
		APIToken:       os.Getenv("REWIND_API_TOKEN"),
		AllowedOrigins: os.Getenv("REWIND_ALLOWED_ORIGINS"),
		LogLevel:       envOr("REWIND_LOG_LEVEL", "info"),
	}
}

// Retry is the transient-failure policy for listing and status polls.
func (c *Config) Retry() retry.Policy {
	p := retry.Default
	p.Retries = c.PollRetries
	return p
}

// Origins splits AllowedOrigins, dropping blanks.
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intOr(key string, fallback int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func seconds(key string, fallback int) time.Duration {
	n := intOr(key, fallback)
	if n == 0 {
		n = fallback
	}
	return time.Duration(n) * time.Second
}
