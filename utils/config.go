package utils

import (
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config carries everything the service reads from the environment. It is
// parsed once in main and handed to constructors explicitly; nothing reads
// os.Getenv past startup.
type Config struct {
	ListenAddr  string `env:"LISTEN_ADDR" envDefault:":5200"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisURL    string `env:"REDIS_URL" envDefault:"redis://localhost:6379"`

	// Worker API credentials (HTTP basic) presented by the compiler and
	// judge processes on every callback.
	APIUsername string `env:"API_USERNAME,required"`
	APIPassword string `env:"API_PASSWORD,required"`

	// Blob store (S3-compatible).
	BlobEndpoint  string `env:"BLOB_ENDPOINT" envDefault:""`
	BlobRegion    string `env:"BLOB_REGION" envDefault:"auto"`
	BlobBucket    string `env:"BLOB_BUCKET,required"`
	BlobAccessKey string `env:"BLOB_ACCESS_KEY_ID,required"`
	BlobSecretKey string `env:"BLOB_ACCESS_KEY_SECRET,required"`

	// Resubmission throttle. A user may submit again only strictly after
	// this much time since their last submission, except right after a
	// compile error.
	MinSubmitInterval time.Duration `env:"MIN_SUBMIT_INTERVAL" envDefault:"24h"`

	// Round plan per match. With both role assignments wanted, keep this
	// even so Swapped alternates over the plan.
	RoundsPerMatch int `env:"ROUNDS_PER_MATCH" envDefault:"2"`

	// Interval of the reconciliation sweep over all matches.
	RefreshInterval time.Duration `env:"REFRESH_INTERVAL" envDefault:"10m"`
}

// LoadConfig reads .env when present, then parses the environment.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
