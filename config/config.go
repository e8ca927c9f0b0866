package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type (
	Config struct {
		HTTP      HTTP
		Log       Log
		PG        PG
		Kafka     Kafka
		Publisher Publisher
		Scheduler Scheduler
		Pledge    Pledge
	}

	HTTP struct {
		Port           string `env:"HTTP_PORT,required"`
		UsePreforkMode bool   `env:"HTTP_USE_PREFORK_MODE" envDefault:"false"`
	}

	Log struct {
		Level string `env:"LOG_LEVEL,required"`
	}

	PG struct {
		PoolMax int    `env:"PG_POOL_MAX,required"`
		URL     string `env:"PG_URL,required"`
	}

	Kafka struct {
		Brokers []string `env:"KAFKA_BROKERS,required"`
	}

	Publisher struct {
		PollInterval        time.Duration `env:"PUBLISHER_POLL_INTERVAL" envDefault:"1s"`
		MarkFailedInterval  time.Duration `env:"PUBLISHER_MARK_FAILED_INTERVAL" envDefault:"2m"`
		ProcessBatchTimeout time.Duration `env:"PUBLISHER_PROCESS_BATCH_TIMEOUT" envDefault:"15s"`
		ShutdownTimeout     time.Duration `env:"PUBLISHER_SHUTDOWN_TIMEOUT" envDefault:"5s"`
		BatchSize           int           `env:"PUBLISHER_BATCH_SIZE" envDefault:"100"`
		MaxAttempts         int           `env:"PUBLISHER_MAX_ATTEMPTS" envDefault:"10"`
	}

	Scheduler struct {
		SweepInterval   time.Duration `env:"SCHEDULER_SWEEP_INTERVAL" envDefault:"24h"`
		SweepTimeout    time.Duration `env:"SCHEDULER_SWEEP_TIMEOUT" envDefault:"5m"`
		ShutdownTimeout time.Duration `env:"SCHEDULER_SHUTDOWN_TIMEOUT" envDefault:"5s"`
		BatchLimit      int           `env:"SCHEDULER_BATCH_LIMIT" envDefault:"1000"`
	}

	Pledge struct {
		UpdateRetries int `env:"PLEDGE_UPDATE_RETRIES" envDefault:"3"`
	}
)

func New() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	return cfg, nil
}
