package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Worker.MaxRetries)
	assert.Equal(t, []time.Duration{5 * time.Second, 15 * time.Second, 45 * time.Second}, cfg.Worker.Backoff)
	assert.Equal(t, "artwork_jobs", cfg.RabbitMQ.JobsQueue)
	assert.Equal(t, "feedback_results", cfg.RabbitMQ.ResultsQueue)
	assert.Equal(t, 1, cfg.RabbitMQ.PrefetchCount)
	assert.Equal(t, 15*time.Second, cfg.Services.Asset.Timeout)
	assert.Equal(t, "feedback_flow_id", cfg.Notification.FeedbackFlowKey)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("RABBITMQ_RESULTS_QUEUE", "grading_results")
	t.Setenv("DATABASE_PORT", "6543")

	cfg, err := load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "grading_results", cfg.RabbitMQ.ResultsQueue)
	assert.Equal(t, 6543, cfg.Database.Port)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		worker  WorkerConfig
		wantErr bool
	}{
		{
			name:   "matching retries and backoff",
			worker: WorkerConfig{MaxRetries: 2, Backoff: []time.Duration{time.Second, 2 * time.Second}},
		},
		{
			name:    "mismatched length",
			worker:  WorkerConfig{MaxRetries: 3, Backoff: []time.Duration{time.Second}},
			wantErr: true,
		},
		{
			name:    "zero delay",
			worker:  WorkerConfig{MaxRetries: 1, Backoff: []time.Duration{0}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{
				Worker:   tt.worker,
				RabbitMQ: RabbitMQConfig{JobsQueue: "jobs", ResultsQueue: "results"},
			}
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDatabaseDSN(t *testing.T) {
	cfg := DatabaseConfig{User: "u", Password: "p", Host: "db", Port: 5432, Name: "artwork", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@db:5432/artwork?sslmode=disable", cfg.DSN())
}
