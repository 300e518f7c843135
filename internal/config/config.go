// Package config loads the control-plane configuration: defaults, an
// optional petrel.yaml, and PETREL_* environment overrides.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the control-plane configuration.
type Config struct {
	// Server settings
	HTTPPort int
	LogLevel string

	// WebSocket settings
	PingInterval    time.Duration
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	MaxMessageSize  int64
	SendBufferSize  int
	InboundRate     float64 // inbound control messages per second per connection
	InboundBurst    int
	DefaultChannels []string

	// Liveness settings
	NodeTTL         time.Duration
	AgentTTL        time.Duration
	SweepInterval   time.Duration
	MetricsInterval time.Duration

	// Credit policy. These are policy values carried from operations, not
	// derived quantities.
	CreditEarningRate      float64 // credits accrued per node heartbeat
	SubmissionCost         float64 // credits per job submission
	HighPriorityMultiplier float64
	RefundFraction         float64 // fraction refunded on cancellation

	// Storage
	DatabaseDSN string
	RedisAddr   string // empty disables the redis stats sink
}

// Load reads configuration. A missing config file is fine; defaults and
// environment cover everything.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("http_port", 8080)
	v.SetDefault("log_level", "info")

	v.SetDefault("ws.ping_interval", "30s")
	v.SetDefault("ws.write_timeout", "10s")
	v.SetDefault("ws.read_timeout", "60s")
	v.SetDefault("ws.max_message_size", 65536)
	v.SetDefault("ws.send_buffer_size", 256)
	v.SetDefault("ws.inbound_rate", 20.0)
	v.SetDefault("ws.inbound_burst", 40)
	v.SetDefault("ws.default_channels", "jobs,nodes,agents")

	v.SetDefault("liveness.node_ttl", "5m")
	v.SetDefault("liveness.agent_ttl", "10m")
	v.SetDefault("liveness.sweep_interval", "1m")
	v.SetDefault("liveness.metrics_interval", "30s")

	v.SetDefault("credits.earning_rate", 0.01)
	v.SetDefault("credits.submission_cost", 1.0)
	v.SetDefault("credits.high_priority_multiplier", 2.0)
	v.SetDefault("credits.refund_fraction", 0.5)

	v.SetDefault("database_dsn", "petrel.db")
	v.SetDefault("redis_addr", "")

	v.SetConfigName("petrel")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/petrel")

	v.SetEnvPrefix("PETREL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	return &Config{
		HTTPPort: v.GetInt("http_port"),
		LogLevel: v.GetString("log_level"),

		PingInterval:    v.GetDuration("ws.ping_interval"),
		WriteTimeout:    v.GetDuration("ws.write_timeout"),
		ReadTimeout:     v.GetDuration("ws.read_timeout"),
		MaxMessageSize:  v.GetInt64("ws.max_message_size"),
		SendBufferSize:  v.GetInt("ws.send_buffer_size"),
		InboundRate:     v.GetFloat64("ws.inbound_rate"),
		InboundBurst:    v.GetInt("ws.inbound_burst"),
		DefaultChannels: splitChannels(v.GetString("ws.default_channels")),

		NodeTTL:         v.GetDuration("liveness.node_ttl"),
		AgentTTL:        v.GetDuration("liveness.agent_ttl"),
		SweepInterval:   v.GetDuration("liveness.sweep_interval"),
		MetricsInterval: v.GetDuration("liveness.metrics_interval"),

		CreditEarningRate:      v.GetFloat64("credits.earning_rate"),
		SubmissionCost:         v.GetFloat64("credits.submission_cost"),
		HighPriorityMultiplier: v.GetFloat64("credits.high_priority_multiplier"),
		RefundFraction:         v.GetFloat64("credits.refund_fraction"),

		DatabaseDSN: v.GetString("database_dsn"),
		RedisAddr:   v.GetString("redis_addr"),
	}, nil
}

func splitChannels(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
