package fleetcron

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds configuration for the scheduler, worker and HTTP surfaces.
type Config struct {
	// DatabaseURL is the Postgres connection string for job definitions,
	// hosts, groups and execution logs.
	DatabaseURL string `yaml:"database_url"`

	// QueueURL selects the near-term queue backend: redis://… or postgres://….
	// Empty means the queue lives in the database at DatabaseURL.
	QueueURL string `yaml:"queue_url"`

	// ReconcileInterval is the period of the periodic schedule sync.
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`

	// SaveWindow is the look-ahead horizon for enqueuing upcoming runs.
	// Must be at least ReconcileInterval or runs can be missed.
	SaveWindow time.Duration `yaml:"save_window"`

	// ReclaimInterval is how often expired processing claims are returned
	// to pending.
	ReclaimInterval time.Duration `yaml:"reclaim_interval"`

	// ProcessingTimeout is the claim deadline written on Claim.
	ProcessingTimeout time.Duration `yaml:"processing_timeout"`

	// ReclaimGrace delays a reclaimed job before it becomes due again.
	ReclaimGrace time.Duration `yaml:"reclaim_grace"`

	// PollInterval is the dispatch loop sleep when nothing is due.
	PollInterval time.Duration `yaml:"poll_interval"`

	// ErrorBackoff is the base sleep after a queue error; it doubles per
	// consecutive error up to MaxErrorBackoff.
	ErrorBackoff    time.Duration `yaml:"error_backoff"`
	MaxErrorBackoff time.Duration `yaml:"max_error_backoff"`

	// RetryDelay separates synchronous retries of a failed job.
	RetryDelay time.Duration `yaml:"retry_delay"`

	// ChannelBuffer bounds the fleet result channel.
	ChannelBuffer int `yaml:"channel_buffer"`

	// ConnectTimeout, AuthTimeout and ExecTimeout bound the SSH stages.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	AuthTimeout    time.Duration `yaml:"auth_timeout"`
	ExecTimeout    time.Duration `yaml:"exec_timeout"`

	// MaxOutputBytes caps captured command output.
	MaxOutputBytes int `yaml:"max_output_bytes"`

	// ClaimRate limits claims per second across the dispatch loop; 0 disables.
	ClaimRate float64 `yaml:"claim_rate"`

	// MaxInFlight caps concurrently executing jobs; 0 means unbounded.
	MaxInFlight int `yaml:"max_in_flight"`

	// ResetQueueOnStart purges both queue sets before the initial sync.
	// Only safe when a single worker process runs.
	ResetQueueOnStart bool `yaml:"reset_queue_on_start"`

	// PerHostCredentials makes fleet runs authenticate each member with its
	// own user, password and port instead of the first member's.
	PerHostCredentials bool `yaml:"per_host_credentials"`

	// ShutdownTimeout bounds how long Stop waits for in-flight executions.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	HTTPListenAddr    string `yaml:"http_listen_addr"`
	MetricsListenAddr string `yaml:"metrics_listen_addr"`
	LogLevel          string `yaml:"log_level"`
	LogFormat         string `yaml:"log_format"`

	// SecretKey is the hex-encoded 32-byte key for host password encryption.
	SecretKey string `yaml:"secret_key"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ReconcileInterval: 100 * time.Second,
		SaveWindow:        300 * time.Second,
		ReclaimInterval:   5 * time.Second,
		ProcessingTimeout: 10 * time.Second,
		ReclaimGrace:      5 * time.Second,
		PollInterval:      100 * time.Millisecond,
		ErrorBackoff:      100 * time.Millisecond,
		MaxErrorBackoff:   5 * time.Second,
		RetryDelay:        200 * time.Millisecond,
		ChannelBuffer:     100,
		ConnectTimeout:    5 * time.Second,
		AuthTimeout:       5 * time.Second,
		ExecTimeout:       15 * time.Second,
		MaxOutputBytes:    1 << 20,
		ShutdownTimeout:   30 * time.Second,
		HTTPListenAddr:    ":8080",
		MetricsListenAddr: ":9090",
		LogLevel:          "info",
		LogFormat:         "json",
	}
}

// LoadConfig starts from DefaultConfig, overlays the YAML file at path (if
// path is non-empty) and then the environment.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("fleetcron: read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("fleetcron: parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.QueueURL = getEnv("QUEUE_URL", getEnv("REDIS_URL", c.QueueURL))
	c.HTTPListenAddr = getEnv("HTTP_LISTEN_ADDR", c.HTTPListenAddr)
	c.MetricsListenAddr = getEnv("METRICS_LISTEN_ADDR", c.MetricsListenAddr)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
	c.SecretKey = getEnv("SECRET_KEY", c.SecretKey)

	durations := []struct {
		key  string
		unit time.Duration
		dst  *time.Duration
	}{
		{"RECONCILE_INTERVAL_SECS", time.Second, &c.ReconcileInterval},
		{"SAVE_WINDOW_SECS", time.Second, &c.SaveWindow},
		{"RECLAIM_INTERVAL_SECS", time.Second, &c.ReclaimInterval},
		{"PROCESSING_TIMEOUT_SECS", time.Second, &c.ProcessingTimeout},
		{"RETRY_DELAY_MS", time.Millisecond, &c.RetryDelay},
		{"POLL_INTERVAL_MS", time.Millisecond, &c.PollInterval},
		{"SSH_CONNECT_TIMEOUT_SECS", time.Second, &c.ConnectTimeout},
		{"SSH_AUTH_TIMEOUT_SECS", time.Second, &c.AuthTimeout},
		{"SSH_EXEC_TIMEOUT_SECS", time.Second, &c.ExecTimeout},
		{"SHUTDOWN_TIMEOUT_SECS", time.Second, &c.ShutdownTimeout},
	}
	for _, d := range durations {
		n, ok, err := envInt(d.key)
		if err != nil {
			return err
		}
		if ok {
			*d.dst = time.Duration(n) * d.unit
		}
	}

	for key, dst := range map[string]*int{
		"CHANNEL_BUFFER":   &c.ChannelBuffer,
		"MAX_OUTPUT_BYTES": &c.MaxOutputBytes,
		"MAX_IN_FLIGHT":    &c.MaxInFlight,
	} {
		n, ok, err := envInt(key)
		if err != nil {
			return err
		}
		if ok {
			*dst = n
		}
	}

	if v := os.Getenv("CLAIM_RATE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("fleetcron: CLAIM_RATE: %w", err)
		}
		c.ClaimRate = f
	}
	if v := os.Getenv("RESET_QUEUE_ON_START"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("fleetcron: RESET_QUEUE_ON_START: %w", err)
		}
		c.ResetQueueOnStart = b
	}
	if v := os.Getenv("PER_HOST_CREDENTIALS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("fleetcron: PER_HOST_CREDENTIALS: %w", err)
		}
		c.PerHostCredentials = b
	}
	return nil
}

// Validate reports configuration that would break scheduling guarantees.
func (c Config) Validate() error {
	var errs []error
	if c.ReconcileInterval <= 0 {
		errs = append(errs, errors.New("reconcile interval must be positive"))
	}
	if c.SaveWindow < c.ReconcileInterval {
		errs = append(errs, fmt.Errorf("save window %s shorter than reconcile interval %s", c.SaveWindow, c.ReconcileInterval))
	}
	positive := []struct {
		name string
		d    time.Duration
	}{
		{"reclaim interval", c.ReclaimInterval},
		{"processing timeout", c.ProcessingTimeout},
		{"poll interval", c.PollInterval},
		{"error backoff", c.ErrorBackoff},
		{"max error backoff", c.MaxErrorBackoff},
		{"ssh connect timeout", c.ConnectTimeout},
		{"ssh auth timeout", c.AuthTimeout},
		{"ssh exec timeout", c.ExecTimeout},
	}
	for _, p := range positive {
		if p.d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", p.name, p.d))
		}
	}
	if c.MaxErrorBackoff > 0 && c.MaxErrorBackoff < c.ErrorBackoff {
		errs = append(errs, fmt.Errorf("max error backoff %s shorter than error backoff %s", c.MaxErrorBackoff, c.ErrorBackoff))
	}
	if c.ReclaimGrace < 0 {
		errs = append(errs, errors.New("reclaim grace must not be negative"))
	}
	if c.RetryDelay < 0 {
		errs = append(errs, errors.New("retry delay must not be negative"))
	}
	if c.ClaimRate < 0 || c.MaxInFlight < 0 {
		errs = append(errs, errors.New("claim rate and max in-flight must not be negative"))
	}
	if c.ChannelBuffer < 0 {
		errs = append(errs, errors.New("channel buffer must not be negative"))
	}
	if c.MaxOutputBytes <= 0 {
		errs = append(errs, errors.New("max output bytes must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string) (int, bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false, fmt.Errorf("fleetcron: %s: %w", key, err)
	}
	return n, true, nil
}
