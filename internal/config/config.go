package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

var singleConfig *Config = nil

type Config struct {
	Database *dbConfig
	Service  *svcConfig
	Dispatch *DispatchConfig
}

type dbConfig struct {
	Type     string `envconfig:"DB_TYPE" default:"pgsql"`
	Hostname string `envconfig:"DB_HOST" default:"localhost"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	Name     string `envconfig:"DB_NAME" default:"dispatch"`
	User     string `envconfig:"DB_USER" default:"admin"`
	Password string `envconfig:"DB_PASS" default:"adminpass"`
}

type svcConfig struct {
	Address         string `envconfig:"DISPATCH_ADDRESS" default:":3443"`
	MetricsAddress  string `envconfig:"DISPATCH_METRICS_ADDRESS" default:":8080"`
	LogLevel        string `envconfig:"DISPATCH_LOG_LEVEL" default:"info"`
	LogFormat       string `envconfig:"DISPATCH_LOG_FORMAT" default:"console"`
	MigrationFolder string `envconfig:"DISPATCH_MIGRATIONS_FOLDER" default:""`
	// NotificationTarget is the url of the notification dispatcher. Events are logged to stdout when empty.
	NotificationTarget string   `envconfig:"DISPATCH_NOTIFICATION_TARGET" default:""`
	AllowedOrigins     []string `envconfig:"DISPATCH_ALLOWED_ORIGINS" default:"*"`
}

// DispatchConfig holds the windows and limits of the dispatch engine.
type DispatchConfig struct {
	// OfferWindows is the acceptance window of each tier of the cascade, indexed by reassign count.
	// The last window applies to every later tier.
	OfferWindows      []time.Duration `envconfig:"DISPATCH_OFFER_WINDOWS" default:"10m,30m,60m"`
	UrgentOfferWindow time.Duration   `envconfig:"DISPATCH_URGENT_OFFER_WINDOW" default:"5m"`
	NoShowWindow      time.Duration   `envconfig:"DISPATCH_NO_SHOW_WINDOW" default:"30m"`
	NoShowWarnings    []time.Duration `envconfig:"DISPATCH_NO_SHOW_WARNINGS" default:"10m,20m"`
	MaxReassignments  int             `envconfig:"DISPATCH_MAX_REASSIGNMENTS" default:"3"`

	SearchRadiusMiles         float64 `envconfig:"DISPATCH_SEARCH_RADIUS_MILES" default:"25"`
	ExpandedSearchRadiusMiles float64 `envconfig:"DISPATCH_EXPANDED_SEARCH_RADIUS_MILES" default:"50"`
	CheckInRadiusMiles        float64 `envconfig:"DISPATCH_CHECK_IN_RADIUS_MILES" default:"0.5"`

	NoCandidateBackoff time.Duration `envconfig:"DISPATCH_NO_CANDIDATE_BACKOFF" default:"30s"`
	NoCandidateRetries int           `envconfig:"DISPATCH_NO_CANDIDATE_RETRIES" default:"3"`
	SweepInterval      time.Duration `envconfig:"DISPATCH_SWEEP_INTERVAL" default:"15s"`
}

func New() (*Config, error) {
	if singleConfig == nil {
		singleConfig = new(Config)
		if err := envconfig.Process("", singleConfig); err != nil {
			return nil, err
		}
		if err := singleConfig.Dispatch.Validate(); err != nil {
			singleConfig = nil
			return nil, err
		}
	}
	return singleConfig, nil
}

// NewDefault returns a configuration backed by an in-memory sqlite database.
// It ignores the environment and is meant for tests and local runs.
func NewDefault() *Config {
	return &Config{
		Database: &dbConfig{
			Type: "sqlite",
			Name: "file:dispatch?mode=memory&cache=shared",
		},
		Service: &svcConfig{
			Address:        ":3443",
			MetricsAddress: ":8080",
			LogLevel:       "debug",
			LogFormat:      "console",
			AllowedOrigins: []string{"*"},
		},
		Dispatch: NewDefaultDispatch(),
	}
}

func NewDefaultDispatch() *DispatchConfig {
	return &DispatchConfig{
		OfferWindows:              []time.Duration{10 * time.Minute, 30 * time.Minute, 60 * time.Minute},
		UrgentOfferWindow:         5 * time.Minute,
		NoShowWindow:              30 * time.Minute,
		NoShowWarnings:            []time.Duration{10 * time.Minute, 20 * time.Minute},
		MaxReassignments:          3,
		SearchRadiusMiles:         25,
		ExpandedSearchRadiusMiles: 50,
		CheckInRadiusMiles:        0.5,
		NoCandidateBackoff:        30 * time.Second,
		NoCandidateRetries:        3,
		SweepInterval:             15 * time.Second,
	}
}

// OfferWindow returns the acceptance window of a non-urgent offer made at reassignCount.
func (c *DispatchConfig) OfferWindow(reassignCount int) time.Duration {
	if len(c.OfferWindows) == 0 {
		return 0
	}
	if reassignCount < 0 {
		reassignCount = 0
	}
	if reassignCount >= len(c.OfferWindows) {
		return c.OfferWindows[len(c.OfferWindows)-1]
	}
	return c.OfferWindows[reassignCount]
}

// Validate checks the windows against each other: an urgent offer must be answered faster than the
// first offer of the cascade, and the no-show deadline must come before the longest offer deadline.
func (c *DispatchConfig) Validate() error {
	if len(c.OfferWindows) == 0 {
		return fmt.Errorf("at least one offer window is required")
	}
	longest := time.Duration(0)
	for i, w := range c.OfferWindows {
		if w <= 0 {
			return fmt.Errorf("offer window %d must be positive, got %s", i, w)
		}
		longest = max(longest, w)
	}
	if c.UrgentOfferWindow <= 0 || c.UrgentOfferWindow >= c.OfferWindows[0] {
		return fmt.Errorf("urgent offer window %s must be positive and shorter than the first offer window %s", c.UrgentOfferWindow, c.OfferWindows[0])
	}
	if c.NoShowWindow <= 0 || c.NoShowWindow >= longest {
		return fmt.Errorf("no-show window %s must be positive and shorter than the longest offer window %s", c.NoShowWindow, longest)
	}
	for i, w := range c.NoShowWarnings {
		if w <= 0 || w >= c.NoShowWindow {
			return fmt.Errorf("no-show warning %d at %s must fall inside the no-show window %s", i, w, c.NoShowWindow)
		}
	}
	if c.MaxReassignments < 0 || c.NoCandidateRetries < 0 {
		return fmt.Errorf("max reassignments and no-candidate retries cannot be negative")
	}
	if c.CheckInRadiusMiles <= 0 || c.SearchRadiusMiles <= 0 {
		return fmt.Errorf("search and check-in radius must be positive")
	}
	return nil
}
