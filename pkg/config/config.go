package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultResultsDir is the default directory for audit reports.
	DefaultResultsDir = "./results"

	// DefaultAuditMonths is how far back an audit reaches when no
	// explicit window is given.
	DefaultAuditMonths = 6

	// DefaultTATStandardDays is the turnaround-time standard a run is
	// judged against.
	DefaultTATStandardDays = 3

	// DefaultRequestsPerSecond bounds queries against the compute
	// platform.
	DefaultRequestsPerSecond = 10
)

// defaultAssayTypes are the assay services audited when none are
// configured.
var defaultAssayTypes = []string{"TWE", "CEN", "MYE", "TSO500", "SNP"}

// defaultCancelledStatuses are ticket statuses meaning a run was never
// released and never will be.
var defaultCancelledStatuses = []string{
	"Data cannot be processed",
	"Data cannot be released",
	"Data not received",
}

// defaultOpenStatuses are ticket statuses for runs still moving
// through the pipeline.
var defaultOpenStatuses = []string{
	"New",
	"Data received",
	"Data processed",
}

// Config is the root configuration for tatoor.
type Config struct {
	Global  GlobalConfig  `yaml:"global"`
	Audit   AuditConfig   `yaml:"audit"`
	Compute ComputeConfig `yaml:"compute"`
	Ticket  TicketConfig  `yaml:"ticket"`
	Upload  *UploadConfig `yaml:"upload,omitempty"`
	API     *APIConfig    `yaml:"api,omitempty"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel string `yaml:"log_level"`
}

// AuditConfig contains the audit window and classification settings.
type AuditConfig struct {
	// DefaultMonths is the length of the audit window when --start and
	// --end are not given, counted back from today.
	DefaultMonths int `yaml:"default_months"`

	// TATStandardDays is the overall turnaround-time standard in days.
	TATStandardDays int `yaml:"tat_standard_days"`

	// AssayTypes lists the assay services to audit. Project names and
	// ticket assay fields outside this list are ignored.
	AssayTypes []string `yaml:"assay_types"`

	// FinalJobs maps assay type to the pipeline job name whose
	// completion marks processing finished.
	FinalJobs map[string]string `yaml:"final_jobs"`

	// StagingProjectID is the compute project holding the raw-data
	// staging folders and the pipeline setup jobs.
	StagingProjectID string `yaml:"staging_project_id"`

	// SetupJobName is the glob for the pipeline setup job that marks
	// the first job of a run.
	SetupJobName string `yaml:"setup_job_name"`

	// ResultsDir is where report directories are written.
	ResultsDir string `yaml:"results_dir"`

	// Ticket status names driving interval gating.
	ReleasedStatus string `yaml:"released_status"`
	UrgentStatus   string `yaml:"urgent_status"`
	OnHoldStatus   string `yaml:"on_hold_status"`

	// CancelledStatuses and OpenStatuses exclude runs from manual
	// review flagging.
	CancelledStatuses []string `yaml:"cancelled_statuses"`
	OpenStatuses      []string `yaml:"open_statuses"`
}

// ComputeConfig contains compute platform connection settings.
type ComputeConfig struct {
	BaseURL string `yaml:"base_url"`

	// TokenEnv names the environment variable holding the API token.
	TokenEnv string `yaml:"token_env"`

	RequestsPerSecond int `yaml:"requests_per_second"`
}

// TicketConfig contains service desk connection settings.
type TicketConfig struct {
	BaseURL string `yaml:"base_url"`
	Email   string `yaml:"email"`

	// TokenEnv names the environment variable holding the API token.
	TokenEnv string `yaml:"token_env"`

	// ServiceDeskID and QueueIDs locate the sequencing-run queues.
	// Every listed queue is merged into one audit.
	ServiceDeskID string   `yaml:"service_desk_id"`
	QueueIDs      []string `yaml:"queue_ids"`
}

// UploadConfig contains S3 settings for publishing reports.
type UploadConfig struct {
	EndpointURL     string `yaml:"endpoint_url,omitempty"`
	Region          string `yaml:"region,omitempty"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix,omitempty"`
	AccessKeyID     string `yaml:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty"`
	ForcePathStyle  bool   `yaml:"force_path_style"`
}

// Load reads and parses a configuration file from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults sets default values for unspecified configuration options.
func (c *Config) applyDefaults() {
	if c.Global.LogLevel == "" {
		c.Global.LogLevel = DefaultLogLevel
	}

	if c.Audit.DefaultMonths == 0 {
		c.Audit.DefaultMonths = DefaultAuditMonths
	}

	if c.Audit.TATStandardDays == 0 {
		c.Audit.TATStandardDays = DefaultTATStandardDays
	}

	if len(c.Audit.AssayTypes) == 0 {
		c.Audit.AssayTypes = defaultAssayTypes
	}

	if c.Audit.ResultsDir == "" {
		c.Audit.ResultsDir = DefaultResultsDir
	}

	if c.Audit.SetupJobName == "" {
		c.Audit.SetupJobName = "eggd_conductor*"
	}

	if c.Audit.ReleasedStatus == "" {
		c.Audit.ReleasedStatus = "All samples released"
	}

	if c.Audit.UrgentStatus == "" {
		c.Audit.UrgentStatus = "Urgent samples released"
	}

	if c.Audit.OnHoldStatus == "" {
		c.Audit.OnHoldStatus = "On hold"
	}

	if len(c.Audit.CancelledStatuses) == 0 {
		c.Audit.CancelledStatuses = defaultCancelledStatuses
	}

	if len(c.Audit.OpenStatuses) == 0 {
		c.Audit.OpenStatuses = defaultOpenStatuses
	}

	if c.Compute.RequestsPerSecond == 0 {
		c.Compute.RequestsPerSecond = DefaultRequestsPerSecond
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Audit.StagingProjectID == "" {
		return fmt.Errorf("audit: staging_project_id is required")
	}

	if c.Compute.BaseURL == "" {
		return fmt.Errorf("compute: base_url is required")
	}

	if c.Compute.TokenEnv == "" {
		return fmt.Errorf("compute: token_env is required")
	}

	if c.Ticket.BaseURL == "" {
		return fmt.Errorf("ticket: base_url is required")
	}

	if c.Ticket.Email == "" {
		return fmt.Errorf("ticket: email is required")
	}

	if c.Ticket.TokenEnv == "" {
		return fmt.Errorf("ticket: token_env is required")
	}

	if len(c.Ticket.QueueIDs) == 0 {
		return fmt.Errorf("ticket: at least one queue id must be configured")
	}

	for assay, job := range c.Audit.FinalJobs {
		if job == "" {
			return fmt.Errorf("audit: final job name for assay %q is empty", assay)
		}
	}

	if c.Audit.ResultsDir != "" {
		dir := filepath.Dir(c.Audit.ResultsDir)
		if dir != "." && dir != ".." {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				return fmt.Errorf("results directory parent %q does not exist", dir)
			}
		}
	}

	if c.Upload != nil && c.Upload.Bucket == "" {
		return fmt.Errorf("upload: bucket is required")
	}

	return nil
}

// ComputeToken reads the compute platform token from the configured
// environment variable.
func (c *Config) ComputeToken() (string, error) {
	token := os.Getenv(c.Compute.TokenEnv)
	if token == "" {
		return "", fmt.Errorf("environment variable %s is not set", c.Compute.TokenEnv)
	}

	return token, nil
}

// TicketToken reads the service desk token from the configured
// environment variable.
func (c *Config) TicketToken() (string, error) {
	token := os.Getenv(c.Ticket.TokenEnv)
	if token == "" {
		return "", fmt.Errorf("environment variable %s is not set", c.Ticket.TokenEnv)
	}

	return token, nil
}
