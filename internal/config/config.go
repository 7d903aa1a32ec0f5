// Package config loads and validates the YAML configuration file. A
// malformed configuration is a startup-time fatal error; nothing here is
// consulted again once a cycle is running.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// IMAPConfig configures the mail fetch source.
type IMAPConfig struct {
	Server       string `yaml:"server"`        // host:port, TLS.
	Username     string `yaml:"username"`      //
	Password     string `yaml:"password"`      //
	Mailbox      string `yaml:"mailbox"`       // Defaults to INBOX.
	LookbackDays int    `yaml:"lookback-days"` // How far back each scan searches.
}

// SMTPConfig configures the notifier sink.
type SMTPConfig struct {
	Server    string `yaml:"server"`
	Port      int    `yaml:"port"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	Recipient string `yaml:"recipient"` // Where reminders go.
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level string `yaml:"level"` // logrus level name; defaults to info.
	File  string `yaml:"file"`  // Optional log file; rotated when set.
}

// Config is the full configuration file.
type Config struct {
	Database string `yaml:"database"` // SQLite path or PostgreSQL DSN.

	IMAP IMAPConfig `yaml:"imap"`
	SMTP SMTPConfig `yaml:"smtp"`

	ReminderDays       []int  `yaml:"reminder-days"`        // Offsets in days before the due date.
	ScanFrequencyHours int    `yaml:"scan-frequency-hours"` // Interval between cycles.
	ScanCron           string `yaml:"scan-cron"`            // Optional cron spec; overrides the interval.

	HTTPAddr string `yaml:"http-addr"` // Listen address for the observation API.

	Logging LoggingConfig `yaml:"logging"`
}

// Defaults applied before validation.
const (
	DefaultDatabase           = "duewatch.db"
	DefaultMailbox            = "INBOX"
	DefaultLookbackDays       = 30
	DefaultSMTPPort           = 587
	DefaultScanFrequencyHours = 24
	DefaultHTTPAddr           = "127.0.0.1:8025"
)

// DefaultReminderDays are the offsets used when the file names none.
var DefaultReminderDays = []int{7, 3, 1}

// Load reads, defaults and validates the configuration file at path.
func Load(path string) (*Config, error) {
	raw, errRead := os.ReadFile(path)
	if errRead != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, errRead)
	}

	var cfg Config
	if errUnmarshal := yaml.Unmarshal(raw, &cfg); errUnmarshal != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, errUnmarshal)
	}

	cfg.applyDefaults()
	if errValidate := cfg.Validate(); errValidate != nil {
		return nil, errValidate
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Database) == "" {
		c.Database = DefaultDatabase
	}
	if strings.TrimSpace(c.IMAP.Mailbox) == "" {
		c.IMAP.Mailbox = DefaultMailbox
	}
	if c.IMAP.LookbackDays <= 0 {
		c.IMAP.LookbackDays = DefaultLookbackDays
	}
	if c.SMTP.Port == 0 {
		c.SMTP.Port = DefaultSMTPPort
	}
	if len(c.ReminderDays) == 0 {
		c.ReminderDays = append([]int(nil), DefaultReminderDays...)
	}
	if c.ScanFrequencyHours == 0 {
		c.ScanFrequencyHours = DefaultScanFrequencyHours
	}
	if strings.TrimSpace(c.HTTPAddr) == "" {
		c.HTTPAddr = DefaultHTTPAddr
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks everything a cycle depends on. It is called by Load and
// again by commands that need mail credentials.
func (c *Config) Validate() error {
	if len(c.ReminderDays) == 0 {
		return fmt.Errorf("config: reminder-days must not be empty")
	}
	seen := make(map[int]struct{}, len(c.ReminderDays))
	for _, d := range c.ReminderDays {
		if d <= 0 {
			return fmt.Errorf("config: reminder-days entries must be positive, got %d", d)
		}
		if _, dup := seen[d]; dup {
			return fmt.Errorf("config: duplicate reminder-days entry %d", d)
		}
		seen[d] = struct{}{}
	}
	if c.ScanFrequencyHours < 1 {
		return fmt.Errorf("config: scan-frequency-hours must be at least 1, got %d", c.ScanFrequencyHours)
	}
	return nil
}

// ValidateMail checks the fields the scan and serve commands need to reach
// the mailbox and send reminders.
func (c *Config) ValidateMail() error {
	switch {
	case strings.TrimSpace(c.IMAP.Server) == "":
		return fmt.Errorf("config: imap.server is required")
	case strings.TrimSpace(c.IMAP.Username) == "":
		return fmt.Errorf("config: imap.username is required")
	case strings.TrimSpace(c.IMAP.Password) == "":
		return fmt.Errorf("config: imap.password is required")
	case strings.TrimSpace(c.SMTP.Server) == "":
		return fmt.Errorf("config: smtp.server is required")
	case c.SMTP.Port <= 0 || c.SMTP.Port > 65535:
		return fmt.Errorf("config: smtp.port %d out of range", c.SMTP.Port)
	case strings.TrimSpace(c.SMTP.Recipient) == "":
		return fmt.Errorf("config: smtp.recipient is required")
	}
	return nil
}
