package admission

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Pipeline timing and limit defaults.
const (
	defaultSessionTTL     = 5 * time.Minute
	defaultCooldownTTL    = 60 * time.Second
	defaultApprovalTTL    = time.Hour
	defaultJoinRequestTTL = time.Hour
	defaultMaxAttempts    = 3
	defaultReminderDelay  = 2 * time.Minute
)

// Config contains the admission pipeline's tunables.
type Config struct {
	// SessionTTL is how long a challenge session stays answerable.
	SessionTTL time.Duration

	// CooldownTTL locks a user out after exhausting attempts.
	CooldownTTL time.Duration

	// ApprovalTTL is how long the pass marker survives; within it,
	// duplicate member updates stay suppressed.
	ApprovalTTL time.Duration

	// JoinRequestTTL bounds how long a pending join request is honored.
	JoinRequestTTL time.Duration

	// MaxAttempts is the number of answers allowed per session.
	MaxAttempts int

	// ReminderDelay is how long after a join request the nudge is sent.
	ReminderDelay time.Duration

	// BotHandle is the bot's public handle, used to build deep links.
	BotHandle string
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		SessionTTL:     defaultSessionTTL,
		CooldownTTL:    defaultCooldownTTL,
		ApprovalTTL:    defaultApprovalTTL,
		JoinRequestTTL: defaultJoinRequestTTL,
		MaxAttempts:    defaultMaxAttempts,
		ReminderDelay:  defaultReminderDelay,
	}
}

// LoadConfigFromEnv loads Config from environment variables with defaults.
func LoadConfigFromEnv() Config {
	return Config{
		SessionTTL:     envDuration("GATEKEEP_SESSION_TTL", defaultSessionTTL),
		CooldownTTL:    envDuration("GATEKEEP_COOLDOWN_TTL", defaultCooldownTTL),
		ApprovalTTL:    envDuration("GATEKEEP_APPROVAL_TTL", defaultApprovalTTL),
		JoinRequestTTL: envDuration("GATEKEEP_JOIN_REQUEST_TTL", defaultJoinRequestTTL),
		MaxAttempts:    envInt("GATEKEEP_MAX_ATTEMPTS", defaultMaxAttempts),
		ReminderDelay:  envDuration("GATEKEEP_REMINDER_DELAY", defaultReminderDelay),
		BotHandle:      strings.TrimSpace(os.Getenv("GATEKEEP_BOT_HANDLE")),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SessionTTL <= 0 {
		c.SessionTTL = d.SessionTTL
	}
	if c.CooldownTTL <= 0 {
		c.CooldownTTL = d.CooldownTTL
	}
	if c.ApprovalTTL <= 0 {
		c.ApprovalTTL = d.ApprovalTTL
	}
	if c.JoinRequestTTL <= 0 {
		c.JoinRequestTTL = d.JoinRequestTTL
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.ReminderDelay <= 0 {
		c.ReminderDelay = d.ReminderDelay
	}
	return c
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
