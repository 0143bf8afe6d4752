package config

import (
	"time"

	"github.com/pkg/errors"
	"github.com/zachmann/go-utils/duration"

	"github.com/defensechain/defensechain"
	"github.com/defensechain/defensechain/outbox"
	"github.com/defensechain/defensechain/storage/model"
)

type anchoringConf struct {
	MaxAttempts       int                     `yaml:"max_attempts"`
	Lease             duration.DurationOption `yaml:"lease"`
	ReconcileSchedule string                  `yaml:"reconcile_schedule"`
}

func (c *anchoringConf) validate() error {
	if c.MaxAttempts <= 0 {
		return errors.New("max_attempts must be positive")
	}
	if c.Lease.Duration() <= 0 {
		return errors.New("lease must be positive")
	}
	return checkSchedule(c.ReconcileSchedule)
}

var defaultAnchoringConf = anchoringConf{
	MaxAttempts:       8,
	Lease:             duration.DurationOption(2 * time.Minute),
	ReconcileSchedule: "@every 10m",
}

type workflowConf struct {
	PassingGrade           float64 `yaml:"passing_grade"`
	LedgerUser             string  `yaml:"ledger_user"`
	CertificateMaxAttempts int     `yaml:"certificate_max_attempts"`
}

func (c *workflowConf) validate() error {
	if c.PassingGrade < 0 || c.PassingGrade > 10 {
		return errors.Errorf("passing_grade %v out of range [0, 10]", c.PassingGrade)
	}
	return nil
}

var defaultWorkflowConf = workflowConf{
	PassingGrade:           6,
	LedgerUser:             "defensechain",
	CertificateMaxAttempts: 5,
}

type outboxConf struct {
	PollInterval duration.DurationOption `yaml:"poll_interval"`
	InitialDelay duration.DurationOption `yaml:"initial_delay"`
	BatchSize    int                     `yaml:"batch_size"`
	Lease        duration.DurationOption `yaml:"lease"`
}

func (c *outboxConf) validate() error {
	if c.Lease.Duration() <= 0 {
		return errors.New("lease must be positive")
	}
	return nil
}

var defaultOutboxConf = outboxConf{
	PollInterval: duration.DurationOption(5 * time.Second),
	InitialDelay: duration.DurationOption(5 * time.Second),
	BatchSize:    20,
	Lease:        duration.DurationOption(model.DefaultTaskLease),
}

// WorkflowConfig returns the defensechain.Config for the configured
// workflow and anchoring sections
func (c Config) WorkflowConfig() defensechain.Config {
	return defensechain.Config{
		PassingGrade:           c.Workflow.PassingGrade,
		AnchoringMaxAttempts:   c.Anchoring.MaxAttempts,
		AnchoringLease:         c.Anchoring.Lease.Duration(),
		CertificateMaxAttempts: c.Workflow.CertificateMaxAttempts,
		LedgerUser:             c.Workflow.LedgerUser,
		TaskLease:              c.Outbox.Lease.Duration(),
	}
}

// OutboxOptions returns the outbox.Options for the outbox section
func (c Config) OutboxOptions() outbox.Options {
	return outbox.Options{
		BatchSize:    c.Outbox.BatchSize,
		InitialDelay: c.Outbox.InitialDelay.Duration(),
		PollInterval: c.Outbox.PollInterval.Duration(),
		Lease:        c.Outbox.Lease.Duration(),
	}
}
