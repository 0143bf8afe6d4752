package config

import (
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/zachmann/go-utils/duration"

	"github.com/defensechain/defensechain/notification"
	"github.com/defensechain/defensechain/storage/model"
)

// Mailer types
const (
	MailerSMTP = "smtp"
	MailerLog  = "log"
)

type notificationsConf struct {
	MaxRetries    int                     `yaml:"max_retries"`
	RetryDelay    duration.DurationOption `yaml:"retry_delay"`
	SweepSchedule string                  `yaml:"sweep_schedule"`
	Mailer        string                  `yaml:"mailer"`
	SMTP          smtpConf                `yaml:"smtp"`
}

type smtpConf struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

func checkSchedule(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return errors.Wrapf(err, "invalid schedule '%s'", spec)
	}
	return nil
}

func (c *notificationsConf) validate() error {
	if c.MaxRetries <= 0 {
		return errors.New("max_retries must be positive")
	}
	if err := checkSchedule(c.SweepSchedule); err != nil {
		return err
	}
	switch c.Mailer {
	case MailerLog:
	case MailerSMTP:
		if c.SMTP.Host == "" || c.SMTP.From == "" {
			return errors.New("smtp.host and smtp.from must be specified for the smtp mailer")
		}
		if c.SMTP.Port == 0 {
			c.SMTP.Port = 587
		}
	default:
		return errors.Errorf("unknown mailer '%s'", c.Mailer)
	}
	return nil
}

// NewMailer returns the notification.Mailer selected by c
func (c notificationsConf) NewMailer() notification.Mailer {
	if c.Mailer == MailerLog {
		return notification.LogMailer{}
	}
	return notification.SMTPMailer{
		Host:     c.SMTP.Host,
		Port:     c.SMTP.Port,
		Username: c.SMTP.Username,
		Password: c.SMTP.Password,
		From:     c.SMTP.From,
	}
}

var defaultNotificationsConf = notificationsConf{
	MaxRetries:    model.DefaultNotificationMaxRetries,
	RetryDelay:    duration.DurationOption(notification.DefaultRetryDelay),
	SweepSchedule: "@every 30s",
	Mailer:        MailerLog,
}
