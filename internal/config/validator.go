package config

import "errors"

// Validate runs the fixed sequence of field checks pkg/config/validator.go
// uses: each validateX helper reports its own FieldError, accumulated into
// one joined error so a single Load call surfaces every problem at once.
func Validate(cfg *Config) error {
	var errs []error
	errs = append(errs, validateServer(cfg)...)
	errs = append(errs, validateDatabase(cfg)...)
	errs = append(errs, validateOutbox(cfg)...)
	errs = append(errs, validateQuota(cfg)...)
	errs = append(errs, validateSession(cfg)...)

	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

func validateServer(cfg *Config) []error {
	var errs []error
	if cfg.Server.Addr == "" {
		errs = append(errs, newFieldError("server.addr", "must not be empty"))
	}
	return errs
}

func validateDatabase(cfg *Config) []error {
	var errs []error
	if cfg.Database.Host == "" {
		errs = append(errs, newFieldError("database.host", "must not be empty"))
	}
	if cfg.Database.Database == "" {
		errs = append(errs, newFieldError("database.database", "must not be empty"))
	}
	if cfg.Database.MaxOpenConns <= 0 {
		errs = append(errs, newFieldError("database.max_open_conns", "must be positive"))
	}
	return errs
}

func validateOutbox(cfg *Config) []error {
	var errs []error
	if cfg.Outbox.PollInterval <= 0 {
		errs = append(errs, newFieldError("outbox.poll_interval", "must be positive"))
	}
	if cfg.Outbox.BatchSize <= 0 {
		errs = append(errs, newFieldError("outbox.batch_size", "must be positive"))
	}
	return errs
}

func validateQuota(cfg *Config) []error {
	var errs []error
	if cfg.Quota.SweepInterval <= 0 {
		errs = append(errs, newFieldError("quota.sweep_interval", "must be positive"))
	}
	return errs
}

func validateSession(cfg *Config) []error {
	var errs []error
	if cfg.Session.AbandonAfter <= 0 {
		errs = append(errs, newFieldError("session.abandon_after", "must be positive"))
	}
	return errs
}
