package config

import (
	"errors"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"
)

// validate reports every problem at once
func (c *Config) validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	db := c.Database
	check(db.MaxOpenConns > 0, "database.max_open_conns must be positive")
	check(db.MaxIdleConns >= 0, "database.max_idle_conns cannot be negative")
	check(db.MaxIdleConns <= db.MaxOpenConns,
		"database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)", db.MaxIdleConns, db.MaxOpenConns)

	if autoApprove, dispute, threshold, err := c.Payout.Ratios(); err != nil {
		errs = append(errs, err)
	} else {
		check(!autoApprove.IsNegative() && autoApprove.LessThan(dispute) && dispute.LessThanOrEqual(decimal.NewFromInt(1)),
			"payout ratios must satisfy 0 <= auto_approve_ratio < dispute_ratio <= 1, got %s and %s", autoApprove, dispute)
		check(!threshold.IsNegative(), "payout.dispute_threshold cannot be negative")
	}
	check(c.Payout.RetryAttempts >= 1, "payout.retry_attempts must be at least 1")

	if _, err := c.HTTP.Operators(); err != nil {
		errs = append(errs, err)
	}
	check(!c.JWT.Enabled || c.JWT.Secret != "", "jwt.secret is required when jwt.enabled is true")
	check(c.Telemetry.SamplingRatio >= 0 && c.Telemetry.SamplingRatio <= 1,
		"telemetry.sampling_ratio must be between 0 and 1, got %g", c.Telemetry.SamplingRatio)

	if c.App.IsProduction() {
		check(c.JWT.Enabled, "jwt.enabled must be true in production")
		check(len(c.JWT.Secret) >= 32, "jwt.secret must be at least 32 characters in production")
		check(db.Password != "", "database.password is required in production")
		check(db.SSLMode != "disable", "database.sslmode cannot be 'disable' in production")
		check(c.Stripe.SecretKey != "" && c.Stripe.WebhookSecret != "",
			"stripe.secret_key and stripe.webhook_secret are required in production")
		check(!c.Stripe.IsTestMode, "stripe.is_test_mode must be false in production")
		check(!slices.Contains(c.HTTP.CORSAllowOrigins, "*"), "http.cors_allow_origins cannot be '*' in production")
	}
	return errors.Join(errs...)
}
