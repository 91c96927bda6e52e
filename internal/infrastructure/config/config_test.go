package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("loads default values when env vars not set", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "escrow-backend", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "escrow", cfg.Database.DBName)
		assert.Equal(t, "disable", cfg.Database.SSLMode)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
		assert.Equal(t, 5, cfg.Database.MaxIdleConns)
		assert.Equal(t, "0.10", cfg.Payout.AutoApproveRatio)
		assert.Equal(t, "0.50", cfg.Payout.DisputeRatio)
		assert.Equal(t, 3, cfg.Payout.RetryAttempts)
		assert.Equal(t, 200*time.Millisecond, cfg.Payout.RetryBaseDelay)
		assert.Equal(t, 2*time.Second, cfg.Payout.RetryMaxDelay)
		assert.Equal(t, 72*time.Hour, cfg.Event.IdempotencyTTL)
		assert.Equal(t, 5*time.Minute, cfg.Event.ClaimTimeout)
		assert.True(t, cfg.Scheduler.OverdueSweepEnabled)
		assert.Equal(t, 15*time.Minute, cfg.Scheduler.OverdueSweepInterval)
		assert.Equal(t, 500, cfg.Scheduler.OverdueSweepBatchSize)
	})

	t.Run("overdue sweep can be switched off", func(t *testing.T) {
		t.Setenv("ESCROW_SCHEDULER_OVERDUE_SWEEP_ENABLED", "false")
		t.Setenv("ESCROW_SCHEDULER_OVERDUE_SWEEP_INTERVAL", "1m")

		cfg, err := Load()
		require.NoError(t, err)

		assert.False(t, cfg.Scheduler.OverdueSweepEnabled)
		assert.Equal(t, time.Minute, cfg.Scheduler.OverdueSweepInterval)
	})

	t.Run("loads values from environment variables with ESCROW prefix", func(t *testing.T) {
		t.Setenv("ESCROW_APP_NAME", "test-app")
		t.Setenv("ESCROW_APP_PORT", "9000")
		t.Setenv("ESCROW_DATABASE_HOST", "testdb.local")
		t.Setenv("ESCROW_DATABASE_PORT", "5433")
		t.Setenv("ESCROW_DATABASE_MAX_OPEN_CONNS", "50")
		t.Setenv("ESCROW_DATABASE_MAX_IDLE_CONNS", "10")
		t.Setenv("ESCROW_PAYOUT_DISPUTE_RATIO", "0.75")
		t.Setenv("ESCROW_STRIPE_SECRET_KEY", "sk_test_abc")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "test-app", cfg.App.Name)
		assert.Equal(t, "9000", cfg.App.Port)
		assert.Equal(t, "testdb.local", cfg.Database.Host)
		assert.Equal(t, 5433, cfg.Database.Port)
		assert.Equal(t, 50, cfg.Database.MaxOpenConns)
		assert.Equal(t, 10, cfg.Database.MaxIdleConns)
		assert.Equal(t, "0.75", cfg.Payout.DisputeRatio)
		assert.Equal(t, "sk_test_abc", cfg.Stripe.SecretKey)
	})

	t.Run("rejects idle conns above open conns", func(t *testing.T) {
		t.Setenv("ESCROW_DATABASE_MAX_OPEN_CONNS", "5")
		t.Setenv("ESCROW_DATABASE_MAX_IDLE_CONNS", "10")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_idle_conns")
	})
}

func TestFromViper_PayoutRatios(t *testing.T) {
	tests := []struct {
		name        string
		autoApprove string
		dispute     string
		wantErr     string
	}{
		{name: "defaults", autoApprove: "", dispute: ""},
		{name: "custom", autoApprove: "0.2", dispute: "0.8"},
		{name: "inverted", autoApprove: "0.6", dispute: "0.5", wantErr: "payout ratios"},
		{name: "dispute above one", autoApprove: "0.1", dispute: "1.5", wantErr: "payout ratios"},
		{name: "not a number", autoApprove: "ten", dispute: "0.5", wantErr: "auto_approve_ratio"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			if tt.autoApprove != "" {
				v.Set("payout.auto_approve_ratio", tt.autoApprove)
				v.Set("payout.dispute_ratio", tt.dispute)
			}

			cfg, err := FromViper(v)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			auto, dispute, threshold, err := cfg.Payout.Ratios()
			require.NoError(t, err)
			assert.True(t, auto.LessThan(dispute))
			assert.True(t, threshold.IsZero())
		})
	}
}

func TestFromViper_Operators(t *testing.T) {
	v := viper.New()
	v.Set("http.operator_ids", []string{"7b0f4c4e-2f7e-4d39-9c61-5b1f0e8a6a11", " 0c9d7a52-94f1-4f3e-bd7a-2d57e1c1b0f2 "})

	cfg, err := FromViper(v)
	require.NoError(t, err)
	ids, err := cfg.HTTP.Operators()
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.Equal(t, "0c9d7a52-94f1-4f3e-bd7a-2d57e1c1b0f2", ids[1].String())

	v.Set("http.operator_ids", []string{"root"})
	_, err = FromViper(v)
	assert.ErrorContains(t, err, "http.operator_ids")
}

func TestFromViper_Production(t *testing.T) {
	production := func() *viper.Viper {
		v := viper.New()
		v.Set("app.env", "production")
		v.Set("jwt.enabled", true)
		v.Set("jwt.secret", "0123456789abcdef0123456789abcdef")
		v.Set("database.password", "secret")
		v.Set("database.sslmode", "require")
		v.Set("stripe.secret_key", "sk_live_abc")
		v.Set("stripe.webhook_secret", "whsec_abc")
		return v
	}

	t.Run("accepts hardened configuration", func(t *testing.T) {
		cfg, err := FromViper(production())
		require.NoError(t, err)
		assert.True(t, cfg.App.IsProduction())
	})

	t.Run("rejects short jwt secret", func(t *testing.T) {
		v := production()
		v.Set("jwt.secret", "short")
		_, err := FromViper(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "jwt.secret")
	})

	t.Run("rejects disabled ssl", func(t *testing.T) {
		v := production()
		v.Set("database.sslmode", "disable")
		_, err := FromViper(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sslmode")
	})

	t.Run("rejects stripe test mode", func(t *testing.T) {
		v := production()
		v.Set("stripe.is_test_mode", true)
		_, err := FromViper(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "is_test_mode")
	})

	t.Run("rejects wildcard cors", func(t *testing.T) {
		v := production()
		v.Set("http.cors_allow_origins", []string{"*"})
		_, err := FromViper(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cors_allow_origins")
	})
}

func TestFromViper_ReportsEveryProblem(t *testing.T) {
	v := viper.New()
	v.Set("database.max_open_conns", 0)
	v.Set("payout.retry_attempts", 0)
	v.Set("telemetry.sampling_ratio", 1.5)

	_, err := FromViper(v)
	require.Error(t, err)
	assert.ErrorContains(t, err, "database.max_open_conns")
	assert.ErrorContains(t, err, "payout.retry_attempts")
	assert.ErrorContains(t, err, "telemetry.sampling_ratio")
}

func TestLoad_ListFromEnvironment(t *testing.T) {
	t.Setenv("ESCROW_HTTP_OPERATOR_IDS", "7b0f4c4e-2f7e-4d39-9c61-5b1f0e8a6a11,0c9d7a52-94f1-4f3e-bd7a-2d57e1c1b0f2")
	t.Setenv("ESCROW_EVENT_CLAIM_TIMEOUT", "90s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Len(t, cfg.HTTP.OperatorIDs, 2)
	assert.Equal(t, 90*time.Second, cfg.Event.ClaimTimeout)
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{
		Host:     "db",
		Port:     5432,
		User:     "escrow",
		Password: "p@ss word",
		DBName:   "escrow",
		SSLMode:  "disable",
	}
	assert.Equal(t, "postgres://escrow:p%40ss%20word@db:5432/escrow?sslmode=disable", d.DSN())
}
