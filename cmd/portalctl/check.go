package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"hrportal.org/internal/auth"
	"hrportal.org/internal/auth/gotrue"
	"hrportal.org/internal/config"
	"hrportal.org/internal/hr"
	"hrportal.org/internal/store/pg"
)

var errChecksFailed = errors.New("one or more checks failed")

func loadConfig(files []string) (config.Config, error) {
	if len(files) == 0 {
		files = config.DefaultFiles
	}
	return config.Load(files...)
}

func checkConfigCmd() *cobra.Command {
	var files []string
	cmd := &cobra.Command{
		Use:   "check-config",
		Short: "Validate the environment the portal would start with",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(files)
			if err != nil {
				failLine(cmd, "load: %v", err)
				return errChecksFailed
			}
			okLine(cmd, "environment %s, listening on %s", cfg.Env, cfg.Addr)
			if err := cfg.CheckBackend(); err != nil {
				failLine(cmd, "session backend %s: %v", cfg.Backend.Kind, err)
				return errChecksFailed
			}
			okLine(cmd, "session backend %s", cfg.Backend.Kind)
			if cfg.DatabaseDSN == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "warn  HRPORTAL_PG_DSN not set; profiles will be synthesized")
			}
			if cfg.Env == config.EnvProduction && !cfg.Cookie.Secure {
				fmt.Fprintln(cmd.OutOrStdout(), "warn  session cookies are not marked Secure in production")
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&files, "env-file", nil, "dotenv files to read (default .env.local,.env)")
	return cmd
}

func testConnectionCmd() *cobra.Command {
	var (
		files   []string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "test-connection",
		Short: "Reach the session store and the profiles table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(files)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			failed := false
			if err := pingBackend(ctx, cfg); err != nil {
				failLine(cmd, "session store: %v", err)
				failed = true
			} else {
				okLine(cmd, "session store reachable at %s", cfg.Backend.URL)
			}

			if cfg.DatabaseDSN == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "skip  database: HRPORTAL_PG_DSN not set")
			} else if err := pingDatabase(ctx, cfg.DatabaseDSN); err != nil {
				failLine(cmd, "database: %v", err)
				failed = true
			} else {
				okLine(cmd, "profiles table readable")
			}

			if failed {
				return errChecksFailed
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&files, "env-file", nil, "dotenv files to read (default .env.local,.env)")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "overall timeout")
	return cmd
}

// pingBackend refreshes a bogus token. A rejection proves the store is
// reachable and accepts the key; only transport failures count as errors.
func pingBackend(ctx context.Context, cfg config.Config) error {
	if err := cfg.CheckBackend(); err != nil {
		return err
	}
	if cfg.Backend.Kind == config.BackendLocal {
		return nil
	}
	_, err := gotrue.New(cfg.Backend.URL, cfg.Backend.AnonKey).RefreshSession(ctx, "portalctl-connection-test")
	switch {
	case err == nil, errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrInvalidInput):
		return nil
	default:
		return err
	}
}

func pingDatabase(ctx context.Context, dsn string) error {
	db, err := pg.Open(dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Ping(ctx); err != nil {
		return err
	}
	_, err = db.FindProfile(ctx, "00000000-0000-0000-0000-000000000000")
	switch {
	case err == nil, errors.Is(err, hr.ErrNotFound):
		return nil
	case errors.Is(err, hr.ErrTableMissing):
		return fmt.Errorf("%w: run `migrate up`", err)
	default:
		return err
	}
}
