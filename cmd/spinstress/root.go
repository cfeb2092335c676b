package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/llxisdsh/spinlock/internal/stress"
)

var errViolation = errors.New("spinstress: violation detected")

func newRootCmd() *cobra.Command {
	v := viper.New()
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "spinstress",
		Short: "Stress a SpinLock and check mutual exclusion and linearizability",
		Long: `spinstress starts reader and writer goroutines that share one SpinLock,
records every completed operation, and checks the history with porcupine.

Settings come from flags, SPINSTRESS_* environment variables, or a config
file given with --config.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfgFile != "" {
				v.SetConfigFile(cfgFile)
				if err := v.ReadInConfig(); err != nil {
					return fmt.Errorf("read config %s: %w", cfgFile, err)
				}
			}
			logger := newLogger(v.GetString("log-level"))
			cfg := configFrom(v)
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			rep, err := stress.Run(ctx, cfg, logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(),
				"reads=%d writes=%d would_block=%d poisoned=%d panics=%d overlaps=%d linearizable=%t elapsed=%s\n",
				rep.Reads, rep.Writes, rep.WouldBlock, rep.Poisoned, rep.Panics,
				rep.Overlaps, rep.Linearizable, rep.Elapsed)
			if !rep.OK() {
				return errViolation
			}
			return nil
		},
	}

	d := stress.DefaultConfig
	f := cmd.Flags()
	f.StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	f.IntP("readers", "r", d.Readers, "number of reader goroutines")
	f.IntP("writers", "w", d.Writers, "number of writer goroutines")
	f.IntP("ops", "n", d.Ops, "operations per goroutine")
	f.Float64("try-ratio", d.TryRatio, "fraction of operations using TryRead/TryWrite")
	f.Int("panic-every", d.PanicEvery, "writers panic on every Nth write (0 disables)")
	f.Bool("check", d.Check, "check the history for linearizability")
	f.Uint64("seed", d.Seed, "random seed")
	f.String("log-level", "info", "log level (debug, info, warn, error)")

	v.SetEnvPrefix("spinstress")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindPFlags(f)
	return cmd
}

func configFrom(v *viper.Viper) stress.Config {
	return stress.Config{
		Readers:    v.GetInt("readers"),
		Writers:    v.GetInt("writers"),
		Ops:        v.GetInt("ops"),
		TryRatio:   v.GetFloat64("try-ratio"),
		PanicEvery: v.GetInt("panic-every"),
		Check:      v.GetBool("check"),
		Seed:       v.GetUint64("seed"),
	}
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
