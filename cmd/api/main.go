package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "grantsbackend/api/swagger" // swagger docs
	"grantsbackend/internal/config"
	"grantsbackend/internal/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// @title           Grants Lifecycle API
// @version         1.0
// @description     Budget and contract lifecycle engine with idempotent transitions and an immutable audit trail.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	root := &cobra.Command{
		Use:           "grantsbackend",
		Short:         "Budget and contract lifecycle service",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().String("env-file", "configs/.env", "dotenv file loaded before reading the environment")
	root.PersistentFlags().String("log-level", "", "log level (LOG_LEVEL)")
	_ = v.BindPFlag("log_level", root.PersistentFlags().Lookup("log-level"))

	root.AddCommand(newServeCmd(v), newMigrateCmd(v), newAuditCmd(v))
	return root
}

// bootstrap loads configuration and builds the process logger.
func bootstrap(cmd *cobra.Command, v *viper.Viper) (*config.Config, *zap.Logger, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	envLoadErr := config.LoadDotEnv(envFile)

	cfg, err := config.Load(v)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, nil, err
	}
	if envLoadErr != nil {
		log.Debug("no dotenv file loaded", zap.String("path", envFile), zap.Error(envLoadErr))
	}
	return cfg, log, nil
}
