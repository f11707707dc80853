package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/corvusflow/rescache/internal/app"
	"github.com/corvusflow/rescache/internal/infra/config"
	"github.com/corvusflow/rescache/internal/infra/logger"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "rescache",
		Short: "Resource acquisition and caching engine",
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml")

	root.AddCommand(fetchCmd(), statusCmd(), gcCmd(), serveCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func bootstrap() (*app.Context, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Log.Path, logger.ParseLevel(cfg.Log.Level), cfg.Log.IncludeStdout)
	if err != nil {
		return nil, err
	}
	return app.NewContext(cfg, log)
}
