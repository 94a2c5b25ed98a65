package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type starterConfig struct {
	Telegram struct {
		GatewayURL     string  `yaml:"gateway_url"`
		GatewayToken   string  `yaml:"gateway_token"`
		CallsPerSecond float64 `yaml:"calls_per_second"`
	} `yaml:"telegram"`
	API struct {
		Bind    string `yaml:"bind"`
		Port    int    `yaml:"port"`
		Key     string `yaml:"key"`
		KeyFile string `yaml:"key_file"`
	} `yaml:"api"`
	Links struct {
		File string `yaml:"file"`
	} `yaml:"links"`
	Monitor struct {
		LinkInterval    string `yaml:"link_interval"`
		LinkWindow      int    `yaml:"link_window"`
		CommandInterval string `yaml:"command_interval"`
		CommandWindow   int    `yaml:"command_window"`
		CaptureWindow   int    `yaml:"capture_window"`
	} `yaml:"monitor"`
	Correlate struct {
		Wait    string `yaml:"wait"`
		Window  int    `yaml:"window"`
		Timeout string `yaml:"timeout"`
	} `yaml:"correlate"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init [dir]",
		Short: "Write a starter config.yaml",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
				dir = args[0]
			}
			dir = filepath.Clean(dir)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}

			cfgPath := filepath.Join(dir, "config.yaml")
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("config already exists: %s", cfgPath)
			}

			body, err := yaml.Marshal(defaultStarterConfig())
			if err != nil {
				return err
			}
			if err := os.WriteFile(cfgPath, body, 0o644); err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "initialized %s\n", cfgPath)
			return nil
		},
	}
}

func defaultStarterConfig() starterConfig {
	var cfg starterConfig
	cfg.Telegram.GatewayURL = "http://127.0.0.1:8081"
	cfg.Telegram.CallsPerSecond = 10
	cfg.API.Bind = "127.0.0.1"
	cfg.API.Port = 8787
	cfg.API.KeyFile = ".api_key"
	cfg.Links.File = "links.json"
	cfg.Monitor.LinkInterval = "5s"
	cfg.Monitor.LinkWindow = 5
	cfg.Monitor.CommandInterval = "3s"
	cfg.Monitor.CommandWindow = 10
	cfg.Monitor.CaptureWindow = 20
	cfg.Correlate.Wait = "5s"
	cfg.Correlate.Window = 20
	cfg.Correlate.Timeout = "20s"
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"
	return cfg
}
