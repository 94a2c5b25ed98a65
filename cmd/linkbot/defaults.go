package main

import (
	"time"

	"github.com/spf13/viper"
)

func initViperDefaults() {
	// Userbot gateway
	viper.SetDefault("telegram.gateway_url", "http://127.0.0.1:8081")
	viper.SetDefault("telegram.gateway_token", "")
	viper.SetDefault("telegram.calls_per_second", 10.0)

	// Control API
	viper.SetDefault("api.bind", "127.0.0.1")
	viper.SetDefault("api.port", 8787)
	viper.SetDefault("api.key", "")
	viper.SetDefault("api.key_file", ".api_key")

	// Link storage
	viper.SetDefault("links.file", "links.json")

	// Monitors
	viper.SetDefault("monitor.link_interval", 5*time.Second)
	viper.SetDefault("monitor.link_window", 5)
	viper.SetDefault("monitor.command_interval", 3*time.Second)
	viper.SetDefault("monitor.command_window", 10)
	viper.SetDefault("monitor.capture_window", 20)

	// Correlation
	viper.SetDefault("correlate.wait", 5*time.Second)
	viper.SetDefault("correlate.window", 20)
	viper.SetDefault("correlate.timeout", 20*time.Second)
}
