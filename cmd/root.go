// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/Thermoquad/obscura/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Link connection flags
	portName      string
	baudRate      int
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Rig flags
	configPath string
	useSim     bool
	i2cName    string
	triggerPin string
	resetPin   string
	replayDir  string

	verbose bool

	logger *zap.SugaredLogger
	rigCfg = &config.RigConfig{}
)

var rootCmd = &cobra.Command{
	Use:   "obscura",
	Short: "OV2640 camera rig tool",
	Long: `Obscura - configure an OV2640 image sensor over SCCB, capture JPEG snapshots
and move them over a serial or WebSocket link.

Rig selection:
  Simulated: --sim
  Hardware:  --i2c /dev/i2c-1 [--reset-pin GPIO22] [--trigger-pin GPIO17] [--replay frames/]

Link modes (capture --link, receive, raw_log, packet_test):
  Serial:    --port /dev/ttyUSB0 [--baud 921600]   (--port auto finds a USB adapter)
  WebSocket: --url ws://host/path [--username user]

Rig settings can also come from a JSON file given with --config; flags win over
file values. For WebSocket authentication, the password is read from the
OBSCURA_PASSWORD environment variable, or prompted interactively if not set.`,
	Version:           "0.3.0",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device, or \"auto\"")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 921600, "Baud rate (serial only)")
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Rig configuration file (.json)")
	rootCmd.PersistentFlags().BoolVar(&useSim, "sim", false, "Use the simulated sensor and camera")
	rootCmd.PersistentFlags().StringVar(&i2cName, "i2c", "", "I2C bus name (default: first bus)")
	rootCmd.PersistentFlags().StringVar(&triggerPin, "trigger-pin", "", "GPIO name of the capture button")
	rootCmd.PersistentFlags().StringVar(&resetPin, "reset-pin", "", "GPIO name of the sensor reset line")
	rootCmd.PersistentFlags().StringVar(&replayDir, "replay", "", "Directory of JPEG files used as capture hardware")

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
}

// setup builds the logger and loads the rig configuration
func setup(cmd *cobra.Command, args []string) error {
	l, err := newLogger(verbose)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	logger = l.Sugar()

	if configPath != "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		rigCfg = cfg
		logger.Debugw("loaded rig configuration", "path", configPath)
	}

	flags := cmd.Flags()
	if !flags.Changed("i2c") {
		i2cName = rigCfg.GetI2CBus()
	}
	if !flags.Changed("trigger-pin") {
		triggerPin = rigCfg.GetTriggerPin()
	}
	if !flags.Changed("reset-pin") {
		resetPin = rigCfg.GetResetPin()
	}
	if !flags.Changed("replay") {
		replayDir = rigCfg.GetReplayDir()
	}
	return nil
}

func newLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.DisableStacktrace = true
	cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return cfg.Build()
}

// Execute runs the root command
func Execute() error {
	defer func() {
		if logger != nil {
			_ = logger.Sync()
		}
	}()
	return rootCmd.Execute()
}
