// Command button-blinker debounces two buttons on GPIO and blinks an output
// per button, publishing presses to MQTT and serving status over HTTP.
package main

import (
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sweeney/button-blinker/internal/config"
	"github.com/sweeney/button-blinker/internal/gpio"
	"github.com/sweeney/button-blinker/internal/logging"
)

const defaultConfigPath = "/etc/button-blinker/config.toml"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "button-blinker",
		Short:         "Debounced two-button blinker daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := loadConfig(path, cmd.Flags())
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg, os.Stderr)
			if err != nil {
				return err
			}
			for _, w := range cfg.warnings {
				logger.WithField("component", "config").Warn(w)
			}
			return run(cmd.Context(), cfg.Config, path, cmd.Flags(), logger)
		},
	}

	fs := root.PersistentFlags()
	fs.StringP("config", "c", defaultConfigPath, "Config file (missing file means defaults)")
	fs.String("log-level", "", "Log level: trace, debug, info, warn, error")
	fs.String("http", "", `HTTP status address ("" in config disables)`)
	fs.String("broker", "", "MQTT broker URL, e.g. tcp://192.168.1.200:1883")
	fs.String("ws-broker", "", `MQTT websocket URL for live UI ("=broker" derives from --broker, "off" disables)`)
	fs.String("chip", "", "GPIO chip name")

	root.AddCommand(newStateCmd())
	return root
}

func newStateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Print the current level of the input and output lines and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := loadConfig(path, cmd.Flags())
			if err != nil {
				return err
			}
			chip, err := gpio.NewCdevChip(cdevOptions(cfg.Config))
			if err != nil {
				return fmt.Errorf("init gpio: %w", err)
			}
			defer chip.Close()
			return printState(cmd.OutOrStdout(), chip, cfg.Config)
		},
	}
}

type loadedConfig struct {
	config.Config
	warnings []string
}

// loadConfig layers file, environment and explicitly set flags, then
// validates the result.
func loadConfig(path string, fs *pflag.FlagSet) (loadedConfig, error) {
	cfg, err := config.LoadWithEnv(path)
	if err != nil {
		return loadedConfig{}, err
	}
	applyFlags(fs, &cfg)
	warnings, err := cfg.Validate()
	if err != nil {
		return loadedConfig{}, fmt.Errorf("invalid config: %w", err)
	}
	return loadedConfig{Config: cfg, warnings: warnings}, nil
}

// applyFlags copies flags the user set on the command line over cfg.
func applyFlags(fs *pflag.FlagSet, cfg *config.Config) {
	fs.Visit(func(f *pflag.Flag) {
		v := f.Value.String()
		switch f.Name {
		case "log-level":
			cfg.Log.Level = v
		case "http":
			cfg.HTTP.Addr = v
		case "broker":
			cfg.MQTT.Broker = v
		case "ws-broker":
			cfg.MQTT.WSBroker = v
		case "chip":
			cfg.GPIO.Chip = v
		}
	})
}

func newLogger(cfg config.Config, out io.Writer) (*log.Logger, error) {
	logger, err := logging.New(out, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	if cfg.Log.Journal && logging.UseJournal(logger, "button-blinker") {
		logger.Debug("logging to systemd journal")
	}
	return logger, nil
}

func cdevOptions(cfg config.Config) gpio.CdevOptions {
	return gpio.CdevOptions{
		Chip:      cfg.GPIO.Chip,
		Consumer:  cfg.GPIO.Consumer,
		ActiveLow: cfg.GPIO.ActiveLow,
		Bias:      gpio.Bias(cfg.GPIO.Bias),
		Offsets:   cfg.Offsets(),
	}
}
