package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/national-talent-atm/data-retrieval/internal/config"
	"github.com/national-talent-atm/data-retrieval/internal/logger"
)

var (
	configFile string
	targetDir  string
	logLevel   string

	// app is set up by the root pre-run hook.
	app *App
)

var rootCmd = &cobra.Command{
	Use:   "retrieve",
	Short: "Fetch Scopus and SciVal data into talent reports",
	Long: `retrieve reads author ids or names from <target>/<config-name>.txt,
fetches every resource through the response cache and writes a CSV report
to <target>/output/<config-name>/.

API keys are read from elsevier.keys in the config file, from
RETRIEVE_ELSEVIER_KEYS or from the comma separated ELSEVIER_KEY variable.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if app == nil {
			return nil
		}
		return app.Close()
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (default ./config.yml or $XDG_CONFIG_HOME/data-retrieval/config.yml)")
	flags.StringVar(&targetDir, "target", "", "directory holding the input lists and the output tree")
	flags.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")
}

func setup(cmd *cobra.Command, args []string) error {
	var opts []config.LoaderOption
	if configFile != "" {
		opts = append(opts, config.WithConfigFile(configFile))
	}
	c, err := config.Load(opts...)
	if err != nil {
		return err
	}
	if targetDir != "" {
		c.Target = targetDir
	}
	if logLevel != "" {
		c.Log.Level = logLevel
	}
	if err := c.Log.Validate(); err != nil {
		return err
	}

	logCloser, err := logger.Init(c.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	app, err = NewApp(cmd.Context(), c, logCloser)
	if err != nil {
		_ = logCloser.Close()
		return err
	}
	log.Debug().Str("command", cmd.Name()).Str("target", c.Target).Str("cache", c.Cache.Backend).Msg("configured")
	return nil
}
