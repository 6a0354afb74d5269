package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const configName = "config"

// these are populated by goreleaser when you build a release with that tool.
var (
	version = "head"
	commit  = "head"
	date    = "none"
)

var logger zerolog.Logger

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use: "mapweave",
	Long: `mapweave pulls rasters out of OGC map services.

Point it at a WMS or WMTS capabilities URL and it discovers the service's
layers, plans the tiles covering your viewport, downloads them
concurrently, reprojects them, and mosaics everything into one
georeferenced GeoTIFF (optionally a GeoPackage pyramid).

Proxy settings and defaults live in ~/.mapweave/config.toml ('mapweave
configure'), overridable per profile via --profile and through
MAPWEAVE_* environment variables.
`,
	Version: fmt.Sprintf("%v, commit %v, built at %v", version, commit, date),
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("profile", "default", "config profile to use")
	rootCmd.PersistentFlags().Bool("verbose", false, "log per-tile progress")
	viper.BindPFlag("profile", rootCmd.PersistentFlags().Lookup("profile"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	viper.SetEnvPrefix("mapweave")
	viper.BindEnv("proxy_url")
	viper.BindEnv("proxy_username")
	viper.BindEnv("proxy_password")

	cobra.OnInitialize(initConfig)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	viper.RegisterAlias("ActiveConfig", viper.GetString("profile"))

	dir, err := mapweaveDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed getting path of mapweave directory, err: %+v\n", err)
		os.Exit(1)
	}

	viper.SetConfigName(configName)
	viper.AddConfigPath(dir)
	viper.ReadInConfig()

	level := zerolog.InfoLevel
	if viper.GetBool("verbose") {
		level = zerolog.DebugLevel
	}
	logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()
}
