package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mapweave/mapweave/pkg/transport"
)

// Config holds the per-profile settings mapweave needs: the fallback proxy
// and the runtime knobs.
type Config struct {
	ProxyURL      string `mapstructure:"proxy_url" toml:"proxy_url,omitempty" validate:"omitempty,url"`
	ProxyUsername string `mapstructure:"proxy_username" toml:"proxy_username,omitempty"`
	ProxyPassword string `mapstructure:"proxy_password" toml:"proxy_password,omitempty"`
	TempDir       string `mapstructure:"temp_dir" toml:"temp_dir,omitempty"`
	Concurrency   int    `mapstructure:"concurrency" toml:"concurrency,omitempty" validate:"omitempty,min=1,max=64"`
}

var validate = validator.New()

// configureCmd represents the configure command
var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Store proxy and runtime settings in ~/.mapweave.",
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := newConfigFromDir()
		if err != nil {
			return err
		}

		var configVars = []struct {
			prompt string
			val    *string
		}{
			{"Proxy URL", &config.ProxyURL},
			{"Proxy user name", &config.ProxyUsername},
			{"Proxy password", &config.ProxyPassword},
			{"Temp directory", &config.TempDir},
		}
		for _, configVar := range configVars {
			fmt.Printf("%s", configVar.prompt)
			if val := *configVar.val; len(val) > 0 {
				fmt.Printf(" [%s]", val)
			}
			fmt.Printf(": ")

			var s string
			if n, err := fmt.Scanln(&s); err != nil && n > 0 {
				return errors.Errorf("your input is bogus: %v", err)
			}
			if len(s) > 0 {
				*configVar.val = s
			}
		}

		if err := validate.Struct(config); err != nil {
			return errors.Wrap(err, "configuration is not valid")
		}
		return writeConfig(&config)
	},
}

// newConfig returns the active profile's config merged with environment
// overrides, validated.
func newConfig() (Config, error) {
	var config Config
	if err := viper.UnmarshalKey(viper.GetString("profile"), &config); err != nil {
		return Config{}, err
	}
	if viper.IsSet("proxy_url") {
		config.ProxyURL = viper.GetString("proxy_url")
	}
	if viper.IsSet("proxy_username") {
		config.ProxyUsername = viper.GetString("proxy_username")
	}
	if viper.IsSet("proxy_password") {
		config.ProxyPassword = viper.GetString("proxy_password")
	}
	if config.Concurrency == 0 {
		config.Concurrency = 6
	}
	if config.TempDir == "" {
		dir, err := defaultTempDir()
		if err != nil {
			return Config{}, err
		}
		config.TempDir = dir
	}
	if err := validate.Struct(config); err != nil {
		return Config{}, errors.Wrap(err, "configuration is not valid")
	}
	return config, nil
}

func (c Config) proxy() *transport.Proxy {
	if c.ProxyURL == "" {
		return nil
	}
	return &transport.Proxy{URL: c.ProxyURL, UserName: c.ProxyUsername, Password: c.ProxyPassword}
}

// newConfigFromDir loads the active profile from the config file only.
func newConfigFromDir() (Config, error) {
	var config Config
	dir, err := mapweaveDir()
	if err != nil {
		return config, err
	}
	configs := make(map[string]Config)
	if _, err := toml.DecodeFile(filepath.Join(dir, configName+".toml"), &configs); err != nil && !os.IsNotExist(err) {
		return config, err
	}
	if c, ok := configs[viper.GetString("profile")]; ok {
		config = c
	}
	return config, nil
}

func writeConfig(config *Config) error {
	dir, err := mapweaveDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return errors.Wrapf(err, "failed making directory %s", dir)
	}

	configPath := filepath.Join(dir, configName+".toml")
	configs := make(map[string]Config)
	if _, err := toml.DecodeFile(configPath, &configs); err != nil && !os.IsNotExist(err) {
		return err
	}
	configs[viper.GetString("profile")] = *config

	f, err := os.Create(configPath)
	if err != nil {
		return errors.Wrapf(err, "failed creating %s", configPath)
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(configs)
}

// mapweaveDir returns the directory the config lives in.
func mapweaveDir() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", errors.Wrap(err, "failed finding home directory")
	}
	return filepath.Join(home, ".mapweave"), nil
}

// defaultTempDir is the scratch location for tiles and mosaics.
func defaultTempDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return filepath.Join(os.TempDir(), "mapweave"), nil
	}
	return filepath.Join(filepath.Dir(exe), "temp"), nil
}

func init() {
	rootCmd.AddCommand(configureCmd)
}
