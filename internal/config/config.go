package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// LoadServerConfig loads webcashd's configuration.  A webcashd.conf file in
// the current directory is honored when present; otherwise the defaults
// apply.  A .env file, if present, is loaded first so that deployments can
// override settings through the environment.
func LoadServerConfig() error {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return fmt.Errorf("error loading .env file: %w", err)
		}
	}

	viper.SetConfigName("webcashd")
	viper.SetConfigType("ini")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	setServerDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// No webcashd.conf; run on defaults.
			return nil
		}
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

func setServerDefaults() {
	viper.SetDefault("port", 8000)
	viper.SetDefault("database", "webcashd.db")
	viper.SetDefault("log_file", "webcashd.log")
	viper.SetDefault("terms_html", "terms/terms.html")
	viper.SetDefault("terms_text", "terms/terms.text")
	viper.SetDefault("difficulty", 28)
}
