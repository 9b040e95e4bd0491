package params

import (
	"os"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// LoadConfigFile loads, unmarshals, and applies a platform config file. The
// file holds a partial set of overrides on top of the mainnet defaults; an
// unknown key is a fatal error so typos cannot silently run with defaults.
func LoadConfigFile(configFileName string) {
	yamlFile, err := os.ReadFile(configFileName) // #nosec G304
	if err != nil {
		log.WithError(err).Fatal("Failed to read platform config file.")
	}
	conf := MainnetConfig().Copy()
	if err := yaml.UnmarshalStrict(yamlFile, conf); err != nil {
		log.WithError(err).Fatal("Failed to parse platform config yaml file.")
	}
	log.Debugf("Config file values: %+v", conf)
	OverridePlatformConfig(conf)
}
