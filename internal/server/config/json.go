package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/passvault/internal/flagx"
	"github.com/dmitrijs2005/passvault/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON unmarshalling.
// It uses timex.Duration for interval fields, which allows parsing both
// string values such as "1s" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON configuration
// files. After unmarshalling, its fields are copied into the runtime Config
// struct which uses time.Duration.
type JsonConfig struct {
	DatabaseDSN                  string         `json:"database_dsn"`
	SecretKey                    string         `json:"secret_key"`
	InstallSalt                  string         `json:"install_salt"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration"`
	SyncInterval                 timex.Duration `json:"sync_interval"`
	DefaultGroupID               int64          `json:"default_group_id"`
	DefaultProfileID             int64          `json:"default_profile_id"`
	DirectoryEnabled             bool           `json:"directory_enabled"`
	DirectoryServer              string         `json:"directory_server"`
	DirectoryPort                int            `json:"directory_port"`
	DirectorySearchBase          string         `json:"directory_search_base"`
	DirectoryBindDN              string         `json:"directory_bind_dn"`
	DirectoryBindPassword        string         `json:"directory_bind_password"`
	DirectoryGroup               string         `json:"directory_group"`
	DirectoryVariant             string         `json:"directory_variant"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The lookup order for the JSON file path is:
//
//	The -c or -config command-line flags.
//	If it is not set, no JSON file is loaded.
//
// If the file path is found, parseJson attempts to read and unmarshal it
// into a JsonConfig. The resulting values are copied into the target Config.
// If the file cannot be read or contains invalid JSON, the function panics.
//
// The caller is expected to merge these values with defaults and
// command-line flags as part of the full configuration process.
func parseJson(config *Config) {

	// try flags
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	config.DatabaseDSN = c.DatabaseDSN
	config.SecretKey = c.SecretKey
	config.InstallSalt = c.InstallSalt
	config.AccessTokenValidityDuration = time.Duration(c.AccessTokenValidityDuration.Duration)
	config.RefreshTokenValidityDuration = time.Duration(c.RefreshTokenValidityDuration.Duration)
	config.SyncInterval = time.Duration(c.SyncInterval.Duration)
	config.DefaultGroupID = c.DefaultGroupID
	config.DefaultProfileID = c.DefaultProfileID
	config.DirectoryEnabled = c.DirectoryEnabled
	config.DirectoryServer = c.DirectoryServer
	config.DirectoryPort = c.DirectoryPort
	config.DirectorySearchBase = c.DirectorySearchBase
	config.DirectoryBindDN = c.DirectoryBindDN
	config.DirectoryBindPassword = c.DirectoryBindPassword
	config.DirectoryGroup = c.DirectoryGroup
	config.DirectoryVariant = c.DirectoryVariant
}
