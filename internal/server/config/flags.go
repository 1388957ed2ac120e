package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/passvault/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-d string    PostgreSQL DSN
//	-s string    JWT HMAC secret key
//	-x string    installation salt
//	-t int       access token validity, minutes
//	-r int       refresh token validity, minutes
//	-i int       directory sync interval, minutes
//	-de bool     enable directory authentication
//	-ds string   directory server host
//	-dp int      directory port
//	-db string   directory search base DN
//	-du string   directory bind DN (service account)
//	-dw string   directory bind password
//	-dg string   directory group specifier (DN, CN, or "*")
//	-dv string   directory schema variant ("ldap" or "ad")
//
// Notes:
//   - The function first filters os.Args to only the flags it recognizes using
//     flagx.FilterArgs, avoiding collisions with other components.
//   - Duration flags are accepted as integers in minutes and then converted
//     to time.Duration values.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{
		"-d", "-s", "-x", "-t", "-r", "-i",
		"-de", "-ds", "-dp", "-db", "-du", "-dw", "-dg", "-dv",
	})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.InstallSalt, "x", config.InstallSalt, "installation salt")

	accessTokenValidityDuration := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access_token_validity_duration (in minutes)")
	refreshTokenValidityDuration := fs.Int("r", int(config.RefreshTokenValidityDuration.Minutes()), "refresh_token_validity_duration (in minutes)")
	syncInterval := fs.Int("i", int(config.SyncInterval.Minutes()), "sync_interval (in minutes)")

	fs.BoolVar(&config.DirectoryEnabled, "de", config.DirectoryEnabled, "enable directory authentication")
	fs.StringVar(&config.DirectoryServer, "ds", config.DirectoryServer, "directory server host")
	fs.IntVar(&config.DirectoryPort, "dp", config.DirectoryPort, "directory port")
	fs.StringVar(&config.DirectorySearchBase, "db", config.DirectorySearchBase, "directory search base DN")
	fs.StringVar(&config.DirectoryBindDN, "du", config.DirectoryBindDN, "directory bind DN")
	fs.StringVar(&config.DirectoryBindPassword, "dw", config.DirectoryBindPassword, "directory bind password")
	fs.StringVar(&config.DirectoryGroup, "dg", config.DirectoryGroup, "directory group specifier")
	fs.StringVar(&config.DirectoryVariant, "dv", config.DirectoryVariant, "directory schema variant")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.AccessTokenValidityDuration = time.Duration(*accessTokenValidityDuration) * time.Minute
	config.RefreshTokenValidityDuration = time.Duration(*refreshTokenValidityDuration) * time.Minute
	config.SyncInterval = time.Duration(*syncInterval) * time.Minute
}
