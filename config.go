package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	adminPasswordHash string
	adminUser         string
	bind              string
	compressDimension uint
	compressThreshold int
	database          string
	matchDelay        time.Duration
	maxUploadSize     int64
	mismatchDelay     time.Duration
	port              int
	prefix            string
	profile           bool
	sessionTimeout    time.Duration
	storage           string
	storageQuota      int64
	tlsCert           string
	tlsKey            string
	verbose           bool
	version           bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.maxUploadSize < 1 {
		return fmt.Errorf("invalid max upload size (must be positive): %d", c.maxUploadSize)
	}
	if c.storageQuota < 1 {
		return fmt.Errorf("invalid storage quota (must be positive): %d", c.storageQuota)
	}
	if c.matchDelay < 0 || c.mismatchDelay < 0 {
		return errors.New("--match-delay and --mismatch-delay cannot be negative")
	}
	if c.adminPasswordHash != "" && c.adminUser == "" {
		return errors.New("--admin-user cannot be empty when --admin-password-hash is set")
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func (c *Config) adminEnabled() bool {
	return c.adminPasswordHash != ""
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("MEMORYBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "memorybox",
		Short:         "A card-pairs memory game with an image admin panel and a leaderboard.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVar(&cfg.adminPasswordHash, "admin-password-hash", "", "bcrypt hash of the admin password; admin panel is disabled when empty (env: MEMORYBOX_ADMIN_PASSWORD_HASH)")
	fs.StringVar(&cfg.adminUser, "admin-user", "admin", "username for the admin panel (env: MEMORYBOX_ADMIN_USER)")
	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: MEMORYBOX_BIND)")
	fs.UintVar(&cfg.compressDimension, "compress-dimension", 512, "longest side, in pixels, of downscaled uploads (env: MEMORYBOX_COMPRESS_DIMENSION)")
	fs.IntVar(&cfg.compressThreshold, "compress-threshold", 200*1000, "uploads larger than this many bytes are downscaled; 0 disables (env: MEMORYBOX_COMPRESS_THRESHOLD)")
	fs.StringVar(&cfg.database, "database", "memorybox.db", "path to the leaderboard database (env: MEMORYBOX_DATABASE)")
	fs.DurationVar(&cfg.matchDelay, "match-delay", 500*time.Millisecond, "time both faces stay visible before a match resolves (env: MEMORYBOX_MATCH_DELAY)")
	fs.Int64Var(&cfg.maxUploadSize, "max-upload-size", 5*1000*1000, "maximum size of an uploaded image, in bytes (env: MEMORYBOX_MAX_UPLOAD_SIZE)")
	fs.DurationVar(&cfg.mismatchDelay, "mismatch-delay", time.Second, "time both faces stay visible before a mismatch resolves (env: MEMORYBOX_MISMATCH_DELAY)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: MEMORYBOX_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: MEMORYBOX_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: MEMORYBOX_PROFILE)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle game sessions are ended (env: MEMORYBOX_SESSION_TIMEOUT)")
	fs.StringVar(&cfg.storage, "storage", "sqlite:memorybox.db", "image catalog storage: memory:, sqlite:<path> or redis://<host>:<port>/<db> (env: MEMORYBOX_STORAGE)")
	fs.Int64Var(&cfg.storageQuota, "storage-quota", 5*1024*1024, "maximum bytes the image catalog may occupy (env: MEMORYBOX_STORAGE_QUOTA)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: MEMORYBOX_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: MEMORYBOX_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: MEMORYBOX_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: MEMORYBOX_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("memorybox v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
