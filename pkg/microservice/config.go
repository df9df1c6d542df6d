package microservice

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// BaseConfig holds common configuration fields for all services.
type BaseConfig struct {
	ServiceName     string
	LogLevel        string
	LogFormat       string
	HTTPPort        string
	ProjectID       string
	ShutdownTimeout time.Duration
}

// Base flag names. Each resolves from the matching upper-case environment variable,
// e.g. log-level from LOG_LEVEL.
const (
	FlagLogLevel        = "log-level"
	FlagLogFormat       = "log-format"
	FlagHTTPPort        = "http-port"
	FlagProjectID       = "project-id"
	FlagShutdownTimeout = "shutdown-timeout"
)

// BindBaseFlags registers the flags every service understands.
func BindBaseFlags(flags *pflag.FlagSet, defaultPort string) {
	flags.String(FlagLogLevel, "info", "log level (debug, info, warn, error)")
	flags.String(FlagLogFormat, "json", "log format (json or console)")
	flags.String(FlagHTTPPort, defaultPort, "listen address for /healthz, /metrics and APIs")
	flags.String(FlagProjectID, "", "Google Cloud project id")
	flags.Duration(FlagShutdownTimeout, 15*time.Second, "graceful shutdown timeout")
}

// NewViper loads envFiles (missing files are ignored), parses args into flags and returns
// a viper instance that resolves every flag from the command line first, then the
// environment, then the flag default.
func NewViper(flags *pflag.FlagSet, args []string, envFiles ...string) (*viper.Viper, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", f, err)
		}
	}

	if err := flags.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(flags); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}
	return v, nil
}

// BaseConfigFrom reads the base flags out of v.
func BaseConfigFrom(v *viper.Viper, serviceName string) BaseConfig {
	return BaseConfig{
		ServiceName:     serviceName,
		LogLevel:        v.GetString(FlagLogLevel),
		LogFormat:       v.GetString(FlagLogFormat),
		HTTPPort:        v.GetString(FlagHTTPPort),
		ProjectID:       v.GetString(FlagProjectID),
		ShutdownTimeout: v.GetDuration(FlagShutdownTimeout),
	}
}
