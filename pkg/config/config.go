// Copyright 2025 The fawa Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/fawa-io/filedrop/pkg/fwlog"
)

const (
	// DefaultMaxBytes is the upload size ceiling, 10 MiB.
	DefaultMaxBytes int64 = 10 << 20
	// DefaultLinkValidity is how long an issued access link stays valid.
	DefaultLinkValidity = 5 * time.Minute
	// MaxLinkValidity is the longest window a SigV4 presigned URL accepts.
	MaxLinkValidity = 7 * 24 * time.Hour
	// MinPartSize is the smallest multipart chunk S3-compatible stores take.
	MinPartSize int64 = 5 << 20
)

type Config struct {
	Addr      string          `mapstructure:"addr"`
	CertFile  string          `mapstructure:"certFile"`
	KeyFile   string          `mapstructure:"keyFile"`
	LogLevel  string          `mapstructure:"logLevel"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Upload    UploadConfig    `mapstructure:"upload"`
	Mail      MailConfig      `mapstructure:"mail"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
}

type StorageConfig struct {
	// Backend is "minio" for any S3-compatible endpoint or "s3" for AWS.
	Backend      string `mapstructure:"backend"`
	Endpoint     string `mapstructure:"endpoint"`
	Region       string `mapstructure:"region"`
	AccessKey    string `mapstructure:"accessKey"`
	SecretKey    string `mapstructure:"secretKey"`
	Bucket       string `mapstructure:"bucket"`
	UseSSL       bool   `mapstructure:"useSSL"`
	Prefix       string `mapstructure:"prefix"`
	PartSize     int64  `mapstructure:"partSize"`
	Retries      int    `mapstructure:"retries"`
	CreateBucket bool   `mapstructure:"createBucket"`
}

type UploadConfig struct {
	MaxBytes     int64         `mapstructure:"maxBytes"`
	LinkValidity time.Duration `mapstructure:"linkValidity"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type MailConfig struct {
	// Transport is one of "sendgrid", "smtp" or "log".
	Transport   string     `mapstructure:"transport"`
	FromAddress string     `mapstructure:"fromAddress"`
	FromName    string     `mapstructure:"fromName"`
	Subject     string     `mapstructure:"subject"`
	SendGridKey string     `mapstructure:"sendgridKey"`
	SMTP        SMTPConfig `mapstructure:"smtp"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	UseTLS   bool   `mapstructure:"useTLS"`
}

type RateLimitConfig struct {
	// RedisAddr empty disables rate limiting.
	RedisAddr    string        `mapstructure:"redisAddr"`
	PerRecipient int64         `mapstructure:"perRecipient"`
	Window       time.Duration `mapstructure:"window"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("addr", "127.0.0.1:8080")
	v.SetDefault("certFile", "")
	v.SetDefault("keyFile", "")
	v.SetDefault("logLevel", "info")

	v.SetDefault("storage.backend", "minio")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.accessKey", "")
	v.SetDefault("storage.secretKey", "")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.useSSL", true)
	v.SetDefault("storage.prefix", "uploads")
	v.SetDefault("storage.partSize", 16<<20)
	v.SetDefault("storage.retries", 3)
	v.SetDefault("storage.createBucket", false)

	v.SetDefault("upload.maxBytes", DefaultMaxBytes)
	v.SetDefault("upload.linkValidity", DefaultLinkValidity)
	v.SetDefault("upload.timeout", 30*time.Second)

	v.SetDefault("mail.transport", "sendgrid")
	v.SetDefault("mail.fromAddress", "")
	v.SetDefault("mail.fromName", "FileDrop")
	v.SetDefault("mail.subject", "FileDrop pre-signed link")
	v.SetDefault("mail.sendgridKey", "")
	v.SetDefault("mail.smtp.host", "")
	v.SetDefault("mail.smtp.port", "587")
	v.SetDefault("mail.smtp.username", "")
	v.SetDefault("mail.smtp.password", "")
	v.SetDefault("mail.smtp.useTLS", false)

	v.SetDefault("ratelimit.redisAddr", "")
	v.SetDefault("ratelimit.perRecipient", 5)
	v.SetDefault("ratelimit.window", time.Hour)
}

// RegisterFlags adds the command-line overrides understood by Load.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to a config file (default: ./config.yaml or /etc/filedrop/config.yaml)")
	fs.String("addr", "", "HTTP service address (e.g., '127.0.0.1:9090')")
	fs.String("certFile", "", "Path to the TLS certificate file.")
	fs.String("keyFile", "", "Path to the TLS private key file.")
	fs.String("logLevel", "", "Log level: debug, info, warn, error.")
	fs.String("storage.backend", "", "Object store backend: minio or s3.")
	fs.String("storage.bucket", "", "Bucket that receives uploads.")
	fs.String("mail.transport", "", "Mail transport: sendgrid, smtp or log.")
}

// Load resolves configuration from flags, FILEDROP_* environment variables,
// an optional yaml file and defaults, in that order of precedence. The
// returned Config is a value and is never mutated afterwards; the viper
// instance is only needed for WatchLogLevel.
func Load(fs *pflag.FlagSet, args []string) (Config, *viper.Viper, error) {
	var cfg Config
	if fs == nil {
		fs = pflag.NewFlagSet("filedrop", pflag.ContinueOnError)
		RegisterFlags(fs)
	}
	if !fs.Parsed() {
		if err := fs.Parse(args); err != nil {
			return cfg, nil, fmt.Errorf("failed to parse flags: %w", err)
		}
	}

	v := viper.New()
	setDefaults(v)

	// Only explicitly set flags override; unset ones would shadow defaults
	// with empty strings.
	var bindErr error
	fs.Visit(func(f *pflag.Flag) {
		if f.Name == "config" {
			return
		}
		if err := v.BindPFlag(f.Name, f); err != nil && bindErr == nil {
			bindErr = err
		}
	})
	if bindErr != nil {
		return cfg, nil, fmt.Errorf("failed to bind pflags: %w", bindErr)
	}

	v.SetEnvPrefix("FILEDROP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path, _ := fs.GetString("config"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/filedrop/")
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			fwlog.Infof("Config file not found, using flags, environment and defaults.")
		} else {
			return cfg, nil, fmt.Errorf("fatal error config file: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, nil, fmt.Errorf("the configuration cannot be decoded into the struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, nil, err
	}
	return cfg, v, nil
}

// Validate reports the first setting that would make the pipeline unusable.
func (c Config) Validate() error {
	switch c.Storage.Backend {
	case "minio":
		if c.Storage.Endpoint == "" {
			return errors.New("config: storage.endpoint is required for the minio backend")
		}
	case "s3":
	default:
		return fmt.Errorf("config: unknown storage.backend %q", c.Storage.Backend)
	}
	if c.Storage.Bucket == "" {
		return errors.New("config: storage.bucket is required")
	}
	if c.Storage.PartSize < MinPartSize {
		return fmt.Errorf("config: storage.partSize must be at least %d bytes", MinPartSize)
	}
	if c.Storage.Retries < 0 {
		return errors.New("config: storage.retries must not be negative")
	}
	if c.Upload.MaxBytes <= 0 {
		return errors.New("config: upload.maxBytes must be positive")
	}
	if c.Upload.LinkValidity <= 0 || c.Upload.LinkValidity > MaxLinkValidity {
		return fmt.Errorf("config: upload.linkValidity must be in (0, %s]", MaxLinkValidity)
	}
	if c.Upload.Timeout <= 0 {
		return errors.New("config: upload.timeout must be positive")
	}

	switch c.Mail.Transport {
	case "sendgrid":
		if c.Mail.SendGridKey == "" {
			return errors.New("config: mail.sendgridKey is required for the sendgrid transport")
		}
	case "smtp":
		if c.Mail.SMTP.Host == "" || c.Mail.SMTP.Port == "" {
			return errors.New("config: mail.smtp.host and mail.smtp.port are required for the smtp transport")
		}
	case "log":
	default:
		return fmt.Errorf("config: unknown mail.transport %q", c.Mail.Transport)
	}
	if c.Mail.FromAddress == "" {
		return errors.New("config: mail.fromAddress is required")
	}

	if c.RateLimit.RedisAddr != "" && (c.RateLimit.PerRecipient <= 0 || c.RateLimit.Window <= 0) {
		return errors.New("config: ratelimit.perRecipient and ratelimit.window must be positive")
	}
	if _, err := fwlog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// WatchLogLevel reloads the config file on change and hands the new log
// level to apply. Nothing else is reloaded: the rest of Config is fixed for
// the process lifetime.
func WatchLogLevel(v *viper.Viper, apply func(fwlog.Level)) {
	if v == nil || v.ConfigFileUsed() == "" {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		fwlog.Infof("Config file %s changed, reloading log level", e.Name)

		lv, err := fwlog.ParseLevel(v.GetString("logLevel"))
		if err != nil {
			fwlog.Warnf("New log level in config is invalid: %v. Keeping previous level.", err)
			return
		}
		apply(lv)
		fwlog.Infof("Log level reloaded successfully to: %s", lv)
	})
	v.WatchConfig()
}
