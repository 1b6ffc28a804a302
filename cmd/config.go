package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/voidstore/storesync/selection"
	storesync "github.com/voidstore/storesync/sync"
)

// EnvPrefix prefixes every environment override, e.g. STORESYNC_STORE.
const EnvPrefix = "STORESYNC"

const (
	defaultStore      = "sqlite://~/.storesync/store.db"
	defaultConfigFile = "~/.storesync.yaml"
	defaultAddr       = "127.0.0.1:8420"
)

// Config is the resolved configuration of one invocation.
type Config struct {
	Store            string
	Password         string
	Debounce         time.Duration
	FetchConcurrency int
	Layout           selection.Layout
	RowWidth         int
	Addr             string
	LogDir           string
	LogLevel         string
	Inbox            string
	InboxDir         string
}

// newViper creates a viper instance with defaults and env binding. When
// cfgFile is empty the optional ~/.storesync.yaml is read.
func newViper(cfgFile string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("store", defaultStore)
	v.SetDefault("debounce", storesync.DefaultDebounce)
	v.SetDefault("fetch-concurrency", storesync.DefaultFetchConcurrency)
	v.SetDefault("layout", string(selection.Grid))
	v.SetDefault("row-width", selection.DefaultRowWidth)
	v.SetDefault("addr", defaultAddr)
	v.SetDefault("inbox-dir", "/Inbox")

	explicit := cfgFile != ""
	if !explicit {
		cfgFile = defaultConfigFile
	}
	path, err := homedir.Expand(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("expand %s: %w", cfgFile, err)
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil && explicit {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return v, nil
}

// bindFlags lets explicitly set flags win over file and env values.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		if err == nil && f.Name != "config" {
			err = v.BindPFlag(f.Name, f)
		}
	})
	return err
}

func loadConfig(v *viper.Viper) (Config, error) {
	cfg := Config{
		Store:            v.GetString("store"),
		Password:         v.GetString("password"),
		Debounce:         v.GetDuration("debounce"),
		FetchConcurrency: v.GetInt("fetch-concurrency"),
		Layout:           selection.ParseLayout(v.GetString("layout")),
		RowWidth:         v.GetInt("row-width"),
		Addr:             v.GetString("addr"),
		LogDir:           v.GetString("log-dir"),
		LogLevel:         v.GetString("log-level"),
		Inbox:            v.GetString("inbox"),
		InboxDir:         v.GetString("inbox-dir"),
	}
	if cfg.Debounce <= 0 {
		return cfg, fmt.Errorf("debounce must be positive, got %s", cfg.Debounce)
	}
	if cfg.FetchConcurrency <= 0 {
		return cfg, fmt.Errorf("fetch-concurrency must be positive, got %d", cfg.FetchConcurrency)
	}
	if cfg.RowWidth <= 0 {
		return cfg, fmt.Errorf("row-width must be positive, got %d", cfg.RowWidth)
	}
	if cfg.LogDir != "" {
		dir, err := homedir.Expand(cfg.LogDir)
		if err != nil {
			return cfg, err
		}
		cfg.LogDir = dir
	}
	if cfg.Inbox != "" {
		dir, err := homedir.Expand(cfg.Inbox)
		if err != nil {
			return cfg, err
		}
		cfg.Inbox = dir
	}
	return cfg, nil
}
