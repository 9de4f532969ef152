package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/eventbus/pkg/observability"
)

// fileConfig is the YAML layout of the config file. Absent keys keep the
// environment value.
//
//	log_level: debug
//	dispatch:
//	  thread_pool_size: 10
//	  async_to_sync_thread_ratio: 0.5
//	  timeout: 2s
//	  ignore_timeout: ["audit.", "metrics*"]
//	  async_daemon: false
type fileConfig struct {
	LogLevel *string `yaml:"log_level"`
	Dispatch struct {
		ThreadPoolSize         *int      `yaml:"thread_pool_size"`
		AsyncToSyncThreadRatio *float64  `yaml:"async_to_sync_thread_ratio"`
		Timeout                *string   `yaml:"timeout"`
		IgnoreTimeout          *[]string `yaml:"ignore_timeout"`
		AsyncDaemon            *bool     `yaml:"async_daemon"`
	} `yaml:"dispatch"`
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("%w: failed to parse config file %s: %v", ErrInvalidConfig, path, err)
	}

	if fc.LogLevel != nil {
		c.Observability.LogLevel = observability.ParseLogLevel(*fc.LogLevel)
	}

	d := fc.Dispatch
	if d.ThreadPoolSize != nil {
		c.Dispatch.ThreadPoolSize = *d.ThreadPoolSize
	}
	if d.AsyncToSyncThreadRatio != nil {
		c.Dispatch.AsyncToSyncThreadRatio = *d.AsyncToSyncThreadRatio
	}
	if d.Timeout != nil {
		timeout, err := time.ParseDuration(*d.Timeout)
		if err != nil {
			return fmt.Errorf("%w: invalid timeout %q in %s", ErrInvalidConfig, *d.Timeout, path)
		}
		c.Dispatch.Timeout = timeout
	}
	if d.IgnoreTimeout != nil {
		c.Dispatch.IgnoreTimeout = append([]string(nil), (*d.IgnoreTimeout)...)
	}
	if d.AsyncDaemon != nil {
		c.Dispatch.AsyncDaemon = *d.AsyncDaemon
	}

	return nil
}

// Watcher re-resolves the configuration whenever the config file changes.
type Watcher struct {
	base    Config
	path    string
	logger  *observability.Logger
	watcher *fsnotify.Watcher
}

// NewWatcher watches base.ConfigFile. base should be the environment-only
// configuration (see LoadEnv) so that keys removed from the file fall back
// to their environment values.
func NewWatcher(base Config, logger *observability.Logger) (*Watcher, error) {
	if base.ConfigFile == "" {
		return nil, fmt.Errorf("%w: no config file to watch", ErrInvalidConfig)
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	path := filepath.Clean(base.ConfigFile)
	// editors replace files, so watch the directory
	if err := fw.Add(filepath.Dir(path)); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	return &Watcher{
		base:    base,
		path:    path,
		logger:  logger.WithField("config_file", path),
		watcher: fw,
	}, nil
}

// Run calls onChange with every successfully resolved configuration until
// ctx is done. Invalid files are logged and skipped.
func (w *Watcher) Run(ctx context.Context, onChange func(*Config)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			cfg, err := w.base.Resolve()
			if err != nil {
				w.logger.WithError(err).Warn("Ignoring invalid config file")
				continue
			}
			w.logger.WithFields(cfg.Dispatch.Fields()).Info("Config file changed")
			onChange(cfg)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Warn("Config watcher error")
		}
	}
}

// Close stops watching
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
