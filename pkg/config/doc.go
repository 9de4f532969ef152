// Package config provides application configuration management from
// environment variables and an optional YAML file.
//
// # Overview
//
// Settings are read from EVENTBUS_* environment variables with sensible
// defaults. When EVENTBUS_CONFIG_FILE names a YAML file, its dispatch
// settings and log level override the environment and the file is watched
// for changes.
//
// # Configuration Structure
//
// Server settings:
//
//	EVENTBUS_HOST="0.0.0.0"
//	EVENTBUS_PORT="8080"
//	EVENTBUS_READ_TIMEOUT="15s"
//	EVENTBUS_WRITE_TIMEOUT="15s"
//	EVENTBUS_IDLE_TIMEOUT="60s"
//	EVENTBUS_SHUTDOWN_TIMEOUT="30s"
//
// Dispatch settings:
//
//	EVENTBUS_THREAD_POOL_SIZE="20"              # below 2 uses the default
//	EVENTBUS_ASYNC_TO_SYNC_THREAD_RATIO="0.5"   # negative uses the default
//	EVENTBUS_TIMEOUT="5s"                       # bare numbers are milliseconds, 100ms or less disables
//	EVENTBUS_IGNORE_TIMEOUT="audit.,metrics*"   # package., prefix* or exact handler names
//	EVENTBUS_ASYNC_DAEMON="false"
//
// Observability settings:
//
//	EVENTBUS_LOG_LEVEL="info"
//	EVENTBUS_METRICS_ENABLED="true"
//	EVENTBUS_OTEL_ENABLED="false"
//	EVENTBUS_OTEL_ENDPOINT="localhost:4317"
//	EVENTBUS_OTEL_SERVICE_NAME="eventbusd"
//	EVENTBUS_OTEL_SAMPLE_RATIO="1"
//
// # Usage
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Dispatch.AsyncPoolSize())
//
// Watching the config file:
//
//	w, err := config.NewWatcher(config.LoadEnv(), logger)
//	go w.Run(ctx, func(cfg *config.Config) {
//	    engine.Update(cfg.Dispatch)
//	})
package config
