package config

const (
	defaultUploadDir                 = "~/.local/share/collage/uploads"
	defaultStateDir                  = "~/.local/share/collage/state"
	defaultLogDir                    = "~/.local/share/collage/logs"
	defaultQueueBackend              = BackendSQLite
	defaultRedisURL                  = "redis://localhost:6379/0"
	defaultRedisPrefix               = "collage:"
	defaultPollIntervalMs            = 500
	defaultWorkflowWorkers           = 2
	defaultDecodeConcurrency         = 4
	defaultMaxInputPixels            = 50_000_000
	defaultWorkflowHeartbeatInterval = 5
	defaultWorkflowHeartbeatTimeout  = 60
	defaultErrorRetryInterval        = 5
	defaultLogFormat                 = "console"
	defaultLogLevel                  = "info"
	defaultLogRetentionDays          = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			UploadDir: defaultUploadDir,
			StateDir:  defaultStateDir,
			LogDir:    defaultLogDir,
		},
		Queue: Queue{
			Backend:        defaultQueueBackend,
			RedisPrefix:    defaultRedisPrefix,
			PollIntervalMs: defaultPollIntervalMs,
		},
		Workflow: Workflow{
			Workers:            defaultWorkflowWorkers,
			DecodeConcurrency:  defaultDecodeConcurrency,
			MaxInputPixels:     defaultMaxInputPixels,
			HeartbeatInterval:  defaultWorkflowHeartbeatInterval,
			HeartbeatTimeout:   defaultWorkflowHeartbeatTimeout,
			ErrorRetryInterval: defaultErrorRetryInterval,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
