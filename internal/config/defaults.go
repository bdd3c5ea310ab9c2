package config

// Pipeline modes.
const (
	ModeSilentVideo = "silent_video"
	ModeVocalsVideo = "vocals_video"
	ModeStemsOnly   = "stems_only"
)

// Separator engines.
const (
	EngineSpleeter = "spleeter"
	EngineDemucs   = "demucs"
)

// Sink kinds.
const (
	SinkNone = "none"
	SinkS3   = "s3"
	SinkDir  = "dir"
)

// Records drivers.
const (
	RecordsSQLite   = "sqlite"
	RecordsPostgres = "postgres"
	RecordsNone     = "none"
)

const (
	defaultConfigPath         = "~/.config/stemsplit/config.toml"
	defaultStagingDir         = "~/.local/share/stemsplit/staging"
	defaultOutputDir          = "~/stemsplit/output"
	defaultLogDir             = "~/.local/share/stemsplit/logs"
	defaultVideoContainer     = "webm"
	defaultSpleeterModel      = "spleeter:2stems"
	defaultDemucsModel        = "htdemucs"
	defaultTranscriptionBin   = "whisperx"
	defaultTranscriptionModel = "small"
	defaultSinkAttempts       = 3
	defaultBackoff            = "exponential"
	defaultBackoffInitialMS   = 1000
	defaultBackoffMaxMS       = 30000
	defaultS3Region           = "us-east-1"
	defaultS3Prefix           = "stemsplit"
	defaultDownloadTimeout    = 600
	defaultDownloadMaxBytes   = 8 << 30
	defaultDownloadAttempts   = 3
	defaultStaleStagingHours  = 24
	defaultNotifyTimeout      = 10
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			OutputDir:  defaultOutputDir,
			LogDir:     defaultLogDir,
		},
		Pipeline: Pipeline{
			Mode:            ModeSilentVideo,
			VideoContainer:  defaultVideoContainer,
			VideoExtensions: []string{".mp4", ".mkv"},
			FFmpegBinary:    "ffmpeg",
			FFprobeBinary:   "ffprobe",
		},
		Separator: Separator{
			Engine: EngineSpleeter,
		},
		Transcription: Transcription{
			Binary: defaultTranscriptionBin,
			Model:  defaultTranscriptionModel,
		},
		Workflow: Workflow{
			Concurrency:       1,
			StaleStagingHours: defaultStaleStagingHours,
		},
		Sink: Sink{
			Kind:             SinkNone,
			MaxAttempts:      defaultSinkAttempts,
			Backoff:          defaultBackoff,
			BackoffInitialMS: defaultBackoffInitialMS,
			BackoffMaxMS:     defaultBackoffMaxMS,
		},
		S3: S3{
			Region: defaultS3Region,
			Prefix: defaultS3Prefix,
			UseSSL: true,
		},
		Records: Records{
			Driver: RecordsSQLite,
		},
		Download: Download{
			TimeoutSeconds: defaultDownloadTimeout,
			MaxBytes:       defaultDownloadMaxBytes,
			MaxAttempts:    defaultDownloadAttempts,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
