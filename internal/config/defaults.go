package config

const (
	defaultDataDir = "~/.local/share/greenroom/data"
	defaultLogDir  = "~/.local/share/greenroom/logs"

	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	defaultLogRetentionDays = 60

	defaultHoursPerUnitComplexity = 72.0
	defaultMinimumHours           = 72
	defaultReserveFloorHours      = 24
	defaultNeutralCollectionScore = 0.8

	defaultQuorum           = 5
	defaultPendingThrottle  = 5
	defaultReviewWindow     = 25
	defaultReviewExtension  = 1
	defaultThresholdWindow  = 100
	defaultDefaultThreshold = 0.8

	defaultSeniorityMultiplier   = 1.05
	defaultStandardReviewSeconds = 1200.0
	defaultNeutralQuality        = 0.7
	defaultNeutralPromptness     = 0.7

	defaultTickIntervalSeconds = 3600
	defaultErrorRetrySeconds   = 10

	defaultNotifyRequestTimeout = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Assignment: Assignment{
			HoursPerUnitComplexity: defaultHoursPerUnitComplexity,
			MinimumHours:           defaultMinimumHours,
			ReserveFloorHours:      defaultReserveFloorHours,
			NeutralCollectionScore: defaultNeutralCollectionScore,
		},
		Review: Review{
			Quorum:           defaultQuorum,
			PendingThrottle:  defaultPendingThrottle,
			WindowHours:      defaultReviewWindow,
			ExtensionHours:   defaultReviewExtension,
			ThresholdWindow:  defaultThresholdWindow,
			DefaultThreshold: defaultDefaultThreshold,
		},
		Rating: Rating{
			SeniorityMultiplier:   defaultSeniorityMultiplier,
			StandardReviewSeconds: defaultStandardReviewSeconds,
			NeutralQuality:        defaultNeutralQuality,
			NeutralPromptness:     defaultNeutralPromptness,
		},
		Scheduler: Scheduler{
			TickIntervalSeconds: defaultTickIntervalSeconds,
			ErrorRetrySeconds:   defaultErrorRetrySeconds,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Assignments:    true,
			Reviews:        true,
			Deadlines:      true,
			Errors:         true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
