package schema

// ProcessorConfig defines runtime limits for the room list processor.
type ProcessorConfig struct {
	// SubscriberDepth is the per-subscriber snapshot channel capacity.
	SubscriberDepth int
	// BuildConcurrency bounds parallel summary builds within one multi-room update.
	BuildConcurrency int
	// LogRoomNames includes room display names in update descriptions.
	LogRoomNames bool
	// TraceUpdates logs every applied update at trace level.
	TraceUpdates bool
}

const (
	// DefaultSubscriberDepth is the default snapshot channel capacity.
	DefaultSubscriberDepth = 16
	// DefaultBuildConcurrency is the default number of parallel summary builds.
	DefaultBuildConcurrency = 4
)

// NormalizeProcessorConfig applies defaults to unset limits.
func NormalizeProcessorConfig(cfg ProcessorConfig) ProcessorConfig {
	if cfg.SubscriberDepth <= 0 {
		cfg.SubscriberDepth = DefaultSubscriberDepth
	}
	if cfg.BuildConcurrency <= 0 {
		cfg.BuildConcurrency = DefaultBuildConcurrency
	}
	return cfg
}
