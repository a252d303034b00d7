package shared

const (
	ProjectID = "steprally-project" // Can be overridden by GOOGLE_CLOUD_PROJECT

	TopicRefreshCompleted = "topic-refresh-completed"
	TopicRefreshTrigger   = "topic-refresh-trigger" // Cloud Scheduler publishes here

	CollectionParticipants   = "participants"
	CollectionStepsData      = "steps_data"
	CollectionDailyStepCache = "daily_steps_cache"
)
