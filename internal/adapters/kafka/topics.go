package kafka

const (
	// TopicAnalysisCompleted carries a compact result of every analysis run
	TopicAnalysisCompleted = "risk.health_factor.analyzed"

	// TopicAnalysisRequests carries on-demand analysis requests
	TopicAnalysisRequests = "risk.health_factor.requests"
)
