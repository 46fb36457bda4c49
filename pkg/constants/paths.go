package constants

// Health and readiness paths, shared by router and deploy probes.
const (
	PathHealth = "/health"
	PathReady  = "/ready"
)
