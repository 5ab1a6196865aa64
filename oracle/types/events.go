package types

// Contract event names
const (
	// EventOracleRequest is emitted when the contract asks oracles holding an index for a flight status
	EventOracleRequest = "OracleRequest"

	// EventOracleRegistered is emitted once per oracle registration with its three assigned indices
	EventOracleRegistered = "OracleRegistered"
)

// Contract method names
const (
	MethodSubmitOracleResponse = "submitOracleResponse"
	MethodGetMyIndexes         = "getMyIndexes"
)

// Metric keys
var (
	MetricSubmission   = []string{"oracle", "submission"}
	MetricEvent        = []string{"oracle", "event"}
	MetricResubscribe  = []string{"oracle", "listener", "resubscribe"}
	MetricRegistryPut  = []string{"oracle", "registry", "put"}
	MetricConsultation = []string{"oracle", "consultation"}
)
