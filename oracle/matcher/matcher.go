package matcher

import (
	"github.com/GPTx-global/flight-oracle/oracle/types"
)

// FindEligible returns the oracles of snapshot that were assigned index, in snapshot order.
// The snapshot is not modified. An empty result means no known oracle can answer.
func FindEligible(snapshot []types.Oracle, index uint8) []types.Oracle {
	eligible := make([]types.Oracle, 0, len(snapshot))
	for _, oracle := range snapshot {
		if oracle.Handles(index) {
			eligible = append(eligible, oracle)
		}
	}

	return eligible
}
