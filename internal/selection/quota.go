package selection

import (
	"encoding/json"
	"strconv"
)

// Quota is the number of new agents a client should have selected today.
type Quota int

// Unbounded marks the exempt client: every qualifying recording is taken.
const Unbounded Quota = -1

func (q Quota) IsUnbounded() bool { return q == Unbounded }

// Allows reports whether another agent fits under the quota.
func (q Quota) Allows(selected int) bool {
	return q.IsUnbounded() || selected < int(q)
}

func (q Quota) String() string {
	if q.IsUnbounded() {
		return "all"
	}
	return strconv.Itoa(int(q))
}

func (q Quota) MarshalJSON() ([]byte, error) {
	if q.IsUnbounded() {
		return json.Marshal("all")
	}
	return json.Marshal(int(q))
}

// AllocateQuotas computes each client's daily agent quota:
//
//	ceil((agents seen this week - agents already selected) / working days left)
//
// floored at zero. The exempt client is unbounded. Quotas are recomputed from
// scratch on every run, so a missed day is absorbed by the following ones.
// Unknown-agent sentinels must be filtered out by the caller.
func AllocateQuotas(agentsByClient map[string]map[string]struct{}, selectedByClient map[string]int, remainingDays int, exemptClient string) map[string]Quota {
	if remainingDays < 1 {
		remainingDays = 1
	}

	quotas := make(map[string]Quota, len(agentsByClient))
	for client, agents := range agentsByClient {
		if client == exemptClient {
			quotas[client] = Unbounded
			continue
		}
		pending := len(agents) - selectedByClient[client]
		if pending <= 0 {
			quotas[client] = 0
			continue
		}
		quotas[client] = Quota((pending + remainingDays - 1) / remainingDays)
	}
	return quotas
}
