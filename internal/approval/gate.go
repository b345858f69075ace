package approval

import (
	"net/url"
	"sort"

	"github.com/agentoven/actionrag/pkg/models"
	"github.com/rs/zerolog/log"
)

// Gate evaluates resolved requests against a fixed policy. It holds no
// per-run state and is safe for concurrent use.
type Gate struct {
	policy *Policy
}

// NewGate creates a gate for the given policy. A nil policy blocks nothing.
func NewGate(policy *Policy) *Gate {
	if policy == nil {
		policy = &Policy{}
	}
	return &Gate{policy: policy}
}

// Evaluate decides whether specs may execute. bypass never changes the
// decision's state; it is recorded so callers can let a blocked run proceed.
func (g *Gate) Evaluate(specs []models.RequestSpec, bypass bool) models.ApprovalDecision {
	blocking := make(map[string]bool)
	for _, s := range specs {
		target, urlPath := split(s.URL)
		for _, r := range g.policy.Rules {
			if r.matches(target, urlPath, s.Method) {
				blocking[s.URL] = true
				break
			}
		}
	}

	decision := models.ApprovalDecision{
		State:    models.ApprovalClear,
		Bypassed: bypass,
	}
	if len(blocking) == 0 {
		return decision
	}

	decision.State = models.ApprovalBlocked
	decision.RequiresApproval = true
	for u := range blocking {
		decision.BlockingEndpoints = append(decision.BlockingEndpoints, u)
	}
	sort.Strings(decision.BlockingEndpoints)

	if bypass {
		log.Warn().
			Strs("endpoints", decision.BlockingEndpoints).
			Msg("Approval bypass granted for blocked endpoints")
	}
	return decision
}

// MayExecute reports whether a run with this decision may issue calls.
func MayExecute(d models.ApprovalDecision) bool {
	return !d.RequiresApproval || d.Bypassed
}

func split(raw string) (target, urlPath string) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw, raw
	}
	return u.Scheme + "://" + u.Host + u.Path, u.Path
}
