// Package cluster maintains the live agent directory: identity, advertised
// services, reported load, and last-heartbeat timestamp, with timeout-based
// eviction and the target-selection algorithm described in §4.1.
//
// The registry is a single logical mutator (§5): every exported method
// assumes it runs on the mapper's single dispatch goroutine and does not
// take its own lock. Safety under concurrent access is the caller's
// responsibility, exactly as the teacher's Broker.Purge/WorkerMsg methods
// assume single-threaded access from Broker.Run's poll loop.
package cluster

import (
	"math/rand"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/geoffjay/plantd-mapper/internal/envelope"
	"github.com/geoffjay/plantd-mapper/internal/metrics"
)

// Agent is the registry's record of one live cluster member.
type Agent struct {
	Identity envelope.Identity
	Services map[string]struct{}
	Status   float64 // self-reported load, lower is less loaded
	LastSeen time.Time
}

// Registry is the cluster's agent directory and derived service index.
type Registry struct {
	agentTimeout time.Duration

	agents  map[envelope.Identity]*Agent
	index   map[string]map[envelope.Identity]struct{} // service -> identities
	cursors map[string]int                            // round-robin cursor per service

	rand *rand.Rand
}

// New creates an empty registry. agentTimeout is the duration after which
// an unseen agent is eligible for reap (§3, default 15s per config.go).
func New(agentTimeout time.Duration) *Registry {
	return &Registry{
		agentTimeout: agentTimeout,
		agents:       make(map[envelope.Identity]*Agent),
		index:        make(map[string]map[envelope.Identity]struct{}),
		cursors:      make(map[string]int),
		rand:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// ObserveRegister creates or replaces the agent record for identity,
// updates the service index (dropping stale entries from a prior service
// set, if any), and stamps LastSeen. Idempotent.
func (r *Registry) ObserveRegister(identity envelope.Identity, services []string, status float64) {
	existing, alreadyLive := r.agents[identity]
	if alreadyLive {
		r.unindex(identity, existing.Services)
	}

	serviceSet := make(map[string]struct{}, len(services))
	for _, s := range services {
		serviceSet[s] = struct{}{}
	}

	r.agents[identity] = &Agent{
		Identity: identity,
		Services: serviceSet,
		Status:   status,
		LastSeen: time.Now(),
	}
	r.reindex(identity, serviceSet)

	if !alreadyLive {
		metrics.AgentsRegistered.Inc()
	}
	log.WithFields(log.Fields{
		"identity": identity,
		"services": services,
		"status":   status,
	}).Debug("agent registered")
}

// ObserveHeartbeat updates status and LastSeen for a known identity. A
// heartbeat for an unknown identity is ignored (§4.1, §7 UnknownAgent):
// agents are expected to register before they heartbeat, and the registry
// cannot populate the service index without a prior register.
func (r *Registry) ObserveHeartbeat(identity envelope.Identity, status float64) bool {
	agent, ok := r.agents[identity]
	if !ok {
		log.WithField("identity", identity).Debug("heartbeat from unknown agent, ignored")
		return false
	}
	agent.Status = status
	agent.LastSeen = time.Now()
	return true
}

// ObserveUnregister removes the agent and all its service-index entries.
func (r *Registry) ObserveUnregister(identity envelope.Identity) {
	agent, ok := r.agents[identity]
	if !ok {
		return
	}
	r.unindex(identity, agent.Services)
	delete(r.agents, identity)

	metrics.AgentsRegistered.Dec()
	log.WithField("identity", identity).Debug("agent unregistered")
}

// Reap removes every agent whose LastSeen is older than now-agentTimeout,
// cleaning the service index accordingly (§4.1, invariant 2).
func (r *Registry) Reap(now time.Time) []envelope.Identity {
	var reaped []envelope.Identity
	deadline := now.Add(-r.agentTimeout)

	for identity, agent := range r.agents {
		if agent.LastSeen.Before(deadline) {
			r.unindex(identity, agent.Services)
			delete(r.agents, identity)
			reaped = append(reaped, identity)
		}
	}

	if len(reaped) > 0 {
		metrics.AgentsReaped.Add(float64(len(reaped)))
		metrics.AgentsRegistered.Sub(float64(len(reaped)))
		log.WithField("reaped", reaped).Info("reaped expired agents")
	}

	return reaped
}

// Agent looks up a live agent record by identity.
func (r *Registry) Agent(identity envelope.Identity) (*Agent, bool) {
	a, ok := r.agents[identity]
	return a, ok
}

// Len reports the number of live agents, for tests and metrics.
func (r *Registry) Len() int {
	return len(r.agents)
}

// TargetsFor resolves a request to zero or more agent identities per the
// target selection algorithm in §4.1. It is a pure function of the
// registry's current state and the request's target/selector/type, modulo
// round-robin cursor advancement and the random selector's draw.
func (r *Registry) TargetsFor(req *envelope.Envelope) []envelope.Identity {
	if req.Target != "" {
		agent, ok := r.agents[req.Target]
		if !ok {
			return nil
		}
		if _, advertises := agent.Services[req.Type]; !advertises {
			return nil
		}
		return []envelope.Identity{req.Target}
	}

	candidates := r.candidatesFor(req.Type)
	if len(candidates) == 0 {
		return nil
	}

	selector := req.Selector
	if selector == "" {
		selector = envelope.LeastLoaded
	}

	switch selector {
	case envelope.All:
		return candidates
	case envelope.Random:
		return []envelope.Identity{candidates[r.rand.Intn(len(candidates))]}
	case envelope.RoundRobin:
		return []envelope.Identity{r.roundRobin(req.Type, candidates)}
	case envelope.LeastLoaded:
		fallthrough
	default:
		return []envelope.Identity{r.leastLoaded(candidates)}
	}
}

// candidatesFor returns the identities advertising service in deterministic
// (lexicographic identity) order.
func (r *Registry) candidatesFor(service string) []envelope.Identity {
	holders, ok := r.index[service]
	if !ok || len(holders) == 0 {
		return nil
	}
	candidates := make([]envelope.Identity, 0, len(holders))
	for identity := range holders {
		candidates = append(candidates, identity)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i] < candidates[j] })
	return candidates
}

// leastLoaded returns the candidate with minimum Status, breaking ties by
// lexicographically smallest identity (candidates is already sorted, so the
// first minimum encountered is the tiebreak winner).
func (r *Registry) leastLoaded(candidates []envelope.Identity) envelope.Identity {
	best := candidates[0]
	bestStatus := r.agents[best].Status
	for _, identity := range candidates[1:] {
		if status := r.agents[identity].Status; status < bestStatus {
			best = identity
			bestStatus = status
		}
	}
	return best
}

// roundRobin advances and applies the per-service cursor. The cursor is
// reset to 0 if the candidate set has shrunk below its previous value.
func (r *Registry) roundRobin(service string, candidates []envelope.Identity) envelope.Identity {
	cursor := r.cursors[service]
	if cursor >= len(candidates) {
		cursor = 0
	}
	chosen := candidates[cursor]
	r.cursors[service] = (cursor + 1) % len(candidates)
	return chosen
}

func (r *Registry) reindex(identity envelope.Identity, services map[string]struct{}) {
	for service := range services {
		holders, ok := r.index[service]
		if !ok {
			holders = make(map[envelope.Identity]struct{})
			r.index[service] = holders
		}
		holders[identity] = struct{}{}
	}
}

func (r *Registry) unindex(identity envelope.Identity, services map[string]struct{}) {
	for service := range services {
		holders, ok := r.index[service]
		if !ok {
			continue
		}
		delete(holders, identity)
		if len(holders) == 0 {
			delete(r.index, service)
			delete(r.cursors, service)
		}
	}
}
