package mapper

import (
	"encoding/json"

	log "github.com/sirupsen/logrus"

	"github.com/geoffjay/plantd-mapper/internal/envelope"
)

// ControlBody is the JSON payload carried by register/heartbeat control
// envelopes delivered on the shared control queue (§3, §4.1). unregister
// carries no body.
type ControlBody struct {
	Services []string `json:"services"`
	Status   float64  `json:"status"`
}

// Control envelope type tags, distinguishing the three membership
// notifications §4.1 describes as pushed "into a single-threaded registry
// loop" by the broker.
const (
	ControlRegister   = "register"
	ControlHeartbeat  = "heartbeat"
	ControlUnregister = "unregister"
)

// HandleControl applies one decoded control envelope to the registry. It
// is the glue between the broker's control-queue delivery and §4.1's
// observe_register/observe_heartbeat/observe_unregister contract.
func (n *Node) HandleControl(env *envelope.Envelope) {
	switch env.Type {
	case ControlRegister:
		var body ControlBody
		if err := json.Unmarshal(env.Payload, &body); err != nil {
			log.WithError(err).WithField("from", env.From).Warn("malformed register control envelope, dropped")
			return
		}
		n.Registry.ObserveRegister(env.From, body.Services, body.Status)
	case ControlHeartbeat:
		var body ControlBody
		if err := json.Unmarshal(env.Payload, &body); err != nil {
			log.WithError(err).WithField("from", env.From).Warn("malformed heartbeat control envelope, dropped")
			return
		}
		n.Registry.ObserveHeartbeat(env.From, body.Status)
	case ControlUnregister:
		n.Registry.ObserveUnregister(env.From)
	default:
		log.WithField("type", env.Type).Debug("unrecognized control envelope type, dropped")
	}
}
