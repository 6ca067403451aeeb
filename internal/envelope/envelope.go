// Package envelope defines the immutable value types carried across the
// mapper: agent identities, the selector policy, and the request envelope
// that is built once per dispatch and never mutated afterward.
package envelope

import "github.com/google/uuid"

// Identity is an opaque agent or mapper identifier, unique within the
// cluster. It is a defined type rather than a bare string so call sites
// can't accidentally pass a service route where an identity is expected.
type Identity string

// String satisfies fmt.Stringer for structured logging.
func (i Identity) String() string { return string(i) }

// Selector chooses among eligible agents for a single request.
type Selector string

// The four selector policies recognized by target selection.
const (
	LeastLoaded Selector = "least_loaded"
	Random      Selector = "random"
	RoundRobin  Selector = "round_robin"
	All         Selector = "all"
)

// Valid reports whether s is one of the four recognized selectors.
func (s Selector) Valid() bool {
	switch s {
	case LeastLoaded, Random, RoundRobin, All:
		return true
	default:
		return false
	}
}

// Options carries the per-call knobs accepted by the façade's request/push
// operations.
type Options struct {
	Selector        Selector
	Target          Identity // explicit target identity; overrides Selector when set
	Persistent      *bool    // nil defers to the mapper's configured default
	OfflineFailsafe bool
}

// Envelope is the immutable, wire-ready request built by the façade.
// Once constructed it is never mutated, except by the offline redeliverer,
// which must overwrite ReplyTo before re-dispatch (§4.4).
type Envelope struct {
	Type            string   `json:"type" codec:"type"`                           // service route
	Payload         []byte   `json:"payload" codec:"payload"`                     // opaque, carried end-to-end
	From            Identity `json:"from" codec:"from"`                           // mapper identity, used as reply destination
	Token           string   `json:"token" codec:"token"`                         // correlation id, unique per envelope
	ReplyTo         Identity `json:"reply_to,omitempty" codec:"reply_to"`         // set to From for request-with-reply, empty for push
	Selector        Selector `json:"selector,omitempty" codec:"selector"`
	Target          Identity `json:"target,omitempty" codec:"target"` // optional explicit identity; overrides Selector
	Persistent      bool     `json:"persistent" codec:"persistent"`
	OfflineFailsafe bool     `json:"offline_failsafe" codec:"offline_failsafe"`
}

// Reply is an incoming result envelope delivered to the mapper's private
// inbox, matched against a job by Token.
type Reply struct {
	Token   string   `json:"token" codec:"token"`
	From    Identity `json:"from" codec:"from"`
	Payload []byte   `json:"payload" codec:"payload"`
}

// NewToken generates a fresh, process-wide-unique correlation id. The
// distilled spec leaves the generator unspecified ("freshly generated");
// nanite used a counter-plus-identity scheme, generalized here to a v4 UUID.
func NewToken() string {
	return uuid.NewString()
}
