package reconcile

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

type LinkState string

const (
	LinkStateAutoLinked LinkState = "auto_linked"
	LinkStatePending    LinkState = "pending"
	LinkStateNoMatch    LinkState = "no_match"
)

func (s LinkState) IsValid() bool {
	switch s {
	case LinkStateAutoLinked, LinkStatePending, LinkStateNoMatch:
		return true
	}
	return false
}

func (s LinkState) Value() (driver.Value, error) {
	if !s.IsValid() {
		return nil, fmt.Errorf("invalid link state %q", string(s))
	}
	return string(s), nil
}

func (s *LinkState) Scan(value interface{}) error {
	var str string
	switch v := value.(type) {
	case string:
		str = v
	case []byte:
		str = string(v)
	default:
		return errors.New("link state must be string")
	}
	state := LinkState(str)
	if !state.IsValid() {
		return fmt.Errorf("invalid link state %q", str)
	}
	*s = state
	return nil
}

// MaxRetainedCandidates is how many ranked candidates a decision keeps for review.
const MaxRetainedCandidates = 5

// LinkDecision is the outcome for one batch record. It is built only through
// AutoLinked, Pending and NoMatch, so a no_match decision never carries a delivery.
type LinkDecision struct {
	state      LinkState
	deliveryId int
	confidence int
	candidates []LinkCandidate
}

func AutoLinked(best LinkCandidate, ranked []LinkCandidate) LinkDecision {
	return LinkDecision{
		state:      LinkStateAutoLinked,
		deliveryId: best.DeliveryId,
		confidence: best.Confidence,
		candidates: retain(ranked),
	}
}

func Pending(best LinkCandidate, ranked []LinkCandidate) LinkDecision {
	return LinkDecision{
		state:      LinkStatePending,
		deliveryId: best.DeliveryId,
		confidence: best.Confidence,
		candidates: retain(ranked),
	}
}

func NoMatch(confidence int, ranked []LinkCandidate) LinkDecision {
	return LinkDecision{
		state:      LinkStateNoMatch,
		confidence: confidence,
		candidates: retain(ranked),
	}
}

func retain(ranked []LinkCandidate) []LinkCandidate {
	n := min(len(ranked), MaxRetainedCandidates)
	out := make([]LinkCandidate, n)
	copy(out, ranked[:n])
	return out
}

func (d LinkDecision) State() LinkState { return d.state }

func (d LinkDecision) Confidence() int { return d.confidence }

// DeliveryId is the linked delivery; ok is false for no_match.
func (d LinkDecision) DeliveryId() (id int, ok bool) {
	if d.state == LinkStateNoMatch || d.state == "" {
		return 0, false
	}
	return d.deliveryId, true
}

// Candidates returns the retained runner-ups, best first.
func (d LinkDecision) Candidates() []LinkCandidate {
	out := make([]LinkCandidate, len(d.candidates))
	copy(out, d.candidates)
	return out
}

func (d LinkDecision) MarshalJSON() ([]byte, error) {
	out := struct {
		State      LinkState       `json:"link_state"`
		DeliveryId *int            `json:"delivery_id"`
		Confidence int             `json:"confidence"`
		Candidates []LinkCandidate `json:"candidates"`
	}{
		State:      d.state,
		Confidence: d.confidence,
		Candidates: d.Candidates(),
	}
	if id, ok := d.DeliveryId(); ok {
		out.DeliveryId = &id
	}
	return json.Marshal(out)
}
