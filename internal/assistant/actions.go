package assistant

import "sync"

type ActionType string

const ActionNavigate ActionType = "navigate"

// Action is a client-side side effect requested during a turn.
type Action struct {
	Type      ActionType `json:"type"`
	ProductID string     `json:"productId,omitempty"`
}

// recorder collects actions from concurrently running tools.
type recorder struct {
	mu      sync.Mutex
	actions []Action
}

func (r *recorder) GoToProduct(productID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, Action{Type: ActionNavigate, ProductID: productID})
}

func (r *recorder) list() []Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Action, len(r.actions))
	copy(out, r.actions)
	return out
}
