package video

import (
	"github.com/khoahotran/pulse-media/internal/domain/user"
)

// Authority names who may trigger a transition.
type Authority string

const (
	AuthoritySystem Authority = "system"
	AuthorityAdmin  Authority = "admin"
)

// rejected has no outgoing edges; re-upload is the only way back.
var transitions = map[Status]map[Status]Authority{
	StatusProcessing: {
		StatusDraft:    AuthoritySystem,
		StatusRejected: AuthoritySystem,
	},
	StatusDraft: {
		StatusLive:     AuthorityAdmin,
		StatusRejected: AuthorityAdmin,
	},
	StatusLive: {
		StatusRejected: AuthorityAdmin,
	},
}

func CanTransition(from, to Status) bool {
	_, ok := transitions[from][to]
	return ok
}

// Sources lists the statuses from which `to` is reachable under authority a.
// The result is deterministic so it can be used as a SQL predicate.
func Sources(to Status, a Authority) []Status {
	var out []Status
	for _, from := range []Status{StatusProcessing, StatusDraft, StatusLive, StatusRejected} {
		if auth, ok := transitions[from][to]; ok && auth == a {
			out = append(out, from)
		}
	}
	return out
}

// CheckManualTransition validates a caller-requested transition from the
// current status. Only admins may move assets by hand.
func CheckManualTransition(p user.Principal, from, to Status) error {
	auth, ok := transitions[from][to]
	if !ok {
		return ErrInvalidTransition
	}
	if auth != AuthorityAdmin || !p.IsAdmin() {
		return ErrTransitionForbidden
	}
	return nil
}
