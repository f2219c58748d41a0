package rbac

type Role string
type Action string

const (
	RoleUser        Role = "user"
	RoleReviewer    Role = "reviewer"
	RoleTransformer Role = "transformer"
	RoleImplementer Role = "implementer"
	RoleAdmin       Role = "admin"
)

const (
	ActionRead        Action = "read"
	ActionSubmit      Action = "submit"
	ActionVote        Action = "vote"
	ActionComment     Action = "comment"
	ActionFollow      Action = "follow"
	ActionParticipate Action = "participate"
	ActionQueue       Action = "queue"
	ActionTriage      Action = "triage"
	ActionExport      Action = "export"
	ActionAdmin       Action = "admin"
)

// Can is the whole authorization model: a static allow-list per role.
// Reviewer, transformer, and implementer are assignment-target roles; they
// get the member actions plus their queue, never triage or admin.
func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleReviewer, RoleTransformer, RoleImplementer:
		return memberAction(action) || action == ActionQueue
	case RoleUser:
		return memberAction(action)
	default:
		return false
	}
}

func memberAction(action Action) bool {
	switch action {
	case ActionRead, ActionSubmit, ActionVote, ActionComment, ActionFollow, ActionParticipate:
		return true
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleUser, RoleReviewer, RoleTransformer, RoleImplementer, RoleAdmin:
		return Role(role)
	default:
		return RoleUser
	}
}

// Assignable reports whether role names one of the per-idea assignment
// slots (reviewer/transformer/implementer).
func Assignable(role string) bool {
	switch Role(role) {
	case RoleReviewer, RoleTransformer, RoleImplementer:
		return true
	default:
		return false
	}
}
