package rbac

type Role string
type Action string

const (
	RoleClient       Role = "client"
	RoleProfessional Role = "professional"
	RoleAdmin        Role = "admin"
)

const (
	ActionRead   Action = "read"   // browse requests and chats
	ActionPost   Action = "post"   // create/cancel own requests
	ActionOffer  Action = "offer"  // create/update offers
	ActionDecide Action = "decide" // accept or reject offers
	ActionTrack  Action = "track"  // confirm start, finish, timeline events
	ActionChat   Action = "chat"   // send messages
	ActionRate   Action = "rate"   // submit ratings
	ActionAdmin  Action = "admin"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleClient:
		return action == ActionRead || action == ActionPost || action == ActionDecide ||
			action == ActionTrack || action == ActionChat || action == ActionRate
	case RoleProfessional:
		return action == ActionRead || action == ActionOffer || action == ActionTrack ||
			action == ActionChat || action == ActionRate
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleClient, RoleProfessional, RoleAdmin:
		return Role(role)
	default:
		return RoleClient
	}
}
