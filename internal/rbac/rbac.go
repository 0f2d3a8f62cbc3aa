package rbac

type Role string
type Action string

const (
	RoleEditor   Role = "editor"
	RoleReadonly Role = "readonly"
)

const (
	ActionRead  Action = "read"
	ActionWrite Action = "write"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleEditor:
		return action == ActionRead || action == ActionWrite
	case RoleReadonly:
		return action == ActionRead
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleEditor, RoleReadonly:
		return Role(role)
	default:
		return RoleReadonly
	}
}
