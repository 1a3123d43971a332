package hub

// Role is the permission level of a peer within a presentation.
type Role string

// The set of roles is closed: the policy in Can matches over exactly
// these values and ParseRole rejects everything else.
const (
	RoleCreator Role = "creator"
	RoleEditor  Role = "editor"
	RoleViewer  Role = "viewer"
)

// ParseRole validates a wire string against the known roles.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleCreator, RoleEditor, RoleViewer:
		return Role(s), true
	}
	return "", false
}

// Can reports whether the role is permitted to perform the given
// inbound event type. It is a pure lookup over the closed policy
// table; unknown event types are denied.
func (r Role) Can(typ string) bool {
	switch typ {
	case TypeSlideAdd, TypeSlideRemove, TypeRoleChange:
		return r == RoleCreator
	case TypeDrawAdd, TypeDrawErase:
		return r == RoleCreator || r == RoleEditor
	case TypeSlideSnapshot, TypePeerList:
		return r == RoleCreator || r == RoleEditor || r == RoleViewer
	}
	return false
}
