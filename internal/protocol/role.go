package protocol

// Role is the role of an endpoint in a benchmark run.
type Role int

const (
	// RoleSender drives the traffic.
	RoleSender Role = 1 + iota
	// RoleResponder echoes an acknowledgement for every message.
	RoleResponder
)

func (r Role) String() string {
	switch r {
	case RoleSender:
		return "sender"
	case RoleResponder:
		return "responder"
	default:
		return "invalid role"
	}
}
