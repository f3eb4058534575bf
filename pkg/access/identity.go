package access

type Role string // resolved role of the current identity

const (
	RoleNone  Role = ""      // anonymous browsing
	RoleUser  Role = "user"  // shopper, owns a cart
	RoleAdmin Role = "admin" // catalog curator
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Identity is the principal resolved for one request. It is never persisted.
type Identity struct {
	ID   string `json:"id,omitempty"`
	Role Role   `json:"role,omitempty"`
}

// Anonymous is the identity of a visitor without a session.
var Anonymous = Identity{}

func (i Identity) Authenticated() bool {
	return i.ID != ""
}
