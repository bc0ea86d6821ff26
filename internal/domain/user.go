package domain

type Role string

const (
	RoleGenerator Role = "generator"
	RoleBuyer     Role = "buyer"
	RoleAdmin     Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleGenerator, RoleBuyer, RoleAdmin:
		return true
	}
	return false
}

// Label is the generic name shown in place of a company to callers
// without elevated privilege.
func (r Role) Label() string {
	if r == RoleGenerator {
		return "Seller"
	}
	return "Buyer"
}

// User is the identity handed over by the session service. The core
// mirrors it locally so that references and role labels resolve.
type User struct {
	ID       string
	Role     Role
	Company  string
	Verified bool
}

func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
