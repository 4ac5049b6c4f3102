package domain

// Role gates which lifecycle transitions an identity may invoke.
type Role string

const (
	RoleEmployer   Role = "employer"
	RoleFreelancer Role = "freelancer"
	RoleVerifier   Role = "verifier"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleEmployer, RoleFreelancer, RoleVerifier:
		return true
	default:
		return false
	}
}

// Identity is the authenticated caller. It is trusted as given.
type Identity struct {
	ID   string
	Role Role
}

func (i Identity) IsEmployer() bool   { return i.Role == RoleEmployer }
func (i Identity) IsFreelancer() bool { return i.Role == RoleFreelancer }
