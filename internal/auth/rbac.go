package auth

// Role names carried in tokens.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// RolesFor returns the roles granted to an account.
func RolesFor(isAdmin bool) []string {
	if isAdmin {
		return []string{string(RoleUser), string(RoleAdmin)}
	}
	return []string{string(RoleUser)}
}
