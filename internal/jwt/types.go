package jwt

type Role int

const (
	RoleHandler Role = iota
)

// Handler is the identity carried by a console token. Handlers are
// provisioned by the workforce system; this package only mints and
// verifies tokens for already-provisioned identities.
type Handler struct {
	Id    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}
