package model

// Operator roles carried in access tokens.
const (
	OperatorRoleAdmin = "admin"
	OperatorRoleStaff = "staff"
)

// Operator is the authenticated caller of the admin API.
type Operator struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (o *Operator) IsAdmin() bool {
	return o != nil && o.Role == OperatorRoleAdmin
}
