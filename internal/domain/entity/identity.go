package entity

// Identity is a person known to the organization directory
type Identity struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	DeptCode     string   `json:"dept_code"`
	JobLevel     string   `json:"job_level,omitempty"`
	Roles        []string `json:"roles,omitempty"`
	SignatureKey string   `json:"signature_key,omitempty"`
	Active       bool     `json:"active"`
}

// HasRole reports whether the identity holds role
func (i *Identity) HasRole(role string) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}
