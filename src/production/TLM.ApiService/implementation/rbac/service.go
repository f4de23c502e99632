package rbac

import (
	auth_models "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Models/auth"
)

// Service knows the fixed role set
type Service struct {
	roles map[string]bool
}

// NewService creates a new RBAC service with predefined roles
func NewService() *Service {
	return &Service{
		roles: map[string]bool{
			auth_models.RoleAdmin: true,
			auth_models.RoleUser:  true,
		},
	}
}

// IsValidRole checks if a role is valid
func (s *Service) IsValidRole(roleName string) bool {
	return s.roles[roleName]
}

// IsAdmin checks if a role is admin
func (s *Service) IsAdmin(roleName string) bool {
	return roleName == auth_models.RoleAdmin
}
