// Package permission evaluates role -> resource -> action authorization.
//
// Evaluation is a pure function of its inputs: the Matrix is immutable once
// built, and nothing about the caller's session is held between calls.
package permission

import (
	"fmt"
	"sort"

	"github.com/vietddude/storeguard/internal/core/domain"
)

// Matrix is a static, versioned authorization table.
type Matrix struct {
	version int
	grants  map[domain.Role]map[domain.Resource]map[domain.Action]struct{}
}

// Grants is the plain form of a matrix, as read from config.
type Grants map[domain.Role]map[domain.Resource][]domain.Action

var knownActions = map[domain.Action]struct{}{
	domain.ActionCreate: {},
	domain.ActionRead:   {},
	domain.ActionUpdate: {},
	domain.ActionDelete: {},
	domain.ActionManage: {},
}

// NewMatrix copies grants into an immutable Matrix. Unknown actions are
// rejected so a typo cannot silently deny access.
func NewMatrix(version int, grants Grants) (*Matrix, error) {
	m := &Matrix{
		version: version,
		grants:  make(map[domain.Role]map[domain.Resource]map[domain.Action]struct{}, len(grants)),
	}
	for role, resources := range grants {
		if role == "" {
			return nil, fmt.Errorf("empty role name")
		}
		byResource := make(map[domain.Resource]map[domain.Action]struct{}, len(resources))
		for resource, actions := range resources {
			set := make(map[domain.Action]struct{}, len(actions))
			for _, a := range actions {
				if _, ok := knownActions[a]; !ok {
					return nil, fmt.Errorf("role %s, resource %s: unknown action %q", role, resource, a)
				}
				set[a] = struct{}{}
			}
			byResource[resource] = set
		}
		m.grants[role] = byResource
	}
	return m, nil
}

// Version returns the matrix version.
func (m *Matrix) Version() int { return m.version }

// Allows reports whether role holds action on resource.
func (m *Matrix) Allows(role domain.Role, resource domain.Resource, action domain.Action) bool {
	if m == nil {
		return false
	}
	actions, ok := m.grants[role][resource]
	if !ok {
		return false
	}
	_, ok = actions[action]
	return ok
}

// Roles lists the roles in the matrix, sorted.
func (m *Matrix) Roles() []domain.Role {
	roles := make([]domain.Role, 0, len(m.grants))
	for r := range m.grants {
		roles = append(roles, r)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}

// DefaultGrants is the built-in matrix of the store-rating platform.
func DefaultGrants() Grants {
	all := []domain.Action{
		domain.ActionCreate, domain.ActionRead, domain.ActionUpdate,
		domain.ActionDelete, domain.ActionManage,
	}
	return Grants{
		domain.RoleAdmin: {
			domain.ResourceUsers:     all,
			domain.ResourceStores:    all,
			domain.ResourceRatings:   {domain.ActionRead, domain.ActionDelete, domain.ActionManage},
			domain.ResourceDashboard: {domain.ActionRead},
		},
		domain.RoleStoreOwner: {
			domain.ResourceUsers:     {domain.ActionRead, domain.ActionUpdate},
			domain.ResourceStores:    {domain.ActionRead, domain.ActionUpdate},
			domain.ResourceRatings:   {domain.ActionRead},
			domain.ResourceDashboard: {domain.ActionRead},
		},
		domain.RoleUser: {
			domain.ResourceUsers:   {domain.ActionRead, domain.ActionUpdate},
			domain.ResourceStores:  {domain.ActionRead},
			domain.ResourceRatings: {domain.ActionCreate, domain.ActionRead, domain.ActionUpdate},
		},
		domain.RoleGuest: {
			domain.ResourceStores:  {domain.ActionRead},
			domain.ResourceRatings: {domain.ActionRead},
		},
	}
}

// DefaultMatrix builds the matrix from DefaultGrants.
func DefaultMatrix() *Matrix {
	m, err := NewMatrix(1, DefaultGrants())
	if err != nil {
		panic(err) // built-in table is static
	}
	return m
}
