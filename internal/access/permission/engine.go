package permission

import (
	"github.com/vietddude/storeguard/internal/core/domain"
)

// HasPermission is the decision function. It looks up the matrix and,
// when an ownership context is given for update or delete, additionally
// requires the caller to own the target unless the role holds manage on
// the resource. Unknown roles or resources are denied.
func HasPermission(
	m *Matrix,
	role domain.Role,
	resource domain.Resource,
	action domain.Action,
	owner *domain.OwnershipContext,
) bool {
	if !m.Allows(role, resource, action) {
		return false
	}
	if owner == nil || !ownershipScoped(action) {
		return true
	}
	if m.Allows(role, resource, domain.ActionManage) {
		return true
	}
	return owner.CallerID != "" && owner.CallerID == owner.TargetOwnerID
}

func ownershipScoped(a domain.Action) bool {
	return a == domain.ActionUpdate || a == domain.ActionDelete
}

// Engine binds a Matrix for repeated evaluation.
type Engine struct {
	matrix *Matrix
}

// NewEngine creates an engine over m.
func NewEngine(m *Matrix) *Engine {
	return &Engine{matrix: m}
}

// Matrix returns the bound matrix.
func (e *Engine) Matrix() *Matrix { return e.matrix }

// HasPermission evaluates against the bound matrix.
func (e *Engine) HasPermission(
	role domain.Role,
	resource domain.Resource,
	action domain.Action,
	owner *domain.OwnershipContext,
) bool {
	return HasPermission(e.matrix, role, resource, action, owner)
}

// capability names exposed to UI gating
var capabilities = []struct {
	name     string
	resource domain.Resource
	action   domain.Action
}{
	{"canViewDashboard", domain.ResourceDashboard, domain.ActionRead},
	{"canViewUsers", domain.ResourceUsers, domain.ActionRead},
	{"canCreateUser", domain.ResourceUsers, domain.ActionCreate},
	{"canUpdateProfile", domain.ResourceUsers, domain.ActionUpdate},
	{"canManageUsers", domain.ResourceUsers, domain.ActionManage},
	{"canViewStores", domain.ResourceStores, domain.ActionRead},
	{"canCreateStore", domain.ResourceStores, domain.ActionCreate},
	{"canUpdateStore", domain.ResourceStores, domain.ActionUpdate},
	{"canDeleteStore", domain.ResourceStores, domain.ActionDelete},
	{"canManageStores", domain.ResourceStores, domain.ActionManage},
	{"canViewRatings", domain.ResourceRatings, domain.ActionRead},
	{"canCreateRating", domain.ResourceRatings, domain.ActionCreate},
	{"canUpdateRating", domain.ResourceRatings, domain.ActionUpdate},
	{"canDeleteRating", domain.ResourceRatings, domain.ActionDelete},
	{"canModerateRatings", domain.ResourceRatings, domain.ActionManage},
}

// Capabilities returns the named boolean view used to gate UI affordances.
// Every name is present; unknown roles get all false.
func (e *Engine) Capabilities(role domain.Role) map[string]bool {
	out := make(map[string]bool, len(capabilities))
	for _, c := range capabilities {
		out[c.name] = e.matrix.Allows(role, c.resource, c.action)
	}
	return out
}
