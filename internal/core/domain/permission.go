package domain

type Role string

const (
	RoleAdmin      Role = "admin"
	RoleStoreOwner Role = "store_owner"
	RoleUser       Role = "user"
	RoleGuest      Role = "guest"
)

type Resource string

const (
	ResourceUsers     Resource = "users"
	ResourceStores    Resource = "stores"
	ResourceRatings   Resource = "ratings"
	ResourceDashboard Resource = "dashboard"
)

type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionManage Action = "manage"
)

// OwnershipContext scopes an action to the acting identity.
type OwnershipContext struct {
	CallerID      string
	TargetOwnerID string
}
