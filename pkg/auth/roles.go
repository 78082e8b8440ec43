package auth

import "github.com/rhuss/digsite/pkg/api"

// Capability is a named permission granted to roles.
type Capability string

const (
	CapSystemFullAccess   Capability = "system:full-access"
	CapSystemConfigure    Capability = "system:configure"
	CapUsersManage        Capability = "users:manage"
	CapInstitutionsManage Capability = "institutions:manage"
	CapInstitutionManage  Capability = "institution:manage"
	CapMembersManage      Capability = "members:manage"
	CapBillingManage      Capability = "billing:manage"
	CapProjectsManage     Capability = "projects:manage"
	CapProjectsView       Capability = "projects:view"
	CapTeamsManage        Capability = "teams:manage"
	CapSitesManage        Capability = "sites:manage"
	CapSitesView          Capability = "sites:view"
	CapSitesPublicView    Capability = "sites:public-view"
	CapAreasManage        Capability = "areas:manage"
	CapAreasView          Capability = "areas:view"
	CapFindingsApprove    Capability = "findings:approve"
	CapFindingsCreate     Capability = "findings:create"
	CapFindingsEdit       Capability = "findings:edit"
	CapFindingsView       Capability = "findings:view"
	CapReportsGenerate    Capability = "reports:generate"
	CapReportsCreate      Capability = "reports:create"
	CapReportsView        Capability = "reports:view"
	CapPublicView         Capability = "public:view"
	CapMapsView           Capability = "maps:view"
)

// capabilities is the role permission table. A role has exactly the
// capabilities listed; nothing is inherited from lower ranks.
var capabilities = map[api.Role][]Capability{
	api.RoleAdmin: {
		CapSystemFullAccess, CapUsersManage, CapInstitutionsManage,
		CapProjectsManage, CapSitesManage, CapReportsGenerate, CapSystemConfigure,
	},
	api.RoleInstitution: {
		CapInstitutionManage, CapMembersManage, CapProjectsView,
		CapReportsGenerate, CapBillingManage,
	},
	api.RoleCoordinator: {
		CapProjectsView, CapTeamsManage, CapSitesView, CapAreasManage,
		CapFindingsView, CapReportsGenerate,
	},
	api.RoleDirector: {
		CapProjectsManage, CapTeamsManage, CapSitesManage, CapAreasManage,
		CapReportsGenerate, CapFindingsApprove,
	},
	api.RoleResearcher: {
		CapProjectsView, CapSitesView, CapAreasView, CapFindingsCreate,
		CapFindingsEdit, CapReportsCreate,
	},
	api.RoleStudent: {
		CapProjectsView, CapSitesView, CapAreasView, CapFindingsView, CapReportsView,
	},
	api.RoleGuest: {
		CapPublicView, CapSitesPublicView, CapMapsView,
	},
}

// ranks orders roles for RequireRank. Higher is more privileged.
var ranks = map[api.Role]int{
	api.RoleGuest:       1,
	api.RoleStudent:     2,
	api.RoleResearcher:  3,
	api.RoleDirector:    4,
	api.RoleCoordinator: 5,
	api.RoleInstitution: 6,
	api.RoleAdmin:       7,
}

// Can reports whether role holds capability c.
func Can(role api.Role, c Capability) bool {
	for _, have := range capabilities[role] {
		if have == c {
			return true
		}
	}
	return false
}

// Capabilities returns a copy of the capabilities held by role.
func Capabilities(role api.Role) []Capability {
	return append([]Capability(nil), capabilities[role]...)
}

// Rank returns the position of role in the privilege order, or 0 for a
// role outside the enumeration.
func Rank(role api.Role) int {
	return ranks[role]
}

// AtLeast reports whether role ranks at or above min.
func AtLeast(role, min api.Role) bool {
	r := Rank(role)
	return r > 0 && r >= Rank(min)
}
