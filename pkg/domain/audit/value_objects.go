package audit

// Action is the closed set of auditable verbs. Action and resource type are
// separate columns so the trail can be filtered by either independently.
type Action string

const (
	ActionCreate           Action = "create"
	ActionUpdate           Action = "update"
	ActionSoftDelete       Action = "soft_delete"
	ActionRecover          Action = "recover"
	ActionAddMember        Action = "add_member"
	ActionRemoveMember     Action = "remove_member"
	ActionUpdateMemberRole Action = "update_member_role"
	ActionInvite           Action = "invite"
	ActionAcceptInvitation Action = "accept_invitation"
	ActionRevokeInvitation Action = "revoke_invitation"
	ActionPrune            Action = "prune"
	ActionArchive          Action = "archive"
)

// IsValid checks if the action is one of the closed set.
func (a Action) IsValid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionSoftDelete, ActionRecover,
		ActionAddMember, ActionRemoveMember, ActionUpdateMemberRole,
		ActionInvite, ActionAcceptInvitation, ActionRevokeInvitation,
		ActionPrune, ActionArchive:
		return true
	}
	return false
}

// String returns the string representation of the action.
func (a Action) String() string {
	return string(a)
}

// ResourceType tags which kind of entity an entry describes.
type ResourceType string

const (
	ResourceOrganization ResourceType = "organization"
	ResourceTeam         ResourceType = "team"
	ResourceProject      ResourceType = "project"
	ResourceTask         ResourceType = "task"
	ResourceMembership   ResourceType = "membership"
	ResourceInvitation   ResourceType = "invitation"
	ResourceAuditLog     ResourceType = "audit_log"
)

// IsValid checks if the resource type is one of the closed set.
func (r ResourceType) IsValid() bool {
	switch r {
	case ResourceOrganization, ResourceTeam, ResourceProject, ResourceTask,
		ResourceMembership, ResourceInvitation, ResourceAuditLog:
		return true
	}
	return false
}

// String returns the string representation of the resource type.
func (r ResourceType) String() string {
	return string(r)
}
