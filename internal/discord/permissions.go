package discord

import (
	"slices"

	"github.com/bwmarrin/discordgo"
)

// PermissionChecker validates that a Discord user holds the guardian role
// before executing privileged slash commands.
type PermissionChecker struct {
	guardianRoleID string
}

// NewPermissionChecker creates a PermissionChecker for the given role ID.
func NewPermissionChecker(guardianRoleID string) *PermissionChecker {
	return &PermissionChecker{guardianRoleID: guardianRoleID}
}

// IsGuardian checks whether the interaction author has the guardian role.
// An empty role ID treats all users as guardians (useful for development).
// Returns false when the interaction carries no Member (DM channels).
func (p *PermissionChecker) IsGuardian(i *discordgo.InteractionCreate) bool {
	if p.guardianRoleID == "" {
		return true
	}
	if i.Member == nil {
		return false
	}
	return slices.Contains(i.Member.Roles, p.guardianRoleID)
}
