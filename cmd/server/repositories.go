package main

import (
	"github.com/taskforge/api/internal/infra/postgres"
)

// Repositories holds all repository instances.
type Repositories struct {
	User         *postgres.UserRepository
	Organization *postgres.OrganizationRepository
	Team         *postgres.TeamRepository
	Project      *postgres.ProjectRepository
	Task         *postgres.TaskRepository
	Invitation   *postgres.InvitationRepository
	Audit        *postgres.AuditRepository
}

// NewRepositories creates all repositories on the given database handle.
func NewRepositories(db *postgres.DB) *Repositories {
	return &Repositories{
		User:         postgres.NewUserRepository(db),
		Organization: postgres.NewOrganizationRepository(db),
		Team:         postgres.NewTeamRepository(db),
		Project:      postgres.NewProjectRepository(db),
		Task:         postgres.NewTaskRepository(db),
		Invitation:   postgres.NewInvitationRepository(db),
		Audit:        postgres.NewAuditRepository(db),
	}
}
