package app

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/taskforge/api/pkg/domain/accesscontrol"
	"github.com/taskforge/api/pkg/domain/audit"
	"github.com/taskforge/api/pkg/domain/invitation"
	"github.com/taskforge/api/pkg/domain/organization"
	"github.com/taskforge/api/pkg/domain/project"
	"github.com/taskforge/api/pkg/domain/shared"
	"github.com/taskforge/api/pkg/domain/task"
	"github.com/taskforge/api/pkg/domain/team"
	"github.com/taskforge/api/pkg/domain/user"
	"github.com/taskforge/api/pkg/logger"
	"github.com/taskforge/api/pkg/pagination"
)

// memStore is the in-memory backing for the repository fakes. Every mutating
// method appends the audit entry it was handed, so tests can assert the
// one-entry-per-mutation rule without a database. The mutex matters because
// the overview endpoint fans reads out over an errgroup.
type memStore struct {
	mu             sync.Mutex
	orgs           map[shared.ID]*organization.Organization
	orgMembers     map[string]*organization.Member
	teams          map[shared.ID]*team.Team
	teamMembers    map[string]*team.Member
	projects       map[shared.ID]*project.Project
	projectMembers map[string]*project.Member
	tasks          map[shared.ID]*task.Task
	invitations    map[shared.ID]*invitation.Invitation
	users          map[shared.ID]*user.User
	audits         []*audit.Entry
}

func newMemStore() *memStore {
	return &memStore{
		orgs:           make(map[shared.ID]*organization.Organization),
		orgMembers:     make(map[string]*organization.Member),
		teams:          make(map[shared.ID]*team.Team),
		teamMembers:    make(map[string]*team.Member),
		projects:       make(map[shared.ID]*project.Project),
		projectMembers: make(map[string]*project.Member),
		tasks:          make(map[shared.ID]*task.Task),
		invitations:    make(map[shared.ID]*invitation.Invitation),
		users:          make(map[shared.ID]*user.User),
	}
}

func memberKey(scope, userID shared.ID) string {
	return scope.String() + "/" + userID.String()
}

func (s *memStore) appendAudit(entry *audit.Entry) {
	s.audits = append(s.audits, entry)
}

// auditCount returns how many entries have been recorded.
func (s *memStore) auditCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.audits)
}

// lastAudit returns the most recent entry, nil when none exist.
func (s *memStore) lastAudit() *audit.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.audits) == 0 {
		return nil
	}
	return s.audits[len(s.audits)-1]
}

func (s *memStore) countOtherOrgOwners(organizationID, exceptUserID shared.ID) int {
	n := 0
	for _, m := range s.orgMembers {
		if m.OrganizationID().Equals(organizationID) && !m.UserID().Equals(exceptUserID) && m.IsOwner() {
			n++
		}
	}
	return n
}

// --- organization.Repository ---

type memOrgRepo struct{ s *memStore }

func (r *memOrgRepo) Create(_ context.Context, org *organization.Organization, owner *organization.Member, entry *audit.Entry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.orgs {
		if existing.Slug() == org.Slug() {
			return fmt.Errorf("%w: slug %q", shared.ErrDuplicateSlug, org.Slug())
		}
	}
	r.s.orgs[org.ID()] = org
	r.s.orgMembers[memberKey(org.ID(), owner.UserID())] = owner
	r.s.appendAudit(entry)
	return nil
}

func (r *memOrgRepo) GetByID(_ context.Context, id shared.ID, includeDeleted bool) (*organization.Organization, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	org, ok := r.s.orgs[id]
	if !ok || (org.IsDeleted() && !includeDeleted) {
		return nil, fmt.Errorf("%w: organization %s", shared.ErrNotFound, id)
	}
	return org, nil
}

func (r *memOrgRepo) GetBySlug(_ context.Context, slug string, includeDeleted bool) (*organization.Organization, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, org := range r.s.orgs {
		if org.Slug() == slug && (includeDeleted || !org.IsDeleted()) {
			return org, nil
		}
	}
	return nil, fmt.Errorf("%w: organization %q", shared.ErrNotFound, slug)
}

func (r *memOrgRepo) ListByUser(_ context.Context, userID shared.ID, includeDeleted bool) ([]*organization.WithRole, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*organization.WithRole
	for _, m := range r.s.orgMembers {
		if !m.UserID().Equals(userID) {
			continue
		}
		org, ok := r.s.orgs[m.OrganizationID()]
		if !ok || (org.IsDeleted() && !includeDeleted) {
			continue
		}
		out = append(out, &organization.WithRole{Organization: org, Role: m.Role(), JoinedAt: m.CreatedAt()})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Organization.CreatedAt().After(out[j].Organization.CreatedAt())
	})
	return out, nil
}

func (r *memOrgRepo) Update(_ context.Context, org *organization.Organization, entry *audit.Entry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.orgs[org.ID()]; !ok {
		return fmt.Errorf("%w: organization %s", shared.ErrNotFound, org.ID())
	}
	r.s.orgs[org.ID()] = org
	r.s.appendAudit(entry)
	return nil
}

func (r *memOrgRepo) SoftDelete(_ context.Context, id shared.ID, deletedAt time.Time, entry *audit.Entry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	org, ok := r.s.orgs[id]
	if !ok {
		return fmt.Errorf("%w: organization %s", shared.ErrNotFound, id)
	}
	if err := org.SoftDelete(deletedAt); err != nil {
		return err
	}
	r.s.appendAudit(entry)
	return nil
}

func (r *memOrgRepo) Recover(_ context.Context, id shared.ID, entry *audit.Entry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	org, ok := r.s.orgs[id]
	if !ok {
		return fmt.Errorf("%w: organization %s", shared.ErrNotFound, id)
	}
	if err := org.Recover(); err != nil {
		return err
	}
	r.s.appendAudit(entry)
	return nil
}

func (r *memOrgRepo) AddMember(_ context.Context, member *organization.Member, entry *audit.Entry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := memberKey(member.OrganizationID(), member.UserID())
	if _, ok := r.s.orgMembers[key]; ok {
		return fmt.Errorf("%w: user %s is already a member", shared.ErrAlreadyExists, member.UserID())
	}
	r.s.orgMembers[key] = member
	r.s.appendAudit(entry)
	return nil
}

func (r *memOrgRepo) GetMember(_ context.Context, organizationID, userID shared.ID) (*organization.Member, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.orgMembers[memberKey(organizationID, userID)]
	if !ok {
		return nil, fmt.Errorf("%w: membership", shared.ErrNotFound)
	}
	return m, nil
}

func (r *memOrgRepo) UpdateMemberRole(_ context.Context, member *organization.Member, entry *audit.Entry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := memberKey(member.OrganizationID(), member.UserID())
	if _, ok := r.s.orgMembers[key]; !ok {
		return fmt.Errorf("%w: membership", shared.ErrNotFound)
	}
	if member.Role() != organization.RoleOwner && r.s.countOtherOrgOwners(member.OrganizationID(), member.UserID()) == 0 {
		return shared.ErrLastOwner
	}
	r.s.orgMembers[key] = member
	r.s.appendAudit(entry)
	return nil
}

func (r *memOrgRepo) RemoveMember(_ context.Context, organizationID, userID shared.ID, entry *audit.Entry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := memberKey(organizationID, userID)
	m, ok := r.s.orgMembers[key]
	if !ok {
		return fmt.Errorf("%w: membership", shared.ErrNotFound)
	}
	if m.IsOwner() && r.s.countOtherOrgOwners(organizationID, userID) == 0 {
		return shared.ErrLastOwner
	}
	delete(r.s.orgMembers, key)
	r.s.appendAudit(entry)
	return nil
}

func (r *memOrgRepo) ListMembers(_ context.Context, organizationID shared.ID) ([]*organization.MemberWithUser, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*organization.MemberWithUser
	for _, m := range r.s.orgMembers {
		if !m.OrganizationID().Equals(organizationID) {
			continue
		}
		row := &organization.MemberWithUser{
			ID:        m.ID(),
			UserID:    m.UserID(),
			Role:      m.Role(),
			AddedBy:   m.AddedBy(),
			CreatedAt: m.CreatedAt(),
		}
		if u, ok := r.s.users[m.UserID()]; ok {
			row.Email = u.Email()
			row.Name = u.Name()
		}
		out = append(out, row)
	}
	return out, nil
}

func (r *memOrgRepo) CountMembers(_ context.Context, organizationID shared.ID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, m := range r.s.orgMembers {
		if m.OrganizationID().Equals(organizationID) {
			n++
		}
	}
	return n, nil
}

// --- team.Repository ---

type memTeamRepo struct{ s *memStore }

func (r *memTeamRepo) Create(_ context.Context, t *team.Team, entry *audit.Entry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.teams {
		if existing.OrganizationID().Equals(t.OrganizationID()) && !existing.IsDeleted() && existing.Name() == t.Name() {
			return fmt.Errorf("%w: team %q", shared.ErrDuplicateName, t.Name())
		}
	}
	r.s.teams[t.ID()] = t
	r.s.appendAudit(entry)
	return nil
}

func (r *memTeamRepo) getScoped(organizationID, id shared.ID) (*team.Team, error) {
	t, ok := r.s.teams[id]
	if !ok || !t.OrganizationID().Equals(organizationID) {
		return nil, fmt.Errorf("%w: team %s", shared.ErrNotFound, id)
	}
	return t, nil
}

func (r *memTeamRepo) GetByID(_ context.Context, organizationID, id shared.ID, includeDeleted bool) (*team.Team, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, err := r.getScoped(organizationID, id)
	if err != nil {
		return nil, err
	}
	if t.IsDeleted() && !includeDeleted {
		return nil, fmt.Errorf("%w: team %s", shared.ErrNotFound, id)
	}
	return t, nil
}

func (r *memTeamRepo) List(_ context.Context, organizationID shared.ID, includeDeleted bool) ([]*team.Team, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*team.Team
	for _, t := range r.s.teams {
		if t.OrganizationID().Equals(organizationID) && (includeDeleted || !t.IsDeleted()) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt().After(out[j].CreatedAt()) })
	return out, nil
}

func (r *memTeamRepo) Update(_ context.Context, t *team.Team, entry *audit.Entry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.teams[t.ID()]; !ok {
		return fmt.Errorf("%w: team %s", shared.ErrNotFound, t.ID())
	}
	r.s.teams[t.ID()] = t
	r.s.appendAudit(entry)
	return nil
}

func (r *memTeamRepo) SoftDeleteCascade(_ context.Context, organizationID, id shared.ID, deletedAt time.Time, entry *audit.Entry) (*team.CascadeResult, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, err := r.getScoped(organizationID, id)
	if err != nil {
		return nil, err
	}
	if t.IsDeleted() {
		return nil, fmt.Errorf("%w: team %s", shared.ErrAlreadyDeleted, id)
	}
	if err := t.SoftDelete(deletedAt); err != nil {
		return nil, err
	}

	result := &team.CascadeResult{}
	for _, p := range r.s.projects {
		if !p.OrganizationID().Equals(organizationID) || !p.TeamID().Equals(id) || p.IsDeleted() {
			continue
		}
		for _, tk := range r.s.tasks {
			if tk.ProjectID().Equals(p.ID()) && !tk.IsDeleted() {
				_ = tk.SoftDelete(deletedAt)
				result.Tasks++
			}
		}
		_ = p.SoftDelete(deletedAt)
		result.Projects++
	}

	entry.WithContext("cascaded_projects", result.Projects)
	entry.WithContext("cascaded_tasks", result.Tasks)
	r.s.appendAudit(entry)
	return result, nil
}

func (r *memTeamRepo) RecoverCascade(_ context.Context, organizationID, id shared.ID, entry *audit.Entry) (*team.CascadeResult, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, err := r.getScoped(organizationID, id)
	if err != nil {
		return nil, err
	}
	if !t.IsDeleted() {
		return nil, fmt.Errorf("%w: team %s", shared.ErrNotDeleted, id)
	}
	stamp := *t.DeletedAt()
	if err := t.Recover(); err != nil {
		return nil, err
	}

	result := &team.CascadeResult{}
	for _, p := range r.s.projects {
		if !p.OrganizationID().Equals(organizationID) || !p.TeamID().Equals(id) {
			continue
		}
		for _, tk := range r.s.tasks {
			if tk.ProjectID().Equals(p.ID()) && tk.DeletedAt() != nil && tk.DeletedAt().Equal(stamp) {
				_ = tk.Recover()
				result.Tasks++
			}
		}
		if p.DeletedAt() != nil && p.DeletedAt().Equal(stamp) {
			_ = p.Recover()
			result.Projects++
		}
	}

	entry.WithContext("recovered_projects", result.Projects)
	entry.WithContext("recovered_tasks", result.Tasks)
	r.s.appendAudit(entry)
	return result, nil
}

func (r *memTeamRepo) AddMember(_ context.Context, member *team.Member, entry *audit.Entry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := memberKey(member.TeamID(), member.UserID())
	if _, ok := r.s.teamMembers[key]; ok {
		return fmt.Errorf("%w: user %s is already a member", shared.ErrAlreadyExists, member.UserID())
	}
	r.s.teamMembers[key] = member
	r.s.appendAudit(entry)
	return nil
}

func (r *memTeamRepo) GetMember(_ context.Context, teamID, userID shared.ID) (*team.Member, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.teamMembers[memberKey(teamID, userID)]
	if !ok {
		return nil, fmt.Errorf("%w: membership", shared.ErrNotFound)
	}
	return m, nil
}

func (r *memTeamRepo) UpdateMemberRole(_ context.Context, member *team.Member, entry *audit.Entry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := memberKey(member.TeamID(), member.UserID())
	if _, ok := r.s.teamMembers[key]; !ok {
		return fmt.Errorf("%w: membership", shared.ErrNotFound)
	}
	r.s.teamMembers[key] = member
	r.s.appendAudit(entry)
	return nil
}

func (r *memTeamRepo) RemoveMember(_ context.Context, teamID, userID shared.ID, entry *audit.Entry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := memberKey(teamID, userID)
	if _, ok := r.s.teamMembers[key]; !ok {
		return fmt.Errorf("%w: membership", shared.ErrNotFound)
	}
	delete(r.s.teamMembers, key)
	r.s.appendAudit(entry)
	return nil
}

func (r *memTeamRepo) ListMembers(_ context.Context, teamID shared.ID) ([]*team.MemberWithUser, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*team.MemberWithUser
	for _, m := range r.s.teamMembers {
		if !m.TeamID().Equals(teamID) {
			continue
		}
		row := &team.MemberWithUser{
			ID:        m.ID(),
			UserID:    m.UserID(),
			Role:      m.Role(),
			AddedBy:   m.AddedBy(),
			CreatedAt: m.CreatedAt(),
		}
		if u, ok := r.s.users[m.UserID()]; ok {
			row.Email = u.Email()
			row.Name = u.Name()
		}
		out = append(out, row)
	}
	return out, nil
}

func (r *memTeamRepo) CountByOrganization(_ context.Context, organizationID shared.ID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, t := range r.s.teams {
		if t.OrganizationID().Equals(organizationID) && !t.IsDeleted() {
			n++
		}
	}
	return n, nil
}

// --- project.Repository ---

type memProjectRepo struct{ s *memStore }

func (r *memProjectRepo) Create(_ context.Context, p *project.Project, entry *audit.Entry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.projects {
		if existing.TeamID().Equals(p.TeamID()) && !existing.IsDeleted() && existing.Name() == p.Name() {
			return fmt.Errorf("%w: project %q", shared.ErrDuplicateName, p.Name())
		}
	}
	r.s.projects[p.ID()] = p
	r.s.appendAudit(entry)
	return nil
}

func (r *memProjectRepo) getScoped(organizationID, id shared.ID) (*project.Project, error) {
	p, ok := r.s.projects[id]
	if !ok || !p.OrganizationID().Equals(organizationID) {
		return nil, fmt.Errorf("%w: project %s", shared.ErrNotFound, id)
	}
	return p, nil
}

func (r *memProjectRepo) GetByID(_ context.Context, organizationID, id shared.ID, includeDeleted bool) (*project.Project, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, err := r.getScoped(organizationID, id)
	if err != nil {
		return nil, err
	}
	if p.IsDeleted() && !includeDeleted {
		return nil, fmt.Errorf("%w: project %s", shared.ErrNotFound, id)
	}
	return p, nil
}

func (r *memProjectRepo) List(_ context.Context, organizationID shared.ID, filter project.Filter) ([]*project.Project, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*project.Project
	for _, p := range r.s.projects {
		if !p.OrganizationID().Equals(organizationID) {
			continue
		}
		if filter.TeamID != nil && !p.TeamID().Equals(*filter.TeamID) {
			continue
		}
		if p.IsDeleted() && !filter.IncludeDeleted {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt().After(out[j].CreatedAt()) })
	return out, nil
}

func (r *memProjectRepo) Update(_ context.Context, p *project.Project, entry *audit.Entry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.projects[p.ID()]; !ok {
		return fmt.Errorf("%w: project %s", shared.ErrNotFound, p.ID())
	}
	r.s.projects[p.ID()] = p
	r.s.appendAudit(entry)
	return nil
}

func (r *memProjectRepo) SoftDeleteCascade(_ context.Context, organizationID, id shared.ID, deletedAt time.Time, entry *audit.Entry) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, err := r.getScoped(organizationID, id)
	if err != nil {
		return 0, err
	}
	if p.IsDeleted() {
		return 0, fmt.Errorf("%w: project %s", shared.ErrAlreadyDeleted, id)
	}
	if err := p.SoftDelete(deletedAt); err != nil {
		return 0, err
	}

	var tasks int64
	for _, tk := range r.s.tasks {
		if tk.ProjectID().Equals(id) && !tk.IsDeleted() {
			_ = tk.SoftDelete(deletedAt)
			tasks++
		}
	}

	entry.WithContext("cascaded_tasks", tasks)
	r.s.appendAudit(entry)
	return tasks, nil
}

func (r *memProjectRepo) RecoverCascade(_ context.Context, organizationID, id shared.ID, entry *audit.Entry) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, err := r.getScoped(organizationID, id)
	if err != nil {
		return 0, err
	}
	if !p.IsDeleted() {
		return 0, fmt.Errorf("%w: project %s", shared.ErrNotDeleted, id)
	}
	stamp := *p.DeletedAt()
	if err := p.Recover(); err != nil {
		return 0, err
	}

	var tasks int64
	for _, tk := range r.s.tasks {
		if tk.ProjectID().Equals(id) && tk.DeletedAt() != nil && tk.DeletedAt().Equal(stamp) {
			_ = tk.Recover()
			tasks++
		}
	}

	entry.WithContext("recovered_tasks", tasks)
	r.s.appendAudit(entry)
	return tasks, nil
}

func (r *memProjectRepo) AddMember(_ context.Context, member *project.Member, entry *audit.Entry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := memberKey(member.ProjectID(), member.UserID())
	if _, ok := r.s.projectMembers[key]; ok {
		return fmt.Errorf("%w: user %s is already a member", shared.ErrAlreadyExists, member.UserID())
	}
	r.s.projectMembers[key] = member
	r.s.appendAudit(entry)
	return nil
}

func (r *memProjectRepo) GetMember(_ context.Context, projectID, userID shared.ID) (*project.Member, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.projectMembers[memberKey(projectID, userID)]
	if !ok {
		return nil, fmt.Errorf("%w: membership", shared.ErrNotFound)
	}
	return m, nil
}

func (r *memProjectRepo) UpdateMemberRole(_ context.Context, member *project.Member, entry *audit.Entry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := memberKey(member.ProjectID(), member.UserID())
	if _, ok := r.s.projectMembers[key]; !ok {
		return fmt.Errorf("%w: membership", shared.ErrNotFound)
	}
	r.s.projectMembers[key] = member
	r.s.appendAudit(entry)
	return nil
}

func (r *memProjectRepo) RemoveMember(_ context.Context, projectID, userID shared.ID, entry *audit.Entry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := memberKey(projectID, userID)
	if _, ok := r.s.projectMembers[key]; !ok {
		return fmt.Errorf("%w: membership", shared.ErrNotFound)
	}
	delete(r.s.projectMembers, key)
	r.s.appendAudit(entry)
	return nil
}

func (r *memProjectRepo) ListMembers(_ context.Context, projectID shared.ID) ([]*project.MemberWithUser, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*project.MemberWithUser
	for _, m := range r.s.projectMembers {
		if !m.ProjectID().Equals(projectID) {
			continue
		}
		row := &project.MemberWithUser{
			ID:        m.ID(),
			UserID:    m.UserID(),
			Role:      m.Role(),
			AddedBy:   m.AddedBy(),
			CreatedAt: m.CreatedAt(),
		}
		if u, ok := r.s.users[m.UserID()]; ok {
			row.Email = u.Email()
			row.Name = u.Name()
		}
		out = append(out, row)
	}
	return out, nil
}

func (r *memProjectRepo) CountByOrganization(_ context.Context, organizationID shared.ID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, p := range r.s.projects {
		if p.OrganizationID().Equals(organizationID) && !p.IsDeleted() {
			n++
		}
	}
	return n, nil
}

// --- task.Repository ---

type memTaskRepo struct{ s *memStore }

func (r *memTaskRepo) Create(_ context.Context, t *task.Task, entry *audit.Entry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.tasks[t.ID()] = t
	r.s.appendAudit(entry)
	return nil
}

func (r *memTaskRepo) getScoped(organizationID, id shared.ID) (*task.Task, error) {
	t, ok := r.s.tasks[id]
	if !ok || !t.OrganizationID().Equals(organizationID) {
		return nil, fmt.Errorf("%w: task %s", shared.ErrNotFound, id)
	}
	return t, nil
}

func (r *memTaskRepo) GetByID(_ context.Context, organizationID, id shared.ID, includeDeleted bool) (*task.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, err := r.getScoped(organizationID, id)
	if err != nil {
		return nil, err
	}
	if t.IsDeleted() && !includeDeleted {
		return nil, fmt.Errorf("%w: task %s", shared.ErrNotFound, id)
	}
	return t, nil
}

func (r *memTaskRepo) List(_ context.Context, organizationID shared.ID, filter task.Filter, page pagination.Pagination) (pagination.Result[*task.Task], error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var all []*task.Task
	for _, t := range r.s.tasks {
		if !t.OrganizationID().Equals(organizationID) {
			continue
		}
		if filter.ProjectID != nil && !t.ProjectID().Equals(*filter.ProjectID) {
			continue
		}
		if filter.Status != nil && t.Status() != *filter.Status {
			continue
		}
		if t.IsDeleted() && !filter.IncludeDeleted {
			continue
		}
		all = append(all, t)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt().After(all[j].CreatedAt()) })

	total := int64(len(all))
	start := page.Offset()
	if start > len(all) {
		start = len(all)
	}
	end := start + page.Limit()
	if end > len(all) {
		end = len(all)
	}
	return pagination.NewResult(all[start:end], total, page), nil
}

func (r *memTaskRepo) Update(_ context.Context, t *task.Task, entry *audit.Entry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tasks[t.ID()]; !ok {
		return fmt.Errorf("%w: task %s", shared.ErrNotFound, t.ID())
	}
	r.s.tasks[t.ID()] = t
	r.s.appendAudit(entry)
	return nil
}

func (r *memTaskRepo) SoftDelete(_ context.Context, organizationID, id shared.ID, deletedAt time.Time, entry *audit.Entry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, err := r.getScoped(organizationID, id)
	if err != nil {
		return err
	}
	if t.IsDeleted() {
		return fmt.Errorf("%w: task %s", shared.ErrAlreadyDeleted, id)
	}
	if err := t.SoftDelete(deletedAt); err != nil {
		return err
	}
	r.s.appendAudit(entry)
	return nil
}

func (r *memTaskRepo) Recover(_ context.Context, organizationID, id shared.ID, entry *audit.Entry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, err := r.getScoped(organizationID, id)
	if err != nil {
		return err
	}
	if !t.IsDeleted() {
		return fmt.Errorf("%w: task %s", shared.ErrNotDeleted, id)
	}
	if err := t.Recover(); err != nil {
		return err
	}
	r.s.appendAudit(entry)
	return nil
}

func (r *memTaskRepo) CountByOrganization(_ context.Context, organizationID shared.ID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, t := range r.s.tasks {
		if t.OrganizationID().Equals(organizationID) && !t.IsDeleted() {
			n++
		}
	}
	return n, nil
}

// --- invitation.Repository ---

// memInvitationRepo hands out copies on reads, matching a real store: the
// service mutates its copy and the repository decides idempotence against the
// stored row.
type memInvitationRepo struct{ s *memStore }

func copyInvitation(inv *invitation.Invitation) *invitation.Invitation {
	return invitation.Reconstitute(
		inv.ID(), inv.OrganizationID(), inv.Email(), inv.OrgRole(),
		inv.TeamID(), inv.TeamRole(), inv.ProjectID(), inv.ProjectRole(),
		inv.Token(), inv.InvitedBy(), inv.ExpiresAt(), inv.AcceptedAt(), inv.AcceptedBy(), inv.CreatedAt(),
	)
}

func (r *memInvitationRepo) Create(_ context.Context, inv *invitation.Invitation, entry *audit.Entry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.invitations {
		if existing.Token() == inv.Token() {
			return fmt.Errorf("%w: token collision", shared.ErrAlreadyExists)
		}
		if existing.OrganizationID().Equals(inv.OrganizationID()) &&
			existing.Email() == inv.Email() && existing.IsPending() {
			return fmt.Errorf("%w: pending invitation for %s", shared.ErrAlreadyExists, inv.Email())
		}
	}
	r.s.invitations[inv.ID()] = copyInvitation(inv)
	r.s.appendAudit(entry)
	return nil
}

func (r *memInvitationRepo) GetByToken(_ context.Context, token string) (*invitation.Invitation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, inv := range r.s.invitations {
		if inv.Token() == token {
			return copyInvitation(inv), nil
		}
	}
	return nil, fmt.Errorf("%w: invitation", shared.ErrNotFound)
}

func (r *memInvitationRepo) GetByID(_ context.Context, organizationID, id shared.ID) (*invitation.Invitation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	inv, ok := r.s.invitations[id]
	if !ok || !inv.OrganizationID().Equals(organizationID) {
		return nil, fmt.Errorf("%w: invitation %s", shared.ErrNotFound, id)
	}
	return copyInvitation(inv), nil
}

func (r *memInvitationRepo) List(_ context.Context, organizationID shared.ID, filter invitation.Filter, page pagination.Pagination) (pagination.Result[*invitation.Invitation], error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var all []*invitation.Invitation
	for _, inv := range r.s.invitations {
		if !inv.OrganizationID().Equals(organizationID) {
			continue
		}
		if filter.Status != nil {
			switch *filter.Status {
			case invitation.StatusPending:
				if !inv.IsPending() {
					continue
				}
			case invitation.StatusAccepted:
				if !inv.IsAccepted() {
					continue
				}
			case invitation.StatusExpired:
				if inv.IsAccepted() || !inv.IsExpired() {
					continue
				}
			}
		}
		if filter.Email != nil && inv.Email() != strings.ToLower(*filter.Email) {
			continue
		}
		all = append(all, copyInvitation(inv))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt().After(all[j].CreatedAt()) })

	total := int64(len(all))
	start := page.Offset()
	if start > len(all) {
		start = len(all)
	}
	end := start + page.Limit()
	if end > len(all) {
		end = len(all)
	}
	return pagination.NewResult(all[start:end], total, page), nil
}

func (r *memInvitationRepo) Accept(_ context.Context, inv *invitation.Invitation, grants invitation.AcceptGrants, entry *audit.Entry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.invitations[inv.ID()]
	if !ok {
		return fmt.Errorf("%w: invitation %s", shared.ErrNotFound, inv.ID())
	}
	if stored.IsAccepted() {
		return fmt.Errorf("%w: invitation %s", shared.ErrInvitationAccepted, inv.ID())
	}

	orgKey := memberKey(grants.OrgMember.OrganizationID(), grants.OrgMember.UserID())
	if _, exists := r.s.orgMembers[orgKey]; exists {
		return fmt.Errorf("%w: user is already a member", shared.ErrAlreadyExists)
	}
	r.s.orgMembers[orgKey] = grants.OrgMember
	if grants.TeamMember != nil {
		r.s.teamMembers[memberKey(grants.TeamMember.TeamID(), grants.TeamMember.UserID())] = grants.TeamMember
	}
	if grants.ProjectMember != nil {
		r.s.projectMembers[memberKey(grants.ProjectMember.ProjectID(), grants.ProjectMember.UserID())] = grants.ProjectMember
	}

	r.s.invitations[inv.ID()] = copyInvitation(inv)
	r.s.appendAudit(entry)
	return nil
}

func (r *memInvitationRepo) Delete(_ context.Context, organizationID, id shared.ID, entry *audit.Entry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	inv, ok := r.s.invitations[id]
	if !ok || !inv.OrganizationID().Equals(organizationID) {
		return fmt.Errorf("%w: invitation %s", shared.ErrNotFound, id)
	}
	if inv.IsAccepted() {
		return fmt.Errorf("%w: invitation %s", shared.ErrInvitationAccepted, id)
	}
	delete(r.s.invitations, id)
	r.s.appendAudit(entry)
	return nil
}

func (r *memInvitationRepo) ListExpiredOrganizations(_ context.Context, before time.Time) ([]shared.ID, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	seen := make(map[shared.ID]bool)
	var out []shared.ID
	for _, inv := range r.s.invitations {
		if !inv.IsAccepted() && inv.ExpiresAt().Before(before) && !seen[inv.OrganizationID()] {
			seen[inv.OrganizationID()] = true
			out = append(out, inv.OrganizationID())
		}
	}
	return out, nil
}

func (r *memInvitationRepo) DeleteExpired(_ context.Context, organizationID shared.ID, before time.Time, entry *audit.Entry) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var deleted int64
	for id, inv := range r.s.invitations {
		if inv.OrganizationID().Equals(organizationID) && !inv.IsAccepted() && inv.ExpiresAt().Before(before) {
			delete(r.s.invitations, id)
			deleted++
		}
	}
	if deleted > 0 {
		entry.WithContext("deleted", deleted)
		r.s.appendAudit(entry)
	}
	return deleted, nil
}

// --- user.Repository ---

type memUserRepo struct{ s *memStore }

func (r *memUserRepo) GetByID(_ context.Context, id shared.ID) (*user.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", shared.ErrNotFound, id)
	}
	return u, nil
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (*user.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	email = strings.ToLower(email)
	for _, u := range r.s.users {
		if u.Email() == email {
			return u, nil
		}
	}
	return nil, fmt.Errorf("%w: user %s", shared.ErrNotFound, email)
}

func (r *memUserRepo) GetByIDs(_ context.Context, ids []shared.ID) ([]*user.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*user.User
	for _, id := range ids {
		if u, ok := r.s.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r *memUserRepo) Upsert(_ context.Context, u *user.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.users[u.ID()] = u
	return nil
}

// --- audit.Repository ---

type memAuditRepo struct{ s *memStore }

func (r *memAuditRepo) Create(_ context.Context, entry *audit.Entry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.appendAudit(entry)
	return nil
}

func (r *memAuditRepo) List(_ context.Context, organizationID shared.ID, filter audit.Filter, page pagination.Pagination) (pagination.Result[*audit.Entry], error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var all []*audit.Entry
	for _, e := range r.s.audits {
		if !e.OrganizationID().Equals(organizationID) {
			continue
		}
		if filter.ActorID != nil && (e.ActorID() == nil || !e.ActorID().Equals(*filter.ActorID)) {
			continue
		}
		if len(filter.Actions) > 0 && !containsAction(filter.Actions, e.Action()) {
			continue
		}
		if len(filter.ResourceTypes) > 0 && !containsResourceType(filter.ResourceTypes, e.ResourceType()) {
			continue
		}
		if filter.ResourceID != nil && e.ResourceID() != *filter.ResourceID {
			continue
		}
		if filter.Since != nil && e.CreatedAt().Before(*filter.Since) {
			continue
		}
		if filter.Until != nil && e.CreatedAt().After(*filter.Until) {
			continue
		}
		all = append(all, e)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt().After(all[j].CreatedAt()) })

	total := int64(len(all))
	start := page.Offset()
	if start > len(all) {
		start = len(all)
	}
	end := start + page.Limit()
	if end > len(all) {
		end = len(all)
	}
	return pagination.NewResult(all[start:end], total, page), nil
}

func (r *memAuditRepo) CountOlderThan(_ context.Context, before time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, e := range r.s.audits {
		if e.CreatedAt().Before(before) {
			n++
		}
	}
	return n, nil
}

func (r *memAuditRepo) ListOlderThan(_ context.Context, before time.Time, limit int) ([]*audit.Entry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*audit.Entry
	for _, e := range r.s.audits {
		if e.CreatedAt().Before(before) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt().Before(out[j].CreatedAt()) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memAuditRepo) DeleteByIDs(_ context.Context, ids []shared.ID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	drop := make(map[shared.ID]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	var kept []*audit.Entry
	var deleted int64
	for _, e := range r.s.audits {
		if drop[e.ID()] {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	r.s.audits = kept
	return deleted, nil
}

func containsAction(actions []audit.Action, a audit.Action) bool {
	for _, candidate := range actions {
		if candidate == a {
			return true
		}
	}
	return false
}

func containsResourceType(types []audit.ResourceType, rt audit.ResourceType) bool {
	for _, candidate := range types {
		if candidate == rt {
			return true
		}
	}
	return false
}

// --- capture fakes for the service ports ---

type captureBroadcaster struct {
	mu     sync.Mutex
	events []ActivityEvent
}

func (b *captureBroadcaster) BroadcastActivity(event ActivityEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *captureBroadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

func (b *captureBroadcaster) last() ActivityEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.events[len(b.events)-1]
}

type captureEmailEnqueuer struct {
	mu         sync.Mutex
	invitation []InvitationEmailJobPayload
	accepted   []InvitationAcceptedJobPayload
}

func (e *captureEmailEnqueuer) EnqueueInvitationEmail(_ context.Context, payload InvitationEmailJobPayload) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.invitation = append(e.invitation, payload)
	return nil
}

func (e *captureEmailEnqueuer) EnqueueInvitationAccepted(_ context.Context, payload InvitationAcceptedJobPayload) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.accepted = append(e.accepted, payload)
	return nil
}

// --- test environment ---

// testEnv wires every service against one shared in-memory store.
type testEnv struct {
	store       *memStore
	orgs        *memOrgRepo
	teams       *memTeamRepo
	projects    *memProjectRepo
	tasks       *memTaskRepo
	invitations *memInvitationRepo
	users       *memUserRepo
	audits      *memAuditRepo

	orgService        *OrganizationService
	teamService       *TeamService
	projectService    *ProjectService
	taskService       *TaskService
	invitationService *InvitationService
	auditService      *AuditService
	userService       *UserService
	contextService    *TenantContextService
}

func newTestEnv() *testEnv {
	store := newMemStore()
	env := &testEnv{
		store:       store,
		orgs:        &memOrgRepo{s: store},
		teams:       &memTeamRepo{s: store},
		projects:    &memProjectRepo{s: store},
		tasks:       &memTaskRepo{s: store},
		invitations: &memInvitationRepo{s: store},
		users:       &memUserRepo{s: store},
		audits:      &memAuditRepo{s: store},
	}
	log := logger.NewNop()
	env.orgService = NewOrganizationService(env.orgs, env.teams, env.projects, env.tasks, env.users, log)
	env.teamService = NewTeamService(env.teams, env.orgs, env.users, log)
	env.projectService = NewProjectService(env.projects, env.teams, log)
	env.taskService = NewTaskService(env.tasks, env.projects, log)
	env.invitationService = NewInvitationService(env.invitations, env.orgs, env.teams, env.projects, env.users, log)
	env.auditService = NewAuditService(env.audits, log)
	env.userService = NewUserService(env.users, log)
	env.contextService = NewTenantContextService(env.orgs, env.teams, env.projects, log)
	return env
}

// addUser registers a directory row and returns its ID.
func (env *testEnv) addUser(email, name string) shared.ID {
	id := shared.NewID()
	u, err := user.NewFromClaims(id, email, name)
	if err != nil {
		panic(err)
	}
	env.store.mu.Lock()
	env.store.users[id] = u
	env.store.mu.Unlock()
	return id
}

// seedOrg creates an organization with a founding owner, bypassing the
// service so tests control the fixture exactly.
func (env *testEnv) seedOrg(name string, ownerID shared.ID) *organization.Organization {
	org, err := organization.NewOrganization(name, organization.GenerateSlug(name), ownerID)
	if err != nil {
		panic(err)
	}
	owner, err := organization.NewOwnerMember(org.ID(), ownerID)
	if err != nil {
		panic(err)
	}
	env.store.mu.Lock()
	env.store.orgs[org.ID()] = org
	env.store.orgMembers[memberKey(org.ID(), ownerID)] = owner
	env.store.mu.Unlock()
	return org
}

// seedOrgMember grants an organization membership directly.
func (env *testEnv) seedOrgMember(orgID, userID shared.ID, role organization.Role) {
	m, err := organization.NewMember(orgID, userID, role, nil)
	if err != nil {
		panic(err)
	}
	env.store.mu.Lock()
	env.store.orgMembers[memberKey(orgID, userID)] = m
	env.store.mu.Unlock()
}

// seedTeam creates a team directly.
func (env *testEnv) seedTeam(orgID shared.ID, name string, createdBy shared.ID) *team.Team {
	t, err := team.NewTeam(orgID, name, "", createdBy)
	if err != nil {
		panic(err)
	}
	env.store.mu.Lock()
	env.store.teams[t.ID()] = t
	env.store.mu.Unlock()
	return t
}

// seedTeamMember grants a team membership directly.
func (env *testEnv) seedTeamMember(teamID, orgID, userID shared.ID, role team.Role) {
	m, err := team.NewMember(teamID, orgID, userID, role, nil)
	if err != nil {
		panic(err)
	}
	env.store.mu.Lock()
	env.store.teamMembers[memberKey(teamID, userID)] = m
	env.store.mu.Unlock()
}

// seedProject creates a project directly.
func (env *testEnv) seedProject(teamID, orgID shared.ID, name string, createdBy shared.ID) *project.Project {
	p, err := project.NewProject(teamID, orgID, name, "", createdBy)
	if err != nil {
		panic(err)
	}
	env.store.mu.Lock()
	env.store.projects[p.ID()] = p
	env.store.mu.Unlock()
	return p
}

// seedProjectMember grants a project membership directly.
func (env *testEnv) seedProjectMember(projectID, orgID, userID shared.ID, role project.Role) {
	m, err := project.NewMember(projectID, orgID, userID, role, nil)
	if err != nil {
		panic(err)
	}
	env.store.mu.Lock()
	env.store.projectMembers[memberKey(projectID, userID)] = m
	env.store.mu.Unlock()
}

// seedTask creates a task directly.
func (env *testEnv) seedTask(projectID, orgID shared.ID, title string, createdBy shared.ID) *task.Task {
	t, err := task.NewTask(projectID, orgID, title, createdBy)
	if err != nil {
		panic(err)
	}
	env.store.mu.Lock()
	env.store.tasks[t.ID()] = t
	env.store.mu.Unlock()
	return t
}

// orgContext builds a TenantContext for a user with the given org role.
func orgContext(userID, orgID shared.ID, role organization.Role) accesscontrol.TenantContext {
	return accesscontrol.TenantContext{
		UserID:         userID,
		OrganizationID: orgID,
		OrgRole:        role,
	}
}
