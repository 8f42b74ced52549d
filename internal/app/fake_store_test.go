package app

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	"nel/api/internal/store"
)

// fakeStore is an in-memory DataStore. Function fields override individual
// methods where a test needs a failure.
type fakeStore struct {
	mu sync.Mutex

	pingFn             func(context.Context) error
	insertNotification func(context.Context, store.Notification) error

	users         map[string]store.User
	resets        map[string]string
	refresh       map[string]store.RefreshSession
	revoked       map[string]bool
	orgs          map[string]store.Organization
	members       map[string]map[string]string
	invitations   map[string]store.Invitation
	projects      map[string]store.Project
	tasks         map[string]store.Task
	resources     map[string]store.Resource
	equipment     map[string]store.Equipment
	activities    []store.SiteActivity
	incidents     map[string]store.SafetyIncident
	documents     map[string]store.Document
	metrics       []store.AnalyticsSample
	notifications map[string]store.Notification
	plans         map[string]store.Plan
	subscriptions map[string]store.Subscription
	emails        map[string]store.EmailRecord
	emailEvents   []store.EmailEvent
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:         map[string]store.User{},
		resets:        map[string]string{},
		refresh:       map[string]store.RefreshSession{},
		revoked:       map[string]bool{},
		orgs:          map[string]store.Organization{},
		members:       map[string]map[string]string{},
		invitations:   map[string]store.Invitation{},
		projects:      map[string]store.Project{},
		tasks:         map[string]store.Task{},
		resources:     map[string]store.Resource{},
		equipment:     map[string]store.Equipment{},
		incidents:     map[string]store.SafetyIncident{},
		documents:     map[string]store.Document{},
		notifications: map[string]store.Notification{},
		plans:         map[string]store.Plan{},
		subscriptions: map[string]store.Subscription{},
		emails:        map[string]store.EmailRecord{},
	}
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

// addMember is a test helper; it is not part of DataStore.
func (f *fakeStore) addMember(orgID, userID, role string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.orgs[orgID]; !ok {
		f.orgs[orgID] = store.Organization{ID: orgID, Name: orgID, Slug: orgID}
	}
	if f.members[orgID] == nil {
		f.members[orgID] = map[string]string{}
	}
	f.members[orgID][userID] = role
}

// Sessions

func (f *fakeStore) SaveRefreshSession(_ context.Context, tokenHash, userID string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refresh[tokenHash] = store.RefreshSession{UserID: userID, CreatedAt: time.Now().UTC(), ExpiresAt: expiresAt}
	return nil
}

func (f *fakeStore) LookupRefreshSession(_ context.Context, tokenHash string) (store.RefreshSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rs, ok := f.refresh[tokenHash]
	if !ok || !rs.ExpiresAt.After(time.Now()) {
		return store.RefreshSession{}, sql.ErrNoRows
	}
	return rs, nil
}

func (f *fakeStore) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.refresh, tokenHash)
	return nil
}

func (f *fakeStore) RevokeAccessToken(_ context.Context, jti string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked[jti] = true
	return nil
}

func (f *fakeStore) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revoked[jti], nil
}

// Users

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeStore) GetUserByID(_ context.Context, id string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (f *fakeStore) CreateUser(_ context.Context, user store.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if strings.EqualFold(u.Email, user.Email) {
			return store.ErrDuplicate
		}
	}
	now := time.Now().UTC()
	user.CreatedAt, user.UpdatedAt = now, now
	f.users[user.ID] = user
	return nil
}

func (f *fakeStore) updateUser(id string, fn func(*store.User)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	fn(&u)
	f.users[id] = u
	return nil
}

func (f *fakeStore) UpdateUserVerificationToken(_ context.Context, userID, token string, expiresAt time.Time) error {
	return f.updateUser(userID, func(u *store.User) {
		u.VerificationToken, u.VerificationExpiresAt = token, &expiresAt
	})
}

func (f *fakeStore) VerifyUserEmail(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, u := range f.users {
		if token != "" && u.VerificationToken == token && u.VerificationExpiresAt != nil && u.VerificationExpiresAt.After(time.Now()) {
			u.EmailVerified, u.VerificationToken, u.VerificationExpiresAt = true, "", nil
			f.users[id] = u
			return nil
		}
	}
	return sql.ErrNoRows
}

func (f *fakeStore) UpdateUserPassword(_ context.Context, userID, hash string) error {
	return f.updateUser(userID, func(u *store.User) { u.PasswordHash = hash })
}

func (f *fakeStore) CreatePasswordReset(_ context.Context, userID, token string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets[token] = userID
	return nil
}

func (f *fakeStore) GetPasswordReset(_ context.Context, token string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	userID, ok := f.resets[token]
	if !ok {
		return "", sql.ErrNoRows
	}
	return userID, nil
}

func (f *fakeStore) MarkPasswordResetUsed(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.resets, token)
	return nil
}

func (f *fakeStore) ListUsers(_ context.Context, filter store.UserFilter) ([]store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.User
	for _, u := range f.users {
		if filter.Role != "" && u.Role != filter.Role {
			continue
		}
		if filter.Search != "" && u.Name != filter.Search && u.Email != filter.Search {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	if filter.Offset >= len(out) {
		return nil, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (f *fakeStore) UpdateUserRole(_ context.Context, userID, role string) error {
	return f.updateUser(userID, func(u *store.User) { u.Role = role })
}

func (f *fakeStore) UpdateUserProfile(_ context.Context, userID, name, image string, profile store.Profile) error {
	return f.updateUser(userID, func(u *store.User) { u.Name, u.Image, u.Profile = name, image, profile })
}

func (f *fakeStore) UpdateUserPreferences(_ context.Context, userID string, prefs store.Preferences) error {
	return f.updateUser(userID, func(u *store.User) { u.Preferences = prefs })
}

func (f *fakeStore) SetUserBan(_ context.Context, userID string, banned bool, reason string) error {
	return f.updateUser(userID, func(u *store.User) { u.Banned, u.BanReason = banned, reason })
}

func (f *fakeStore) TrackLogin(_ context.Context, userID string, at time.Time) error {
	return f.updateUser(userID, func(u *store.User) {
		u.LoginCount++
		u.LastLoginAt = &at
	})
}

// Organizations

func (f *fakeStore) CreateOrganization(_ context.Context, org store.Organization, ownerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orgs {
		if o.Slug == org.Slug {
			return store.ErrDuplicate
		}
	}
	f.orgs[org.ID] = org
	f.members[org.ID] = map[string]string{ownerID: "admin"}
	return nil
}

func (f *fakeStore) GetOrganization(_ context.Context, orgID string) (store.Organization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	org, ok := f.orgs[orgID]
	if !ok {
		return store.Organization{}, sql.ErrNoRows
	}
	return org, nil
}

func (f *fakeStore) ListUserMemberships(_ context.Context, userID string) ([]store.Membership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Membership
	for orgID, members := range f.members {
		if role, ok := members[userID]; ok {
			out = append(out, store.Membership{OrgID: orgID, OrgName: f.orgs[orgID].Name, UserID: userID, Role: role})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrgID < out[j].OrgID })
	return out, nil
}

func (f *fakeStore) GetMembership(_ context.Context, orgID, userID string) (store.Membership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	role, ok := f.members[orgID][userID]
	if !ok {
		return store.Membership{}, sql.ErrNoRows
	}
	return store.Membership{OrgID: orgID, UserID: userID, Role: role}, nil
}

func (f *fakeStore) ListMembers(_ context.Context, orgID string) ([]store.Membership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Membership
	for userID, role := range f.members[orgID] {
		u := f.users[userID]
		out = append(out, store.Membership{OrgID: orgID, UserID: userID, Role: role, UserEmail: u.Email, UserName: u.Name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (f *fakeStore) CreateInvitation(_ context.Context, inv store.Invitation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invitations[inv.Token] = inv
	return nil
}

func (f *fakeStore) GetInvitationByToken(_ context.Context, token string) (store.Invitation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.invitations[token]
	if !ok {
		return store.Invitation{}, sql.ErrNoRows
	}
	return inv, nil
}

func (f *fakeStore) AcceptInvitation(_ context.Context, inv store.Invitation, userID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv.AcceptedAt = &at
	f.invitations[inv.Token] = inv
	if f.members[inv.OrgID] == nil {
		f.members[inv.OrgID] = map[string]string{}
	}
	f.members[inv.OrgID][userID] = inv.Role
	return nil
}

// Projects

func (f *fakeStore) GetProject(_ context.Context, orgID, projectID string) (store.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[projectID]
	if !ok || p.OrgID != orgID {
		return store.Project{}, sql.ErrNoRows
	}
	return p, nil
}

func (f *fakeStore) listProjects(keep func(store.Project) bool) []store.Project {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Project
	for _, p := range f.projects {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *fakeStore) ListProjects(_ context.Context, orgID string) ([]store.Project, error) {
	return f.listProjects(func(p store.Project) bool { return p.OrgID == orgID }), nil
}

func (f *fakeStore) ListAllProjects(context.Context) ([]store.Project, error) {
	return f.listProjects(func(store.Project) bool { return true }), nil
}

func (f *fakeStore) ListProjectsByStatus(_ context.Context, orgID, status string) ([]store.Project, error) {
	return f.listProjects(func(p store.Project) bool { return p.OrgID == orgID && p.Status == status }), nil
}

func (f *fakeStore) ListProjectsByManager(_ context.Context, orgID, managerID string) ([]store.Project, error) {
	return f.listProjects(func(p store.Project) bool { return p.OrgID == orgID && p.ManagerID == managerID }), nil
}

func (f *fakeStore) CreateProject(_ context.Context, p store.Project) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.projects[p.ID] = p
	return nil
}

func (f *fakeStore) UpdateProject(_ context.Context, p store.Project) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.projects[p.ID]; !ok || existing.OrgID != p.OrgID {
		return sql.ErrNoRows
	}
	f.projects[p.ID] = p
	return nil
}

func (f *fakeStore) DeleteProject(_ context.Context, orgID, projectID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.projects[projectID]; !ok || p.OrgID != orgID {
		return sql.ErrNoRows
	}
	delete(f.projects, projectID)
	for id, t := range f.tasks {
		if t.ProjectID == projectID {
			delete(f.tasks, id)
		}
	}
	return nil
}

// Tasks

func (f *fakeStore) listTasks(keep func(store.Task) bool) []store.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Task
	for _, t := range f.tasks {
		if keep(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *fakeStore) GetTask(_ context.Context, orgID, taskID string) (store.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[taskID]
	if !ok || t.OrgID != orgID {
		return store.Task{}, sql.ErrNoRows
	}
	return t, nil
}

func (f *fakeStore) ListTasksByProject(_ context.Context, orgID, projectID string) ([]store.Task, error) {
	return f.listTasks(func(t store.Task) bool { return t.OrgID == orgID && t.ProjectID == projectID }), nil
}

func (f *fakeStore) ListTasksByStatus(_ context.Context, orgID, status string) ([]store.Task, error) {
	return f.listTasks(func(t store.Task) bool { return t.OrgID == orgID && t.Status == status }), nil
}

func (f *fakeStore) ListAllTasks(context.Context) ([]store.Task, error) {
	return f.listTasks(func(store.Task) bool { return true }), nil
}

func (f *fakeStore) ListTasksFiltered(_ context.Context, filter store.TaskFilter) ([]store.Task, error) {
	return f.listTasks(func(t store.Task) bool {
		switch {
		case filter.OrgID != "" && t.OrgID != filter.OrgID,
			filter.ProjectID != "" && t.ProjectID != filter.ProjectID,
			filter.RequireDue && t.DueDate == nil:
			return false
		}
		return true
	}), nil
}

func (f *fakeStore) ListOverdueTasks(_ context.Context, orgID string, now time.Time) ([]store.Task, error) {
	return f.listTasks(func(t store.Task) bool {
		return (orgID == "" || t.OrgID == orgID) && t.Status == "pending" &&
			t.DueDate != nil && t.DueDate.Before(now)
	}), nil
}

func (f *fakeStore) CreateTask(_ context.Context, t store.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[t.ID] = t
	return nil
}

func (f *fakeStore) UpdateTask(_ context.Context, t store.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.tasks[t.ID]; !ok || existing.OrgID != t.OrgID {
		return sql.ErrNoRows
	}
	f.tasks[t.ID] = t
	return nil
}

func (f *fakeStore) UpdateTaskStatus(_ context.Context, orgID, taskID, status string, completedAt *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[taskID]
	if !ok || t.OrgID != orgID {
		return sql.ErrNoRows
	}
	t.Status, t.CompletedAt = status, completedAt
	f.tasks[taskID] = t
	return nil
}

func (f *fakeStore) DeleteTask(_ context.Context, orgID, taskID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.tasks[taskID]; !ok || t.OrgID != orgID {
		return sql.ErrNoRows
	}
	delete(f.tasks, taskID)
	return nil
}

func (f *fakeStore) CountProjectTasks(_ context.Context, orgID, projectID string) (int, int, error) {
	tasks := f.listTasks(func(t store.Task) bool { return t.OrgID == orgID && t.ProjectID == projectID })
	completed := 0
	for _, t := range tasks {
		if t.Status == "completed" {
			completed++
		}
	}
	return len(tasks), completed, nil
}

// Resources and equipment

func (f *fakeStore) CreateResource(_ context.Context, r store.Resource) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resources[r.ID] = r
	return nil
}

func (f *fakeStore) ListResourcesByProject(_ context.Context, orgID, projectID string) ([]store.Resource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Resource
	for _, r := range f.resources {
		if r.OrgID == orgID && r.ProjectID == projectID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) UpdateResourceStatus(_ context.Context, orgID, resourceID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.resources[resourceID]
	if !ok || r.OrgID != orgID {
		return sql.ErrNoRows
	}
	r.Status = status
	f.resources[resourceID] = r
	return nil
}

func (f *fakeStore) CountResourcesByStatus(ctx context.Context, orgID, projectID, status string) (int, int, error) {
	resources, _ := f.ListResourcesByProject(ctx, orgID, projectID)
	matching := 0
	for _, r := range resources {
		if r.Status == status {
			matching++
		}
	}
	return len(resources), matching, nil
}

func (f *fakeStore) ListEquipmentByProject(_ context.Context, orgID, projectID string) ([]store.Equipment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Equipment
	for _, e := range f.equipment {
		if e.OrgID == orgID && e.ProjectID == projectID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStore) ListEquipmentDueForMaintenance(_ context.Context, orgID string, now time.Time) ([]store.Equipment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Equipment
	for _, e := range f.equipment {
		if (orgID == "" || e.OrgID == orgID) && e.NextMaintenance != nil && !e.NextMaintenance.After(now) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateEquipment(_ context.Context, e store.Equipment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.equipment[e.ID] = e
	return nil
}

func (f *fakeStore) UpdateEquipmentStatus(_ context.Context, orgID, equipmentID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.equipment[equipmentID]
	if !ok || e.OrgID != orgID {
		return sql.ErrNoRows
	}
	e.Status = status
	f.equipment[equipmentID] = e
	return nil
}

// Activities and safety

func (f *fakeStore) CreateSiteActivity(_ context.Context, a store.SiteActivity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activities = append(f.activities, a)
	return nil
}

func (f *fakeStore) ListSiteActivities(_ context.Context, orgID, projectID string, limit int) ([]store.SiteActivity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.SiteActivity
	for i := len(f.activities) - 1; i >= 0 && len(out) < limit; i-- {
		if a := f.activities[i]; a.OrgID == orgID && a.ProjectID == projectID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) GetIncident(_ context.Context, orgID, incidentID string) (store.SafetyIncident, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i, ok := f.incidents[incidentID]
	if !ok || i.OrgID != orgID {
		return store.SafetyIncident{}, sql.ErrNoRows
	}
	return i, nil
}

func (f *fakeStore) ListIncidentsByProject(_ context.Context, orgID, projectID string) ([]store.SafetyIncident, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.SafetyIncident
	for _, i := range f.incidents {
		if i.OrgID == orgID && i.ProjectID == projectID {
			out = append(out, i)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateIncident(_ context.Context, i store.SafetyIncident) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.incidents[i.ID] = i
	return nil
}

func (f *fakeStore) ResolveIncident(_ context.Context, orgID, incidentID, notes string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	i, ok := f.incidents[incidentID]
	if !ok || i.OrgID != orgID {
		return sql.ErrNoRows
	}
	i.Resolved, i.ResolvedAt, i.ResolutionNotes = true, &at, notes
	f.incidents[incidentID] = i
	return nil
}

func (f *fakeStore) IncidentStats(_ context.Context, orgID string) (store.IncidentStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := store.IncidentStats{BySeverity: map[string]int{}}
	for _, i := range f.incidents {
		if i.OrgID != orgID {
			continue
		}
		stats.Total++
		if i.Resolved {
			stats.Resolved++
		} else {
			stats.Pending++
		}
		stats.BySeverity[i.Severity]++
	}
	return stats, nil
}

// Documents

func (f *fakeStore) CreateDocument(_ context.Context, d store.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.documents[d.ID] = d
	return nil
}

func (f *fakeStore) GetDocument(_ context.Context, orgID, documentID string) (store.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.documents[documentID]
	if !ok || d.OrgID != orgID {
		return store.Document{}, sql.ErrNoRows
	}
	return d, nil
}

func (f *fakeStore) ListDocuments(_ context.Context, orgID, projectID string) ([]store.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Document
	for _, d := range f.documents {
		if d.OrgID == orgID && d.ProjectID == projectID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeStore) DeleteDocument(_ context.Context, orgID, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.documents[documentID]; !ok || d.OrgID != orgID {
		return sql.ErrNoRows
	}
	delete(f.documents, documentID)
	return nil
}

// Analytics

func (f *fakeStore) CreateMetric(_ context.Context, m store.AnalyticsSample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metrics = append(f.metrics, m)
	return nil
}

func (f *fakeStore) ListMetrics(_ context.Context, orgID, projectID, metric string, limit int) ([]store.AnalyticsSample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.AnalyticsSample
	for _, m := range f.metrics {
		if m.OrgID == orgID && m.ProjectID == projectID && (metric == "" || m.Metric == metric) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.After(out[j].OccurredAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) LatestMetrics(ctx context.Context, orgID, projectID string) (map[string]float64, error) {
	samples, _ := f.ListMetrics(ctx, orgID, projectID, "", 0)
	latest := map[string]float64{}
	for _, m := range samples {
		if _, ok := latest[m.Metric]; !ok {
			latest[m.Metric] = m.Value
		}
	}
	return latest, nil
}

// Notifications

func (f *fakeStore) InsertNotification(ctx context.Context, n store.Notification, window time.Duration, now time.Time) (store.Notification, bool, error) {
	if f.insertNotification != nil {
		if err := f.insertNotification(ctx, n); err != nil {
			return store.Notification{}, false, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, existing := range f.notifications {
		if existing.UserID != n.UserID || existing.DedupeKey != n.DedupeKey || existing.Read {
			continue
		}
		expired := existing.ExpiresAt != nil && !existing.ExpiresAt.After(now)
		stale := window > 0 && existing.CreatedAt.Before(now.Add(-window))
		if expired || stale {
			delete(f.notifications, id)
			continue
		}
		return existing, true, nil
	}
	n.CreatedAt = now
	if n.Data == nil {
		n.Data = map[string]any{}
	}
	f.notifications[n.ID] = n
	return n, false, nil
}

func (f *fakeStore) ListActiveNotifications(_ context.Context, userID string, now time.Time, max int) ([]store.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Notification
	for _, n := range f.notifications {
		if n.UserID == userID && (n.ExpiresAt == nil || n.ExpiresAt.After(now)) {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > max {
		out = out[:max]
	}
	return out, nil
}

func (f *fakeStore) CountUnreadNotifications(_ context.Context, userID string, now time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := map[string]bool{}
	for _, n := range f.notifications {
		if n.UserID == userID && !n.Read && (n.ExpiresAt == nil || n.ExpiresAt.After(now)) {
			keys[n.DedupeKey] = true
		}
	}
	return len(keys), nil
}

func (f *fakeStore) MarkNotificationRead(_ context.Context, userID, notificationID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.notifications[notificationID]
	if !ok || n.UserID != userID {
		return sql.ErrNoRows
	}
	n.Read, n.ReadAt = true, &at
	f.notifications[notificationID] = n
	return nil
}

func (f *fakeStore) MarkAllNotificationsRead(_ context.Context, userID string, at time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for id, n := range f.notifications {
		if n.UserID == userID && !n.Read {
			n.Read, n.ReadAt = true, &at
			f.notifications[id] = n
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) DeleteNotification(_ context.Context, userID, notificationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n, ok := f.notifications[notificationID]; !ok || n.UserID != userID {
		return sql.ErrNoRows
	}
	delete(f.notifications, notificationID)
	return nil
}

func (f *fakeStore) DeleteExpiredNotifications(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for id, n := range f.notifications {
		if n.ExpiresAt != nil && n.ExpiresAt.Before(now) {
			delete(f.notifications, id)
			count++
		}
	}
	return count, nil
}

// Billing

func (f *fakeStore) ListActivePlans(context.Context) ([]store.Plan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Plan
	for _, p := range f.plans {
		if p.IsActive {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Amount < out[j].Amount })
	return out, nil
}

func (f *fakeStore) GetPlan(_ context.Context, planID string) (store.Plan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.plans[planID]
	if !ok {
		return store.Plan{}, sql.ErrNoRows
	}
	return p, nil
}

func (f *fakeStore) GetActiveSubscription(_ context.Context, userID string) (store.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.subscriptions {
		if s.UserID == userID && s.Status == "active" {
			return s, nil
		}
	}
	return store.Subscription{}, sql.ErrNoRows
}

func (f *fakeStore) GetSubscription(_ context.Context, id string) (store.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.subscriptions[id]
	if !ok {
		return store.Subscription{}, sql.ErrNoRows
	}
	return s, nil
}

func (f *fakeStore) UpdateSubscription(_ context.Context, sub store.Subscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.subscriptions[sub.ID]; !ok {
		return sql.ErrNoRows
	}
	f.subscriptions[sub.ID] = sub
	return nil
}

func (f *fakeStore) UpsertSubscription(_ context.Context, sub store.Subscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, existing := range f.subscriptions {
		if existing.ExternalID == sub.ExternalID {
			sub.ID = id
			break
		}
	}
	f.subscriptions[sub.ID] = sub
	return nil
}

func (f *fakeStore) SetSubscriptionStatusByExternalID(_ context.Context, externalID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, s := range f.subscriptions {
		if s.ExternalID == externalID {
			s.Status = status
			f.subscriptions[id] = s
			return nil
		}
	}
	return sql.ErrNoRows
}

func (f *fakeStore) CancelSubscription(_ context.Context, id string, immediately bool, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.subscriptions[id]
	if !ok {
		return sql.ErrNoRows
	}
	if immediately {
		s.Status, s.CancelAtPeriodEnd = "canceled", false
	} else {
		s.CancelAtPeriodEnd = true
	}
	s.UpdatedAt = at
	f.subscriptions[id] = s
	return nil
}

func (f *fakeStore) SubscriptionAnalytics(context.Context) (store.SubscriptionAnalytics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var a store.SubscriptionAnalytics
	for _, s := range f.subscriptions {
		a.Total++
		switch s.Status {
		case "active":
			a.Active++
			a.Revenue += s.Amount
		case "canceled":
			a.Canceled++
		case "past_due":
			a.PastDue++
		}
	}
	return a, nil
}

// Emails

func (f *fakeStore) ClaimEmail(_ context.Context, rec store.EmailRecord) (store.EmailRecord, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.emails {
		if existing.IdempotencyKey == rec.IdempotencyKey {
			return existing, false, nil
		}
	}
	f.emails[rec.ID] = rec
	return rec, true, nil
}

func (f *fakeStore) RecordEmailAttempt(_ context.Context, emailID, providerID, status, lastError string, attempts int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.emails[emailID]
	if !ok {
		return sql.ErrNoRows
	}
	rec.ProviderID, rec.Status, rec.LastError, rec.Attempts = providerID, status, lastError, attempts
	f.emails[emailID] = rec
	return nil
}

func (f *fakeStore) GetEmail(_ context.Context, emailID string) (store.EmailRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.emails[emailID]
	if !ok {
		return store.EmailRecord{}, sql.ErrNoRows
	}
	return rec, nil
}

func (f *fakeStore) GetEmailByProviderID(_ context.Context, providerID string) (store.EmailRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.emails {
		if rec.ProviderID == providerID {
			return rec, nil
		}
	}
	return store.EmailRecord{}, sql.ErrNoRows
}

func (f *fakeStore) UpdateEmailStatus(_ context.Context, emailID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.emails[emailID]
	if !ok {
		return sql.ErrNoRows
	}
	rec.Status = status
	f.emails[emailID] = rec
	return nil
}

func (f *fakeStore) InsertEmailEvent(_ context.Context, event store.EmailEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emailEvents = append(f.emailEvents, event)
	return nil
}

var _ DataStore = (*fakeStore)(nil)
