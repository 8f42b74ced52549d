package app

import (
	"time"

	"github.com/samber/lo"

	"nel/api/internal/search"
	"nel/api/internal/store"
)

func timeOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func emptyIfNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func mapAll[T any](items []T, view func(T) map[string]any) []map[string]any {
	return lo.Map(items, func(item T, _ int) map[string]any { return view(item) })
}

func userView(u store.User) map[string]any {
	return map[string]any{
		"id":            u.ID,
		"email":         u.Email,
		"name":          u.Name,
		"image":         u.Image,
		"emailVerified": u.EmailVerified,
		"role":          u.Role,
		"department":    u.Department,
		"permissions":   emptyIfNil(u.Permissions),
		"preferences":   u.Preferences,
		"profile":       u.Profile,
		"banned":        u.Banned,
		"banReason":     u.BanReason,
		"lastLoginAt":   timeOrNil(u.LastLoginAt),
		"loginCount":    u.LoginCount,
		"createdAt":     u.CreatedAt,
		"updatedAt":     u.UpdatedAt,
	}
}

func sessionView(session Session) map[string]any {
	return map[string]any{
		"accessToken":  session.Token,
		"refreshToken": session.RefreshToken,
		"expiresAt":    session.ExpiresAt.UTC(),
		"userId":       session.UserID,
		"userName":     session.UserName,
		"email":        session.Email,
		"role":         session.Role,
		"orgId":        session.OrgID,
	}
}

func organizationView(o store.Organization) map[string]any {
	return map[string]any{
		"id":        o.ID,
		"name":      o.Name,
		"slug":      o.Slug,
		"createdAt": o.CreatedAt,
	}
}

func membershipView(m store.Membership) map[string]any {
	return map[string]any{
		"orgId":     m.OrgID,
		"orgName":   m.OrgName,
		"userId":    m.UserID,
		"userEmail": m.UserEmail,
		"userName":  m.UserName,
		"role":      m.Role,
		"createdAt": m.CreatedAt,
	}
}

func invitationView(inv store.Invitation) map[string]any {
	return map[string]any{
		"id":         inv.ID,
		"orgId":      inv.OrgID,
		"email":      inv.Email,
		"role":       inv.Role,
		"invitedBy":  inv.InvitedBy,
		"expiresAt":  inv.ExpiresAt,
		"acceptedAt": timeOrNil(inv.AcceptedAt),
		"createdAt":  inv.CreatedAt,
	}
}

func projectView(p store.Project) map[string]any {
	return map[string]any{
		"id":          p.ID,
		"orgId":       p.OrgID,
		"name":        p.Name,
		"description": p.Description,
		"status":      p.Status,
		"progress":    p.Progress,
		"startDate":   p.StartDate,
		"endDate":     timeOrNil(p.EndDate),
		"budget":      p.Budget,
		"spent":       p.Spent,
		"managerId":   p.ManagerID,
		"location":    p.Location,
		"priority":    p.Priority,
		"tags":        emptyIfNil(p.Tags),
		"metadata":    p.Metadata,
		"createdAt":   p.CreatedAt,
		"updatedAt":   p.UpdatedAt,
	}
}

func taskView(t store.Task) map[string]any {
	return map[string]any{
		"id":             t.ID,
		"projectId":      t.ProjectID,
		"title":          t.Title,
		"description":    t.Description,
		"status":         t.Status,
		"priority":       t.Priority,
		"assigneeId":     t.AssigneeID,
		"dueDate":        timeOrNil(t.DueDate),
		"completedAt":    timeOrNil(t.CompletedAt),
		"estimatedHours": t.EstimatedHours,
		"actualHours":    t.ActualHours,
		"dependencies":   emptyIfNil(t.Dependencies),
		"tags":           emptyIfNil(t.Tags),
		"createdAt":      t.CreatedAt,
		"updatedAt":      t.UpdatedAt,
	}
}

func searchResultView(r search.Result) map[string]any {
	return map[string]any{
		"tasks":         mapAll(r.Tasks, taskView),
		"projects":      mapAll(r.Projects, projectView),
		"totalTasks":    r.TotalTasks,
		"totalProjects": r.TotalProjects,
	}
}

func resourceView(r store.Resource) map[string]any {
	return map[string]any{
		"id":             r.ID,
		"projectId":      r.ProjectID,
		"name":           r.Name,
		"type":           r.Type,
		"quantity":       r.Quantity,
		"unit":           r.Unit,
		"cost":           r.Cost,
		"supplier":       r.Supplier,
		"status":         r.Status,
		"deliveryDate":   timeOrNil(r.DeliveryDate),
		"returnDate":     timeOrNil(r.ReturnDate),
		"specifications": r.Specifications,
		"createdAt":      r.CreatedAt,
	}
}

func equipmentView(e store.Equipment) map[string]any {
	return map[string]any{
		"id":                  e.ID,
		"projectId":           e.ProjectID,
		"name":                e.Name,
		"type":                e.Type,
		"status":              e.Status,
		"location":            e.Location,
		"operatorId":          e.OperatorID,
		"maintenanceSchedule": e.MaintenanceSchedule,
		"lastMaintenance":     timeOrNil(e.LastMaintenance),
		"nextMaintenance":     timeOrNil(e.NextMaintenance),
		"hourlyRate":          e.HourlyRate,
		"dailyRate":           e.DailyRate,
		"specifications":      e.Specifications,
		"createdAt":           e.CreatedAt,
	}
}

func activityView(a store.SiteActivity) map[string]any {
	return map[string]any{
		"id":          a.ID,
		"projectId":   a.ProjectID,
		"type":        a.Type,
		"description": a.Description,
		"recordedBy":  a.RecordedBy,
		"location":    a.Location,
		"photos":      emptyIfNil(a.Photos),
		"weather":     a.Weather,
		"timestamp":   a.OccurredAt,
	}
}

func incidentView(i store.SafetyIncident) map[string]any {
	return map[string]any{
		"id":              i.ID,
		"projectId":       i.ProjectID,
		"type":            i.Type,
		"severity":        i.Severity,
		"description":     i.Description,
		"reportedBy":      i.ReportedBy,
		"location":        i.Location,
		"photos":          emptyIfNil(i.Photos),
		"resolved":        i.Resolved,
		"resolvedAt":      timeOrNil(i.ResolvedAt),
		"resolutionNotes": i.ResolutionNotes,
		"timestamp":       i.OccurredAt,
	}
}

func documentView(d store.Document) map[string]any {
	return map[string]any{
		"id":         d.ID,
		"projectId":  d.ProjectID,
		"name":       d.Name,
		"type":       d.Type,
		"uploadedBy": d.UploadedBy,
		"size":       d.Size,
		"mimeType":   d.MimeType,
		"tags":       emptyIfNil(d.Tags),
		"createdAt":  d.CreatedAt,
	}
}

func metricView(m store.AnalyticsSample) map[string]any {
	return map[string]any{
		"id":        m.ID,
		"projectId": m.ProjectID,
		"metric":    m.Metric,
		"value":     m.Value,
		"unit":      m.Unit,
		"timestamp": m.OccurredAt,
		"metadata":  m.Metadata,
	}
}

func notificationView(n store.Notification) map[string]any {
	return map[string]any{
		"id":        n.ID,
		"userId":    n.UserID,
		"title":     n.Title,
		"message":   n.Message,
		"type":      n.Type,
		"read":      n.Read,
		"readAt":    timeOrNil(n.ReadAt),
		"data":      n.Data,
		"dedupeKey": n.DedupeKey,
		"expiresAt": timeOrNil(n.ExpiresAt),
		"createdAt": n.CreatedAt,
	}
}

func planView(p store.Plan) map[string]any {
	return map[string]any{
		"id":       p.ID,
		"name":     p.Name,
		"priceId":  p.PriceID,
		"amount":   p.Amount,
		"currency": p.Currency,
		"interval": p.Interval,
		"features": emptyIfNil(p.Features),
	}
}

func subscriptionView(sub store.Subscription) map[string]any {
	return map[string]any{
		"id":                sub.ID,
		"userId":            sub.UserID,
		"planId":            sub.PlanID,
		"status":            sub.Status,
		"amount":            sub.Amount,
		"cancelAtPeriodEnd": sub.CancelAtPeriodEnd,
		"currentPeriodEnd":  timeOrNil(sub.CurrentPeriodEnd),
		"createdAt":         sub.CreatedAt,
		"updatedAt":         sub.UpdatedAt,
	}
}

func emailView(rec store.EmailRecord) map[string]any {
	return map[string]any{
		"id":         rec.ID,
		"provider":   rec.Provider,
		"providerId": rec.ProviderID,
		"template":   rec.Template,
		"recipient":  rec.Recipient,
		"subject":    rec.Subject,
		"status":     rec.Status,
		"attempts":   rec.Attempts,
		"lastError":  rec.LastError,
		"createdAt":  rec.CreatedAt,
		"updatedAt":  rec.UpdatedAt,
	}
}
