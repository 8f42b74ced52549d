package app

import (
	"sort"
	"strings"

	"github.com/samber/lo"
)

var (
	projectStatuses      = []string{"planning", "active", "on_hold", "completed", "cancelled"}
	priorities           = []string{"low", "medium", "high", "critical"}
	taskStatuses         = []string{"pending", "in_progress", "completed", "blocked"}
	resourceTypes        = []string{"labor", "equipment", "material", "subcontractor"}
	resourceStatuses     = []string{"ordered", "delivered", "in_use", "returned", "damaged"}
	equipmentStatuses    = []string{"available", "in_use", "maintenance", "retired"}
	activityTypes        = []string{"inspection", "work_completed", "incident", "weather_delay"}
	incidentTypes        = []string{"near_miss", "injury", "property_damage", "environmental"}
	severities           = []string{"low", "medium", "high", "critical"}
	documentTypes        = []string{"drawing", "specification", "report", "photo", "video"}
	metricNames          = []string{"progress", "efficiency", "quality", "safety", "budget"}
	subscriptionStatuses = []string{"active", "canceled", "past_due", "trialing"}
	themes               = []string{"light", "dark", "system"}
)

// fieldErrors collects per-field validation messages.
type fieldErrors map[string]string

func (f fieldErrors) required(field, value string) {
	if strings.TrimSpace(value) == "" {
		f[field] = field + " is required"
	}
}

func (f fieldErrors) oneOf(field, value string, allowed []string) {
	if !lo.Contains(allowed, value) {
		f[field] = field + " must be one of " + strings.Join(allowed, ", ")
	}
}

func (f fieldErrors) check(cond bool, field, message string) {
	if !cond {
		f[field] = message
	}
}

// err returns nil when nothing failed. The message names the first field in
// alphabetical order so responses are stable.
func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	keys := lo.Keys(f)
	sort.Strings(keys)
	return validationError(f[keys[0]], map[string]string(f))
}

func clampLimit(limit, fallback, max int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > max {
		return max
	}
	return limit
}
