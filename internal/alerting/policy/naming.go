package policy

import (
	"fmt"
	"strings"
)

// Alert kinds used in policy names.
const (
	AlertSaturationHigh   = "saturation-high"
	AlertStorageUsageHigh = "storage-usage-high"
)

// AlertName returns the canonical policy name {prefix}:infra:{kind}:{alertKind}:warn.
func AlertName(prefix string, kind Kind, alertKind string) string {
	return fmt.Sprintf("%s:infra:%s:%s:warn", prefix, kind, alertKind)
}

// Subject returns the notification subject line for a policy.
func Subject(systemName, alertName string) string {
	return fmt.Sprintf("[%s] %s", systemName, alertName)
}

// eq renders a single monitoring filter clause. value is interpolated verbatim.
func eq(field, value string) string {
	return fmt.Sprintf(`%s = "%s"`, field, value)
}

func filter(clauses ...string) string {
	return strings.Join(clauses, " AND ")
}
