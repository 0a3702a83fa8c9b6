package policy

import (
	"fmt"
	"net/url"
	"time"
)

// Cloud SQL thresholds for the primary instance.
const (
	SQLCPUThreshold        = 0.7
	SQLConnectionThreshold = 3600 // TODO: derive from the instance's max_connections flag once it is exposed in stack config
	SQLMemoryThreshold     = 0.9
)

// SQLParams identifies one Cloud SQL instance.
type SQLParams struct {
	Common
	ProjectID  string
	InstanceID string
}

// DatabaseID returns the Cloud SQL database_id label value, {project}:{instance}.
func (p SQLParams) DatabaseID() string {
	return fmt.Sprintf("%s:%s", p.ProjectID, p.InstanceID)
}

// SQLSaturationHigh fires on high CPU, connection count or memory of the instance.
func SQLSaturationHigh(p SQLParams) *AlertPolicy {
	name := AlertName(p.Prefix, KindSQL, AlertSaturationHigh)
	databaseID := p.DatabaseID()

	sqlFilter := func(metric string) string {
		return filter(
			eq("resource.type", "cloudsql_database"),
			eq("resource.labels.database_id", databaseID),
			eq("metric.type", metric),
		)
	}
	aggregate := func(aligner Aligner) []Aggregation {
		return []Aggregation{{AlignmentPeriod: 300 * time.Second, PerSeriesAligner: aligner}}
	}

	conditions := []Condition{
		{
			DisplayName: "DB Master: CPU",
			Threshold: &ThresholdCondition{
				Filter:         sqlFilter("cloudsql.googleapis.com/database/cpu/utilization"),
				Aggregations:   aggregate(AlignInterpolate),
				Comparison:     ComparisonGT,
				ThresholdValue: SQLCPUThreshold,
				Duration:       60 * time.Second,
				Trigger:        &Trigger{Count: 1},
			},
		},
		{
			DisplayName: "DB Master: Connection",
			Threshold: &ThresholdCondition{
				Filter:         sqlFilter("cloudsql.googleapis.com/database/network/connections"),
				Aggregations:   aggregate(AlignInterpolate),
				Comparison:     ComparisonGT,
				ThresholdValue: SQLConnectionThreshold,
				Duration:       0,
				Trigger:        &Trigger{Count: 1},
			},
		},
		{
			DisplayName: "DB Master: Memory",
			Threshold: &ThresholdCondition{
				Filter:         sqlFilter("cloudsql.googleapis.com/database/memory/utilization"),
				Aggregations:   aggregate(AlignMean),
				Comparison:     ComparisonGT,
				ThresholdValue: SQLMemoryThreshold,
				Duration:       0,
				Trigger:        &Trigger{Count: 1},
			},
		},
	}

	summary := fmt.Sprintf("This alert triggers when one of the following conditions is met for the **%s** Cloud SQL instance:\n\n"+
		"- CPU utilization exceeds %s for more than 60 seconds.\n"+
		"- Connections exceed %d.\n"+
		"- Memory utilization exceeds %s.",
		p.InstanceID, percent(SQLCPUThreshold), SQLConnectionThreshold, percent(SQLMemoryThreshold))
	impact := "The database is under significant load. This could slow down or even take down the entire application. " +
		"Should investigate the cause immediately."

	return &AlertPolicy{
		Name:        name,
		Kind:        KindSQL,
		DisplayName: name,
		Combiner:    CombinerOR,
		Conditions:  conditions,
		Documentation: p.documentation(name, docBody(summary, impact,
			link{"Playbook", p.Links.Playbook},
			link{"Cloud SQL dashboard", p.consoleURL("system-insights")},
			link{"Cloud SQL Query Insights", p.consoleURL("insights")},
		)),
		Enabled:    true,
		Severity:   SeverityWarning,
		UserLabels: p.labels(),
	}
}

func (p SQLParams) consoleURL(page string) string {
	if p.ProjectID == "" || p.InstanceID == "" {
		return ""
	}
	return fmt.Sprintf("https://console.cloud.google.com/sql/instances/%s/%s?project=%s",
		url.PathEscape(p.InstanceID), page, url.QueryEscape(p.ProjectID))
}
