// Package statistics builds and persists the job's statistics artifact:
// exactly one StatisticsItem per attempted (policy, region) pair,
// gzip-JSON encoded at stats/<job-id>.json.gz.
package statistics

import (
	"time"

	"github.com/epam/syndicate-rule-engine-sub000/internal/executor"
	"github.com/epam/syndicate-rule-engine-sub000/internal/model"
)

// Build produces one StatisticsItem per successful and per failed policy
// attempt across every executor.LocationResult, for the given job/tenant
// naming. Every item carries the caller's single (start, end) pair,
// since the worker contract does not currently report per-rule timing.
func Build(job *model.Job, results []executor.LocationResult, start, end time.Time) []model.StatisticsItem {
	var items []model.StatisticsItem
	startUnix := float64(start.Unix())
	endUnix := float64(end.Unix())

	for _, lr := range results {
		region := model.RegionLabel(lr.Location)

		for _, part := range lr.Result.Parts {
			n := len(part.Resources)
			items = append(items, model.StatisticsItem{
				Policy:           part.Policy,
				Region:           region,
				TenantName:       job.TenantName,
				CustomerName:     job.CustomerName,
				StartTime:        startUnix,
				EndTime:          endUnix,
				ScannedResources: &n,
			})
		}

		for _, failure := range lr.Result.Failed {
			items = append(items, model.StatisticsItem{
				Policy:       failure.Policy,
				Region:       region,
				TenantName:   job.TenantName,
				CustomerName: job.CustomerName,
				StartTime:    startUnix,
				EndTime:      endUnix,
				ErrorType:    failure.ErrorType,
				Reason:       failure.Message,
			})
		}
	}

	return items
}
