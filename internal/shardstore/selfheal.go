package shardstore

import (
	"strings"

	"github.com/epam/syndicate-rule-engine-sub000/internal/model"
)

// isS3ResourceType matches exactly the resource types "s3" and "aws.s3"
// (case-insensitive); unlike the cloudrunner AWS classification, suffixed
// forms such as "aws.s3-bucket" are not matched.
func isS3ResourceType(resourceType string) bool {
	rt := strings.ToLower(strings.TrimSpace(resourceType))
	return rt == "s3" || rt == "aws.s3"
}

// ReRegionalizeS3 migrates historical GLOBAL s3 parts into per-bucket-region
// parts: each resource's real region is read from its
// Location.LocationConstraint field (AWS's convention for an empty
// constraint is us-east-1, passed in as defaultRegion), and the GLOBAL part
// is dropped in favor of one part per discovered region. New jobs already
// write s3 parts this way;
// this only rewrites old GLOBAL-shaped data found by FetchAll.
func ReRegionalizeS3(parts []model.ShardPart, meta map[string]model.PolicyMeta, defaultRegion string) []model.ShardPart {
	out := make([]model.ShardPart, 0, len(parts))
	byPolicyRegion := make(map[model.PartKey]*model.ShardPart)

	for _, p := range parts {
		m := meta[p.Policy]
		if p.Location != model.GlobalLocation || !isS3ResourceType(m.ResourceType) {
			out = append(out, p)
			continue
		}
		if p.IsError() {
			// Nothing to re-bucket; keep the error part as-is.
			out = append(out, p)
			continue
		}

		for _, resource := range p.Resources {
			region := bucketRegion(resource, defaultRegion)
			key := model.PartKey{Policy: p.Policy, Location: region}
			existing, ok := byPolicyRegion[key]
			if !ok {
				existing = &model.ShardPart{Policy: p.Policy, Location: region, Timestamp: p.Timestamp}
				byPolicyRegion[key] = existing
			}
			existing.Resources = append(existing.Resources, resource)
		}
	}

	for _, p := range byPolicyRegion {
		out = append(out, *p)
	}
	return out
}

// bucketRegion extracts Location.LocationConstraint from a resource
// document shaped the way an S3 HeadBucket/GetBucketLocation result is
// conventionally serialized: {"Location": {"LocationConstraint": "..."}}.
// An empty constraint means the bucket lives in defaultRegion.
func bucketRegion(resource map[string]interface{}, defaultRegion string) string {
	loc, ok := resource["Location"].(map[string]interface{})
	if !ok {
		return defaultRegion
	}
	constraint, _ := loc["LocationConstraint"].(string)
	if constraint == "" {
		return defaultRegion
	}
	return constraint
}
