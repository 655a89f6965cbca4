package shardstore

import "github.com/epam/syndicate-rule-engine-sub000/internal/model"

// ResolveAzurePseudoRegion regroups a job's AzureCloud-labeled parts by
// each resource's own "location" field (defaulting to GLOBAL when absent),
// since the Azure scanner always emits findings under the AzureCloud
// pseudo-region regardless of the resource's real region.
// Parts already carrying a real location pass through unchanged.
//
// Call this on a job's freshly produced collection before merging it into
// the tenant's persisted shards with Update, which otherwise drops
// AzureCloud-labeled parts outright.
func ResolveAzurePseudoRegion(collection *ShardsCollection) *ShardsCollection {
	out := NewShardsCollection(collection.ShardCount)

	grouped := make(map[model.PartKey]*model.ShardPart)
	for key, p := range collection.parts {
		if key.Location != model.AzurePseudoRegion {
			out.parts[key] = p
			continue
		}
		if p.IsError() {
			// An error part carries no per-resource location to regroup by;
			// keep it under GLOBAL rather than drop it silently.
			newKey := model.PartKey{Policy: p.Policy, Location: model.GlobalLocation}
			merged := groupedEntry(grouped, newKey, p)
			merged.ErrorType = p.ErrorType
			merged.ErrorMessage = p.ErrorMessage
			continue
		}
		for _, resource := range p.Resources {
			location := resourceLocation(resource)
			newKey := model.PartKey{Policy: p.Policy, Location: location}
			merged := groupedEntry(grouped, newKey, p)
			merged.Resources = append(merged.Resources, resource)
		}
	}

	for _, p := range grouped {
		out.parts[p.Key()] = *p
	}
	for policy, m := range collection.meta {
		out.meta[policy] = m
	}
	return out
}

func groupedEntry(grouped map[model.PartKey]*model.ShardPart, key model.PartKey, source model.ShardPart) *model.ShardPart {
	entry, ok := grouped[key]
	if !ok {
		entry = &model.ShardPart{Policy: key.Policy, Location: key.Location, Timestamp: source.Timestamp}
		grouped[key] = entry
	}
	return entry
}

func resourceLocation(resource map[string]interface{}) string {
	if v, ok := resource["location"].(string); ok && v != "" {
		return v
	}
	return model.GlobalLocation
}
