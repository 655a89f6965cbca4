// Package shardstore holds per-(policy, location) scan results: an
// in-memory ShardsCollection that partitions ("shards") its parts across N
// object-store blobs by a hash of location, plus a meta.json sidecar.
package shardstore

import (
	"github.com/cespare/xxhash/v2"

	"github.com/epam/syndicate-rule-engine-sub000/internal/model"
)

// DefaultShardCount is the store's partition count unless a caller picks
// another; tests use 1 for deterministic single-shard assertions.
const DefaultShardCount = 16

// ShardIndex returns the shard a location hashes into for the given shard
// count.
func ShardIndex(location string, shardCount int) int {
	if shardCount <= 1 {
		return 0
	}
	return int(xxhash.Sum64String(location) % uint64(shardCount))
}

// ShardsCollection is an in-memory map keyed by (policy, location);
// persistence keys come from the owning Store's Prefix.
type ShardsCollection struct {
	ShardCount int
	parts      map[model.PartKey]model.ShardPart
	meta       map[string]model.PolicyMeta // keyed by policy name
}

func NewShardsCollection(shardCount int) *ShardsCollection {
	if shardCount <= 0 {
		shardCount = DefaultShardCount
	}
	return &ShardsCollection{
		ShardCount: shardCount,
		parts:      make(map[model.PartKey]model.ShardPart),
		meta:       make(map[string]model.PolicyMeta),
	}
}

// PutParts inserts parts in-memory; last write by (policy, location) wins.
// A part written under the GLOBAL location marks its policy global in the
// meta sidecar: a global part for a policy meta claims is regional would
// otherwise go unnoticed until a reader trips over it.
func (c *ShardsCollection) PutParts(parts ...model.ShardPart) {
	for _, p := range parts {
		c.parts[p.Key()] = p
		c.markGlobal(p)
	}
}

// PutPart is PutParts for a single part, used by targeted self-heal edits.
func (c *ShardsCollection) PutPart(part model.ShardPart) {
	c.parts[part.Key()] = part
	c.markGlobal(part)
}

func (c *ShardsCollection) markGlobal(p model.ShardPart) {
	if p.Location != model.GlobalLocation {
		return
	}
	m := c.meta[p.Policy]
	if !m.IsGlobal {
		m.IsGlobal = true
		c.meta[p.Policy] = m
	}
}

// DropPart removes a single (policy, location) entry, used by the AWS-S3
// re-regionalization self-heal to retire the GLOBAL placeholder part.
func (c *ShardsCollection) DropPart(key model.PartKey) {
	delete(c.parts, key)
}

// PutMeta records a policy's metadata (resource type, global-ness),
// written alongside the shard blobs as the meta.json sidecar.
func (c *ShardsCollection) PutMeta(policy string, meta model.PolicyMeta) {
	c.meta[policy] = meta
}

// FetchAll returns every part currently held, order unspecified.
func (c *ShardsCollection) FetchAll() []model.ShardPart {
	out := make([]model.ShardPart, 0, len(c.parts))
	for _, p := range c.parts {
		out = append(out, p)
	}
	return out
}

// FetchMeta returns every policy's recorded metadata.
func (c *ShardsCollection) FetchMeta() map[string]model.PolicyMeta {
	out := make(map[string]model.PolicyMeta, len(c.meta))
	for k, v := range c.meta {
		out[k] = v
	}
	return out
}

// Fetch returns only the parts whose location matches region.
func (c *ShardsCollection) Fetch(region string) []model.ShardPart {
	var out []model.ShardPart
	for key, p := range c.parts {
		if key.Location == region {
			out = append(out, p)
		}
	}
	return out
}

// FetchByIndexes returns only the parts whose location hashes into one of
// the given shard indexes, for projecting against an existing persisted
// collection without loading every shard.
func (c *ShardsCollection) FetchByIndexes(indexes map[int]bool) []model.ShardPart {
	var out []model.ShardPart
	for key, p := range c.parts {
		if indexes[ShardIndex(key.Location, c.ShardCount)] {
			out = append(out, p)
		}
	}
	return out
}

// Update overwrites matching (policy, location) entries from other. Parts
// whose location is the Azure pseudo-region are dropped instead of merged:
// they must first be resolved into their true per-location parts (see
// ResolveAzurePseudoRegion) before being merged into a real collection.
func (c *ShardsCollection) Update(other *ShardsCollection) {
	for key, p := range other.parts {
		if key.Location == model.AzurePseudoRegion {
			continue
		}
		c.parts[key] = p
	}
	for policy, m := range other.meta {
		c.meta[policy] = m
	}
}

// Diff returns a new collection containing exactly the parts present in c
// but absent (by key) from other.
func (c *ShardsCollection) Diff(other *ShardsCollection) *ShardsCollection {
	out := NewShardsCollection(c.ShardCount)
	for key, p := range c.parts {
		if _, present := other.parts[key]; !present {
			out.parts[key] = p
		}
	}
	return out
}

// Len reports how many parts are currently held.
func (c *ShardsCollection) Len() int {
	return len(c.parts)
}
