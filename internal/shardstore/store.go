package shardstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/epam/syndicate-rule-engine-sub000/internal/model"
	"github.com/epam/syndicate-rule-engine-sub000/internal/objectstore"
)

// Store persists a ShardsCollection to an ObjectStore under Prefix,
// partitioned into Collection.ShardCount blobs plus one meta.json sidecar.
//
// The store remembers which shard indexes it has loaded this run, and
// WriteAll replaces only those plus the indexes the in-memory parts hash
// into. Shards never read and never written to stay at their persisted
// version, so merging a job into a tenant's latest collection cannot
// clobber the shards the job didn't touch.
type Store struct {
	Objects    objectstore.ObjectStore
	Collection *ShardsCollection
	Prefix     string // e.g. "jobs/<job-id>/" or "tenants/<tenant>/latest/"

	// loaded tracks the shard indexes Fetch/FetchByIndexes/FetchAll have
	// read; a loaded shard's parts must be put back into Collection
	// before WriteAll, which treats loaded indexes as fully represented
	// (an emptied loaded shard is rewritten empty on purpose).
	loaded map[int]bool

	// EnableS3SelfHeal turns on the AWS-S3 re-regionalization migration
	// path in FetchAll. It only exists to migrate historical data that
	// still holds s3 findings under GLOBAL; once no such data remains a
	// deployment can switch it off.
	EnableS3SelfHeal bool
	// DefaultRegion is the self-heal fallback when a resource carries no
	// Location.LocationConstraint (the AWS convention: an empty
	// constraint means us-east-1).
	DefaultRegion string
}

func NewStore(objects objectstore.ObjectStore, prefix string, shardCount int) *Store {
	return &Store{
		Objects:    objects,
		Collection: NewShardsCollection(shardCount),
		Prefix:     prefix,
		loaded:     make(map[int]bool),
	}
}

func (s *Store) shardKey(index int) string {
	return fmt.Sprintf("%sshard-%d.json", s.Prefix, index)
}

func (s *Store) metaKey() string {
	return s.Prefix + "meta.json"
}

// WriteAll persists the shard blobs this run can account for: every index
// holding an in-memory part, plus every index previously loaded (so a
// loaded shard whose parts were all dropped is rewritten empty). Indexes
// outside that set are left at their persisted version untouched. Each
// blob is replaced independently (ObjectStore.Put's backend atomicity —
// write-tmp+swap on FSStore, a single PutObject/Object.Write on S3/GCS);
// a failure partway through leaves the not-yet-written shards at their
// previous version intact.
func (s *Store) WriteAll(ctx context.Context) error {
	buckets := make(map[int][]model.ShardPart, s.Collection.ShardCount)
	for key, part := range s.Collection.parts {
		idx := ShardIndex(key.Location, s.Collection.ShardCount)
		buckets[idx] = append(buckets[idx], part)
	}

	indexes := make(map[int]bool, len(buckets)+len(s.loaded))
	for idx := range buckets {
		indexes[idx] = true
	}
	for idx := range s.loaded {
		indexes[idx] = true
	}

	for idx := 0; idx < s.Collection.ShardCount; idx++ {
		if !indexes[idx] {
			continue
		}
		data, err := json.Marshal(buckets[idx])
		if err != nil {
			return fmt.Errorf("shardstore: marshal shard %d: %w", idx, err)
		}
		if err := s.Objects.Put(ctx, s.shardKey(idx), data); err != nil {
			return fmt.Errorf("shardstore: write shard %d: %w", idx, err)
		}
	}
	return nil
}

// WriteMeta persists the meta.json sidecar.
func (s *Store) WriteMeta(ctx context.Context) error {
	data, err := json.Marshal(s.Collection.FetchMeta())
	if err != nil {
		return fmt.Errorf("shardstore: marshal meta: %w", err)
	}
	if err := s.Objects.Put(ctx, s.metaKey(), data); err != nil {
		return fmt.Errorf("shardstore: write meta: %w", err)
	}
	return nil
}

// Fetch loads only the shard blob containing region, leaving every other
// shard unloaded, and returns the parts within it whose location matches.
func (s *Store) Fetch(ctx context.Context, region string) ([]model.ShardPart, error) {
	idx := ShardIndex(region, s.Collection.ShardCount)
	parts, err := s.fetchShard(ctx, idx)
	if err != nil {
		return nil, err
	}
	var out []model.ShardPart
	for _, p := range parts {
		if p.Location == region {
			out = append(out, p)
		}
	}
	return out, nil
}

// FetchByIndexes loads only the given shard blobs.
func (s *Store) FetchByIndexes(ctx context.Context, indexes []int) ([]model.ShardPart, error) {
	var out []model.ShardPart
	for _, idx := range indexes {
		parts, err := s.fetchShard(ctx, idx)
		if err != nil {
			return nil, err
		}
		out = append(out, parts...)
	}
	return out, nil
}

// FetchAll loads every shard blob. When EnableS3SelfHeal is set, GLOBAL s3
// parts are re-regionalized in the returned slice, recognizing s3 policies
// by the meta already held in s.Collection (FetchAll does not load
// meta.json itself, so with no meta there nothing is re-regionalized); the
// persisted shards are not rewritten by this call alone — callers that
// want the migration to stick must PutParts the re-emitted parts back into
// s.Collection and WriteAll.
func (s *Store) FetchAll(ctx context.Context) ([]model.ShardPart, error) {
	var out []model.ShardPart
	for idx := 0; idx < s.Collection.ShardCount; idx++ {
		parts, err := s.fetchShard(ctx, idx)
		if err != nil {
			return nil, err
		}
		out = append(out, parts...)
	}
	if s.EnableS3SelfHeal {
		defaultRegion := s.DefaultRegion
		if defaultRegion == "" {
			defaultRegion = "us-east-1"
		}
		out = ReRegionalizeS3(out, s.Collection.FetchMeta(), defaultRegion)
	}
	return out, nil
}

// FetchMeta loads the meta.json sidecar.
func (s *Store) FetchMeta(ctx context.Context) (map[string]model.PolicyMeta, error) {
	data, err := s.Objects.Get(ctx, s.metaKey())
	if err != nil {
		if err == objectstore.ErrNotFound {
			return map[string]model.PolicyMeta{}, nil
		}
		return nil, fmt.Errorf("shardstore: read meta: %w", err)
	}
	var meta map[string]model.PolicyMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("shardstore: parse meta: %w", err)
	}
	return meta, nil
}

func (s *Store) fetchShard(ctx context.Context, idx int) ([]model.ShardPart, error) {
	data, err := s.Objects.Get(ctx, s.shardKey(idx))
	if err != nil {
		if err == objectstore.ErrNotFound {
			s.loaded[idx] = true
			return nil, nil
		}
		return nil, fmt.Errorf("shardstore: read shard %d: %w", idx, err)
	}
	s.loaded[idx] = true
	var parts []model.ShardPart
	if err := json.Unmarshal(data, &parts); err != nil {
		return nil, fmt.Errorf("shardstore: parse shard %d: %w", idx, err)
	}
	return parts, nil
}
