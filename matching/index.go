package matching

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"
)

// ToIndex holds the profiles of the to collection. It is built once per run
// and is read-only afterwards.
type ToIndex interface {
	// Candidates returns the profiles a from record may be compared against.
	// The boolean is false when the record's group has no bucket.
	Candidates(rec Record) ([]Profile, bool)
	Size() int
}

// FlatIndex compares every from record against every to record.
type FlatIndex struct {
	profiles []Profile
}

// NewFlatIndex wraps the given profiles.
func NewFlatIndex(profiles []Profile) *FlatIndex {
	return &FlatIndex{profiles: profiles}
}

// Candidates returns all profiles.
func (idx *FlatIndex) Candidates(Record) ([]Profile, bool) {
	return idx.profiles, true
}

// Size returns the number of indexed profiles.
func (idx *FlatIndex) Size() int {
	return len(idx.profiles)
}

// GroupedIndex restricts candidates to to records sharing the from record's group.
type GroupedIndex struct {
	groups map[string][]Profile
	size   int
}

// NewGroupedIndex buckets profiles by Record().Group, keeping input order inside a bucket.
func NewGroupedIndex(profiles []Profile) *GroupedIndex {
	idx := &GroupedIndex{groups: make(map[string][]Profile), size: len(profiles)}
	for _, p := range profiles {
		g := p.Record().Group
		idx.groups[g] = append(idx.groups[g], p)
	}
	return idx
}

// Candidates returns the bucket for rec.Group.
func (idx *GroupedIndex) Candidates(rec Record) ([]Profile, bool) {
	bucket, ok := idx.groups[rec.Group]
	return bucket, ok
}

// Size returns the number of indexed profiles.
func (idx *GroupedIndex) Size() int {
	return idx.size
}

// Groups returns the group keys in sorted order.
func (idx *GroupedIndex) Groups() []string {
	keys := make([]string, 0, len(idx.groups))
	for k := range idx.groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// BuildIndex builds one profile per to document in parallel and arranges
// them flat or by group.
func BuildIndex(ctx context.Context, m Matcher, docs []Document, grouped bool, workers int) (ToIndex, error) {
	profiles, err := buildProfiles(ctx, m, docs, workers)
	if err != nil {
		return nil, fmt.Errorf("build index: %w", err)
	}
	if grouped {
		return NewGroupedIndex(profiles), nil
	}
	return NewFlatIndex(profiles), nil
}

func buildProfiles(ctx context.Context, m Matcher, docs []Document, workers int) ([]Profile, error) {
	profiles := make([]Profile, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i := range docs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			profiles[i] = m.Profile(docs[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return profiles, nil
}
