// Package inventory holds the immutable merged result of a scan pass.
package inventory

import (
	"slices"
	"time"

	"github.com/google/btree"

	"github.com/yairfalse/kartta/pkg/resource"
)

const btreeDegree = 32

// Snapshot is the merged result of one scan pass.
// It is built once by New and never mutated, so concurrent readers need
// no synchronization.
type Snapshot struct {
	timestamp time.Time
	duration  time.Duration

	targets   []resource.Target
	targetSet map[resource.Target]struct{}
	failures  []resource.Failure

	// ordered by (region, kind, id)
	records *btree.BTreeG[resource.Record]
}

// New merges outcomes into a snapshot. Records from failed targets and
// records that do not belong to their outcome's target are ignored.
// Duplicate record keys collapse to one entry.
func New(outcomes []resource.Outcome, startedAt, finishedAt time.Time) *Snapshot {
	s := &Snapshot{
		timestamp: finishedAt,
		duration:  finishedAt.Sub(startedAt),
		targetSet: make(map[resource.Target]struct{}, len(outcomes)),
		records: btree.NewG[resource.Record](btreeDegree, func(a, b resource.Record) bool {
			return a.Less(b)
		}),
	}

	for _, o := range outcomes {
		if _, seen := s.targetSet[o.Target]; seen {
			continue
		}
		s.targetSet[o.Target] = struct{}{}
		s.targets = append(s.targets, o.Target)

		if f, failed := resource.FailureOf(o); failed {
			s.failures = append(s.failures, f)
			continue
		}
		for _, r := range o.Records {
			if r.Target() != o.Target {
				continue
			}
			s.records.ReplaceOrInsert(r)
		}
	}

	slices.SortFunc(s.targets, compareTargets)
	slices.SortFunc(s.failures, func(a, b resource.Failure) int {
		return compareTargets(a.Target, b.Target)
	})
	return s
}

func compareTargets(a, b resource.Target) int {
	switch {
	case a.Less(b):
		return -1
	case b.Less(a):
		return 1
	default:
		return 0
	}
}

// Timestamp is when the pass finished.
func (s *Snapshot) Timestamp() time.Time {
	return s.timestamp
}

// Duration is how long the pass took.
func (s *Snapshot) Duration() time.Duration {
	return s.duration
}

// Age returns how old the snapshot is relative to now.
func (s *Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.timestamp)
}

// Targets returns the attempted targets, sorted.
func (s *Snapshot) Targets() []resource.Target {
	return slices.Clone(s.targets)
}

// Failures returns one entry per failed target, sorted by target.
func (s *Snapshot) Failures() []resource.Failure {
	return slices.Clone(s.failures)
}

// Complete reports whether every target succeeded.
func (s *Snapshot) Complete() bool {
	return len(s.failures) == 0
}

// Partial reports whether at least one target failed.
func (s *Snapshot) Partial() bool {
	return !s.Complete()
}

// Len returns the number of records.
func (s *Snapshot) Len() int {
	return s.records.Len()
}

// Records returns every record ordered by (region, kind, id).
func (s *Snapshot) Records() []resource.Record {
	out := make([]resource.Record, 0, s.records.Len())
	s.records.Ascend(func(r resource.Record) bool {
		out = append(out, r)
		return true
	})
	return out
}

// Covers reports whether every given target was attempted by this pass.
func (s *Snapshot) Covers(targets []resource.Target) bool {
	for _, t := range targets {
		if _, ok := s.targetSet[t]; !ok {
			return false
		}
	}
	return true
}

// Query narrows a view. Empty fields match everything.
type Query struct {
	Region string
	Kind   resource.Kind
}

// Matches reports whether t is selected by the query.
func (q Query) Matches(t resource.Target) bool {
	return (q.Region == "" || q.Region == t.Region) && (q.Kind == "" || q.Kind == t.Kind)
}

// View is a read-only projection of a snapshot.
type View struct {
	Timestamp time.Time          `json:"timestamp"`
	Complete  bool               `json:"complete"`
	Records   []resource.Record  `json:"records"`
	Failures  []resource.Failure `json:"failures"`
}

// View returns the records and failures matching q.
func (s *Snapshot) View(q Query) View {
	return s.ViewWith(q, nil)
}

// ViewWith is View with an extra record predicate. A nil keep accepts all.
// Complete is true when no selected target failed.
func (s *Snapshot) ViewWith(q Query, keep func(resource.Record) bool) View {
	v := View{
		Timestamp: s.timestamp,
		Records:   []resource.Record{},
		Failures:  []resource.Failure{},
	}

	visit := func(r resource.Record) bool {
		if q.Kind != "" && r.Kind != q.Kind {
			return true
		}
		if keep != nil && !keep(r) {
			return true
		}
		v.Records = append(v.Records, r)
		return true
	}

	if q.Region != "" {
		// region is the leading key, so a range scan bounds the walk
		lo := resource.Record{Region: q.Region}
		hi := resource.Record{Region: q.Region + "\x00"}
		s.records.AscendRange(lo, hi, visit)
	} else {
		s.records.Ascend(visit)
	}

	for _, f := range s.failures {
		if q.Matches(f.Target) {
			v.Failures = append(v.Failures, f)
		}
	}
	v.Complete = len(v.Failures) == 0
	return v
}
