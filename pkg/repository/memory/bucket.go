package memory

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"slices"
	"sort"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/boardsync/pkg/domain/model"
	"github.com/secmon-lab/boardsync/pkg/domain/model/config"
	"github.com/secmon-lab/boardsync/pkg/domain/types"
	"github.com/secmon-lab/boardsync/pkg/utils/logging"
	"github.com/zeebo/blake3"
)

var (
	ErrRecordNotFound    = goerr.New("record not found")
	ErrIntegrity         = goerr.New("bucket integrity violation")
	ErrStalePage         = goerr.New("stale or out of order page")
	ErrBucketFullyLoaded = goerr.New("bucket is fully loaded")
)

// ChangeFunc is notified after a bucket changed. An empty status means
// every bucket was replaced.
type ChangeFunc func(status types.Status)

// IntegrityFunc is notified when a mutation was refused because it would
// leave a bucket holding more items than its total. The owner is expected
// to re-fetch the bucket.
type IntegrityFunc func(status types.Status, err error)

// BucketStore is the authoritative local cache of the board. Records are
// stored by value and appear in at most one bucket.
type BucketStore struct {
	mu       sync.RWMutex
	catalog  *config.Catalog
	buckets  map[types.Status]*model.Bucket
	location map[model.RecordID]types.Status
	// pending holds the page number of an outstanding fetchMore
	pending map[types.Status]int

	hookMu         sync.RWMutex
	changeHooks    []ChangeFunc
	integrityHooks []IntegrityFunc
}

// NewBucketStore creates an empty store. The catalog maps sub-statuses to
// their bucket; nil means every status is its own bucket.
func NewBucketStore(catalog *config.Catalog) *BucketStore {
	if catalog == nil {
		catalog = config.NewCatalog(nil)
	}
	return &BucketStore{
		catalog:  catalog,
		buckets:  make(map[types.Status]*model.Bucket),
		location: make(map[model.RecordID]types.Status),
		pending:  make(map[types.Status]int),
	}
}

// OnChange registers fn to be called after every applied mutation
func (s *BucketStore) OnChange(fn ChangeFunc) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.changeHooks = append(s.changeHooks, fn)
}

// OnIntegrityViolation registers fn to be called when a mutation is refused
func (s *BucketStore) OnIntegrityViolation(fn IntegrityFunc) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.integrityHooks = append(s.integrityHooks, fn)
}

func (s *BucketStore) notifyChange(statuses ...types.Status) {
	s.hookMu.RLock()
	hooks := slices.Clone(s.changeHooks)
	s.hookMu.RUnlock()
	for _, status := range statuses {
		for _, fn := range hooks {
			fn(status)
		}
	}
}

func (s *BucketStore) violation(ctx context.Context, status types.Status, err error) error {
	logging.From(ctx).Error("bucket integrity violation, re-fetch required",
		"status", status, "error", err)

	s.hookMu.RLock()
	hooks := slices.Clone(s.integrityHooks)
	s.hookMu.RUnlock()
	for _, fn := range hooks {
		fn(status, err)
	}
	return err
}

// Reset drops every bucket and pagination counter
func (s *BucketStore) Reset() {
	s.mu.Lock()
	s.buckets = make(map[types.Status]*model.Bucket)
	s.location = make(map[model.RecordID]types.Status)
	s.pending = make(map[types.Status]int)
	s.mu.Unlock()

	s.notifyChange("")
}

// ReplaceAll installs the preview snapshot. Buckets absent from data are
// dropped and all pagination metadata restarts at page 1. A bucket holding
// more items than its total is left out of the snapshot and reported as
// an integrity violation so it gets re-fetched; the consistent buckets
// are installed regardless.
func (s *BucketStore) ReplaceAll(ctx context.Context, data map[types.Status]model.PreviewBucket) error {
	next := make(map[types.Status]*model.Bucket, len(data))
	owner := make(map[model.RecordID]types.Status)

	for status, pb := range data {
		bucket := s.catalog.BucketOf(status)
		b, ok := next[bucket]
		if !ok {
			b = &model.Bucket{Status: bucket, Page: 1}
			next[bucket] = b
		}
		b.Total += pb.Total
		for _, r := range pb.Preview {
			if prev, dup := owner[r.ID]; dup {
				removeItem(next[prev], r.ID)
			}
			b.Items = append(b.Items, r.Clone())
			owner[r.ID] = bucket
		}
	}

	var invalid []types.Status
	for status, b := range next {
		if len(b.Items) > b.Total {
			invalid = append(invalid, status)
		}
	}
	sort.Slice(invalid, func(i, j int) bool { return invalid[i] < invalid[j] })

	violations := make([]error, 0, len(invalid))
	for _, status := range invalid {
		b := next[status]
		violations = append(violations, goerr.Wrap(ErrIntegrity, "preview bucket holds more items than its total",
			goerr.V(model.StatusKey, status),
			goerr.V("items", len(b.Items)),
			goerr.V(model.TotalKey, b.Total)))
		delete(next, status)
	}

	location := make(map[model.RecordID]types.Status, len(owner))
	for id, status := range owner {
		if _, ok := next[status]; ok {
			location[id] = status
		}
	}

	s.mu.Lock()
	s.buckets = next
	s.location = location
	s.pending = make(map[types.Status]int)
	s.mu.Unlock()

	s.notifyChange("")

	for i, status := range invalid {
		_ = s.violation(ctx, status, violations[i])
	}
	return errors.Join(violations...)
}

// BeginPage reserves the next page of status for a fetchMore request.
// It returns false while a previous page is outstanding or when nothing
// is left to load.
func (s *BucketStore) BeginPage(status types.Status) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	status = s.catalog.BucketOf(status)
	if _, busy := s.pending[status]; busy {
		return 0, false
	}

	next := 1
	if b, ok := s.buckets[status]; ok {
		if !b.HasMore() {
			return 0, false
		}
		next = b.Page + 1
	}
	s.pending[status] = next
	return next, true
}

// CancelPage releases a reservation made by BeginPage whose request
// could not be sent
func (s *BucketStore) CancelPage(status types.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, s.catalog.BucketOf(status))
}

// AppendPage applies one page of a bucket. Page 1 replaces the bucket;
// any later page is accepted only if it directly follows the last applied
// page, so replays and out-of-order pages are ignored. applied is false
// when the page was ignored.
func (s *BucketStore) AppendPage(ctx context.Context, status types.Status, items []model.Record, total, page int) (applied bool, err error) {
	status = s.catalog.BucketOf(status)

	s.mu.Lock()
	if want, ok := s.pending[status]; ok && (page == 1 || page >= want) {
		delete(s.pending, status)
	}

	b, exists := s.buckets[status]
	if !exists {
		b = &model.Bucket{Status: status}
	}

	var merged []model.Record
	switch {
	case page == 1:
		merged = make([]model.Record, 0, len(items))
	case b.FullyLoaded:
		s.mu.Unlock()
		logging.From(ctx).Debug("page ignored for fully loaded bucket", "status", status, "page", page)
		return false, nil
	case page != b.Page+1:
		s.mu.Unlock()
		logging.From(ctx).Warn("page ignored",
			"status", status, "page", page, "last_page", b.Page)
		return false, nil
	default:
		merged = slices.Clone(b.Items)
	}

	seen := make(map[model.RecordID]bool, len(merged)+len(items))
	for _, r := range merged {
		seen[r.ID] = true
	}
	for _, r := range items {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		merged = append(merged, r.Clone())
	}

	if len(merged) > total {
		s.mu.Unlock()
		return false, s.violation(ctx, status, goerr.Wrap(ErrIntegrity, "page would exceed bucket total",
			goerr.V(model.StatusKey, status),
			goerr.V(model.PageKey, page),
			goerr.V("items", len(merged)),
			goerr.V(model.TotalKey, total)))
	}

	touched := s.relocateLocked(status, merged, b.Items)
	b.Items = merged
	b.Total = total
	b.Page = page
	b.FullyLoaded = false
	b.Digest = ""
	s.buckets[status] = b
	s.mu.Unlock()

	s.notifyChange(append([]types.Status{status}, touched...)...)
	return true, nil
}

// ReplaceFull installs the complete contents of a bucket and marks it
// fully loaded. The delivered records are the whole bucket, so Total is
// set to their count. changed is false when the contents are identical
// to the previous full load.
func (s *BucketStore) ReplaceFull(ctx context.Context, status types.Status, items []model.Record, total int) (changed bool, err error) {
	status = s.catalog.BucketOf(status)

	merged := make([]model.Record, 0, len(items))
	seen := make(map[model.RecordID]bool, len(items))
	for _, r := range items {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		merged = append(merged, r.Clone())
	}
	if len(merged) != total {
		logging.From(ctx).Warn("full bucket count differs from reported total",
			"status", status, "items", len(merged), "total", total)
	}

	digest, err := digestRecords(merged)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	delete(s.pending, status)
	b, exists := s.buckets[status]
	if exists && b.FullyLoaded && b.Digest == digest && b.Total == len(merged) {
		s.mu.Unlock()
		return false, nil
	}
	if !exists {
		b = &model.Bucket{Status: status}
	}

	touched := s.relocateLocked(status, merged, b.Items)
	b.Items = merged
	b.Total = len(merged)
	b.FullyLoaded = true
	b.Digest = digest
	if pages := (len(merged) + model.DefaultItemsPerPage - 1) / model.DefaultItemsPerPage; pages > b.Page {
		b.Page = pages
	}
	s.buckets[status] = b
	s.mu.Unlock()

	s.notifyChange(append([]types.Status{status}, touched...)...)
	return true, nil
}

// MoveRecord is the optimistic local transition of a record into the
// bucket of to. See MoveRecordWithFields.
func (s *BucketStore) MoveRecord(ctx context.Context, id model.RecordID, from, to types.Status) (types.Status, error) {
	return s.MoveRecordWithFields(ctx, id, from, to, nil)
}

// MoveRecordWithFields removes the record from its bucket, decrementing
// that total, and appends it to the bucket of to with its status set to
// to and fields merged in. If the record is no longer in from, the
// bucket it currently occupies is used instead so the latest move wins.
// The bucket the record actually left is returned.
func (s *BucketStore) MoveRecordWithFields(ctx context.Context, id model.RecordID, from, to types.Status, fields map[string]any) (types.Status, error) {
	dst := s.catalog.BucketOf(to)

	s.mu.Lock()
	src := s.catalog.BucketOf(from)
	if sb, ok := s.buckets[src]; !ok || sb.IndexOf(id) < 0 {
		cur, found := s.location[id]
		if !found {
			s.mu.Unlock()
			return "", goerr.Wrap(ErrRecordNotFound, "record is not on the board",
				goerr.V(model.RecordIDKey, id), goerr.V(model.StatusKey, from))
		}
		logging.From(ctx).Debug("record left its expected bucket, moving from current one",
			"record_id", id, "expected", src, "current", cur)
		src = cur
	}

	sb := s.buckets[src]
	idx := sb.IndexOf(id)
	rec := sb.Items[idx].WithFields(fields)
	rec.Status = to

	if src == dst {
		sb.Items[idx] = rec
		sb.Digest = ""
		s.mu.Unlock()
		s.notifyChange(src)
		return src, nil
	}

	sb.Items = slices.Delete(slices.Clone(sb.Items), idx, idx+1)
	sb.Total = max(0, sb.Total-1)
	sb.Digest = ""

	db, ok := s.buckets[dst]
	if !ok {
		db = &model.Bucket{Status: dst}
		s.buckets[dst] = db
	}
	db.Items = append(slices.Clone(db.Items), rec)
	db.Total++
	db.Digest = ""
	s.location[id] = dst

	var violated []types.Status
	for _, status := range []types.Status{src, dst} {
		if b := s.buckets[status]; len(b.Items) > b.Total {
			violated = append(violated, status)
		}
	}
	s.mu.Unlock()

	s.notifyChange(src, dst)
	for _, status := range violated {
		_ = s.violation(ctx, status, goerr.Wrap(ErrIntegrity, "bucket exceeds total after move",
			goerr.V(model.StatusKey, status), goerr.V(model.RecordIDKey, id)))
	}
	return src, nil
}

// relocateLocked records that items now live in status and removes them
// from any other bucket, decrementing that bucket's total so a fully
// loaded bucket still holds exactly total items. It returns the other
// buckets it modified.
func (s *BucketStore) relocateLocked(status types.Status, items, previous []model.Record) []types.Status {
	for _, r := range previous {
		if s.location[r.ID] == status {
			delete(s.location, r.ID)
		}
	}

	var touched []types.Status
	for _, r := range items {
		if prev, ok := s.location[r.ID]; ok && prev != status {
			if b, ok := s.buckets[prev]; ok && removeItem(b, r.ID) {
				// the record left that bucket on the server too
				b.Total = max(0, b.Total-1)
				b.Digest = ""
				if !slices.Contains(touched, prev) {
					touched = append(touched, prev)
				}
			}
		}
		s.location[r.ID] = status
	}
	return touched
}

func removeItem(b *model.Bucket, id model.RecordID) bool {
	if b == nil {
		return false
	}
	idx := b.IndexOf(id)
	if idx < 0 {
		return false
	}
	b.Items = slices.Delete(slices.Clone(b.Items), idx, idx+1)
	return true
}

// Find returns a copy of the record and the bucket holding it
func (s *BucketStore) Find(id model.RecordID) (model.Record, types.Status, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status, ok := s.location[id]
	if !ok {
		return model.Record{}, "", false
	}
	b := s.buckets[status]
	idx := b.IndexOf(id)
	if idx < 0 {
		return model.Record{}, "", false
	}
	return b.Items[idx].Clone(), status, true
}

// Bucket returns a point-in-time copy of one bucket
func (s *BucketStore) Bucket(status types.Status) (*model.Bucket, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.buckets[s.catalog.BucketOf(status)]
	if !ok {
		return nil, false
	}
	return b.Clone(), true
}

// Snapshot returns copies of every bucket. Catalog statuses come first in
// board order, followed by unknown statuses sorted by name.
func (s *BucketStore) Snapshot() []*model.Bucket {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Bucket
	listed := make(map[types.Status]bool)
	for _, status := range s.catalog.Statuses() {
		listed[status] = true
		if b, ok := s.buckets[status]; ok {
			out = append(out, b.Clone())
		}
	}

	var extra []types.Status
	for status := range s.buckets {
		if !listed[status] {
			extra = append(extra, status)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	for _, status := range extra {
		out = append(out, s.buckets[status].Clone())
	}
	return out
}

// FullyLoadedStatuses lists buckets populated by a load-all request
func (s *BucketStore) FullyLoadedStatuses() []types.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.Status
	for status, b := range s.buckets {
		if b.FullyLoaded {
			out = append(out, status)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IsFullyLoaded reports whether status was populated by a load-all request
func (s *BucketStore) IsFullyLoaded(status types.Status) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.buckets[s.catalog.BucketOf(status)]
	return ok && b.FullyLoaded
}

func digestRecords(items []model.Record) (string, error) {
	data, err := json.Marshal(items)
	if err != nil {
		return "", goerr.Wrap(err, "failed to encode bucket for digest")
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
