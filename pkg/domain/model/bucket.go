package model

import "github.com/secmon-lab/boardsync/pkg/domain/types"

// DefaultItemsPerPage is the page size requested by fetchMore
const DefaultItemsPerPage = 50

// Bucket is the locally cached column of records sharing one status.
// Total is the server-reported count; Items is what has been loaded.
type Bucket struct {
	Status      types.Status
	Items       []Record
	Total       int
	Page        int
	FullyLoaded bool
	// Digest fingerprints Items after the last full load
	Digest string
}

// LoadedCount is the number of records currently held
func (b *Bucket) LoadedCount() int {
	return len(b.Items)
}

// HasMore reports whether the server holds records not loaded yet
func (b *Bucket) HasMore() bool {
	return !b.FullyLoaded && len(b.Items) < b.Total
}

// Clone returns a copy that shares no memory with b
func (b *Bucket) Clone() *Bucket {
	c := *b
	c.Items = make([]Record, len(b.Items))
	for i, r := range b.Items {
		c.Items[i] = r.Clone()
	}
	return &c
}

// IndexOf returns the position of id in Items, or -1
func (b *Bucket) IndexOf(id RecordID) int {
	for i := range b.Items {
		if b.Items[i].ID == id {
			return i
		}
	}
	return -1
}

// BucketSummary is the metadata of a bucket without its records
type BucketSummary struct {
	Status      types.Status `json:"status"`
	LoadedCount int          `json:"loadedCount"`
	Total       int          `json:"total"`
	Page        int          `json:"page"`
	HasMore     bool         `json:"hasMore"`
	FullyLoaded bool         `json:"fullyLoaded"`
}

// Summary returns the bucket metadata
func (b *Bucket) Summary() BucketSummary {
	return BucketSummary{
		Status:      b.Status,
		LoadedCount: b.LoadedCount(),
		Total:       b.Total,
		Page:        b.Page,
		HasMore:     b.HasMore(),
		FullyLoaded: b.FullyLoaded,
	}
}
