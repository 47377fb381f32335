package config

import (
	"slices"

	"github.com/secmon-lab/boardsync/pkg/domain/types"
)

// RequiredField is a field that must be non-empty before a record may
// enter a status. Key is the record key, Label the text shown to users.
type RequiredField struct {
	Key   string
	Label string
}

// StatusDefinition describes one bucket of the board
type StatusDefinition struct {
	Name types.Status
	// SubStatuses are finer statuses displayed inside this bucket
	SubStatuses []types.Status
	Required    []RequiredField
}

// Catalog is the read-only status and required-field lookup table. It
// is resolved once at startup.
type Catalog struct {
	statuses   []types.Status
	bucketOf   map[types.Status]types.Status
	subs       map[types.Status][]types.Status
	required   map[types.Status][]RequiredField
	labelToKey map[string]string
	keyToLabel map[string]string
}

// NewCatalog builds the lookup tables. Definitions are expected to be
// validated by the caller; later duplicates override earlier ones.
func NewCatalog(defs []StatusDefinition) *Catalog {
	c := &Catalog{
		bucketOf:   make(map[types.Status]types.Status),
		subs:       make(map[types.Status][]types.Status),
		required:   make(map[types.Status][]RequiredField),
		labelToKey: make(map[string]string),
		keyToLabel: make(map[string]string),
	}

	for _, def := range defs {
		if !slices.Contains(c.statuses, def.Name) {
			c.statuses = append(c.statuses, def.Name)
		}
		c.bucketOf[def.Name] = def.Name
		c.subs[def.Name] = slices.Clone(def.SubStatuses)
		for _, sub := range def.SubStatuses {
			if _, isBucket := c.subs[sub]; isBucket {
				continue
			}
			c.bucketOf[sub] = def.Name
		}
		c.required[def.Name] = slices.Clone(def.Required)
		for _, f := range def.Required {
			c.labelToKey[f.Label] = f.Key
			c.keyToLabel[f.Key] = f.Label
		}
	}

	return c
}

// Statuses returns the bucket names in board order
func (c *Catalog) Statuses() []types.Status {
	return slices.Clone(c.statuses)
}

// IsKnown reports whether s is a bucket or a sub-status
func (c *Catalog) IsKnown(s types.Status) bool {
	_, ok := c.bucketOf[s]
	return ok
}

// BucketOf returns the bucket that holds records with status s. Unknown
// statuses are their own bucket.
func (c *Catalog) BucketOf(s types.Status) types.Status {
	if b, ok := c.bucketOf[s]; ok {
		return b
	}
	return s
}

// SubStatuses returns the sub-statuses grouped under bucket
func (c *Catalog) SubStatuses(bucket types.Status) []types.Status {
	return slices.Clone(c.subs[bucket])
}

// RequiredFields returns the fields that must be filled to enter s. A
// sub-status inherits the requirements of its bucket.
func (c *Catalog) RequiredFields(s types.Status) []RequiredField {
	return slices.Clone(c.required[c.BucketOf(s)])
}

// KeyForLabel resolves a display label to its record key
func (c *Catalog) KeyForLabel(label string) (string, bool) {
	k, ok := c.labelToKey[label]
	return k, ok
}

// LabelForKey resolves a record key to its display label, falling back
// to the key itself
func (c *Catalog) LabelForKey(key string) string {
	if l, ok := c.keyToLabel[key]; ok {
		return l
	}
	return key
}
