package domain

import "encoding/json"

// KnownIDs is the set of item keys already seen for one feed URL. It
// remembers insertion order so that eviction under the retention cap
// always removes the oldest-inserted keys first, regardless of the
// publication order of the items they came from.
type KnownIDs struct {
	order []string
	index map[string]struct{}
}

// NewKnownIDs builds a set from keys in insertion order. Duplicates
// are ignored after their first occurrence.
func NewKnownIDs(keys ...string) *KnownIDs {
	k := &KnownIDs{index: make(map[string]struct{}, len(keys))}
	for _, key := range keys {
		k.Add(key)
	}
	return k
}

// Contains reports whether key has been seen.
func (k *KnownIDs) Contains(key string) bool {
	_, ok := k.index[key]
	return ok
}

// Add records key. Adding an existing key is a no-op.
func (k *KnownIDs) Add(key string) {
	if k.index == nil {
		k.index = make(map[string]struct{})
	}
	if _, ok := k.index[key]; ok {
		return
	}
	k.index[key] = struct{}{}
	k.order = append(k.order, key)
}

// Trim evicts oldest-inserted keys until at most cap remain.
func (k *KnownIDs) Trim(cap int) {
	if cap <= 0 || len(k.order) <= cap {
		return
	}
	evicted := k.order[:len(k.order)-cap]
	for _, key := range evicted {
		delete(k.index, key)
	}
	k.order = append([]string(nil), k.order[len(k.order)-cap:]...)
}

// Len returns the number of keys in the set.
func (k *KnownIDs) Len() int {
	return len(k.order)
}

// Keys returns the keys in insertion order.
func (k *KnownIDs) Keys() []string {
	return append([]string(nil), k.order...)
}

// Clone returns an independent copy.
func (k *KnownIDs) Clone() *KnownIDs {
	return NewKnownIDs(k.order...)
}

// MarshalJSON encodes the set as an insertion-ordered array.
func (k *KnownIDs) MarshalJSON() ([]byte, error) {
	if k.order == nil {
		return json.Marshal([]string{})
	}
	return json.Marshal(k.order)
}

// UnmarshalJSON decodes an insertion-ordered array.
func (k *KnownIDs) UnmarshalJSON(data []byte) error {
	var keys []string
	if err := json.Unmarshal(data, &keys); err != nil {
		return err
	}
	*k = *NewKnownIDs(keys...)
	return nil
}
