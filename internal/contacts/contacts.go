// Package contacts groups identities into the A-Z/# buckets of a
// sectioned contacts list. Han names are bucketed by the first letter of
// their pinyin reading; anything that does not start with a latin letter
// lands in the "#" bucket.
package contacts

import (
	"sort"
	"unicode"

	"github.com/mozillazg/go-pinyin"

	"github.com/otaviofr/convo/internal/store"
)

// CatchAll is the bucket for names that bucket to no latin letter.
const CatchAll = "#"

var pinyinArgs = pinyin.NewArgs()

// BuildIndex groups identities by bucket letter. Within a bucket entries
// are ordered by display name, then user id, so repeated builds over the
// same input yield the same layout. Input order is irrelevant.
func BuildIndex(ids []store.Identity) map[string][]store.Identity {
	buckets := make(map[string][]store.Identity)
	for _, id := range ids {
		key := bucketFor(id)
		buckets[key] = append(buckets[key], id)
	}
	for _, entries := range buckets {
		sort.Slice(entries, func(i, j int) bool {
			if entries[i].DisplayName != entries[j].DisplayName {
				return entries[i].DisplayName < entries[j].DisplayName
			}
			return entries[i].UserID < entries[j].UserID
		})
	}
	return buckets
}

// BucketKeys returns the keys present in the index in display order:
// A through Z, then the catch-all.
func BucketKeys(index map[string][]store.Identity) []string {
	var keys []string
	for r := 'A'; r <= 'Z'; r++ {
		if _, ok := index[string(r)]; ok {
			keys = append(keys, string(r))
		}
	}
	if _, ok := index[CatchAll]; ok {
		keys = append(keys, CatchAll)
	}
	return keys
}

func bucketFor(id store.Identity) string {
	name := id.DisplayName
	if name == "" {
		name = id.UserID
	}
	for _, r := range name {
		return bucketForRune(r)
	}
	return CatchAll
}

// bucketForRune never fails: an unreadable first character simply lands
// in the catch-all bucket.
func bucketForRune(r rune) string {
	if unicode.Is(unicode.Han, r) {
		readings := pinyin.LazyPinyin(string(r), pinyinArgs)
		if len(readings) == 0 || readings[0] == "" {
			return CatchAll
		}
		r = rune(readings[0][0])
	}
	switch {
	case r >= 'a' && r <= 'z':
		return string(unicode.ToUpper(r))
	case r >= 'A' && r <= 'Z':
		return string(r)
	default:
		return CatchAll
	}
}
