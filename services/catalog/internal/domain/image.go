package domain

import (
	"path"
	"strconv"
	"strings"
)

const ImageSeparator = "|"

type ImageFile struct {
	Name        string
	ContentType string
	Data        []byte
}

func SplitImages(joined string) []string {
	if strings.TrimSpace(joined) == "" {
		return nil
	}

	parts := strings.Split(joined, ImageSeparator)
	urls := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			urls = append(urls, p)
		}
	}
	return urls
}

func JoinImages(urls []string) string {
	return strings.Join(urls, ImageSeparator)
}

// MergeImages computes (current \ remove) ∪ added, keeping first-seen order and dropping duplicates.
func MergeImages(current string, remove []string, added string) string {
	removed := make(map[string]struct{}, len(remove))
	for _, r := range remove {
		removed[strings.TrimSpace(r)] = struct{}{}
	}

	seen := make(map[string]struct{})
	merged := make([]string, 0)
	keep := func(u string) {
		if _, ok := seen[u]; ok {
			return
		}
		seen[u] = struct{}{}
		merged = append(merged, u)
	}

	for _, u := range SplitImages(current) {
		if _, ok := removed[u]; !ok {
			keep(u)
		}
	}
	for _, u := range SplitImages(added) {
		keep(u)
	}

	return JoinImages(merged)
}

// NextImageOrder returns the order after the highest "<field>_<n>" object found in joined.
// Uploads for a product start there so new objects never overwrite stored ones.
func NextImageOrder(field, joined string) int {
	last := 0
	prefix := field + "_"
	for _, u := range SplitImages(joined) {
		name := path.Base(u)
		name = strings.TrimSuffix(name, path.Ext(name))
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimPrefix(name, prefix)); err == nil && n > last {
			last = n
		}
	}
	return last + 1
}
