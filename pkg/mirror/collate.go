package mirror

import (
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// TextLess returns a locale-aware "a sorts before b" comparison. The returned
// func is safe for concurrent use.
func TextLess(tag language.Tag) func(a, b string) bool {
	c := collate.New(tag)
	var mu sync.Mutex
	return func(a, b string) bool {
		mu.Lock()
		defer mu.Unlock()
		return c.CompareString(a, b) < 0
	}
}
