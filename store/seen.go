package store

// seenSet records every URL ever discovered during a crawl. It is exact: a URL
// is reported new exactly once, and never wrongly treated as already seen.
// seenSet is not safe for concurrent use; Store serializes access.
type seenSet struct {
	urls map[string]struct{}
}

func newSeenSet() *seenSet {
	return &seenSet{urls: make(map[string]struct{})}
}

// add marks url as seen and reports whether it was new.
func (s *seenSet) add(url string) bool {
	if _, ok := s.urls[url]; ok {
		return false
	}
	s.urls[url] = struct{}{}
	return true
}

func (s *seenSet) len() int {
	return len(s.urls)
}
