package render

// Paginate splits labels, deduplicated in first-seen order, into pages of
// at most size entries. size <= 0 yields a single page.
func Paginate(labels []string, size int) [][]string {
	seen := make(map[string]bool, len(labels))
	uniq := make([]string, 0, len(labels))
	for _, l := range labels {
		if !seen[l] {
			seen[l] = true
			uniq = append(uniq, l)
		}
	}

	if size <= 0 || len(uniq) <= size {
		return [][]string{uniq}
	}

	pages := make([][]string, 0, (len(uniq)+size-1)/size)
	for start := 0; start < len(uniq); start += size {
		end := min(start+size, len(uniq))
		pages = append(pages, uniq[start:end])
	}
	return pages
}
