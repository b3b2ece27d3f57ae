package gallery

// GuessedPageSize is the preview page size assumed before the first page
// has been seen.
const GuessedPageSize = 20

// PagesToFetch returns, in ascending order, the preview pages that hold at
// least one index in [0, count) that is not known yet. pageCount and
// pageSize of zero mean unknown and are guessed.
func PagesToFetch(count, pageCount, pageSize int, known map[int]bool) []int {
	if pageSize <= 0 {
		pageSize = GuessedPageSize
	}
	if pageCount <= 0 {
		pageCount = guessedPageCount(count, pageSize)
	}

	var pages []int
	for page := 0; page < pageCount; page++ {
		start := page * pageSize
		end := min(start+pageSize, count)
		for i := start; i < end; i++ {
			if !known[i] {
				pages = append(pages, page)
				break
			}
		}
	}
	return pages
}

func guessedPageCount(count, pageSize int) int {
	if count <= 0 {
		return 0
	}
	return (count + pageSize - 1) / pageSize
}
