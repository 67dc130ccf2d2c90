package storage

// SplitChunks cuts content into pieces of at most size bytes. Chunks
// are raw byte slices, not strings: a cut may land mid rune, and the
// pieces only become valid UTF-8 again once rejoined in order.
func SplitChunks(content []byte, size int) [][]byte {
	if size <= 0 || len(content) == 0 {
		return nil
	}
	chunks := make([][]byte, 0, (len(content)+size-1)/size)
	for start := 0; start < len(content); start += size {
		end := start + size
		if end > len(content) {
			end = len(content)
		}
		chunks = append(chunks, content[start:end])
	}
	return chunks
}

// JoinChunks reassembles chunks produced by SplitChunks.
func JoinChunks(chunks [][]byte) []byte {
	var total int
	for _, c := range chunks {
		total += len(c)
	}
	out := make([]byte, 0, total)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}
