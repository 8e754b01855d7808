package services

// TikTok chunking limits.
const (
	MinChunkSize     = 5 << 20
	DefaultChunkSize = 10 << 20
)

// ChunkPlan describes how a file is split for the TikTok chunked upload.
type ChunkPlan struct {
	Size      int64
	ChunkSize int64
	Total     int
}

// PlanChunks derives the declared chunk size and count for a file of size
// bytes. Files under MinChunkSize go up whole. Larger files use
// DefaultChunkSize with a floor-divided count, and the last chunk absorbs the
// remainder. A count of zero is clamped to a single whole-file chunk.
func PlanChunks(size int64) ChunkPlan {
	if size < MinChunkSize {
		return ChunkPlan{Size: size, ChunkSize: size, Total: 1}
	}
	total := int(size / DefaultChunkSize)
	if total == 0 {
		return ChunkPlan{Size: size, ChunkSize: size, Total: 1}
	}
	return ChunkPlan{Size: size, ChunkSize: DefaultChunkSize, Total: total}
}

// Range returns the inclusive byte range of chunk i.
func (p ChunkPlan) Range(i int) (start, end int64) {
	start = int64(i) * p.ChunkSize
	end = start + p.ChunkSize - 1
	if i == p.Total-1 {
		end = p.Size - 1
	}
	return start, end
}
