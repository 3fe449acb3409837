package audio

// ChunkBuffer accumulates microphone samples until full converter chunks are
// available. It is owned by a single session loop and needs no locking.
type ChunkBuffer struct {
	samples   []float32
	chunkSize int
}

// NewChunkBuffer creates a buffer draining in chunks of chunkSize samples.
func NewChunkBuffer(chunkSize int) *ChunkBuffer {
	return &ChunkBuffer{chunkSize: chunkSize}
}

// Append adds decoded samples to the buffer.
func (b *ChunkBuffer) Append(samples []float32) {
	b.samples = append(b.samples, samples...)
}

// Drain removes and returns as many full chunks as are buffered, in FIFO
// order. After Drain the residual length is always < chunkSize.
func (b *ChunkBuffer) Drain() [][]float32 {
	var chunks [][]float32
	for len(b.samples) >= b.chunkSize {
		chunk := make([]float32, b.chunkSize)
		copy(chunk, b.samples[:b.chunkSize])
		b.samples = b.samples[b.chunkSize:]
		chunks = append(chunks, chunk)
	}
	return chunks
}

// Len returns the number of buffered samples.
func (b *ChunkBuffer) Len() int {
	return len(b.samples)
}

// Clear discards all buffered samples.
func (b *ChunkBuffer) Clear() {
	b.samples = nil
}
