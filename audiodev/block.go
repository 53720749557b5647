package audiodev

// BlockAssembler accumulates device frames of arbitrary length and emits
// fixed-size blocks in sample order. Emitted blocks are freshly allocated;
// the consumer may retain them.
type BlockAssembler struct {
	size int
	buf  []float32
	emit func(block []float32)
}

// NewBlockAssembler creates an assembler emitting blocks of size samples.
func NewBlockAssembler(size int, emit func(block []float32)) *BlockAssembler {
	if size <= 0 {
		size = DefaultBlockSize
	}
	return &BlockAssembler{
		size: size,
		buf:  make([]float32, 0, size*2),
		emit: emit,
	}
}

// Push adds samples, emitting as many full blocks as they complete.
func (a *BlockAssembler) Push(samples []float32) {
	a.buf = append(a.buf, samples...)
	for len(a.buf) >= a.size {
		block := make([]float32, a.size)
		copy(block, a.buf[:a.size])
		a.buf = a.buf[:copy(a.buf, a.buf[a.size:])]
		a.emit(block)
	}
}

// Pending returns the number of buffered samples not yet forming a block.
func (a *BlockAssembler) Pending() int {
	return len(a.buf)
}

// Reset discards any buffered partial block.
func (a *BlockAssembler) Reset() {
	a.buf = a.buf[:0]
}
