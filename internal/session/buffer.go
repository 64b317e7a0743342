package session

// DefaultBufferCapacity bounds samples kept per session.
const DefaultBufferCapacity = 200

// Buffer is a fixed-capacity ring of samples in insertion order. When full,
// the oldest sample is overwritten.
type Buffer struct {
	items   []Sample
	head    int
	count   int
	last    Sample
	hasLast bool
	evicted int
}

func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}
	return &Buffer{items: make([]Sample, capacity)}
}

// Append stores s unless it repeats the previous sample. Reports whether the
// sample was stored.
func (b *Buffer) Append(s Sample) bool {
	if b.hasLast && b.last.sameReading(s) {
		return false
	}
	b.last = s
	b.hasLast = true

	capacity := len(b.items)
	if b.count == capacity {
		b.items[b.head] = s
		b.head = (b.head + 1) % capacity
		b.evicted++
		return true
	}
	b.items[(b.head+b.count)%capacity] = s
	b.count++
	return true
}

func (b *Buffer) Len() int { return b.count }

func (b *Buffer) Cap() int { return len(b.items) }

// Evicted counts samples dropped to overflow since the last TakeAndClear.
func (b *Buffer) Evicted() int { return b.evicted }

// Snapshot copies the current contents, oldest first.
func (b *Buffer) Snapshot() []Sample {
	out := make([]Sample, b.count)
	for i := 0; i < b.count; i++ {
		out[i] = b.items[(b.head+i)%len(b.items)]
	}
	return out
}

// TakeAndClear returns the contents and empties the buffer. The returned
// slice shares nothing with the buffer.
func (b *Buffer) TakeAndClear() []Sample {
	out := b.Snapshot()
	b.Clear()
	return out
}

func (b *Buffer) Clear() {
	for i := range b.items {
		b.items[i] = Sample{}
	}
	b.head = 0
	b.count = 0
	b.last = Sample{}
	b.hasLast = false
	b.evicted = 0
}
