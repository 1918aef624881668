package audio

import "sync"

// Ring is a bounded int16 ring buffer. Writers overwrite the oldest
// samples when full; readers block-free drain whatever is available.
type Ring struct {
	mu       sync.Mutex
	cond     *sync.Cond
	buf      []int16
	head     int
	tail     int
	count    int
	shutdown bool
}

func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	r := &Ring{buf: make([]int16, capacity)}
	r.cond = sync.NewCond(&r.mu)
	return r
}

func (r *Ring) Close() {
	r.mu.Lock()
	r.shutdown = true
	r.cond.Broadcast()
	r.mu.Unlock()
}

func (r *Ring) Write(data []int16) {
	r.mu.Lock()
	defer func() {
		r.cond.Broadcast()
		r.mu.Unlock()
	}()

	for _, v := range data {
		if r.count == len(r.buf) {
			r.head = (r.head + 1) % len(r.buf)
			r.count--
		}
		r.buf[r.tail] = v
		r.tail = (r.tail + 1) % len(r.buf)
		r.count++
	}
}

// Read blocks until samples are available, then copies up to len(dst)
// of them into dst. It returns the count read and false once the ring
// is closed.
func (r *Ring) Read(dst []int16) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for r.count == 0 && !r.shutdown {
		r.cond.Wait()
	}
	if r.shutdown {
		return 0, false
	}
	n := len(dst)
	if n > r.count {
		n = r.count
	}
	for i := 0; i < n; i++ {
		dst[i] = r.buf[r.head]
		r.head = (r.head + 1) % len(r.buf)
		r.count--
	}
	return n, true
}

// ReadPartial copies up to len(dst) samples into dst. It returns the
// count read and false once the ring is closed.
func (r *Ring) ReadPartial(dst []int16) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.shutdown {
		return 0, false
	}
	if len(dst) == 0 || r.count == 0 {
		return 0, true
	}
	n := len(dst)
	if n > r.count {
		n = r.count
	}
	for i := 0; i < n; i++ {
		dst[i] = r.buf[r.head]
		r.head = (r.head + 1) % len(r.buf)
		r.count--
	}
	return n, true
}

// Len reports the buffered sample count.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}
