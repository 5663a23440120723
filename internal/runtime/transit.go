package runtime

// transitQueue buffers cascades produced on the worker. It is never shared,
// so it needs no synchronisation; the backing array is reused once the read
// cursor catches up with the writes.
type transitQueue struct {
	buf  []emission
	read int
}

func (q *transitQueue) push(fn func(any), val any) {
	q.buf = append(q.buf, emission{fn: fn, val: val})
}

func (q *transitQueue) pop() (emission, bool) {
	if q.read == len(q.buf) {
		if q.read != 0 {
			q.buf = q.buf[:0]
			q.read = 0
		}
		return emission{}, false
	}
	e := q.buf[q.read]
	q.buf[q.read] = emission{}
	q.read++
	return e, true
}

func (q *transitQueue) len() int {
	return len(q.buf) - q.read
}
