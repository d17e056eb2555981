package detection

// VoteWindow кольцевой буфер флагов "падение на кадре" фиксированной емкости.
// Самый старый флаг вытесняется при переполнении.
type VoteWindow struct {
	buf   []bool
	head  int
	size  int
	count int
}

// NewVoteWindow создает окно емкостью capacity (минимум 1)
func NewVoteWindow(capacity int) *VoteWindow {
	if capacity < 1 {
		capacity = 1
	}
	return &VoteWindow{buf: make([]bool, capacity)}
}

// Push добавляет флаг, вытесняя самый старый при заполненном окне
func (w *VoteWindow) Push(v bool) {
	if w.size == len(w.buf) {
		if w.buf[w.head] {
			w.count--
		}
	} else {
		w.size++
	}
	w.buf[w.head] = v
	if v {
		w.count++
	}
	w.head = (w.head + 1) % len(w.buf)
}

// Count число true в окне
func (w *VoteWindow) Count() int { return w.count }

// Len текущее число элементов
func (w *VoteWindow) Len() int { return w.size }

// Cap емкость окна
func (w *VoteWindow) Cap() int { return len(w.buf) }

// Reset очищает окно
func (w *VoteWindow) Reset() {
	for i := range w.buf {
		w.buf[i] = false
	}
	w.head, w.size, w.count = 0, 0, 0
}
