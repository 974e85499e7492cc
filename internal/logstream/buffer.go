package logstream

// DefaultMaxLines bounds a Buffer when no limit is configured
const DefaultMaxLines = 5000

// Buffer holds the lines of one log stream and the viewport over them.
// It is owned by the controller goroutine and not safe for concurrent use.
type Buffer struct {
	lines    []string
	maxLines int
	follow   bool
	offset   int
	height   int
}

// NewBuffer creates an empty buffer in follow mode
func NewBuffer(maxLines int) *Buffer {
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}
	return &Buffer{
		maxLines: maxLines,
		follow:   true,
		height:   1,
	}
}

// Append adds lines, evicting the oldest beyond the limit. In follow mode the
// viewport moves to the tail; otherwise it stays on the same content.
func (b *Buffer) Append(lines ...string) {
	b.lines = append(b.lines, lines...)
	if over := len(b.lines) - b.maxLines; over > 0 {
		b.lines = append(b.lines[:0:0], b.lines[over:]...)
		if !b.follow {
			b.offset -= over
		}
	}
	if b.follow {
		b.offset = b.maxOffset()
	} else {
		b.offset = b.clamp(b.offset)
	}
}

// SetViewport sets the number of visible rows
func (b *Buffer) SetViewport(height int) {
	if height < 1 {
		height = 1
	}
	b.height = height
	if b.follow {
		b.offset = b.maxOffset()
	} else {
		b.offset = b.clamp(b.offset)
	}
}

// ScrollUp moves the viewport up and leaves follow mode
func (b *Buffer) ScrollUp(n int) {
	b.follow = false
	b.offset = b.clamp(b.offset - n)
}

// ScrollDown moves the viewport down. Reaching the tail does not re-enable follow.
func (b *Buffer) ScrollDown(n int) {
	if b.follow {
		return
	}
	b.offset = b.clamp(b.offset + n)
}

// Top jumps to the first line and leaves follow mode
func (b *Buffer) Top() {
	b.follow = false
	b.offset = 0
}

// Bottom jumps to the tail and enters follow mode
func (b *Buffer) Bottom() {
	b.follow = true
	b.offset = b.maxOffset()
}

// ToggleFollow flips follow mode
func (b *Buffer) ToggleFollow() {
	if b.follow {
		b.follow = false
		return
	}
	b.Bottom()
}

func (b *Buffer) Follow() bool { return b.follow }

func (b *Buffer) Offset() int { return b.offset }

func (b *Buffer) Len() int { return len(b.lines) }

// Lines returns a copy of every retained line
func (b *Buffer) Lines() []string {
	return append([]string(nil), b.lines...)
}

// Visible returns the lines inside the viewport
func (b *Buffer) Visible() []string {
	end := b.offset + b.height
	if end > len(b.lines) {
		end = len(b.lines)
	}
	if b.offset >= end {
		return nil
	}
	return append([]string(nil), b.lines[b.offset:end]...)
}

func (b *Buffer) maxOffset() int {
	if m := len(b.lines) - b.height; m > 0 {
		return m
	}
	return 0
}

func (b *Buffer) clamp(offset int) int {
	if offset < 0 {
		return 0
	}
	if m := b.maxOffset(); offset > m {
		return m
	}
	return offset
}
