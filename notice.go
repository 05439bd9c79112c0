package ugibdd

import (
	"sync"
	"time"
)

// NoticeLevel is the severity of a user-visible notice.
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeSuccess NoticeLevel = "success"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notifier receives user-visible notices.
type Notifier interface {
	Notify(level NoticeLevel, text string)
}

// Notice is a queued user-visible message.
type Notice struct {
	Level NoticeLevel `json:"level"`
	Text  string      `json:"text"`
	At    time.Time   `json:"at"`
}

// NoticeBoard is a Notifier that queues notices until the view drains them.
type NoticeBoard struct {
	mu      sync.Mutex
	now     func() time.Time
	pending []Notice
}

// NewNoticeBoard returns an empty board stamping notices with now.
func NewNoticeBoard(now func() time.Time) *NoticeBoard {
	if now == nil {
		now = time.Now
	}
	return &NoticeBoard{now: now}
}

func (b *NoticeBoard) Notify(level NoticeLevel, text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = append(b.pending, Notice{Level: level, Text: text, At: b.now()})
}

// Drain returns the queued notices and empties the board.
func (b *NoticeBoard) Drain() []Notice {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.pending
	b.pending = nil
	return out
}
