package notifier

import "time"

// Config controls the notifier.
type Config struct {
	ChatID   int64
	ThreadID int
	// DisablePreview turns off link previews in sent messages.
	DisablePreview bool
	// HistorySize bounds History(). Zero means 20.
	HistorySize int
}

type HistoryItem struct {
	At        time.Time
	Text      string
	MessageID int
}
