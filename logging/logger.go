package logging

// Logger is the structured logger used across the service. Tags are alternating key/value pairs.
type Logger interface {
	Debug(msg string, tags ...any)
	Info(msg string, tags ...any)
	Warn(msg string, tags ...any)
	Error(msg string, tags ...any)
	Fatal(msg string, tags ...any)

	With(tags ...any) Logger
	Sync() error
}
