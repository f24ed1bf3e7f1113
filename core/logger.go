package core

// Logger is what every service logs through.
// args may hold errors, map[string]interface{} extras or a SessionUser.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
