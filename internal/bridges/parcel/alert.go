package parcel

// AlertSink presents a local notification to the user (display, voice,
// sound). Its result is not consumed.
type AlertSink interface {
	Alert(title, message, mood, sound string)
}

// AlertSinkFunc adapts a function to AlertSink.
type AlertSinkFunc func(title, message, mood, sound string)

// Alert calls f.
func (f AlertSinkFunc) Alert(title, message, mood, sound string) {
	f(title, message, mood, sound)
}

// LogAlertSink writes alerts to the log. It is the sink used when no
// display is attached.
type LogAlertSink struct {
	Logger Logger
}

// Alert logs the alert at warn level.
func (s LogAlertSink) Alert(title, message, mood, sound string) {
	if s.Logger == nil {
		return
	}
	s.Logger.Warn("parcel alert",
		"title", title,
		"message", message,
		"mood", mood,
		"sound", sound,
	)
}
