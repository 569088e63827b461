package session

// Status is the externally visible state of the voice session
type Status string

const (
	StatusIdle       Status = "idle"
	StatusStarting   Status = "starting"
	StatusListening  Status = "listening"
	StatusRecording  Status = "recording"
	StatusSending    Status = "sending"
	StatusProcessing Status = "processing"
	StatusError      Status = "error"
	StatusConnError  Status = "conn_error"
	StatusStopped    Status = "stopped"
)
