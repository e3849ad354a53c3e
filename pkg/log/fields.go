package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"
	FieldSession   = "session"

	// Domain
	FieldHost   = "host"
	FieldEvent  = "event"
	FieldRunner = "runner"
	FieldSlot   = "slot"
	FieldScene  = "scene"
	FieldEditor = "editor"
)
