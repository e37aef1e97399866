package log

// Field names shared across packages.
const (
	FieldComponent = "component"
	FieldRequestID = "request_id"
	FieldError     = "error"
)

// Component names.
const (
	ComponentServer = "server"
	ComponentWorker = "worker"
	ComponentCLI    = "cli"
	ComponentStore  = "store"
	ComponentAMQP   = "amqp"
)
