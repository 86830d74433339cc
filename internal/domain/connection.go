package domain

// ConnState is the lifecycle state of the real-time connection.
type ConnState string

const (
	ConnDisconnected ConnState = "disconnected"
	ConnConnecting   ConnState = "connecting"
	ConnConnected    ConnState = "connected"
	ConnErrored      ConnState = "errored"
)

// Online reports whether pushes can currently arrive.
func (s ConnState) Online() bool { return s == ConnConnected }
