package interfaces

// Service is the lifecycle every externally reachable surface of the daemon
// (operator HTTP interface, transports) must be compliant with.
type Service interface {
	Start() error
	Stop()
}
