package scheduler

import "fmt"

// Dispatcher selects the Adapter that owns a job's configured scheduler
// kind and routes every Adapter call to it, normalizing "which backend"
// for the rest of the system.
type Dispatcher struct {
	adapters map[string]Adapter
}

// NewDispatcher wires the three concrete adapters by scheduler kind. A nil
// entry means that backend is not configured for this deployment.
func NewDispatcher(local, orchestrator, hpc Adapter) *Dispatcher {
	d := &Dispatcher{adapters: make(map[string]Adapter, 3)}
	if local != nil {
		d.adapters["local"] = local
	}
	if orchestrator != nil {
		d.adapters["orchestrator"] = orchestrator
	}
	if hpc != nil {
		d.adapters["hpc"] = hpc
	}
	return d
}

// For returns the adapter registered for kind, or an error if that backend
// isn't configured in this deployment.
func (d *Dispatcher) For(kind string) (Adapter, error) {
	a, ok := d.adapters[kind]
	if !ok {
		return nil, fmt.Errorf("no scheduler adapter configured for kind %q", kind)
	}
	return a, nil
}
