package payment

import (
	"fmt"
	"strings"
	"sync"
)

// Factory creates the orchestrator for a new dialog.
type Factory func() (*Orchestrator, error)

// Dialogs keeps one Orchestrator per open payment dialog.
type Dialogs struct {
	mu      sync.Mutex
	factory Factory
	open    map[string]*Orchestrator
}

// NewDialogs creates an empty registry.
func NewDialogs(factory Factory) *Dialogs {
	return &Dialogs{factory: factory, open: make(map[string]*Orchestrator)}
}

// DialogKey identifies the dialog of one session paying for one job.
func DialogKey(sessionID string, jobID int64) string {
	return fmt.Sprintf("%s/%d", sessionID, jobID)
}

// Open returns the dialog for key, creating it if needed.
func (d *Dialogs) Open(key string) (*Orchestrator, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if o, ok := d.open[key]; ok {
		return o, nil
	}
	o, err := d.factory()
	if err != nil {
		return nil, err
	}
	d.open[key] = o
	return o, nil
}

// Lookup returns the dialog for key if it is open.
func (d *Dialogs) Lookup(key string) (*Orchestrator, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, ok := d.open[key]
	return o, ok
}

// Close forgets the dialog for key. A dialog with a running attempt stays open.
func (d *Dialogs) Close(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, ok := d.open[key]
	if !ok {
		return true
	}
	if o.State().Busy() {
		return false
	}
	delete(d.open, key)
	return true
}

// CloseSession forgets every dialog of sessionID and returns how many were
// open. Running attempts are asked to cancel and finish on their own.
func (d *Dialogs) CloseSession(sessionID string) int {
	prefix := sessionID + "/"
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for key, o := range d.open {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if o.State().Busy() {
			o.Cancel()
		}
		delete(d.open, key)
		n++
	}
	return n
}

// Len returns the number of open dialogs.
func (d *Dialogs) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.open)
}
