package conductor

import (
	"log"
	"sync"
)

// PauseController manages pause/resume/stop state for the conductor.
// It provides a thread-safe way to control cycle flow.
type PauseController struct {
	// paused indicates whether the conductor is paused.
	paused bool
	// stopped indicates whether the conductor has been stopped.
	stopped bool
	// mu protects all fields.
	mu sync.RWMutex
}

// NewPauseController creates a new PauseController.
func NewPauseController() *PauseController {
	return &PauseController{}
}

// Pause pauses cycle processing. Arriving ticks become no-ops.
func (p *PauseController) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.paused {
		p.paused = true
		log.Printf("[conductor] paused - ticks are no-ops until resume")
	}
}

// Resume resumes cycle processing after a pause.
func (p *PauseController) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused {
		p.paused = false
		log.Printf("[conductor] resumed - cycles enabled")
	}
}

// Stop signals a permanent stop.
func (p *PauseController) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
}

// IsPaused returns whether cycle processing is currently paused.
func (p *PauseController) IsPaused() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.paused
}

// IsStopped returns whether the controller has been stopped.
func (p *PauseController) IsStopped() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stopped
}
