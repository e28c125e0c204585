package ui

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
)

// SimpleSpinner provides a simple blocking spinner for CLI operations
type SimpleSpinner struct {
	message  string
	spinner  spinner.Spinner
	interval time.Duration
	done     chan struct{}
	started  atomic.Bool
	stopOnce sync.Once
	finished chan struct{}
}

// NewConnectionSpinner creates a spinner for network/connection operations (Globe style)
func NewConnectionSpinner(message string) *SimpleSpinner {
	return newSpinner(message, spinner.Globe, 180*time.Millisecond)
}

func newSpinner(message string, s spinner.Spinner, interval time.Duration) *SimpleSpinner {
	return &SimpleSpinner{
		message:  message,
		spinner:  s,
		interval: interval,
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
}

func (s *SimpleSpinner) Start() {
	if s.started.Swap(true) {
		return
	}
	go func() {
		defer close(s.finished)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		frames := s.spinner.Frames
		for i := 0; ; i++ {
			frame := SpinnerStyle.Render(frames[i%len(frames)])
			fmt.Printf("\r%s %s", frame, s.message)
			select {
			case <-s.done:
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop halts the spinner and clears its line. It is safe to call more than once.
func (s *SimpleSpinner) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		if !s.started.Load() {
			return
		}
		<-s.finished
		fmt.Print("\r\033[K")
	})
}

// Success stops the spinner and leaves a success line in its place.
func (s *SimpleSpinner) Success(message string) {
	s.Stop()
	PrintSuccess(message)
}

// Error stops the spinner and leaves an error line in its place.
func (s *SimpleSpinner) Error(message string) {
	s.Stop()
	PrintError(message)
}

// RunConnectionSpinner starts a connection spinner and returns it
func RunConnectionSpinner(message string) *SimpleSpinner {
	sp := NewConnectionSpinner(message)
	sp.Start()
	return sp
}
