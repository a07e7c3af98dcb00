package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/franksops/filexfer/engine"
)

// Reporter forwards batch events to a running TUI program. It is an
// engine.Observer.
type Reporter struct {
	send func(tea.Msg)
}

// NewReporter sends events to p.
func NewReporter(p *tea.Program) *Reporter {
	return &Reporter{send: p.Send}
}

func (r *Reporter) BatchStarted(batchID string, mode engine.TransferMode, total int) {
	r.send(BatchStartedMsg{BatchID: batchID, Mode: mode, Total: total})
}

func (r *Reporter) FileStarted(job engine.TransferJob) {
	var size int64
	if job.FileInfo != nil {
		size = job.FileInfo.Size()
	}
	r.send(FileStartedMsg{Name: job.FileName, Size: size})
}

func (r *Reporter) FileFinished(o engine.TransferOutcome) {
	r.send(FileFinishedMsg{Outcome: o})
}

func (r *Reporter) BatchFinished(result *engine.BatchResult) {
	r.send(BatchFinishedMsg{Result: result})
}
