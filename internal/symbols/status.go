package symbols

import (
	"fmt"

	"github.com/Benny93/pyxis-go/internal/diag"
)

// BuildStatus is the pipeline progress of one stage for one file.
type BuildStatus uint8

const (
	// StatusPending marks a stage that has not run, or was invalidated.
	StatusPending BuildStatus = iota

	// StatusInProgress marks a stage currently running. A nested build
	// request for an in-progress stage returns immediately.
	StatusInProgress

	// StatusDone marks a completed stage.
	StatusDone
)

// String returns the lowercase status name.
func (s BuildStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusInProgress:
		return "in_progress"
	case StatusDone:
		return "done"
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// StageStatus returns the build status for a stage. The syntax stage is
// owned by the source tracker and always reads done here.
func (f *FileData) StageStatus(stage diag.Stage) BuildStatus {
	switch stage {
	case diag.StageArch:
		return f.ArchStatus
	case diag.StageArchEval:
		return f.ArchEvalStatus
	case diag.StageValidation:
		return f.ValidationStatus
	}
	return StatusDone
}

// SetStageStatus updates the build status for a stage.
func (f *FileData) SetStageStatus(stage diag.Stage, status BuildStatus) {
	switch stage {
	case diag.StageArch:
		f.ArchStatus = status
	case diag.StageArchEval:
		f.ArchEvalStatus = status
	case diag.StageValidation:
		f.ValidationStatus = status
	}
}

// ResetFrom marks the given stage and every later stage pending.
func (f *FileData) ResetFrom(stage diag.Stage) {
	for s := stage; s <= diag.StageValidation; s++ {
		f.SetStageStatus(s, StatusPending)
	}
}

// Built reports whether every stage has completed.
func (f *FileData) Built() bool {
	return f.ArchStatus == StatusDone &&
		f.ArchEvalStatus == StatusDone &&
		f.ValidationStatus == StatusDone
}
