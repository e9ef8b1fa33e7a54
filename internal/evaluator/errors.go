package evaluator

import (
	"errors"
	"fmt"
)

// Stage names one step of an evaluation.
type Stage string

const (
	StageContext   Stage = "context"
	StageClassify  Stage = "classify"
	StageTechnical Stage = "technical"
	StageEquipment Stage = "equipment"
	StageEconomics Stage = "economics"
	StageVerdict   Stage = "verdict"
	StagePersist   Stage = "persist"
	StageRender    Stage = "render"
)

// ErrPersistFailed marks an evaluation whose decision record could not be
// saved. No report is produced for it.
var ErrPersistFailed = errors.New("failed to persist decision record")

// StageError is returned when an evaluation stops at a stage.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// FailedStage returns the stage an error stopped at, or "" if err is not a
// StageError.
func FailedStage(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
