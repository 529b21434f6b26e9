package finalizer

import "fmt"

// Stage 归档失败所处阶段
type Stage string

const (
	StageAssemble Stage = "assemble"
	StageRemote   Stage = "remote"
	StagePersist  Stage = "persist"
)

// Error 归档失败
type Error struct {
	Stage     Stage
	SessionID string
	Err       error
}

func (e *Error) Error() string {
	if e.SessionID == "" {
		return fmt.Sprintf("finalize %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("finalize %s (session %s): %v", e.Stage, e.SessionID, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
