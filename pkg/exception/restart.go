package exception

import "errors"

var (
	ErrRestartNotReconciled   = errors.New("restart: reconciliation has not completed this process")
	ErrRestartSnapshotCorrupt = errors.New("restart: snapshot file corrupt")
)
