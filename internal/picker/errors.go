package picker

import "errors"

// ErrAborted is returned by Run when the user quit early.
var ErrAborted = errors.New("picker aborted")
