package reactive

import "errors"

// ErrLoopClosed is returned by Loop.Dispatch and Loop.Do after Close.
var ErrLoopClosed = errors.New("reactive: loop closed")

// ErrLoopFull is returned by Loop.Dispatch when the dispatch queue is full
// and the function was discarded.
var ErrLoopFull = errors.New("reactive: dispatch queue full")
