package dom

import "errors"

var (
	ErrNoElement = errors.New("markup contains no element")
	ErrNoTarget  = errors.New("event has no target")
)
