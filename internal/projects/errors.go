package projects

import "errors"

var (
	ErrNoName   = errors.New("project needs a name before it can be saved")
	ErrNotFound = errors.New("project not found")
)
