package queue

import "errors"

var (
	ErrDepartmentNotFound = errors.New("department not found")
	ErrNoToken            = errors.New("no token available")
	ErrTokenNotFound      = errors.New("token not found")
)
