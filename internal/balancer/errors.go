package balancer

import "errors"

var (
	ErrNoHealthyInstance = errors.New("no healthy instance available")
	ErrInstanceNotFound  = errors.New("instance not found")
	ErrUnknownAlgorithm  = errors.New("unknown balancing algorithm")
)
