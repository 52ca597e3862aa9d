package model

import "fmt"

// RouteStatus is the route lifecycle state. The optimizer only ever produces
// routes in StatusOptimized; later transitions belong to dispatch/tracking.
type RouteStatus string

const (
	StatusDraft      RouteStatus = "draft"
	StatusOptimized  RouteStatus = "optimized"
	StatusDispatched RouteStatus = "dispatched"
	StatusInProgress RouteStatus = "in_progress"
	StatusCompleted  RouteStatus = "completed"
	StatusCancelled  RouteStatus = "cancelled"
)

var statusNext = map[RouteStatus][]RouteStatus{
	StatusDraft:      {StatusOptimized},
	StatusOptimized:  {StatusDispatched, StatusCancelled},
	StatusDispatched: {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
}

// ValidTransition reports whether a route may move from one status to another.
func ValidTransition(from, to RouteStatus) bool {
	for _, s := range statusNext[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ParseStatus validates a status string from the API.
func ParseStatus(s string) (RouteStatus, error) {
	switch RouteStatus(s) {
	case StatusDraft, StatusOptimized, StatusDispatched, StatusInProgress, StatusCompleted, StatusCancelled:
		return RouteStatus(s), nil
	}
	return "", fmt.Errorf("unknown route status: %q", s)
}
