// Package meta is the optional persisted-metadata capability: theme-flow
// links, directory descriptions, flow status mirrors, and a usage log.
//
// Every caller must treat a failure here as Unavailable and fall back to
// file-based logic. Noop is the default when no database is configured.
package meta

import (
	"context"
	"time"

	"github.com/HendryAvila/ctxkeeper/internal/ctxerr"
)

// FlowStatus mirrors a flow's overall status and completion.
type FlowStatus struct {
	FlowID     string `json:"flow_id"`
	Status     string `json:"status"`
	Completion int    `json:"completion"`
	UpdatedAt  string `json:"updated_at"`
}

// UsageEvent records one call to an exposed operation.
type UsageEvent struct {
	Operation string `json:"operation"`
	Subject   string `json:"subject"`
	Detail    string `json:"detail,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// Store is the persisted-metadata capability.
type Store interface {
	// ThemeFlows returns flow ids linked to theme, most relevant first.
	ThemeFlows(ctx context.Context, theme string) ([]string, error)
	LinkThemeFlow(ctx context.Context, theme, flowID string, rank int) error

	DirectoryDescription(ctx context.Context, path string) (string, error)
	SetDirectoryDescription(ctx context.Context, path, description string) error

	FlowStatus(ctx context.Context, flowID string) (FlowStatus, error)
	SetFlowStatus(ctx context.Context, st FlowStatus) error

	LogUsage(ctx context.Context, ev UsageEvent) error
	Close() error
}

// Noop is a Store that has nothing. Every query reports Unavailable.
type Noop struct{}

var _ Store = Noop{}

func unavailable(op string) error {
	return ctxerr.Unavailable("metadata "+op, nil)
}

func (Noop) ThemeFlows(context.Context, string) ([]string, error) {
	return nil, unavailable("theme flows")
}

func (Noop) LinkThemeFlow(context.Context, string, string, int) error {
	return unavailable("theme flows")
}

func (Noop) DirectoryDescription(context.Context, string) (string, error) {
	return "", unavailable("directory description")
}

func (Noop) SetDirectoryDescription(context.Context, string, string) error {
	return unavailable("directory description")
}

func (Noop) FlowStatus(context.Context, string) (FlowStatus, error) {
	return FlowStatus{}, unavailable("flow status")
}

func (Noop) SetFlowStatus(context.Context, FlowStatus) error {
	return unavailable("flow status")
}

func (Noop) LogUsage(context.Context, UsageEvent) error {
	return unavailable("usage log")
}

func (Noop) Close() error { return nil }

// timeNow is swapped by tests.
var timeNow = time.Now

func now() string {
	return timeNow().UTC().Format(time.RFC3339)
}
