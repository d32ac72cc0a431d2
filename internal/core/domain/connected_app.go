package domain

import (
	"context"
	"strings"
	"time"
)

// ConnectedApp is an origin the user explicitly approved at least once.
type ConnectedApp struct {
	Origin         string
	DisplayName    string
	Icon           string
	ConnectedAt    int64
	LastActivityAt int64
}

// NewConnectedApp returns a record for the given origin connected now.
func NewConnectedApp(origin, displayName, icon string) (*ConnectedApp, error) {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return nil, ErrNullOrigin
	}
	if displayName == "" {
		displayName = origin
	}
	now := time.Now().Unix()
	return &ConnectedApp{
		Origin:         origin,
		DisplayName:    displayName,
		Icon:           icon,
		ConnectedAt:    now,
		LastActivityAt: now,
	}, nil
}

// Touch refreshes the last activity timestamp.
func (a *ConnectedApp) Touch() {
	a.LastActivityAt = time.Now().Unix()
}

// ConnectedAppRepository persists ConnectedApp records keyed by origin.
type ConnectedAppRepository interface {
	// GetApp returns ErrConnectedAppNotFound if the origin is unknown.
	GetApp(ctx context.Context, origin string) (*ConnectedApp, error)
	// UpsertApp inserts or replaces the record for app.Origin.
	UpsertApp(ctx context.Context, app ConnectedApp) error
	// DeleteApp returns ErrConnectedAppNotFound if the origin is unknown.
	DeleteApp(ctx context.Context, origin string) error
	ListApps(ctx context.Context) ([]ConnectedApp, error)
}
