package main

import (
	"context"
	"errors"
	"strings"
	"sync"

	"comictracker/internal/app"
)

type commandContext struct {
	configFlag *string
	ownerFlag  *string

	appOnce sync.Once
	app     *app.App
	appErr  error
}

func newCommandContext(configFlag, ownerFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag, ownerFlag: ownerFlag}
}

// ensureApp opens the store on first use so help output never touches it.
func (c *commandContext) ensureApp(ctx context.Context) (*app.App, error) {
	c.appOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		c.app, c.appErr = app.Open(ctx, path)
	})
	return c.app, c.appErr
}

func (c *commandContext) owner() (string, error) {
	if c.ownerFlag == nil || strings.TrimSpace(*c.ownerFlag) == "" {
		return "", errors.New("--owner is required")
	}
	return strings.TrimSpace(*c.ownerFlag), nil
}

func (c *commandContext) close() error {
	if c.app == nil {
		return nil
	}
	return c.app.Close()
}
