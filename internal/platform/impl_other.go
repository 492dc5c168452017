//go:build !linux
// +build !linux

package platform

import (
	"context"

	"go.uber.org/zap"
)

type idleWatcher struct {
	logger *zap.Logger
}

func newNetworkWatcher(logger *zap.Logger) NetworkWatcher {
	return &idleWatcher{logger: logger}
}

func (w *idleWatcher) Watch(ctx context.Context, onChange func()) error {
	w.logger.Debug("Network change notifications not available on this platform")
	<-ctx.Done()
	return nil
}

func osVersion() string {
	return ""
}
