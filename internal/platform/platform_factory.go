package platform

import "go.uber.org/zap"

// NewNetworkWatcher creates the watcher for the current OS. Platforms without
// a change feed get a watcher that never fires; periodic probing still runs.
func NewNetworkWatcher(logger *zap.Logger) NetworkWatcher {
	return newNetworkWatcher(logger)
}
