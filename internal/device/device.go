package device

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const idFileName = "device_id"

// DeviceManager resolves the identifier sent with every submission so the
// backend can tell this installation apart from the user's other devices.
type DeviceManager struct {
	dataDir        string
	machineIDPaths []string
	logger         *zap.Logger
}

// NewDeviceManager persists generated ids under dataDir.
func NewDeviceManager(dataDir string, logger *zap.Logger) *DeviceManager {
	return &DeviceManager{
		dataDir:        dataDir,
		machineIDPaths: []string{"/etc/machine-id", "/var/lib/dbus/machine-id"},
		logger:         logger,
	}
}

// GetOrGenerateDeviceID returns, in order of preference: the configured id,
// the id persisted by an earlier run, an id derived from the OS machine id,
// or a fresh UUID. Whatever is chosen is persisted for the next run.
func (dm *DeviceManager) GetOrGenerateDeviceID(existingID string) (string, error) {
	if existingID = strings.TrimSpace(existingID); existingID != "" {
		return existingID, nil
	}

	idPath := filepath.Join(dm.dataDir, idFileName)
	if data, err := os.ReadFile(idPath); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("failed to read device id: %w", err)
	}

	id := dm.machineDeviceID()
	source := "machine-id"
	if id == "" {
		id = uuid.NewString()
		source = "generated"
	}

	if err := os.MkdirAll(dm.dataDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := os.WriteFile(idPath, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("failed to persist device id: %w", err)
	}
	dm.logger.Info("Device ID assigned", zap.String("device_id", id), zap.String("source", source))
	return id, nil
}

// machineDeviceID hashes the OS machine id into a UUID so the raw value never
// leaves the host.
func (dm *DeviceManager) machineDeviceID() string {
	for _, path := range dm.machineIDPaths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if raw := strings.TrimSpace(string(data)); raw != "" {
			return uuid.NewSHA1(uuid.NameSpaceOID, []byte("voicelog:"+raw)).String()
		}
	}
	return ""
}
