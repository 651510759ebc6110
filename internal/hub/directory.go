package hub

import (
	"sync"

	"github.com/erikbeerepoot/bramble/internal/logger"
	"github.com/erikbeerepoot/bramble/internal/models"
)

// DeviceResolver maps a radio address onto a stable device identity
type DeviceResolver interface {
	DeviceID(addr uint16) uint64
}

// DeviceLookup finds the device last seen at an address in persistent storage
type DeviceLookup interface {
	ResolveDevice(addr uint16) (uint64, bool, error)
}

// DeviceDirectory remembers address to device mappings learned from node
// listings and status reports. Addresses are reassigned by the hub, so the
// most recent mapping wins.
type DeviceDirectory struct {
	mu     sync.RWMutex
	byAddr map[uint16]uint64
	lookup DeviceLookup
	log    logger.ILogger
}

// NewDeviceDirectory creates a directory that falls back to lookup (may be nil)
func NewDeviceDirectory(lookup DeviceLookup, log logger.ILogger) *DeviceDirectory {
	if log == nil {
		log = logger.NewComponentLogger("directory")
	}
	return &DeviceDirectory{byAddr: make(map[uint16]uint64), lookup: lookup, log: log}
}

// Learn records that addr currently belongs to deviceID. A zero id is ignored.
func (d *DeviceDirectory) Learn(addr uint16, deviceID uint64) {
	if deviceID == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if prev, ok := d.byAddr[addr]; ok && prev != deviceID {
		d.log.LogInfo("Address %d moved from device %016x to %016x", addr, prev, deviceID)
	}
	d.byAddr[addr] = deviceID
}

// LearnNodes records every node in a listing that reports its device id
func (d *DeviceDirectory) LearnNodes(nodes []models.Node) {
	for _, n := range nodes {
		if n.DeviceID != nil {
			d.Learn(n.Address, *n.DeviceID)
		}
	}
}

// DeviceID resolves addr. Unknown addresses resolve to the address itself so
// readings are never lost.
func (d *DeviceDirectory) DeviceID(addr uint16) uint64 {
	d.mu.RLock()
	id, ok := d.byAddr[addr]
	d.mu.RUnlock()
	if ok {
		return id
	}

	if d.lookup != nil {
		id, found, err := d.lookup.ResolveDevice(addr)
		if err != nil {
			d.log.LogWarn("Device lookup for address %d failed: %v", addr, err)
		} else if found {
			d.Learn(addr, id)
			return id
		}
	}
	return uint64(addr)
}
