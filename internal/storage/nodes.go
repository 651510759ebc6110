package storage

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sort"

	"github.com/erikbeerepoot/bramble/internal/errors"
	"github.com/erikbeerepoot/bramble/internal/models"
	bolt "go.etcd.io/bbolt"
)

var errNoRecord = stderrors.New("no record")

// UnsetZone as MetadataUpdate.ZoneID removes the node from its zone
const UnsetZone = -1

func getJSON(b *bolt.Bucket, key []byte, dst interface{}) error {
	v := b.Get(key)
	if v == nil {
		return errNoRecord
	}
	return json.Unmarshal(v, dst)
}

func putJSON(b *bolt.Bucket, key []byte, src interface{}) error {
	v, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return b.Put(key, v)
}

func notFound(what string, id interface{}) error {
	return fmt.Errorf("%s %v: %w", what, id, errors.ErrNotFound)
}

// ListNodeRecords returns every known node ordered by device id
func (db *DB) ListNodeRecords() ([]models.NodeRecord, error) {
	var out []models.NodeRecord
	err := db.bolt.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketNodes)).ForEach(func(k, v []byte) error {
			var rec models.NodeRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			out = append(out, rec)
			return nil
		})
	})
	if err != nil {
		return nil, errors.NewStorageError("list nodes", err, bucketNodes)
	}
	return out, nil
}

// NodeRecord returns the stored record for deviceID, or ErrNotFound
func (db *DB) NodeRecord(deviceID uint64) (models.NodeRecord, error) {
	var rec models.NodeRecord
	err := db.bolt.View(func(tx *bolt.Tx) error {
		return getJSON(tx.Bucket([]byte(bucketNodes)), deviceKey(deviceID), &rec)
	})
	if stderrors.Is(err, errNoRecord) {
		return rec, notFound("node", deviceID)
	}
	if err != nil {
		return rec, errors.NewStorageError("get node", err, bucketNodes)
	}
	return rec, nil
}

// ResolveDevice finds the device most recently seen at addr
func (db *DB) ResolveDevice(addr uint16) (uint64, bool, error) {
	records, err := db.ListNodeRecords()
	if err != nil {
		return 0, false, err
	}
	var best *models.NodeRecord
	for i := range records {
		r := &records[i]
		if r.Address == addr && (best == nil || r.LastSeenAt > best.LastSeenAt) {
			best = r
		}
	}
	if best == nil {
		return 0, false, nil
	}
	return best.DeviceID, true, nil
}

// DeleteNode removes a node with its readings, metadata, status and status
// history. Returns ErrNotFound when nothing was stored for it.
func (db *DB) DeleteNode(deviceID uint64) error {
	key := deviceKey(deviceID)
	err := db.bolt.Update(func(tx *bolt.Tx) error {
		found := false
		for _, name := range []string{bucketReadings, bucketStatusHistory} {
			root := tx.Bucket([]byte(name))
			if root.Bucket(key) != nil {
				found = true
				if err := root.DeleteBucket(key); err != nil {
					return err
				}
			}
		}
		for _, name := range []string{bucketNodes, bucketMetadata, bucketStatus} {
			b := tx.Bucket([]byte(name))
			if b.Get(key) != nil {
				found = true
				if err := b.Delete(key); err != nil {
					return err
				}
			}
		}
		if !found {
			return errNoRecord
		}
		return nil
	})
	if stderrors.Is(err, errNoRecord) {
		return notFound("node", deviceID)
	}
	if err != nil {
		return errors.NewStorageError("delete node", err, bucketNodes)
	}
	db.log.LogInfo("🗑️ Deleted node %d and all associated data", deviceID)
	return nil
}

// MetadataUpdate changes user-assigned node details. Nil fields are kept;
// ZoneID UnsetZone clears the zone.
type MetadataUpdate struct {
	Name     *string `json:"name"`
	Location *string `json:"location"`
	Notes    *string `json:"notes"`
	ZoneID   *int    `json:"zone_id"`
}

// NodeMetadata returns metadata for deviceID, or ErrNotFound
func (db *DB) NodeMetadata(deviceID uint64) (models.NodeMetadata, error) {
	var md models.NodeMetadata
	err := db.bolt.View(func(tx *bolt.Tx) error {
		return getJSON(tx.Bucket([]byte(bucketMetadata)), deviceKey(deviceID), &md)
	})
	if stderrors.Is(err, errNoRecord) {
		return md, notFound("metadata for node", deviceID)
	}
	if err != nil {
		return md, errors.NewStorageError("get metadata", err, bucketMetadata)
	}
	return md, nil
}

// AllNodeMetadata returns metadata keyed by device id
func (db *DB) AllNodeMetadata() (map[uint64]models.NodeMetadata, error) {
	out := make(map[uint64]models.NodeMetadata)
	err := db.bolt.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketMetadata)).ForEach(func(k, v []byte) error {
			var md models.NodeMetadata
			if err := json.Unmarshal(v, &md); err != nil {
				return err
			}
			out[md.DeviceID] = md
			return nil
		})
	})
	if err != nil {
		return nil, errors.NewStorageError("list metadata", err, bucketMetadata)
	}
	return out, nil
}

// UpdateNodeMetadata upserts metadata for deviceID
func (db *DB) UpdateNodeMetadata(deviceID uint64, u MetadataUpdate) (models.NodeMetadata, error) {
	var md models.NodeMetadata
	err := db.bolt.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketMetadata))
		key := deviceKey(deviceID)
		if err := getJSON(b, key, &md); err != nil && !stderrors.Is(err, errNoRecord) {
			return err
		}
		md.DeviceID = deviceID
		if u.Name != nil {
			md.Name = u.Name
		}
		if u.Location != nil {
			md.Location = u.Location
		}
		if u.Notes != nil {
			md.Notes = u.Notes
		}
		if u.ZoneID != nil {
			if *u.ZoneID == UnsetZone {
				md.ZoneID = nil
			} else {
				if tx.Bucket([]byte(bucketZones)).Get(u64Key(uint64(*u.ZoneID))) == nil {
					return notFound("zone", *u.ZoneID)
				}
				zone := *u.ZoneID
				md.ZoneID = &zone
			}
		}
		md.UpdatedAt = db.now().Unix()
		return putJSON(b, key, md)
	})
	if stderrors.Is(err, errors.ErrNotFound) {
		return md, err
	}
	if err != nil {
		return md, errors.NewStorageError("update metadata", err, bucketMetadata)
	}
	return md, nil
}

// ListZones returns all zones ordered by id
func (db *DB) ListZones() ([]models.Zone, error) {
	zones := []models.Zone{}
	err := db.bolt.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketZones)).ForEach(func(k, v []byte) error {
			var z models.Zone
			if err := json.Unmarshal(v, &z); err != nil {
				return err
			}
			zones = append(zones, z)
			return nil
		})
	})
	if err != nil {
		return nil, errors.NewStorageError("list zones", err, bucketZones)
	}
	return zones, nil
}

// Zone returns one zone, or ErrNotFound
func (db *DB) Zone(id int) (models.Zone, error) {
	var z models.Zone
	err := db.bolt.View(func(tx *bolt.Tx) error {
		return getJSON(tx.Bucket([]byte(bucketZones)), u64Key(uint64(id)), &z)
	})
	if stderrors.Is(err, errNoRecord) {
		return z, notFound("zone", id)
	}
	if err != nil {
		return z, errors.NewStorageError("get zone", err, bucketZones)
	}
	return z, nil
}

// CreateZone stores a new zone and assigns its id
func (db *DB) CreateZone(name, color string, description *string) (models.Zone, error) {
	z := models.Zone{Name: name, Color: color, Description: description}
	err := db.bolt.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketZones))
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		z.ID = int(seq)
		return putJSON(b, u64Key(seq), z)
	})
	if err != nil {
		return z, errors.NewStorageError("create zone", err, bucketZones)
	}
	return z, nil
}

// ZoneUpdate changes zone fields; nil fields are kept
type ZoneUpdate struct {
	Name        *string `json:"name"`
	Color       *string `json:"color"`
	Description *string `json:"description"`
}

// UpdateZone applies u to zone id, or returns ErrNotFound
func (db *DB) UpdateZone(id int, u ZoneUpdate) (models.Zone, error) {
	var z models.Zone
	err := db.bolt.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketZones))
		key := u64Key(uint64(id))
		if err := getJSON(b, key, &z); err != nil {
			return err
		}
		if u.Name != nil {
			z.Name = *u.Name
		}
		if u.Color != nil {
			z.Color = *u.Color
		}
		if u.Description != nil {
			z.Description = u.Description
		}
		return putJSON(b, key, z)
	})
	if stderrors.Is(err, errNoRecord) {
		return z, notFound("zone", id)
	}
	if err != nil {
		return z, errors.NewStorageError("update zone", err, bucketZones)
	}
	return z, nil
}

// DeleteZone removes a zone; nodes in it become unzoned
func (db *DB) DeleteZone(id int) error {
	err := db.bolt.Update(func(tx *bolt.Tx) error {
		zones := tx.Bucket([]byte(bucketZones))
		key := u64Key(uint64(id))
		if zones.Get(key) == nil {
			return errNoRecord
		}

		meta := tx.Bucket([]byte(bucketMetadata))
		var unzoned []models.NodeMetadata
		if err := meta.ForEach(func(k, v []byte) error {
			var md models.NodeMetadata
			if err := json.Unmarshal(v, &md); err != nil {
				return err
			}
			if md.ZoneID != nil && *md.ZoneID == id {
				md.ZoneID = nil
				unzoned = append(unzoned, md)
			}
			return nil
		}); err != nil {
			return err
		}
		// bbolt forbids mutation during ForEach
		for _, md := range unzoned {
			if err := putJSON(meta, deviceKey(md.DeviceID), md); err != nil {
				return err
			}
		}
		return zones.Delete(key)
	})
	if stderrors.Is(err, errNoRecord) {
		return notFound("zone", id)
	}
	if err != nil {
		return errors.NewStorageError("delete zone", err, bucketZones)
	}
	return nil
}

// RecordNodeStatus upserts the latest status and appends a history entry
// when the error flags changed (or on the first report)
func (db *DB) RecordNodeStatus(s models.NodeStatus) error {
	if s.UpdatedAt == 0 {
		s.UpdatedAt = db.now().Unix()
	}
	err := db.bolt.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketStatus))
		key := deviceKey(s.DeviceID)

		var prev models.NodeStatus
		err := getJSON(b, key, &prev)
		first := stderrors.Is(err, errNoRecord)
		if err != nil && !first {
			return err
		}
		if err := putJSON(b, key, s); err != nil {
			return err
		}
		if !first && prev.ErrorFlags == s.ErrorFlags {
			return nil
		}

		hist, err := tx.Bucket([]byte(bucketStatusHistory)).CreateBucketIfNotExists(key)
		if err != nil {
			return err
		}
		seq, err := hist.NextSequence()
		if err != nil {
			return err
		}
		return putJSON(hist, append(tsKey(s.UpdatedAt), u64Key(seq)...), s)
	})
	if err != nil {
		return errors.NewStorageError("record status", err, bucketStatus)
	}
	return nil
}

// NodeStatus returns the latest status for deviceID, or ErrNotFound
func (db *DB) NodeStatus(deviceID uint64) (models.NodeStatus, error) {
	var s models.NodeStatus
	err := db.bolt.View(func(tx *bolt.Tx) error {
		return getJSON(tx.Bucket([]byte(bucketStatus)), deviceKey(deviceID), &s)
	})
	if stderrors.Is(err, errNoRecord) {
		return s, notFound("status for node", deviceID)
	}
	if err != nil {
		return s, errors.NewStorageError("get status", err, bucketStatus)
	}
	return s, nil
}

// StatusHistory returns error flag changes for deviceID in [start, end], oldest first
func (db *DB) StatusHistory(deviceID uint64, start, end int64) ([]models.NodeStatus, error) {
	history := []models.NodeStatus{}
	err := db.bolt.View(func(tx *bolt.Tx) error {
		hist := tx.Bucket([]byte(bucketStatusHistory)).Bucket(deviceKey(deviceID))
		if hist == nil {
			return nil
		}
		c := hist.Cursor()
		for k, v := c.Seek(tsKey(start)); k != nil && int64(keyU64(k[:8])) <= end; k, v = c.Next() {
			var s models.NodeStatus
			if err := json.Unmarshal(v, &s); err != nil {
				return err
			}
			history = append(history, s)
		}
		return nil
	})
	if err != nil {
		return nil, errors.NewStorageError("status history", err, bucketStatusHistory)
	}
	sort.SliceStable(history, func(i, j int) bool { return history[i].UpdatedAt < history[j].UpdatedAt })
	return history, nil
}
