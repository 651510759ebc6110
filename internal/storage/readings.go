package storage

import (
	"encoding/binary"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/erikbeerepoot/bramble/internal/errors"
	"github.com/erikbeerepoot/bramble/internal/models"
	bolt "go.etcd.io/bbolt"
)

// readingValueSize is address(2) temp(4) hum(4) flags(1) received_at(8)
const readingValueSize = 19

// DefaultQueryLimit caps QueryReadings when no limit is given
const DefaultQueryLimit = 1000

// CSVHeader is the first row of every export
var CSVHeader = []string{"device_id", "address", "timestamp", "temperature_celsius", "humidity_percent", "flags"}

// ReadingFilter selects readings. Nil fields do not filter; Start and End are inclusive.
type ReadingFilter struct {
	DeviceID *uint64
	Start    *int64
	End      *int64
	Limit    int
	Offset   int
}

func (f ReadingFilter) contains(ts int64) bool {
	if f.Start != nil && ts < *f.Start {
		return false
	}
	if f.End != nil && ts > *f.End {
		return false
	}
	return true
}

// DownsampledPoint is the average of all readings in one time bucket
type DownsampledPoint struct {
	Timestamp          int64   `json:"timestamp"` // bucket midpoint
	TemperatureCelsius float64 `json:"temperature_celsius"`
	HumidityPercent    float64 `json:"humidity_percent"`
	SampleCount        int     `json:"sample_count"`
}

// RangeStats holds min/max/avg in display units; nil when no readings matched
type RangeStats struct {
	Min *float64 `json:"min"`
	Max *float64 `json:"max"`
	Avg *float64 `json:"avg"`
}

// NodeStatistics summarises a node's stored readings
type NodeStatistics struct {
	models.NodeRecord
	ReadingCount int64      `json:"reading_count"`
	Temperature  RangeStats `json:"temperature"`
	Humidity     RangeStats `json:"humidity"`
}

func encodeReading(r models.SensorReading) []byte {
	v := make([]byte, readingValueSize)
	binary.BigEndian.PutUint16(v[0:2], r.Address)
	binary.BigEndian.PutUint32(v[2:6], uint32(r.TemperatureCentidegrees))
	binary.BigEndian.PutUint32(v[6:10], uint32(r.HumidityCentipercent))
	v[10] = r.Flags
	binary.BigEndian.PutUint64(v[11:19], uint64(r.ReceivedAt.Unix()))
	return v
}

func decodeReading(deviceID uint64, k, v []byte) (models.SensorReading, error) {
	if len(k) != 8 || len(v) != readingValueSize {
		return models.SensorReading{}, fmt.Errorf("corrupt reading record for device %d", deviceID)
	}
	return models.SensorReading{
		DeviceID:                deviceID,
		Timestamp:               int64(keyU64(k)),
		Address:                 binary.BigEndian.Uint16(v[0:2]),
		TemperatureCentidegrees: int32(binary.BigEndian.Uint32(v[2:6])),
		HumidityCentipercent:    int32(binary.BigEndian.Uint32(v[6:10])),
		Flags:                   v[10],
		ReceivedAt:              time.Unix(int64(binary.BigEndian.Uint64(v[11:19])), 0),
	}, nil
}

// InsertBatch stores readings in one transaction. Readings whose (device,
// timestamp) already exists are skipped and counted as duplicates.
func (db *DB) InsertBatch(readings []models.SensorReading) (inserted, duplicates int, err error) {
	if len(readings) == 0 {
		return 0, 0, nil
	}
	now := db.now()

	err = db.bolt.Update(func(tx *bolt.Tx) error {
		inserted, duplicates = 0, 0
		root := tx.Bucket([]byte(bucketReadings))
		for _, r := range readings {
			dev, err := root.CreateBucketIfNotExists(deviceKey(r.DeviceID))
			if err != nil {
				return err
			}
			key := tsKey(r.Timestamp)
			if dev.Get(key) != nil {
				duplicates++
				continue
			}
			if r.ReceivedAt.IsZero() {
				r.ReceivedAt = now
			}
			if err := dev.Put(key, encodeReading(r)); err != nil {
				return err
			}
			if err := updateNodeStats(tx, r); err != nil {
				return err
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, 0, errors.NewStorageError("insert batch", err, bucketReadings)
	}
	return inserted, duplicates, nil
}

func updateNodeStats(tx *bolt.Tx, r models.SensorReading) error {
	nodes := tx.Bucket([]byte(bucketNodes))
	key := deviceKey(r.DeviceID)

	var rec models.NodeRecord
	if err := getJSON(nodes, key, &rec); err == errNoRecord {
		rec = models.NodeRecord{
			DeviceID:    r.DeviceID,
			Address:     r.Address,
			NodeType:    models.NodeTypeSensor,
			FirstSeenAt: r.Timestamp,
			LastSeenAt:  r.Timestamp,
		}
	} else if err != nil {
		return err
	}

	if r.Address != 0 && rec.Address != r.Address {
		rec.Address = r.Address
	}
	if r.Timestamp > rec.LastSeenAt {
		rec.LastSeenAt = r.Timestamp
	}
	if r.Timestamp < rec.FirstSeenAt {
		rec.FirstSeenAt = r.Timestamp
	}
	rec.TotalReadings++
	return putJSON(nodes, key, rec)
}

// forEachDesc visits a device's readings in [start, end] newest first until fn returns false
func forEachDesc(dev *bolt.Bucket, deviceID uint64, f ReadingFilter, fn func(models.SensorReading) bool) error {
	c := dev.Cursor()
	var k, v []byte
	if f.End != nil {
		k, v = c.Seek(tsKey(*f.End + 1))
		if k == nil {
			k, v = c.Last()
		} else {
			k, v = c.Prev()
		}
	} else {
		k, v = c.Last()
	}

	for ; k != nil; k, v = c.Prev() {
		r, err := decodeReading(deviceID, k, v)
		if err != nil {
			return err
		}
		if f.Start != nil && r.Timestamp < *f.Start {
			return nil
		}
		if !f.contains(r.Timestamp) {
			continue
		}
		if !fn(r) {
			return nil
		}
	}
	return nil
}

// eachDevice calls fn for each device bucket matching the filter
func eachDevice(tx *bolt.Tx, f ReadingFilter, fn func(deviceID uint64, dev *bolt.Bucket) error) error {
	root := tx.Bucket([]byte(bucketReadings))
	if f.DeviceID != nil {
		dev := root.Bucket(deviceKey(*f.DeviceID))
		if dev == nil {
			return nil
		}
		return fn(*f.DeviceID, dev)
	}
	return root.ForEach(func(k, v []byte) error {
		if v != nil {
			return nil
		}
		return fn(keyU64(k), root.Bucket(k))
	})
}

// QueryReadings returns matching readings newest first
func (db *DB) QueryReadings(f ReadingFilter) ([]models.SensorReading, error) {
	if f.Limit <= 0 {
		f.Limit = DefaultQueryLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	want := f.Offset + f.Limit

	var out []models.SensorReading
	err := db.bolt.View(func(tx *bolt.Tx) error {
		return eachDevice(tx, f, func(id uint64, dev *bolt.Bucket) error {
			n := 0
			return forEachDesc(dev, id, f, func(r models.SensorReading) bool {
				out = append(out, r)
				n++
				return n < want
			})
		})
	})
	if err != nil {
		return nil, errors.NewStorageError("query readings", err, bucketReadings)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp > out[j].Timestamp
		}
		return out[i].DeviceID < out[j].DeviceID
	})
	if f.Offset >= len(out) {
		return []models.SensorReading{}, nil
	}
	out = out[f.Offset:]
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// LatestReading returns the newest reading for deviceID, or ErrNotFound
func (db *DB) LatestReading(deviceID uint64) (models.SensorReading, error) {
	readings, err := db.QueryReadings(ReadingFilter{DeviceID: &deviceID, Limit: 1})
	if err != nil {
		return models.SensorReading{}, err
	}
	if len(readings) == 0 {
		return models.SensorReading{}, fmt.Errorf("no readings for device %d: %w", deviceID, errors.ErrNotFound)
	}
	return readings[0], nil
}

// ReadingCount counts matching readings; Limit and Offset are ignored
func (db *DB) ReadingCount(f ReadingFilter) (int64, error) {
	var count int64
	f.Limit, f.Offset = 0, 0
	err := db.bolt.View(func(tx *bolt.Tx) error {
		return eachDevice(tx, f, func(id uint64, dev *bolt.Bucket) error {
			if f.Start == nil && f.End == nil {
				count += int64(dev.Stats().KeyN)
				return nil
			}
			return forEachDesc(dev, id, f, func(models.SensorReading) bool {
				count++
				return true
			})
		})
	})
	if err != nil {
		return 0, errors.NewStorageError("count readings", err, bucketReadings)
	}
	return count, nil
}

// QueryDownsampled averages a device's readings in [start, end] into at most
// about maxPoints time buckets, oldest first
func (db *DB) QueryDownsampled(deviceID uint64, start, end int64, maxPoints int) ([]DownsampledPoint, error) {
	span := end - start
	if span <= 0 || maxPoints <= 0 {
		return []DownsampledPoint{}, nil
	}
	bucketSize := span / int64(maxPoints)
	if bucketSize < 1 {
		bucketSize = 1
	}

	type acc struct {
		temp, hum int64
		n         int
	}
	sums := make(map[int64]*acc)

	f := ReadingFilter{DeviceID: &deviceID, Start: &start, End: &end}
	err := db.bolt.View(func(tx *bolt.Tx) error {
		return eachDevice(tx, f, func(id uint64, dev *bolt.Bucket) error {
			return forEachDesc(dev, id, f, func(r models.SensorReading) bool {
				b := (r.Timestamp / bucketSize) * bucketSize
				a, ok := sums[b]
				if !ok {
					a = &acc{}
					sums[b] = a
				}
				a.temp += int64(r.TemperatureCentidegrees)
				a.hum += int64(r.HumidityCentipercent)
				a.n++
				return true
			})
		})
	})
	if err != nil {
		return nil, errors.NewStorageError("query downsampled", err, bucketReadings)
	}

	points := make([]DownsampledPoint, 0, len(sums))
	for b, a := range sums {
		points = append(points, DownsampledPoint{
			Timestamp:          b + bucketSize/2,
			TemperatureCelsius: round2(float64(a.temp) / float64(a.n) / 100.0),
			HumidityPercent:    round2(float64(a.hum) / float64(a.n) / 100.0),
			SampleCount:        a.n,
		})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Timestamp < points[j].Timestamp })
	return points, nil
}

// Statistics summarises a node's readings, optionally restricted to [start, end]
func (db *DB) Statistics(deviceID uint64, start, end *int64) (NodeStatistics, error) {
	rec, err := db.NodeRecord(deviceID)
	if err != nil {
		return NodeStatistics{}, err
	}
	stats := NodeStatistics{NodeRecord: rec}

	var tMin, tMax, hMin, hMax int32 = math.MaxInt32, math.MinInt32, math.MaxInt32, math.MinInt32
	var tSum, hSum, n int64

	f := ReadingFilter{DeviceID: &deviceID, Start: start, End: end}
	err = db.bolt.View(func(tx *bolt.Tx) error {
		return eachDevice(tx, f, func(id uint64, dev *bolt.Bucket) error {
			return forEachDesc(dev, id, f, func(r models.SensorReading) bool {
				t, h := r.TemperatureCentidegrees, r.HumidityCentipercent
				tMin, tMax = min(tMin, t), max(tMax, t)
				hMin, hMax = min(hMin, h), max(hMax, h)
				tSum += int64(t)
				hSum += int64(h)
				n++
				return true
			})
		})
	})
	if err != nil {
		return NodeStatistics{}, errors.NewStorageError("statistics", err, bucketReadings)
	}

	if start != nil || end != nil {
		stats.ReadingCount = n
	} else {
		stats.ReadingCount = rec.TotalReadings
	}
	if n > 0 {
		stats.Temperature = rangeStats(tMin, tMax, tSum, n)
		stats.Humidity = rangeStats(hMin, hMax, hSum, n)
	}
	return stats, nil
}

func rangeStats(lo, hi int32, sum, n int64) RangeStats {
	minV := float64(lo) / 100.0
	maxV := float64(hi) / 100.0
	avg := round2(float64(sum) / float64(n) / 100.0)
	return RangeStats{Min: &minV, Max: &maxV, Avg: &avg}
}

// ExportCSV writes matching readings newest first as CSV, header included.
// Limit and Offset are ignored.
func (db *DB) ExportCSV(w io.Writer, f ReadingFilter) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return 0, err
	}

	var rows []models.SensorReading
	err := db.bolt.View(func(tx *bolt.Tx) error {
		return eachDevice(tx, f, func(id uint64, dev *bolt.Bucket) error {
			return forEachDesc(dev, id, f, func(r models.SensorReading) bool {
				rows = append(rows, r)
				return true
			})
		})
	})
	if err != nil {
		return 0, errors.NewStorageError("export csv", err, bucketReadings)
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Timestamp > rows[j].Timestamp })

	for _, r := range rows {
		addr := ""
		if r.Address != 0 {
			addr = strconv.Itoa(int(r.Address))
		}
		if err := cw.Write([]string{
			strconv.FormatUint(r.DeviceID, 10),
			addr,
			strconv.FormatInt(r.Timestamp, 10),
			strconv.FormatFloat(r.TemperatureCelsius(), 'f', 2, 64),
			strconv.FormatFloat(r.HumidityPercent(), 'f', 2, 64),
			strconv.Itoa(int(r.Flags)),
		}); err != nil {
			return 0, err
		}
	}
	cw.Flush()
	return len(rows), cw.Error()
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
