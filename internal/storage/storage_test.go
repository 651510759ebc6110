package storage

import (
	"bytes"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/erikbeerepoot/bramble/internal/errors"
	"github.com/erikbeerepoot/bramble/internal/logger"
	"github.com/erikbeerepoot/bramble/internal/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "sensor_data.db"), logger.NewMockLogger())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func reading(dev uint64, addr uint16, ts int64, temp, hum int32) models.SensorReading {
	return models.SensorReading{
		DeviceID:                dev,
		Address:                 addr,
		Timestamp:               ts,
		TemperatureCentidegrees: temp,
		HumidityCentipercent:    hum,
	}
}

func ptr[T any](v T) *T { return &v }

func TestInsertBatchDuplicateIsNoop(t *testing.T) {
	db := openTestDB(t)
	r := reading(42, 3, 1760000000, 2150, 4500)

	inserted, duplicates, err := db.InsertBatch([]models.SensorReading{r})
	if err != nil || inserted != 1 || duplicates != 0 {
		t.Fatalf("First insert = (%d, %d, %v)", inserted, duplicates, err)
	}
	inserted, duplicates, err = db.InsertBatch([]models.SensorReading{r})
	if err != nil || inserted != 0 || duplicates != 1 {
		t.Fatalf("Second insert = (%d, %d, %v), want (0, 1, nil)", inserted, duplicates, err)
	}

	count, err := db.ReadingCount(ReadingFilter{DeviceID: ptr(uint64(42))})
	if err != nil || count != 1 {
		t.Errorf("Expected exactly one stored reading, got %d (%v)", count, err)
	}
	rec, err := db.NodeRecord(42)
	if err != nil || rec.TotalReadings != 1 {
		t.Errorf("Duplicate must not count towards node stats: %+v %v", rec, err)
	}
}

func TestInsertBatchUpdatesNodeStats(t *testing.T) {
	db := openTestDB(t)
	_, _, err := db.InsertBatch([]models.SensorReading{
		reading(42, 3, 1760000100, 2150, 4500),
		reading(42, 3, 1760000000, 2100, 4400),
	})
	if err != nil {
		t.Fatal(err)
	}
	_, _, _ = db.InsertBatch([]models.SensorReading{reading(42, 7, 1760000200, 2200, 4600)})

	rec, err := db.NodeRecord(42)
	if err != nil {
		t.Fatal(err)
	}
	if rec.FirstSeenAt != 1760000000 || rec.LastSeenAt != 1760000200 || rec.TotalReadings != 3 {
		t.Errorf("Unexpected node stats %+v", rec)
	}
	if rec.Address != 7 {
		t.Errorf("Expected address updated to 7, got %d", rec.Address)
	}

	id, found, err := db.ResolveDevice(7)
	if err != nil || !found || id != 42 {
		t.Errorf("ResolveDevice(7) = (%d, %v, %v)", id, found, err)
	}
	if _, found, _ := db.ResolveDevice(3); found {
		t.Error("Old address should no longer resolve")
	}
}

func TestQueryReadingsNewestFirst(t *testing.T) {
	db := openTestDB(t)
	_, _, _ = db.InsertBatch([]models.SensorReading{
		reading(1, 1, 100, 1000, 1000),
		reading(1, 1, 300, 1000, 1000),
		reading(2, 2, 200, 1000, 1000),
		reading(2, 2, 400, 1000, 1000),
	})

	all, err := db.QueryReadings(ReadingFilter{})
	if err != nil {
		t.Fatal(err)
	}
	var got []int64
	for _, r := range all {
		got = append(got, r.Timestamp)
	}
	want := []int64{400, 300, 200, 100}
	for i := range want {
		if i >= len(got) || got[i] != want[i] {
			t.Fatalf("Expected %v, got %v", want, got)
		}
	}

	page, _ := db.QueryReadings(ReadingFilter{Limit: 2, Offset: 1})
	if len(page) != 2 || page[0].Timestamp != 300 || page[1].Timestamp != 200 {
		t.Errorf("Unexpected page %+v", page)
	}

	ranged, _ := db.QueryReadings(ReadingFilter{DeviceID: ptr(uint64(1)), Start: ptr(int64(150)), End: ptr(int64(350))})
	if len(ranged) != 1 || ranged[0].Timestamp != 300 {
		t.Errorf("Unexpected range result %+v", ranged)
	}

	latest, err := db.LatestReading(2)
	if err != nil || latest.Timestamp != 400 {
		t.Errorf("LatestReading = %+v, %v", latest, err)
	}
	if _, err := db.LatestReading(99); !stderrors.Is(err, errors.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestQueryDownsampled(t *testing.T) {
	db := openTestDB(t)
	_, _, _ = db.InsertBatch([]models.SensorReading{
		reading(1, 1, 1000, 2000, 4000),
		reading(1, 1, 1040, 2200, 4200),
		reading(1, 1, 1110, 3000, 5000),
	})

	points, err := db.QueryDownsampled(1, 1000, 1200, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(points) != 2 {
		t.Fatalf("Expected 2 buckets, got %+v", points)
	}
	if points[0].Timestamp != 1050 || points[0].SampleCount != 2 || points[0].TemperatureCelsius != 21.0 || points[0].HumidityPercent != 41.0 {
		t.Errorf("Unexpected first bucket %+v", points[0])
	}
	if points[1].Timestamp != 1150 || points[1].SampleCount != 1 || points[1].TemperatureCelsius != 30.0 {
		t.Errorf("Unexpected second bucket %+v", points[1])
	}

	if empty, _ := db.QueryDownsampled(1, 1200, 1000, 10); len(empty) != 0 {
		t.Errorf("Inverted range should be empty, got %+v", empty)
	}
}

func TestStatistics(t *testing.T) {
	db := openTestDB(t)
	_, _, _ = db.InsertBatch([]models.SensorReading{
		reading(5, 5, 100, 1000, 3000),
		reading(5, 5, 200, 3000, 5000),
	})

	stats, err := db.Statistics(5, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if stats.ReadingCount != 2 || *stats.Temperature.Min != 10.0 || *stats.Temperature.Max != 30.0 || *stats.Humidity.Avg != 40.0 {
		t.Errorf("Unexpected stats %+v", stats)
	}

	if _, err := db.Statistics(6, nil, nil); !stderrors.Is(err, errors.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown node, got %v", err)
	}
}

func TestExportCSV(t *testing.T) {
	db := openTestDB(t)
	_, _, _ = db.InsertBatch([]models.SensorReading{
		reading(42, 3, 100, 2150, 4525),
		{DeviceID: 42, Address: 3, Timestamp: 200, TemperatureCentidegrees: -50, HumidityCentipercent: 9999, Flags: 2},
	})

	var buf bytes.Buffer
	n, err := db.ExportCSV(&buf, ReadingFilter{})
	if err != nil || n != 2 {
		t.Fatalf("ExportCSV = (%d, %v)", n, err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	want := []string{
		"device_id,address,timestamp,temperature_celsius,humidity_percent,flags",
		"42,3,200,-0.50,99.99,2",
		"42,3,100,21.50,45.25,0",
	}
	if len(lines) != len(want) {
		t.Fatalf("Expected %d lines, got %q", len(want), lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestDeleteNodeCascades(t *testing.T) {
	db := openTestDB(t)
	_, _, _ = db.InsertBatch([]models.SensorReading{reading(42, 3, 100, 2150, 4500)})
	if _, err := db.UpdateNodeMetadata(42, MetadataUpdate{Name: ptr("greenhouse")}); err != nil {
		t.Fatal(err)
	}
	if err := db.RecordNodeStatus(models.NodeStatus{DeviceID: 42, Address: 3, ErrorFlags: 1, UpdatedAt: 100}); err != nil {
		t.Fatal(err)
	}

	if err := db.DeleteNode(42); err != nil {
		t.Fatalf("DeleteNode failed: %v", err)
	}

	if _, err := db.NodeRecord(42); !stderrors.Is(err, errors.ErrNotFound) {
		t.Error("Node record should be gone")
	}
	if _, err := db.NodeMetadata(42); !stderrors.Is(err, errors.ErrNotFound) {
		t.Error("Metadata should be gone")
	}
	if _, err := db.NodeStatus(42); !stderrors.Is(err, errors.ErrNotFound) {
		t.Error("Status should be gone")
	}
	if count, _ := db.ReadingCount(ReadingFilter{}); count != 0 {
		t.Errorf("Readings should be gone, %d left", count)
	}
	if hist, _ := db.StatusHistory(42, 0, 1000); len(hist) != 0 {
		t.Error("Status history should be gone")
	}
	if err := db.DeleteNode(42); !stderrors.Is(err, errors.ErrNotFound) {
		t.Errorf("Second delete should report not found, got %v", err)
	}
}

func TestMetadataAndZones(t *testing.T) {
	db := openTestDB(t)

	zone, err := db.CreateZone("Greenhouse", "#00ff00", nil)
	if err != nil || zone.ID != 1 {
		t.Fatalf("CreateZone = %+v, %v", zone, err)
	}

	md, err := db.UpdateNodeMetadata(7, MetadataUpdate{Name: ptr("bed 1"), ZoneID: ptr(zone.ID)})
	if err != nil || *md.Name != "bed 1" || *md.ZoneID != zone.ID {
		t.Fatalf("UpdateNodeMetadata = %+v, %v", md, err)
	}

	// Partial update keeps untouched fields
	md, _ = db.UpdateNodeMetadata(7, MetadataUpdate{Notes: ptr("drip line")})
	if *md.Name != "bed 1" || *md.Notes != "drip line" {
		t.Errorf("Expected name preserved, got %+v", md)
	}

	if _, err := db.UpdateNodeMetadata(7, MetadataUpdate{ZoneID: ptr(99)}); !stderrors.Is(err, errors.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown zone, got %v", err)
	}

	updated, err := db.UpdateZone(zone.ID, ZoneUpdate{Color: ptr("#0000ff")})
	if err != nil || updated.Color != "#0000ff" || updated.Name != "Greenhouse" {
		t.Errorf("UpdateZone = %+v, %v", updated, err)
	}

	if err := db.DeleteZone(zone.ID); err != nil {
		t.Fatal(err)
	}
	md, _ = db.NodeMetadata(7)
	if md.ZoneID != nil {
		t.Errorf("Deleting a zone should unzone its nodes, got %v", *md.ZoneID)
	}
	if zones, _ := db.ListZones(); len(zones) != 0 {
		t.Errorf("Expected no zones, got %+v", zones)
	}
	if err := db.DeleteZone(zone.ID); !stderrors.Is(err, errors.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestStatusHistoryOnlyOnFlagChange(t *testing.T) {
	db := openTestDB(t)
	for i, flags := range []uint32{0, 0, 4, 4, 0} {
		s := models.NodeStatus{DeviceID: 9, Address: 2, ErrorFlags: flags, BatteryLevel: 90 - i, UpdatedAt: int64(100 + i)}
		if err := db.RecordNodeStatus(s); err != nil {
			t.Fatal(err)
		}
	}

	latest, err := db.NodeStatus(9)
	if err != nil || latest.BatteryLevel != 86 {
		t.Errorf("Latest status = %+v, %v", latest, err)
	}

	hist, err := db.StatusHistory(9, 0, time.Now().Unix())
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 3 || hist[0].ErrorFlags != 0 || hist[1].ErrorFlags != 4 || hist[2].ErrorFlags != 0 {
		t.Errorf("Expected 3 history entries on change, got %+v", hist)
	}

	windowed, _ := db.StatusHistory(9, 101, 103)
	if len(windowed) != 1 || windowed[0].UpdatedAt != 102 {
		t.Errorf("Unexpected windowed history %+v", windowed)
	}
}

func TestWriteBackupRestores(t *testing.T) {
	db := openTestDB(t)
	if _, _, err := db.InsertBatch([]models.SensorReading{reading(9, 4, 100, 2000, 5000)}); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	n, err := db.WriteBackup(&buf)
	if err != nil || n == 0 || int64(buf.Len()) != n {
		t.Fatalf("WriteBackup returned %d bytes, err %v", n, err)
	}

	path := filepath.Join(t.TempDir(), "restored.db")
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatal(err)
	}
	restored, err := Open(path, logger.NewMockLogger())
	if err != nil {
		t.Fatalf("Open backup failed: %v", err)
	}
	defer restored.Close()
	if count, _ := restored.ReadingCount(ReadingFilter{}); count != 1 {
		t.Errorf("Expected 1 reading in the backup, got %d", count)
	}
}
