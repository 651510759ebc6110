package models

import (
	"testing"
	"time"
)

func TestScheduleValidate(t *testing.T) {
	valid := Schedule{Index: 0, Hour: 14, Minute: 30, Duration: 900, Days: 127, Valve: 0}
	if problems := valid.Validate(); len(problems) != 0 {
		t.Errorf("Expected valid schedule, got %v", problems)
	}

	invalid := Schedule{Index: 8, Hour: 24, Minute: 60, Duration: 70000, Days: 128, Valve: -1}
	if problems := invalid.Validate(); len(problems) != 6 {
		t.Errorf("Expected 6 problems, got %d: %v", len(problems), problems)
	}
}

func TestHubDateTimeFrom(t *testing.T) {
	// 2026-10-11 is a Sunday
	sunday := time.Date(2026, time.October, 11, 7, 5, 9, 0, time.UTC)
	dt := HubDateTimeFrom(sunday)
	if dt.Weekday != 7 || dt.Year != 26 || dt.Month != 10 || dt.Day != 11 {
		t.Errorf("Unexpected conversion: %+v", dt)
	}
	if problems := dt.Validate(); len(problems) != 0 {
		t.Errorf("Converted datetime should validate, got %v", problems)
	}

	if problems := (HubDateTime{Month: 0, Day: 1, Weekday: 1}).Validate(); len(problems) != 1 {
		t.Errorf("Expected month problem only, got %v", problems)
	}
}

func TestReadingConversion(t *testing.T) {
	r := SensorReading{TemperatureCentidegrees: 2150, HumidityCentipercent: -5}
	if r.TemperatureCelsius() != 21.5 {
		t.Errorf("Expected 21.5, got %v", r.TemperatureCelsius())
	}
	if r.HumidityPercent() != -0.05 {
		t.Errorf("Expected -0.05, got %v", r.HumidityPercent())
	}
}
