package catalog

import (
	"math"
	"testing"
)

func TestResetAppliesDefaults(t *testing.T) {
	var c Catalog
	c.Reset()
	for i, m := range c.Modes {
		if m.RawMax != 1023.0 || m.PctMax != 100.0 || m.SIMax != 1.0 || m.Figures != 4 {
			t.Errorf("mode %d defaults = %+v, want raw_max=1023 pct_max=100 si_max=1 figures=4", i, m)
		}
	}
}

func TestRecordModesRejectsDuplicate(t *testing.T) {
	var c Catalog
	c.Reset()
	if err := c.RecordModes(1, 1); err != nil {
		t.Fatalf("first RecordModes: %v", err)
	}
	if err := c.RecordModes(1, 1); err == nil {
		t.Error("second RecordModes should fail as a duplicate")
	}
}

func TestRecordModesRangeValidation(t *testing.T) {
	var c Catalog
	c.Reset()
	if err := c.RecordModes(0, 1); err == nil {
		t.Error("num_modes=0 should be rejected")
	}
	c.Reset()
	if err := c.RecordModes(9, 1); err == nil {
		t.Error("num_modes=9 should be rejected")
	}
}

func TestRecordSpeedRange(t *testing.T) {
	var c Catalog
	c.Reset()
	baud, accepted, err := c.RecordSpeed(9600)
	if err != nil || !accepted || baud != 9600 {
		t.Fatalf("RecordSpeed(9600) = (%d, %v, %v)", baud, accepted, err)
	}
	c.Reset()
	_, accepted, err = c.RecordSpeed(100)
	if err != nil {
		t.Fatalf("out-of-range speed should not error: %v", err)
	}
	if accepted {
		t.Error("out-of-range speed should not be accepted")
	}
}

func TestRecordSpeedDuplicate(t *testing.T) {
	var c Catalog
	c.Reset()
	if _, _, err := c.RecordSpeed(9600); err != nil {
		t.Fatal(err)
	}
	if _, _, err := c.RecordSpeed(9600); err == nil {
		t.Error("duplicate CMD_SPEED should fail")
	}
}

func TestNameRequiredBeforeFormat(t *testing.T) {
	var c Catalog
	c.Reset()
	c.RecordModes(1, 1)
	if _, err := c.RecordFormat(0, 1, FormatS8, 4, 0); err == nil {
		t.Error("RecordFormat before RecordName should fail")
	}
}

func TestFormatDecrementsCurrentModeWhenNonzero(t *testing.T) {
	var c Catalog
	c.Reset()
	c.RecordModes(2, 2)
	if err := c.RecordName(1, "B"); err != nil {
		t.Fatal(err)
	}
	decrement, err := c.RecordFormat(1, 1, FormatS8, 4, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !decrement || c.CurrentMode != 0 {
		t.Errorf("expected decrement to mode 0, got decrement=%v CurrentMode=%d", decrement, c.CurrentMode)
	}

	if err := c.RecordName(0, "A"); err != nil {
		t.Fatal(err)
	}
	decrement, err = c.RecordFormat(0, 1, FormatS8, 4, 0)
	if err != nil {
		t.Fatal(err)
	}
	if decrement {
		t.Error("mode 0's FORMAT must not decrement further")
	}
}

func TestDuplicateInfoWithinModeFails(t *testing.T) {
	var c Catalog
	c.Reset()
	c.RecordModes(1, 1)
	if err := c.RecordName(0, "A"); err != nil {
		t.Fatal(err)
	}
	if err := c.RecordRaw(0, 0, 1023); err != nil {
		t.Fatal(err)
	}
	if err := c.RecordRaw(0, 0, 1023); err == nil {
		t.Error("duplicate INFO_RAW within the same mode should fail")
	}
}

func TestRecordNameResetsPerModeFlags(t *testing.T) {
	var c Catalog
	c.Reset()
	c.RecordModes(1, 1)
	if err := c.RecordName(0, "A"); err != nil {
		t.Fatal(err)
	}
	if err := c.RecordRaw(0, 0, 1023); err != nil {
		t.Fatal(err)
	}
	// A second NAME for the same mode clears the set-once optional
	// flags, so RAW can legitimately arrive again.
	if err := c.RecordName(0, "A"); err != nil {
		t.Fatal(err)
	}
	if err := c.RecordRaw(0, 0, 1023); err != nil {
		t.Errorf("RAW after a fresh NAME should be accepted: %v", err)
	}
}

func TestRequiredCompleteGatesOnAllFour(t *testing.T) {
	var c Catalog
	c.Reset()
	if c.RequiredComplete() {
		t.Fatal("empty catalog should not be required-complete")
	}
	c.RecordType()
	c.RecordModes(1, 1)
	c.RecordName(0, "A")
	if c.RequiredComplete() {
		t.Error("should still be missing INFO_FORMAT")
	}
	if _, err := c.RecordFormat(0, 1, FormatS8, 4, 0); err != nil {
		t.Fatal(err)
	}
	if !c.RequiredComplete() {
		t.Error("all four required records observed, expected RequiredComplete() == true")
	}
}

func TestInfoForWrongModeRejected(t *testing.T) {
	var c Catalog
	c.Reset()
	c.RecordModes(2, 2)
	c.RecordName(1, "B")
	if err := c.RecordRaw(0, 0, 1023); err == nil {
		t.Error("INFO_RAW for a mode other than CurrentMode should fail")
	}
}

func TestScaleLinearInterpolation(t *testing.T) {
	m := ModeInfo{RawMin: 0, RawMax: 1023, PctMin: 0, PctMax: 100, SIMin: 0, SIMax: 5}
	if got := m.Scale(511.5, UnitPct); math.Abs(got-50.0) > 0.1 {
		t.Errorf("Scale(511.5, pct) = %v, want ~50", got)
	}
	if got := m.Scale(1023, UnitSI); math.Abs(got-5.0) > 0.01 {
		t.Errorf("Scale(1023, si) = %v, want 5", got)
	}
	if got := m.Scale(42, UnitRaw); got != 42 {
		t.Errorf("Scale(_, raw) = %v, want unchanged 42", got)
	}
}

func TestFtoi(t *testing.T) {
	bits := math.Float32bits(3.14159)
	if got := Ftoi(bits, 2); got != 314 {
		t.Errorf("Ftoi(3.14159, 2) = %d, want 314", got)
	}
	bits = math.Float32bits(-2.5)
	if got := Ftoi(bits, 0); got != -3 && got != -2 {
		// round-half-to-even vs round-half-away-from-zero both acceptable
		t.Errorf("Ftoi(-2.5, 0) = %d, want -2 or -3", got)
	}
}
