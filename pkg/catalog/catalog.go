// Package catalog builds and holds the per-sensor mode metadata table
// discovered during the EV3-UART handshake (spec.md §3, §4.4 Collecting
// phase). It owns the required/optional record bookkeeping and the
// fixed-point conversion used to turn a DATA sample into an integer.
package catalog

import (
	"fmt"
	"math"
)

// MaxModes is the number of mode slots a sensor may declare (spec.md §3).
const MaxModes = 8

// Flags is the info_flags bitset tracking which handshake records have
// been observed, per spec.md §3 and §4.4.
type Flags uint16

const (
	FlagCmdType Flags = 1 << iota
	FlagCmdModes
	FlagCmdSpeed
	FlagInfoName
	FlagInfoFormat
	FlagInfoRaw
	FlagInfoPct
	FlagInfoSI
	FlagInfoUnits
)

// Required is the set that must be observed before the handshake can
// be acknowledged (spec.md §4.4, "Required info set").
const Required = FlagCmdType | FlagCmdModes | FlagInfoName | FlagInfoFormat

// perModeResettable is cleared whenever a new INFO_NAME record for a
// mode arrives; it is the set-once group subject to duplicate
// detection within a single mode (spec.md §4.4, "Duplicate record
// policy").
const perModeResettable = FlagInfoRaw | FlagInfoPct | FlagInfoSI | FlagInfoUnits | FlagInfoFormat

// Format mirrors wire.Format to avoid catalog depending on the wire
// package's header-packing concerns; the two are kept numerically
// identical by convention.
type Format uint8

const (
	FormatS8 Format = iota
	FormatS16
	FormatS32
	FormatFloat
)

// Unit selects which scaling range Scale interpolates into.
type Unit int

const (
	UnitRaw Unit = iota
	UnitPct
	UnitSI
)

// ModeInfo holds one mode's metadata, per spec.md §3.
type ModeInfo struct {
	Name     string
	RawMin   float32
	RawMax   float32
	PctMin   float32
	PctMax   float32
	SIMin    float32
	SIMax    float32
	Units    string
	DataSets int
	Format   Format
	Figures  int
	Decimals int
	RawData  [32]byte

	flags Flags // per-mode subset of Flags used for duplicate detection
}

func (m *ModeInfo) reset() {
	*m = ModeInfo{
		RawMax:  1023.0,
		PctMax:  100.0,
		SIMax:   1.0,
		Figures: 4,
	}
}

// Scale linearly rescales a raw sample value into the pct or SI range
// declared for this mode (spec.md §9 "Per-mode raw/pct/si scaling
// accessor"). Requesting UnitRaw returns raw unchanged.
func (m *ModeInfo) Scale(raw float64, target Unit) float64 {
	if target == UnitRaw {
		return raw
	}
	rawSpan := float64(m.RawMax) - float64(m.RawMin)
	if rawSpan == 0 {
		return 0
	}
	frac := (raw - float64(m.RawMin)) / rawSpan
	switch target {
	case UnitPct:
		return float64(m.PctMin) + frac*(float64(m.PctMax)-float64(m.PctMin))
	case UnitSI:
		return float64(m.SIMin) + frac*(float64(m.SIMax)-float64(m.SIMin))
	default:
		return raw
	}
}

// Catalog is the per-sensor mode table plus the session-wide info_flags
// bitset and current-mode pointer used while collecting the handshake.
type Catalog struct {
	Modes        [MaxModes]ModeInfo
	NumModes     int
	NumViewModes int
	CurrentMode  int

	flags Flags
}

// Reset restores all mode slots to their power-on defaults and clears
// every flag, called when the Sync Scanner (re)synchronizes.
func (c *Catalog) Reset() {
	for i := range c.Modes {
		c.Modes[i].reset()
	}
	c.NumModes = 0
	c.NumViewModes = 0
	c.CurrentMode = 0
	c.flags = 0
}

// RecordType marks CMD_TYPE as observed.
func (c *Catalog) RecordType() {
	c.flags |= FlagCmdType
}

// RecordModes stores CMD_MODES. Returns an error on out-of-range
// counts or a duplicate delivery.
func (c *Catalog) RecordModes(numModes, numViewModes int) error {
	if c.flags&FlagCmdModes != 0 {
		return fmt.Errorf("catalog: duplicate CMD_MODES")
	}
	if numModes < 1 || numModes > MaxModes {
		return fmt.Errorf("catalog: num_modes %d out of range [1, %d]", numModes, MaxModes)
	}
	if numViewModes < 1 || numViewModes > MaxModes {
		return fmt.Errorf("catalog: num_view_modes %d out of range [1, %d]", numViewModes, MaxModes)
	}
	c.NumModes = numModes
	c.NumViewModes = numViewModes
	c.flags |= FlagCmdModes
	return nil
}

// RecordSpeed validates and stores CMD_SPEED's requested baud rate.
// Returns the baud rate and nil error to accept (silently keeping
// whatever baud was already set if the value is out of range, per
// spec.md §4.4's "record new_baud_rate if ∈ [2400, 460800]"), or an
// error for a duplicate delivery.
func (c *Catalog) RecordSpeed(baud int) (int, bool, error) {
	if c.flags&FlagCmdSpeed != 0 {
		return 0, false, fmt.Errorf("catalog: duplicate CMD_SPEED")
	}
	c.flags |= FlagCmdSpeed
	if baud < 2400 || baud > 460800 {
		return 0, false, nil
	}
	return baud, true, nil
}

// RecordName stores an INFO_NAME record, resets the addressed mode's
// set-once optional flags, and advances CurrentMode to it.
func (c *Catalog) RecordName(mode int, name string) error {
	if mode < 0 || mode >= MaxModes {
		return fmt.Errorf("catalog: mode index %d out of range", mode)
	}
	c.Modes[mode].flags &^= perModeResettable
	c.Modes[mode].flags |= FlagInfoName
	c.Modes[mode].Name = name
	c.CurrentMode = mode
	c.flags |= FlagInfoName
	return nil
}

// RecordRaw stores an INFO_RAW record for the current mode.
func (c *Catalog) RecordRaw(mode int, min, max float32) error {
	if err := c.requireCurrentMode(mode); err != nil {
		return err
	}
	if c.Modes[mode].flags&FlagInfoRaw != 0 {
		return fmt.Errorf("catalog: duplicate INFO_RAW for mode %d", mode)
	}
	c.Modes[mode].RawMin, c.Modes[mode].RawMax = min, max
	c.Modes[mode].flags |= FlagInfoRaw
	c.flags |= FlagInfoRaw
	return nil
}

// RecordPct stores an INFO_PCT record for the current mode.
func (c *Catalog) RecordPct(mode int, min, max float32) error {
	if err := c.requireCurrentMode(mode); err != nil {
		return err
	}
	if c.Modes[mode].flags&FlagInfoPct != 0 {
		return fmt.Errorf("catalog: duplicate INFO_PCT for mode %d", mode)
	}
	c.Modes[mode].PctMin, c.Modes[mode].PctMax = min, max
	c.Modes[mode].flags |= FlagInfoPct
	c.flags |= FlagInfoPct
	return nil
}

// RecordSI stores an INFO_SI record for the current mode.
func (c *Catalog) RecordSI(mode int, min, max float32) error {
	if err := c.requireCurrentMode(mode); err != nil {
		return err
	}
	if c.Modes[mode].flags&FlagInfoSI != 0 {
		return fmt.Errorf("catalog: duplicate INFO_SI for mode %d", mode)
	}
	c.Modes[mode].SIMin, c.Modes[mode].SIMax = min, max
	c.Modes[mode].flags |= FlagInfoSI
	c.flags |= FlagInfoSI
	return nil
}

// RecordUnits stores an INFO_UNITS record for the current mode.
func (c *Catalog) RecordUnits(mode int, units string) error {
	if err := c.requireCurrentMode(mode); err != nil {
		return err
	}
	if c.Modes[mode].flags&FlagInfoUnits != 0 {
		return fmt.Errorf("catalog: duplicate INFO_UNITS for mode %d", mode)
	}
	c.Modes[mode].Units = units
	c.Modes[mode].flags |= FlagInfoUnits
	c.flags |= FlagInfoUnits
	return nil
}

// RecordFormat stores an INFO_FORMAT record for the current mode. When
// the mode is above 0 it decrements CurrentMode itself and reports
// true; for mode 0 it leaves CurrentMode as is and reports false, per
// spec.md §4.4's FORMAT-handler quirk ("if current_mode > 0,
// decrement it").
func (c *Catalog) RecordFormat(mode, dataSets int, format Format, figures, decimals int) (decrementMode bool, err error) {
	if err := c.requireCurrentMode(mode); err != nil {
		return false, err
	}
	if c.flags&FlagCmdModes == 0 {
		return false, fmt.Errorf("catalog: INFO_FORMAT before CMD_MODES")
	}
	if c.Modes[mode].flags&FlagInfoName == 0 {
		return false, fmt.Errorf("catalog: INFO_FORMAT for mode %d before INFO_NAME", mode)
	}
	if c.Modes[mode].flags&FlagInfoFormat != 0 {
		return false, fmt.Errorf("catalog: duplicate INFO_FORMAT for mode %d", mode)
	}
	if dataSets < 1 || dataSets > 32 {
		return false, fmt.Errorf("catalog: data_sets %d out of range [1, 32]", dataSets)
	}
	c.Modes[mode].DataSets = dataSets
	c.Modes[mode].Format = format
	c.Modes[mode].Figures = figures
	c.Modes[mode].Decimals = decimals
	c.Modes[mode].flags |= FlagInfoFormat | FlagInfoName
	c.flags |= FlagInfoFormat

	if mode > 0 {
		c.CurrentMode = mode - 1
		return true, nil
	}
	return false, nil
}

func (c *Catalog) requireCurrentMode(mode int) error {
	if mode < 0 || mode >= MaxModes {
		return fmt.Errorf("catalog: mode index %d out of range", mode)
	}
	if mode != c.CurrentMode {
		return fmt.Errorf("catalog: INFO record for mode %d while collecting mode %d", mode, c.CurrentMode)
	}
	return nil
}

// RequiredComplete reports whether every bit in Required has been
// observed and at least one mode was declared.
func (c *Catalog) RequiredComplete() bool {
	return c.flags&Required == Required && c.NumModes > 0
}

// Ftoi converts a little-endian IEEE-754 float32 bit pattern into a
// fixed-point integer rounded to decimals fractional digits, per
// spec.md §4.4's value semantics.
func Ftoi(bits uint32, decimals int) int32 {
	f := math.Float32frombits(bits)
	scale := math.Pow(10, float64(decimals))
	return int32(math.Round(float64(f) * scale))
}
