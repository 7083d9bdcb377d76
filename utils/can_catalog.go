package utils

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Frame ids of the MegaSquirt "Simplified Dash" broadcast set. External
// dashboard hardware decodes exactly these ids with the layout below.
const (
	FrameDash0 uint32 = 1512
	FrameDash1 uint32 = 1513
	FrameDash2 uint32 = 1514
	FrameDash3 uint32 = 1515
	FrameDash4 uint32 = 1516
)

var dashFrameSignals = map[uint32][]string{
	FrameDash0: {"map", "rpm", "clt", "tps"},
	FrameDash1: {"pw1", "pw2", "mat", "adv_deg"},
	FrameDash2: {"afrtgt1", "AFR1", "egocor1", "egt1", "pwseq1"},
	FrameDash3: {"batt", "sensors1", "sensors2", "knk_rtd"},
	FrameDash4: {"VSS1", "tc_retard", "launch_timing"},
}

// SimplifiedDashCatalog returns the builtin catalog for the 20-signal
// simplified dash set. All signals are big-endian per the MegaSquirt DBC.
func SimplifiedDashCatalog() *Catalog {
	big := func(name string, start, length int, signed bool, factor, min, max, def float64, unit string) SignalDef {
		return SignalDef{
			Name: name, StartBit: start, BitLength: length, Signed: signed,
			Factor: factor, Min: min, Max: max, Default: def, Unit: unit,
			Endianness: "big",
		}
	}

	frames := []FrameDef{
		{ID: FrameDash0, Name: "megasquirt_dash0", DLC: 8, CycleMS: 20, Signals: []SignalDef{
			big("map", 7, 16, true, 0.1, 10, 260, 45, "kPa"),
			big("rpm", 23, 16, false, 1, 0, 8000, 900, "rpm"),
			big("clt", 39, 16, true, 0.1, -40, 320, 185, "degF"),
			big("tps", 55, 16, true, 0.1, 0, 100, 2, "%"),
		}},
		{ID: FrameDash1, Name: "megasquirt_dash1", DLC: 8, CycleMS: 20, Signals: []SignalDef{
			big("pw1", 7, 16, false, 0.001, 0, 30, 2.5, "ms"),
			big("pw2", 23, 16, false, 0.001, 0, 30, 2.5, "ms"),
			big("mat", 39, 16, true, 0.1, -40, 250, 86, "degF"),
			big("adv_deg", 55, 16, true, 0.1, -10, 50, 10, "deg"),
		}},
		{ID: FrameDash2, Name: "megasquirt_dash2", DLC: 8, CycleMS: 20, Signals: []SignalDef{
			big("afrtgt1", 7, 8, false, 0.1, 8, 20, 14.7, "AFR"),
			big("AFR1", 15, 8, false, 0.1, 8, 20, 14.7, "AFR"),
			big("egocor1", 23, 16, true, 0.1, 0, 200, 100, "%"),
			big("egt1", 39, 16, true, 0.1, 0, 2000, 500, "degF"),
			big("pwseq1", 55, 16, true, 0.001, 0, 30, 2.5, "ms"),
		}},
		{ID: FrameDash3, Name: "megasquirt_dash3", DLC: 8, CycleMS: 20, Signals: []SignalDef{
			big("batt", 7, 16, true, 0.1, 0, 20, 12.5, "V"),
			big("sensors1", 23, 16, true, 0.01, -327.68, 327.67, 0, ""),
			big("sensors2", 39, 16, true, 0.01, -327.68, 327.67, 0, ""),
			big("knk_rtd", 55, 8, false, 0.1, 0, 25.5, 0, "deg"),
		}},
		{ID: FrameDash4, Name: "megasquirt_dash4", DLC: 8, CycleMS: 20, Signals: []SignalDef{
			big("VSS1", 7, 16, false, 0.1, 0, 150, 0, "m/s"),
			big("tc_retard", 23, 16, true, 0.1, 0, 50, 0, "deg"),
			big("launch_timing", 39, 16, true, 0.1, -20, 50, 0, "deg"),
		}},
	}

	c := newCatalog()
	for i := range frames {
		fd := frames[i]
		c.ByID[fd.ID] = &frames[i]
		c.ByName[fd.Name] = &frames[i]
	}
	if err := c.finish(); err != nil {
		// The builtin tables are fixed at compile time.
		panic(err)
	}
	return c
}

// LoadCatalog reads a catalog CSV (one row per signal) and validates it.
func LoadCatalog(csvPath string) (*Catalog, error) {
	f, err := os.Open(csvPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, err
	}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}

	req := []string{
		"frame_id", "frame_name", "cycle_ms", "dlc",
		"signal_name", "start_bit", "bit_length", "endianness",
		"signed", "factor", "offset", "min", "max", "default", "unit", "comment",
	}
	for _, k := range req {
		if _, ok := idx[k]; !ok {
			return nil, fmt.Errorf("catalog csv missing required column: %q", k)
		}
	}

	c := newCatalog()
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		frameID, err := parseHexOrDecUint32(rec[idx["frame_id"]])
		if err != nil {
			return nil, fmt.Errorf("invalid frame_id %q: %w", rec[idx["frame_id"]], err)
		}

		frameName := strings.TrimSpace(rec[idx["frame_name"]])
		cycleMS := mustInt(rec[idx["cycle_ms"]])
		dlc := mustInt(rec[idx["dlc"]])
		if dlc <= 0 || dlc > 8 {
			return nil, fmt.Errorf("frame %s (0x%X): invalid dlc %d", frameName, frameID, dlc)
		}

		sig := SignalDef{
			Name:       strings.TrimSpace(rec[idx["signal_name"]]),
			StartBit:   mustInt(rec[idx["start_bit"]]),
			BitLength:  mustInt(rec[idx["bit_length"]]),
			Endianness: strings.TrimSpace(rec[idx["endianness"]]),
			Signed:     mustBool(rec[idx["signed"]]),
			Factor:     mustFloat(rec[idx["factor"]]),
			Offset:     mustFloat(rec[idx["offset"]]),
			Min:        mustFloat(rec[idx["min"]]),
			Max:        mustFloat(rec[idx["max"]]),
			Default:    mustFloat(rec[idx["default"]]),
			Unit:       strings.TrimSpace(rec[idx["unit"]]),
			Comment:    strings.TrimSpace(rec[idx["comment"]]),
		}

		fd, ok := c.ByID[frameID]
		if !ok {
			fd = &FrameDef{ID: frameID, Name: frameName, DLC: dlc, CycleMS: cycleMS}
			c.ByID[frameID] = fd
			c.ByName[frameName] = fd
		}
		if fd.DLC != dlc {
			return nil, fmt.Errorf("frame %s (0x%X) has inconsistent DLC (%d vs %d)", frameName, frameID, fd.DLC, dlc)
		}
		if err := validateSignal(fd, &sig); err != nil {
			return nil, err
		}
		fd.Signals = append(fd.Signals, sig)
	}

	if err := c.finish(); err != nil {
		return nil, err
	}
	return c, nil
}

// ValidateSimplifiedDash checks that a catalog carries exactly the simplified
// dash frame ids and that those frames partition the 20-signal set.
func ValidateSimplifiedDash(c *Catalog) error {
	if len(c.ByID) != len(dashFrameSignals) {
		return fmt.Errorf("expected %d frames, got %d", len(dashFrameSignals), len(c.ByID))
	}
	for id, want := range dashFrameSignals {
		fd, ok := c.ByID[id]
		if !ok {
			return fmt.Errorf("missing frame id %d", id)
		}
		if fd.DLC != 8 {
			return fmt.Errorf("frame %d: expected DLC 8, got %d", id, fd.DLC)
		}
		found := make(map[string]bool, len(fd.Signals))
		for i := range fd.Signals {
			found[fd.Signals[i].Name] = true
		}
		for _, name := range want {
			if !found[name] {
				return fmt.Errorf("frame %d missing signal %q", id, name)
			}
		}
		if len(found) != len(want) {
			return fmt.Errorf("frame %d carries %d signals, expected %d", id, len(found), len(want))
		}
	}
	return nil
}

func parseHexOrDecUint32(s string) (uint32, error) {
	ss := strings.TrimSpace(s)
	base := 10
	if strings.HasPrefix(ss, "0x") || strings.HasPrefix(ss, "0X") {
		base = 16
		ss = ss[2:]
	}
	u, err := strconv.ParseUint(ss, base, 32)
	if err != nil {
		return 0, err
	}
	return uint32(u), nil
}

func mustInt(s string) int {
	v, _ := strconv.Atoi(strings.TrimSpace(s))
	return v
}

func mustFloat(s string) float64 {
	v, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return v
}

func mustBool(s string) bool {
	ss := strings.TrimSpace(strings.ToLower(s))
	return ss == "true" || ss == "1" || ss == "yes"
}
