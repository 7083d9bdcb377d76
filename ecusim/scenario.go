package main

import "math"

// Generator computes the next set of physical signal values from elapsed run
// time. Generators are stateless beyond elapsed time, so a resumed run
// continues from the same phase basis rather than wall-clock absolute time.
type Generator func(t float64) map[string]float64

// generatorForMode resolves the closed mode enumeration to a generator.
// Custom rides on the idle base; the override overlay is applied by the run
// loop. Silent generates like loop but the run loop suppresses transmission.
func generatorForMode(m Mode) Generator {
	switch m {
	case ModeKOEO:
		return func(float64) map[string]float64 { return scenarioKOEO() }
	case ModeIdle:
		return scenarioIdle
	case ModePull:
		return scenarioPull
	case ModeCustom:
		return scenarioIdle
	default:
		return scenarioLoop
	}
}

// scenarioKOEO is key-on-engine-off: static sensor readings, no combustion.
func scenarioKOEO() map[string]float64 {
	return map[string]float64{
		"map":           100.0,
		"rpm":           0.0,
		"clt":           70.0,
		"tps":           0.5,
		"pw1":           0.0,
		"pw2":           0.0,
		"mat":           70.0,
		"adv_deg":       0.0,
		"afrtgt1":       14.7,
		"AFR1":          14.7,
		"egocor1":       100.0,
		"egt1":          200.0,
		"pwseq1":        0.0,
		"batt":          12.2,
		"sensors1":      0.0,
		"sensors2":      0.0,
		"knk_rtd":       0.0,
		"VSS1":          0.0,
		"tc_retard":     0.0,
		"launch_timing": 0.0,
	}
}

// scenarioIdle oscillates every channel gently around a warm idle baseline.
// MAP stays near barometric so a display-side boost (MAP-baro) reads ~zero.
func scenarioIdle(t float64) map[string]float64 {
	sin := func(hz float64) float64 { return math.Sin(2 * math.Pi * hz * t) }

	sRPM := sin(0.5)
	sTPS := sin(0.2)
	sMAP := sin(0.3)
	sBatt := sin(0.1)
	sAdv := sin(0.25)
	sPW := sin(0.4)
	sCLT := sin(0.03)
	sMAT := sin(0.05)
	sEGT := sin(0.2)
	sKnk := sin(0.15)

	return map[string]float64{
		"map":           100.0 + 1.0*sMAP,
		"rpm":           900.0 + 40.0*sRPM,
		"clt":           185.0 + 2.0*sCLT, // deg F
		"tps":           1.5 + 0.2*sTPS,
		"pw1":           2.5 + 0.15*sPW,
		"pw2":           2.5 + 0.15*sPW,
		"mat":           86.0 + 1.0*sMAT, // deg F
		"adv_deg":       12.0 + 2.0*sAdv,
		"afrtgt1":       14.7,
		"AFR1":          14.7,
		"egocor1":       100.0,
		"egt1":          500.0 + 30.0*sEGT, // deg F
		"pwseq1":        2.5 + 0.15*sPW,
		"batt":          14.0 - 0.05*sBatt,
		"sensors1":      280.0 + 10.0*sMAP,
		"sensors2":      90.0 + 2.0*sMAT,
		"knk_rtd":       math.Max(0.0, 0.5*sKnk),
		"VSS1":          0.0,
		"tc_retard":     0.0,
		"launch_timing": 0.0,
	}
}

// scenarioPull ramps to wide-open throttle over 5 seconds. MAP is reported
// absolute and climbs a few kPa over baro; AFR richens toward 12.5.
func scenarioPull(t float64) map[string]float64 {
	ramp := math.Min(math.Max(t/5.0, 0.0), 1.0)
	afr := 14.7 - 2.2*ramp

	return map[string]float64{
		"map":           100.0 + 10.0*ramp,
		"rpm":           1000.0 + 7000.0*ramp,
		"clt":           185.0 + 5.0*ramp,
		"tps":           2.0 + 93.0*ramp,
		"pw1":           3.0 + 8.0*ramp,
		"pw2":           3.0 + 8.0*ramp,
		"mat":           86.0 + 10.0*ramp,
		"adv_deg":       12.0 - 6.0*ramp,
		"afrtgt1":       afr,
		"AFR1":          afr,
		"egocor1":       100.0,
		"egt1":          520.0 + 650.0*ramp, // deg F
		"pwseq1":        3.0 + 8.0*ramp,
		"batt":          14.0 - 0.2*ramp,
		"sensors1":      100.0 + 120.0*ramp,
		"sensors2":      95.0 + 15.0*ramp,
		"knk_rtd":       0.0,
		"VSS1":          35.0 * ramp, // m/s
		"tc_retard":     0.0,
		"launch_timing": 0.0,
	}
}

// scenarioLoop cycles KOEO -> idle -> pull on a 15 second period.
func scenarioLoop(t float64) map[string]float64 {
	t15 := math.Mod(t, 15.0)
	switch {
	case t15 < 5.0:
		return scenarioKOEO()
	case t15 < 10.0:
		return scenarioIdle(t15 - 5.0)
	default:
		return scenarioPull(t15 - 10.0)
	}
}
