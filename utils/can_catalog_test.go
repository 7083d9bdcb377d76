package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinCatalogIsValid(t *testing.T) {
	c := SimplifiedDashCatalog()
	require.NoError(t, ValidateSimplifiedDash(c))

	assert.Len(t, c.BySignal, 20)
	assert.Len(t, c.Frames(), 5)

	// Canonical signal ordering: frame id, then bit position.
	names := c.SignalNames()
	require.Len(t, names, 20)
	assert.Equal(t, "map", names[0])
	assert.Equal(t, "rpm", names[1])
	assert.Equal(t, "launch_timing", names[19])
}

func TestLoadCatalogMatchesBuiltin(t *testing.T) {
	loaded, err := LoadCatalog(filepath.Join("..", "config", "can", "ms_dash_map.csv"))
	require.NoError(t, err)
	require.NoError(t, ValidateSimplifiedDash(loaded))

	want := SimplifiedDashCatalog().Frames()
	got := loaded.Frames()
	require.Len(t, got, len(want))

	// The CSV carries per-signal comments the builtin tables omit.
	opts := cmpopts.IgnoreFields(SignalDef{}, "Comment")
	for i := range want {
		if diff := cmp.Diff(*want[i], *got[i], opts); diff != "" {
			t.Errorf("frame 0x%X mismatch (-builtin +csv):\n%s", want[i].ID, diff)
		}
	}
}

func writeTempCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadCatalogMissingColumn(t *testing.T) {
	path := writeTempCatalog(t, "frame_id,frame_name,cycle_ms,dlc,signal_name\n")
	_, err := LoadCatalog(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required column")
}

func TestLoadCatalogRejectsBadRows(t *testing.T) {
	header := "frame_id,frame_name,cycle_ms,dlc,signal_name,start_bit,bit_length,endianness,signed,factor,offset,min,max,default,unit,comment\n"

	cases := []struct {
		name string
		row  string
	}{
		{"bad dlc", "0x5E8,dash0,20,12,rpm,7,16,big,false,1,0,0,8000,900,rpm,\n"},
		{"zero factor", "0x5E8,dash0,20,8,rpm,7,16,big,false,0,0,0,8000,900,rpm,\n"},
		{"empty range", "0x5E8,dash0,20,8,rpm,7,16,big,false,1,0,8000,0,900,rpm,\n"},
		{"bad endianness", "0x5E8,dash0,20,8,rpm,7,16,middle,false,1,0,0,8000,900,rpm,\n"},
		{"start bit outside frame", "0x5E8,dash0,20,8,rpm,64,16,big,false,1,0,0,8000,900,rpm,\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeTempCatalog(t, header+tc.row)
			_, err := LoadCatalog(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadCatalogRejectsOverlappingSignals(t *testing.T) {
	header := "frame_id,frame_name,cycle_ms,dlc,signal_name,start_bit,bit_length,endianness,signed,factor,offset,min,max,default,unit,comment\n"
	// rpm occupies bytes 0..1; clt starting at bit 15 claims byte 1 again.
	rows := "0x5E8,dash0,20,8,rpm,7,16,big,false,1,0,0,8000,900,rpm,\n" +
		"0x5E8,dash0,20,8,clt,15,16,big,true,0.1,0,-40,320,185,degF,\n"
	path := writeTempCatalog(t, header+rows)
	_, err := LoadCatalog(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overlap")
}

func TestLoadCatalogRejectsDuplicateSignal(t *testing.T) {
	header := "frame_id,frame_name,cycle_ms,dlc,signal_name,start_bit,bit_length,endianness,signed,factor,offset,min,max,default,unit,comment\n"
	rows := "0x5E8,dash0,20,8,rpm,7,16,big,false,1,0,0,8000,900,rpm,\n" +
		"0x5E9,dash1,20,8,rpm,7,16,big,false,1,0,0,8000,900,rpm,\n"
	path := writeTempCatalog(t, header+rows)
	_, err := LoadCatalog(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "more than one frame")
}

func TestValidateSimplifiedDashCatchesDrift(t *testing.T) {
	c := SimplifiedDashCatalog()
	delete(c.ByID, FrameDash4)
	assert.Error(t, ValidateSimplifiedDash(c))
}

func TestCatalogLookups(t *testing.T) {
	c := SimplifiedDashCatalog()

	sig, err := c.LookupSignal("rpm")
	require.NoError(t, err)
	assert.Equal(t, 23, sig.StartBit)
	assert.Equal(t, 16, sig.BitLength)
	assert.False(t, sig.Signed)

	_, err = c.LookupSignal("boost")
	assert.ErrorIs(t, err, ErrUnknownSignal)

	fd, err := c.FrameByName("megasquirt_dash3")
	require.NoError(t, err)
	assert.Equal(t, FrameDash3, fd.ID)

	defaults := c.Defaults()
	assert.Equal(t, 12.5, defaults["batt"])
	assert.Equal(t, 14.7, defaults["AFR1"])
}
