package blackbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/droneworks/pidtune/internal/flight"
)

const sampleHeader = `loopIteration, time (us), axisP[0], axisP[1], axisP[2], axisI[0], axisI[1], axisI[2], axisD[0], axisD[1], axisD[2], rcCommand[0], rcCommand[1], rcCommand[2], rcCommand[3], setpoint[0], setpoint[1], setpoint[2], gyroADC[0], gyroADC[1], gyroADC[2]`

func sampleRow(us int, thr, sp, gy float64) string {
	return fmt.Sprintf("0, %d, 1, 2, 3, 4, 5, 6, 7, 8, 9, 1500, 1500, 1500, %g, %g, 0, 0, %g, 0, 0",
		us, thr, sp, gy)
}

func sampleLog(rows ...string) string {
	return sampleHeader + "\n" + strings.Join(rows, "\n") + "\n"
}

func TestParseCSV_Valid(t *testing.T) {
	data := sampleLog(
		sampleRow(1_000_000, 1500, 120, 118.5),
		sampleRow(1_001_000, 1500, 120, 119),
		sampleRow(1_002_000, 1510, 121, 119.5),
	)

	ts, err := parseCSV(strings.NewReader(data), "test.csv")
	require.NoError(t, err)

	assert.Equal(t, 3, ts.Len())
	assert.Equal(t, 0.0, ts.Time[0], "time is rebased to the first sample")
	assert.InDelta(t, 0.001, ts.Time[1], 1e-9, "microseconds become seconds")
	assert.Equal(t, 1500.0, ts.Throttle[0])
	assert.Equal(t, 120.0, ts.Setpoint[flight.Roll][0])
	assert.Equal(t, 118.5, ts.Gyro[flight.Roll][0])
	assert.InDelta(t, 1000, ts.SampleRate, 1)

	require.NotNil(t, ts.PTerm[flight.Roll])
	assert.Equal(t, 1.0, ts.PTerm[flight.Roll][0])
	assert.Equal(t, 4.0, ts.ITerm[flight.Roll][0])
	assert.Equal(t, 7.0, ts.DTerm[flight.Roll][0])
}

func TestParseCSV_NoPIDColumns(t *testing.T) {
	header := `time (us), rcCommand[3], setpoint[0], setpoint[1], setpoint[2], gyroADC[0], gyroADC[1], gyroADC[2]`
	data := header + "\n" +
		"0, 1500, 10, 0, 0, 9, 0, 0\n" +
		"1000, 1500, 10, 0, 0, 10, 0, 0\n"

	ts, err := parseCSV(strings.NewReader(data), "test.csv")
	require.NoError(t, err)
	assert.Equal(t, 2, ts.Len())
	assert.Nil(t, ts.PTerm[flight.Roll])
}

func TestParseCSV_MissingColumns(t *testing.T) {
	data := "loopIteration, time (us), rcCommand[3]\n0, 0, 1500\n"

	_, err := parseCSV(strings.NewReader(data), "broken.csv")
	var ie *InputError
	require.ErrorAs(t, err, &ie)
	assert.Contains(t, ie.Reason, "setpoint[0]")
	assert.Contains(t, ie.Reason, "gyroADC[2]")
}

func TestParseCSV_TimeRunsBackwards(t *testing.T) {
	data := sampleLog(
		sampleRow(2_000_000, 1500, 0, 0),
		sampleRow(1_000_000, 1500, 0, 0),
	)

	_, err := parseCSV(strings.NewReader(data), "bad.csv")
	var ie *InputError
	require.ErrorAs(t, err, &ie)
	assert.Contains(t, ie.Reason, "backwards")
}

func TestParseCSV_DuplicateTimestamp(t *testing.T) {
	data := sampleLog(
		sampleRow(1_000_000, 1500, 0, 0),
		sampleRow(1_001_000, 1500, 0, 0),
		sampleRow(1_001_000, 1500, 0, 0),
	)

	_, err := parseCSV(strings.NewReader(data), "bad.csv")
	var ie *InputError
	require.ErrorAs(t, err, &ie)
	assert.Contains(t, ie.Reason, "duplicate timestamp")
}

func TestParseCSV_Empty(t *testing.T) {
	_, err := parseCSV(strings.NewReader(""), "empty.csv")
	var ie *InputError
	require.ErrorAs(t, err, &ie)
}

func TestParseCSV_TruncatedTailRow(t *testing.T) {
	data := sampleLog(
		sampleRow(0, 1500, 0, 0),
		sampleRow(1000, 1500, 0, 0),
	) + "0, 2000\n" // interrupted write at the end of the log

	ts, err := parseCSV(strings.NewReader(data), "test.csv")
	require.NoError(t, err)
	assert.Equal(t, 2, ts.Len())
}

func TestDecode_CSVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flight.csv")
	data := sampleLog(
		sampleRow(0, 1500, 50, 49),
		sampleRow(1000, 1500, 50, 50),
	)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	d := NewDecoder()
	ts, err := d.Decode(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 2, ts.Len())
}

func TestDecode_DecoderNotFound(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	d := NewDecoder()
	_, err := d.Decode(context.Background(), "flight.bbl")
	assert.ErrorIs(t, err, ErrDecoderNotFound)
}
