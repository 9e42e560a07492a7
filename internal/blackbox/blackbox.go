// Package blackbox turns a Betaflight blackbox log into a flight.TimeSeries.
// Raw .bbl/.bfl logs are piped through the external blackbox_decode tool;
// already decoded .csv files are parsed directly.
package blackbox

import "fmt"

// InputError reports a malformed or incomplete log. It is the only fatal
// condition in the pipeline: everything downstream degrades gracefully,
// but without valid input columns there is nothing to analyse.
type InputError struct {
	Path   string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid log %s: %s", e.Path, e.Reason)
}

// Decoded CSV column names, stripped of the padding blackbox_decode emits.
const (
	colTime     = "time (us)"
	colThrottle = "rcCommand[3]"
)

func colSetpoint(axis int) string { return fmt.Sprintf("setpoint[%d]", axis) }
func colGyro(axis int) string     { return fmt.Sprintf("gyroADC[%d]", axis) }
func colPTerm(axis int) string    { return fmt.Sprintf("axisP[%d]", axis) }
func colITerm(axis int) string    { return fmt.Sprintf("axisI[%d]", axis) }
func colDTerm(axis int) string    { return fmt.Sprintf("axisD[%d]", axis) }
