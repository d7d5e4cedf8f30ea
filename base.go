/*
 *  base.go
 *  hipstr
 *
 *  Created by Syed Nashraf on 02/09/20
 *  Copyright © 2020 Syed Nashraf. All rights reserved.
 */

package hipstr

import (
	"math"
	"os"
	"path"
	"strings"

	logging "github.com/op/go-logging"
)

const (
	// Version is the current version of the genotyper
	Version = "0.3.1"
	// MaxEMIterations is the default cap on EM iterations per locus
	MaxEMIterations = 100
	// AbsLLConverge declares convergence when newLL - prevLL < AbsLLConverge
	AbsLLConverge = 0.01
	// FracLLConverge declares convergence when -(newLL-prevLL)/prevLL < FracLLConverge
	FracLLConverge = 0.001
	// DefaultInGeom is the in-frame geometric step seed for EM
	DefaultInGeom = 0.9
	// DefaultInUp is the in-frame upward stutter seed
	DefaultInUp = 0.1
	// DefaultInDown is the in-frame downward stutter seed
	DefaultInDown = 0.1
	// DefaultOutGeom is the out-of-frame geometric step seed
	DefaultOutGeom = 0.8
	// DefaultOutUp is the out-of-frame upward stutter seed
	DefaultOutUp = 0.01
	// DefaultOutDown is the out-of-frame downward stutter seed
	DefaultOutDown = 0.01
	// MinMapQuality filters reads during BAM extraction
	MinMapQuality = 1
	// MaxReadsPerSample caps the reads kept per sample at one locus
	MaxReadsPerSample = 1000
	// NormTolerance is how far a normalized log posterior cell may rise above 0,
	// and how far out-of-frame up+down may exceed 1
	NormTolerance = 1e-9
)

// ReadsFileHeader is the column header of the per-locus reads table
const ReadsFileHeader = "#Sample\tBps\tLogP1\tLogP2\n"

var log = logging.MustGetLogger("hipstr")
var format = logging.MustStringFormatter(
	`%{color}%{time:15:04:05} %{shortfunc} | %{level:.6s} %{color:reset} %{message}`,
)

// Backend is the default stderr output
var Backend = logging.NewLogBackend(os.Stderr, "", 0)

// BackendFormatter contains the fancy debug formatter
var BackendFormatter = logging.NewBackendFormatter(Backend, format)

// RemoveExt returns the substring minus the extension
func RemoveExt(filename string) string {
	return strings.TrimSuffix(filename, path.Ext(filename))
}

// ErrorAbort logs the error and exits if err is not nil
func ErrorAbort(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

// mustExist aborts if a file is not present
func mustExist(filename string) {
	if _, err := os.Stat(filename); err != nil {
		ErrorAbort(err)
	}
}

// mustOpen opens a file that we expect to be present
func mustOpen(filename string) *os.File {
	fh, err := os.Open(filename)
	ErrorAbort(err)
	return fh
}

// abs gets the absolute value of an int
func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// min gets the minimum for two ints
func min(x, y int) int {
	if x < y {
		return x
	}
	return y
}

// max gets the maximum for two ints
func max(x, y int) int {
	if x > y {
		return x
	}
	return y
}

// sumf gets the sum for a float64 slice
func sumf(a []float64) float64 {
	ans := 0.0
	for _, x := range a {
		ans += x
	}
	return ans
}

// logSumExp returns log(exp(a) + exp(b)) without leaving the log domain.
// The equal-value branch also keeps two -Inf inputs from producing NaN
func logSumExp(a, b float64) float64 {
	if a > b {
		return a + math.Log1p(math.Exp(b-a))
	}
	if b > a {
		return b + math.Log1p(math.Exp(a-b))
	}
	return a + math.Ln2
}

// logSumExp3 returns log(exp(a) + exp(b) + exp(c))
func logSumExp3(a, b, c float64) float64 {
	maxVal := math.Max(math.Max(a, b), c)
	return maxVal + math.Log(math.Exp(a-maxVal)+math.Exp(b-maxVal)+math.Exp(c-maxVal))
}

// logSumExpSlice aggregates a whole slice with the two-pass max trick
func logSumExpSlice(logVals []float64) float64 {
	maxVal := math.Inf(-1)
	for _, v := range logVals {
		if v > maxVal {
			maxVal = v
		}
	}
	total := 0.0
	for _, v := range logVals {
		total += math.Exp(v - maxVal)
	}
	return maxVal + math.Log(total)
}

// logSumExpAggregator combines two log values during posterior accumulation
type logSumExpAggregator func(logV1, logV2 float64) float64

// slowLogSumExpAggregator favors accuracy over speed
func slowLogSumExpAggregator(logV1, logV2 float64) float64 {
	return logSumExp(logV1, logV2)
}

// fastLogSumExpAggregator clamps the result to guard against small positive rounding
func fastLogSumExpAggregator(logV1, logV2 float64) float64 {
	return math.Min(0.0, logSumExp(logV1, logV2))
}
