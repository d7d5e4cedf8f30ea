/*
 *  stutter_model.go
 *  hipstr
 *
 *  Created by Syed Nashraf on 02/09/20
 *  Copyright © 2020 Syed Nashraf. All rights reserved.
 */

package hipstr

import (
	"fmt"
	"math"
)

// StutterModel is the PCR stutter noise distribution over base-pair
// differences between a true allele length and an observed read length.
// Length changes that are a multiple of the repeat motif are "in-frame"
// copy-number slips; all other changes are "out-of-frame" indel errors.
// Each branch is a directional geometric over step magnitudes.
type StutterModel struct {
	inGeom, inUp, inDown    float64
	outGeom, outUp, outDown float64
	motifLen                int

	// Log constants precomputed so LogPMF makes no log calls
	inLogStep, inLogNoStep, inLogUp, inLogDown     float64
	outLogStep, outLogNoStep, outLogUp, outLogDown float64
	logEqual                                       float64
}

// NewStutterModel builds a stutter model after validating the parameters
func NewStutterModel(inGeom, inUp, inDown, outGeom, outUp, outDown float64, motifLen int) (*StutterModel, error) {
	if motifLen < 1 {
		return nil, fmt.Errorf("motif length must be positive, got %d", motifLen)
	}
	if inGeom <= 0 || inGeom > 1 || outGeom <= 0 || outGeom > 1 {
		return nil, fmt.Errorf("geometric step parameters must lie in (0, 1], got in=%f out=%f", inGeom, outGeom)
	}
	if inUp < 0 || inDown < 0 || inUp+inDown >= 1 {
		return nil, fmt.Errorf("in-frame stutter probabilities invalid: up=%f down=%f", inUp, inDown)
	}
	if outUp < 0 || outDown < 0 || outUp+outDown > 1+NormTolerance {
		return nil, fmt.Errorf("out-of-frame stutter probabilities invalid: up=%f down=%f", outUp, outDown)
	}

	r := &StutterModel{
		inGeom: inGeom, inUp: inUp, inDown: inDown,
		outGeom: outGeom, outUp: outUp, outDown: outDown,
		motifLen: motifLen,
	}
	r.inLogStep = math.Log(inGeom)
	r.inLogNoStep = math.Log(1 - inGeom)
	r.inLogUp = math.Log(inUp)
	r.inLogDown = math.Log(inDown)
	r.logEqual = math.Log(1 - inUp - inDown)
	r.outLogStep = math.Log(outGeom)
	r.outLogNoStep = math.Log(1 - outGeom)
	r.outLogUp = math.Log(outUp)
	r.outLogDown = math.Log(outDown)
	return r, nil
}

// defaultStutterModel returns the fixed EM seed model
func defaultStutterModel(motifLen int) *StutterModel {
	model, err := NewStutterModel(DefaultInGeom, DefaultInUp, DefaultInDown,
		DefaultOutGeom, DefaultOutUp, DefaultOutDown, motifLen)
	ErrorAbort(err)
	return model
}

// MotifLen returns the repeat unit size in bp
func (r *StutterModel) MotifLen() int {
	return r.motifLen
}

// LogPMF returns the read's log-likelihood given that the underlying
// allele contains exactly sampleBps base pairs
func (r *StutterModel) LogPMF(sampleBps, readBps int) float64 {
	var logPMF float64
	bpDiff := readBps - sampleBps
	if bpDiff%r.motifLen != 0 {
		effDiff := bpDiff - bpDiff/r.motifLen
		if effDiff < 0 {
			logPMF = r.outLogDown + r.outLogNoStep + r.outLogStep*float64(-effDiff-1)
		} else {
			logPMF = r.outLogUp + r.outLogNoStep + r.outLogStep*float64(effDiff-1)
		}
	} else {
		repDiff := bpDiff / r.motifLen
		if repDiff == 0 {
			logPMF = r.logEqual
		} else if repDiff < 0 {
			logPMF = r.inLogDown + r.inLogNoStep + r.inLogStep*float64(-repDiff-1)
		} else {
			logPMF = r.inLogUp + r.inLogNoStep + r.inLogStep*float64(repDiff-1)
		}
	}
	if logPMF > 0 {
		log.Panicf("stutter log pmf must be non-positive, got %f for bp diff %d", logPMF, bpDiff)
	}
	return logPMF
}

// logGeomLeq returns log Pr[X <= k] for a unit-geometric with parameter p
func logGeomLeq(p float64, k int) float64 {
	return math.Log(1 - math.Pow(p, float64(k)))
}

// logGeomGeq returns log Pr[X >= k] for a unit-geometric with parameter p
func logGeomGeq(p float64, k int) float64 {
	return float64(k-1) * math.Log(p)
}

// LogGeq returns the read's log-likelihood given that it contains at
// least minReadBps base pairs, summing the closed-form geometric tails
// reachable from the minimum bp difference
func (r *StutterModel) LogGeq(sampleBps, minReadBps int) float64 {
	logProbs := make([]float64, 0, 5)
	minBpDiff := minReadBps - sampleBps

	// All potential in-frame stutters
	nextRepDiff := minBpDiff / r.motifLen
	if minBpDiff >= 0 && minBpDiff%r.motifLen != 0 {
		nextRepDiff++
	}
	if nextRepDiff < 0 {
		logProbs = append(logProbs, r.inLogDown+logGeomLeq(r.inGeom, -nextRepDiff))
		logProbs = append(logProbs, r.logEqual)
		logProbs = append(logProbs, r.inLogUp)
	} else if nextRepDiff == 0 {
		logProbs = append(logProbs, r.logEqual)
		logProbs = append(logProbs, r.inLogUp)
	} else {
		logProbs = append(logProbs, r.inLogUp+logGeomGeq(r.inGeom, nextRepDiff))
	}

	// All potential out-of-frame stutters
	nextOutframeDiff := minBpDiff
	if minBpDiff%r.motifLen == 0 {
		nextOutframeDiff++
	}
	effDiff := nextOutframeDiff - nextOutframeDiff/r.motifLen
	if effDiff < 0 {
		logProbs = append(logProbs, r.outLogDown+logGeomLeq(r.outGeom, -effDiff))
		logProbs = append(logProbs, r.outLogUp)
	} else {
		logProbs = append(logProbs, r.outLogUp+logGeomGeq(r.outGeom, effDiff))
	}

	return logSumExpSlice(logProbs)
}

// GetParameter looks up one of the six model parameters. The frame selects
// the in-frame or out-of-frame branch and the parameter is one of
// 'U' (up), 'D' (down) or 'P' (geometric step)
func (r *StutterModel) GetParameter(inFrame bool, parameter byte) float64 {
	switch parameter {
	case 'U':
		if inFrame {
			return r.inUp
		}
		return r.outUp
	case 'D':
		if inFrame {
			return r.inDown
		}
		return r.outDown
	case 'P':
		if inFrame {
			return r.inGeom
		}
		return r.outGeom
	default:
		log.Fatalf("Invalid stutter model parameter requested: %c", parameter)
		return -1.0
	}
}

// String outputs the two-line representation of the fitted model
func (r *StutterModel) String() string {
	return fmt.Sprintf("IN_FRAME [P_GEOM(rep)=%.3f, P_DOWN=%.3f, P_UP=%.3f]\nOUT_FRAME[P_GEOM(bp) =%.3f, P_DOWN=%.3f, P_UP=%.3f]\n",
		r.inGeom, r.inDown, r.inUp, r.outGeom, r.outDown, r.outUp)
}

// Clone returns an independent copy of the model
func (r *StutterModel) Clone() *StutterModel {
	clone := *r
	return &clone
}
