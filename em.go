/*
 *  em.go
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

// initLogGtPriors seeds the genotype priors from read label counts.
// Each read contributes inversely to its sample's depth so that deeply
// sequenced samples do not dominate the prior
func (r *EMGenotyper) initLogGtPriors() {
	for i := range r.logGtPriors {
		r.logGtPriors[i] = 1 // one-sample pseudocount
	}
	for i := 0; i < r.numReads; i++ {
		r.logGtPriors[r.alleleIndex[i]] += 1.0 / float64(r.readsPerSample[r.sampleLabel[i]])
	}
	logTotal := math.Log(sumf(r.logGtPriors))
	for i := range r.logGtPriors {
		r.logGtPriors[i] = math.Log(r.logGtPriors[i]) - logTotal
	}
}

// initStutterModel installs the fixed seed model
func (r *EMGenotyper) initStutterModel() {
	r.stutterModel = defaultStutterModel(r.motifLen)
}

// recalcLogGtPriors re-estimates the priors by marginalizing the phased
// genotype posteriors over the partner allele and all samples, counting
// each allele in both the phase-1 and the phase-2 slot
func (r *EMGenotyper) recalcLogGtPriors() {
	stride := r.numAlleles * r.numSamples
	for gt := 0; gt < r.numAlleles; gt++ {
		r.logGtPriors[gt] = logSumExpSlice(r.logSamplePosteriors[gt*stride : (gt+1)*stride])
		// Allele gt in the phase-2 slot
		for idx1 := 0; idx1 < r.numAlleles; idx1++ {
			cell := r.posteriorIndex(idx1, gt, 0)
			for s := 0; s < r.numSamples; s++ {
				r.logGtPriors[gt] = logSumExp(r.logGtPriors[gt], r.logSamplePosteriors[cell+s])
			}
		}
	}
	logTotal := logSumExpSlice(r.logGtPriors)
	for gt := range r.logGtPriors {
		r.logGtPriors[gt] -= logTotal
	}
}

// recalcLogSamplePosteriors runs the phased-genotype E-step and returns
// the total log-likelihood given the current priors and stutter model.
// Per-sample normalization uses the two-pass log-sum-exp over all A*A
// genotype cells, the one place where direct summation would underflow
func (r *EMGenotyper) recalcLogSamplePosteriors() float64 {
	for s := 0; s < r.numSamples; s++ {
		r.sampleMaxLLs[s] = math.Inf(-1)
	}

	cursor := 0
	for idx1 := 0; idx1 < r.numAlleles; idx1++ {
		len1 := r.bpsPerAllele[idx1]
		for idx2 := 0; idx2 < r.numAlleles; idx2++ {
			len2 := r.bpsPerAllele[idx2]
			cell := r.logSamplePosteriors[cursor : cursor+r.numSamples]
			prior := r.logGtPriors[idx1] + r.logGtPriors[idx2]
			for s := range cell {
				cell[s] = prior
			}
			for readIdx := 0; readIdx < r.numReads; readIdx++ {
				readBps := r.bpsPerAllele[r.alleleIndex[readIdx]]
				cell[r.sampleLabel[readIdx]] += r.lse(
					r.logP1[readIdx]+r.stutterModel.LogPMF(len1, readBps),
					r.logP2[readIdx]+r.stutterModel.LogPMF(len2, readBps))
			}
			for s := range cell {
				if cell[s] > r.sampleMaxLLs[s] {
					r.sampleMaxLLs[s] = cell[s]
				}
			}
			cursor += r.numSamples
		}
	}

	// Per-sample normalizing factors via the logsumexp trick
	for s := 0; s < r.numSamples; s++ {
		r.sampleTotalLLs[s] = 0
	}
	cursor = 0
	for cell := 0; cell < r.numAlleles*r.numAlleles; cell++ {
		for s := 0; s < r.numSamples; s++ {
			r.sampleTotalLLs[s] += math.Exp(r.logSamplePosteriors[cursor] - r.sampleMaxLLs[s])
			cursor++
		}
	}
	for s := 0; s < r.numSamples; s++ {
		r.sampleTotalLLs[s] = r.sampleMaxLLs[s] + math.Log(r.sampleTotalLLs[s])
	}

	totalLL := sumf(r.sampleTotalLLs)

	// Normalize each genotype LL into a valid log posterior
	cursor = 0
	for cell := 0; cell < r.numAlleles*r.numAlleles; cell++ {
		for s := 0; s < r.numSamples; s++ {
			r.logSamplePosteriors[cursor] -= r.sampleTotalLLs[s]
			if r.logSamplePosteriors[cursor] > NormTolerance {
				log.Panicf("posterior above unity after normalization: %g", r.logSamplePosteriors[cursor])
			}
			cursor++
		}
	}

	r.totalLL = totalLL
	return totalLL
}

// recalcLogReadPhasePosteriors runs the read-phase E-step: for every
// ordered genotype and read, the posterior that the read arose from
// haplotype 1 versus haplotype 2
func (r *EMGenotyper) recalcLogReadPhasePosteriors() {
	cursor := 0
	for idx1 := 0; idx1 < r.numAlleles; idx1++ {
		len1 := r.bpsPerAllele[idx1]
		for idx2 := 0; idx2 < r.numAlleles; idx2++ {
			len2 := r.bpsPerAllele[idx2]
			for readIdx := 0; readIdx < r.numReads; readIdx++ {
				readBps := r.bpsPerAllele[r.alleleIndex[readIdx]]
				logPhaseOne := r.logP1[readIdx] + r.stutterModel.LogPMF(len1, readBps)
				logPhaseTwo := r.logP2[readIdx] + r.stutterModel.LogPMF(len2, readBps)
				logPhaseTotal := logSumExp(logPhaseOne, logPhaseTwo)
				r.logReadPhasePosteriors[cursor] = logPhaseOne - logPhaseTotal
				r.logReadPhasePosteriors[cursor+1] = logPhaseTwo - logPhaseTotal
				cursor += 2
			}
		}
	}
}

// recalcStutterModel re-fits the six stutter parameters from
// posterior-weighted pseudo-counts. Each bucket accumulates log-domain
// weights; the up/down/diff buckets carry pseudo-observations so the
// estimated geometric parameters stay strictly below one
func (r *EMGenotyper) recalcStutterModel() {
	log2 := math.Log(2)
	inLogUp, inLogDown, inLogDiffs := 0.0, 0.0, logSumExp(0, log2)
	outLogUp, outLogDown, outLogDiffs := 0.0, 0.0, logSumExp(0, log2)
	inLogEq := math.Inf(-1)

	phaseCursor := 0
	for idx1 := 0; idx1 < r.numAlleles; idx1++ {
		for idx2 := 0; idx2 < r.numAlleles; idx2++ {
			base := (idx1*r.numAlleles + idx2) * r.numSamples
			for readIdx := 0; readIdx < r.numReads; readIdx++ {
				logGtPosterior := r.logSamplePosteriors[base+r.sampleLabel[readIdx]]
				for phase := 0; phase < 2; phase++ {
					w := logGtPosterior + r.logReadPhasePosteriors[phaseCursor]
					phaseCursor++
					gtIndex := idx1
					if phase == 1 {
						gtIndex = idx2
					}
					if r.alleleIndex[readIdx] == gtIndex {
						inLogEq = logSumExp(inLogEq, w)
						continue
					}
					bpDiff := r.bpsPerAllele[r.alleleIndex[readIdx]] - r.bpsPerAllele[gtIndex]
					if bpDiff%r.motifLen != 0 {
						// Effective stutter bp difference, excluding unit changes
						effDiff := bpDiff - bpDiff/r.motifLen
						outLogDiffs = logSumExp(outLogDiffs, w+math.Log(float64(abs(effDiff))))
						if bpDiff > 0 {
							outLogUp = logSumExp(outLogUp, w)
						} else {
							outLogDown = logSumExp(outLogDown, w)
						}
					} else {
						// Effective stutter repeat difference
						effDiff := bpDiff / r.motifLen
						inLogDiffs = logSumExp(inLogDiffs, w+math.Log(float64(abs(effDiff))))
						if bpDiff > 0 {
							inLogUp = logSumExp(inLogUp, w)
						} else {
							inLogDown = logSumExp(inLogDown, w)
						}
					}
				}
			}
		}
	}

	// New in-frame parameter estimates
	inLogTotal := logSumExp3(inLogUp, inLogDown, inLogEq)
	inGeomHat := math.Exp(logSumExp(inLogUp, inLogDown) - inLogDiffs)
	inUpHat := math.Exp(inLogUp - inLogTotal)
	inDownHat := math.Exp(inLogDown - inLogTotal)

	// New out-of-frame parameter estimates
	outLogTotal := logSumExp(outLogUp, outLogDown)
	outGeomHat := math.Exp(outLogTotal - outLogDiffs)
	outUpHat := math.Exp(outLogUp - outLogTotal)
	outDownHat := math.Exp(outLogDown - outLogTotal)

	model, err := NewStutterModel(inGeomHat, inUpHat, inDownHat, outGeomHat, outUpHat, outDownHat, r.motifLen)
	if err != nil {
		log.Panicf("degenerate stutter re-estimation: %v", err)
	}
	r.stutterModel = model
}

// Train runs the EM loop until the log-likelihood change falls below
// both the absolute and fractional thresholds, or maxIter is reached.
// It returns true iff the loop converged. The priors, stutter model and
// posterior tensors reflect the fitted state on return
func (r *EMGenotyper) Train(maxIter int, minLLAbsChange, minLLFracChange float64) bool {
	r.initLogGtPriors()
	r.initStutterModel()

	prevLL := math.Inf(-1)
	for numIter := 1; numIter <= maxIter; numIter++ {
		// E-step
		newLL := r.recalcLogSamplePosteriors()
		r.recalcLogReadPhasePosteriors()
		log.Debugf("Iteration %d: LL = %f\n%s", numIter, newLL, r.stutterModel)

		// M-step
		r.recalcLogGtPriors()
		r.recalcStutterModel()

		absChange := newLL - prevLL
		fracChange := -(newLL - prevLL) / prevLL
		if absChange < minLLAbsChange && fracChange < minLLFracChange {
			return true
		}
		prevLL = newLL
	}
	return false
}

// Genotype refreshes both posterior tensors under the current stutter
// model without re-fitting it. A model must have been trained or
// installed beforehand
func (r *EMGenotyper) Genotype() error {
	if r.stutterModel == nil {
		return fmt.Errorf("must train or install a stutter model before genotyping")
	}
	r.recalcLogSamplePosteriors()
	r.recalcLogReadPhasePosteriors()
	return nil
}
