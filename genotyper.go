/*
 *  genotyper.go
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

// Region describes one STR locus
type Region struct {
	Chrom    string
	Start    int
	End      int
	MotifLen int
	Name     string
}

// String outputs the locus in chrom:start-end form
func (r Region) String() string {
	return fmt.Sprintf("%s:%d-%d", r.Chrom, r.Start, r.End)
}

// Read is a single length-classified observation at a locus. The allele
// index points into the candidate allele list and the two log-likelihoods
// carry the external SNP phasing evidence for the read originating from
// haplotype 1 or 2
type Read struct {
	SampleIdx int
	AlleleIdx int
	LogP1     float64
	LogP2     float64
}

// EMGenotyper jointly fits a stutter model and per-sample diploid
// genotype posteriors from length-classified reads via EM. Both posterior
// tensors are flat buffers allocated once at construction: the phased
// genotype posteriors iterate allele1, allele2 and then samples, while
// the read phase posteriors iterate allele1, allele2, reads and phases.
type EMGenotyper struct {
	numAlleles int
	numSamples int
	numReads   int
	motifLen   int

	bpsPerAllele  []int
	sampleNames   []string
	sampleIndices map[string]int

	logP1       []float64
	logP2       []float64
	sampleLabel []int
	alleleIndex []int

	readsPerSample []int

	logGtPriors            []float64
	logSamplePosteriors    []float64
	logReadPhasePosteriors []float64
	stutterModel           *StutterModel

	// Scratch buffers reused across E-steps
	sampleMaxLLs   []float64
	sampleTotalLLs []float64
	totalLL        float64

	lse logSumExpAggregator
}

// NewEMGenotyper validates the inputs and allocates the posterior
// tensors. bpsPerAllele is the ordered candidate allele list in bp,
// sampleNames the ordered sample list indexed by Read.SampleIdx
func NewEMGenotyper(bpsPerAllele []int, motifLen int, reads []Read, sampleNames []string, fastLogSumExp bool) (*EMGenotyper, error) {
	numAlleles := len(bpsPerAllele)
	numSamples := len(sampleNames)
	numReads := len(reads)
	if numAlleles == 0 {
		return nil, fmt.Errorf("at least one candidate allele is required")
	}
	if motifLen < 1 {
		return nil, fmt.Errorf("motif length must be positive, got %d", motifLen)
	}
	if numSamples == 0 {
		return nil, fmt.Errorf("at least one sample is required")
	}
	if numReads == 0 {
		return nil, fmt.Errorf("at least one read is required")
	}

	r := &EMGenotyper{
		numAlleles:     numAlleles,
		numSamples:     numSamples,
		numReads:       numReads,
		motifLen:       motifLen,
		bpsPerAllele:   append([]int(nil), bpsPerAllele...),
		sampleNames:    append([]string(nil), sampleNames...),
		sampleIndices:  make(map[string]int, numSamples),
		logP1:          make([]float64, numReads),
		logP2:          make([]float64, numReads),
		sampleLabel:    make([]int, numReads),
		alleleIndex:    make([]int, numReads),
		readsPerSample: make([]int, numSamples),
		logGtPriors:    make([]float64, numAlleles),
		sampleMaxLLs:   make([]float64, numSamples),
		sampleTotalLLs: make([]float64, numSamples),
		totalLL:        math.Inf(-1),
	}
	for i, name := range sampleNames {
		r.sampleIndices[name] = i
	}
	for i, read := range reads {
		if read.SampleIdx < 0 || read.SampleIdx >= numSamples {
			return nil, fmt.Errorf("read %d: sample index %d out of range [0, %d)", i, read.SampleIdx, numSamples)
		}
		if read.AlleleIdx < 0 || read.AlleleIdx >= numAlleles {
			return nil, fmt.Errorf("read %d: allele index %d out of range [0, %d)", i, read.AlleleIdx, numAlleles)
		}
		if read.LogP1 > 0 || read.LogP2 > 0 {
			return nil, fmt.Errorf("read %d: phasing log-likelihoods must be non-positive, got %f and %f", i, read.LogP1, read.LogP2)
		}
		r.logP1[i] = read.LogP1
		r.logP2[i] = read.LogP2
		r.sampleLabel[i] = read.SampleIdx
		r.alleleIndex[i] = read.AlleleIdx
		r.readsPerSample[read.SampleIdx]++
	}

	r.logSamplePosteriors = make([]float64, numAlleles*numAlleles*numSamples)
	r.logReadPhasePosteriors = make([]float64, 2*numAlleles*numAlleles*numReads)

	if fastLogSumExp {
		r.lse = fastLogSumExpAggregator
	} else {
		r.lse = slowLogSumExpAggregator
	}
	return r, nil
}

// NumAlleles returns the size of the candidate allele list
func (r *EMGenotyper) NumAlleles() int {
	return r.numAlleles
}

// NumSamples returns the number of samples
func (r *EMGenotyper) NumSamples() int {
	return r.numSamples
}

// NumReads returns the total number of reads across all samples
func (r *EMGenotyper) NumReads() int {
	return r.numReads
}

// Stutter returns the currently installed stutter model, nil before
// training or installation
func (r *EMGenotyper) Stutter() *StutterModel {
	return r.stutterModel
}

// SetStutterModel installs an externally fitted stutter model so that
// Genotype can run without EM training
func (r *EMGenotyper) SetStutterModel(model *StutterModel) {
	r.stutterModel = model.Clone()
}

// TotalLogLikelihood returns the data log-likelihood from the most
// recent E-step
func (r *EMGenotyper) TotalLogLikelihood() float64 {
	return r.totalLL
}

// posteriorIndex locates a phased genotype posterior cell
func (r *EMGenotyper) posteriorIndex(gt1, gt2, sampleIdx int) int {
	return (gt1*r.numAlleles+gt2)*r.numSamples + sampleIdx
}

// phaseIndex locates the phase-1 slot of a read phase posterior pair
func (r *EMGenotyper) phaseIndex(gt1, gt2, readIdx int) int {
	return 2 * ((gt1*r.numAlleles+gt2)*r.numReads + readIdx)
}
