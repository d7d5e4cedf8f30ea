/*
 *  vcf.go
 *  hipstr
 *
 *  Created by Syed Nashraf on 02/09/20
 *  Copyright © 2020 Syed Nashraf. All rights reserved.
 */

package hipstr

import (
	"fmt"
	"io"
	"math"
)

// vcfInfoKeys are the fitted stutter parameters emitted per record, in order
var vcfInfoKeys = []struct {
	key     string
	inFrame bool
	param   byte
}{
	{"INFRAME_PGEOM", true, 'P'},
	{"INFRAME_UP", true, 'U'},
	{"INFRAME_DOWN", true, 'D'},
	{"OUTFRAME_PGEOM", false, 'P'},
	{"OUTFRAME_UP", false, 'U'},
	{"OUTFRAME_DOWN", false, 'D'},
}

// WriteVCFHeader writes the meta lines and the column line for the
// genotype records that WriteVCFRecord emits
func WriteVCFHeader(sampleNames []string, out io.Writer) {
	fmt.Fprintf(out, "##fileformat=VCFv4.1\n")
	fmt.Fprintf(out, "##source=HipSTR-EM-%s\n", Version)
	for _, info := range vcfInfoKeys {
		fmt.Fprintf(out, "##INFO=<ID=%s,Number=1,Type=Float,Description=\"Stutter model parameter\">\n", info.key)
	}
	fmt.Fprintf(out, "##FORMAT=<ID=GT,Number=1,Type=String,Description=\"Phased genotype\">\n")
	fmt.Fprintf(out, "##FORMAT=<ID=POSTERIOR,Number=1,Type=Float,Description=\"Phased genotype posterior\">\n")
	fmt.Fprintf(out, "##FORMAT=<ID=TOTALREADS,Number=1,Type=Integer,Description=\"Total reads for the sample\">\n")
	fmt.Fprintf(out, "##FORMAT=<ID=CHROMREADS,Number=1,Type=Float,Description=\"Expected reads per haplotype\">\n")
	fmt.Fprintf(out, "##FORMAT=<ID=PHASEDREADS,Number=1,Type=Float,Description=\"Expected phase-1 and phase-2 read counts\">\n")
	fmt.Fprintf(out, "#CHROM\tPOS\tID\tINFO\tFORMAT")
	for _, name := range sampleNames {
		fmt.Fprintf(out, "\t%s", name)
	}
	fmt.Fprintf(out, "\n")
}

// optimalGenotypes extracts each sample's MAP phased genotype and its
// log posterior from the current posterior tensor
func (r *EMGenotyper) optimalGenotypes() (gts [][2]int, logPhasedPosteriors []float64) {
	gts = make([][2]int, r.numSamples)
	logPhasedPosteriors = make([]float64, r.numSamples)
	for s := range gts {
		gts[s] = [2]int{-1, -1}
		logPhasedPosteriors[s] = math.Inf(-1)
	}
	cursor := 0
	for idx1 := 0; idx1 < r.numAlleles; idx1++ {
		for idx2 := 0; idx2 < r.numAlleles; idx2++ {
			for s := 0; s < r.numSamples; s++ {
				if r.logSamplePosteriors[cursor] > logPhasedPosteriors[s] {
					logPhasedPosteriors[s] = r.logSamplePosteriors[cursor]
					gts[s] = [2]int{idx1, idx2}
				}
				cursor++
			}
		}
	}
	return gts, logPhasedPosteriors
}

// MAPGenotype returns the maximum-a-posteriori phased genotype for one
// sample together with its log posterior
func (r *EMGenotyper) MAPGenotype(sampleIdx int) (gt1, gt2 int, logPhasedPosterior float64) {
	gts, logPhased := r.optimalGenotypes()
	return gts[sampleIdx][0], gts[sampleIdx][1], logPhased[sampleIdx]
}

// WriteVCFRecord emits one genotype record for the locus:
// CHROM POS ID INFO FORMAT and one column per requested sample name.
// Sample names with no reads table entry are emitted as "."
func (r *EMGenotyper) WriteVCFRecord(chrom string, pos int, sampleNames []string, out io.Writer) error {
	if r.stutterModel == nil {
		return fmt.Errorf("must train or install a stutter model before writing records")
	}

	gts, logPhasedPosteriors := r.optimalGenotypes()

	// Phasing probability conditioned on the chosen genotypes
	logUnphasedPosteriors := make([]float64, r.numSamples)
	phaseProbs := make([]float64, r.numSamples)
	for s := 0; s < r.numSamples; s++ {
		gtA, gtB := gts[s][0], gts[s][1]
		if gtA == gtB {
			logUnphasedPosteriors[s] = logPhasedPosteriors[s]
			phaseProbs[s] = 1.0
		} else {
			logP1 := logPhasedPosteriors[s]
			logP2 := r.logSamplePosteriors[r.posteriorIndex(gtB, gtA, s)]
			logTot := logSumExp(logP1, logP2)
			logUnphasedPosteriors[s] = logTot
			phaseProbs[s] = math.Exp(logP1 - logTot)
		}
	}

	// Each read's phase-1 posterior conditioned on its sample's genotype
	logReadPhases := make([][]float64, r.numSamples)
	for readIdx := 0; readIdx < r.numReads; readIdx++ {
		s := r.sampleLabel[readIdx]
		gtA, gtB := gts[s][0], gts[s][1]
		logReadPhases[s] = append(logReadPhases[s], r.logReadPhasePosteriors[r.phaseIndex(gtA, gtB, readIdx)])
	}

	fmt.Fprintf(out, "%s\t%d\t.", chrom, pos)

	// INFO field carries the fitted stutter parameters
	fmt.Fprintf(out, "\t")
	for _, info := range vcfInfoKeys {
		fmt.Fprintf(out, "%s=%.3f;", info.key, r.stutterModel.GetParameter(info.inFrame, info.param))
	}

	fmt.Fprintf(out, "\tGT:POSTERIOR:TOTALREADS:CHROMREADS:PHASEDREADS")

	for _, name := range sampleNames {
		fmt.Fprintf(out, "\t")
		sampleIdx, ok := r.sampleIndices[name]
		if !ok {
			fmt.Fprintf(out, ".")
			continue
		}
		totalReads := r.readsPerSample[sampleIdx]
		phase1Reads := 0.0
		if len(logReadPhases[sampleIdx]) > 0 {
			phase1Reads = math.Exp(logSumExpSlice(logReadPhases[sampleIdx]))
		}
		phase2Reads := float64(totalReads) - phase1Reads
		fmt.Fprintf(out, "%d|%d:%.3f:%d:%.3f|%.3f",
			gts[sampleIdx][0], gts[sampleIdx][1],
			math.Exp(logPhasedPosteriors[sampleIdx]),
			totalReads, phase1Reads, phase2Reads)
	}
	fmt.Fprintf(out, "\n")
	return nil
}

// WriteStutterModel appends the fitted model for one locus to a text sink
func (r *EMGenotyper) WriteStutterModel(region string, out io.Writer) error {
	if r.stutterModel == nil {
		return fmt.Errorf("no stutter model has been fit for %s", region)
	}
	_, err := fmt.Fprintf(out, "%s\n%s", region, r.stutterModel)
	return err
}
