/*
 *  export.go
 *  hipstr
 *
 *  Created by Syed Nashraf on 02/09/20
 *  Copyright © 2020 Syed Nashraf. All rights reserved.
 */

package hipstr

import (
	"math"
	"os"

	"github.com/gonum/matrix/mat64"
	"github.com/kshedden/gonpy"
)

// PosteriorMatrix returns one sample's exp-domain phased genotype
// posterior as an A x A matrix, rows indexed by the phase-1 allele
func (r *EMGenotyper) PosteriorMatrix(sampleIdx int) *mat64.Dense {
	m := mat64.NewDense(r.numAlleles, r.numAlleles, nil)
	for idx1 := 0; idx1 < r.numAlleles; idx1++ {
		for idx2 := 0; idx2 < r.numAlleles; idx2++ {
			m.Set(idx1, idx2, math.Exp(r.logSamplePosteriors[r.posteriorIndex(idx1, idx2, sampleIdx)]))
		}
	}
	return m
}

// ReadPhasePosterior returns the exp-domain probabilities that a read
// arose from haplotype 1 or 2, conditioned on the ordered genotype
func (r *EMGenotyper) ReadPhasePosterior(gt1, gt2, readIdx int) (phase1, phase2 float64) {
	i := r.phaseIndex(gt1, gt2, readIdx)
	return math.Exp(r.logReadPhasePosteriors[i]), math.Exp(r.logReadPhasePosteriors[i+1])
}

// WritePosteriorNpy dumps every sample's exp-domain genotype posterior
// matrix into a single numpy array of shape (samples, alleles, alleles)
func (r *EMGenotyper) WritePosteriorNpy(outfile string) error {
	data := make([]float64, r.numSamples*r.numAlleles*r.numAlleles)
	for s := 0; s < r.numSamples; s++ {
		m := r.PosteriorMatrix(s)
		for idx1 := 0; idx1 < r.numAlleles; idx1++ {
			for idx2 := 0; idx2 < r.numAlleles; idx2++ {
				data[(s*r.numAlleles+idx1)*r.numAlleles+idx2] = m.At(idx1, idx2)
			}
		}
	}

	f, err := os.Create(outfile)
	if err != nil {
		return err
	}
	npw, err := gonpy.NewWriter(f)
	if err != nil {
		f.Close()
		return err
	}
	npw.Shape = []int{r.numSamples, r.numAlleles, r.numAlleles}
	if err := npw.WriteFloat64(data); err != nil {
		f.Close()
		return err
	}
	err = f.Close()
	if err == nil {
		log.Noticef("Genotype posteriors written to `%s`", outfile)
	}
	return err
}
