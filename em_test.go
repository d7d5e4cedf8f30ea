/*
 *  em_test.go
 *  hipstr
 *
 *  Created by Syed Nashraf on 02/09/20
 *  Copyright © 2020 Syed Nashraf. All rights reserved.
 */

package hipstr_test

import (
	"bytes"
	"math"
	"strings"
	"testing"

	hipstr "github.com/snashraf/HipSTR"
)

func repeatReads(n, alleleIdx int, logP1, logP2 float64) []hipstr.Read {
	reads := make([]hipstr.Read, n)
	for i := range reads {
		reads[i] = hipstr.Read{SampleIdx: 0, AlleleIdx: alleleIdx, LogP1: logP1, LogP2: logP2}
	}
	return reads
}

func trainedGenotyper(t *testing.T, bps []int, motifLen int, reads []hipstr.Read, samples []string) *hipstr.EMGenotyper {
	t.Helper()
	gt, err := hipstr.NewEMGenotyper(bps, motifLen, reads, samples, false)
	if err != nil {
		t.Fatalf("NewEMGenotyper failed: %v", err)
	}
	if !gt.Train(hipstr.MaxEMIterations, hipstr.AbsLLConverge, hipstr.FracLLConverge) {
		t.Fatal("EM did not converge")
	}
	return gt
}

// checkPosteriorInvariants verifies that every sample's genotype
// posterior matrix and every read phase pair are normalized
func checkPosteriorInvariants(t *testing.T, gt *hipstr.EMGenotyper) {
	t.Helper()
	for s := 0; s < gt.NumSamples(); s++ {
		m := gt.PosteriorMatrix(s)
		total := 0.0
		for a := 0; a < gt.NumAlleles(); a++ {
			for b := 0; b < gt.NumAlleles(); b++ {
				total += m.At(a, b)
			}
		}
		if math.Abs(total-1) > 1e-9 {
			t.Errorf("sample %d: posterior mass = %.12f, want 1", s, total)
		}
	}
	for a := 0; a < gt.NumAlleles(); a++ {
		for b := 0; b < gt.NumAlleles(); b++ {
			for r := 0; r < gt.NumReads(); r++ {
				p1, p2 := gt.ReadPhasePosterior(a, b, r)
				if math.Abs(p1+p2-1) > 1e-9 {
					t.Errorf("phase posterior (%d,%d) read %d sums to %.12f", a, b, r, p1+p2)
				}
			}
		}
	}
}

func TestSingleAlleleLocus(t *testing.T) {
	logHalf := math.Log(0.5)
	reads := repeatReads(10, 0, logHalf, logHalf)
	gt := trainedGenotyper(t, []int{20}, 4, reads, []string{"s1"})
	checkPosteriorInvariants(t, gt)

	gt1, gt2, logPhased := gt.MAPGenotype(0)
	if gt1 != 0 || gt2 != 0 {
		t.Fatalf("MAP genotype = %d|%d, want 0|0", gt1, gt2)
	}
	if math.Abs(math.Exp(logPhased)-1) > 1e-9 {
		t.Errorf("phased posterior = %f, want 1", math.Exp(logPhased))
	}

	var buf bytes.Buffer
	if err := gt.WriteVCFRecord("chr1", 100, []string{"s1"}, &buf); err != nil {
		t.Fatal(err)
	}
	fields := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\t")
	if len(fields) != 6 {
		t.Fatalf("expected 6 record columns, got %d: %q", len(fields), buf.String())
	}
	if fields[5] != "0|0:1.000:10:5.000|5.000" {
		t.Errorf("sample column = %q, want 0|0:1.000:10:5.000|5.000", fields[5])
	}
}

func TestHeterozygousPhasedLocus(t *testing.T) {
	reads := append(repeatReads(4, 0, math.Log(0.99), math.Log(0.01)),
		repeatReads(4, 1, math.Log(0.01), math.Log(0.99))...)
	gt := trainedGenotyper(t, []int{20, 24}, 4, reads, []string{"s1"})
	checkPosteriorInvariants(t, gt)

	gt1, gt2, logPhased := gt.MAPGenotype(0)
	if gt1 != 0 || gt2 != 1 {
		t.Fatalf("MAP genotype = %d|%d, want 0|1", gt1, gt2)
	}
	if math.Exp(logPhased) < 0.9 {
		t.Errorf("phased posterior = %f, want close to 1", math.Exp(logPhased))
	}

	phase1 := 0.0
	for r := 0; r < gt.NumReads(); r++ {
		p1, _ := gt.ReadPhasePosterior(gt1, gt2, r)
		phase1 += p1
	}
	if math.Abs(phase1-4) > 0.5 {
		t.Errorf("phase-1 read mass = %f, want about 4", phase1)
	}

	model := gt.Stutter()
	if up := model.GetParameter(true, 'U'); up > 0.12 {
		t.Errorf("in-frame up = %f, want near the pseudocount floor", up)
	}
	if down := model.GetParameter(true, 'D'); down > 0.12 {
		t.Errorf("in-frame down = %f, want near the pseudocount floor", down)
	}
}

func TestInFrameStutterLearning(t *testing.T) {
	logHalf := math.Log(0.5)
	reads := append(repeatReads(10, 0, logHalf, logHalf),
		repeatReads(2, 1, logHalf, logHalf)...)
	gt := trainedGenotyper(t, []int{20, 24}, 4, reads, []string{"s1"})
	checkPosteriorInvariants(t, gt)

	gt1, gt2, _ := gt.MAPGenotype(0)
	if gt1 != 0 || gt2 != 0 {
		t.Fatalf("MAP genotype = %d|%d, want 0|0", gt1, gt2)
	}

	model := gt.Stutter()
	up := model.GetParameter(true, 'U')
	down := model.GetParameter(true, 'D')
	if up < 0.1 || up > 0.3 {
		t.Errorf("in-frame up = %f, want roughly 2/12 plus pseudocounts", up)
	}
	if down >= up {
		t.Errorf("in-frame down = %f not below up = %f", down, up)
	}
}

func TestOutOfFrameStutterLearning(t *testing.T) {
	logHalf := math.Log(0.5)
	reads := append(repeatReads(10, 0, logHalf, logHalf),
		repeatReads(1, 1, logHalf, logHalf)...)
	gt := trainedGenotyper(t, []int{20, 21, 24}, 4, reads, []string{"s1"})
	checkPosteriorInvariants(t, gt)

	gt1, gt2, _ := gt.MAPGenotype(0)
	if gt1 != 0 || gt2 != 0 {
		t.Fatalf("MAP genotype = %d|%d, want 0|0", gt1, gt2)
	}

	model := gt.Stutter()
	outUp := model.GetParameter(false, 'U')
	outDown := model.GetParameter(false, 'D')
	if outUp <= outDown {
		t.Errorf("out-of-frame up = %f not above down = %f", outUp, outDown)
	}
}

func TestConvergenceReturnValue(t *testing.T) {
	reads := append(repeatReads(4, 0, math.Log(0.99), math.Log(0.01)),
		repeatReads(4, 1, math.Log(0.01), math.Log(0.99))...)
	gt, err := hipstr.NewEMGenotyper([]int{20, 24}, 4, reads, []string{"s1"}, false)
	if err != nil {
		t.Fatal(err)
	}
	// The first iteration can never satisfy the convergence test
	if gt.Train(1, hipstr.AbsLLConverge, hipstr.FracLLConverge) {
		t.Error("Train converged after a single iteration")
	}
	if !gt.Train(hipstr.MaxEMIterations, hipstr.AbsLLConverge, hipstr.FracLLConverge) {
		t.Error("Train failed to converge within the iteration cap")
	}
}

func TestLogLikelihoodMonotonicity(t *testing.T) {
	reads := append(repeatReads(10, 0, math.Log(0.5), math.Log(0.5)),
		repeatReads(2, 1, math.Log(0.5), math.Log(0.5))...)
	gt, err := hipstr.NewEMGenotyper([]int{20, 24}, 4, reads, []string{"s1"}, false)
	if err != nil {
		t.Fatal(err)
	}
	gt.Train(hipstr.MaxEMIterations, 0, 0)
	trainedLL := gt.TotalLogLikelihood()

	// The fitted parameters can only improve on the E-step that produced them
	if err := gt.Genotype(); err != nil {
		t.Fatal(err)
	}
	if gt.TotalLogLikelihood() < trainedLL-1e-6 {
		t.Errorf("LL decreased after refresh: %f -> %f", trainedLL, gt.TotalLogLikelihood())
	}
}

func TestGenotypeRequiresModel(t *testing.T) {
	reads := repeatReads(2, 0, math.Log(0.5), math.Log(0.5))
	gt, err := hipstr.NewEMGenotyper([]int{20}, 4, reads, []string{"s1"}, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := gt.Genotype(); err == nil {
		t.Error("Genotype succeeded without a stutter model")
	}
	var buf bytes.Buffer
	if err := gt.WriteVCFRecord("chr1", 100, []string{"s1"}, &buf); err == nil {
		t.Error("WriteVCFRecord succeeded without a stutter model")
	}

	model, err := hipstr.NewStutterModel(0.9, 0.1, 0.1, 0.8, 0.01, 0.01, 4)
	if err != nil {
		t.Fatal(err)
	}
	gt.SetStutterModel(model)
	if err := gt.Genotype(); err != nil {
		t.Errorf("Genotype failed with an installed model: %v", err)
	}
}

func TestInvalidConstruction(t *testing.T) {
	logHalf := math.Log(0.5)
	valid := repeatReads(2, 0, logHalf, logHalf)
	cases := []struct {
		name    string
		bps     []int
		motif   int
		reads   []hipstr.Read
		samples []string
	}{
		{"no alleles", nil, 4, valid, []string{"s1"}},
		{"bad motif", []int{20}, 0, valid, []string{"s1"}},
		{"no samples", []int{20}, 4, valid, nil},
		{"no reads", []int{20}, 4, nil, []string{"s1"}},
		{"allele index out of range", []int{20}, 4, []hipstr.Read{{AlleleIdx: 1, LogP1: logHalf, LogP2: logHalf}}, []string{"s1"}},
		{"sample index out of range", []int{20}, 4, []hipstr.Read{{SampleIdx: 2, LogP1: logHalf, LogP2: logHalf}}, []string{"s1"}},
		{"positive log likelihood", []int{20}, 4, []hipstr.Read{{LogP1: 0.5, LogP2: logHalf}}, []string{"s1"}},
	}
	for _, c := range cases {
		if _, err := hipstr.NewEMGenotyper(c.bps, c.motif, c.reads, c.samples, false); err == nil {
			t.Errorf("%s: expected construction to fail", c.name)
		}
	}
}

func TestFastAggregatorAgrees(t *testing.T) {
	reads := append(repeatReads(6, 0, math.Log(0.9), math.Log(0.1)),
		repeatReads(6, 1, math.Log(0.1), math.Log(0.9))...)
	slow := trainedGenotyper(t, []int{20, 24}, 4, reads, []string{"s1"})
	fast, err := hipstr.NewEMGenotyper([]int{20, 24}, 4, reads, []string{"s1"}, true)
	if err != nil {
		t.Fatal(err)
	}
	if !fast.Train(hipstr.MaxEMIterations, hipstr.AbsLLConverge, hipstr.FracLLConverge) {
		t.Fatal("fast aggregator run did not converge")
	}
	a1, b1, _ := slow.MAPGenotype(0)
	a2, b2, _ := fast.MAPGenotype(0)
	if a1 != a2 || b1 != b2 {
		t.Errorf("aggregators disagree on MAP genotype: %d|%d vs %d|%d", a1, b1, a2, b2)
	}
}
