/*
 *  genotype.go
 *  hipstr
 *
 *  Created by Syed Nashraf on 02/09/20
 *  Copyright © 2020 Syed Nashraf. All rights reserved.
 */

package hipstr

import (
	"bufio"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/klauspost/pgzip"
)

// Genotyper drives EM training and VCF emission over one or more
// per-locus reads tables. Failed loci still produce a record, fitted
// with however far EM got before the iteration cap
type Genotyper struct {
	Readsfiles      []string
	Outfile         string
	StutterOutfile  string
	NpyOutfile      string
	MaxIter         int
	MinLLAbsChange  float64
	MinLLFracChange float64
	FastLogSumExp   bool

	numConverged int
	numFailed    int
}

// Run parses every reads table, trains the EM genotyper per locus and
// writes the VCF records over the union of all samples
func (r *Genotyper) Run() {
	readsFiles := make([]*ReadsFile, len(r.Readsfiles))
	sampleSet := map[string]bool{}
	for i, filename := range r.Readsfiles {
		readsFiles[i] = &ReadsFile{Filename: filename}
		ErrorAbort(readsFiles[i].ParseRecords())
		for _, name := range readsFiles[i].Samples {
			sampleSet[name] = true
		}
	}
	sampleNames := make([]string, 0, len(sampleSet))
	for name := range sampleSet {
		sampleNames = append(sampleNames, name)
	}
	sort.Strings(sampleNames)

	out, closeOut := openOutput(r.Outfile)
	defer closeOut()
	WriteVCFHeader(sampleNames, out)

	var stutterOut io.Writer
	if r.StutterOutfile != "" {
		f, err := os.Create(r.StutterOutfile)
		ErrorAbort(err)
		defer f.Close()
		w := bufio.NewWriter(f)
		defer w.Flush()
		stutterOut = w
	}

	if r.NpyOutfile != "" && len(readsFiles) > 1 {
		log.Warning("Posterior npy export only supports a single locus, skipping")
	}
	for _, readsFile := range readsFiles {
		r.genotypeLocus(readsFile, sampleNames, out, stutterOut)
	}
	log.Noticef("EM converged at %d loci, failed at %d", r.numConverged, r.numFailed)
}

// genotypeLocus trains and emits one locus
func (r *Genotyper) genotypeLocus(readsFile *ReadsFile, sampleNames []string, out, stutterOut io.Writer) {
	gt, err := NewEMGenotyper(readsFile.BpsPerAllele, readsFile.MotifLen,
		readsFile.Reads, readsFile.Samples, r.FastLogSumExp)
	ErrorAbort(err)

	if gt.Train(r.MaxIter, r.MinLLAbsChange, r.MinLLFracChange) {
		r.numConverged++
		log.Noticef("EM converged at %s:%d (LL = %.3f)", readsFile.Chrom, readsFile.Pos, gt.TotalLogLikelihood())
	} else {
		r.numFailed++
		log.Warningf("EM did not converge at %s:%d after %d iterations", readsFile.Chrom, readsFile.Pos, r.MaxIter)
	}

	ErrorAbort(gt.WriteVCFRecord(readsFile.Chrom, readsFile.Pos, sampleNames, out))
	if stutterOut != nil {
		region := Region{Chrom: readsFile.Chrom, Start: readsFile.Pos, End: readsFile.Pos, MotifLen: readsFile.MotifLen}
		ErrorAbort(gt.WriteStutterModel(region.String(), stutterOut))
	}
	if r.NpyOutfile != "" && len(r.Readsfiles) == 1 {
		ErrorAbort(gt.WritePosteriorNpy(r.NpyOutfile))
	}
}

// openOutput prepares the VCF sink: stdout for "-", a parallel-gzip
// stream for `.gz` paths, a buffered plain file otherwise
func openOutput(outfile string) (io.Writer, func()) {
	if outfile == "" || outfile == "-" {
		return os.Stdout, func() {}
	}
	f, err := os.Create(outfile)
	ErrorAbort(err)
	if strings.HasSuffix(outfile, ".gz") {
		gzw := pgzip.NewWriter(f)
		return gzw, func() {
			ErrorAbort(gzw.Close())
			ErrorAbort(f.Close())
			log.Noticef("Genotypes written to `%s`", outfile)
		}
	}
	w := bufio.NewWriter(f)
	return w, func() {
		ErrorAbort(w.Flush())
		ErrorAbort(f.Close())
		log.Noticef("Genotypes written to `%s`", outfile)
	}
}
