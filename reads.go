/*
 *  reads.go
 *  hipstr
 *
 *  Created by Syed Nashraf on 02/09/20
 *  Copyright © 2020 Syed Nashraf. All rights reserved.
 */

package hipstr

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/shenwei356/xopen"
)

// ReadObservation is one line in a reads table: the observed STR length
// in bp for a read of the named sample, plus its phasing log-likelihoods
type ReadObservation struct {
	Sample string
	Bps    int
	LogP1  float64
	LogP2  float64
}

// ReadsFile is the per-locus reads table written by `extract` and
// consumed by `genotype`. The first line carries the locus metadata:
//
//	##chrom=chr4;pos=3074876;motif=4
//	#Sample	Bps	LogP1	LogP2
//	NA12878	52	-0.693	-0.693
//
// Parsing derives the candidate allele list from the distinct observed
// lengths and the sample list from the sorted distinct sample names
type ReadsFile struct {
	Filename string
	Chrom    string
	Pos      int
	MotifLen int
	// Filled in by ParseRecords
	Observations []ReadObservation
	Samples      []string
	BpsPerAllele []int
	Reads        []Read
}

// ParseRecords collects all observations in memory and builds the
// allele and sample indices
func (r *ReadsFile) ParseRecords() error {
	fh, err := xopen.Ropen(r.Filename)
	if err != nil {
		return err
	}
	defer fh.Close()

	log.Noticef("Parse readsfile `%s`", r.Filename)
	r.Observations = nil
	lineNo := 0
	for {
		row, err := fh.ReadString('\n')
		row = strings.TrimSpace(row)
		if row == "" && err == io.EOF {
			break
		}
		lineNo++
		if strings.HasPrefix(row, "##") {
			if err := r.parseMeta(row); err != nil {
				return err
			}
			continue
		}
		if strings.HasPrefix(row, "#") {
			continue
		}
		words := strings.Split(row, "\t")
		if len(words) < 4 {
			return fmt.Errorf("%s:%d: expected 4 columns, got %d", r.Filename, lineNo, len(words))
		}
		bps, err := strconv.Atoi(words[1])
		if err != nil {
			return fmt.Errorf("%s:%d: bad bp length %q", r.Filename, lineNo, words[1])
		}
		logP1, err := strconv.ParseFloat(words[2], 64)
		if err != nil {
			return fmt.Errorf("%s:%d: bad logp1 %q", r.Filename, lineNo, words[2])
		}
		logP2, err := strconv.ParseFloat(words[3], 64)
		if err != nil {
			return fmt.Errorf("%s:%d: bad logp2 %q", r.Filename, lineNo, words[3])
		}
		r.Observations = append(r.Observations, ReadObservation{
			Sample: words[0],
			Bps:    bps,
			LogP1:  logP1,
			LogP2:  logP2,
		})
	}
	if r.MotifLen < 1 {
		return fmt.Errorf("%s: missing or invalid motif length in metadata", r.Filename)
	}

	r.index()
	log.Noticef("Imported %d reads over %d alleles and %d samples",
		len(r.Reads), len(r.BpsPerAllele), len(r.Samples))
	return nil
}

// parseMeta decodes the ##key=value;... locus line
func (r *ReadsFile) parseMeta(row string) error {
	for _, field := range strings.Split(strings.TrimPrefix(row, "##"), ";") {
		kv := strings.SplitN(field, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "chrom":
			r.Chrom = kv[1]
		case "pos":
			pos, err := strconv.Atoi(kv[1])
			if err != nil {
				return fmt.Errorf("%s: bad pos %q", r.Filename, kv[1])
			}
			r.Pos = pos
		case "motif":
			motif, err := strconv.Atoi(kv[1])
			if err != nil {
				return fmt.Errorf("%s: bad motif length %q", r.Filename, kv[1])
			}
			r.MotifLen = motif
		}
	}
	return nil
}

// index derives the sorted allele and sample lists and re-labels every
// observation against them
func (r *ReadsFile) index() {
	alleleSet := map[int]bool{}
	sampleSet := map[string]bool{}
	for _, obs := range r.Observations {
		alleleSet[obs.Bps] = true
		sampleSet[obs.Sample] = true
	}

	r.BpsPerAllele = make([]int, 0, len(alleleSet))
	for bps := range alleleSet {
		r.BpsPerAllele = append(r.BpsPerAllele, bps)
	}
	sort.Ints(r.BpsPerAllele)
	alleleIdx := make(map[int]int, len(r.BpsPerAllele))
	for i, bps := range r.BpsPerAllele {
		alleleIdx[bps] = i
	}

	r.Samples = make([]string, 0, len(sampleSet))
	for name := range sampleSet {
		r.Samples = append(r.Samples, name)
	}
	sort.Strings(r.Samples)
	sampleIdx := make(map[string]int, len(r.Samples))
	for i, name := range r.Samples {
		sampleIdx[name] = i
	}

	r.Reads = make([]Read, len(r.Observations))
	for i, obs := range r.Observations {
		r.Reads[i] = Read{
			SampleIdx: sampleIdx[obs.Sample],
			AlleleIdx: alleleIdx[obs.Bps],
			LogP1:     obs.LogP1,
			LogP2:     obs.LogP2,
		}
	}
}

// WriteReadsFile writes a per-locus reads table. A `.gz` suffix on the
// path produces a gzip-compressed table
func WriteReadsFile(outfile string, region Region, observations []ReadObservation) error {
	fh, err := xopen.Wopen(outfile)
	if err != nil {
		return err
	}
	fmt.Fprintf(fh, "##chrom=%s;pos=%d;motif=%d\n", region.Chrom, region.Start, region.MotifLen)
	fmt.Fprintf(fh, ReadsFileHeader)
	for _, obs := range observations {
		fmt.Fprintf(fh, "%s\t%d\t%.6f\t%.6f\n", obs.Sample, obs.Bps, obs.LogP1, obs.LogP2)
	}
	if err := fh.Close(); err != nil {
		return err
	}
	log.Noticef("Reads table with %d reads written to `%s`", len(observations), outfile)
	return nil
}
