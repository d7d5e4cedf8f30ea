/*
 *  extract.go
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

	"github.com/biogo/hts/bam"
	"github.com/biogo/hts/sam"
)

// defaultSample labels reads that carry no RG tag
const defaultSample = "sample1"

var rgTag = sam.NewTag("RG")

// Extracter pulls length observations for each STR region out of a BAM
// file and writes one reads table per region. A read must fully span a
// region to yield an observation; its STR length is the reference span
// adjusted by the indels its alignment places inside the region. Reads
// carry uninformative phasing likelihoods (log 0.5 each) until SNP
// evidence is attached upstream
type Extracter struct {
	Bamfile     string
	Regionsfile string
	MinMapQ     int
	MaxReads    int
	Gzip        bool
	// Output reads tables, one per region
	OutReadsfiles []string
}

// Run extracts observations for every region and writes the reads tables
func (r *Extracter) Run() {
	regionsFile := RegionsFile{Filename: r.Regionsfile}
	ErrorAbort(regionsFile.ParseRecords())
	regions := regionsFile.Regions

	observations := r.extractObservations(regions)

	logHalf := math.Log(0.5)
	for i, region := range regions {
		for j := range observations[i] {
			observations[i][j].LogP1 = logHalf
			observations[i][j].LogP2 = logHalf
		}
		outfile := fmt.Sprintf("%s.%s.reads.tsv", RemoveExt(r.Bamfile), region.Name)
		if r.Gzip {
			outfile += ".gz"
		}
		ErrorAbort(WriteReadsFile(outfile, region, observations[i]))
		r.OutReadsfiles = append(r.OutReadsfiles, outfile)
	}
	log.Notice("Success")
}

// extractObservations scans the BAM once and assigns spanning reads to
// their regions, capping the reads kept per sample at each locus
func (r *Extracter) extractObservations(regions []Region) [][]ReadObservation {
	mustExist(r.Bamfile)
	fh := mustOpen(r.Bamfile)
	defer fh.Close()

	log.Noticef("Parse bamfile `%s`", r.Bamfile)
	br, err := bam.NewReader(fh, 0)
	if br == nil {
		log.Fatalf("Cannot open bamfile `%s` (%s)", r.Bamfile, err)
	}
	defer br.Close()

	regionsByChrom := make(map[string][]int)
	for i, region := range regions {
		regionsByChrom[region.Chrom] = append(regionsByChrom[region.Chrom], i)
	}

	observations := make([][]ReadObservation, len(regions))
	sampleCounts := make([]map[string]int, len(regions))
	for i := range sampleCounts {
		sampleCounts[i] = map[string]int{}
	}

	nSpanning, nSkipped := 0, 0
	for {
		rec, err := br.Read()
		if err != nil {
			if err != io.EOF {
				log.Error(err)
			}
			break
		}
		// Filtering: Unmapped | Secondary | QCFail | Duplicate | Supplementary
		if int(rec.MapQ) < r.MinMapQ || rec.Flags&3844 != 0 {
			continue
		}

		candidates, ok := regionsByChrom[rec.Ref.Name()]
		if !ok {
			continue
		}
		readStart, readEnd := rec.Pos, rec.End()
		for _, ri := range candidates {
			region := regions[ri]
			if readStart > region.Start || readEnd < region.End {
				continue
			}
			sample := sampleName(rec)
			if r.MaxReads > 0 && sampleCounts[ri][sample] >= r.MaxReads {
				nSkipped++
				continue
			}
			sampleCounts[ri][sample]++
			observations[ri] = append(observations[ri], ReadObservation{
				Sample: sample,
				Bps:    observedSTRLength(rec, region),
			})
			nSpanning++
		}
	}
	log.Noticef("Extracted %d spanning reads over %d regions (%d past per-sample cap)",
		nSpanning, len(regions), nSkipped)
	return observations
}

// sampleName resolves the read's sample from its RG tag
func sampleName(rec *sam.Record) string {
	if aux := rec.AuxFields.Get(rgTag); aux != nil {
		return fmt.Sprint(aux.Value())
	}
	return defaultSample
}

// observedSTRLength infers the read's STR length in bp: the reference
// span of the region plus the insertions and minus the deletions the
// alignment places inside it
func observedSTRLength(rec *sam.Record, region Region) int {
	obs := region.End - region.Start
	refPos := rec.Pos
	for _, co := range rec.Cigar {
		opLen := co.Len()
		switch co.Type() {
		case sam.CigarInsertion:
			if refPos > region.Start && refPos < region.End {
				obs += opLen
			}
		case sam.CigarDeletion, sam.CigarSkipped:
			if overlap := min(region.End, refPos+opLen) - max(region.Start, refPos); overlap > 0 {
				obs -= overlap
			}
		}
		if co.Type().Consumes().Reference == 1 {
			refPos += opLen
		}
	}
	return obs
}
