/*
 *  regions.go
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

// RegionsFile is the BED-like table of STR loci to genotype:
// chrom, start, end, motif length and an optional locus name
type RegionsFile struct {
	Filename string
	Regions  []Region
}

// ParseRecords collects all regions in memory, sorted by chrom and start
func (r *RegionsFile) ParseRecords() error {
	fh, err := xopen.Ropen(r.Filename)
	if err != nil {
		return err
	}
	defer fh.Close()

	log.Noticef("Parse regionsfile `%s`", r.Filename)
	r.Regions = nil
	lineNo := 0
	for {
		row, err := fh.ReadString('\n')
		row = strings.TrimSpace(row)
		if row == "" && err == io.EOF {
			break
		}
		lineNo++
		if strings.HasPrefix(row, "#") {
			continue
		}
		words := strings.Split(row, "\t")
		if len(words) < 4 {
			return fmt.Errorf("%s:%d: expected at least 4 columns, got %d", r.Filename, lineNo, len(words))
		}
		start, err := strconv.Atoi(words[1])
		if err != nil {
			return fmt.Errorf("%s:%d: bad start %q", r.Filename, lineNo, words[1])
		}
		end, err := strconv.Atoi(words[2])
		if err != nil {
			return fmt.Errorf("%s:%d: bad end %q", r.Filename, lineNo, words[2])
		}
		motifLen, err := strconv.Atoi(words[3])
		if err != nil || motifLen < 1 {
			return fmt.Errorf("%s:%d: bad motif length %q", r.Filename, lineNo, words[3])
		}
		if end <= start {
			return fmt.Errorf("%s:%d: empty region %s:%d-%d", r.Filename, lineNo, words[0], start, end)
		}
		region := Region{
			Chrom:    words[0],
			Start:    start,
			End:      end,
			MotifLen: motifLen,
		}
		if len(words) > 4 {
			region.Name = words[4]
		} else {
			region.Name = fmt.Sprintf("%s_%d", region.Chrom, region.Start)
		}
		r.Regions = append(r.Regions, region)
	}

	sort.Slice(r.Regions, func(i, j int) bool {
		if r.Regions[i].Chrom != r.Regions[j].Chrom {
			return r.Regions[i].Chrom < r.Regions[j].Chrom
		}
		return r.Regions[i].Start < r.Regions[j].Start
	})
	log.Noticef("A total of %d STR regions imported", len(r.Regions))
	return nil
}
