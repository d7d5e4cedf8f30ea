/*
 *  vcf_test.go
 *  hipstr
 *
 *  Created by Syed Nashraf on 02/09/20
 *  Copyright © 2020 Syed Nashraf. All rights reserved.
 */

package hipstr_test

import (
	"bytes"
	"math"
	"regexp"
	"strings"
	"testing"

	hipstr "github.com/snashraf/HipSTR"
)

var recordPattern = regexp.MustCompile(`^chr4\t3074876\t\.\t` +
	`INFRAME_PGEOM=\d+\.\d{3};INFRAME_UP=\d+\.\d{3};INFRAME_DOWN=\d+\.\d{3};` +
	`OUTFRAME_PGEOM=\d+\.\d{3};OUTFRAME_UP=\d+\.\d{3};OUTFRAME_DOWN=\d+\.\d{3};` +
	`\tGT:POSTERIOR:TOTALREADS:CHROMREADS:PHASEDREADS` +
	`(\t(\.|\d+\|\d+:\d+\.\d{3}:\d+:\d+\.\d{3}\|-?\d+\.\d{3}))+$`)

func TestRecordGrammar(t *testing.T) {
	reads := append(repeatReads(4, 0, math.Log(0.99), math.Log(0.01)),
		repeatReads(4, 1, math.Log(0.01), math.Log(0.99))...)
	gt := trainedGenotyper(t, []int{20, 24}, 4, reads, []string{"s1"})

	var buf bytes.Buffer
	if err := gt.WriteVCFRecord("chr4", 3074876, []string{"s1", "unknown"}, &buf); err != nil {
		t.Fatal(err)
	}
	line := strings.TrimSuffix(buf.String(), "\n")
	if !recordPattern.MatchString(line) {
		t.Fatalf("record does not match the expected grammar: %q", line)
	}
	fields := strings.Split(line, "\t")
	if fields[len(fields)-1] != "." {
		t.Errorf("unknown sample column = %q, want .", fields[len(fields)-1])
	}
}

func TestRecordEmissionIsIdempotent(t *testing.T) {
	logHalf := math.Log(0.5)
	reads := append(repeatReads(10, 0, logHalf, logHalf),
		repeatReads(2, 1, logHalf, logHalf)...)
	gt := trainedGenotyper(t, []int{20, 24}, 4, reads, []string{"s1"})

	var first, second bytes.Buffer
	if err := gt.WriteVCFRecord("chr4", 3074876, []string{"s1"}, &first); err != nil {
		t.Fatal(err)
	}
	if err := gt.WriteVCFRecord("chr4", 3074876, []string{"s1"}, &second); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first.Bytes(), second.Bytes()) {
		t.Errorf("repeated emission differs:\n%q\n%q", first.String(), second.String())
	}
}

func TestVCFHeader(t *testing.T) {
	var buf bytes.Buffer
	hipstr.WriteVCFHeader([]string{"s1", "s2"}, &buf)
	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if lines[0] != "##fileformat=VCFv4.1" {
		t.Errorf("first header line = %q", lines[0])
	}
	last := lines[len(lines)-1]
	if last != "#CHROM\tPOS\tID\tINFO\tFORMAT\ts1\ts2" {
		t.Errorf("column line = %q", last)
	}
	for _, key := range []string{"INFRAME_PGEOM", "INFRAME_UP", "INFRAME_DOWN",
		"OUTFRAME_PGEOM", "OUTFRAME_UP", "OUTFRAME_DOWN"} {
		if !strings.Contains(buf.String(), "##INFO=<ID="+key) {
			t.Errorf("header is missing INFO declaration for %s", key)
		}
	}
}

func TestWriteStutterModel(t *testing.T) {
	logHalf := math.Log(0.5)
	gt := trainedGenotyper(t, []int{20}, 4, repeatReads(6, 0, logHalf, logHalf), []string{"s1"})

	var buf bytes.Buffer
	if err := gt.WriteStutterModel("chr4:3074876-3074933", &buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "chr4:3074876-3074933\n") {
		t.Errorf("missing region header: %q", out)
	}
	if !strings.Contains(out, "IN_FRAME [P_GEOM(rep)=") || !strings.Contains(out, "OUT_FRAME[P_GEOM(bp) =") {
		t.Errorf("missing model body: %q", out)
	}
}
