/*
 *  hipstr.go
 *  cmd
 *
 *  Created by Syed Nashraf on 02/09/20
 *  Copyright © 2020 Syed Nashraf. All rights reserved.
 */

package main

import (
	"os"
	"strings"
	"time"

	logging "github.com/op/go-logging"
	hipstr "github.com/snashraf/HipSTR"
	"github.com/urfave/cli"
)

var log = logging.MustGetLogger("main")

// banner prints the separate steps
func banner(message string) {
	message = "* " + message + " *"
	log.Noticef(strings.Repeat("*", len(message)))
	log.Noticef(message)
	log.Noticef(strings.Repeat("*", len(message)))
}

// main is the entrypoint for the entire program, routes to commands
func main() {
	logging.SetBackend(hipstr.BackendFormatter)

	app := cli.NewApp()
	app.Compiled = time.Now()
	app.Name = "HipSTR"
	app.Usage = "Haplotype inference and phasing for short tandem repeats"
	app.Version = hipstr.Version

	extractFlags := []cli.Flag{
		cli.IntFlag{
			Name:  "minMapQ",
			Usage: "Minimum mapping quality for a read to be used",
			Value: hipstr.MinMapQuality,
		},
		cli.IntFlag{
			Name:  "maxReads",
			Usage: "Maximum reads kept per sample at each locus",
			Value: hipstr.MaxReadsPerSample,
		},
		cli.BoolFlag{
			Name:  "gzip",
			Usage: "Gzip-compress the output reads tables",
		},
	}

	genotypeFlags := []cli.Flag{
		cli.StringFlag{
			Name:  "out",
			Usage: "Output VCF file, - for stdout, a .gz suffix compresses",
			Value: "-",
		},
		cli.StringFlag{
			Name:  "stutterOut",
			Usage: "Also write the fitted stutter models to this file",
		},
		cli.StringFlag{
			Name:  "npyOut",
			Usage: "Dump genotype posteriors as a numpy array (single locus only)",
		},
		cli.IntFlag{
			Name:  "maxIter",
			Usage: "Maximum number of EM iterations per locus",
			Value: hipstr.MaxEMIterations,
		},
		cli.Float64Flag{
			Name:  "absLL",
			Usage: "Absolute log-likelihood change for EM convergence",
			Value: hipstr.AbsLLConverge,
		},
		cli.Float64Flag{
			Name:  "fracLL",
			Usage: "Fractional log-likelihood change for EM convergence",
			Value: hipstr.FracLLConverge,
		},
		cli.BoolFlag{
			Name:  "fastLogSumExp",
			Usage: "Use the faster clamped log-sum-exp aggregator",
		},
	}

	app.Commands = []cli.Command{
		{
			Name:  "extract",
			Usage: "Extract per-locus STR read length tables from a BAM file",
			UsageText: `
	hipstr extract bamfile regionsfile [options]

Extract function:
Given a coordinate-sorted BAM file and a tab-separated regions file
(chrom, start, end, motif_len, [name]), pull out every read that fully
spans an STR region, infer its repeat length from the alignment, and
write one reads table per region for the genotype step.
`,
			Flags: extractFlags,
			Action: func(c *cli.Context) error {
				if c.NArg() < 2 {
					cli.ShowSubcommandHelp(c)
					return cli.NewExitError("Must specify bamfile and regionsfile", 1)
				}
				p := hipstr.Extracter{
					Bamfile:     c.Args().Get(0),
					Regionsfile: c.Args().Get(1),
					MinMapQ:     c.Int("minMapQ"),
					MaxReads:    c.Int("maxReads"),
					Gzip:        c.Bool("gzip"),
				}
				p.Run()
				return nil
			},
		},
		{
			Name:  "genotype",
			Usage: "Fit the stutter model and genotype STR loci via EM",
			UsageText: `
	hipstr genotype readsfile1 [readsfile2 ...] [options]

Genotype function:
Given per-locus reads tables from the extract step, jointly estimate a
PCR stutter noise model and phased diploid genotype posteriors with EM,
then emit one VCF record per locus over the union of all samples.
`,
			Flags: genotypeFlags,
			Action: func(c *cli.Context) error {
				if c.NArg() < 1 {
					cli.ShowSubcommandHelp(c)
					return cli.NewExitError("Must specify at least one readsfile", 1)
				}
				readsfiles := make([]string, c.NArg())
				for i := 0; i < c.NArg(); i++ {
					readsfiles[i] = c.Args().Get(i)
				}
				p := genotyperFromContext(c, readsfiles)
				p.Run()
				return nil
			},
		},
		{
			Name:  "pipeline",
			Usage: "Run extract-genotype steps sequentially",
			UsageText: `
	hipstr pipeline bamfile regionsfile [options]

Pipeline:
A convenience driver function. Chain the extract and genotype steps.
`,
			Flags: append(extractFlags, genotypeFlags...),
			Action: func(c *cli.Context) error {
				if c.NArg() < 2 {
					cli.ShowSubcommandHelp(c)
					return cli.NewExitError("Must specify bamfile and regionsfile", 1)
				}

				banner("Extract spanning reads per STR region")
				extracter := hipstr.Extracter{
					Bamfile:     c.Args().Get(0),
					Regionsfile: c.Args().Get(1),
					MinMapQ:     c.Int("minMapQ"),
					MaxReads:    c.Int("maxReads"),
					Gzip:        c.Bool("gzip"),
				}
				extracter.Run()

				banner("Genotype loci via EM stutter training")
				p := genotyperFromContext(c, extracter.OutReadsfiles)
				p.Run()
				return nil
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// genotyperFromContext assembles the Genotyper from shared CLI flags
func genotyperFromContext(c *cli.Context, readsfiles []string) hipstr.Genotyper {
	return hipstr.Genotyper{
		Readsfiles:      readsfiles,
		Outfile:         c.String("out"),
		StutterOutfile:  c.String("stutterOut"),
		NpyOutfile:      c.String("npyOut"),
		MaxIter:         c.Int("maxIter"),
		MinLLAbsChange:  c.Float64("absLL"),
		MinLLFracChange: c.Float64("fracLL"),
		FastLogSumExp:   c.Bool("fastLogSumExp"),
	}
}
