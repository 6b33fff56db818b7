// linkbench-report renders JSON reports saved with -report.format=json as
// text tables.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/apex/log"

	"github.com/m-lab/linkbench/report"
)

var rankOnly = flag.Bool("best", false, "Only print the best rates of every report")

func render(w io.Writer, paths []string, bestOnly bool) error {
	for _, p := range paths {
		s, err := report.Read(p)
		if err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
		if !bestOnly {
			if err := report.WriteText(w, s); err != nil {
				return fmt.Errorf("%s: %w", p, err)
			}
			continue
		}
		fmt.Fprintf(w, "%s: throughput=%s signal=%s\n", p, s.BestThroughput, s.BestSignalQuality)
	}
	return nil
}

func main() {
	flag.Parse()
	if flag.NArg() == 0 {
		log.Warn("Usage: linkbench-report [-best] report.json[.gz]...")
		os.Exit(2)
	}
	if err := render(os.Stdout, flag.Args(), *rankOnly); err != nil {
		log.WithError(err).Warn("render() failed")
		os.Exit(1)
	}
}
