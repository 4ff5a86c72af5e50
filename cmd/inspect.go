package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/zonal-cli/internal/raster"
)

var inspectTop int

var inspectCmd = &cobra.Command{
	Use:   "inspect <raster>",
	Short: "Print raster geometry, no-data value, and most frequent values",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := raster.Open(args[0])
		if err != nil {
			return err
		}
		return printInspect(cmd.OutOrStdout(), args[0], g, inspectTop)
	},
}

func printInspect(w io.Writer, path string, l raster.Layer, top int) error {
	p := message.NewPrinter(language.English)
	geo := l.Geometry()
	ext := geo.Extent()

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Raster:\t%s\n", path)
	fmt.Fprintf(tw, "Size:\t%s x %s cells\n", p.Sprintf("%d", geo.Cols), p.Sprintf("%d", geo.Rows))
	fmt.Fprintf(tw, "Cell size:\t%g x %g\n", geo.CellWidth, geo.CellHeight)
	fmt.Fprintf(tw, "Extent:\t%g %g %g %g\n", ext.MinX, ext.MinY, ext.MaxX, ext.MaxY)
	crs := geo.CRS.Name
	if crs == "" {
		crs = "(unset)"
	}
	if geo.CRS.Geographic {
		crs += " (geographic)"
	}
	fmt.Fprintf(tw, "CRS:\t%s\n", crs)
	if nd, ok := l.NoData(); ok {
		fmt.Fprintf(tw, "NoData:\t%g\n", nd)
	} else {
		fmt.Fprintf(tw, "NoData:\tnone\n")
	}

	hist := raster.Histogram(l)
	keys := raster.SortedKeys(hist)
	fmt.Fprintf(tw, "Distinct values:\t%s\n", p.Sprintf("%d", len(keys)))
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(keys) == 0 {
		return nil
	}
	// Most frequent first; equal counts stay in ascending value order.
	sort.SliceStable(keys, func(i, j int) bool { return hist[keys[i]] > hist[keys[j]] })
	if top > 0 && len(keys) > top {
		keys = keys[:top]
	}

	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Value\tCells\t")
	for _, k := range keys {
		fmt.Fprintf(tw, "%g\t%s\t\n", k, p.Sprintf("%d", hist[k]))
	}
	return tw.Flush()
}

func init() {
	inspectCmd.Flags().IntVar(&inspectTop, "top", 20, "most frequent values to print (0 for all)")
	rootCmd.AddCommand(inspectCmd)
}
