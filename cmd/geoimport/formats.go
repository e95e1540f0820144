package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/geoimport/internal/core"
	"github.com/JonMunkholm/geoimport/internal/parser"
)

func formatsCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "List the input formats and the file extensions detected for each",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printFormats(stdout, core.Formats())
		},
	}
}

func printFormats(w io.Writer, formats []core.Format) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FORMAT\tEXTENSIONS")
	for _, f := range formats {
		exts := make([]string, len(f.Extensions))
		for i, ext := range f.Extensions {
			exts[i] = ext + ".gz"
		}
		fmt.Fprintf(tw, "%s\t%s\n", f.Name, strings.Join(exts, ", "))
	}
	fmt.Fprintf(tw, "%s\t(detect from file name)\n", parser.Auto)
	return tw.Flush()
}
