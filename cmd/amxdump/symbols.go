package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/laschicaz/samp-plugin-crashdetect/amxdbg"
)

type symbolsReport struct {
	File        string          `json:"file"`
	SourceFiles []string        `json:"source_files"`
	LineMarkers int             `json:"line_markers"`
	Symbols     int             `json:"symbols"`
	Functions   []functionEntry `json:"functions"`
}

type functionEntry struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	File    string `json:"file,omitempty"`
	Line    int32  `json:"line,omitempty"`
}

func newSymbolsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "symbols <file.amx>",
		Short: "Summarize the debug info chunk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := amxdbg.LoadFile(args[0])
			if err != nil {
				return err
			}

			report := symbolsReport{
				File:        args[0],
				SourceFiles: []string{},
				LineMarkers: len(table.Lines()),
				Symbols:     len(table.Symbols()),
				Functions:   []functionEntry{},
			}
			for _, f := range table.Files() {
				report.SourceFiles = append(report.SourceFiles, f.Name)
			}
			for _, fn := range table.Functions() {
				entry := functionEntry{
					Name:    fn.Name,
					Address: fmt.Sprintf("0x%08x", uint32(fn.Address)),
				}
				entry.File, _ = table.LookupFile(fn.Address)
				entry.Line, _ = table.LookupLine(fn.Address)
				report.Functions = append(report.Functions, entry)
			}

			return writeResult(cmd, report, func(w io.Writer) {
				printSymbols(w, report)
			})
		},
	}
}

func printSymbols(w io.Writer, report symbolsReport) {
	headingColor.Fprintln(w, report.File)
	fmt.Fprintf(w, "  %d source files, %d line markers, %d symbols\n",
		len(report.SourceFiles), report.LineMarkers, report.Symbols)
	for _, name := range report.SourceFiles {
		fmt.Fprintf(w, "  source  %s\n", name)
	}
	if len(report.Functions) == 0 {
		return
	}
	headingColor.Fprintln(w, "functions")
	for _, fn := range report.Functions {
		location := ""
		if fn.File != "" && fn.Line != 0 {
			location = fmt.Sprintf("  %s:%d", fn.File, fn.Line)
		}
		fmt.Fprintf(w, "  %s  %s%s\n", fn.Address, fn.Name, location)
	}
}
