package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/laschicaz/samp-plugin-crashdetect/amx"
	"github.com/laschicaz/samp-plugin-crashdetect/amxdbg"
)

type addrEntry struct {
	Address  string `json:"address"`
	Function string `json:"function,omitempty"`
	File     string `json:"file,omitempty"`
	Line     int32  `json:"line,omitempty"`
}

func newAddrCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "addr <file.amx> <hexaddr>...",
		Short: "Resolve code addresses to function, file and line",
		Long: "Resolve code addresses against the image's debug symbols, the\n" +
			"same lookup the crash reports perform. Addresses are hexadecimal,\n" +
			"with or without a 0x prefix.",
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := amxdbg.LoadFile(args[0])
			if err != nil {
				return err
			}

			entries := []addrEntry{}
			for _, arg := range args[1:] {
				addr, err := parseCodeAddress(arg)
				if err != nil {
					return err
				}
				entry := addrEntry{Address: fmt.Sprintf("0x%08x", uint32(addr))}
				if fn, ok := table.LookupFunction(addr); ok {
					entry.Function = fn.Name
					entry.File, _ = table.LookupFile(addr)
					entry.Line, _ = table.LookupLine(addr)
				}
				entries = append(entries, entry)
			}

			return writeResult(cmd, entries, func(w io.Writer) {
				for _, e := range entries {
					fmt.Fprintln(w, formatAddrEntry(e))
				}
			})
		},
	}
}

func parseCodeAddress(s string) (amx.Cell, error) {
	trimmed := strings.TrimPrefix(strings.ToLower(s), "0x")
	value, err := strconv.ParseUint(trimmed, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("bad address %q: expected a hex code address", s)
	}
	return amx.Cell(value), nil
}

func formatAddrEntry(e addrEntry) string {
	if e.Function == "" {
		return fmt.Sprintf("%s = ??", e.Address)
	}
	if e.File != "" && e.Line != 0 {
		return fmt.Sprintf("%s = %s (%s:%d)", e.Address, e.Function, e.File, e.Line)
	}
	return fmt.Sprintf("%s = %s", e.Address, e.Function)
}
