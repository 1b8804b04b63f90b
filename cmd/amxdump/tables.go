package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/laschicaz/samp-plugin-crashdetect/amx"
)

type publicEntry struct {
	Index   int    `json:"index"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

type nativeEntry struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
}

func newPublicsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "publics <file.amx>",
		Short: "List the public function table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			am, err := amx.LoadFile(args[0])
			if err != nil {
				return err
			}
			entries := []publicEntry{}
			for i, pub := range am.Publics() {
				entries = append(entries, publicEntry{
					Index:   i,
					Name:    pub.Name,
					Address: fmt.Sprintf("0x%08x", uint32(pub.Address)),
				})
			}
			return writeResult(cmd, entries, func(w io.Writer) {
				headingColor.Fprintf(w, "%d publics\n", len(entries))
				for _, e := range entries {
					fmt.Fprintf(w, "  %4d  %s  %s\n", e.Index, e.Address, e.Name)
				}
			})
		},
	}
}

func newNativesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "natives <file.amx>",
		Short: "List the native function table",
		Long: "List the native functions the script imports. Addresses are not\n" +
			"shown: natives bind to host code at run time, not in the image.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			am, err := amx.LoadFile(args[0])
			if err != nil {
				return err
			}
			entries := []nativeEntry{}
			for i, native := range am.Natives() {
				entries = append(entries, nativeEntry{Index: i, Name: native.Name})
			}
			return writeResult(cmd, entries, func(w io.Writer) {
				headingColor.Fprintf(w, "%d natives\n", len(entries))
				for _, e := range entries {
					fmt.Fprintf(w, "  %4d  %s\n", e.Index, e.Name)
				}
			})
		},
	}
}
