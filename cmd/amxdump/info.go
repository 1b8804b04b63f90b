package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/laschicaz/samp-plugin-crashdetect/amx"
)

type imageInfo struct {
	File          string   `json:"file"`
	ImageSize     int32    `json:"image_size"`
	FileVersion   uint8    `json:"file_version"`
	AMXVersion    uint8    `json:"amx_version"`
	Flags         []string `json:"flags"`
	CodeSize      int32    `json:"code_size"`
	DataSize      int32    `json:"data_size"`
	StackHeapSize int32    `json:"stack_heap_size"`
	MainAddress   string   `json:"main_address"`
	Publics       int      `json:"publics"`
	Natives       int      `json:"natives"`
	DebugInfo     bool     `json:"debug_info"`
}

func newInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info <file.amx>",
		Short: "Show image header and section layout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			am, err := amx.LoadFile(args[0])
			if err != nil {
				return err
			}
			hdr := am.Header()
			info := imageInfo{
				File:          args[0],
				ImageSize:     hdr.Size,
				FileVersion:   hdr.FileVersion,
				AMXVersion:    hdr.AMXVersion,
				Flags:         flagNames(hdr.Flags),
				CodeSize:      hdr.Dat - hdr.Cod,
				DataSize:      hdr.Hea - hdr.Dat,
				StackHeapSize: hdr.Stp - hdr.Hea,
				MainAddress:   mainAddress(hdr),
				Publics:       len(am.Publics()),
				Natives:       am.NumNatives(),
				DebugInfo:     hdr.Flags&amx.FlagDebug != 0,
			}
			return writeResult(cmd, info, func(w io.Writer) {
				printInfo(w, info)
			})
		},
	}
}

func flagNames(flags int16) []string {
	names := []string{}
	for _, f := range []struct {
		bit  int16
		name string
	}{
		{amx.FlagDebug, "debug"},
		{amx.FlagCompact, "compact"},
		{amx.FlagByteOpc, "byte-opcodes"},
		{amx.FlagNoChecks, "no-checks"},
	} {
		if flags&f.bit != 0 {
			names = append(names, f.name)
		}
	}
	return names
}

func mainAddress(hdr amx.Header) string {
	if hdr.Cip < 0 {
		return "none"
	}
	return fmt.Sprintf("0x%08x", uint32(hdr.Cip))
}

func printInfo(w io.Writer, info imageInfo) {
	headingColor.Fprintln(w, info.File)
	flags := strings.Join(info.Flags, ", ")
	if flags == "" {
		flags = "none"
	}
	fmt.Fprintf(w, "  image size    %d bytes\n", info.ImageSize)
	fmt.Fprintf(w, "  file version  %d (machine %d)\n", info.FileVersion, info.AMXVersion)
	fmt.Fprintf(w, "  flags         %s\n", flags)
	fmt.Fprintf(w, "  code          %d bytes\n", info.CodeSize)
	fmt.Fprintf(w, "  data          %d bytes\n", info.DataSize)
	fmt.Fprintf(w, "  stack/heap    %d bytes\n", info.StackHeapSize)
	fmt.Fprintf(w, "  main          %s\n", info.MainAddress)
	fmt.Fprintf(w, "  publics       %d\n", info.Publics)
	fmt.Fprintf(w, "  natives       %d\n", info.Natives)
}
