package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	tracedump "sdfmarch/tracer/tools/trace_dump"
)

func main() {
	path := flag.String("path", "", "path to a trace session directory or manifest.json")
	dir := flag.String("dir", "", "list every closed session under this directory instead")
	framesFlag := flag.Bool("frames", false, "include per-frame summaries in the output")
	flag.Parse()

	if *dir != "" {
		entries, err := tracedump.List(*dir)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		payload, err := tracedump.MarshalEntries(entries)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(string(payload))
		return
	}

	if *path == "" {
		fmt.Fprintln(os.Stderr, "path or dir flag is required")
		os.Exit(1)
	}
	summary, err := tracedump.Load(*path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(2)
	}
	if !*framesFlag {
		summary.Frames = nil
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		fmt.Fprintln(os.Stderr, "encode error:", err)
		os.Exit(3)
	}
}
