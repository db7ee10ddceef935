package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teranos/handcap/codec"
	"github.com/teranos/handcap/dataset"
	"github.com/teranos/handcap/pose"
)

func newDatasetCommand(ctx *commandContext) *cobra.Command {
	datasetCmd := &cobra.Command{
		Use:   "dataset",
		Short: "Inspect and convert stored recordings",
	}

	datasetCmd.AddCommand(newDatasetListCommand(ctx))
	datasetCmd.AddCommand(newDatasetShowCommand())
	datasetCmd.AddCommand(newDatasetResampleCommand(ctx))
	datasetCmd.AddCommand(newDatasetExportCommand(ctx))

	return datasetCmd
}

type datasetRow struct {
	File       string  `json:"file"`
	Frames     int     `json:"frames"`
	Leaves     int     `json:"leaves"`
	DurationMs float64 `json:"duration_ms"`
	IP         string  `json:"ip,omitempty"`
	Received   string  `json:"received,omitempty"`
	Error      string  `json:"error,omitempty"`
}

func newDatasetListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ls [dir]",
		Short: "List recordings in a folder",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			dir := cfg.Collector.DataDir
			if len(args) == 1 {
				if dir, err = expandFlagPath(args[0]); err != nil {
					return err
				}
			}

			paths, err := dataset.List(dir)
			if err != nil {
				return err
			}
			rows := make([]datasetRow, 0, len(paths))
			for _, p := range paths {
				row := datasetRow{File: filepath.Base(p)}
				info, err := dataset.Inspect(p)
				if err != nil {
					row.Error = err.Error()
				} else {
					row.Frames = info.Frames
					row.Leaves = info.Leaves
					row.DurationMs = info.DurationMs
					row.IP = info.IP
					if !info.Received.IsZero() {
						row.Received = formatReceived(info.Received)
					}
				}
				rows = append(rows, row)
			}

			if asJSON {
				return writeJSON(cmd, rows)
			}
			if len(rows) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No recordings in %s\n", dir)
				return nil
			}
			table := make([][]string, 0, len(rows))
			for _, r := range rows {
				if r.Error != "" {
					table = append(table, []string{r.File, "-", "-", "-", "-", "error: " + r.Error})
					continue
				}
				table = append(table, []string{
					r.File,
					itoa(r.Frames),
					itoa(r.Leaves),
					formatMillis(r.DurationMs),
					valueOrDash(r.IP),
					valueOrDash(r.Received),
				})
			}
			return writeRows(cmd.OutOrStdout(),
				[]string{"File", "Frames", "Leaves", "Duration", "IP", "Received"},
				table,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignLeft, alignLeft})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newDatasetShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <file>",
		Short: "Summarize one recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := expandFlagPath(args[0])
			if err != nil {
				return err
			}
			rec, err := dataset.Load(path)
			if err != nil {
				return err
			}
			info, err := dataset.Inspect(path)
			if err != nil {
				return err
			}

			var keys []string
			for _, e := range rec.Descriptor.Entries() {
				keys = append(keys, fmt.Sprintf("%s(%d)", e.Key, e.Node.Leaves()))
			}
			rows := [][]string{
				{"File", filepath.Base(path)},
				{"Frames", itoa(info.Frames)},
				{"Leaves", itoa(info.Leaves)},
				{"Duration", formatMillis(info.DurationMs)},
				{"IP", valueOrDash(info.IP)},
				{"Received", formatReceived(info.Received)},
				{"Keys", strings.Join(keys, " ")},
			}
			return writeRows(cmd.OutOrStdout(), []string{"Field", "Value"}, rows, nil)
		},
	}
}

func newDatasetResampleCommand(ctx *commandContext) *cobra.Command {
	var hz float64
	var output string

	cmd := &cobra.Command{
		Use:   "resample <file>",
		Short: "Resample a recording at a uniform rate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("hz") {
				hz = cfg.Dataset.ResampleHz
			}
			rec, err := loadArg(args[0])
			if err != nil {
				return err
			}
			out, err := dataset.Resample(rec, hz)
			if err != nil {
				return err
			}

			w, closeOut, err := openOutput(output, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if err := json.NewEncoder(w).Encode(out); err != nil {
				_ = closeOut()
				return fmt.Errorf("write recording: %w", err)
			}
			return closeOut()
		},
	}

	cmd.Flags().Float64Var(&hz, "hz", dataset.DefaultFrequency, "Sampling rate (defaults to dataset.resample_hz)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (stdout when empty)")
	return cmd
}

func newDatasetExportCommand(ctx *commandContext) *cobra.Command {
	var format string
	var poseForm string
	var gestureFrom string
	var hz float64
	var output string

	cmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Write a recording as a list of frames",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ctx.ensureConfig(); err != nil {
				return err
			}
			f := dataset.Format(strings.ToLower(strings.TrimSpace(format)))
			if f != dataset.JSON && f != dataset.YAML {
				return fmt.Errorf("unsupported format %q (json or yaml)", format)
			}
			posquat := false
			switch strings.ToLower(strings.TrimSpace(poseForm)) {
			case "", "matrix":
			case "posquat":
				posquat = true
			default:
				return fmt.Errorf("unsupported pose form %q (matrix or posquat)", poseForm)
			}
			rec, err := loadArg(args[0])
			if err != nil {
				return err
			}
			if hz > 0 {
				if rec, err = dataset.Resample(rec, hz); err != nil {
					return err
				}
			}
			frames, err := dataset.Unflatten(rec)
			if err != nil {
				return err
			}
			if gestureFrom != "" {
				source, err := loadArg(gestureFrom)
				if err != nil {
					return err
				}
				shape, err := source.Frame(0)
				if err != nil {
					return fmt.Errorf("gesture source: %w", err)
				}
				for i, snap := range frames {
					if frames[i], err = pose.ReplaceGesture(shape, snap); err != nil {
						return fmt.Errorf("frame %d: %w", i, err)
					}
				}
			}
			if posquat {
				for i, snap := range frames {
					if frames[i], err = pose.SnapshotPositionQuaternion(snap); err != nil {
						return fmt.Errorf("frame %d: %w", i, err)
					}
				}
			}

			w, closeOut, err := openOutput(output, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if err := dataset.Export(w, frames, f); err != nil {
				_ = closeOut()
				return err
			}
			return closeOut()
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "json", "Output format: json or yaml")
	cmd.Flags().StringVar(&poseForm, "pose", "matrix", "Transform form: matrix or posquat (position + quaternion)")
	cmd.Flags().StringVar(&gestureFrom, "gesture-from", "", "Move the finger shape of this recording's first frame onto every frame's wrists")
	cmd.Flags().Float64Var(&hz, "hz", 0, "Resample before exporting (0 keeps the recorded frames)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (stdout when empty)")
	return cmd
}

func loadArg(arg string) (*codec.Recording, error) {
	path, err := expandFlagPath(arg)
	if err != nil {
		return nil, err
	}
	return dataset.Load(path)
}
