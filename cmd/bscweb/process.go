package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	kingpin "github.com/alecthomas/kingpin/v2"
	"github.com/spf13/afero"

	logger "github.com/tomyedwab/scorecard/log"
	"github.com/tomyedwab/scorecard/workbook"
)

const defaultOutput = "processed_scorecard.xlsx"

var ErrNoInput = errors.New("no Excel files found, pass the input files explicitly")

type processCmd struct {
	fs    afero.Fs
	out   io.Writer
	files *[]string
	dest  *string
	csv   *string
}

func addProcess(app *kingpin.Application, fs afero.Fs, stdout io.Writer) {
	c := &processCmd{fs: fs, out: stdout}
	cmd := app.Command("process", "Process KPI workbooks without starting the dashboard.")
	c.files = cmd.Arg("files", "Workbooks to process. Defaults to the first .xlsx in the current directory.").Strings()
	c.dest = cmd.Flag("out", "Output workbook. Defaults to "+defaultOutput+" next to the first input.").Short('o').String()
	c.csv = cmd.Flag("csv", "Also write a CSV copy when a single sheet was processed.").String()
	cmd.Action(c.Process)
}

// inputs returns the files to process, falling back to the first workbook in
// the current directory.
func (c *processCmd) inputs() ([]string, error) {
	if len(*c.files) > 0 {
		return *c.files, nil
	}
	var found []string
	for _, pattern := range []string{"*.xlsx", "*.xlsm"} {
		matches, err := afero.Glob(c.fs, pattern)
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			if m != defaultOutput && !strings.HasPrefix(filepath.Base(m), "~$") {
				found = append(found, m)
			}
		}
	}
	if len(found) == 0 {
		return nil, ErrNoInput
	}
	sort.Strings(found)
	fmt.Fprintf(c.out, "Using input file: %s\n", found[0])
	return found[:1], nil
}

func (c *processCmd) writeFile(path string, write func(io.Writer) error) error {
	buf := &bytes.Buffer{}
	if err := write(buf); err != nil {
		return err
	}
	return afero.WriteFile(c.fs, path, buf.Bytes(), 0644)
}

func (c *processCmd) Process(_ *kingpin.ParseContext) error {
	paths, err := c.inputs()
	if err != nil {
		return err
	}

	var files []*workbook.File
	for _, path := range paths {
		data, err := afero.ReadFile(c.fs, path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		f, err := workbook.Open(filepath.Base(path), bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		defer f.Close()
		files = append(files, f)
	}

	batch := workbook.NewBatch(logger.Component("process"))
	batchErr := batch.Process(files, nil)
	for _, line := range batch.Logs() {
		fmt.Fprintln(c.out, line)
	}

	sheets := workbook.Layout(batch.Results, len(files))
	if len(sheets) == 0 {
		if batchErr != nil {
			return batchErr
		}
		return workbook.ErrNothingProcessed
	}
	if batchErr != nil {
		fmt.Fprintf(c.out, "Warning: %v\n", batchErr)
	}

	dest := *c.dest
	if dest == "" {
		dest = filepath.Join(filepath.Dir(paths[0]), defaultOutput)
	}
	if err := c.writeFile(dest, func(w io.Writer) error { return workbook.WriteSheets(w, sheets) }); err != nil {
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}
	fmt.Fprintf(c.out, "Results saved to: %s\n", dest)

	if *c.csv != "" {
		if len(sheets) != 1 {
			fmt.Fprintf(c.out, "Skipping CSV: %d sheets were processed\n", len(sheets))
		} else if err := c.writeFile(*c.csv, func(w io.Writer) error { return workbook.WriteCSV(w, sheets[0].Table) }); err != nil {
			return fmt.Errorf("failed to write %s: %w", *c.csv, err)
		} else {
			fmt.Fprintf(c.out, "CSV saved to: %s\n", *c.csv)
		}
	}

	stats := batch.Stats()
	fmt.Fprintf(c.out, "Done: %d rows, %d parsed, %d need manual check, %d errors\n",
		stats.Total, stats.Success, stats.ManualCheck, stats.Error)
	return nil
}
