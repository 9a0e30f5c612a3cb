package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/hashicorp/go-multierror"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/firefart/dmarcsummary/internal/archive"
	"github.com/firefart/dmarcsummary/internal/dmarc"
	"github.com/firefart/dmarcsummary/internal/presenter"
	"github.com/firefart/dmarcsummary/internal/summary"
)

var logger = newLogger()

func newLogger() *log.Logger {
	l := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: false,
	})
	if !isatty.IsTerminal(os.Stderr.Fd()) && !isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		l.SetFormatter(log.LogfmtFormatter)
	}
	return l
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		logger.Error(err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var debug bool
	var dialog bool

	cmd := &cobra.Command{
		Use:   "dmarcsummary [flags] <file>",
		Short: "Summarize DMARC aggregate reports",
		Long: "dmarcsummary extracts DMARC aggregate reports from a .zip, .gz, .xml or\n" +
			".eml file and prints a human readable summary of the authentication\n" +
			"results.",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if debug {
				logger.SetLevel(log.DebugLevel)
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFile(args[0], dialog)
		},
	}

	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "print debug output")
	cmd.Flags().BoolVar(&dialog, "dialog", false, "show the summary in a dialog box instead of writing it to stdout")
	cmd.AddCommand(newIMAPCommand())
	return cmd
}

func runFile(path string, useDialog bool) error {
	payloads, err := archive.Extract(path)
	if err != nil {
		return err
	}

	entries := parseAll(payloads)
	text, summarized := summary.Summarize(entries)
	if summarized == 0 {
		return fmt.Errorf("no valid reports found in %s: %w", path, entryErrors(entries))
	}
	present(text, useDialog)
	return nil
}

// parseAll parses every payload in order. Parse failures become failed
// entries so one bad payload can not hide the others.
func parseAll(payloads []archive.Payload) []summary.Entry {
	entries := make([]summary.Entry, 0, len(payloads))
	for _, p := range payloads {
		logger.Debugf("parsing %s (%d bytes)", p.Name, len(p.Data))
		report, err := dmarc.Parse(p.Data)
		if err != nil {
			logger.Debugf("could not parse %s: %v", p.Name, err)
			entries = append(entries, summary.Entry{Name: p.Name, Err: err})
			continue
		}
		entries = append(entries, summary.Entry{Name: p.Name, Report: report})
	}
	return entries
}

func entryErrors(entries []summary.Entry) error {
	var errs error
	for _, e := range entries {
		if e.Err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", e.Name, e.Err))
		}
	}
	return errs
}

// present delivers the summary. A failing dialog falls back to the terminal
// so the computed summary is never lost.
func present(text string, useDialog bool) {
	if useDialog {
		err := presenter.Dialog{}.Present(text)
		if err == nil {
			return
		}
		logger.Warnf("falling back to terminal output: %v", err)
	}
	if err := (presenter.Terminal{W: os.Stdout}).Present(text); err != nil {
		logger.Errorf("could not write summary: %v", err)
	}
}
