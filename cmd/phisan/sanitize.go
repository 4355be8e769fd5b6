package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/phisan/internal/pipeline"
	"github.com/fyrsmithlabs/phisan/internal/record"
	"github.com/fyrsmithlabs/phisan/internal/synth"
)

var (
	auditOnly bool
	strict    bool
	demo      bool
	demoSeed  int64
)

func init() {
	rootCmd.AddCommand(sanitizeCmd)
	sanitizeCmd.Flags().BoolVar(&auditOnly, "audit-only", false, "write only audit events instead of full results")
	sanitizeCmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when any record fails verification")
	sanitizeCmd.Flags().BoolVar(&demo, "demo", false, "sanitize one synthetic record and print a before/after report")
	sanitizeCmd.Flags().Int64Var(&demoSeed, "seed", 42, "seed for the --demo record")
}

// sanitizeCmd sanitizes records from a file or stdin
var sanitizeCmd = &cobra.Command{
	Use:   "sanitize [file]",
	Short: "Sanitize records from a file or stdin",
	Long: `Sanitize patient records read from a file or stdin.

Input may be a single JSON record, a JSON array or JSONL. One result per
record is written to stdout as JSONL, in input order.

Examples:
  # Sanitize a file
  phisan sanitize records.jsonl > clean.jsonl

  # Sanitize from stdin, keeping only audit events
  cat records.jsonl | phisan sanitize --audit-only -

  # Smoke test on one synthetic record
  phisan sanitize --demo --seed 42`,
	Args: cobra.MaximumNArgs(1),
	RunE: withApp(runSanitize),
}

func runSanitize(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
	if demo {
		return runDemo(ctx, cmd, a)
	}

	records, err := readRecords(cmd, args)
	if err != nil {
		return err
	}

	results, err := a.pipeline.SanitizeBatch(ctx, records)
	if err != nil {
		return fmt.Errorf("sanitizing: %w", err)
	}

	enc := record.NewEncoder(cmd.OutOrStdout())
	failed := 0
	for _, res := range results {
		if !res.VerificationOK {
			failed++
		}
		var v any = res
		if auditOnly {
			v = res.AuditEvent
		}
		if err := enc.Encode(v); err != nil {
			return err
		}
	}
	if err := enc.Flush(); err != nil {
		return err
	}

	a.logger.Info(ctx, "sanitize complete",
		zap.Int("records", len(results)),
		zap.Int("verification_failures", failed))
	if strict && failed > 0 {
		return fmt.Errorf("%d of %d records failed verification", failed, len(results))
	}
	return nil
}

// readRecords decodes records from the named file, or stdin for "-" or no argument.
func readRecords(cmd *cobra.Command, args []string) ([]record.CanonicalRecord, error) {
	var r io.Reader = cmd.InOrStdin()
	name := "stdin"
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", args[0], err)
		}
		defer f.Close()
		r, name = f, args[0]
	}

	records, err := record.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	return records, nil
}

func runDemo(ctx context.Context, cmd *cobra.Command, a *app) error {
	rec := synth.New(demoSeed).Next()
	res, err := a.pipeline.Sanitize(ctx, rec)
	if err != nil {
		return err
	}
	printDemo(cmd.OutOrStdout(), rec, res)
	return nil
}

func printDemo(w io.Writer, rec record.CanonicalRecord, res *pipeline.Result) {
	fmt.Fprintln(w, "ORIGINAL:")
	fmt.Fprintln(w, rec.EncounterNotes)
	fmt.Fprintln(w, "\nSANITIZED:")
	fmt.Fprintln(w, res.Record.EncounterNotes)
	fmt.Fprintln(w, "\nVERIFY_OK:", res.VerificationOK)
	if len(res.VerificationIssues) > 0 {
		fmt.Fprintln(w, "ISSUES:", res.VerificationIssues)
	}
	fmt.Fprintln(w, "\nAUDIT_EVENT:")
	data, _ := json.MarshalIndent(res.AuditEvent, "", "  ")
	fmt.Fprintln(w, string(data))
}
