// Command courtsplit-calc computes a settlement from a JSON request file and
// prints the ledger as CSV followed by the transfers that settle it.
//
//	courtsplit-calc -input session.json
//	courtsplit-calc -input - -format json < session.json
//	courtsplit-calc -input session.json -export   # also append to the configured sheet
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"courtsplit/internal/backend"
	"courtsplit/internal/cli"
	"courtsplit/internal/config"
	"courtsplit/internal/core"
	"courtsplit/internal/dto"
	"courtsplit/internal/export"
	"courtsplit/internal/log"
	"courtsplit/internal/services"
	"courtsplit/internal/sheets"
)

const noTransfers = "No transfers required (everyone is settled)."

func main() {
	cli.LoadEnvFile()
	os.Exit(run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

type options struct {
	input  string
	format string
	clamp  bool
	export bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("courtsplit-calc", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.input, "input", "-", "settlement request JSON file, - for stdin")
	fs.StringVar(&opts.format, "format", "csv", "output format: csv or json")
	fs.BoolVar(&opts.clamp, "clamp", false, "clamp minutes to the session length instead of rejecting them")
	fs.BoolVar(&opts.export, "export", false, "append the ledger to the configured export backend")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.format != "csv" && opts.format != "json" {
		return opts, fmt.Errorf("unknown format %q", opts.format)
	}
	return opts, nil
}

// run returns the process exit code: 0 on success, 1 when the request is
// rejected and 2 for usage or I/O errors, export failures included.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(stderr, "error:", err)
		}
		return 2
	}

	cfg := config.Load()
	logger := log.New(log.Config{
		Component: log.ComponentApp,
		Handler:   slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: log.ParseLevel(cfg.LogLevel)}),
	})

	req, err := readRequest(opts.input, stdin)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 2
	}
	if opts.clamp {
		req.ClampMinutes = true
	}

	var writer sheets.LedgerWriter
	if opts.export {
		writer, err = newExporter(ctx, cfg, logger)
		if err != nil {
			fmt.Fprintln(stderr, "error:", err)
			return 2
		}
	}

	svc := services.NewSettlementService(writer, nil, logger.WithComponent(log.ComponentSettlement))

	var (
		res core.Result
		ref string
	)
	if opts.export {
		res, ref, err = svc.Export(ctx, "", req)
	} else {
		res, err = svc.Calculate(ctx, req)
	}
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		if core.ErrorKind(err) == core.KindInternal {
			return 2
		}
		return 1
	}

	switch opts.format {
	case "json":
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(dto.FromResult(res)); err != nil {
			fmt.Fprintln(stderr, "error:", err)
			return 2
		}
	default:
		if err := export.WriteCSV(stdout, res.Rows); err != nil {
			fmt.Fprintln(stderr, "error:", err)
			return 2
		}
		fmt.Fprintln(stdout)
		lines := export.TransferLines(res.Rows, res.Transfers)
		if len(lines) == 0 {
			fmt.Fprintln(stdout, noTransfers)
		}
		for _, l := range lines {
			fmt.Fprintln(stdout, l)
		}
	}

	if res.Warning != nil {
		fmt.Fprintln(stderr, "warning:", res.Warning)
	}
	if ref != "" {
		fmt.Fprintln(stderr, "exported to", ref)
	}
	return 0
}

func readRequest(path string, stdin io.Reader) (dto.SettlementRequest, error) {
	var req dto.SettlementRequest

	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return req, fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		r = f
	}

	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return req, fmt.Errorf("decode request: %w", err)
	}
	return req, nil
}

// newExporter builds the configured ledger writer; tests replace it.
var newExporter = exporterFromConfig

func exporterFromConfig(ctx context.Context, cfg *config.Config, logger *log.Logger) (sheets.LedgerWriter, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	writer, err := backend.NewFactory(logger.Logger).CreateExporter(ctx, bcfg)
	if err != nil {
		return nil, fmt.Errorf("create exporter: %w", err)
	}
	return writer, nil
}
