package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/StreamDrop/internal/formstream"
	"github.com/dharsanguruparan/StreamDrop/internal/logging"
)

type inspectOptions struct {
	bodyPath    string
	boundary    string
	timeout     time.Duration
	requireFile bool
	maxFiles    int
	logLevel    string
}

func newInspectCmd() *cobra.Command {
	opts := inspectOptions{}
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Run a captured multipart body through the upload coordinator",
		Long: `inspect parses a raw multipart/form-data body (for example one saved with
curl --trace or a proxy) exactly as the upload endpoints do, buffering files in
memory, and prints the fields and files or the failure code.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(opts.bodyPath)
			if err != nil {
				return err
			}
			defer f.Close()
			return inspect(cmd.Context(), cmd.OutOrStdout(), f, opts)
		},
	}
	cmd.Flags().StringVar(&opts.bodyPath, "body", "", "File holding the raw request body")
	cmd.Flags().StringVar(&opts.boundary, "boundary", "", "Multipart boundary (without leading dashes)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", formstream.DefaultTimeout, "Give up when the body has not settled by then")
	cmd.Flags().BoolVar(&opts.requireFile, "require-file", false, "Fail when the body holds no file")
	cmd.Flags().IntVar(&opts.maxFiles, "max-files", formstream.DefaultMaxFileCount, "Files beyond this count are drained and not reported")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "warn", "Coordinator log level")
	_ = cmd.MarkFlagRequired("body")
	_ = cmd.MarkFlagRequired("boundary")
	return cmd
}

// errUploadFailed makes the process exit non-zero after the report.
type errUploadFailed struct{ code formstream.ErrorCode }

func (e errUploadFailed) Error() string { return fmt.Sprintf("upload failed with %s", e.code) }

func inspect(ctx context.Context, out io.Writer, body io.Reader, opts inspectOptions) error {
	logger, err := logging.New(opts.logLevel, "text")
	if err != nil {
		return err
	}
	cfg := formstream.Config{
		MaxFileCount: opts.maxFiles,
		Timeout:      opts.timeout,
		RequireFile:  opts.requireFile,
	}
	coord := formstream.NewCoordinator[[]byte](cfg, nil, logger.WithField("cmd", "inspect"))
	outcome := coord.Upload(ctx, formstream.NewBoundaryTokenizer(body, opts.boundary, coord.Config()))
	report(out, outcome)
	if !outcome.OK() {
		return errUploadFailed{code: outcome.Err.Code}
	}
	return nil
}

func report(out io.Writer, outcome formstream.Outcome[[]byte]) {
	if !outcome.OK() {
		fmt.Fprintf(out, "FAILED %s\n  %s\n", outcome.Err.Code, outcome.Err.Error())
		return
	}
	res := outcome.Result
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "FIELDS\t%d\n", len(res.Fields))
	for _, f := range res.Fields {
		fmt.Fprintf(tw, "  %s\t%q\n", f.Name, f.Value)
	}
	fmt.Fprintf(tw, "FILES\t%d\n", len(res.Files))
	for _, f := range res.Files {
		status := "ok"
		if f.Failed() {
			status = f.Err.Error()
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\n", f.FieldName, f.FileName, f.ContentType, humanize.Bytes(uint64(f.SizeInBytes)), status)
	}
	if res.Dropped > 0 {
		fmt.Fprintf(tw, "DROPPED\t%d\n", res.Dropped)
	}
	_ = tw.Flush()
}
