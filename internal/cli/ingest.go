package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/forcedotcom/sf-fx-bulk/internal/loader"
	"github.com/forcedotcom/sf-fx-bulk/pkg/bulk"
	"github.com/forcedotcom/sf-fx-bulk/pkg/datatable"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/thoas/go-funk"
)

var legalIngestOperations = []string{
	string(bulk.OperationInsert),
	string(bulk.OperationUpdate),
	string(bulk.OperationUpsert),
	string(bulk.OperationDelete),
	string(bulk.OperationHardDelete),
}

type IngestOptions struct {
	GlobalOptions

	Object              string
	Operation           string
	ExternalIDFieldName string
	Sheet               string
	Columns             []string
	UnprocessedFile     string
	Output              string
}

func DefaultIngestOptions() *IngestOptions {
	return &IngestOptions{
		GlobalOptions: DefaultGlobalOptions(),
		Operation:     string(bulk.OperationInsert),
	}
}

func NewCmdIngest() *cobra.Command {
	o := DefaultIngestOptions()
	cmd := &cobra.Command{
		Use:   "ingest FILE",
		Short: "Load the records of a .csv or .xlsx file, one ingest job per chunk.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			if err := o.Validate(args); err != nil {
				return err
			}
			return o.Run(cmd.Context(), args)
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *IngestOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.StringVar(&o.Object, "object", o.Object, "Object receiving the records.")
	fs.StringVar(&o.Operation, "operation", o.Operation, fmt.Sprintf("Ingest operation. One of: (%s).", strings.Join(legalIngestOperations, ", ")))
	fs.StringVar(&o.ExternalIDFieldName, "external-id-field", o.ExternalIDFieldName, "Field matched on upsert.")
	fs.StringVar(&o.Sheet, "sheet", o.Sheet, "Workbook sheet to read. Defaults to the first one.")
	fs.StringSliceVar(&o.Columns, "columns", o.Columns, "Only send these columns.")
	fs.StringVar(&o.UnprocessedFile, "unprocessed-file", o.UnprocessedFile, "Write the records of failed chunks to this csv file.")
	fs.StringVarP(&o.Output, "output", "o", o.Output, fmt.Sprintf("Output format. One of: (%s).", strings.Join(legalOutputTypes, ", ")))
}

func (o *IngestOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	if o.Object == "" {
		return fmt.Errorf("--object is required")
	}
	if !funk.ContainsString(legalIngestOperations, o.Operation) {
		return fmt.Errorf("operation must be one of %s", strings.Join(legalIngestOperations, ", "))
	}
	if o.Operation == string(bulk.OperationUpsert) && o.ExternalIDFieldName == "" {
		return fmt.Errorf("--external-id-field is required for upsert")
	}
	return validateOutput(o.Output, legalOutputTypes)
}

// chunkResult is the printable outcome of one chunk.
type chunkResult struct {
	Chunk     int    `json:"chunk"`
	JobID     string `json:"jobId,omitempty"`
	Status    string `json:"status"`
	ErrorCode string `json:"errorCode,omitempty"`
	Message   string `json:"message,omitempty"`

	Unprocessed int `json:"unprocessed,omitempty"`
}

func (o *IngestOptions) Run(ctx context.Context, args []string) error {
	loadOpts := []loader.Option{loader.WithSheet(o.Sheet)}
	if len(o.Columns) > 0 {
		loadOpts = append(loadOpts, loader.WithColumns(o.Columns...))
	}
	table, err := loader.LoadFile(args[0], loadOpts...)
	if err != nil {
		return err
	}

	return o.withSession(ctx, func(s *session) error {
		results, err := s.api.Ingest(ctx, bulk.IngestOptions{
			Object:              o.Object,
			Operation:           bulk.Operation(o.Operation),
			ExternalIDFieldName: o.ExternalIDFieldName,
			DataTable:           table,
		})
		if err != nil {
			return err
		}

		rows, unprocessed := summarize(results)
		if o.UnprocessedFile != "" && len(unprocessed) > 0 {
			if err := writeUnprocessed(o.UnprocessedFile, table.Columns(), unprocessed); err != nil {
				return err
			}
		}

		if o.Output != "" {
			err = printObject(o.out, rows, o.Output)
		} else {
			err = printChunkTable(o.out, rows)
		}
		if err != nil {
			return err
		}

		if len(unprocessed) > 0 {
			return fmt.Errorf("%d of %d chunks failed", len(unprocessed), len(results))
		}
		return nil
	})
}

func summarize(results []bulk.IngestJobResult) ([]chunkResult, []datatable.DataTable) {
	rows := make([]chunkResult, 0, len(results))
	unprocessed := make([]datatable.DataTable, 0)
	for i, r := range results {
		switch res := r.(type) {
		case bulk.IngestJobReference:
			rows = append(rows, chunkResult{Chunk: i, JobID: res.ID, Status: "submitted"})
		case *bulk.IngestJobFailure:
			row := chunkResult{
				Chunk:       i,
				Status:      "failed",
				ErrorCode:   res.Err.ErrorCode,
				Message:     res.Err.Message,
				Unprocessed: res.UnprocessedRecords.Len(),
			}
			if res.JobReference != nil {
				row.JobID = res.JobReference.ID
			}
			rows = append(rows, row)
			unprocessed = append(unprocessed, res.UnprocessedRecords)
		}
	}
	return rows, unprocessed
}

func printChunkTable(out io.Writer, rows []chunkResult) error {
	w := tabwriter.NewWriter(out, 0, 8, 1, '\t', 0)
	fmt.Fprintln(w, "CHUNK\tJOB\tSTATUS\tERROR")
	for _, r := range rows {
		job := "-"
		if r.JobID != "" {
			job = IngestKind + "/" + r.JobID
		}
		msg := r.ErrorCode
		if r.Message != "" {
			msg = fmt.Sprintf("%s: %s", r.ErrorCode, r.Message)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", r.Chunk, job, r.Status, msg)
	}
	return w.Flush()
}

func writeUnprocessed(filename string, columns []string, tables []datatable.DataTable) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("creating unprocessed records file: %w", err)
	}
	defer f.Close()

	enc := datatable.NewEncoder(f, columns)
	if err := enc.WriteHeader(); err != nil {
		return err
	}
	for _, t := range tables {
		for _, r := range t.Rows() {
			if err := enc.WriteRow(r); err != nil {
				return err
			}
		}
	}
	if err := enc.Flush(); err != nil {
		return err
	}
	return f.Close()
}
