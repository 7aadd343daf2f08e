package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/forcedotcom/sf-fx-bulk/pkg/bulk"
	"github.com/forcedotcom/sf-fx-bulk/pkg/datatable"
	"github.com/thoas/go-funk"
	"sigs.k8s.io/yaml"
)

const (
	IngestKind = "ingest"
	QueryKind  = "query"

	csvFormat  = "csv"
	jsonFormat = "json"
	yamlFormat = "yaml"
)

var (
	legalKinds       = []string{IngestKind, QueryKind}
	legalOutputTypes = []string{jsonFormat, yamlFormat}
)

// parseJobReference reads a KIND/ID argument such as ingest/7505g00000AbCdE.
func parseJobReference(arg string) (bulk.JobReference, error) {
	kind, id, found := strings.Cut(arg, "/")
	if !found || id == "" {
		return nil, fmt.Errorf("job must be given as KIND/ID, got %q", arg)
	}
	switch kind {
	case IngestKind:
		return bulk.IngestJobReference{ID: id}, nil
	case QueryKind:
		return bulk.QueryJobReference{ID: id}, nil
	default:
		return nil, fmt.Errorf("invalid job kind %q, must be one of %s", kind, strings.Join(legalKinds, ", "))
	}
}

func validateOutput(output string, legal []string) error {
	if len(output) > 0 && !funk.ContainsString(legal, output) {
		return fmt.Errorf("output format must be one of %s", strings.Join(legal, ", "))
	}
	return nil
}

func printObject(w io.Writer, v any, output string) error {
	var (
		marshalled []byte
		err        error
	)
	switch output {
	case jsonFormat:
		marshalled, err = json.MarshalIndent(v, "", "  ")
	case yamlFormat:
		marshalled, err = yaml.Marshal(v)
	default:
		return fmt.Errorf("unsupported output format %q", output)
	}
	if err != nil {
		return fmt.Errorf("marshalling resource: %w", err)
	}
	_, err = fmt.Fprintf(w, "%s\n", strings.TrimSuffix(string(marshalled), "\n"))
	return err
}

func printCSV(w io.Writer, t datatable.DataTable) error {
	return datatable.Encode(w, t)
}
