package bulk

import (
	"context"

	"github.com/forcedotcom/sf-fx-bulk/internal/bulkapi"
	"github.com/forcedotcom/sf-fx-bulk/pkg/datatable"
)

// GetSuccessfulResults returns the processed records, prefixed by the
// sf__Id and sf__Created columns.
func (c *Client) GetSuccessfulResults(ctx context.Context, ref IngestJobReference) (datatable.DataTable, error) {
	return c.ingestResults(ctx, ref, bulkapi.SuccessfulResults)
}

// GetFailedResults returns the rejected records, prefixed by the sf__Id and
// sf__Error columns.
func (c *Client) GetFailedResults(ctx context.Context, ref IngestJobReference) (datatable.DataTable, error) {
	return c.ingestResults(ctx, ref, bulkapi.FailedResults)
}

// GetUnprocessedRecords returns the records the job never got to, with the
// columns they were uploaded with.
func (c *Client) GetUnprocessedRecords(ctx context.Context, ref IngestJobReference) (datatable.DataTable, error) {
	return c.ingestResults(ctx, ref, bulkapi.UnprocessedRecords)
}

func (c *Client) ingestResults(ctx context.Context, ref IngestJobReference, kind bulkapi.IngestResultKind) (datatable.DataTable, error) {
	h, err := jobHandle(ref)
	if err != nil {
		return datatable.DataTable{}, err
	}

	resp, err := c.api.GetIngestResults(ctx, h, kind)
	if err != nil {
		return datatable.DataTable{}, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	t, err := datatable.Decode(resp.Body)
	if err != nil {
		return datatable.DataTable{}, bulkapi.WrapError(ErrorCodeUnknown, err)
	}
	return t, nil
}
