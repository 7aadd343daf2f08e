package bulkapi

import (
	"bufio"
	"context"
	"io"
	"net/http"

	"github.com/forcedotcom/sf-fx-bulk/pkg/metrics"
)

const uploadBufferSize = 64 * 1024

// UploadStream is the write side of an in flight CSV upload. Bytes written to
// it are sent to the server as they are produced; the request completes when
// the stream is closed.
type UploadStream struct {
	pw      *io.PipeWriter
	bw      *bufio.Writer
	written int64
	done    chan struct{}
	err     error
}

// OpenUpload starts the PUT of CSV job data for an ingest job.
func (c *Client) OpenUpload(ctx context.Context, h JobHandle) *UploadStream {
	pr, pw := io.Pipe()
	s := &UploadStream{
		pw:   pw,
		bw:   bufio.NewWriterSize(pw, uploadBufferSize),
		done: make(chan struct{}),
	}

	go func() {
		defer close(s.done)

		resp, err := c.Stream(ctx, &Request{
			Method:      http.MethodPut,
			Path:        h.path("batches"),
			ContentType: ContentTypeCSV,
			Accept:      ContentTypeJSON,
			Body:        pr,
		})
		if err != nil {
			s.err = err
			// unblock the writer when the server answered before reading everything
			_ = pr.CloseWithError(err)
			return
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		_ = pr.Close()
	}()

	return s
}

func (s *UploadStream) Write(p []byte) (int, error) {
	n, err := s.bw.Write(p)
	s.written += int64(n)
	return n, err
}

// Written reports the number of bytes accepted so far.
func (s *UploadStream) Written() int64 {
	return s.written
}

// Close flushes pending bytes, ends the request body and waits for the
// server response.
func (s *UploadStream) Close() error {
	if err := s.bw.Flush(); err != nil {
		return s.CloseWithError(err)
	}
	_ = s.pw.Close()
	<-s.done

	if s.err == nil {
		metrics.AddUploadedBytesMetric(s.written)
	}
	return s.err
}

// CloseWithError cancels the upload. The returned error is the server side
// failure when there is one, cause otherwise.
func (s *UploadStream) CloseWithError(cause error) error {
	_ = s.pw.CloseWithError(cause)
	<-s.done

	if s.err != nil {
		return s.err
	}
	return Classify(cause)
}
