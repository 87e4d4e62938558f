package shell

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/pkg/sftp"
)

// Fetcher streams one file from the runner's host into w without holding
// the whole file in memory.
type Fetcher interface {
	Fetch(ctx context.Context, path string, w io.Writer) (int64, error)
}

var (
	_ Fetcher = LocalRunner{}
	_ Fetcher = SSHRunner{}
)

func (r LocalRunner) Fetch(ctx context.Context, path string, w io.Writer) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return io.Copy(w, contextReader{ctx: ctx, r: f})
}

// Fetch copies path over SFTP on a fresh connection.
func (r SSHRunner) Fetch(ctx context.Context, path string, w io.Writer) (int64, error) {
	client, err := r.dial(ctx)
	if err != nil {
		return 0, err
	}
	defer client.Close()

	sc, err := sftp.NewClient(client)
	if err != nil {
		return 0, fmt.Errorf("sftp %s: %w", r.Host, err)
	}
	defer sc.Close()

	stop := context.AfterFunc(ctx, func() { _ = client.Close() })
	defer stop()

	n, err := copyFromSFTP(sc, path, w)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return n, ctxErr
	}
	if err != nil {
		return n, fmt.Errorf("sftp %s: %w", r.Host, err)
	}
	return n, nil
}

func copyFromSFTP(sc *sftp.Client, path string, w io.Writer) (int64, error) {
	f, err := sc.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return io.Copy(w, f)
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
