package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"github.com/franksops/tagsync/store"
)

var log = logging.Logger("archive")

// ErrInvalidTarget is returned for an archive target that cannot be parsed.
var ErrInvalidTarget = errors.New("invalid archive target")

// Archiver is a destination for exported history files. A typical Archiver
// is a local directory or an S3 prefix.
type Archiver interface {
	// OpenWrite opens name for streaming writes. The data is only durable
	// once Close returns nil.
	OpenWrite(ctx context.Context, name string) (io.WriteCloser, error)

	// Location describes where name ends up, for display.
	Location(name string) string
}

// Open returns the archiver for target: s3://bucket/prefix or a local directory.
func Open(ctx context.Context, target, region string) (Archiver, error) {
	if rest, ok := strings.CutPrefix(target, "s3://"); ok {
		bucket, prefix, _ := strings.Cut(rest, "/")
		if bucket == "" {
			return nil, fmt.Errorf("%w: %q has no bucket", ErrInvalidTarget, target)
		}
		return NewS3Archiver(ctx, bucket, prefix, region)
	}
	if target == "" {
		return nil, fmt.Errorf("%w: empty target", ErrInvalidTarget)
	}
	return NewLocalArchiver(target), nil
}

// ExportName is the file name used for an export taken at t.
func ExportName(t time.Time) string {
	return "tagsync-history-" + t.UTC().Format("20060102T150405Z") + ".json"
}

// Export writes recs as a JSON array to name in a and returns its location.
func Export(ctx context.Context, a Archiver, name string, recs []*store.TransferRecord) (string, error) {
	if recs == nil {
		recs = []*store.TransferRecord{}
	}

	w, err := a.OpenWrite(ctx, name)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", name, err)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(recs); err != nil {
		abort(w, err)
		return "", fmt.Errorf("failed to encode history: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to finish %s: %w", name, err)
	}

	loc := a.Location(name)
	log.Infow("history exported", "records", len(recs), "location", loc)
	return loc, nil
}

// aborter is implemented by writers that can discard a partial write.
type aborter interface {
	Abort(cause error)
}

func abort(w io.WriteCloser, cause error) {
	if a, ok := w.(aborter); ok {
		a.Abort(cause)
		return
	}
	w.Close()
}
