package transfer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
)

// DownloadConcurrency is K from spec.md §4.6's download_all: at most this
// many Fetch requests in flight at once.
const DownloadConcurrency = 4

const maxFetchRetries = 5

// ListCollection issues one ListCollection request over a fresh stream and
// returns the peer's manifest.
func ListCollection(ctx context.Context, conn *quic.Conn) (*CollectionManifest, error) {
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, fmt.Errorf("transfer: open list stream: %w", err)
	}
	defer stream.Close()

	if err := writeFrame(stream, Request{Type: MsgListCollection}); err != nil {
		return nil, fmt.Errorf("transfer: send list request: %w", err)
	}

	var manifest CollectionManifest
	if err := readFrame(stream, &manifest); err != nil {
		return nil, fmt.Errorf("transfer: read manifest: %w", err)
	}
	return &manifest, nil
}

// Bye sends a Bye message to end the logical session, independent of the
// underlying connection's lifetime.
func Bye(ctx context.Context, conn *quic.Conn) error {
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		return fmt.Errorf("transfer: open bye stream: %w", err)
	}
	defer stream.Close()
	return writeFrame(stream, Request{Type: MsgBye})
}

// DownloadAll issues one ListCollection against conn, then fetches every
// advertised entry into destDir with at most DownloadConcurrency requests
// in flight, per spec.md §4.6. Worker-pool shape (buffered channel +
// WaitGroup) mirrors internal/transcodepool's concurrent size-estimation
// pass (handleAdd).
func DownloadAll(ctx context.Context, conn *quic.Conn, destDir string) error {
	manifest, err := ListCollection(ctx, conn)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("transfer: create destination %q: %w", destDir, err)
	}

	sem := make(chan struct{}, DownloadConcurrency)
	var wg sync.WaitGroup
	errs := make(chan error, len(manifest.Entries))

	for _, entry := range manifest.Entries {
		entry := entry
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			if err := fetchOne(ctx, conn, entry, destDir); err != nil {
				errs <- fmt.Errorf("transfer: fetch %q: %w", entry.Name, err)
			}
		}()
	}

	wg.Wait()
	close(errs)

	var firstErr error
	for err := range errs {
		if firstErr == nil {
			firstErr = err
		}
		slog.Warn("transfer: download_all entry failed", "error", err)
	}
	return firstErr
}

// fetchOne downloads one manifest entry to destDir/<name>, writing to a
// <name>.part file and renaming on success (spec.md §4.6). Already-complete
// files are skipped; a partial .part file resumes from its current size.
func fetchOne(ctx context.Context, conn *quic.Conn, entry ManifestEntry, destDir string) error {
	finalPath := filepath.Join(destDir, entry.Name)
	if _, err := os.Stat(finalPath); err == nil {
		return nil
	}

	partPath := finalPath + ".part"
	if err := os.MkdirAll(filepath.Dir(partPath), 0o755); err != nil {
		return err
	}

	var resumeFrom uint64
	if fi, err := os.Stat(partPath); err == nil {
		resumeFrom = uint64(fi.Size())
	}

	for attempt := 0; attempt < maxFetchRetries; attempt++ {
		resp, stream, err := requestFetch(ctx, conn, entry, resumeFrom)
		if err != nil {
			return err
		}

		switch resp.Status {
		case FetchNotFound:
			stream.Close()
			return fmt.Errorf("artefact not found on peer")
		case FetchNotReady:
			stream.Close()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(resp.RetryAfterMs) * time.Millisecond):
			}
			continue
		case FetchOK:
			err := appendToPart(partPath, stream, resp.Size)
			stream.Close()
			if err != nil {
				return err
			}
			return os.Rename(partPath, finalPath)
		}
	}
	return fmt.Errorf("gave up after %d NotReady retries", maxFetchRetries)
}

func requestFetch(ctx context.Context, conn *quic.Conn, entry ManifestEntry, resumeFrom uint64) (FetchResponse, Stream, error) {
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		return FetchResponse{}, nil, fmt.Errorf("open fetch stream: %w", err)
	}

	req := Request{Type: MsgFetch, Fetch: FetchRequest{HashKind: entry.HashKind, Hash: entry.Hash}}
	if resumeFrom > 0 {
		req.Fetch.Range = &ByteRange{Start: resumeFrom}
	}
	if err := writeFrame(stream, req); err != nil {
		stream.Close()
		return FetchResponse{}, nil, fmt.Errorf("send fetch request: %w", err)
	}

	var resp FetchResponse
	if err := readFrame(stream, &resp); err != nil {
		stream.Close()
		return FetchResponse{}, nil, fmt.Errorf("read fetch response: %w", err)
	}
	return resp, stream, nil
}

func appendToPart(partPath string, stream Stream, size uint64) error {
	f, err := os.OpenFile(partPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %q: %w", partPath, err)
	}
	defer f.Close()

	if _, err := io.CopyN(f, stream, int64(size)); err != nil {
		return fmt.Errorf("copy artefact bytes: %w", err)
	}
	return nil
}
