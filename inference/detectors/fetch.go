package detectors

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-detect/logger"
)

// Fetch downloads a candidate checkpoint when its path is missing and a URL is set.
//
// The file is written next to the destination and renamed into place, so a failed
// download never leaves a partial checkpoint behind. There is no retry.
//
// Arguments:
//   - ctx: Cancels the download.
//   - c: The candidate.
//   - timeout: Bounds the whole download; 0 means no bound beyond ctx.
//
// Returns:
//   - error: An error if the checkpoint is missing and cannot be fetched.
func Fetch(ctx context.Context, c Candidate, timeout time.Duration) error {
	if _, err := os.Stat(c.Path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return errors.Wrapf(err, "stat %s", c.Path)
	}
	if c.URL == "" {
		return fmt.Errorf("checkpoint %s not found and no url configured", c.Path)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	log := logger.Named("fetch")
	start := time.Now()
	log.Info().Str("model", c.Name).Str("url", c.URL).Str("path", c.Path).Msg("fetching checkpoint")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return errors.Wrap(err, "building checkpoint request")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "fetching %s", c.URL)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetching %s: unexpected status %s", c.URL, resp.Status)
	}

	dir := filepath.Dir(c.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "creating %s", dir)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(c.Path)+".*.part")
	if err != nil {
		return errors.Wrap(err, "creating temp file")
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return errors.Wrapf(err, "downloading %s", c.URL)
	}
	if n == 0 {
		return fmt.Errorf("fetching %s: empty body", c.URL)
	}
	if err := os.Rename(tmp.Name(), c.Path); err != nil {
		return errors.Wrapf(err, "moving checkpoint into %s", c.Path)
	}

	log.Info().Str("model", c.Name).Int64("bytes", n).Dur("elapsed", time.Since(start)).Msg("checkpoint fetched")
	return nil
}
