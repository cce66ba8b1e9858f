// Package fetcher adapts the yt-dlp command line tool to download.Fetcher.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/lrstanley/go-ytdlp"

	"github.com/m3rciful/songbot/core/logger"
	"github.com/m3rciful/songbot/internal/download"
)

// progressInterval throttles yt-dlp progress callbacks.
const progressInterval = 2 * time.Second

// YTDLP runs one yt-dlp process per fetch.
type YTDLP struct {
	// Binary overrides the yt-dlp executable; empty uses PATH.
	Binary string
}

// New returns a fetcher for the given yt-dlp binary.
func New(binary string) *YTDLP {
	return &YTDLP{Binary: strings.TrimSpace(binary)}
}

// Fetch downloads the top result for req.Search and returns the file name
// yt-dlp reported. With audio post-processing the reported name still carries
// the source extension; the orchestrator maps it to the transcoded file.
func (y *YTDLP) Fetch(ctx context.Context, req download.FetchRequest) (string, error) {
	if strings.TrimSpace(req.Search) == "" {
		return "", errors.New("fetcher: empty search")
	}
	cmd := y.command(ctx, req)

	res, err := cmd.Run(ctx, req.Search)
	if err != nil {
		return "", fmt.Errorf("yt-dlp: %w", err)
	}
	infos, err := res.GetExtractedInfo()
	if err != nil {
		return "", fmt.Errorf("yt-dlp: parse output: %w", err)
	}
	name := firstFilename(infos)
	if name == "" {
		return "", download.ErrNoOutput
	}
	return name, nil
}

func (y *YTDLP) command(ctx context.Context, req download.FetchRequest) *ytdlp.Command {
	cmd := ytdlp.New().
		Format(req.Selector).
		Output(req.OutputTemplate).
		PrintJSON().
		NoWarnings()
	if y.Binary != "" {
		cmd.SetExecutable(y.Binary)
	}
	if req.NoPlaylist {
		cmd.NoPlaylist()
	}
	if req.CookiesFile != "" {
		cmd.Cookies(req.CookiesFile)
	}
	if pp := req.Postprocess; pp != nil && pp.ExtractAudio {
		cmd.ExtractAudio().
			AudioFormat(pp.Codec).
			AudioQuality(pp.Quality)
	}
	cmd.ProgressFunc(progressInterval, func(u ytdlp.ProgressUpdate) {
		logger.Debug(ctx, "download", "fetch.progress",
			slog.String("state", string(u.Status)),
			slog.String("size", progressSize(u.DownloadedBytes, u.TotalBytes)),
		)
	})
	return cmd
}

func firstFilename(infos []*ytdlp.ExtractedInfo) string {
	for _, info := range infos {
		if info == nil || info.Filename == nil {
			continue
		}
		if name := strings.TrimSpace(*info.Filename); name != "" {
			return name
		}
	}
	return ""
}

func progressSize(done, total int) string {
	if total <= 0 {
		return humanize.Bytes(uint64(max(done, 0)))
	}
	return humanize.Bytes(uint64(max(done, 0))) + "/" + humanize.Bytes(uint64(total))
}
