package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jmylchreest/tao/internal/iobackend"
	"github.com/jmylchreest/tao/pkg/bytestream"
	"github.com/jmylchreest/tao/pkg/format"
	"github.com/jmylchreest/tao/pkg/mediaerr"
	"github.com/jmylchreest/tao/pkg/registry"
	"github.com/jmylchreest/tao/pkg/stream"
	"github.com/spf13/cobra"
)

var (
	probePretty  bool
	probeVerbose bool
	probeFollow  time.Duration
)

// probeCmd represents the probe command.
var probeCmd = &cobra.Command{
	Use:   "probe [file]",
	Short: "Identify a container's format and list its streams",
	Long: `probe opens a media file, identifies its container format by
signature (not by filename extension), and reports the stream table: one
entry per elementary stream with its codec, media type, and geometry.

With --follow, a file too short to contain a recognisable header (e.g.
a recording still being written) is retried once the filesystem reports
a write to it, instead of failing immediately.

Examples:
  taoctl probe input.mp4
  taoctl probe --pretty --verbose input.mkv
  taoctl probe --follow 30s recording-in-progress.mkv`,
	Args: cobra.ExactArgs(1),
	RunE: runProbe,
}

func init() {
	probeCmd.Flags().BoolVar(&probePretty, "pretty", false, "pretty-print JSON output")
	probeCmd.Flags().BoolVarP(&probeVerbose, "verbose", "v", false, "include registry summary")
	probeCmd.Flags().DurationVar(&probeFollow, "follow", 0, "wait up to this long for a growing file to become probeable, retrying on each filesystem write")
	rootCmd.AddCommand(probeCmd)
}

// probeStreamInfo is one row of probeResult.Streams.
type probeStreamInfo struct {
	StreamID   string `json:"stream_id"`
	Index      int    `json:"index"`
	MediaType  string `json:"media_type"`
	Codec      string `json:"codec"`
	TimeBase   string `json:"time_base"`
	Duration   int64  `json:"duration,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
	Profile    string `json:"profile,omitempty"`
}

// probeResult is probeCmd's JSON output shape.
type probeResult struct {
	File     string            `json:"file"`
	Streams  []probeStreamInfo `json:"streams"`
	Registry string            `json:"registry,omitempty"`
}

func runProbe(cmd *cobra.Command, args []string) error {
	path := args[0]
	if probeFollow > 0 && strings.Contains(path, "://") {
		return fmt.Errorf("--follow only applies to local paths, got %s", path)
	}

	s, err := OpenInputSource(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer s.Close()

	regs := registry.RegisterAll()

	dmx, err := openInputWithFollow(path, s, regs)
	if err != nil {
		return fmt.Errorf("probing %s: %w", path, err)
	}
	defer dmx.Close()

	result := probeResult{File: path}
	for _, st := range dmx.Streams() {
		id := stream.NewCorrelationID()
		slog.Debug("probed stream", "stream_id", id, "index", st.Index, "codec", st.CodecPar.CodecID.String())
		info := probeStreamInfo{
			StreamID:   id,
			Index:      st.Index,
			MediaType:  st.MediaType.String(),
			Codec:      st.CodecPar.CodecID.String(),
			TimeBase:   fmt.Sprintf("%d/%d", st.TimeBase.Num, st.TimeBase.Den),
			Duration:   st.Duration,
			SampleRate: st.CodecPar.SampleRate,
			Channels:   st.CodecPar.Channels,
			Width:      st.CodecPar.Width,
			Height:     st.CodecPar.Height,
			Profile:    st.CodecPar.Profile,
		}
		result.Streams = append(result.Streams, info)
	}
	if probeVerbose {
		result.Registry = fmt.Sprintf("%s %s", regs.Formats.String(), regs.Codecs.String())
	}

	var out []byte
	if probePretty {
		out, err = json.MarshalIndent(result, "", "  ")
	} else {
		out, err = json.Marshal(result)
	}
	if err != nil {
		return fmt.Errorf("marshaling probe result: %w", err)
	}

	fmt.Fprintln(os.Stdout, string(out))
	return nil
}

// openInputWithFollow calls regs.Formats.OpenInput, and if that fails with
// mediaerr.Unsupported (the result Probe returns when too little of the
// header has landed yet) and --follow was given, waits for a write to
// path and retries until probeFollow elapses.
func openInputWithFollow(path string, s bytestream.ByteStream, regs *registry.Registries) (format.Demuxer, error) {
	ctx := context.Background()
	var cancel context.CancelFunc
	if probeFollow > 0 {
		ctx, cancel = context.WithTimeout(ctx, probeFollow)
		defer cancel()
	}

	for {
		if _, err := s.Seek(0, bytestream.SeekStart); err != nil {
			return nil, err
		}
		dmx, err := regs.Formats.OpenInput(s)
		if err == nil {
			return dmx, nil
		}
		if probeFollow == 0 || !isUnsupported(err) {
			return nil, err
		}
		if followErr := iobackend.Follow(ctx, path); followErr != nil {
			return nil, err
		}
	}
}

func isUnsupported(err error) bool {
	return errors.Is(err, mediaerr.Unsupported)
}
