package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmylchreest/tao/internal/iobackend"
	"github.com/jmylchreest/tao/pkg/codec"
	"github.com/jmylchreest/tao/pkg/format"
	"github.com/jmylchreest/tao/pkg/frame"
	"github.com/jmylchreest/tao/pkg/mediaerr"
	"github.com/jmylchreest/tao/pkg/mediatype"
	"github.com/jmylchreest/tao/pkg/packet"
	"github.com/jmylchreest/tao/pkg/registry"
	"github.com/jmylchreest/tao/pkg/stream"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	transcodeAudioCodec string
	transcodeVideoCodec string
)

// transcodeCmd represents the transcode command.
var transcodeCmd = &cobra.Command{
	Use:   "transcode [input] [output]",
	Short: "Decode and re-encode streams, optionally changing codecs",
	Long: `transcode runs a full decode/encode pipeline: a stream named by
--audio-codec or --video-codec is decoded to frames and re-encoded into
the target codec. A stream whose media type has no matching flag is
passed through unchanged, the same as remux.

Example:
  taoctl transcode --audio-codec aac input.wav output.mp4`,
	Args: cobra.ExactArgs(2),
	RunE: runTranscode,
}

func init() {
	transcodeCmd.Flags().StringVar(&transcodeAudioCodec, "audio-codec", "", "target audio codec (e.g. aac, mp3, vorbis, flac, pcm_s16le); empty passes audio through unchanged")
	transcodeCmd.Flags().StringVar(&transcodeVideoCodec, "video-codec", "", "target video codec (e.g. h264, mpeg4); empty passes video through unchanged")
	rootCmd.AddCommand(transcodeCmd)
}

// transcodeTrack pairs one input stream with the decoder/encoder driving
// its output, or neither for a passthrough stream.
type transcodeTrack struct {
	outIndex int
	dec      codec.Decoder
	enc      codec.Encoder
	id       string // correlation id for this track's pipeline, for log fields
}

// workItem crosses from the demux/decode goroutine to the encode/mux
// goroutine: either a packet to copy through unchanged, or a decoded
// frame the target track needs to encode.
type workItem struct {
	track   *transcodeTrack
	packet  *packet.Packet // set for passthrough
	decoded frame.Frame    // set when track.dec != nil
}

func runTranscode(cmd *cobra.Command, args []string) error {
	inPath, outPath := args[0], args[1]

	in, err := OpenInputSource(inPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", inPath, err)
	}
	defer in.Close()

	out, err := iobackend.OpenFile(outPath, iobackend.Create)
	if err != nil {
		return fmt.Errorf("creating %s: %w", outPath, err)
	}
	defer out.Close()

	regs := registry.RegisterAll()

	dmx, err := regs.Formats.OpenInput(in)
	if err != nil {
		return fmt.Errorf("opening %s: %w", inPath, err)
	}
	defer dmx.Close()

	mx, err := regs.Formats.MuxerFromFilename(outPath, out)
	if err != nil {
		return fmt.Errorf("choosing a muxer for %s: %w", outPath, err)
	}
	defer mx.Close()

	tracks, err := buildTranscodeTracks(dmx, mx, regs)
	if err != nil {
		return err
	}
	defer func() {
		for _, t := range tracks {
			if t.dec != nil {
				t.dec.Close()
			}
			if t.enc != nil {
				t.enc.Close()
			}
		}
	}()

	if err := mx.WriteHeader(); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	items := make(chan workItem, 64)
	g, ctx := errgroup.WithContext(context.Background())
	g.Go(func() error {
		defer close(items)
		return demuxAndDecode(ctx, dmx, tracks, items)
	})
	g.Go(func() error {
		return encodeAndMux(mx, tracks, items)
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if err := mx.WriteTrailer(); err != nil {
		return fmt.Errorf("writing trailer: %w", err)
	}

	fmt.Printf("transcoded %d streams into %s\n", len(tracks), outPath)
	return nil
}

func buildTranscodeTracks(dmx format.Demuxer, mx format.Muxer, regs *registry.Registries) (map[int]*transcodeTrack, error) {
	tracks := make(map[int]*transcodeTrack, len(dmx.Streams()))
	for _, st := range dmx.Streams() {
		outPar := st.CodecPar
		targetName := ""
		switch {
		case st.IsAudio() && transcodeAudioCodec != "":
			targetName = transcodeAudioCodec
		case st.IsVideo() && transcodeVideoCodec != "":
			targetName = transcodeVideoCodec
		}

		t := &transcodeTrack{id: stream.NewCorrelationID()}
		if targetName != "" {
			targetID, err := mediatype.ParseCodecID(targetName)
			if err != nil {
				return nil, fmt.Errorf("stream %d: %w", st.Index, err)
			}
			dec, err := regs.Codecs.NewDecoder(st.CodecPar)
			if err != nil {
				return nil, fmt.Errorf("stream %d: no decoder for %s: %w", st.Index, st.CodecPar.CodecID, err)
			}
			outPar.CodecID = targetID
			outPar.ExtraData = nil
			enc, err := regs.Codecs.NewEncoder(outPar)
			if err != nil {
				dec.Close()
				return nil, fmt.Errorf("stream %d: no encoder for %s: %w", st.Index, targetID, err)
			}
			t.dec, t.enc = dec, enc
		}

		outIdx, err := mx.AddStream(outPar, st.TimeBase)
		if err != nil {
			return nil, fmt.Errorf("adding stream %d: %w", st.Index, err)
		}
		t.outIndex = outIdx
		tracks[st.Index] = t
		slog.Debug("transcode track configured", "stream_id", t.id, "input_index", st.Index, "output_index", outIdx, "transcoded", t.dec != nil)
	}
	return tracks, nil
}

// demuxAndDecode reads every packet from dmx, routing it to its track's
// decoder (emitting decoded frames) or straight through as a passthrough
// work item, then flushes every decoder once input is exhausted.
func demuxAndDecode(ctx context.Context, dmx format.Demuxer, tracks map[int]*transcodeTrack, out chan<- workItem) error {
	for {
		p, err := dmx.ReadPacket()
		if err == mediaerr.Eof {
			break
		}
		if err != nil {
			return fmt.Errorf("reading packet: %w", err)
		}

		t, ok := tracks[p.StreamIndex]
		if !ok {
			continue
		}
		if t.dec == nil {
			if err := sendItem(ctx, out, workItem{track: t, packet: p}); err != nil {
				return err
			}
			continue
		}
		if err := t.dec.SendPacket(p); err != nil {
			return fmt.Errorf("decoding stream [%s]: %w", t.id, err)
		}
		if err := drainDecoder(ctx, t, out); err != nil {
			return err
		}
	}

	for _, t := range tracks {
		if t.dec == nil {
			continue
		}
		if err := t.dec.SendPacket(nil); err != nil {
			return fmt.Errorf("flushing decoder: %w", err)
		}
		if err := drainDecoder(ctx, t, out); err != nil {
			return err
		}
	}
	return nil
}

func drainDecoder(ctx context.Context, t *transcodeTrack, out chan<- workItem) error {
	for {
		f, err := t.dec.ReceiveFrame()
		if err == mediaerr.NeedMoreData || err == mediaerr.Eof {
			return nil
		}
		if err != nil {
			return fmt.Errorf("decoding stream [%s]: %w", t.id, err)
		}
		if err := sendItem(ctx, out, workItem{track: t, decoded: f}); err != nil {
			return err
		}
	}
}

// sendItem sends item on out, or returns ctx.Err() if the encode/mux side
// has already failed and cancelled ctx, avoiding a goroutine stuck
// writing into a channel nobody drains anymore.
func sendItem(ctx context.Context, out chan<- workItem, item workItem) error {
	select {
	case out <- item:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// encodeAndMux drains items, copying passthrough packets straight into
// mx and encoding decoded frames through their track's encoder. Once
// items closes, every encoding track's encoder is flushed with a zero
// Frame.
func encodeAndMux(mx format.Muxer, tracks map[int]*transcodeTrack, items <-chan workItem) error {
	for item := range items {
		if item.track.dec == nil {
			item.packet.StreamIndex = item.track.outIndex
			if err := mx.WritePacket(item.packet); err != nil {
				return fmt.Errorf("writing packet: %w", err)
			}
			continue
		}
		if err := item.track.enc.SendFrame(item.decoded); err != nil {
			return fmt.Errorf("encoding stream [%s]: %w", item.track.id, err)
		}
		if err := drainEncoder(item.track, mx); err != nil {
			return err
		}
	}

	for _, t := range tracks {
		if t.enc == nil {
			continue
		}
		if err := t.enc.SendFrame(frame.Frame{}); err != nil {
			return fmt.Errorf("flushing encoder: %w", err)
		}
		if err := drainEncoder(t, mx); err != nil {
			return err
		}
	}
	return nil
}

func drainEncoder(t *transcodeTrack, mx format.Muxer) error {
	for {
		p, err := t.enc.ReceivePacket()
		if err == mediaerr.NeedMoreData || err == mediaerr.Eof {
			return nil
		}
		if err != nil {
			return fmt.Errorf("encoding stream [%s]: %w", t.id, err)
		}
		p.StreamIndex = t.outIndex
		if err := mx.WritePacket(p); err != nil {
			return fmt.Errorf("writing packet: %w", err)
		}
	}
}
