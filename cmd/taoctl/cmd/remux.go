package cmd

import (
	"fmt"

	"github.com/jmylchreest/tao/internal/iobackend"
	"github.com/jmylchreest/tao/pkg/mediaerr"
	"github.com/jmylchreest/tao/pkg/registry"
	"github.com/spf13/cobra"
)

// remuxCmd represents the remux command.
var remuxCmd = &cobra.Command{
	Use:   "remux [input] [output]",
	Short: "Copy packets from one container into another, untouched",
	Long: `remux demuxes input and writes every packet straight into output
with no decode/encode step. The output container is chosen from output's
file extension; each input stream's codec parameters and time base carry
over unchanged.

This only works between containers that can carry the same codec ids
stream copy has no way to convert H.264 video into a format that can't
hold it.

Example:
  taoctl remux input.mkv output.mp4`,
	Args: cobra.ExactArgs(2),
	RunE: runRemux,
}

func init() {
	rootCmd.AddCommand(remuxCmd)
}

func runRemux(cmd *cobra.Command, args []string) error {
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

	streamMap := make(map[int]int, len(dmx.Streams()))
	for _, st := range dmx.Streams() {
		idx, err := mx.AddStream(st.CodecPar, st.TimeBase)
		if err != nil {
			return fmt.Errorf("adding stream %d (%s): %w", st.Index, st.CodecPar.CodecID, err)
		}
		streamMap[st.Index] = idx
	}

	if err := mx.WriteHeader(); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	packets := 0
	for {
		p, err := dmx.ReadPacket()
		if err == mediaerr.Eof {
			break
		}
		if err != nil {
			return fmt.Errorf("reading packet %d: %w", packets, err)
		}

		outIdx, ok := streamMap[p.StreamIndex]
		if !ok {
			continue
		}
		p.StreamIndex = outIdx
		if err := mx.WritePacket(p); err != nil {
			return fmt.Errorf("writing packet %d: %w", packets, err)
		}
		packets++
	}

	if err := mx.WriteTrailer(); err != nil {
		return fmt.Errorf("writing trailer: %w", err)
	}

	fmt.Printf("remuxed %d packets across %d streams into %s\n", packets, len(streamMap), outPath)
	return nil
}
