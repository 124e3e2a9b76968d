package h264

import (
	"github.com/jmylchreest/tao/pkg/bitio"
	"github.com/jmylchreest/tao/pkg/frame"
	"github.com/jmylchreest/tao/pkg/mediaerr"
	"github.com/jmylchreest/tao/pkg/packet"
	"github.com/jmylchreest/tao/pkg/rational"
	"github.com/jmylchreest/tao/pkg/stream"
)

// motionSearchRange bounds this package's exhaustive integer-pel motion
// search (§6.4.1's real search is vendor-defined; this is a small full
// search, not a reference-copy shortcut).
const motionSearchRange = 7

type encoder struct {
	par       stream.CodecParameters
	sps       sps
	pps       pps
	extraData []byte

	prevPic  *picture
	frameNum int
	pending  *packet.Packet
	done     bool
}

func newEncoder(par stream.CodecParameters) (*encoder, error) {
	width, height := par.Width, par.Height
	if width == 0 || height == 0 {
		return nil, mediaerr.NewInvalidArgument("h264: encoder requires Width/Height")
	}
	width = (width + 15) / 16 * 16
	height = (height + 15) / 16 * 16

	e := &encoder{
		par: par,
		sps: sps{profileIDC: 66, levelIDC: 30, id: 0, log2MaxFrame: 8, picOrderType: 2, width: width, height: height},
		pps: pps{id: 0, spsID: 0, initQP: 26},
	}
	e.extraData = append(wrapAnnexB(0x67, e.sps.encode()), wrapAnnexB(0x68, e.pps.encode())...)
	return e, nil
}

func wrapAnnexB(nalHeader byte, rbsp []byte) []byte {
	out := []byte{0, 0, 0, 1, nalHeader}
	return append(out, rbsp...)
}

// ExtraData returns the Annex-B SPS/PPS NAL units an output Stream
// should carry, matching the convention pkg/stream.CodecParameters
// documents for H.264 ExtraData.
func (e *encoder) ExtraData() []byte { return e.extraData }

func (e *encoder) SendFrame(f frame.Frame) error {
	if f.Kind != frame.KindVideo || f.Video.Width == 0 {
		e.done = true
		return nil
	}
	if e.pending != nil {
		return mediaerr.NeedMoreData
	}

	isIDR := e.frameNum == 0
	sliceType := sliceI
	if !isIDR {
		sliceType = sliceP
	}
	qp := e.pps.initQP
	pic := newPicture(e.sps.width, e.sps.height)

	bw := bitio.NewBitWriter()
	sliceTypeCode := uint32(7) // 7 == "I, all slices of this type" per Table 7-6
	if sliceType == sliceP {
		sliceTypeCode = 0
	}
	bw.WriteUE(0) // first_mb_in_slice
	bw.WriteUE(sliceTypeCode)
	bw.WriteUE(0) // pic_parameter_set_id
	bw.WriteBits(uint32(e.frameNum%(1<<uint(e.sps.log2MaxFrame))), e.sps.log2MaxFrame)
	if isIDR {
		bw.WriteUE(0) // idr_pic_id
	}
	if sliceType != sliceI {
		bw.WriteBit(0) // num_ref_idx_active_override_flag
	}
	if isIDR {
		bw.WriteBit(0) // no_output_of_prior_pics_flag
		bw.WriteBit(0) // long_term_reference_flag
	} else if sliceType != sliceI {
		bw.WriteBit(0) // adaptive_ref_pic_marking_mode_flag
	}
	bw.WriteSE(0) // slice_qp_delta

	mbsWide := e.sps.width / mbSize
	mbsHigh := e.sps.height / mbSize
	for mbY := 0; mbY < mbsHigh; mbY++ {
		for mbX := 0; mbX < mbsWide; mbX++ {
			if sliceType != sliceI {
				bw.WriteUE(0) // mb_skip_run: this encoder never skips macroblocks
			}
			intra := sliceType == sliceI
			bw.WriteUE(0) // mb_type: 0 == intra4x4 in I slices, inter16x16 in P slices

			var mvx, mvy int
			if !intra {
				mvx, mvy = e.motionSearch(f.Video, mbX*mbSize, mbY*mbSize)
				bw.WriteSE(int32(mvx))
				bw.WriteSE(int32(mvy))
			}
			bw.WriteUE(47) // coded_block_pattern: all luma+chroma blocks coded
			bw.WriteSE(0)  // mb_qp_delta

			encodePlaneMB(bw, f.Video.Planes[0], pic.luma, refPlaneOf(e.prevPic, func(p *picture) []byte { return p.luma }),
				f.Video.Strides[0], pic.width, mbX*mbSize, mbY*mbSize, mbSize, qp, intra, mvx, mvy)
			cw := pic.width / 2
			encodePlaneMB(bw, f.Video.Planes[1], pic.cb, refPlaneOf(e.prevPic, func(p *picture) []byte { return p.cb }),
				f.Video.Strides[1], cw, mbX*mbSize/2, mbY*mbSize/2, mbSize/2, qp, intra, mvx/2, mvy/2)
			encodePlaneMB(bw, f.Video.Planes[2], pic.cr, refPlaneOf(e.prevPic, func(p *picture) []byte { return p.cr }),
				f.Video.Strides[2], cw, mbX*mbSize/2, mbY*mbSize/2, mbSize/2, qp, intra, mvx/2, mvy/2)
		}
	}
	bw.AlignByteWithStopBit()

	nalHeader := byte(0x01) // non-IDR, nal_ref_idc=0
	if isIDR {
		nalHeader = 0x25 // IDR, nal_ref_idc=1
	}
	nal := wrapAnnexB(nalHeader, bw.Bytes())

	tb := rational.Rational{Num: 1, Den: 1}
	if f.Video.TimeBase.Den != 0 {
		tb = f.Video.TimeBase
	}
	p := packet.New(0, nal, tb)
	p.PTS = f.Video.PTS
	p.IsKeyframe = isIDR
	e.pending = p
	e.prevPic = pic
	e.frameNum++
	return nil
}

func (e *encoder) ReceivePacket() (*packet.Packet, error) {
	if e.pending == nil {
		if e.done {
			return nil, mediaerr.Eof
		}
		return nil, mediaerr.NeedMoreData
	}
	p := e.pending
	e.pending = nil
	return p, nil
}

func (e *encoder) Close() error { return nil }

func refPlaneOf(p *picture, sel func(*picture) []byte) []byte {
	if p == nil {
		return nil
	}
	return sel(p)
}

// motionSearch performs a small exhaustive integer-pel SAD search for
// the luma macroblock at (originX, originY) against e.prevPic.
func (e *encoder) motionSearch(vf frame.VideoFrame, originX, originY int) (bestX, bestY int) {
	if e.prevPic == nil {
		return 0, 0
	}
	src := vf.Planes[0]
	stride := vf.Strides[0]
	ref := e.prevPic.luma
	refStride := e.prevPic.width
	refH := e.prevPic.height

	bestSAD := -1
	for dy := -motionSearchRange; dy <= motionSearchRange; dy++ {
		for dx := -motionSearchRange; dx <= motionSearchRange; dx++ {
			sad := 0
			for r := 0; r < mbSize; r++ {
				sy := clampCoord(originY+r+dy, refH)
				for c := 0; c < mbSize; c++ {
					sx := clampCoord(originX+c+dx, refStride)
					s := int(src[(originY+r)*stride+(originX+c)])
					rp := int(ref[sy*refStride+sx])
					diff := s - rp
					if diff < 0 {
						diff = -diff
					}
					sad += diff
				}
			}
			if bestSAD < 0 || sad < bestSAD {
				bestSAD = sad
				bestX, bestY = dx, dy
			}
		}
	}
	return bestX, bestY
}

// encodePlaneMB is reconstructPlane's encode-side counterpart: it
// predicts, transforms, quantizes, and writes each 4x4 block's
// residual, then reconstructs the same block into out so later blocks'
// intra prediction sees exactly what the decoder will see.
func encodePlaneMB(bw *bitio.BitWriter, src, out, ref []byte, srcStride, outStride, originX, originY, mbPixels, qp int, intra bool, mvx, mvy int) {
	blocksPerSide := mbPixels / blockDim
	for by := 0; by < blocksPerSide; by++ {
		for bx := 0; bx < blocksPerSide; bx++ {
			x0 := originX + bx*blockDim
			y0 := originY + by*blockDim

			var pred [blockDim * blockDim]float64
			if intra {
				dc := intraDCPredict(out, outStride, x0, y0)
				for i := range pred {
					pred[i] = dc
				}
			} else {
				fillInterPred(&pred, ref, outStride, x0, y0, mvx, mvy)
			}

			residual := make([]float64, blockDim*blockDim)
			for r := 0; r < blockDim; r++ {
				for c := 0; c < blockDim; c++ {
					orig := float64(src[(y0+r)*srcStride+(x0+c)])
					residual[r*blockDim+c] = orig - pred[r*blockDim+c]
				}
			}
			coeffs := forwardBlock(residual)
			sf, q := quantizeBlock(coeffs, qp)
			bw.WriteSE(int32(sf))
			for _, qi := range q {
				bw.WriteSE(qi)
			}

			recon := inverseBlock(dequantizeBlock(sf, q))
			for r := 0; r < blockDim; r++ {
				for c := 0; c < blockDim; c++ {
					v := pred[r*blockDim+c] + recon[r*blockDim+c]
					out[(y0+r)*outStride+(x0+c)] = clampSample(v)
				}
			}
		}
	}
}
