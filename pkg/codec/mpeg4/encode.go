package mpeg4

import (
	"github.com/jmylchreest/tao/pkg/bitio"
	"github.com/jmylchreest/tao/pkg/frame"
	"github.com/jmylchreest/tao/pkg/mediaerr"
	"github.com/jmylchreest/tao/pkg/packet"
	"github.com/jmylchreest/tao/pkg/rational"
	"github.com/jmylchreest/tao/pkg/stream"
)

// motionSearchRange bounds this package's exhaustive integer-pel
// motion search, the same small full search pkg/codec/h264 uses.
const motionSearchRange = 7

const defaultQuant = 10

type encoder struct {
	par       stream.CodecParameters
	vol       vol
	extraData []byte

	prevPic  *picture
	frameNum int
	pending  *packet.Packet
	done     bool
}

func newEncoder(par stream.CodecParameters) (*encoder, error) {
	width, height := par.Width, par.Height
	if width == 0 || height == 0 {
		return nil, mediaerr.NewInvalidArgument("mpeg4: encoder requires Width/Height")
	}
	width = (width + 15) / 16 * 16
	height = (height + 15) / 16 * 16

	v := vol{width: width, height: height, timeIncrementBits: log2Ceil(30)}
	e := &encoder{par: par, vol: v}

	volNAL := append([]byte{0, 0, 1, startCodeVOLMin}, v.encode()...)
	e.extraData = append(append([]byte{0, 0, 1, startCodeVOS}, 1), volNAL...)
	return e, nil
}

// ExtraData returns the VOS/VOL start-code header an output Stream
// should carry, matching the convention pkg/stream.CodecParameters
// documents for MPEG-4 Part 2 ExtraData (a VOL header).
func (e *encoder) ExtraData() []byte { return e.extraData }

func (e *encoder) SendFrame(f frame.Frame) error {
	if f.Kind != frame.KindVideo || f.Video.Width == 0 {
		e.done = true
		return nil
	}
	if e.pending != nil {
		return mediaerr.NeedMoreData
	}

	isI := e.frameNum == 0
	codingType := vopTypeI
	if !isI {
		codingType = vopTypeP
	}
	quant := defaultQuant
	pic := newPicture(e.vol.width, e.vol.height)

	h := vop{codingType: codingType, quant: quant}
	bw := bitio.NewBitWriter()
	writeVOPHeader(bw, h, e.vol)

	mbsWide := e.vol.width / mbSize
	mbsHigh := e.vol.height / mbSize
	for mbY := 0; mbY < mbsHigh; mbY++ {
		for mbX := 0; mbX < mbsWide; mbX++ {
			intra := codingType == vopTypeI
			var mvx, mvy int
			if !intra {
				bw.WriteBit(0) // not_coded: this encoder never emits skipped macroblocks
				bw.WriteUE(1)  // mb_type: inter 16x16
				mvx, mvy = e.motionSearch(f.Video, mbX*mbSize, mbY*mbSize)
				bw.WriteSE(int32(mvx))
				bw.WriteSE(int32(mvy))
			}
			encodePlaneMB(bw, f.Video.Planes[0], pic.luma, refPlaneOf(e.prevPic, func(p *picture) []byte { return p.luma }),
				f.Video.Strides[0], pic.width, mbX*mbSize, mbY*mbSize, mbSize, quant, intra, mvx, mvy)
			cw := pic.width / 2
			encodePlaneMB(bw, f.Video.Planes[1], pic.cb, refPlaneOf(e.prevPic, func(p *picture) []byte { return p.cb }),
				f.Video.Strides[1], cw, mbX*mbSize/2, mbY*mbSize/2, mbSize/2, quant, intra, mvx/2, mvy/2)
			encodePlaneMB(bw, f.Video.Planes[2], pic.cr, refPlaneOf(e.prevPic, func(p *picture) []byte { return p.cr }),
				f.Video.Strides[2], cw, mbX*mbSize/2, mbY*mbSize/2, mbSize/2, quant, intra, mvx/2, mvy/2)
		}
	}
	bw.AlignByteWithStopBit()

	vopNAL := append([]byte{0, 0, 1, startCodeVOP}, bw.Bytes()...)

	tb := rational.Rational{Num: 1, Den: 1}
	if f.Video.TimeBase.Den != 0 {
		tb = f.Video.TimeBase
	}
	p := packet.New(0, vopNAL, tb)
	p.PTS = f.Video.PTS
	p.IsKeyframe = isI
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

// encodePlaneMB is reconstructPlane's encode-side counterpart, the
// same shape as pkg/codec/h264's encodePlaneMB but at the 8x8 block
// size this package's DCT uses.
func encodePlaneMB(bw *bitio.BitWriter, src, out, ref []byte, srcStride, outStride, originX, originY, mbPixels, quant int, intra bool, mvx, mvy int) {
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
			sf, q := quantizeBlock(coeffs, quant)
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
