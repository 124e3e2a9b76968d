package mpeg4

import (
	"github.com/jmylchreest/tao/pkg/bitio"
	"github.com/jmylchreest/tao/pkg/frame"
	"github.com/jmylchreest/tao/pkg/mediaerr"
	"github.com/jmylchreest/tao/pkg/mediatype"
	"github.com/jmylchreest/tao/pkg/packet"
	"github.com/jmylchreest/tao/pkg/stream"
)

// picture is one reconstructed YUV 4:2:0 frame, stored as three flat
// byte planes, mirroring pkg/codec/h264's picture but sized around an
// 8x8 chroma block per macroblock instead of four 4x4 blocks.
type picture struct {
	width, height int
	luma, cb, cr  []byte
}

func newPicture(width, height int) *picture {
	return &picture{
		width:  width,
		height: height,
		luma:   make([]byte, width*height),
		cb:     make([]byte, (width/2)*(height/2)),
		cr:     make([]byte, (width/2)*(height/2)),
	}
}

type decoder struct {
	par     stream.CodecParameters
	vol     vol
	ref     *picture
	vopWasI bool

	pending *packet.Packet
	eof     bool
}

func newDecoder(par stream.CodecParameters) (*decoder, error) {
	d := &decoder{par: par}
	for _, e := range scanStartCodes(par.ExtraData) {
		if e.code >= startCodeVOLMin && e.code <= startCodeVOLMax {
			v, err := parseVOL(bitio.NewBitReader(par.ExtraData[e.offset+4:]))
			if err != nil {
				return nil, err
			}
			d.vol = v
		}
	}
	if d.vol.width == 0 {
		d.vol.width, d.vol.height = par.Width, par.Height
	}
	return d, nil
}

func (d *decoder) SendPacket(p *packet.Packet) error {
	if p == nil {
		d.eof = true
		return nil
	}
	if d.pending != nil {
		return mediaerr.NeedMoreData
	}
	d.pending = p
	return nil
}

func (d *decoder) ReceiveFrame() (frame.Frame, error) {
	if d.pending == nil {
		if d.eof {
			return frame.Frame{}, mediaerr.Eof
		}
		return frame.Frame{}, mediaerr.NeedMoreData
	}
	p := d.pending
	d.pending = nil

	for _, e := range scanStartCodes(p.Bytes()) {
		if e.code >= startCodeVOLMin && e.code <= startCodeVOLMax {
			v, err := parseVOL(bitio.NewBitReader(p.Bytes()[e.offset+4:]))
			if err != nil {
				return frame.Frame{}, err
			}
			d.vol = v
		}
	}

	var pic *picture
	for _, vopData := range splitVOPs(p.Bytes()) {
		decoded, isI, err := d.decodeVOP(vopData)
		if err != nil {
			return frame.Frame{}, err
		}
		pic = decoded
		d.vopWasI = isI
	}
	if pic == nil {
		return frame.Frame{}, mediaerr.NewInvalidData("mpeg4: packet carried no VOP")
	}
	d.ref = pic

	vf := frame.VideoFrame{
		Format:     mediatype.PixelFormatYUV420P,
		Width:      pic.width,
		Height:     pic.height,
		Planes:     [][]byte{pic.luma, pic.cb, pic.cr},
		Strides:    []int{pic.width, pic.width / 2, pic.width / 2},
		PTS:        p.PTS,
		TimeBase:   p.TimeBase,
		IsKeyframe: d.vopWasI,
	}
	return frame.NewVideo(vf), nil
}

func (d *decoder) Close() error { return nil }

// decodeVOP decodes the VOP whose 00 00 01 B6 start code begins
// vopData, assuming exactly one VOP (and its preceding VOL/user-data
// header, if present) per NAL-like unit, as split by splitVOPs.
func (d *decoder) decodeVOP(vopData []byte) (*picture, bool, error) {
	entries := scanStartCodes(vopData)
	var vopOffset = -1
	for _, e := range entries {
		if e.code == startCodeVOP {
			vopOffset = e.offset
			break
		}
	}
	if vopOffset < 0 {
		return nil, false, mediaerr.NewInvalidData("mpeg4: no VOP start code found")
	}
	br := bitio.NewBitReader(vopData[vopOffset+4:])
	h, err := parseVOPHeader(br, d.vol)
	if err != nil {
		return nil, false, err
	}

	if h.codingType != vopTypeI && d.ref == nil {
		return nil, false, mediaerr.NewInvalidData("mpeg4: P/B VOP with no reference picture decoded yet")
	}

	pic := newPicture(d.vol.width, d.vol.height)
	mbsWide := (d.vol.width + mbSize - 1) / mbSize
	mbsHigh := (d.vol.height + mbSize - 1) / mbSize

	for mbY := 0; mbY < mbsHigh; mbY++ {
		for mbX := 0; mbX < mbsWide; mbX++ {
			intra := h.codingType == vopTypeI
			var mvx, mvy int32
			if !intra {
				notCoded, err := br.ReadBit()
				if err != nil {
					return nil, false, err
				}
				if notCoded == 1 {
					d.reconstructSkipMB(pic, mbX, mbY)
					continue
				}
				mbType, err := br.ReadUE()
				if err != nil {
					return nil, false, err
				}
				intra = mbType == 0
				if !intra {
					dx, err := br.ReadSE()
					if err != nil {
						return nil, false, err
					}
					dy, err := br.ReadSE()
					if err != nil {
						return nil, false, err
					}
					mvx, mvy = dx, dy
				}
			}
			if err := d.reconstructMB(br, pic, mbX, mbY, h.quant, intra, mvx, mvy); err != nil {
				return nil, false, err
			}
		}
	}
	return pic, h.codingType == vopTypeI, nil
}

func (d *decoder) reconstructSkipMB(pic *picture, mbX, mbY int) {
	copyMBFromRef(pic.luma, d.ref.luma, pic.width, mbX*mbSize, mbY*mbSize, mbSize, 0, 0)
	cw := pic.width / 2
	copyMBFromRef(pic.cb, d.ref.cb, cw, mbX*mbSize/2, mbY*mbSize/2, mbSize/2, 0, 0)
	copyMBFromRef(pic.cr, d.ref.cr, cw, mbX*mbSize/2, mbY*mbSize/2, mbSize/2, 0, 0)
}

func (d *decoder) reconstructMB(br *bitio.BitReader, pic *picture, mbX, mbY, quant int, intra bool, mvx, mvy int32) error {
	if err := reconstructPlane(br, pic.luma, d.refPlane(func(p *picture) []byte { return p.luma }), pic.width, mbX*mbSize, mbY*mbSize, mbSize, quant, intra, int(mvx), int(mvy)); err != nil {
		return err
	}
	cw := pic.width / 2
	if err := reconstructPlane(br, pic.cb, d.refPlane(func(p *picture) []byte { return p.cb }), cw, mbX*mbSize/2, mbY*mbSize/2, mbSize/2, quant, intra, int(mvx)/2, int(mvy)/2); err != nil {
		return err
	}
	if err := reconstructPlane(br, pic.cr, d.refPlane(func(p *picture) []byte { return p.cr }), cw, mbX*mbSize/2, mbY*mbSize/2, mbSize/2, quant, intra, int(mvx)/2, int(mvy)/2); err != nil {
		return err
	}
	return nil
}

func (d *decoder) refPlane(sel func(*picture) []byte) []byte {
	if d.ref == nil {
		return nil
	}
	return sel(d.ref)
}

// reconstructPlane decodes the blockDim x blockDim blocks tiling one
// mbPixels x mbPixels macroblock region of a single plane. Luma
// macroblocks tile four 8x8 blocks; chroma macroblocks are exactly one
// 8x8 block.
func reconstructPlane(br *bitio.BitReader, plane, ref []byte, stride, originX, originY, mbPixels, quant int, intra bool, mvx, mvy int) error {
	blocksPerSide := mbPixels / blockDim
	for by := 0; by < blocksPerSide; by++ {
		for bx := 0; bx < blocksPerSide; bx++ {
			x0 := originX + bx*blockDim
			y0 := originY + by*blockDim

			var pred [blockDim * blockDim]float64
			if intra {
				dc := intraDCPredict(plane, stride, x0, y0)
				for i := range pred {
					pred[i] = dc
				}
			} else {
				fillInterPred(&pred, ref, stride, x0, y0, mvx, mvy)
			}

			sf, err := br.ReadSE()
			if err != nil {
				return err
			}
			q := make([]int32, blockDim*blockDim)
			for i := range q {
				v, err := br.ReadSE()
				if err != nil {
					return err
				}
				q[i] = v
			}
			residual := inverseBlock(dequantizeBlock(int(sf), q))

			for r := 0; r < blockDim; r++ {
				for c := 0; c < blockDim; c++ {
					v := pred[r*blockDim+c] + residual[r*blockDim+c]
					plane[(y0+r)*stride+(x0+c)] = clampSample(v)
				}
			}
		}
	}
	return nil
}

func intraDCPredict(plane []byte, stride, x0, y0 int) float64 {
	var sum, n int
	if x0 > 0 {
		for r := 0; r < blockDim; r++ {
			sum += int(plane[(y0+r)*stride+(x0-1)])
			n++
		}
	}
	if y0 > 0 {
		for c := 0; c < blockDim; c++ {
			sum += int(plane[(y0-1)*stride+(x0+c)])
			n++
		}
	}
	if n == 0 {
		return 128
	}
	return float64(sum) / float64(n)
}

func fillInterPred(pred *[blockDim * blockDim]float64, ref []byte, stride, x0, y0, mvx, mvy int) {
	if ref == nil {
		for i := range pred {
			pred[i] = 128
		}
		return
	}
	h := len(ref) / stride
	for r := 0; r < blockDim; r++ {
		for c := 0; c < blockDim; c++ {
			sx := clampCoord(x0+c+mvx, stride)
			sy := clampCoord(y0+r+mvy, h)
			pred[r*blockDim+c] = float64(ref[sy*stride+sx])
		}
	}
}

func clampCoord(v, limit int) int {
	if v < 0 {
		return 0
	}
	if v >= limit {
		return limit - 1
	}
	return v
}

func copyMBFromRef(dst, src []byte, stride, originX, originY, size, mvx, mvy int) {
	if src == nil {
		for r := 0; r < size; r++ {
			for c := 0; c < size; c++ {
				dst[(originY+r)*stride+(originX+c)] = 128
			}
		}
		return
	}
	h := len(src) / stride
	for r := 0; r < size; r++ {
		for c := 0; c < size; c++ {
			sx := clampCoord(originX+c+mvx, stride)
			sy := clampCoord(originY+r+mvy, h)
			dst[(originY+r)*stride+(originX+c)] = src[sy*stride+sx]
		}
	}
}
