package h264

import (
	"github.com/jmylchreest/tao/pkg/bitio"
	"github.com/jmylchreest/tao/pkg/frame"
	"github.com/jmylchreest/tao/pkg/mediaerr"
	"github.com/jmylchreest/tao/pkg/mediatype"
	"github.com/jmylchreest/tao/pkg/metrics"
	"github.com/jmylchreest/tao/pkg/packet"
	"github.com/jmylchreest/tao/pkg/stream"
)

// picture is one reconstructed YUV 4:2:0 frame, stored as three flat
// byte planes. Chroma planes are quarter-resolution (half width, half
// height) per ITU-T H.264's 4:2:0 sampling.
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
	par stream.CodecParameters
	sps sps
	pps pps
	ref *picture

	refWasIDR bool
	pending   *packet.Packet
	eof       bool
}

func newDecoder(par stream.CodecParameters) (*decoder, error) {
	d := &decoder{par: par}
	for _, nal := range splitAnnexB(par.ExtraData) {
		if err := d.consumeParameterSet(nal); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *decoder) consumeParameterSet(nal []byte) error {
	switch nalType(nal) {
	case nalSPS:
		s, err := parseSPS(bitio.NewBitReader(nal[1:]))
		if err != nil {
			return err
		}
		d.sps = s
	case nalPPS:
		p, err := parsePPS(bitio.NewBitReader(nal[1:]))
		if err != nil {
			return err
		}
		d.pps = p
	}
	return nil
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

	var pic *picture
	for _, nal := range splitAnnexB(p.Bytes()) {
		switch nalType(nal) {
		case nalSPS, nalPPS:
			if err := d.consumeParameterSet(nal); err != nil {
				return frame.Frame{}, err
			}
		case nalSliceIDR, nalSliceNonIDR:
			isIDR := nalType(nal) == nalSliceIDR
			decoded, err := d.decodeSlice(nal[1:], isIDR)
			if err != nil {
				return frame.Frame{}, err
			}
			pic = decoded
		}
	}
	if pic == nil {
		return frame.Frame{}, mediaerr.NewInvalidData("h264: packet carried no slice NAL")
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
		IsKeyframe: d.refWasIDR,
	}
	return frame.NewVideo(vf), nil
}

func (d *decoder) Close() error { return nil }

// decodeSlice decodes the single slice this package assumes covers an
// entire picture (see package doc: multi-slice pictures are rejected).
func (d *decoder) decodeSlice(data []byte, isIDR bool) (*picture, error) {
	br := bitio.NewBitReader(data)
	firstMb, err := br.ReadUE()
	if err != nil {
		return nil, err
	}
	if firstMb != 0 {
		return nil, mediaerr.NewUnsupported("h264: multi-slice pictures are not supported")
	}
	sliceTypeRaw, err := br.ReadUE()
	if err != nil {
		return nil, err
	}
	sliceType := int(sliceTypeRaw) % 5
	if _, err := br.ReadUE(); err != nil { // pic_parameter_set_id
		return nil, err
	}
	if _, err := br.ReadBits(d.sps.log2MaxFrame); err != nil { // frame_num
		return nil, err
	}
	if isIDR {
		if _, err := br.ReadUE(); err != nil { // idr_pic_id
			return nil, err
		}
	}
	if d.sps.picOrderType == 2 {
		// pic_order_cnt derived from frame_num; nothing further to read.
	}
	if sliceType != sliceI {
		if _, err := br.ReadBit(); err != nil { // num_ref_idx_active_override_flag, assumed 0
			return nil, err
		}
	}
	if isIDR {
		if _, err := br.ReadBit(); err != nil { // no_output_of_prior_pics_flag
			return nil, err
		}
		if _, err := br.ReadBit(); err != nil { // long_term_reference_flag
			return nil, err
		}
	} else if sliceType != sliceI {
		if _, err := br.ReadBit(); err != nil { // adaptive_ref_pic_marking_mode_flag, assumed 0
			return nil, err
		}
	}
	qpDelta, err := br.ReadSE()
	if err != nil {
		return nil, err
	}
	sliceQP := clampQP(d.pps.initQP + int(qpDelta))

	needsRef := sliceType != sliceI
	if needsRef && d.ref == nil {
		// No reference decoded yet (stream starts mid-GOP, or the IDR was
		// lost in transit). reconstructMB's ref==nil path already falls
		// back to a mid-gray prediction, so keep decoding instead of
		// failing the whole stream.
		metrics.MissingReferenceFallbacksTotal.Inc()
	}

	pic := newPicture(d.sps.width, d.sps.height)
	mbsWide := d.sps.width / mbSize
	mbsHigh := d.sps.height / mbSize
	total := mbsWide * mbsHigh

	for mb := 0; mb < total; {
		if sliceType != sliceI {
			skipRun, err := br.ReadUE()
			if err != nil {
				return nil, err
			}
			for i := 0; i < int(skipRun) && mb < total; i++ {
				d.reconstructSkipMB(pic, mb%mbsWide, mb/mbsWide)
				mb++
			}
			if mb >= total {
				break
			}
		}
		mbType, err := br.ReadUE()
		if err != nil {
			return nil, err
		}
		if sliceType == sliceI && mbType != 0 {
			return nil, mediaerr.NewUnsupported("h264: only mb_type 0 (intra 4x4) is supported in I slices")
		}
		if sliceType != sliceI && mbType != 0 && mbType != 1 {
			return nil, mediaerr.NewUnsupported("h264: only mb_type 0 (inter 16x16) and 1 (intra) are supported")
		}
		intra := sliceType == sliceI || mbType == 1
		var mvx, mvy int32
		if !intra {
			dx, err := br.ReadSE()
			if err != nil {
				return nil, err
			}
			dy, err := br.ReadSE()
			if err != nil {
				return nil, err
			}
			mvx, mvy = dx, dy
		}
		if _, err := br.ReadUE(); err != nil { // coded_block_pattern, always treated as "all blocks coded"
			return nil, err
		}
		qpd, err := br.ReadSE()
		if err != nil {
			return nil, err
		}
		sliceQP = clampQP(sliceQP + int(qpd))

		mbX, mbY := mb%mbsWide, mb/mbsWide
		if err := d.reconstructMB(br, pic, mbX, mbY, sliceQP, intra, mvx, mvy); err != nil {
			return nil, err
		}
		mb++
	}
	d.refWasIDR = isIDR
	return pic, nil
}

func clampQP(qp int) int {
	if qp < 0 {
		return 0
	}
	if qp > 51 {
		return 51
	}
	return qp
}

// reconstructSkipMB implements P_Skip/B_Skip with a zero motion vector
// (ITU-T H.264's real skip semantics derive a median neighbor predictor;
// this package always uses (0,0), see package doc) and no residual.
func (d *decoder) reconstructSkipMB(pic *picture, mbX, mbY int) {
	copyMBFromRef(pic.luma, d.refPlane(func(p *picture) []byte { return p.luma }), pic.width, mbX*mbSize, mbY*mbSize, mbSize, 0, 0)
	cw := pic.width / 2
	copyMBFromRef(pic.cb, d.refPlane(func(p *picture) []byte { return p.cb }), cw, mbX*mbSize/2, mbY*mbSize/2, mbSize/2, 0, 0)
	copyMBFromRef(pic.cr, d.refPlane(func(p *picture) []byte { return p.cr }), cw, mbX*mbSize/2, mbY*mbSize/2, mbSize/2, 0, 0)
}

func (d *decoder) reconstructMB(br *bitio.BitReader, pic *picture, mbX, mbY, qp int, intra bool, mvx, mvy int32) error {
	if err := reconstructPlane(br, pic.luma, d.refPlane(func(p *picture) []byte { return p.luma }), pic.width, mbX*mbSize, mbY*mbSize, mbSize, qp, intra, mvx, mvy); err != nil {
		return err
	}
	cw := pic.width / 2
	if err := reconstructPlane(br, pic.cb, d.refPlane(func(p *picture) []byte { return p.cb }), cw, mbX*mbSize/2, mbY*mbSize/2, mbSize/2, qp, intra, mvx/2, mvy/2); err != nil {
		return err
	}
	if err := reconstructPlane(br, pic.cr, d.refPlane(func(p *picture) []byte { return p.cr }), cw, mbX*mbSize/2, mbY*mbSize/2, mbSize/2, qp, intra, mvx/2, mvy/2); err != nil {
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
// mbPixels x mbPixels macroblock region of a single plane, in simple
// raster block order (not the real zig-zag block-index scan; see
// package doc).
func reconstructPlane(br *bitio.BitReader, plane, ref []byte, stride, originX, originY, mbPixels, qp int, intra bool, mvx, mvy int32) error {
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
				fillInterPred(&pred, ref, stride, x0, y0, int(mvx), int(mvy))
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
	var sum int
	var n int
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

func copyMBFromRef(dst, src []byte, stride, originX, originY, size int, mvx, mvy int) {
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
