package voice

import (
	"encoding/binary"
	"math"
)

// blockSamples is the sub-window used to spot short speech inside an
// otherwise quiet window (100ms at 16kHz).
const blockSamples = 1600

// Segmenter detects end of speech in a PCM16LE mono stream.
//
// Samples are accumulated per window. At each window boundary the caller
// invokes Tick, which reports the RMS of normalized amplitude over that
// window and whether the window was silent. A window with no samples is
// silent. A window whose last block is above the threshold is never silent:
// speech that starts at the end of a quiet window carries into the next one.
type Segmenter struct {
	threshold float64

	sumSq   float64
	samples int
	carry   []byte // odd trailing byte of the previous frame

	blockSumSq float64
	blockN     int
	tailVoiced bool // most recent block in this window was above threshold
	heard      bool // any block in this window was above threshold

	voiced bool // any voiced window since the last Reset
}

// NewSegmenter creates a segmenter with the given silence threshold.
func NewSegmenter(threshold float64) *Segmenter {
	return &Segmenter{threshold: threshold}
}

// Write adds PCM16LE bytes to the current window. Frames may split a
// sample; the odd byte is carried into the next Write.
func (g *Segmenter) Write(p []byte) {
	if len(g.carry) > 0 {
		p = append(g.carry, p...)
		g.carry = nil
	}
	n := len(p) &^ 1
	for i := 0; i < n; i += 2 {
		v := float64(int16(binary.LittleEndian.Uint16(p[i:]))) / 32768
		g.sumSq += v * v
		g.samples++
		g.blockSumSq += v * v
		g.blockN++
		if g.blockN == blockSamples {
			g.closeBlock()
		}
	}
	if n < len(p) {
		g.carry = []byte{p[n]}
	}
}

func (g *Segmenter) closeBlock() {
	g.tailVoiced = math.Sqrt(g.blockSumSq/float64(g.blockN)) >= g.threshold
	if g.tailVoiced {
		g.heard = true
	}
	g.blockSumSq, g.blockN = 0, 0
}

// Tick closes the current window and starts a new one.
func (g *Segmenter) Tick() (rms float64, silent bool) {
	if g.blockN > 0 {
		g.closeBlock()
	}
	if g.samples > 0 {
		rms = math.Sqrt(g.sumSq / float64(g.samples))
	}

	silent = rms < g.threshold && !g.tailVoiced
	if !silent || g.heard {
		g.voiced = true
	}

	g.sumSq, g.samples = 0, 0
	g.tailVoiced, g.heard = false, false
	return rms, silent
}

// Voiced reports whether any window since the last Reset held speech.
func (g *Segmenter) Voiced() bool {
	return g.voiced
}

// Reset starts a new segment.
func (g *Segmenter) Reset() {
	g.voiced = false
}
