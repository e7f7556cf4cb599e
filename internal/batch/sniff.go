package batch

import (
	"bufio"
	"bytes"
	"io"
	"unicode/utf8"
)

// sniffLimit bounds how much of the file the sniffer inspects. Detection is
// heuristic and intentionally conservative; it never fails the read.
const sniffLimit = 64 * 1024

var candidateDelims = []rune{';', ',', '\t', '|'}

// sniffDelimiter picks the delimiter whose per-line count is positive and
// most consistent across the sampled lines. Ties keep the earlier candidate,
// so ';' (the common POS export form) wins over ','.
func sniffDelimiter(sample []byte) rune {
	lines := bytes.Split(sample, []byte("\n"))
	if len(lines) > 20 {
		lines = lines[:20]
	}

	best := rune(0)
	bestMin := 0
	for _, d := range candidateDelims {
		min := -1
		for _, line := range lines {
			line = bytes.TrimRight(line, "\r")
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			n := bytes.Count(line, []byte(string(d)))
			if min == -1 || n < min {
				min = n
			}
		}
		if min > bestMin {
			best, bestMin = d, min
		}
	}
	if best == 0 {
		return ';'
	}
	return best
}

// sniffEncoding reports "latin1" when the sample is not valid UTF-8. Every
// byte sequence is valid ISO 8859-1, so this cannot fail; a pure-ASCII file
// simply stays on the UTF-8 path.
func sniffEncoding(sample []byte) string {
	// Cut a possibly split trailing rune before validating.
	cut := len(sample)
	for cut > 0 && cut > len(sample)-4 && !utf8.Valid(sample[:cut]) {
		cut--
	}
	if !utf8.Valid(sample[:cut]) {
		return "latin1"
	}
	return ""
}

// sniffReader peeks at the start of r and returns the sample plus a reader
// that replays it.
func sniffReader(r io.Reader) ([]byte, io.Reader) {
	br := bufio.NewReaderSize(r, sniffLimit)
	sample, _ := br.Peek(sniffLimit)
	return sample, br
}
