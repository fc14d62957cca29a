// Copyright 2020 Jochen Voss <voss@seehuhn.de>
//
// Some code here, e.g. the pngUpReader, is taken from
// https://pkg.go.dev/rsc.io/pdf .  Use of this source code is governed by a
// BSD-style license, which is reproduced here:
//
//     Copyright (c) 2009 The Go Authors. All rights reserved.
//
//     Redistribution and use in source and binary forms, with or without
//     modification, are permitted provided that the following conditions are
//     met:
//
//        * Redistributions of source code must retain the above copyright
//     notice, this list of conditions and the following disclaimer.
//        * Redistributions in binary form must reproduce the above
//     copyright notice, this list of conditions and the following disclaimer
//     in the documentation and/or other materials provided with the
//     distribution.
//        * Neither the name of Google Inc. nor the names of its
//     contributors may be used to endorse or promote products derived from
//     this software without specific prior written permission.
//
//     THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS
//     "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT
//     LIMITED TO, THE IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR
//     A PARTICULAR PURPOSE ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT
//     OWNER OR CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
//     SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT
//     LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR SERVICES; LOSS OF USE,
//     DATA, OR PROFITS; OR BUSINESS INTERRUPTION) HOWEVER CAUSED AND ON ANY
//     THEORY OF LIABILITY, WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT
//     (INCLUDING NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
//     OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH DAMAGE.

package pdf

import (
	"bytes"
	"compress/zlib"
	"encoding/ascii85"
	"encoding/hex"
	"io"
)

// StreamFilterFactory decodes one filter's worth of a stream, given its
// decode parameters dictionary (nil if the /DecodeParms entry was
// absent). This is the process-wide registry point spec section 6
// describes ("register_stream_filter(name, factory)"): callers can add
// support for filters this package does not know about (JBIG2Decode,
// DCTDecode, ...) without forking it.
type StreamFilterFactory func(r io.Reader, parms Dictionary) (io.Reader, error)

var streamFilters map[Name]StreamFilterFactory

func init() {
	streamFilters = map[Name]StreamFilterFactory{
		"FlateDecode":    flateDecodeFilter,
		"ASCIIHexDecode": asciiHexDecodeFilter,
		"ASCII85Decode":  ascii85DecodeFilter,
	}
}

// RegisterStreamFilter installs (or overrides) the decoder used for a
// named filter. It is not safe to call concurrently with stream
// decoding; register filters during process initialization.
func RegisterStreamFilter(name Name, factory StreamFilterFactory) {
	streamFilters[name] = factory
}

// decodeStreamBytes applies every filter named in dict's /Filter entry,
// in order, to raw. Predictors are applied by the individual filter
// factories, matching how the /DecodeParms entry travels alongside each
// filter name rather than being handled centrally. Only the FlateDecode
// factory applies a predictor, and it decodes every /Predictor value
// above 1 as PNG row prediction; no LZWDecode factory is registered.
func decodeStreamBytes(dict Dictionary, raw []byte) ([]byte, error) {
	filters, parms := normalizeFilterChain(dict)
	r := io.Reader(bytes.NewReader(raw))
	for i, name := range filters {
		factory, ok := streamFilters[name]
		if !ok {
			return nil, logicError(OpTypeAssertion, "unsupported stream filter "+string(name))
		}
		var p Dictionary
		if i < len(parms) {
			p = parms[i]
		}
		next, err := factory(r, p)
		if err != nil {
			return nil, err
		}
		r = next
	}
	return io.ReadAll(r)
}

func normalizeFilterChain(dict Dictionary) ([]Name, []Dictionary) {
	var names []Name
	var parms []Dictionary

	fh, ok := dict["Filter"]
	if !ok {
		return nil, nil
	}
	switch v := fh.resolvedValue().(type) {
	case Name:
		names = []Name{v}
	case Array:
		for _, item := range v {
			if n, ok := item.resolvedValue().(Name); ok {
				names = append(names, n)
			}
		}
	}

	if ph, ok := dict["DecodeParms"]; ok {
		switch v := ph.resolvedValue().(type) {
		case Dictionary:
			parms = []Dictionary{v}
		case Array:
			for _, item := range v {
				if d, ok := item.resolvedValue().(Dictionary); ok {
					parms = append(parms, d)
				} else {
					parms = append(parms, nil)
				}
			}
		}
	}
	return names, parms
}

func flateDecodeFilter(r io.Reader, parms Dictionary) (io.Reader, error) {
	zr, err := zlib.NewReader(r)
	if err != nil {
		return nil, err
	}
	return applyPredictor(zr, parms)
}

func asciiHexDecodeFilter(r io.Reader, _ Dictionary) (io.Reader, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimRight(data, ">")
	data = bytes.Map(func(rr rune) rune {
		if rr == '\n' || rr == '\r' || rr == ' ' || rr == '\t' {
			return -1
		}
		return rr
	}, data)
	if len(data)%2 == 1 {
		data = append(data, '0')
	}
	out := make([]byte, hex.DecodedLen(len(data)))
	n, err := hex.Decode(out, data)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(out[:n]), nil
}

func ascii85DecodeFilter(r io.Reader, _ Dictionary) (io.Reader, error) {
	return ascii85.NewDecoder(r), nil
}

// applyPredictor applies PNG-style row prediction to zr, as governed by
// the Predictor/Colors/BitsPerComponent/Columns entries of parms.
// Predictor 1 (the default, meaning "none") passes data through
// unchanged; predictors 10-15 are the PNG filter types and are all
// resolved per-row from the leading filter-type byte, matching the way
// FlateDecode streams from real-world PDF writers are almost always
// encoded.
func applyPredictor(zr io.Reader, parms Dictionary) (io.Reader, error) {
	if parms == nil {
		return zr, nil
	}
	predictor := dictInt(parms, "Predictor", 1)
	if predictor <= 1 {
		return zr, nil
	}
	colors := dictInt(parms, "Colors", 1)
	bpc := dictInt(parms, "BitsPerComponent", 8)
	columns := dictInt(parms, "Columns", 1)

	bytesPerPixel := (colors*bpc + 7) / 8
	rowBytes := (colors*bpc*columns + 7) / 8

	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	prev := make([]byte, rowBytes)
	for len(data) > 0 {
		if len(data) < 1+rowBytes {
			break
		}
		tag := data[0]
		row := append([]byte{}, data[1:1+rowBytes]...)
		data = data[1+rowBytes:]
		for i := range row {
			var a, b, c byte
			if i >= bytesPerPixel {
				a = row[i-bytesPerPixel]
				c = prev[i-bytesPerPixel]
			}
			b = prev[i]
			switch tag {
			case 1: // Sub
				row[i] += a
			case 2: // Up
				row[i] += b
			case 3: // Average
				row[i] += byte((int(a) + int(b)) / 2)
			case 4: // Paeth
				row[i] += paethPredictor(a, b, c)
			}
		}
		out.Write(row)
		prev = row
	}
	return &out, nil
}

func paethPredictor(a, b, c byte) byte {
	pa := abs(int(b) - int(c))
	pb := abs(int(a) - int(c))
	pc := abs(int(a) + int(b) - 2*int(c))
	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}
	return c
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func dictInt(d Dictionary, key Name, def int) int {
	h, ok := d[key]
	if !ok {
		return def
	}
	if i, ok := h.resolvedValue().(Integer); ok {
		return int(i)
	}
	return def
}
