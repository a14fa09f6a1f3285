package de1

import (
	"github.com/fako1024/de1ble/pkg/codec"
)

const (

	// FrameLen denotes the size of a profile frame on the wire
	FrameLen = 8

	// HeaderLen denotes the size of a profile header on the wire
	HeaderLen = 5

	// HeaderVersion denotes the supported profile header version
	HeaderVersion = 1

	// ExtensionOffset is added to the frame index of limiter frames
	ExtensionOffset = 32
)

// EncodeFrame encodes a profile frame at the given index
func EncodeFrame(f Frame, index int) [FrameLen]byte {
	vol := codec.EncodeU10P0(f.Volume)

	return [FrameLen]byte{
		byte(index),
		f.Flags(),
		codec.EncodeU8P4(f.SetValue()),
		codec.EncodeU8P1(f.Temperature),
		codec.EncodeF8_1_7(f.Seconds),
		codec.EncodeU8P4(f.TriggerValue()),
		vol[0],
		vol[1],
	}
}

// EncodeExtensionFrame encodes the limiter frame belonging to the frame at the given index
func EncodeExtensionFrame(f Frame, index int) [FrameLen]byte {
	return [FrameLen]byte{
		byte(index + ExtensionOffset),
		codec.EncodeU8P4(f.MaxFlowOrPressure),
		codec.EncodeU8P4(f.MaxFlowOrPressureRange),
	}
}

// EncodeHeader encodes the profile header
func EncodeHeader(frames, preinfuseFrames int, minPressure, maxFlow float64) [HeaderLen]byte {
	return [HeaderLen]byte{
		HeaderVersion,
		byte(frames),
		byte(preinfuseFrames),
		codec.EncodeU8P4(minPressure),
		codec.EncodeU8P4(maxFlow),
	}
}

// EncodeTailFrame encodes the frame terminating a profile upload
func EncodeTailFrame(frameCount int) [FrameLen]byte {
	return [FrameLen]byte{byte(frameCount)}
}

// EncodeProfile encodes the complete frame sequence of a profile upload: all frames,
// the extension frames of all frames with limiters and the tail frame
func EncodeProfile(frames []Frame) [][FrameLen]byte {
	res := make([][FrameLen]byte, 0, 2*len(frames)+1)
	for i, f := range frames {
		res = append(res, EncodeFrame(f, i))
	}
	for i, f := range frames {
		if f.NeedsExtension() {
			res = append(res, EncodeExtensionFrame(f, i))
		}
	}

	return append(res, EncodeTailFrame(len(frames)))
}
