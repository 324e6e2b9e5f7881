package audio

import "errors"

// ErrNoAudioDevice indicates no audio input device was found.
var ErrNoAudioDevice = errors.New("no audio input device found")

// ErrNotPCMStream indicates an encoder was asked to read a stream that
// does not deliver raw PCM.
var ErrNotPCMStream = errors.New("stream does not provide PCM audio")

// ErrUnsupportedType indicates FFmpeg cannot produce the requested MIME type.
var ErrUnsupportedType = errors.New("unsupported audio type")

// ErrEncoderState indicates an encoder method was called in the wrong state.
var ErrEncoderState = errors.New("encoder in wrong state")

// ErrNoDuration indicates FFmpeg output carried no usable duration.
var ErrNoDuration = errors.New("no duration in ffmpeg output")

// ErrFFmpegTooOld indicates the FFmpeg build cannot mux fragmented audio.
var ErrFFmpegTooOld = errors.New("ffmpeg version too old")
