package audio

// The realtime session streams 24kHz mono PCM in both directions unless a
// G.711 format is negotiated.
const (
	DefaultSampleRate = 24000
	DefaultFormat     = "pcm16"
)

func GetDefaultEncodingInfo() EncodingInfo {
	return EncodingInfo{SampleRate: DefaultSampleRate, Format: encodingFormat(DefaultFormat)}
}

type EncodingInfo struct {
	SampleRate int
	Format     encodingFormat
}

func (e EncodingInfo) IsZero() bool {
	return e.SampleRate == 0 || e.Format.Name() == ""
}

func (e EncodingInfo) SilenceValue() byte {
	switch e.Format {
	case EncodingALaw:
		return 0x55
	case EncodingMulaw:
		return 0xFF
	case EncodingPCM16:
		return 0
	}

	return 0
}

type encodingFormat string

func (e encodingFormat) Name() string {
	return string(e)
}

func (e encodingFormat) ByteSize() int {
	switch e {
	case EncodingMulaw, EncodingALaw:
		return 1
	case EncodingPCM16:
		return 2
	}
	return -1
}

const (
	EncodingMulaw encodingFormat = "g711_ulaw"
	EncodingALaw  encodingFormat = "g711_alaw"
	EncodingPCM16 encodingFormat = "pcm16"
)

// SupportedFormats lists the session audio formats the remote endpoint
// advertises, in preference order.
func SupportedFormats() []string {
	return []string{EncodingPCM16.Name(), EncodingMulaw.Name(), EncodingALaw.Name()}
}

// FormatFromName resolves a preferred codec name against the supported set.
// The bool reports whether the preference was found.
func FormatFromName(name string) (encodingFormat, bool) {
	switch encodingFormat(name) {
	case EncodingPCM16, EncodingMulaw, EncodingALaw:
		return encodingFormat(name), true
	}
	return EncodingPCM16, false
}
