package relay

import (
	"encoding/base64"
	"errors"
	"strings"
	"unicode"
)

var urlAlphabet = strings.NewReplacer("-", "+", "_", "/")

// DecodeAudio decodes base64 audio the way HUD scripts and upstreams send it:
// standard or URL alphabet, with or without padding, possibly wrapped across
// lines, possibly as a data: URI.
func DecodeAudio(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		if i := strings.IndexByte(s, ','); i >= 0 {
			s = s[i+1:]
		}
	}

	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	s = urlAlphabet.Replace(s)
	s = strings.TrimRight(s, "=")

	data, err := base64.RawStdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("decoded audio is empty")
	}
	return data, nil
}
