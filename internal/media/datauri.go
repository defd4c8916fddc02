package media

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidDataURI = errors.New("invalid data URI")

// DataURI is a binary payload carried inline as data:<mime>;base64,<payload>.
type DataURI struct {
	MIMEType string
	Data     []byte
}

func New(mimeType string, data []byte) DataURI {
	return DataURI{MIMEType: mimeType, Data: data}
}

func ParseDataURI(s string) (DataURI, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(s), "data:")
	if !ok {
		return DataURI{}, fmt.Errorf("%w: missing data: prefix", ErrInvalidDataURI)
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return DataURI{}, fmt.Errorf("%w: missing payload", ErrInvalidDataURI)
	}
	mimeType, ok := strings.CutSuffix(header, ";base64")
	if !ok {
		return DataURI{}, fmt.Errorf("%w: payload must be base64", ErrInvalidDataURI)
	}
	if mimeType == "" || !strings.Contains(mimeType, "/") {
		return DataURI{}, fmt.Errorf("%w: missing mime type", ErrInvalidDataURI)
	}
	if payload == "" {
		return DataURI{}, fmt.Errorf("%w: empty payload", ErrInvalidDataURI)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return DataURI{}, fmt.Errorf("%w: %v", ErrInvalidDataURI, err)
	}
	return DataURI{MIMEType: strings.ToLower(mimeType), Data: data}, nil
}

func IsDataURI(s string) bool {
	_, err := ParseDataURI(s)
	return err == nil
}

func (d DataURI) String() string {
	return "data:" + d.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(d.Data)
}

// Base64 returns the payload without the data URI header.
func (d DataURI) Base64() string {
	return base64.StdEncoding.EncodeToString(d.Data)
}

// Extension guesses a file extension for storage keys.
func (d DataURI) Extension() string {
	switch d.MIMEType {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "audio/webm":
		return ".webm"
	case "audio/wav", "audio/x-wav":
		return ".wav"
	case "audio/mpeg":
		return ".mp3"
	case "audio/ogg":
		return ".ogg"
	default:
		return ".bin"
	}
}
