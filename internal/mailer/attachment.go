package mailer

import (
	"bytes"
	"encoding/base64"
	"io"
	"strings"

	apperrors "github.com/edupaila/community-server-go/internal/errors"
)

type Encoding int

const (
	// EncodingRaw content is the file bytes.
	EncodingRaw Encoding = iota
	// EncodingBase64 content is base64 text, decoded when attached.
	EncodingBase64
)

type Attachment struct {
	Name     string
	Content  []byte
	Encoding Encoding
}

// NormalizeAttachment turns a client payload into an Attachment. Data URLs
// ("data:<mime>;base64,<data>") are decoded to raw bytes; anything else is
// treated as bare base64 and decoded by the gateway.
func NormalizeAttachment(name, payload string) (Attachment, error) {
	if strings.HasPrefix(payload, "data:") {
		idx := strings.Index(payload, ";base64,")
		if idx < 0 {
			return Attachment{}, apperrors.InvalidInput("attachment", name+" is not a base64 data URL")
		}
		raw, err := base64.StdEncoding.DecodeString(payload[idx+len(";base64,"):])
		if err != nil {
			return Attachment{}, apperrors.InvalidInput("attachment", name+" has malformed base64 content")
		}
		return Attachment{Name: name, Content: raw, Encoding: EncodingRaw}, nil
	}

	return Attachment{Name: name, Content: []byte(payload), Encoding: EncodingBase64}, nil
}

// Reader yields the decoded file bytes.
func (a Attachment) Reader() io.Reader {
	r := bytes.NewReader(a.Content)
	if a.Encoding == EncodingBase64 {
		return base64.NewDecoder(base64.StdEncoding, r)
	}
	return r
}
