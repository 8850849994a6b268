package page

import (
	"bytes"

	"github.com/google/uuid"
)

// Page one stores the validity check markers. A random marker is written to
// [100,108) on every open and copied to [108,116) on a clean close, so equal
// ranges mean the previous session shut down cleanly.
const (
	vcOffset = 100
	vcLength = 8
)

// InitPageOneRaw returns the bytes of a fresh page one opened by session.
func InitPageOneRaw(session uuid.UUID) []byte {
	raw := make([]byte, PageSize)
	setVcOpen(raw, session)

	return raw
}

func SetVcOpen(p *Page, session uuid.UUID) {
	p.SetDirtiness(true)
	setVcOpen(p.Data(), session)
}

func setVcOpen(raw []byte, session uuid.UUID) {
	copy(raw[vcOffset:vcOffset+vcLength], session[:vcLength])
}

func SetVcClose(p *Page) {
	p.SetDirtiness(true)

	raw := p.Data()
	copy(raw[vcOffset+vcLength:vcOffset+2*vcLength], raw[vcOffset:vcOffset+vcLength])
}

// CheckVc reports whether the previous session closed the database cleanly.
func CheckVc(p *Page) bool {
	raw := p.Data()

	return bytes.Equal(
		raw[vcOffset:vcOffset+vcLength],
		raw[vcOffset+vcLength:vcOffset+2*vcLength],
	)
}

// HasVc reports whether page one was ever stamped by a session. Session
// markers carry uuid version bits, so they are never all zero.
func HasVc(p *Page) bool {
	return !bytes.Equal(p.Data()[vcOffset:vcOffset+vcLength], make([]byte, vcLength))
}
