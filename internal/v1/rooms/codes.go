package rooms

import "math/rand/v2"

// codeAlphabet excludes the glyphs players misread over voice chat: I, O, 0, 1.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// codeLength is fixed by the deployed clients' join forms.
const codeLength = 6

func generateCode() string {
	buf := make([]byte, codeLength)
	for i := range buf {
		buf[i] = codeAlphabet[rand.IntN(len(codeAlphabet))]
	}
	return string(buf)
}
