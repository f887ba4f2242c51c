package pbdb

import (
	"encoding/hex"
	"strconv"
	"unicode/utf8"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func hexstr(b []byte) string {
	if b == nil {
		return "<nil>"
	}
	if len(b) == 0 {
		return "<empty>"
	}
	return hex.EncodeToString(b)
}

// displayKey formats a stored key for humans: quoted if it is valid UTF-8,
// hex otherwise.
func displayKey(k []byte) string {
	if utf8.Valid(k) {
		return strconv.Quote(string(k))
	}
	return "0x" + hexstr(k)
}
