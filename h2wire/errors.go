package h2wire

import "errors"

var errBadPaddingLength = errors.New("h2wire: bad padding length")
