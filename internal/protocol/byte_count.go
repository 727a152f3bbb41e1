package protocol

import "math"

// A ByteCount is an amount of payload bytes.
type ByteCount int64

// MaxByteCount is the maximum value of a ByteCount
const MaxByteCount = ByteCount(math.MaxInt64)
