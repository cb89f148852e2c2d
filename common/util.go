package common

import "fmt"

func PanicIfErr(err error) {
	if err != nil {
		panic(err)
	}
}

// Assert panics with a formatted message if cond is false. It guards invariants whose violation is a bug, not a
// runtime condition.
func Assert(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}

func Clone(src []byte) []byte {
	dst := make([]byte, len(src))
	copy(dst, src)
	return dst
}
