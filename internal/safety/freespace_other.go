//go:build !(linux || darwin)

package safety

func availableBytes(string) (uint64, error) {
	return 0, ErrFreeSpaceUnavailable
}
