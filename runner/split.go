package runner

import (
	"bufio"
	"bytes"
)

// splitTransferLines returns a bufio.SplitFunc that breaks output on '\n'
// and on bare '\r'. rsync --info=progress2 and docker pull redraw their
// progress line with carriage returns, so treating '\r' as a terminator is
// what makes progress visible before the line is finally ended with '\n'.
//
// A "\r\n" pair yields the line followed by an empty token; callers drop
// blank lines anyway. Lines longer than max are returned in max-sized
// chunks instead of failing the scan with bufio.ErrTooLong.
func splitTransferLines(max int) bufio.SplitFunc {
	return func(data []byte, atEOF bool) (int, []byte, error) {
		if atEOF && len(data) == 0 {
			return 0, nil, nil
		}
		if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
			return i + 1, data[:i], nil
		}
		if atEOF {
			return len(data), data, nil
		}
		if max > 0 && len(data) >= max {
			return len(data), data, nil
		}
		return 0, nil, nil
	}
}
