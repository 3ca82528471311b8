package hostlist

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// maxLineSize bounds a single line of the list. Real lines are well under 1KiB.
const maxLineSize = 1 << 20

// BlockList is a set of lowercase hostnames.
type BlockList map[string]struct{}

// Contains reports whether host is on the list. The match is exact and
// case-insensitive.
func (bl BlockList) Contains(host string) bool {
	_, ok := bl[strings.ToLower(host)]
	return ok
}

// Len returns the number of distinct hostnames.
func (bl BlockList) Len() int {
	return len(bl)
}

// parseLine extracts the hostname from one line in "IP hostname" format.
// Comment and empty lines return "" and a nil error.
func parseLine(line string) (string, error) {
	if line == "" || line[0] == '#' {
		return "", nil
	}

	fields := strings.Fields(line)
	if len(fields) < 2 {
		if len(fields) == 0 {
			// whitespace only
			return "", nil
		}
		return "", fmt.Errorf("%w: %q", ErrMalformedLine, line)
	}

	return strings.ToLower(fields[1]), nil
}

// Parse reads a hosts-format list: one "IP hostname" pair per line, with
// '#' comment lines. Malformed lines are skipped. The only errors returned
// come from the reader.
func Parse(r io.Reader) (BlockList, error) {
	bl := make(BlockList)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var malformed int
	for scanner.Scan() {
		host, err := parseLine(scanner.Text())
		if err != nil {
			malformed++
			continue
		}
		if host == "" {
			continue
		}
		bl[host] = struct{}{}
	}

	if malformed > 0 {
		log.Debugf("skipped %d malformed lines", malformed)
	}

	return bl, scanner.Err()
}

// ParseString parses raw list text. Reading from a string cannot fail, so
// only the set is returned.
func ParseString(s string) BlockList {
	if s == "" {
		return make(BlockList)
	}
	bl, err := Parse(strings.NewReader(s))
	if err != nil {
		// only bufio.ErrTooLong; keep what was read so far
		log.Warnf("parse block list: %v", err)
	}
	return bl
}
