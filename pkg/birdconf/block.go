// Package birdconf edits the static route section of bird.conf and writes
// the file back atomically.
package birdconf

import (
	"fmt"
	"strings"

	"github.com/birdsync/birdsync/pkg/util"
)

// DefaultStaticMarker opens the static route section.
const DefaultStaticMarker = "protocol static"

const defaultIndent = "    "

// Block locates a static protocol section by line index.
type Block struct {
	Start int // line holding the start marker
	End   int // line holding the brace that closes the block
}

// SplitLines splits data into lines that keep their line endings, so
// joining them reproduces data byte for byte.
func SplitLines(data []byte) []string {
	if len(data) == 0 {
		return nil
	}
	lines := strings.SplitAfter(string(data), "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// code strips a trailing # comment.
func code(line string) string {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		return line[:i]
	}
	return line
}

// FindStaticBlock returns the first block opened by marker. The closing line
// is the one whose brace balances the block's opening brace, so nested
// channel sections such as "ipv4 { ... };" stay inside the block.
func FindStaticBlock(lines []string, marker string) (Block, error) {
	if marker == "" {
		marker = DefaultStaticMarker
	}
	start := -1
	for i, line := range lines {
		if strings.Contains(code(line), marker) {
			start = i
			break
		}
	}
	if start < 0 {
		return Block{}, fmt.Errorf("%w: no %q line", util.ErrConfigBlockNotFound, marker)
	}

	depth := 0
	opened := false
	for i := start; i < len(lines); i++ {
		for _, c := range code(lines[i]) {
			switch c {
			case '{':
				depth++
				opened = true
			case '}':
				depth--
			}
			if opened && depth == 0 {
				if i == start {
					return Block{}, fmt.Errorf("%w: %q block opens and closes on line %d", util.ErrConfigBlockNotFound, marker, start+1)
				}
				return Block{Start: start, End: i}, nil
			}
		}
	}
	return Block{}, fmt.Errorf("%w: %q block on line %d is not closed", util.ErrConfigBlockNotFound, marker, start+1)
}

// RouteLine formats a static route declaration without indentation or newline.
func RouteLine(destination, nextHop string) string {
	return fmt.Sprintf("route %s via %s;", destination, nextHop)
}

// declares reports whether line is a route statement for destination.
func declares(line, destination string) bool {
	fields := strings.Fields(code(line))
	if len(fields) < 2 || fields[0] != "route" {
		return false
	}
	return strings.TrimSuffix(fields[1], ";") == destination
}

// HasRoute reports whether the static block declares destination.
func HasRoute(data []byte, marker, destination string) (bool, error) {
	lines := SplitLines(data)
	blk, err := FindStaticBlock(lines, marker)
	if err != nil {
		return false, err
	}
	for i := blk.Start + 1; i < blk.End; i++ {
		if declares(lines[i], destination) {
			return true, nil
		}
	}
	return false, nil
}

// InsertRoute adds a route declaration immediately before the closing line
// of the static block. Every other line is left untouched.
func InsertRoute(data []byte, marker, destination, nextHop string) ([]byte, error) {
	lines := SplitLines(data)
	blk, err := FindStaticBlock(lines, marker)
	if err != nil {
		return nil, err
	}

	indent := defaultIndent
	for i := blk.Start + 1; i < blk.End; i++ {
		if strings.HasPrefix(strings.TrimSpace(lines[i]), "route ") {
			indent = lines[i][:len(lines[i])-len(strings.TrimLeft(lines[i], " \t"))]
			break
		}
	}
	eol := "\n"
	if strings.HasSuffix(lines[blk.Start], "\r\n") {
		eol = "\r\n"
	}

	out := make([]string, 0, len(lines)+1)
	out = append(out, lines[:blk.End]...)
	out = append(out, indent+RouteLine(destination, nextHop)+eol)
	out = append(out, lines[blk.End:]...)
	return []byte(strings.Join(out, "")), nil
}

// RemoveRoute deletes the first declaration of destination inside the static
// block. It returns util.ErrRouteNotInConfig when there is none.
func RemoveRoute(data []byte, marker, destination string) ([]byte, error) {
	lines := SplitLines(data)
	blk, err := FindStaticBlock(lines, marker)
	if err != nil {
		return nil, err
	}
	for i := blk.Start + 1; i < blk.End; i++ {
		if declares(lines[i], destination) {
			out := make([]string, 0, len(lines)-1)
			out = append(out, lines[:i]...)
			out = append(out, lines[i+1:]...)
			return []byte(strings.Join(out, "")), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", util.ErrRouteNotInConfig, destination)
}
