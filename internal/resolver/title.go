package resolver

import (
	"bufio"
	"errors"
	"io"
	"regexp"
	"strings"
)

// NoTitle is used when a page never opens a <title> element.
const NoTitle = "[No Title Set]"

const (
	titleOpen  = "<title>"
	titleClose = "</title>"
	headClose  = "</head>"
	bodyOpen   = "<body>"
)

// maxLineBytes caps how much of one line is kept. The rest of a longer line
// is read and dropped.
const maxLineBytes = 1 << 20

var whitespaceRun = regexp.MustCompile(`\s\s+`)

// ExtractTitle scans r line by line for the text inside <title>...</title>.
// It is a textual scan, not a parse: it stops at </head> or <body>, keeps
// whatever it collected so far, and holds at most maxLineBytes of one line at
// a time. Lines inside a multi-line title are joined with a space.
func ExtractTitle(r io.Reader) (string, error) {
	br := bufio.NewReader(r)
	title := NoTitle
	reading := false

	for {
		line, err := readLine(br)
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		if line == "" && err != nil {
			break
		}

		if idx := strings.Index(line, titleOpen); idx >= 0 {
			reading = true
			line = line[idx+len(titleOpen):]
			title = ""
		}
		if reading {
			if idx := strings.Index(line, titleClose); idx >= 0 {
				title += line[:idx]
				break
			}
		}
		if strings.Contains(line, headClose) || strings.Contains(line, bodyOpen) {
			break
		}
		if reading {
			title += line + " "
		}
		if err != nil {
			break
		}
	}
	return cleanTitle(title), nil
}

// readLine returns the next line without its terminator, truncated to
// maxLineBytes. io.EOF comes back together with the final unterminated line,
// if any.
func readLine(br *bufio.Reader) (string, error) {
	var buf []byte
	for {
		frag, err := br.ReadSlice('\n')
		if room := maxLineBytes - len(buf); room > 0 {
			if len(frag) > room {
				frag = frag[:room]
			}
			buf = append(buf, frag...)
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		line := strings.TrimSuffix(string(buf), "\n")
		return strings.TrimSuffix(line, "\r"), err
	}
}

func cleanTitle(title string) string {
	return whitespaceRun.ReplaceAllString(strings.TrimSpace(title), " ")
}
