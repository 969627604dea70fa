// Package source reads the community and proxy lists that seed a scan.
package source

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrNoCommunities is returned when a list yields no names.
var ErrNoCommunities = errors.New("no communities found in source")

var headerNames = []string{"subreddit", "community"}

// LoadCommunities reads names from a plain text or CSV file. A header row
// containing a "subreddit" or "community" column selects that column;
// otherwise the first column is used. Leading "/" and "r/" are stripped.
func LoadCommunities(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open community source: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ParseCommunities(f)
}

// ParseCommunities is LoadCommunities over a reader.
func ParseCommunities(r io.Reader) ([]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	var (
		out   []string
		col   int
		first = true
	)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read community source: %w", err)
		}
		if first {
			first = false
			if idx, ok := headerColumn(record); ok {
				col = idx
				continue
			}
		}
		if col >= len(record) {
			continue
		}
		if name := Normalize(record[col]); name != "" {
			out = append(out, name)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoCommunities
	}
	return out, nil
}

// Normalize trims whitespace, a leading "/", and an "r/" prefix.
func Normalize(raw string) string {
	name := strings.TrimSpace(raw)
	name = strings.TrimPrefix(name, "/")
	name = strings.TrimPrefix(name, "r/")
	return strings.Trim(name, "/ ")
}

func headerColumn(record []string) (int, bool) {
	for i, field := range record {
		key := strings.ToLower(strings.TrimSpace(field))
		for _, h := range headerNames {
			if key == h {
				return i, true
			}
		}
	}
	return 0, false
}

// LoadProxies reads one proxy per line, ignoring blanks and "#" comments. An
// empty path yields no proxies.
func LoadProxies(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open proxy list: %w", err)
	}
	defer func() { _ = f.Close() }()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read proxy list: %w", err)
	}
	return out, nil
}
