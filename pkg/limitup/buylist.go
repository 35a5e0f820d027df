package limitup

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/wangharden/sell/pkg/symbol"
)

// LoadBuyList finds the most recently modified CSV in dir (preferring a
// name containing "_list" over any other csv, matching operator habit of
// dropping the day's buy list alongside older working files) and reads
// every six-digit code it can find in each row, in whatever column it
// appears. Codes outside the open range (codeMin, codeMax) are dropped,
// including a code equal to either bound; duplicates are
// collapsed, first occurrence wins.
func LoadBuyList(dir, codeMin, codeMax string) (symbols []string, path string, err error) {
	path, err = findLatestListFile(dir)
	if err != nil {
		return nil, "", err
	}
	if path == "" {
		return nil, "", nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, path, fmt.Errorf("limitup: open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	seen := make(map[string]bool)
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		code := findCodeInRow(row)
		if code == "" {
			continue
		}
		if !passCodeFilter(code, codeMin, codeMax) {
			continue
		}
		sym, err := symbol.ToSymbol(code)
		if err != nil {
			continue
		}
		if seen[sym] {
			continue
		}
		seen[sym] = true
		symbols = append(symbols, sym)
	}
	return symbols, path, nil
}

func findCodeInRow(row []string) string {
	for _, raw := range row {
		if code := extractCodeToken(raw); code != "" {
			return code
		}
	}
	return ""
}

func extractCodeToken(raw string) string {
	token := strings.Trim(strings.TrimSpace(raw), "\"")
	if len(token) >= 9 && token[6] == '.' {
		token = token[:6]
	}
	if isSixDigitCode(token) {
		return token
	}
	return ""
}

func isSixDigitCode(token string) bool {
	if len(token) != 6 {
		return false
	}
	for _, c := range token {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func passCodeFilter(code, min, max string) bool {
	if min != "" && code <= min {
		return false
	}
	if max != "" && code >= max {
		return false
	}
	return true
}

// findLatestListFile scans dir for *.csv and returns the one with the
// newest modification time, preferring any whose name contains "_list"
// over plain csvs when both kinds are present.
func findLatestListFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("limitup: read dir %s: %w", dir, err)
	}

	type candidate struct {
		path    string
		modTime int64
		isList  bool
	}
	var list, any []candidate
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".csv") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		c := candidate{path: filepath.Join(dir, e.Name()), modTime: info.ModTime().UnixNano()}
		any = append(any, c)
		if strings.Contains(e.Name(), "_list") {
			c.isList = true
			list = append(list, c)
		}
	}

	pick := list
	if len(pick) == 0 {
		pick = any
	}
	if len(pick) == 0 {
		return "", nil
	}
	sort.Slice(pick, func(i, j int) bool { return pick[i].modTime > pick[j].modTime })
	return pick[0].path, nil
}
