package recipients

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

var (
	ErrInvalidAddress = errors.New("invalid email format")
	ErrNoRecipients   = errors.New("no valid email addresses found")
)

var addressPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Validate performs the basic pattern check applied to single recipients.
func Validate(address string) error {
	if !addressPattern.MatchString(address) {
		return fmt.Errorf("%w: %s", ErrInvalidAddress, address)
	}
	return nil
}

// Parse reads one address per line. Lines are trimmed and lines without '@' are dropped.
func Parse(r io.Reader) ([]string, error) {
	var list []string

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.Contains(line, "@") {
			continue
		}
		list = append(list, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return list, nil
}

func ReadFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	list, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if len(list) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoRecipients, path)
	}

	return list, nil
}
