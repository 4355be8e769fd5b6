package detect

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"github.com/BurntSushi/toml"
)

var (
	// ErrInvalidTOML indicates an allowlist file could not be parsed.
	ErrInvalidTOML = errors.New("invalid allowlist TOML")

	// ErrInvalidRegex indicates an allowlist pattern does not compile.
	ErrInvalidRegex = errors.New("invalid allowlist regex")
)

// LoadAllowList reads content patterns from a TOML file of the form
//
//	[allowlist]
//	regexes = ['''555-0100''', '''noreply@clinic\.example''']
//
// An empty path returns no patterns. A missing file is an error.
func LoadAllowList(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("allowlist %s: %w", path, err)
	}

	var file struct {
		Allowlist struct {
			Description string
			Regexes     []string
		}
	}
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTOML, path, err)
	}

	for _, pattern := range file.Allowlist.Regexes {
		if _, err := regexp.Compile(pattern); err != nil {
			return nil, fmt.Errorf("%w: %q in %s: %v", ErrInvalidRegex, pattern, path, err)
		}
	}
	return file.Allowlist.Regexes, nil
}
