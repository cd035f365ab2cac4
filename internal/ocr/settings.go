package ocr

import (
	"fmt"
	"strconv"
	"strings"
)

// Settings are the Tesseract options applied to every page.
type Settings struct {
	OEM       int
	PSM       int
	Languages []string
}

// DefaultSettings returns LSTM-or-legacy engine mode, a single uniform block
// of text, and Hindi plus Sanskrit models.
func DefaultSettings() Settings {
	return Settings{OEM: 3, PSM: 6, Languages: []string{"hin", "san"}}
}

// LanguageSpec joins the languages the way tesseract's -l flag expects.
func (s Settings) LanguageSpec() string {
	return strings.Join(s.Languages, "+")
}

// Args renders the settings as tesseract command line flags.
func (s Settings) Args() []string {
	args := []string{"--oem", strconv.Itoa(s.OEM), "--psm", strconv.Itoa(s.PSM)}
	if len(s.Languages) > 0 {
		args = append(args, "-l", s.LanguageSpec())
	}
	return args
}

func (s Settings) String() string {
	return strings.Join(s.Args(), " ")
}

// ParseSettings reads a config string such as "--oem 3 --psm 6 -l hin+san".
// Flags that are not present keep their default values.
func ParseSettings(raw string) (Settings, error) {
	s := DefaultSettings()
	fields := strings.Fields(raw)

	for i := 0; i < len(fields); i++ {
		flag := fields[i]
		if i+1 >= len(fields) {
			return s, fmt.Errorf("ocr settings: flag %s has no value", flag)
		}
		value := fields[i+1]
		i++

		switch flag {
		case "--oem":
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 || n > 3 {
				return s, fmt.Errorf("ocr settings: invalid --oem %q", value)
			}
			s.OEM = n
		case "--psm":
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 || n > 13 {
				return s, fmt.Errorf("ocr settings: invalid --psm %q", value)
			}
			s.PSM = n
		case "-l", "--lang":
			langs := strings.FieldsFunc(value, func(r rune) bool { return r == '+' })
			if len(langs) == 0 {
				return s, fmt.Errorf("ocr settings: empty language list")
			}
			s.Languages = langs
		default:
			return s, fmt.Errorf("ocr settings: unsupported flag %s", flag)
		}
	}

	return s, nil
}
