// Package practice holds the learner-facing helpers of the terminal client:
// native-language detection and write-mode corrections.
package practice

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/abadojack/whatlanggo"
)

// Corrector returns a grammar-corrected version of a learner's text.
type Corrector interface {
	Correct(ctx context.Context, text string, language string) (string, error)
}

// Detector returns the ISO 639-1 tag of the language text is written in, or
// an empty string when it cannot tell.
type Detector func(text string) string

// DetectLanguage is the default Detector.
func DetectLanguage(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	info := whatlanggo.Detect(text)
	return info.Lang.Iso6391()
}

// Guard catches turns written in the learner's native language.
type Guard struct {
	Native string
	Target string
	Detect Detector
}

func NewGuard(native, target string) (Guard, error) {
	native = strings.ToLower(strings.TrimSpace(native))
	target = strings.ToLower(strings.TrimSpace(target))
	if target == "" {
		return Guard{}, errors.New("a target language is required")
	}
	if native != "" && native == target {
		return Guard{}, errors.New("target language cannot be the same as your native language")
	}
	return Guard{Native: native, Target: target, Detect: DetectLanguage}, nil
}

// Tip returns a hint when text looks like it was written in the native
// language. No native language means every turn passes.
func (g Guard) Tip(text string) (string, bool) {
	if g.Native == "" || g.Detect == nil {
		return "", false
	}
	if g.Detect(text) != g.Native {
		return "", false
	}
	return fmt.Sprintf("Tip: It looks like you wrote in %s. Try writing in %s.",
		strings.ToUpper(g.Native), strings.ToUpper(g.Target)), true
}
