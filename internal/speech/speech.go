// Package speech synthesizes the short spoken progress announcements that
// prefix the first chunk of a file.
package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/maauso/autocut/internal/audio"
)

// Static errors for speech synthesis.
var (
	// ErrEmptyText is returned when there is nothing to synthesize.
	ErrEmptyText = errors.New("speech: text is required")
	// ErrURLRequired is returned when the HTTP engine URL is not provided.
	ErrURLRequired = errors.New("speech: engine URL is required")
	// ErrSynthesisFailed is returned when the engine reports a failure.
	ErrSynthesisFailed = errors.New("speech: synthesis failed")
	// ErrServerError is returned when the engine returns a 5xx status code.
	ErrServerError = errors.New("speech: server error")
	// ErrRateLimited is returned when the engine returns a 429 status code.
	ErrRateLimited = errors.New("speech: rate limited")
	// ErrRequestFailed is returned when the request fails with a non-2xx status code.
	ErrRequestFailed = errors.New("speech: request failed")
)

// Synthesizer turns text into a short waveform.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, locale string) (*audio.Waveform, error)
}

// AnnouncementText returns the spoken progress phrase for percent in locale.
// Unknown locales fall back to English.
func AnnouncementText(percent int, locale string) string {
	switch baseLanguage(locale) {
	case "ru":
		return fmt.Sprintf("Прослушано %d %s", percent, russianPercent(percent))
	default:
		return fmt.Sprintf("%d percent complete", percent)
	}
}

func baseLanguage(locale string) string {
	locale = strings.ToLower(strings.TrimSpace(locale))
	if i := strings.IndexAny(locale, "-_"); i >= 0 {
		locale = locale[:i]
	}
	return locale
}

// russianPercent picks the noun form agreeing with n.
func russianPercent(n int) string {
	if n < 0 {
		n = -n
	}
	if n%100 >= 11 && n%100 <= 14 {
		return "процентов"
	}
	switch n % 10 {
	case 1:
		return "процент"
	case 2, 3, 4:
		return "процента"
	default:
		return "процентов"
	}
}
