// Package language defines the closed set of language codes the kiosk
// supports and validates codes at the submission boundary.
package language

import "fmt"

// Code is an ISO 639-1 style language code from the supported set.
type Code string

const (
	Hindi   Code = "hi"
	English Code = "en"
	Tamil   Code = "ta"
	Telugu  Code = "te"
	Urdu    Code = "ur"
	Marathi Code = "mr"
	Bengali Code = "bn"
)

// names maps each supported code to its native display name.
var names = map[Code]string{
	Hindi:   "हिन्दी",
	English: "English",
	Tamil:   "தமிழ்",
	Telugu:  "తెలుగు",
	Urdu:    "اردو",
	Marathi: "मराठी",
	Bengali: "বাংলা",
}

// Supported reports whether c is one of the supported language codes.
func Supported(c Code) bool {
	_, ok := names[c]
	return ok
}

// Validate rejects empty or unrecognized codes. Unknown codes are rejected
// here, at the boundary, never inside the pipeline.
func Validate(c Code) error {
	if c == "" {
		return fmt.Errorf("language code is required")
	}
	if !Supported(c) {
		return fmt.Errorf("unsupported language code %q", c)
	}
	return nil
}

// Name returns the native display name for a supported code, or the code
// itself when unknown.
func Name(c Code) string {
	if n, ok := names[c]; ok {
		return n
	}
	return string(c)
}

// All returns the supported codes in a stable order.
func All() []Code {
	return []Code{Hindi, English, Tamil, Telugu, Urdu, Marathi, Bengali}
}
