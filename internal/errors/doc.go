// Package errors provides structured, actionable error messages for the
// switchmap command and its configuration.
//
// Each error has a unique code (e.g., "S002") that maps to a registered
// template with a category, a short message, and a longer explanation.
//
// # Usage
//
//	err := errors.New("S002").
//	    WithDetail(`shape must be "strict" or "lenient", got "loose"`).
//	    WithSuggestion(`Set "shape": "strict" in switchmap.json`)
//
//	fmt.Fprint(os.Stderr, err.Format())
//	// ERROR S002: Invalid shape policy
//	//
//	//   shape must be "strict" or "lenient", got "loose"
//	//
//	//   Hint: Set "shape": "strict" in switchmap.json
package errors
