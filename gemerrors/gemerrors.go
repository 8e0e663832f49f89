// Package gemerrors names the error taxonomy from spec.md §7 as
// kinds over github.com/grailbio/base/errors, the same error package
// the teacher repo uses throughout (e.g. markduplicates/metrics.go,
// encoding/pam/fieldio/reader.go).
package gemerrors

import "github.com/grailbio/base/errors"

const (
	// Configuration names a ConfigurationError: contradictory or
	// out-of-range options. Always produced at startup, never on the
	// read path.
	Configuration = errors.Invalid
	// Index names an IndexError: version mismatch, truncation, or
	// inconsistency across index files. Always produced at startup.
	Index = errors.Precondition
	// Pattern names a PatternError: empty key, all-wildcard key, or a
	// key beyond implementation limits. Recoverable: the read is
	// reported unmapped, it is not fatal.
	Pattern = errors.Invalid
	// Capacity names a CapacityError: the per-read arena was
	// exhausted. Recoverable: the driver resets the arena and reports
	// the read unmapped with a diagnostic annotation.
	Capacity = errors.ResourcesExhausted
)

// IsRecoverable reports whether err represents a per-read error that
// should be reported as "unmapped" rather than aborting the process,
// per spec.md §7's propagation policy.
func IsRecoverable(err error) bool {
	e, ok := err.(*errors.Error)
	if !ok {
		return false
	}
	return e.Kind == Pattern || e.Kind == Capacity
}
