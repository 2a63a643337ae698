// Package sanitizer normalizes participant input before validation and storage.
//
// All functions are idempotent and never return errors: input that cannot be
// normalized comes back empty so the validator rejects it.
//
//   - Phone numbers: E.164 (+[country][number]), parsed against the supported regions
//   - Names: collapse internal whitespace, trim the ends
//   - Emails: trim and lowercase
package sanitizer
