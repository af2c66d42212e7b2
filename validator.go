package httpofo

import "errors"

// Validator accumulates zero or more validation errors so a frame's fields
// can be checked exhaustively before deciding whether to drop it. Grounded
// on the teacher's multi-error Validator used across its Frame types.
type Validator struct {
	accum []error
}

// ResetErr clears accumulated errors for reuse across frames.
func (v *Validator) ResetErr() { v.accum = v.accum[:0] }

// GotErr records a validation failure.
func (v *Validator) GotErr(err error) { v.accum = append(v.accum, err) }

// Err returns nil if no errors were recorded, the single error if exactly
// one was recorded, or a joined error otherwise.
func (v *Validator) Err() error {
	switch len(v.accum) {
	case 0:
		return nil
	case 1:
		return v.accum[0]
	default:
		return errors.Join(v.accum...)
	}
}
