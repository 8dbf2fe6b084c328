package audit

import "errors"

// ErrRecordingFailed marks a terminal failure to persist an audit event after
// retry. Integrators must treat this as fail-closed for new PHI disclosure:
// when the ledger cannot be written, the underlying access must be denied.
var ErrRecordingFailed = errors.New("audit recording failed")
