package pii

import "fmt"

// Error is returned by the storage guardrail when a write is refused because
// the payload still carries a live PII value. Key and Path name the first
// offending field for operator triage; the value itself is never included.
type Error struct {
	Key  string
	Path string
}

func (e *Error) Error() string {
	return fmt.Sprintf("pii key detected: %s (path %s); write refused", e.Key, e.Path)
}

// Inspect is the storage guardrail check. It returns a *Error naming the
// first unredacted PII occurrence, or nil when the document is safe to
// persist. Every store that writes raw payloads calls this immediately
// before the write, so the guarantee holds for any caller, including paths
// that bypass the admission pipeline.
func Inspect(doc any) error {
	if m, found := FirstUnredacted(doc); found {
		return &Error{Key: m.Key, Path: m.Path}
	}
	return nil
}
