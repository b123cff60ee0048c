package tasks

import (
	"crypto/md5"
	"encoding/hex"
	"sort"
	"strings"
)

// Fingerprint captures the content hash of one task. Fields and Body are
// hashed separately so the engine can tell a metadata-only change (status,
// priority, owner, dependencies, test strategy) from a body change (title,
// description, details, rendered subtasks) and plan the cheaper update.
//
// MD5 is used as a change detector only; nothing security-relevant hangs
// off these digests.
type Fingerprint struct {
	Full   string
	Fields string
	Body   string
}

// ComputeFingerprint hashes the sync-relevant content of t.
// renderedSubtasks is the subtask section as it will appear on the board
// (it differs between nested and separate display modes, and the marker
// lines are part of the hash on purpose: changing modes must re-sync).
func ComputeFingerprint(t *Task, renderedSubtasks string) Fingerprint {
	deps := append([]string(nil), t.Dependencies...)
	sort.Strings(deps)

	fields := canonJoin(
		t.Status,
		t.Priority,
		t.Assignee,
		strings.Join(deps, ","),
		t.TestStrategy,
	)
	body := canonJoin(
		t.Title,
		t.Description,
		t.Details,
		renderedSubtasks,
	)

	return Fingerprint{
		Full:   hexMD5(fields + "|" + body),
		Fields: hexMD5(fields),
		Body:   hexMD5(body),
	}
}

// canonJoin collapses runs of whitespace in each part and joins with a
// separator that cannot occur in collapsed text, so permuting JSON keys or
// reflowing whitespace in the source file never changes the digest.
func canonJoin(parts ...string) string {
	collapsed := make([]string, len(parts))
	for i, p := range parts {
		collapsed[i] = strings.Join(strings.Fields(p), " ")
	}
	return strings.Join(collapsed, "|")
}

func hexMD5(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
