package call

// ErrorKind classifies why a call ended in error or cancelled.
type ErrorKind string

// ErrorKind values covering the full failure taxonomy.
const (
	// KindNone marks a successful response.
	KindNone ErrorKind = ""

	// KindValidation marks a malformed or disallowed request that never
	// reached policy evaluation.
	KindValidation ErrorKind = "validation"

	// KindPolicyDenied marks a call blocked by a static rule or checker.
	KindPolicyDenied ErrorKind = "policy_denied"

	// KindCheckerFailed marks a call denied because a checker itself
	// faulted (fail-closed).
	KindCheckerFailed ErrorKind = "checker_failed"

	// KindExecution marks a tool function that returned an error or panicked.
	KindExecution ErrorKind = "execution"

	// KindCancelled marks a call cancelled before or during execution.
	KindCancelled ErrorKind = "cancelled"
)

// Response is the terminal payload of a call: either a success payload,
// an error with a typed kind, or a cancellation marker.
type Response struct {
	// Content is the tool output on success, or a human-readable reason
	// on error and cancellation.
	Content string `json:"content"`

	// Kind is KindNone for success; otherwise it classifies the failure.
	Kind ErrorKind `json:"kind,omitempty"`
}

// OK reports whether the response carries a success payload.
func (r Response) OK() bool { return r.Kind == KindNone }

// Cancelled reports whether the response is a cancellation marker.
func (r Response) Cancelled() bool { return r.Kind == KindCancelled }

// Success builds a success response with the given tool output.
func Success(content string) Response {
	return Response{Content: content}
}

// Failure builds an error response with the given kind and reason.
func Failure(kind ErrorKind, reason string) Response {
	return Response{Content: reason, Kind: kind}
}

// CancelledResponse builds a cancellation response.
func CancelledResponse(reason string) Response {
	return Response{Content: reason, Kind: KindCancelled}
}
