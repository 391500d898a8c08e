package vtm

import "fmt"

// Category distinguishes the two error taxonomies spec'd for this engine: the VTM core
// (segment/transaction/heap failures) and the trie layer built on top of it. Trie codes are
// the VTM codes scaled by the category so registries stay disjoint without needing two maps.
type Category int

const (
	VTMCategory  Category = 1
	TrieCategory Category = 2
)

// Kind enumerates the error taxonomy from spec.md §6/§7.
type Kind int

const (
	KindUnknown Kind = iota
	KindNoMemory
	KindInvalidBlock
	KindTransactionNotStarted
	KindTransactionConcurrentLock
	KindTransactionGhostState
	KindROTransactionStarted
	KindCannotStartROTransaction
	KindFileOpen
	KindFileAlreadyExists
	KindInvalidSignature
	KindWriteFile
	KindReadFile
	KindMemoryMapping
	// KindOutOfRange covers requests the string manager (C7) must reject outright rather than
	// chunk: a single buffer at or beyond a segment's capacity (spec.md §4.5, Scenario D). The
	// distilled taxonomy in spec.md §6 omits it; it is added here under TrieCategory since the
	// string manager sits above the VTM core the same way the trie does.
	KindOutOfRange
)

// ErrorCode is Category*100+Kind, matching the teacher's integer error-code convention
// (error.go/sop_error.go) while keeping the two taxonomies from colliding.
type ErrorCode int

func codeOf(cat Category, k Kind) ErrorCode {
	return ErrorCode(int(cat)*100 + int(k))
}

// Error is the engine's error type: a code, the wrapped cause, and optional caller-supplied
// detail. Grounded on the teacher's Error{Code,Err,UserData} shape (error.go).
type Error struct {
	Code     ErrorCode
	Kind     Kind
	Category Category
	Err      error
	UserData any
}

func (e Error) Error() string {
	desc := DefaultRegistry.Describe(e.Code)
	if e.Err == nil {
		return fmt.Sprintf("%s (code %d)", desc, e.Code)
	}
	return fmt.Errorf("%s (code %d): %w", desc, e.Code, e.Err).Error()
}

func (e Error) Unwrap() error { return e.Err }

// NewError builds a vtm.Error for the given category/kind, wrapping cause and appending detail.
func NewError(cat Category, k Kind, cause error, detail ...string) Error {
	var ud any
	if len(detail) > 0 {
		ud = detail
	}
	return Error{Code: codeOf(cat, k), Kind: k, Category: cat, Err: cause, UserData: ud}
}

// Convenience constructors for the VTM category, named after the spec's kind identifiers.
func ErrNoMemory(cause error) Error            { return NewError(VTMCategory, KindNoMemory, cause) }
func ErrInvalidBlock(cause error) Error        { return NewError(VTMCategory, KindInvalidBlock, cause) }
func ErrTransactionNotStarted() Error {
	return NewError(VTMCategory, KindTransactionNotStarted, nil)
}
func ErrTransactionConcurrentLock(cause error) Error {
	return NewError(VTMCategory, KindTransactionConcurrentLock, cause)
}
func ErrTransactionGhostState() Error {
	return NewError(VTMCategory, KindTransactionGhostState, nil)
}
func ErrROTransactionStarted() Error {
	return NewError(VTMCategory, KindROTransactionStarted, nil)
}
func ErrCannotStartROTransaction() Error {
	return NewError(VTMCategory, KindCannotStartROTransaction, nil)
}
func ErrFileOpen(cause error) Error            { return NewError(VTMCategory, KindFileOpen, cause) }
func ErrFileAlreadyExists(cause error) Error   { return NewError(VTMCategory, KindFileAlreadyExists, cause) }
func ErrInvalidSignature(cause error) Error    { return NewError(VTMCategory, KindInvalidSignature, cause) }
func ErrWriteFile(cause error) Error           { return NewError(VTMCategory, KindWriteFile, cause) }
func ErrReadFile(cause error) Error            { return NewError(VTMCategory, KindReadFile, cause) }
func ErrMemoryMapping(cause error) Error       { return NewError(VTMCategory, KindMemoryMapping, cause) }

// ErrOutOfRange reports that a string-manager insert was rejected for exceeding a segment's
// capacity outright, under the trie/layered-subsystem category (spec.md §4.5).
func ErrOutOfRange(cause error) Error { return NewError(TrieCategory, KindOutOfRange, cause) }

// IsKind reports whether err is a vtm.Error of the given kind.
func IsKind(err error, k Kind) bool {
	var e Error
	if as, ok := err.(Error); ok {
		e = as
	} else {
		return false
	}
	return e.Kind == k
}

// Registry maps error codes to human-readable descriptions, with optional caller-appended
// detail strings. Design Notes §9 calls for a per-process object initialized once at startup
// rather than hidden globals; DefaultRegistry is that instance, and tests may construct their
// own via NewRegistry to inject alternate descriptions without touching global state.
type Registry struct {
	descriptions map[ErrorCode]string
}

// NewRegistry builds a Registry pre-populated with the default descriptions for both categories.
func NewRegistry() *Registry {
	r := &Registry{descriptions: make(map[ErrorCode]string, 32)}
	for _, cat := range []Category{VTMCategory, TrieCategory} {
		r.descriptions[codeOf(cat, KindUnknown)] = "unknown error"
		r.descriptions[codeOf(cat, KindNoMemory)] = "no memory: no segment has a free span large enough and growth is disallowed"
		r.descriptions[codeOf(cat, KindInvalidBlock)] = "invalid block: heap metadata does not describe a coherent span"
		r.descriptions[codeOf(cat, KindTransactionNotStarted)] = "write API called outside any active transaction"
		r.descriptions[codeOf(cat, KindTransactionConcurrentLock)] = "lock contention: an incompatible lock is already held"
		r.descriptions[codeOf(cat, KindTransactionGhostState)] = "operation on a rolled-back transaction still referenced by the caller"
		r.descriptions[codeOf(cat, KindROTransactionStarted)] = "a read-only transaction is active on an overlapping range"
		r.descriptions[codeOf(cat, KindCannotStartROTransaction)] = "cannot start read-only transaction: a writer holds the range"
		r.descriptions[codeOf(cat, KindFileOpen)] = "failed to open backing file"
		r.descriptions[codeOf(cat, KindFileAlreadyExists)] = "backing file already exists"
		r.descriptions[codeOf(cat, KindInvalidSignature)] = "segment header signature does not match the expected magic"
		r.descriptions[codeOf(cat, KindWriteFile)] = "failed to write backing file"
		r.descriptions[codeOf(cat, KindReadFile)] = "failed to read backing file"
		r.descriptions[codeOf(cat, KindMemoryMapping)] = "failed to map segment into memory"
		r.descriptions[codeOf(cat, KindOutOfRange)] = "buffer size meets or exceeds segment capacity"
	}
	return r
}

// Describe returns the human-readable description for code, or "unknown error" if unregistered.
func (r *Registry) Describe(code ErrorCode) string {
	if d, ok := r.descriptions[code]; ok {
		return d
	}
	return "unknown error"
}

// Register overrides or adds a description for code. Intended for callers embedding this engine
// that want domain-specific wording without forking the package.
func (r *Registry) Register(code ErrorCode, description string) {
	r.descriptions[code] = description
}

// DefaultRegistry is the process-wide registry used by Error.Error() when formatting messages.
var DefaultRegistry = NewRegistry()
