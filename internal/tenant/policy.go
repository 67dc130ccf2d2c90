package tenant

import "fmt"

// Policy modes accepted in configuration.
const (
	ModeOpen   = "open"
	ModeStrict = "strict"
)

// Policy decides whether a caller may access a record, given the tenant
// id stored on the record and the tenant id supplied by the caller.
// Empty string means unscoped on either side.
//
// Implementations must be pure and safe for concurrent use.
type Policy interface {
	// Allow reports whether access is granted.
	Allow(recordTenant, callerTenant string) bool

	// Mode returns the policy name for logging and configuration echo.
	Mode() string
}

// OpenPolicy is the permissive default.
//
// Unscoped records are accessible to every caller, and an unscoped
// caller may access every record (single-tenant and administrative use).
// Two non-empty scopes must still match exactly.
type OpenPolicy struct{}

// NewOpenPolicy creates the permissive policy.
func NewOpenPolicy() *OpenPolicy {
	return &OpenPolicy{}
}

// Allow grants access unless two different non-empty scopes meet.
func (p *OpenPolicy) Allow(recordTenant, callerTenant string) bool {
	if recordTenant == "" || callerTenant == "" {
		return true
	}
	return recordTenant == callerTenant
}

// Mode returns "open".
func (p *OpenPolicy) Mode() string {
	return ModeOpen
}

// StrictPolicy requires exact scope equality.
//
// An unscoped caller sees only unscoped records, and a scoped caller
// never sees unscoped records. Use this when unscoped records must not
// act as a shared pool.
type StrictPolicy struct{}

// NewStrictPolicy creates the strict policy.
func NewStrictPolicy() *StrictPolicy {
	return &StrictPolicy{}
}

// Allow grants access only when both scopes are equal, empty included.
func (p *StrictPolicy) Allow(recordTenant, callerTenant string) bool {
	return recordTenant == callerTenant
}

// Mode returns "strict".
func (p *StrictPolicy) Mode() string {
	return ModeStrict
}

// Ensure implementations satisfy the Policy interface.
var (
	_ Policy = (*OpenPolicy)(nil)
	_ Policy = (*StrictPolicy)(nil)
)

// PolicyFromString creates a Policy from a configuration mode name.
func PolicyFromString(mode string) (Policy, error) {
	switch mode {
	case ModeOpen, "":
		return NewOpenPolicy(), nil
	case ModeStrict:
		return NewStrictPolicy(), nil
	default:
		return nil, fmt.Errorf("unknown tenancy mode: %s", mode)
	}
}
