// Package preflight runs the Engine Runtime's sequential named startup
// checks — config load, single-instance acquisition, audit-log open —
// before a single hook is installed, so a
// misconfigured machine fails fast with a named reason instead of midway
// through wiring.
package preflight

import "fmt"

// Result is the outcome of running every registered Check.
type Result struct {
	Passed    bool
	Reason    string   // set only when Passed is false
	FailedAt  string   // name of the check that failed
	ChecksRun []string
}

// Check is one named startup check. It returns a non-nil error to fail
// preflight; Reason is then the check's name followed by that error's
// message.
type Check struct {
	Name string
	Run  func() error
}

// Checker runs a fixed ordered sequence of Checks, stopping at the first
// failure.
type Checker struct {
	checks []Check
}

// NewChecker returns an empty Checker; use Add to register checks in the
// order they should run.
func NewChecker() *Checker {
	return &Checker{}
}

// Add appends a named check to the sequence.
func (c *Checker) Add(name string, run func() error) *Checker {
	c.checks = append(c.checks, Check{Name: name, Run: run})
	return c
}

// Run executes every registered check in order, stopping at the first
// failure.
func (c *Checker) Run() Result {
	result := Result{Passed: true, ChecksRun: make([]string, 0, len(c.checks))}
	for _, chk := range c.checks {
		result.ChecksRun = append(result.ChecksRun, chk.Name)
		if err := chk.Run(); err != nil {
			return Result{
				Passed:    false,
				Reason:    fmt.Sprintf("%s: %v", chk.Name, err),
				FailedAt:  chk.Name,
				ChecksRun: result.ChecksRun,
			}
		}
	}
	return result
}
