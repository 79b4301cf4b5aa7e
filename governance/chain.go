/*
chain.go - Approval chain resolution over the reporting hierarchy

PURPOSE:
  Walks an employee's manager chain upward until it reaches the theater's
  designated final approver, producing the ordered approver list a
  submission turns into ApprovalStep rows.

  The warehouse could express this as a recursive query, but the walk is
  done hop-by-hop here so the termination and cycle bounds stay visible
  and testable instead of buried in SQL.

GUARANTEES:
  - The walk takes at most maxChainDepth hops (cycle guard).
  - A non-empty result always ends with the final approver, IsFinal=true:
    when the hierarchy does not converge on them within the bound, they
    are appended explicitly.
  - Empty result when the theater has no final approver configured or the
    employee has no active directory record.

SEE ALSO:
  - service.go: Submit/Create turn a chain into ApprovalStep rows
*/
package governance

import (
	"context"

	"github.com/rs/zerolog"
)

// maxChainDepth bounds the manager walk. Matches the warehouse view's
// recursion limit so both paths agree on what "does not converge" means.
const maxChainDepth = 10

// Directory is the slice of the warehouse the resolver needs: active
// employee lookup and the per-theater final approver table.
type Directory interface {
	// Employee returns the active directory record, or nil if the employee
	// is absent or inactive.
	Employee(ctx context.Context, employeeID int64) (*Employee, error)

	// FinalApproverFor returns the theater's designated final approver,
	// or nil if the theater has none configured.
	FinalApproverFor(ctx context.Context, theater string) (*FinalApprover, error)
}

// ChainResolver resolves approval chains against a Directory.
type ChainResolver struct {
	dir Directory
	log zerolog.Logger
}

// NewChainResolver creates a resolver.
func NewChainResolver(dir Directory, log zerolog.Logger) *ChainResolver {
	return &ChainResolver{dir: dir, log: log.With().Str("component", "chain").Logger()}
}

// Resolve walks employeeID's manager chain upward and returns the ordered
// approver list for the theater. The employee itself is level 1 and not
// part of the chain; the first approver is level 2.
func (cr *ChainResolver) Resolve(ctx context.Context, employeeID int64, theater string) ([]ChainLink, error) {
	fa, err := cr.dir.FinalApproverFor(ctx, theater)
	if err != nil {
		return nil, err
	}
	if fa == nil {
		cr.log.Debug().Str("theater", theater).Msg("no final approver configured")
		return nil, nil
	}

	emp, err := cr.dir.Employee(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	if emp == nil {
		cr.log.Debug().Int64("employee_id", employeeID).Msg("no active hierarchy record")
		return nil, nil
	}

	var chain []ChainLink
	cur := emp
	for level := 2; level <= maxChainDepth; level++ {
		if cur.ManagerID == nil {
			break
		}
		mgr, err := cr.dir.Employee(ctx, *cur.ManagerID)
		if err != nil {
			return nil, err
		}
		if mgr == nil {
			break
		}

		link := ChainLink{
			EmployeeID: mgr.EmployeeID,
			Name:       mgr.Name,
			Title:      mgr.Title,
			Level:      level,
			IsFinal:    mgr.EmployeeID == fa.EmployeeID,
		}
		chain = append(chain, link)
		if link.IsFinal {
			return chain, nil
		}
		cur = mgr
	}

	// The walk exhausted its bound (or hit a gap) without reaching the
	// final approver; append them explicitly so the chain still terminates.
	level := 2
	if n := len(chain); n > 0 {
		level = chain[n-1].Level + 1
	}
	faEmp, err := cr.dir.Employee(ctx, fa.EmployeeID)
	if err != nil {
		return nil, err
	}
	name, title := fa.Name, fa.Title
	if faEmp != nil {
		name, title = faEmp.Name, faEmp.Title
	}
	chain = append(chain, ChainLink{
		EmployeeID: fa.EmployeeID,
		Name:       name,
		Title:      title,
		Level:      level,
		IsFinal:    true,
	})
	return chain, nil
}
