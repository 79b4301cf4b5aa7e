package governance

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDirectory serves a static reporting hierarchy for resolver tests.
type fakeDirectory struct {
	employees map[int64]*Employee
	finals    map[string]*FinalApprover
	err       error
}

func (f *fakeDirectory) Employee(_ context.Context, id int64) (*Employee, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.employees[id], nil
}

func (f *fakeDirectory) FinalApproverFor(_ context.Context, theater string) (*FinalApprover, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.finals[theater], nil
}

func ptrInt64(v int64) *int64 { return &v }

func testHierarchy() *fakeDirectory {
	// 100 (rep) -> 200 (manager) -> 300 (director) -> 400 (group VP, final)
	return &fakeDirectory{
		employees: map[int64]*Employee{
			100: {EmployeeID: 100, Name: "Riley Chen", Title: "Account Executive", ManagerID: ptrInt64(200)},
			200: {EmployeeID: 200, Name: "Morgan Diaz", Title: "District Manager", ManagerID: ptrInt64(300), IsManager: true},
			300: {EmployeeID: 300, Name: "Sam Okafor", Title: "Regional Director", ManagerID: ptrInt64(400), IsManager: true},
			400: {EmployeeID: 400, Name: "Alex Petrov", Title: "Group VP", IsManager: true},
		},
		finals: map[string]*FinalApprover{
			"AMER": {Theater: "AMER", EmployeeID: 400, Name: "Alex Petrov", Title: "Group VP"},
		},
	}
}

func TestResolveWalksToTheFinalApprover(t *testing.T) {
	// GIVEN a three-hop hierarchy converging on the theater final approver
	cr := NewChainResolver(testHierarchy(), zerolog.Nop())

	// WHEN resolving for the rep
	chain, err := cr.Resolve(context.Background(), 100, "AMER")
	require.NoError(t, err)

	// THEN the chain lists the managers in order, levels from 2,
	// terminated by the final approver
	require.Len(t, chain, 3)
	assert.Equal(t, int64(200), chain[0].EmployeeID)
	assert.Equal(t, 2, chain[0].Level)
	assert.False(t, chain[0].IsFinal)
	assert.Equal(t, int64(300), chain[1].EmployeeID)
	assert.Equal(t, 3, chain[1].Level)
	assert.Equal(t, int64(400), chain[2].EmployeeID)
	assert.Equal(t, 4, chain[2].Level)
	assert.True(t, chain[2].IsFinal)
}

func TestResolveStopsAtFinalApproverMidChain(t *testing.T) {
	// GIVEN the final approver sits directly above the employee
	dir := testHierarchy()
	cr := NewChainResolver(dir, zerolog.Nop())

	// WHEN resolving for the director (manager is the final approver)
	chain, err := cr.Resolve(context.Background(), 300, "AMER")
	require.NoError(t, err)

	// THEN the chain is a single final link
	require.Len(t, chain, 1)
	assert.Equal(t, int64(400), chain[0].EmployeeID)
	assert.Equal(t, 2, chain[0].Level)
	assert.True(t, chain[0].IsFinal)
}

func TestResolveAppendsFinalApproverWhenWalkDoesNotConverge(t *testing.T) {
	// GIVEN a hierarchy whose top never reaches the final approver
	dir := testHierarchy()
	dir.employees[300].ManagerID = nil // director has no manager on record

	cr := NewChainResolver(dir, zerolog.Nop())

	// WHEN resolving for the rep
	chain, err := cr.Resolve(context.Background(), 100, "AMER")
	require.NoError(t, err)

	// THEN the final approver is appended explicitly after the walk ends
	require.Len(t, chain, 3)
	assert.Equal(t, int64(300), chain[1].EmployeeID)
	assert.Equal(t, int64(400), chain[2].EmployeeID)
	assert.Equal(t, 4, chain[2].Level)
	assert.True(t, chain[2].IsFinal)
}

func TestResolveBoundsCyclicHierarchies(t *testing.T) {
	// GIVEN two managers reporting to each other
	dir := &fakeDirectory{
		employees: map[int64]*Employee{
			1: {EmployeeID: 1, Name: "A", ManagerID: ptrInt64(2)},
			2: {EmployeeID: 2, Name: "B", ManagerID: ptrInt64(1)},
			9: {EmployeeID: 9, Name: "F", Title: "Group VP"},
		},
		finals: map[string]*FinalApprover{
			"EMEA": {Theater: "EMEA", EmployeeID: 9, Name: "F", Title: "Group VP"},
		},
	}
	cr := NewChainResolver(dir, zerolog.Nop())

	// WHEN resolving inside the cycle
	chain, err := cr.Resolve(context.Background(), 1, "EMEA")
	require.NoError(t, err)

	// THEN the walk stops at the depth bound and still ends on the final approver
	require.NotEmpty(t, chain)
	last := chain[len(chain)-1]
	assert.Equal(t, int64(9), last.EmployeeID)
	assert.True(t, last.IsFinal)
	assert.LessOrEqual(t, len(chain), maxChainDepth)
}

func TestResolveEmptyWithoutFinalApprover(t *testing.T) {
	dir := testHierarchy()
	cr := NewChainResolver(dir, zerolog.Nop())

	chain, err := cr.Resolve(context.Background(), 100, "APJ")
	require.NoError(t, err)
	assert.Empty(t, chain)
}

func TestResolveEmptyForUnknownEmployee(t *testing.T) {
	cr := NewChainResolver(testHierarchy(), zerolog.Nop())

	chain, err := cr.Resolve(context.Background(), 999, "AMER")
	require.NoError(t, err)
	assert.Empty(t, chain)
}

func TestResolvePropagatesDirectoryErrors(t *testing.T) {
	dir := testHierarchy()
	dir.err = errors.New("warehouse offline")
	cr := NewChainResolver(dir, zerolog.Nop())

	_, err := cr.Resolve(context.Background(), 100, "AMER")
	assert.Error(t, err)
}
