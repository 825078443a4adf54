package query

import (
	"testing"

	"github.com/moolen/insight/internal/models"
)

func TestApplyPreservesFullSessionContext(t *testing.T) {
	session := makeSession("base-1", "api", testStart,
		makeTest("tests/test_api.py::test_login", models.OutcomeFailed, 2.0),
		makeTest("tests/test_api.py::test_logout", models.OutcomePassed, 1.0),
		makeTest("tests/test_db.py::test_connect", models.OutcomePassed, 0.5))
	pool := []*models.TestSession{session}

	result, err := NewQuery().FilterByTest().
		WithOutcome(models.OutcomeFailed).
		Apply(pool)
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	if result.Count() != 1 {
		t.Fatalf("expected 1 session, got %d", result.Count())
	}
	kept := result.Sessions[0]
	if len(kept.TestResults) != 3 {
		t.Fatalf("session must keep its full original test list, got %d results", len(kept.TestResults))
	}
	// Same order as the original too.
	wantOrder := []string{
		"tests/test_api.py::test_login",
		"tests/test_api.py::test_logout",
		"tests/test_db.py::test_connect",
	}
	for i, nodeid := range wantOrder {
		if kept.TestResults[i].NodeID != nodeid {
			t.Errorf("test order changed at %d: got %s", i, kept.TestResults[i].NodeID)
		}
	}
}

func TestApplyANDAcrossPredicatesORAcrossTests(t *testing.T) {
	// Session 1: one test satisfies both predicates.
	s1 := makeSession("s1", "api", testStart,
		makeTest("slow_failure", models.OutcomeFailed, 5.0),
		makeTest("fast_pass", models.OutcomePassed, 0.1))
	// Session 2: predicates are satisfied only across different tests.
	s2 := makeSession("s2", "api", testStart,
		makeTest("fast_failure", models.OutcomeFailed, 0.1),
		makeTest("slow_pass", models.OutcomePassed, 5.0))
	pool := []*models.TestSession{s1, s2}

	result, err := NewQuery().FilterByTest().
		WithOutcome(models.OutcomeFailed).
		WithDuration(1.0, 10.0).
		Apply(pool)
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	if result.Count() != 1 || result.Sessions[0].SessionID != "s1" {
		t.Errorf("predicates must AND on a single test, got %v", result.SessionIDs())
	}
}

func TestApplyWithoutPredicatesKeepsSessionsWithTests(t *testing.T) {
	withTests := makeSession("s1", "api", testStart, makeTest("a", models.OutcomePassed, 1.0))
	empty := makeSession("s2", "api", testStart)
	pool := []*models.TestSession{withTests, empty}

	result, err := NewQuery().FilterByTest().Apply(pool)
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if result.Count() != 1 || result.Sessions[0].SessionID != "s1" {
		t.Errorf("empty predicate chain keeps sessions with at least one test, got %v", result.SessionIDs())
	}
}

func TestWithDurationBoundsAreInclusive(t *testing.T) {
	pool := []*models.TestSession{
		makeSession("s1", "api", testStart, makeTest("exact_min", models.OutcomePassed, 1.0)),
		makeSession("s2", "api", testStart, makeTest("exact_max", models.OutcomePassed, 2.0)),
		makeSession("s3", "api", testStart, makeTest("below", models.OutcomePassed, 0.999)),
		makeSession("s4", "api", testStart, makeTest("above", models.OutcomePassed, 2.001)),
	}

	result, err := NewQuery().FilterByTest().WithDuration(1.0, 2.0).Apply(pool)
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	ids := result.SessionIDs()
	if len(ids) != 2 {
		t.Fatalf("inclusive bounds should match s1 and s2, got %v", ids)
	}
}

func TestWithPatternSearchesNamedField(t *testing.T) {
	failing := makeTest("tests/test_api.py::test_login", models.OutcomeFailed, 1.0)
	failing.LongRepr = "AssertionError: token expired"
	pool := []*models.TestSession{
		makeSession("s1", "api", testStart, failing),
		makeSession("s2", "api", testStart, makeTest("tests/test_db.py::test_connect", models.OutcomePassed, 1.0)),
	}

	result, err := NewQuery().FilterByTest().
		WithPattern("token expired", FieldLongRepr).
		Apply(pool)
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if result.Count() != 1 || result.Sessions[0].SessionID != "s1" {
		t.Errorf("pattern should match only s1, got %v", result.SessionIDs())
	}
}

func TestWithPatternUnknownFieldFails(t *testing.T) {
	_, err := NewQuery().FilterByTest().
		WithPattern("x", Field("stacktrace")).
		Apply([]*models.TestSession{})
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
	if !IsInvalidFilterKindError(err) {
		t.Errorf("expected InvalidFilterKindError, got %T", err)
	}
}

func TestWithRegexInvalidPatternFails(t *testing.T) {
	_, err := NewQuery().FilterByTest().
		WithRegex("(unclosed", FieldNodeID).
		Apply([]*models.TestSession{})
	if err == nil {
		t.Fatal("expected error for invalid regex")
	}
	if !IsInvalidFilterKindError(err) {
		t.Errorf("expected InvalidFilterKindError, got %T", err)
	}
}

func TestWithRegexSearchesField(t *testing.T) {
	noisy := makeTest("tests/test_api.py::test_retry", models.OutcomeFailed, 1.0)
	noisy.Caplog = "WARNING retrying request attempt=3"
	pool := []*models.TestSession{
		makeSession("s1", "api", testStart, noisy),
		makeSession("s2", "api", testStart, makeTest("tests/test_db.py::test_connect", models.OutcomePassed, 1.0)),
	}

	result, err := NewQuery().FilterByTest().
		WithRegex(`attempt=\d+`, FieldCaplog).
		Apply(pool)
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if result.Count() != 1 || result.Sessions[0].SessionID != "s1" {
		t.Errorf("regex should match only s1, got %v", result.SessionIDs())
	}
}

func TestInsightComputesPerNodeidAggregates(t *testing.T) {
	s1 := makeSession("s1", "api", testStart,
		makeTest("tests/test_api.py::test_login", models.OutcomePassed, 1.0),
		makeTest("tests/test_api.py::test_logout", models.OutcomePassed, 0.5))
	s2 := makeSession("s2", "api", testStart,
		makeTest("tests/test_api.py::test_login", models.OutcomeFailed, 3.0),
		makeTest("tests/test_api.py::test_logout", models.OutcomePassed, 0.5))
	pool := []*models.TestSession{s1, s2}

	insights, err := NewQuery().FilterByTest().
		WithName("test_"). // matches everything here
		Insight(pool)
	if err != nil {
		t.Fatalf("insight failed: %v", err)
	}

	login, ok := insights["tests/test_api.py::test_login"]
	if !ok {
		t.Fatal("missing insight for test_login")
	}
	if login.Runs != 2 {
		t.Errorf("login runs = %d, want 2", login.Runs)
	}
	if login.Reliability != 0.5 {
		t.Errorf("login reliability = %f, want 0.5", login.Reliability)
	}
	if login.AvgDuration != 2.0 {
		t.Errorf("login avg duration = %f, want 2.0", login.AvgDuration)
	}
	if login.Failures != 1 {
		t.Errorf("login failures = %d, want 1", login.Failures)
	}

	logout := insights["tests/test_api.py::test_logout"]
	if logout.Runs != 2 || logout.Reliability != 1.0 || logout.Failures != 0 {
		t.Errorf("logout insight wrong: %+v", logout)
	}
}

func TestInsightOnlyCountsMatchingTests(t *testing.T) {
	s := makeSession("s1", "api", testStart,
		makeTest("tests/test_api.py::test_login", models.OutcomeFailed, 2.0),
		makeTest("tests/test_db.py::test_connect", models.OutcomePassed, 1.0))
	pool := []*models.TestSession{s}

	insights, err := NewQuery().FilterByTest().
		WithName("test_api").
		Insight(pool)
	if err != nil {
		t.Fatalf("insight failed: %v", err)
	}

	if len(insights) != 1 {
		t.Fatalf("expected insight only for matching tests, got %d entries", len(insights))
	}
	if _, ok := insights["tests/test_db.py::test_connect"]; ok {
		t.Error("non-matching test must not appear in insight")
	}
}
