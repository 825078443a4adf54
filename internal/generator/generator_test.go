package generator

import (
	"math/rand"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/moolen/insight/internal/models"
)

func TestGenerateSessionCount(t *testing.T) {
	g := testGenerator(t, Config{
		SUTs:            []string{"api-service", "worker"},
		Days:            3,
		SessionsPerDay:  2,
		TestsPerSession: 5,
		Seed:            42,
	})

	sessions := g.Generate()

	want := 3 * 2 * 2
	if len(sessions) != want {
		t.Fatalf("expected %d sessions, got %d", want, len(sessions))
	}
	for _, s := range sessions {
		if err := s.Validate(); err != nil {
			t.Errorf("session %s failed validation: %v", s.SessionID, err)
		}
	}
}

func TestGenerateSessionShape(t *testing.T) {
	g := testGenerator(t, Config{
		SUTs:            []string{"api-service"},
		Days:            1,
		SessionsPerDay:  1,
		TestsPerSession: 10,
		FailureRate:     0.2,
		Seed:            7,
	})

	sessions := g.Generate()
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	s := sessions[0]

	if !strings.HasPrefix(s.SessionID, "api-service-") {
		t.Errorf("expected session id prefixed with SUT name, got %q", s.SessionID)
	}
	if len(s.SessionID) != len("api-service-")+36 {
		t.Errorf("expected uuid-suffixed session id, got %q", s.SessionID)
	}
	for _, key := range []string{"environment", "version", "platform"} {
		if s.Tag(key) == "" {
			t.Errorf("expected session tag %q to be set", key)
		}
	}
	if len(s.TestResults) < 10 {
		t.Errorf("expected at least 10 results, got %d", len(s.TestResults))
	}

	nodeids := make(map[string]bool)
	for _, r := range s.TestResults {
		nodeids[r.NodeID] = true
		if !strings.HasPrefix(r.NodeID, "tests/test_") || !strings.Contains(r.NodeID, ".py::test_") {
			t.Errorf("unexpected nodeid format %q", r.NodeID)
		}
		if r.Duration <= 0 {
			t.Errorf("expected positive duration for %s, got %f", r.NodeID, r.Duration)
		}
	}
	if len(nodeids) != 10 {
		t.Errorf("expected 10 distinct nodeids, got %d", len(nodeids))
	}

	if !s.SessionStopTime.After(s.SessionStartTime) {
		t.Error("expected session stop time after start time")
	}
	if s.SessionDuration <= 0 {
		t.Errorf("expected positive session duration, got %f", s.SessionDuration)
	}
}

func TestGenerateDeterministicWithSeed(t *testing.T) {
	cfg := Config{
		SUTs:            []string{"api-service", "worker"},
		Days:            2,
		SessionsPerDay:  2,
		TestsPerSession: 8,
		FailureRate:     0.3,
		WarningRate:     0.1,
		RerunRate:       0.5,
		Seed:            1234,
	}

	first := testGenerator(t, cfg).Generate()
	second := testGenerator(t, cfg).Generate()

	if len(first) != len(second) {
		t.Fatalf("expected equal session counts, got %d and %d", len(first), len(second))
	}
	for i := range first {
		if first[i].SUTName != second[i].SUTName {
			t.Errorf("session %d: SUT %q vs %q", i, first[i].SUTName, second[i].SUTName)
		}
		if !reflect.DeepEqual(first[i].SessionTags, second[i].SessionTags) {
			t.Errorf("session %d: tags %v vs %v", i, first[i].SessionTags, second[i].SessionTags)
		}
		if !reflect.DeepEqual(first[i].TestResults, second[i].TestResults) {
			t.Errorf("session %d: results differ between identically seeded runs", i)
		}
		if first[i].SessionID == second[i].SessionID {
			t.Errorf("session %d: expected unique session ids across runs", i)
		}
	}
}

func TestGenerateZeroFailureRate(t *testing.T) {
	g := testGenerator(t, Config{
		SUTs:            []string{"api-service"},
		Days:            2,
		SessionsPerDay:  2,
		TestsPerSession: 20,
		FailureRate:     0,
		RerunRate:       1,
		Seed:            99,
	})

	for _, s := range g.Generate() {
		for _, r := range s.TestResults {
			if r.Outcome.IsFailed() || r.Outcome == models.OutcomeRerun {
				t.Errorf("expected no failures with zero failure rate, got %s for %s", r.Outcome, r.NodeID)
			}
		}
		if s.HasReruns() {
			t.Error("expected no rerun groups with zero failure rate")
		}
	}
}

func TestGenerateAllFailures(t *testing.T) {
	g := testGenerator(t, Config{
		SUTs:            []string{"api-service"},
		Days:            1,
		SessionsPerDay:  2,
		TestsPerSession: 20,
		FailureRate:     1,
		RerunRate:       0,
		Seed:            99,
	})

	for _, s := range g.Generate() {
		for _, r := range s.TestResults {
			if !r.Outcome.IsFailed() {
				t.Errorf("expected every outcome failed, got %s for %s", r.Outcome, r.NodeID)
			}
		}
	}
}

func TestGenerateRerunChains(t *testing.T) {
	g := testGenerator(t, Config{
		SUTs:            []string{"api-service"},
		Days:            1,
		SessionsPerDay:  1,
		TestsPerSession: 10,
		FailureRate:     1,
		RerunRate:       1,
		Seed:            5,
	})

	sessions := g.Generate()
	s := sessions[0]

	if !s.HasReruns() {
		t.Fatal("expected rerun groups when every failing test is rerun")
	}
	if len(s.RerunTestGroups) != 10 {
		t.Fatalf("expected a rerun group per test, got %d", len(s.RerunTestGroups))
	}
	if len(s.TestResults) <= 10 {
		t.Errorf("expected chains to add executions, got %d results", len(s.TestResults))
	}

	for _, group := range s.RerunTestGroups {
		if len(group.Tests) < 2 {
			t.Errorf("group %s: expected at least two executions, got %d", group.NodeID, len(group.Tests))
			continue
		}
		for _, r := range group.Tests[:len(group.Tests)-1] {
			if r.Outcome != models.OutcomeRerun {
				t.Errorf("group %s: intermediate outcome %s, want RERUN", group.NodeID, r.Outcome)
			}
		}
		final := group.Tests[len(group.Tests)-1]
		if final.Outcome == models.OutcomeRerun {
			t.Errorf("group %s: final outcome must not be RERUN", group.NodeID)
		}
		if final.Outcome != group.FinalOutcome() {
			t.Errorf("group %s: FinalOutcome %s does not match last execution %s",
				group.NodeID, group.FinalOutcome(), final.Outcome)
		}
		for _, r := range group.Tests {
			if !r.Unreliable {
				t.Errorf("group %s: expected rerun executions flagged unreliable", group.NodeID)
			}
		}
	}

	if !s.HasUnreliableTests() {
		t.Error("expected session with rerun chains to report unreliable tests")
	}
}

func TestGenerateWarningRates(t *testing.T) {
	all := testGenerator(t, Config{
		SUTs: []string{"api-service"}, Days: 1, SessionsPerDay: 1,
		TestsPerSession: 15, WarningRate: 1, Seed: 3,
	})
	for _, s := range all.Generate() {
		for _, r := range s.TestResults {
			if !r.HasWarning {
				t.Errorf("expected warning on every result, missing for %s", r.NodeID)
			}
		}
	}

	none := testGenerator(t, Config{
		SUTs: []string{"api-service"}, Days: 1, SessionsPerDay: 1,
		TestsPerSession: 15, WarningRate: 0, Seed: 3,
	})
	for _, s := range none.Generate() {
		if s.HasWarnings() {
			t.Error("expected no warnings with zero warning rate")
		}
	}
}

func TestGenerateDefaults(t *testing.T) {
	g := testGenerator(t, Config{Seed: 11})

	sessions := g.Generate()

	want := defaultDays * len(defaultSUTs) * defaultSessionsPerDay
	if len(sessions) != want {
		t.Fatalf("expected %d sessions from defaults, got %d", want, len(sessions))
	}

	nodeids := make(map[string]bool)
	for _, r := range sessions[0].TestResults {
		nodeids[r.NodeID] = true
	}
	if len(nodeids) != defaultTestsPerSession {
		t.Errorf("expected %d distinct tests per session, got %d", defaultTestsPerSession, len(nodeids))
	}
}

func TestGenerateTimestampsWithinWindow(t *testing.T) {
	days := 3
	g := testGenerator(t, Config{
		SUTs: []string{"api-service"}, Days: days, SessionsPerDay: 2,
		TestsPerSession: 4, Seed: 21,
	})

	earliest := generatedAt.Add(-time.Duration(days) * 24 * time.Hour)
	for _, s := range g.Generate() {
		if s.SessionStartTime.Before(earliest) || s.SessionStartTime.After(generatedAt) {
			t.Errorf("session start %v outside window [%v, %v]", s.SessionStartTime, earliest, generatedAt)
		}
		if s.SessionStartTime.Location() != time.UTC {
			t.Errorf("expected UTC session start, got %v", s.SessionStartTime.Location())
		}
	}
}

func TestGenerateVersionProgression(t *testing.T) {
	g := testGenerator(t, Config{
		SUTs: []string{"api-service"}, Days: 4, SessionsPerDay: 1,
		TestsPerSession: 2, Seed: 8,
	})

	sessions := g.Generate()
	if len(sessions) != 4 {
		t.Fatalf("expected 4 sessions, got %d", len(sessions))
	}
	if got := sessions[0].Tag("version"); got != releaseVersions[0] {
		t.Errorf("expected oldest day on version %s, got %s", releaseVersions[0], got)
	}
	if got := sessions[3].Tag("version"); got != releaseVersions[len(releaseVersions)-1] {
		t.Errorf("expected newest day on version %s, got %s",
			releaseVersions[len(releaseVersions)-1], got)
	}
}

func TestBuildCorpusStableAcrossSeeds(t *testing.T) {
	first := buildCorpus(30, rand.New(rand.NewSource(1)))
	second := buildCorpus(30, rand.New(rand.NewSource(2)))

	if len(first) != 30 || len(second) != 30 {
		t.Fatalf("expected 30 cases, got %d and %d", len(first), len(second))
	}

	seen := make(map[string]bool)
	for i := range first {
		if first[i].nodeid != second[i].nodeid {
			t.Errorf("case %d: nodeid %q differs across seeds from %q", i, first[i].nodeid, second[i].nodeid)
		}
		if seen[first[i].nodeid] {
			t.Errorf("duplicate nodeid %q", first[i].nodeid)
		}
		seen[first[i].nodeid] = true
	}
}

func TestBuildCorpusSuffixesBeyondCombinations(t *testing.T) {
	n := len(testAreas)*len(testActions) + 5
	corpus := buildCorpus(n, rand.New(rand.NewSource(1)))

	seen := make(map[string]bool)
	for _, tc := range corpus {
		if seen[tc.nodeid] {
			t.Fatalf("duplicate nodeid %q past the combination limit", tc.nodeid)
		}
		seen[tc.nodeid] = true
	}
	if !strings.HasSuffix(corpus[n-1].nodeid, "_2") {
		t.Errorf("expected wrapped nodeid to carry a round suffix, got %q", corpus[n-1].nodeid)
	}
}

// generatedAt pins the generator clock so timestamps are reproducible.
var generatedAt = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

func testGenerator(t *testing.T, cfg Config) *Generator {
	t.Helper()
	g := New(cfg)
	g.now = func() time.Time { return generatedAt }
	return g
}
