package repostore

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/gitsocial-org/gitsocial/internal/gitref"
)

func day(s string) time.Time {
	t, err := time.Parse(gitref.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestCoalesceRangesMergesOverlapping(t *testing.T) {
	ranges := []Range{
		{Start: day("2024-01-10"), End: day("2024-01-15")},
		{Start: day("2024-01-14"), End: day("2024-01-20")},
	}
	merged := CoalesceRanges(ranges)
	if len(merged) != 1 {
		t.Fatalf("expected a single merged range, got %d: %v", len(merged), merged)
	}
	if !merged[0].Start.Equal(day("2024-01-10")) || !merged[0].End.Equal(day("2024-01-20")) {
		t.Fatalf("unexpected merged range: %+v", merged[0])
	}
}

func TestCoalesceRangesKeepsDisjoint(t *testing.T) {
	ranges := []Range{
		{Start: day("2024-01-01"), End: day("2024-01-05")},
		{Start: day("2024-02-01"), End: day("2024-02-05")},
	}
	merged := CoalesceRanges(ranges)
	if len(merged) != 2 {
		t.Fatalf("expected two disjoint ranges, got %d", len(merged))
	}
}

func TestIsCovered(t *testing.T) {
	ranges := []Range{{Start: day("2024-01-01"), End: day("2024-01-31")}}
	if !IsCovered(ranges, day("2024-01-15")) {
		t.Fatalf("expected 2024-01-15 to be covered")
	}
	if IsCovered(ranges, day("2024-02-01")) {
		t.Fatalf("expected 2024-02-01 to be uncovered")
	}
}

func TestConfigRoundTripAndRangeUnion(t *testing.T) {
	repoPath := t.TempDir()
	if out, err := exec.Command("git", "-C", repoPath, "init", "-q").CombinedOutput(); err != nil {
		t.Fatalf("git init: %v\n%s", err, out)
	}

	s := New(t.TempDir())
	ctx := context.Background()

	cfg, err := s.ReadConfig(ctx, repoPath)
	if err != nil {
		t.Fatalf("read empty config: %v", err)
	}
	if !cfg.LastFetch.IsZero() || cfg.FetchedRanges != nil {
		t.Fatalf("expected empty config, got %+v", cfg)
	}

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := s.UpdateConfig(ctx, repoPath, Config{LastFetch: now}); err != nil {
		t.Fatalf("update config: %v", err)
	}
	if err := s.AddFetchedRange(ctx, repoPath, Range{Start: day("2024-01-10"), End: day("2024-01-15")}); err != nil {
		t.Fatalf("add range 1: %v", err)
	}
	if err := s.AddFetchedRange(ctx, repoPath, Range{Start: day("2024-01-14"), End: day("2024-01-20")}); err != nil {
		t.Fatalf("add range 2: %v", err)
	}

	cfg, err = s.ReadConfig(ctx, repoPath)
	if err != nil {
		t.Fatalf("reread config: %v", err)
	}
	if !cfg.LastFetch.Equal(now) {
		t.Fatalf("lastFetch mismatch: %v", cfg.LastFetch)
	}
	if len(cfg.FetchedRanges) != 1 {
		t.Fatalf("expected coalesced single range, got %+v", cfg.FetchedRanges)
	}
	r := cfg.FetchedRanges[0]
	if !r.Start.Equal(day("2024-01-10")) || !r.End.Equal(day("2024-01-20")) {
		t.Fatalf("unexpected coalesced range: %+v", r)
	}
}

func TestPersistenceFlagDefaultsTrue(t *testing.T) {
	repoPath := t.TempDir()
	if out, err := exec.Command("git", "-C", repoPath, "init", "-q").CombinedOutput(); err != nil {
		t.Fatalf("git init: %v\n%s", err, out)
	}
	s := New(t.TempDir())
	ctx := context.Background()

	persistent, err := s.IsPersistent(ctx, repoPath)
	if err != nil || !persistent {
		t.Fatalf("unset flag should default to persistent: %v, %v", persistent, err)
	}
	if err := s.SetPersistent(ctx, repoPath, false); err != nil {
		t.Fatalf("set persistent: %v", err)
	}
	persistent, err = s.IsPersistent(ctx, repoPath)
	if err != nil || persistent {
		t.Fatalf("expected transient after SetPersistent(false): %v, %v", persistent, err)
	}
}

func TestRepoPathUsesSlug(t *testing.T) {
	s := New("/tmp/storage")
	got := s.RepoPath("https://github.com/example/repo")
	want := "/tmp/storage/repositories/github-com-example-repo"
	if got != want {
		t.Fatalf("unexpected repo path: got %q want %q", got, want)
	}
}
