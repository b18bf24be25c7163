package gitexec

import (
	"context"
	"strings"
	"testing"

	"github.com/gitsocial-org/gitsocial/internal/giterr"
)

func TestRunReturnsExitCodeWithoutError(t *testing.T) {
	r := New(t.TempDir())
	res, err := r.Run(context.Background(), "rev-parse", "--is-inside-work-tree")
	if err != nil {
		t.Fatalf("Run should not fail for a non-zero exit: %v", err)
	}
	if res.ExitCode == 0 {
		t.Fatalf("expected non-zero exit outside a repository")
	}
}

func TestOutputClassifiesFailure(t *testing.T) {
	r := New(t.TempDir())
	_, err := r.Output(context.Background(), giterr.ReadError, "log", "-1")
	if err == nil {
		t.Fatalf("expected error running git log outside a repository")
	}
	ge, ok := err.(*giterr.Error)
	if !ok {
		t.Fatalf("expected *giterr.Error, got %T", err)
	}
	if ge.Code != giterr.ReadError && ge.Code != giterr.RepoError {
		t.Fatalf("unexpected code %s", ge.Code)
	}
}

func TestClassifyRecognizesMissingRef(t *testing.T) {
	res := Result{ExitCode: 128, Stderr: "fatal: 'refs/nope' - not a valid ref"}
	if got := Classify(giterr.ReadError, res); got.Code != giterr.RefError {
		t.Fatalf("expected REF_ERROR, got %s", got.Code)
	}

	res = Result{ExitCode: 1, Stderr: "something else entirely"}
	if got := Classify(giterr.ReadError, res); got.Code != giterr.ReadError {
		t.Fatalf("expected fallback code, got %s", got.Code)
	}
	if !strings.Contains(Classify(giterr.ReadError, res).Message, "exited 1") {
		t.Fatalf("expected exit code in message")
	}
}
