package session

import (
	"errors"
	"sync"
	"testing"

	"adminbot/internal/models"
)

func TestUploadFlowTransitions(t *testing.T) {
	store := NewStore()
	const p = models.Principal(1)

	if got := store.Get(p); got.State != Idle || got.Pending != nil {
		t.Fatalf("new principal should be idle: %+v", got)
	}

	att := models.Attachment{FileID: "f1", FileName: "report.txt", Size: 10}
	if err := store.AttachFile(p, att); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("attach without upload: want ErrInvalidTransition, got %v", err)
	}

	store.BeginUpload(p)
	if got := store.Get(p); got.State != AwaitingFile || got.Pending != nil {
		t.Fatalf("after BeginUpload: %+v", got)
	}
	if err := store.AttachFile(p, models.Attachment{FileID: "f1"}); !errors.Is(err, ErrMissingAttachment) {
		t.Fatalf("attach without name: want ErrMissingAttachment, got %v", err)
	}
	if err := store.AttachFile(p, att); err != nil {
		t.Fatalf("AttachFile error: %v", err)
	}
	got := store.Get(p)
	if got.State != AwaitingSavePath || got.Pending == nil || *got.Pending != att {
		t.Fatalf("after AttachFile: %+v", got)
	}
	// a second attachment is not a valid transition from AwaitingSavePath
	if err := store.AttachFile(p, att); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second attach: want ErrInvalidTransition, got %v", err)
	}

	if prev := store.Clear(p); prev != AwaitingSavePath {
		t.Fatalf("Clear returned %s", prev)
	}
	if store.Get(p).State != Idle || store.Len() != 0 {
		t.Fatalf("session not cleared")
	}
	if prev := store.Clear(p); prev != Idle {
		t.Fatalf("clearing idle session returned %s", prev)
	}
}

func TestBeginOverwritesExistingSession(t *testing.T) {
	store := NewStore()
	const p = models.Principal(2)
	store.BeginUpload(p)
	_ = store.AttachFile(p, models.Attachment{FileID: "x", FileName: "x.bin"})

	store.BeginDownload(p)
	got := store.Get(p)
	if got.State != AwaitingDownloadPath || got.Pending != nil {
		t.Fatalf("download must replace upload session without pending data: %+v", got)
	}
}

func TestSnapshotsAreCopies(t *testing.T) {
	store := NewStore()
	const p = models.Principal(3)
	store.BeginUpload(p)
	_ = store.AttachFile(p, models.Attachment{FileID: "id", FileName: "a.txt"})

	snap := store.Get(p)
	snap.Pending.FileName = "../../etc/passwd"
	if store.Get(p).Pending.FileName != "a.txt" {
		t.Fatalf("snapshot mutation leaked into store")
	}
}

func TestPrincipalsAreIndependent(t *testing.T) {
	store := NewStore()
	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(p models.Principal) {
			defer wg.Done()
			store.BeginUpload(p)
			name := p.String() + ".txt"
			if err := store.AttachFile(p, models.Attachment{FileID: "id-" + p.String(), FileName: name}); err != nil {
				t.Errorf("AttachFile(%d): %v", p, err)
				return
			}
			if got := store.Get(p); got.Pending == nil || got.Pending.FileName != name {
				t.Errorf("principal %d saw %+v", p, got)
			}
		}(models.Principal(i))
	}
	wg.Wait()
	if store.Len() != 50 {
		t.Fatalf("expected 50 sessions, got %d", store.Len())
	}
}
