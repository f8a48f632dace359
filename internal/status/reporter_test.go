package status_test

import (
	"strings"
	"testing"

	"github.com/smahi/mirrorbot/internal/models"
	"github.com/smahi/mirrorbot/internal/status"
)

func TestReporterRemembersCurrentOperation(t *testing.T) {
	reg := status.New(0)
	rp := status.NewReporter(reg, "worker-1")

	id := rp.StartDownload("Books", "Release A", "https://rapidgator.net/file/1")
	if id == status.InvalidID {
		t.Fatal("StartDownload returned the invalid sentinel")
	}
	if rp.CurrentOperationID() != id {
		t.Error("reporter did not remember the operation")
	}

	if !rp.UpdateProgress(0.5, "halfway") {
		t.Error("UpdateProgress on the current operation failed")
	}
	op, _ := reg.Get(id)
	if op.Progress != 0.5 || op.Details != "halfway" {
		t.Errorf("operation not updated: %+v", op)
	}

	if !rp.Complete("/downloads/file.bin", "") {
		t.Error("Complete failed")
	}
	if rp.CurrentOperationID() != "" {
		t.Error("Complete did not clear the remembered id")
	}

	op, _ = reg.Get(id)
	if op.Status != models.StatusCompleted {
		t.Errorf("status = %s, want completed", op.Status)
	}
	// Download results land in the target path, not the upload url.
	if op.TargetPath != "/downloads/file.bin" || op.UploadURL != "" {
		t.Errorf("result routed badly: target=%q upload=%q", op.TargetPath, op.UploadURL)
	}
}

func TestReporterWithoutOperationIsNoop(t *testing.T) {
	reg := status.New(0)
	rp := status.NewReporter(reg, "worker-1")

	if rp.UpdateProgress(0.5, "") {
		t.Error("UpdateProgress with no current operation returned true")
	}
	if rp.Fail("boom", "") {
		t.Error("Fail with no current operation returned true")
	}
}

func TestReporterExplicitID(t *testing.T) {
	reg := status.New(0)
	rp := status.NewReporter(reg, "worker-1")

	first := rp.StartDownload("Books", "A", "https://h/1")
	second := rp.StartDownload("Books", "B", "https://h/2")

	// Updating the first by explicit id must not touch the current (second).
	rp.UpdateProgress(0.9, "", first)
	opA, _ := reg.Get(first)
	opB, _ := reg.Get(second)
	if opA.Progress != 0.9 {
		t.Errorf("explicit-id update lost: %f", opA.Progress)
	}
	if opB.Progress != 0 {
		t.Errorf("current operation touched: %f", opB.Progress)
	}

	// Completing the first must not clear the remembered second.
	rp.Complete("", "", first)
	if rp.CurrentOperationID() != second {
		t.Error("completing a non-current operation cleared the remembered id")
	}
}

func TestUpdateTransferProgressDetails(t *testing.T) {
	reg := status.New(0)
	rp := status.NewReporter(reg, "worker-1")
	id := rp.StartDownload("Books", "A", "https://h/1")

	rp.UpdateTransferProgress(5*1024*1024, 10*1024*1024, 1024*1024)

	op, _ := reg.Get(id)
	if op.BytesTransferred != 5*1024*1024 || op.TotalBytes != 10*1024*1024 {
		t.Errorf("transfer metrics not recorded: %+v", op)
	}
	if op.Progress != 0.5 {
		t.Errorf("progress = %f, want 0.5", op.Progress)
	}
	if !strings.Contains(op.Details, "50%") || !strings.Contains(op.Details, "ETA") {
		t.Errorf("details = %q, want percentage and ETA", op.Details)
	}
}

func TestStartMultiUploadPrepopulatesHosts(t *testing.T) {
	reg := status.New(0)
	rp := status.NewReporter(reg, "uploader-1")
	hosts := []string{"rapidgator.net", "katfile.com", "nitroflare.com"}

	id := rp.StartMultiUpload("Books", "A", "/staging/a.zip", hosts)
	op, _ := reg.Get(id)
	if op.TotalHosts != 3 || len(op.HostResults) != 3 {
		t.Fatalf("host results not pre-populated: %+v", op)
	}
	for _, h := range hosts {
		if op.HostResults[h].Status != models.HostPending {
			t.Errorf("host %s status = %s, want pending", h, op.HostResults[h].Status)
		}
	}
}

func TestUpdateMultiUploadProgress(t *testing.T) {
	reg := status.New(0)
	rp := status.NewReporter(reg, "uploader-1")
	id := rp.StartMultiUpload("Books", "A", "/staging/a.zip", []string{"h1", "h2"})

	// First host halfway: no host finished yet, overall = 0.5/2.
	rp.UpdateMultiUploadProgress(0, "h1", 0.5, "")
	op, _ := reg.Get(id)
	if op.Progress != 0.25 {
		t.Errorf("overall progress = %f, want 0.25", op.Progress)
	}
	if !strings.Contains(op.Details, "Host 1/2 (h1)") {
		t.Errorf("details = %q", op.Details)
	}

	// Mark the first host finished, second host at 50%: overall = 1.5/2.
	reg.Update(id, status.WithHostResult("h1", models.HostResult{Status: models.HostSuccess}))
	rp.UpdateMultiUploadProgress(1, "h2", 0.5, "")
	op, _ = reg.Get(id)
	if op.Progress != 0.75 {
		t.Errorf("overall progress = %f, want 0.75", op.Progress)
	}
}
