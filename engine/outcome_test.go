package engine

import "testing"

func TestSummarize(t *testing.T) {
	outcomes := []TransferOutcome{
		{TransferSucceeded: true, Checksum: ChecksumMatched},
		{TransferSucceeded: true, Checksum: ChecksumNotApplicable},
		{TransferSucceeded: true, Checksum: ChecksumMismatched},
		{TransferSucceeded: false, Checksum: ChecksumNotApplicable, ErrorMessage: "x"},
	}

	got := Summarize(outcomes)
	want := Summary{Total: 4, Succeeded: 2, Failed: 2, ChecksumMismatches: 1}
	if got != want {
		t.Errorf("Summarize() = %+v, want %+v", got, want)
	}

	if empty := Summarize(nil); empty != (Summary{}) {
		t.Errorf("Summarize(nil) = %+v", empty)
	}
}
