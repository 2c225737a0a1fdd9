package buildinfo

import (
	"bytes"
	"log"
	"strings"
	"testing"
)

func TestInfoAndLog(t *testing.T) {
	origVersion := Version
	origCommit := Commit
	origDate := Date
	t.Cleanup(func() {
		Version = origVersion
		Commit = origCommit
		Date = origDate
	})

	Version = "0.3.0"
	Commit = "deadbee"
	Date = "2026-05-01"

	info := Info()
	if info != "version=0.3.0 commit=deadbee date=2026-05-01" {
		t.Fatalf("unexpected info: %s", info)
	}

	var buf bytes.Buffer
	origOutput := log.Writer()
	origFlags := log.Flags()
	log.SetOutput(&buf)
	log.SetFlags(0)
	t.Cleanup(func() {
		log.SetOutput(origOutput)
		log.SetFlags(origFlags)
	})

	Log("weft-orchestrator")
	got := strings.TrimSpace(buf.String())
	if !strings.Contains(got, "weft-orchestrator") || !strings.Contains(got, info) {
		t.Fatalf("unexpected log output: %s", got)
	}
}
