package offlineagent

import "testing"

func TestBuildNotification(t *testing.T) {
	n := BuildNotification([]byte("Deploy finished"))
	if n.Title != "Offline Agent" {
		t.Fatalf("Title is %q", n.Title)
	}
	if n.Body != "Deploy finished" {
		t.Fatalf("Body is %q", n.Body)
	}
	if len(n.Actions) != 2 || n.Actions[0].Action != "open" || n.Actions[1].Action != "dismiss" {
		t.Fatalf("Actions are %+v", n.Actions)
	}
	if n.TargetPath != "/" {
		t.Fatalf("TargetPath is %q", n.TargetPath)
	}
}

func TestBuildNotificationEmptyPayload(t *testing.T) {
	n := BuildNotification(nil)
	if n.Body == "" {
		t.Fatal("Empty payload produced an empty body")
	}
}
