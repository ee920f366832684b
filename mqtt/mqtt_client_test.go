package mqtt

import "testing"

func TestTopicMatch(t *testing.T) {
	cases := []struct {
		filter string
		topic  string
		want   bool
	}{
		{"diokit/record/bo0/set", "diokit/record/bo0/set", true},
		{"diokit/record/+/set", "diokit/record/bo0/set", true},
		{"diokit/record/+/set", "diokit/record/bo0/get", false},
		{"diokit/record/+/set", "diokit/record/set", false},
		{"diokit/#", "diokit/record/bo0/set", true},
		{"remote_bus/scan/+", "remote_bus/scan/3", true},
		{"remote_bus/scan/+", "remote_bus/scan/3/extra", false},
		{"a/b", "a/b/c", false},
		{"a/b/c", "a/b", false},
	}

	for _, c := range cases {
		got := TopicMatch(c.filter, c.topic)
		if got != c.want {
			t.Errorf("TopicMatch(%q, %q) = %v, want %v", c.filter, c.topic, got, c.want)
		}
	}
}
