package main

import "testing"

// TestWSBaseURL verifies the http->ws scheme mapping used to derive the
// command channel URL.
func TestWSBaseURL(t *testing.T) {
	cases := []struct{ in, want string }{
		{"http://localhost:8080", "ws://localhost:8080"},
		{"https://sandbox.example.com", "wss://sandbox.example.com"},
		{"ws://already-ws:8080", "ws://already-ws:8080"},
	}
	for _, tc := range cases {
		if got := wsBaseURL(tc.in); got != tc.want {
			t.Errorf("wsBaseURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
