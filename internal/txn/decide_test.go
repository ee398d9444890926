package txn

import "testing"

func TestDecide(t *testing.T) {
	writerQueued := []waiter{{id: 2, mode: LockModeExclusive}}
	cases := []struct {
		name    string
		holders map[ID]LockMode
		queue   []waiter
		req     ID
		mode    LockMode
		want    grant
	}{
		{"free shared", nil, nil, 1, LockModeShared, grantNew},
		{"free exclusive", nil, nil, 1, LockModeExclusive, grantNew},
		{"share with reader", map[ID]LockMode{2: LockModeShared}, nil, 1, LockModeShared, grantNew},
		{"shared blocked by writer", map[ID]LockMode{2: LockModeExclusive}, nil, 1, LockModeShared, grantWait},
		{"exclusive blocked by reader", map[ID]LockMode{2: LockModeShared}, nil, 1, LockModeExclusive, grantWait},
		{"reentrant shared", map[ID]LockMode{1: LockModeShared}, nil, 1, LockModeShared, grantHeld},
		{"exclusive covers shared", map[ID]LockMode{1: LockModeExclusive}, nil, 1, LockModeShared, grantHeld},
		{"sole reader upgrades", map[ID]LockMode{1: LockModeShared}, nil, 1, LockModeExclusive, grantUpgrade},
		{"upgrade waits", map[ID]LockMode{1: LockModeShared, 2: LockModeShared}, nil, 1, LockModeExclusive, grantWait},
		{"reader queued behind waiting writer", map[ID]LockMode{3: LockModeShared}, writerQueued, 1, LockModeShared, grantWait},
		{"writer queued behind waiting writer", nil, writerQueued, 1, LockModeExclusive, grantWait},
		{"readers share after queued reader", map[ID]LockMode{3: LockModeShared}, []waiter{{id: 2, mode: LockModeShared}}, 1, LockModeShared, grantNew},
		{"head of queue is granted", nil, []waiter{{id: 1, mode: LockModeExclusive}, {id: 2, mode: LockModeShared}}, 1, LockModeExclusive, grantNew},
		{"later waiter does not block earlier", map[ID]LockMode{3: LockModeShared}, []waiter{{id: 1, mode: LockModeShared}, {id: 2, mode: LockModeExclusive}}, 1, LockModeShared, grantNew},
		{"holder upgrade skips queue", map[ID]LockMode{1: LockModeShared}, writerQueued, 1, LockModeExclusive, grantUpgrade},
		{"holder reentry skips queue", map[ID]LockMode{1: LockModeShared}, writerQueued, 1, LockModeShared, grantHeld},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := decide(tc.holders, tc.queue, tc.req, tc.mode); got != tc.want {
				t.Fatalf("decide() = %v, want %v", got, tc.want)
			}
		})
	}
}
