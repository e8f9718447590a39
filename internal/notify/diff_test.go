package notify

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeMailbox struct {
	added    []string
	latest   uint64
	addedErr error

	threadOf  map[string]string // messageID -> threadID
	lookupErr map[string]error

	threads   map[string][]Message
	threadErr map[string]error

	labels    []LabelInfo
	labelsErr error
	totals    map[string]int64
	totalErr  map[string]error
}

func (f *fakeMailbox) AddedMessageIDs(ctx context.Context, since uint64) ([]string, uint64, error) {
	return f.added, f.latest, f.addedErr
}

func (f *fakeMailbox) ThreadID(ctx context.Context, messageID string) (string, error) {
	if err := f.lookupErr[messageID]; err != nil {
		return "", err
	}
	id, ok := f.threadOf[messageID]
	if !ok {
		return "", fmt.Errorf("no such message %s", messageID)
	}
	return id, nil
}

func (f *fakeMailbox) Thread(ctx context.Context, threadID string) ([]Message, error) {
	if err := f.threadErr[threadID]; err != nil {
		return nil, err
	}
	msgs, ok := f.threads[threadID]
	if !ok {
		return nil, fmt.Errorf("no such thread %s", threadID)
	}
	return msgs, nil
}

func (f *fakeMailbox) Labels(ctx context.Context) ([]LabelInfo, error) {
	return f.labels, f.labelsErr
}

func (f *fakeMailbox) LabelTotal(ctx context.Context, labelID string) (int64, error) {
	if err := f.totalErr[labelID]; err != nil {
		return 0, err
	}
	return f.totals[labelID], nil
}

func TestDiffSinceCollapsesThreads(t *testing.T) {
	mb := &fakeMailbox{
		added:    []string{"m1", "m2", "m3"},
		latest:   120,
		threadOf: map[string]string{"m1": "t1", "m2": "t1", "m3": "t2"},
		threads: map[string][]Message{
			"t1": {{ID: "m1", ThreadID: "t1"}, {ID: "m2", ThreadID: "t1"}},
			"t2": {{ID: "m3", ThreadID: "t2"}},
		},
	}

	diff, err := NewEngine(mb).DiffSince(context.Background(), 100)
	require.NoError(t, err)
	require.EqualValues(t, 120, diff.NewHistory)
	require.Len(t, diff.Threads, 2, "3 added messages in 2 threads yield 2 threads")
	require.Equal(t, "t1", diff.Threads[0].ID)
	require.Len(t, diff.Threads[0].Messages, 2)
	require.Equal(t, "t2", diff.Threads[1].ID)
}

func TestDiffSinceHistoryFailureIsFatal(t *testing.T) {
	mb := &fakeMailbox{addedErr: errors.New("backend down")}

	_, err := NewEngine(mb).DiffSince(context.Background(), 100)
	require.Error(t, err)
}

func TestDiffSinceDropsFailedThread(t *testing.T) {
	mb := &fakeMailbox{
		added:    []string{"m1", "m2"},
		latest:   110,
		threadOf: map[string]string{"m1": "t1", "m2": "t2"},
		threads: map[string][]Message{
			"t1": {{ID: "m1", ThreadID: "t1"}},
		},
		threadErr: map[string]error{"t2": errors.New("transient")},
	}

	diff, err := NewEngine(mb).DiffSince(context.Background(), 100)
	require.NoError(t, err, "a failed thread never aborts the diff")
	require.Len(t, diff.Threads, 1)
	require.Equal(t, "t1", diff.Threads[0].ID)
}

func TestDiffSinceSkipsFailedLookup(t *testing.T) {
	mb := &fakeMailbox{
		added:     []string{"m1", "m2"},
		latest:    105,
		threadOf:  map[string]string{"m2": "t2"},
		lookupErr: map[string]error{"m1": errors.New("not found")},
		threads: map[string][]Message{
			"t2": {{ID: "m2", ThreadID: "t2"}},
		},
	}

	diff, err := NewEngine(mb).DiffSince(context.Background(), 100)
	require.NoError(t, err)
	require.Len(t, diff.Threads, 1)
}

func TestLabelSummaryPlaceholders(t *testing.T) {
	mb := &fakeMailbox{
		labels: []LabelInfo{
			{ID: "L1", Name: "INBOX"},
			{ID: "", Name: "orphan"}, // missing id
			{ID: "L3", Name: ""},     // missing name
			{ID: "L4", Name: "SPAM"},
		},
		totals:   map[string]int64{"L1": 42, "L4": 7},
		totalErr: map[string]error{"L4": errors.New("transient")},
	}

	counts := NewEngine(mb).labelSummary(context.Background())
	require.Len(t, counts, 4, "summary length equals input label count")
	require.Equal(t, LabelCount{Name: "INBOX", Count: 42}, counts[0])
	require.Equal(t, LabelCount{Name: "unknown", Count: 0}, counts[1])
	require.Equal(t, LabelCount{Name: "unknown", Count: 0}, counts[2])
	require.Equal(t, LabelCount{Name: "SPAM", Count: 0}, counts[3], "failed count degrades to zero")
}

func TestLabelSummaryListFailure(t *testing.T) {
	mb := &fakeMailbox{labelsErr: errors.New("backend down")}
	counts := NewEngine(mb).labelSummary(context.Background())
	require.Nil(t, counts)
}
