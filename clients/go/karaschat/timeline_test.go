package karaschat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeline_ReconcilesOwnSend(t *testing.T) {
	tl := NewTimeline(1)

	p := tl.Submit("text", "hi")
	require.Len(t, tl.Render(), 1)

	tl.ApplyNew(Message{ID: 42, SenderID: 1, Kind: "text", Content: "hi", ClientTag: p.ClientTag, CreatedAt: time.Now()})

	view := tl.Render()
	require.Len(t, view, 1, "exactly one record after merge")
	require.NotNil(t, view[0].Message)
	assert.EqualValues(t, 42, view[0].Message.ID)
}

func TestTimeline_ContentTripleFallback(t *testing.T) {
	tl := NewTimeline(1)
	tl.Submit("text", "hi")

	// authoritative record without an echoed tag still confirms by triple
	tl.ApplyNew(Message{ID: 7, SenderID: 1, Kind: "text", Content: "hi", CreatedAt: time.Now()})

	view := tl.Render()
	require.Len(t, view, 1)
	require.NotNil(t, view[0].Message)
}

func TestTimeline_IdenticalRapidSendsStayDistinct(t *testing.T) {
	tl := NewTimeline(1)
	p1 := tl.Submit("text", "ok")
	p2 := tl.Submit("text", "ok")

	tl.ApplyNew(Message{ID: 10, SenderID: 1, Kind: "text", Content: "ok", ClientTag: p1.ClientTag, CreatedAt: time.Now()})

	// the tag keys the merge: only p1 is confirmed, p2 still pending
	view := tl.Render()
	require.Len(t, view, 2)
	var pending int
	for _, e := range view {
		if e.Provisional != nil {
			pending++
			assert.Equal(t, p2.TempID, e.Provisional.TempID)
		}
	}
	assert.Equal(t, 1, pending)
}

func TestTimeline_PeerMessagesPassThrough(t *testing.T) {
	tl := NewTimeline(1)
	tl.Submit("text", "hi")

	// same content from a different sender must not consume the provisional
	tl.ApplyNew(Message{ID: 3, SenderID: 2, Kind: "text", Content: "hi", CreatedAt: time.Now()})

	view := tl.Render()
	require.Len(t, view, 2)
}

func TestTimeline_RenderSortedByTime(t *testing.T) {
	tl := NewTimeline(1)
	base := time.Now()
	tl.ApplyNew(Message{ID: 2, SenderID: 2, Kind: "text", Content: "b", CreatedAt: base.Add(2 * time.Second)})
	tl.ApplyNew(Message{ID: 1, SenderID: 2, Kind: "text", Content: "a", CreatedAt: base})

	view := tl.Render()
	require.Len(t, view, 2)
	assert.EqualValues(t, 1, view[0].Message.ID)
	assert.EqualValues(t, 2, view[1].Message.ID)
}

func TestTimeline_ApplyDeletedBlanksInPlace(t *testing.T) {
	tl := NewTimeline(1)
	tl.ApplyNew(Message{ID: 5, SenderID: 2, Kind: "image", Content: "blob", FileName: "x.png", CreatedAt: time.Now()})

	tl.ApplyDeleted(5)

	view := tl.Render()
	require.Len(t, view, 1)
	m := view[0].Message
	assert.True(t, m.Deleted)
	assert.Equal(t, "text", m.Kind)
	assert.Empty(t, m.Content)
	assert.Empty(t, m.FileName)
}

func TestTypingTracker_Expiry(t *testing.T) {
	tr := NewTypingTracker()
	current := time.Now()
	tr.now = func() time.Time { return current }

	tr.Start(2)
	assert.Equal(t, []uint{2}, tr.Typing())

	// a lost stop event expires after the window
	current = current.Add(TypingWindow + time.Second)
	assert.Empty(t, tr.Typing())

	tr.Start(3)
	tr.Stop(3)
	assert.Empty(t, tr.Typing())
}

func TestCallState_Transitions(t *testing.T) {
	s := NewCallState()

	require.NoError(t, s.Dial(2))
	phase, peer := s.Phase()
	assert.Equal(t, CallCalling, phase)
	assert.EqualValues(t, 2, peer)

	// cannot ring while already calling
	assert.ErrorIs(t, s.Ring(3), ErrBadTransition)

	require.NoError(t, s.Answered())
	phase, _ = s.Phase()
	assert.Equal(t, CallConnected, phase)

	s.End()
	phase, peer = s.Phase()
	assert.Equal(t, CallIdle, phase)
	assert.Zero(t, peer)

	// callee side
	require.NoError(t, s.Ring(1))
	require.NoError(t, s.Accept())
	phase, _ = s.Phase()
	assert.Equal(t, CallConnected, phase)
}
