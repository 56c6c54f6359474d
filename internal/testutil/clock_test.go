package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/uirun/internal/page"
)

func TestManualClock_StartsAtEpoch(t *testing.T) {
	clock := NewManualClock(time.Time{})
	assert.Equal(t, Epoch, clock.Now())
}

func TestManualClock_AfterAdvances(t *testing.T) {
	clock := NewManualClock(time.Time{})

	got := <-clock.After(100 * time.Millisecond)
	assert.Equal(t, Epoch.Add(100*time.Millisecond), got)

	<-clock.After(200 * time.Millisecond)
	clock.Advance(time.Second)

	assert.Equal(t, 1300*time.Millisecond, clock.Elapsed(Epoch))
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, clock.Waits())
}

func TestManualClock_ThreadSafe(t *testing.T) {
	clock := NewManualClock(time.Time{})
	const goroutines = 50

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			<-clock.After(time.Millisecond)
		}()
	}
	wg.Wait()

	assert.Equal(t, goroutines*time.Millisecond, clock.Elapsed(Epoch))
	assert.Len(t, clock.Waits(), goroutines)
}

func TestSequentialIDs(t *testing.T) {
	ids := NewSequentialIDs("")
	assert.Equal(t, "run-0001", ids.Next())
	assert.Equal(t, "run-0002", ids.Next())

	custom := NewSequentialIDs("smoke")
	assert.Equal(t, "smoke-0001", custom.Next())
}

func projectsPage() *FakePage {
	return NewFakePage().Add(
		El{Handle: "card-1", Tag: "div", Selectors: []string{".card"}, Visible: true},
		El{Handle: "title-1", Tag: "h2", Text: "E2E Tests", Selectors: []string{"h2"}, Parent: "card-1", Visible: true},
		El{Handle: "open-1", Tag: "button", ID: "open-123", Text: "Open", Selectors: []string{"button"}, Parent: "card-1", Visible: true},
		El{Handle: "card-2", Tag: "div", Selectors: []string{".card"}, Visible: true},
		El{Handle: "title-2", Tag: "h2", Text: "Other", Selectors: []string{"h2"}, Parent: "card-2", Visible: true},
		El{Handle: "open-2", Tag: "button", ID: "open-124", Text: "Open", Selectors: []string{"button"}, Parent: "card-2", Visible: false},
	)
}

func handles(els []page.Element) []string {
	out := make([]string, len(els))
	for i, el := range els {
		out[i] = el.Handle
	}
	return out
}

func TestFakePage_Query(t *testing.T) {
	p := projectsPage()
	ctx := context.Background()

	tests := []struct {
		name   string
		target page.Target
		want   []string
	}{
		{"selector", page.Target{Selector: ".card"}, []string{"card-1", "card-2"}},
		{"text uses descendants", page.Target{Selector: ".card", Text: "e2e tests"}, []string{"card-1"}},
		{"closest", page.Target{Selector: "h2", Text: "E2E Tests", Closest: ".card"}, []string{"card-1"}},
		{"find", page.Target{Selector: "h2", Text: "E2E Tests", Closest: ".card", Find: "button"}, []string{"open-1"}},
		{"visible", page.Target{Selector: "button", Visible: true}, []string{"open-1"}},
		{"no match", page.Target{Selector: "#missing"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Query(ctx, tt.target)
			require.NoError(t, err)
			assert.Equal(t, tt.want, handles(got))
		})
	}
}

func TestFakePage_Actions(t *testing.T) {
	p := projectsPage().Add(El{Handle: "lang", Tag: "select", Selectors: []string{"select"}, Options: []string{"en", "de"}, Visible: true})
	p.OnClick("open-1", func(p *FakePage) { p.SetURL("https://app.test/projects/123") })
	ctx := context.Background()

	require.NoError(t, p.Navigate(ctx, "https://app.test/"))
	require.NoError(t, p.Click(ctx, page.Element{Handle: "open-1"}, page.ClickOptions{}))
	require.NoError(t, p.Type(ctx, page.Element{Handle: "title-1"}, "abc", false))
	require.NoError(t, p.Type(ctx, page.Element{Handle: "title-1"}, "d", false))
	require.NoError(t, p.Select(ctx, page.Element{Handle: "lang"}, "de"))

	url, err := p.URL(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://app.test/projects/123", url)
	assert.Equal(t, "abcd", p.Value("title-1"))
	assert.Equal(t, "de", p.Value("lang"))

	require.NoError(t, p.Type(ctx, page.Element{Handle: "title-1"}, "x", true))
	assert.Equal(t, "x", p.Value("title-1"))

	assert.Error(t, p.Click(ctx, page.Element{Handle: "open-2"}, page.ClickOptions{}))
	assert.NoError(t, p.Click(ctx, page.Element{Handle: "open-2"}, page.ClickOptions{Force: true}))
	assert.Error(t, p.Select(ctx, page.Element{Handle: "lang"}, "fr"))

	assert.Equal(t, []string{
		"navigate https://app.test/",
		"click open-1",
		"type title-1 abc",
		"type title-1 d",
		"select lang de",
		"type title-1 x",
		"click open-2",
	}, p.Actions())
}

func TestFakePage_AfterQueries(t *testing.T) {
	p := NewFakePage().Add(El{Handle: "toast", Selectors: []string{".toast"}, Visible: true, AfterQueries: 3})
	ctx := context.Background()
	target := page.Target{Selector: ".toast"}

	for i := 1; i <= 2; i++ {
		got, err := p.Query(ctx, target)
		require.NoError(t, err)
		assert.Empty(t, got, "query %d", i)
	}
	got, err := p.Query(ctx, target)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestFakePage_RemoveAndClose(t *testing.T) {
	p := projectsPage()
	ctx := context.Background()

	p.Remove("card-1")
	got, err := p.Query(ctx, page.Target{Selector: "button"})
	require.NoError(t, err)
	assert.Equal(t, []string{"open-2"}, handles(got))

	require.NoError(t, p.Close())
	assert.True(t, p.Closed())
	_, err = p.Query(ctx, page.Target{Selector: "button"})
	assert.ErrorIs(t, err, ErrPageClosed)
}
