package tee

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBrowser struct {
	launched int
	released int
	gotHost  string
	gotCred  Credential
}

func (f *fakeBrowser) strategy(c *Client, drive func() (string, error)) *browserStrategy {
	return &browserStrategy{
		c: c,
		launch: func(ctx context.Context, _ BrowserConfig) (context.Context, context.CancelFunc) {
			f.launched++
			ctx, cancel := context.WithCancel(ctx)
			return ctx, func() {
				f.released++
				cancel()
			}
		},
		drive: func(_ context.Context, _ string, portalHost string, cred Credential) (string, error) {
			f.gotHost = portalHost
			f.gotCred = cred
			return drive()
		},
	}
}

func TestBrowserStrategyParsesRenderedPage(t *testing.T) {
	c := NewClient(DefaultConfig(), nil)
	fb := &fakeBrowser{}
	s := fb.strategy(c, func() (string, error) { return listPage, nil })

	records, err := s.List(context.Background(), testRun(t, c))
	require.NoError(t, err)
	assert.Len(t, records, 3)
	assert.Equal(t, SOURCE_BROWSER, records[0].Source)
	assert.Equal(t, 1, fb.launched)
	assert.Equal(t, 1, fb.released)
	assert.Equal(t, "services.tee.gr", fb.gotHost)
	assert.Equal(t, goodCred, fb.gotCred)
}

func TestBrowserStrategyReleasesOnError(t *testing.T) {
	c := NewClient(DefaultConfig(), nil)
	fb := &fakeBrowser{}
	s := fb.strategy(c, func() (string, error) { return "", errors.New("chrome crashed") })

	_, err := s.List(context.Background(), testRun(t, c))
	assert.EqualError(t, err, "chrome crashed")
	assert.Equal(t, 1, fb.released)
}

func TestBrowserStrategyReleasesOnPanic(t *testing.T) {
	c := NewClient(DefaultConfig(), nil)
	fb := &fakeBrowser{}
	s := fb.strategy(c, func() (string, error) { panic("devtools went away") })

	_, err := s.List(context.Background(), testRun(t, c))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "devtools went away")
	assert.Equal(t, 1, fb.released)
}

func TestBrowserLookup(t *testing.T) {
	c := NewClient(DefaultConfig(), nil)
	fb := &fakeBrowser{}
	s := fb.strategy(c, func() (string, error) { return listPage, nil })

	rec, err := s.Lookup(context.Background(), testRun(t, c), "2024/17")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Contains(t, rec.Body, "Σε έλεγχο")

	rec, err = s.Lookup(context.Background(), testRun(t, c), "2030/1")
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.Equal(t, 2, fb.released)
}

func TestBrowserFailureFallsThroughToExhausted(t *testing.T) {
	c := NewClient(DefaultConfig(), nil)
	fb := &fakeBrowser{}
	c.WithStrategies(&fakeStrategy{name: "scrape"}, fb.strategy(c, func() (string, error) {
		return "", context.DeadlineExceeded
	}))

	_, err := c.ListApplications(context.Background(), testRun(t, c))
	assert.Equal(t, KindExhausted, KindOf(err))
	assert.Equal(t, 1, fb.released)
}

func TestSettled(t *testing.T) {
	assert.False(t, settled("sso.tee.gr", "services.tee.gr", 3, 3))
	assert.False(t, settled("services.tee.gr", "services.tee.gr", -1, 3))
	assert.False(t, settled("services.tee.gr", "services.tee.gr", 2, 3))
	assert.True(t, settled("services.tee.gr", "services.tee.gr", 3, 3))
}
