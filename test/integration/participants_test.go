//go:build integration

package integration

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"racereg/pkg/bib"
	"racereg/pkg/client"
	"racereg/pkg/model"
)

// These tests run against a live participants service with the default bib ranges.
// Point TEST_SERVER_URL at it; the collection is cleaned before each test.

func newClient(t *testing.T) (*client.ParticipantClient, context.Context) {
	t.Helper()
	serverURL := os.Getenv("TEST_SERVER_URL")
	if serverURL == "" {
		serverURL = "http://localhost:8080"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	t.Cleanup(cancel)

	c := client.NewParticipantClient(serverURL)
	require.NoError(t, c.WaitForHealthy(ctx))
	clearParticipants(t, ctx, c)
	return c, ctx
}

func clearParticipants(t *testing.T, ctx context.Context, c *client.ParticipantClient) {
	t.Helper()
	for {
		resp, err := c.GetAll(ctx, 100, 0)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode, resp.ToString())

		participants, _, err := c.DecodeParticipants(resp)
		require.NoError(t, err)
		if len(participants) == 0 {
			return
		}
		for _, p := range participants {
			_, err := c.Delete(ctx, p.ID)
			require.NoError(t, err)
		}
	}
}

func register(t *testing.T, ctx context.Context, c *client.ParticipantClient, i int, category bib.Category) *model.Participant {
	t.Helper()
	resp, err := c.Register(ctx, model.Participant{
		FirstName: "Runner",
		LastName:  fmt.Sprintf("Number%d", i),
		Phone:     fmt.Sprintf("+9725412%05d", i),
		Category:  category,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode, resp.ToString())

	p, err := c.DecodeParticipant(resp)
	require.NoError(t, err)
	return p
}

func TestConfirm_SequentialAndIdempotent(t *testing.T) {
	c, ctx := newClient(t)

	first := register(t, ctx, c, 1, bib.Short)
	second := register(t, ctx, c, 2, bib.Short)
	assert.Empty(t, first.Bib)

	resp, err := c.Confirm(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, resp.ToString())
	confirmed, err := c.DecodeParticipant(resp)
	require.NoError(t, err)
	assert.Equal(t, "5001", confirmed.Bib)

	resp, err = c.Confirm(ctx, first.ID)
	require.NoError(t, err)
	again, err := c.DecodeParticipant(resp)
	require.NoError(t, err)
	assert.Equal(t, "5001", again.Bib)

	resp, err = c.Confirm(ctx, second.ID)
	require.NoError(t, err)
	next, err := c.DecodeParticipant(resp)
	require.NoError(t, err)
	assert.Equal(t, "5002", next.Bib)
}

func TestConfirm_ConcurrentRequestsNeverShareABib(t *testing.T) {
	c, ctx := newClient(t)

	const n = 20
	ids := make([]string, n)
	for i := range ids {
		ids[i] = register(t, ctx, c, 100+i, bib.Long).ID
	}

	var wg sync.WaitGroup
	bibs := make([]string, n)
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			for attempt := 0; attempt < 5; attempt++ {
				resp, err := c.Confirm(ctx, id)
				if err != nil || resp.StatusCode == http.StatusConflict {
					continue
				}
				if p, err := c.DecodeParticipant(resp); err == nil {
					bibs[i] = p.Bib
				}
				return
			}
		}(i, id)
	}
	wg.Wait()

	seen := map[string]bool{}
	for i, b := range bibs {
		require.NotEmpty(t, b, "participant %d got no bib", i)
		assert.True(t, bib.DefaultRanges().IsValid(b, bib.Long), "bib %s out of range", b)
		assert.False(t, seen[b], "bib %s assigned twice", b)
		seen[b] = true
	}
}

func TestValidateBib(t *testing.T) {
	c, ctx := newClient(t)

	resp, err := c.ValidateBib(ctx, "short", "5999")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = c.ValidateBib(ctx, "ultra", "1")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, client.GetErrorMessage(resp), "ULTRA")
}
