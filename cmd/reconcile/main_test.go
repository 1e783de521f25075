package main

import (
	"bytes"
	"testing"

	"chat-core/domain"

	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	results := []domain.Reconciliation{
		{UserID: "alice", Stored: 2, Live: 2},
		{UserID: "bob", Stored: 5, Live: 3},
	}

	t.Run("lists every user", func(t *testing.T) {
		req := require.New(t)
		var out bytes.Buffer
		render(&out, results, false, false, false)
		req.Contains(out.String(), "alice")
		req.Contains(out.String(), "drift")
		req.Contains(out.String(), "2 users checked, 1 drifted")
	})

	t.Run("hides healthy users", func(t *testing.T) {
		req := require.New(t)
		var out bytes.Buffer
		render(&out, results, false, true, false)
		req.NotContains(out.String(), "alice")
		req.Contains(out.String(), "bob")
	})

	t.Run("marks repaired users", func(t *testing.T) {
		req := require.New(t)
		repaired := []domain.Reconciliation{{UserID: "bob", Stored: 5, Live: 3, Repaired: true}}
		var out bytes.Buffer
		render(&out, repaired, true, false, false)
		req.Contains(out.String(), "repaired")
		req.Contains(out.String(), "1 users checked, 1 drifted, repaired")
	})
}
