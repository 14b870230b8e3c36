package oidc

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/h2non/gock.v1"

	"github.com/tbd54566975/oid4vci-issuer/config"
	"github.com/tbd54566975/oid4vci-issuer/pkg/service/oidc/model"
	"github.com/tbd54566975/oid4vci-issuer/pkg/service/record"
	"github.com/tbd54566975/oid4vci-issuer/pkg/service/statuslist"
)

// issuePID runs the whole exchange and returns the id of the stored record.
func (e *testEnv) issuePID(t *testing.T) string {
	code, _ := e.offer(t, "PID", testPIDClaims(), false)
	tokenResp := e.token(t, code, "")
	_, err := e.service.IssueCredential(context.Background(), tokenResp.AccessToken,
		credentialRequest(e.proof(t, newTestSigner(t), tokenResp.CNonce)))
	require.NoError(t, err)
	check, err := e.service.CheckOffer(context.Background(), code)
	require.NoError(t, err)
	return check.UUID
}

func TestSetRevocationState(t *testing.T) {
	ctx := context.Background()

	t.Run("revokes on the status list", func(tt *testing.T) {
		defer gock.Off()
		env := newTestEnv(tt)
		mockAllocation()
		id := env.issuePID(tt)

		gock.New("https://status.example.com").
			Post("/api/revoke").
			MatchHeader("Authorization", "^Bearer list-token$").
			Reply(200).
			JSON(map[string]any{"state": "REVOKED"})

		resp, err := env.service.SetRevocationState(ctx, model.RevokeRequest{ID: id, State: model.RevokeState})
		require.NoError(tt, err)
		assert.Equal(tt, statuslist.Revoked.String(), resp.State)
		assert.True(tt, gock.IsDone())

		issued, err := env.records.Get(ctx, id)
		require.NoError(tt, err)
		assert.Equal(tt, statuslist.Revoked.String(), issued.State)
	})

	t.Run("unchanged revoke", func(tt *testing.T) {
		defer gock.Off()
		env := newTestEnv(tt)
		mockAllocation()
		id := env.issuePID(tt)

		gock.New("https://status.example.com").
			Post("/api/revoke").
			Reply(200).
			JSON(map[string]any{"state": "UNCHANGED"})

		resp, err := env.service.SetRevocationState(ctx, model.RevokeRequest{ID: id, State: model.RevokeState})
		require.NoError(tt, err)
		assert.Equal(tt, statuslist.WasRevoked.String(), resp.State)

		issued, err := env.records.Get(ctx, id)
		require.NoError(tt, err)
		assert.Equal(tt, CredentialIssued.String(), issued.State)
	})

	t.Run("list name selects no entry", func(tt *testing.T) {
		defer gock.Off()
		env := newTestEnv(tt)
		mockAllocation()
		id := env.issuePID(tt)

		resp, err := env.service.SetRevocationState(ctx, model.RevokeRequest{ID: id, State: "unrevoke", ListName: "other"})
		require.NoError(tt, err)
		assert.Equal(tt, statuslist.Unknown.String(), resp.State)
	})

	t.Run("status list no longer configured", func(tt *testing.T) {
		defer gock.Off()
		env := newTestEnv(tt)
		mockAllocation()
		id := env.issuePID(tt)

		env.service.config.StatusLists = map[string]config.StatusListConfig{}
		resp, err := env.service.SetRevocationState(ctx, model.RevokeRequest{ID: id, State: model.RevokeState})
		require.NoError(tt, err)
		assert.Equal(tt, statuslist.Unknown.String(), resp.State)
	})

	t.Run("status server failure", func(tt *testing.T) {
		defer gock.Off()
		env := newTestEnv(tt)
		mockAllocation()
		id := env.issuePID(tt)
		gock.New("https://status.example.com").Post("/api/revoke").Reply(500)

		_, err := env.service.SetRevocationState(ctx, model.RevokeRequest{ID: id, State: model.RevokeState})
		assertCode(tt, err, InvalidRequest, http.StatusInternalServerError)
	})

	t.Run("no such credential", func(tt *testing.T) {
		env := newTestEnv(tt)
		_, err := env.service.SetRevocationState(ctx, model.RevokeRequest{ID: "missing", State: model.RevokeState})
		assertCode(tt, err, InvalidRequest, http.StatusNotFound)
	})

	t.Run("credential of another issuer", func(tt *testing.T) {
		env := newTestEnv(tt)
		require.NoError(tt, env.records.Save(ctx, record.IssuedCredential{ID: "theirs", Issuer: "other"}))
		_, err := env.service.SetRevocationState(ctx, model.RevokeRequest{ID: "theirs", State: model.RevokeState})
		assertCode(tt, err, InvalidRequest, http.StatusNotFound)
	})

	t.Run("no status list", func(tt *testing.T) {
		env := newTestEnv(tt, withoutStatusLists)
		id := env.issuePID(tt)
		_, err := env.service.SetRevocationState(ctx, model.RevokeRequest{ID: id, State: model.RevokeState})
		assertCode(tt, err, InvalidRequest, http.StatusBadRequest)
		assert.ErrorContains(tt, err, "No statuslist available")
	})
}

func TestSweep(t *testing.T) {
	ctx := context.Background()

	t.Run("expired sessions and nonces are removed", func(tt *testing.T) {
		env := newTestEnv(tt, withoutStatusLists)
		code, _ := env.offer(tt, "PID", testPIDClaims(), false)
		tokenResp := env.token(tt, code, "")

		env.clock.Add(DefaultNonceTTL + time.Second)
		require.NoError(tt, env.service.Sweep(ctx))
		nonce, err := env.service.nonces.Get(ctx, tokenResp.CNonce)
		require.NoError(tt, err)
		assert.Nil(tt, nonce)
		assert.Equal(tt, AccessTokenCreated, env.status(tt, code))

		env.clock.Add(DefaultSessionTTL)
		require.NoError(tt, env.service.Sweep(ctx))
		_, err = env.service.CheckOffer(ctx, code)
		assertCode(tt, err, InvalidRequest, http.StatusNotFound)
	})

	t.Run("sweeper runs on its ticker until cancelled", func(tt *testing.T) {
		env := newTestEnv(tt)
		code, _ := env.offer(tt, "PID", testPIDClaims(), false)

		sweepCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		env.service.StartSweeper(sweepCtx, time.Minute)
		env.clock.Add(DefaultSessionTTL)

		assert.Eventually(tt, func() bool {
			env.clock.Add(time.Minute)
			session, err := env.service.sessions.Lookup(ctx, code)
			return err == nil && session == nil
		}, time.Second, 10*time.Millisecond)
	})
}
