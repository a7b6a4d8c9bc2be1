package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"renju/agent"
	"renju/searcher"
	"testing"

	"github.com/stretchr/testify/require"
)

const testSize = 9

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mcts := searcher.NewMCTS(agent.NewHeuristicEvaluator(), searcher.WithSimulations(30), searcher.WithSeed(1), searcher.WithMetrics())
	ts := httptest.NewServer(New(mcts, testSize).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func emptyRows() [][]int {
	rows := make([][]int, testSize)
	for i := range rows {
		rows[i] = make([]int, testSize)
	}
	return rows
}

func post(t *testing.T, ts *httptest.Server, path string, payload any) (*http.Response, map[string]any) {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")

	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("Content-Type"))
}

func TestMove(t *testing.T) {
	t.Run("opens in the centre", func(t *testing.T) {
		ts := newTestServer(t)

		resp, out := post(t, ts, "/move", moveRequest{Board: emptyRows()})

		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, map[string]any{"row": 4.0, "col": 4.0}, out["move"])
	})

	t.Run("searches and reuses the tree", func(t *testing.T) {
		ts := newTestServer(t)
		rows := emptyRows()
		rows[4][4] = 1

		resp, out := post(t, ts, "/move", moveRequest{Board: rows, LastMove: &coordDTO{Row: 4, Col: 4}, MoveNumber: 1})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, true, out["tree_reset"])
		require.Equal(t, 30.0, out["episodes"])
		require.Len(t, out["pi"], testSize*testSize)

		move := out["move"].(map[string]any)
		rows[int(move["row"].(float64))][int(move["col"].(float64))] = -1
		reply := coordDTO{Row: 0, Col: 0}
		if rows[0][0] != 0 {
			reply = coordDTO{Row: 8, Col: 8}
		}
		rows[reply.Row][reply.Col] = 1

		resp, out = post(t, ts, "/move", moveRequest{Board: rows, LastMove: &reply, MoveNumber: 3})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, false, out["tree_reset"])
	})

	t.Run("rejects malformed requests", func(t *testing.T) {
		ts := newTestServer(t)

		resp, err := http.Post(ts.URL+"/move", "application/json", bytes.NewReader([]byte("{")))
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)

		resp, out := post(t, ts, "/move", moveRequest{Board: [][]int{{0}}})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Contains(t, out["error"], "rows")

		resp, _ = post(t, ts, "/move", moveRequest{Board: emptyRows(), LastMove: &coordDTO{Row: 2, Col: 2}})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("refuses a finished game", func(t *testing.T) {
		ts := newTestServer(t)
		rows := emptyRows()
		for col := 0; col < 5; col++ {
			rows[0][col] = 1
		}
		for col := 0; col < 4; col++ {
			rows[1][col] = -1
		}

		resp, _ := post(t, ts, "/move", moveRequest{Board: rows})

		require.Equal(t, http.StatusConflict, resp.StatusCode)
	})
}

func TestCandidates(t *testing.T) {
	ts := newTestServer(t)
	rows := emptyRows()
	for col := 2; col < 6; col++ {
		rows[4][col] = 1
	}
	rows[0][0], rows[0][8], rows[8][0], rows[8][8] = -1, -1, -1, -1

	t.Run("full scan stops at a winning cell", func(t *testing.T) {
		resp, out := post(t, ts, "/candidates", candidatesRequest{Board: rows, Color: 1})

		require.Equal(t, http.StatusOK, resp.StatusCode)
		candidates := out["candidates"].([]any)
		require.Len(t, candidates, 1)
		require.Equal(t, map[string]any{"row": 4.0, "col": 1.0, "score": 5.0}, candidates[0])
	})

	t.Run("history limits the scan", func(t *testing.T) {
		history := []coordDTO{{Row: 8, Col: 8}}

		resp, out := post(t, ts, "/candidates", candidatesRequest{Board: rows, Color: 1, History: history})

		require.Equal(t, http.StatusOK, resp.StatusCode)
		candidates := out["candidates"].([]any)
		require.Len(t, candidates, 3, "Only the neighbours of the last move")
	})
}

func TestReset(t *testing.T) {
	ts := newTestServer(t)

	resp, out := post(t, ts, "/reset", struct{}{})

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, out["reset"])
}
