// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := NewClient(server.URL, StaticCredentials{SessionID: "sess_test"}, nil)
	return client, server
}

func TestClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind ErrorKind
	}{
		{"unauthorized", http.StatusUnauthorized, `{"detail":"session expired"}`, KindAuth},
		{"forbidden", http.StatusForbidden, `{"detail":"not yours"}`, KindForbidden},
		{"not found", http.StatusNotFound, `{"detail":"no such conversation"}`, KindClient},
		{"validation", http.StatusUnprocessableEntity, `{"detail":"content required"}`, KindClient},
		{"server error", http.StatusInternalServerError, ``, KindServer},
		{"bad gateway", http.StatusBadGateway, `upstream dead`, KindServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))

			_, err := client.GetConversation(context.Background(), "conv_1")
			require.Error(t, err)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.wantKind, apiErr.Kind)
			assert.Equal(t, tt.status, apiErr.Status)
		})
	}
}

func TestClient_NetworkErrorKind(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", nil, nil)

	_, err := client.GetConversation(context.Background(), "conv_1")
	require.Error(t, err)
	assert.Equal(t, KindNetwork, Kind(err))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.Retryable())
}

func TestClient_AuthInvalidHookFires(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	var fired int32
	client.WithAuthInvalidHandler(func() { atomic.AddInt32(&fired, 1) })

	_, err := client.GetProfile(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnauthorized))
	assert.Equal(t, int32(1), atomic.LoadInt32(&fired))
}

func TestClient_SendsIdentityHeaders(t *testing.T) {
	var gotSession, gotAuth string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSession = r.Header.Get("X-Session-ID")
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, `{}`)
	}))
	client.creds = StaticCredentials{SessionID: "sess_42", AuthToken: "tok_abc"}

	_, err := client.GetProfile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sess_42", gotSession)
	assert.Equal(t, "Bearer tok_abc", gotAuth)
}

func TestClient_ListConversationsCached(t *testing.T) {
	var hits int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		fmt.Fprint(w, `[{"id":"conv_1","title":"Admissions","message_count":4}]`)
	}))

	first, err := client.ListConversations(context.Background())
	require.NoError(t, err)
	second, err := client.ListConversations(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&hits), "second read served from cache")
	assert.Equal(t, first, second)
	require.Len(t, second, 1)
	assert.Equal(t, "conv_1", second[0].ID)
}

func TestClient_StartConversationInvalidatesListing(t *testing.T) {
	var listHits int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			atomic.AddInt32(&listHits, 1)
			fmt.Fprint(w, `[]`)
		case r.Method == http.MethodPost:
			fmt.Fprint(w, `{"conversation_id":"conv_9","message_id":"msg_1"}`)
		}
	}))

	_, err := client.ListConversations(context.Background())
	require.NoError(t, err)

	resp, err := client.StartConversation(context.Background(), StartConversationRequest{Content: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "conv_9", resp.ConversationID)

	// The write invalidated the cache, so the next read refetches.
	_, err = client.ListConversations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&listHits))
}

func TestClient_RateMessagePaths(t *testing.T) {
	var gotPath string
	var gotBody RateMessageRequest
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusNoContent)
	}))

	err := client.RateMessage(context.Background(), "conv_1", "msg_2",
		RateMessageRequest{Helpful: true})
	require.NoError(t, err)
	assert.Equal(t, "/conversations/conv_1/messages/msg_2/rating", gotPath)
	assert.True(t, gotBody.Helpful)

	err = client.RateMessagePublic(context.Background(), "msg_3",
		RateMessageRequest{Helpful: false, Feedback: "off topic"})
	require.NoError(t, err)
	assert.Equal(t, "/messages/msg_3/rating", gotPath)
	assert.Equal(t, "off topic", gotBody.Feedback)
}

func TestClient_GetConversationToTranscript(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"id": "conv_1",
			"messages": [
				{"id":"m1","sender":"user","content":"What programs do you offer?"},
				{"id":"m2","sender":"ai","content":"We offer...","confidence_score":0.92,"rating":1}
			]
		}`)
	}))

	conv, err := client.GetConversation(context.Background(), "conv_1")
	require.NoError(t, err)

	tr := conv.ToTranscript()
	assert.Equal(t, "conv_1", tr.ConversationID)
	require.Equal(t, 2, tr.Len())
	assert.True(t, tr.Messages[1].Sender.IsAssistant())
	assert.InDelta(t, 0.92, tr.Messages[1].ConfidenceScore, 0.001)
}

func TestClient_SubmitQuiz(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/quizzes/quiz_1/submissions", r.URL.Path)
		fmt.Fprint(w, `{"quiz_id":"quiz_1","score":8,"max_score":10,"recommendation":"ready"}`)
	}))

	result, err := client.SubmitQuiz(context.Background(), QuizSubmission{
		QuizID:  "quiz_1",
		Answers: map[string]int{"q1": 2, "q2": 0},
	})
	require.NoError(t, err)
	assert.Equal(t, 8, result.Score)
	assert.Equal(t, "ready", result.Recommendation)
}

func TestClient_OpenStream(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/stream", r.URL.Path)
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		fmt.Fprint(w, "data: {\"type\":\"complete\"}\n")
	}))

	body, err := client.OpenStream(context.Background(), StreamRequest{Content: "hello"})
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Contains(t, string(data), "complete")
}

func TestClient_OpenStreamErrorStatus(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"detail":"advisor offline"}`)
	}))

	_, err := client.OpenStream(context.Background(), StreamRequest{Content: "hello"})
	require.Error(t, err)
	assert.Equal(t, KindServer, Kind(err))
}
