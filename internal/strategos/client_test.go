package strategos

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testClient(serverURL string) *Client {
	return NewClient(Config{
		BaseURL:      serverURL,
		PollInterval: 10 * time.Millisecond,
		PollTimeout:  time.Second,
		RetryBase:    time.Millisecond,
	})
}

func TestSpawnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/spawn-from-template" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"id":"w-123"}`)
	}))
	defer srv.Close()

	id, err := testClient(srv.URL).Spawn(context.Background(), SpawnRequest{
		Template: "researcher", Label: "level-1",
	})
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}
	if id != "w-123" {
		t.Errorf("expected w-123, got %s", id)
	}
}

func TestSpawnRetriesOnMissingID(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			fmt.Fprint(w, `{}`) // missing id: transient
			return
		}
		fmt.Fprint(w, `{"id":"w-9"}`)
	}))
	defer srv.Close()

	id, err := testClient(srv.URL).Spawn(context.Background(), SpawnRequest{Template: "t"})
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}
	if id != "w-9" {
		t.Errorf("expected w-9, got %s", id)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestSpawnValidationFailsImmediately(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "label too long: max 64 characters", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Spawn(context.Background(), SpawnRequest{Template: "t", Label: "x"})
	if err == nil {
		t.Fatal("expected error")
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T: %v", err, err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("validation errors must not retry, got %d attempts", got)
	}
}

func TestSpawnExhaustsRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Spawn(context.Background(), SpawnRequest{Template: "t"})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	// 1 initial attempt + 3 retries
	if got := atomic.LoadInt32(&calls); got != 4 {
		t.Errorf("expected 4 attempts, got %d", got)
	}
}

func TestWaitForDoneSuccessWords(t *testing.T) {
	for _, word := range []string{"done", "completed", "awaiting_review", "not_found"} {
		t.Run(word, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprintf(w, "%s healthy 100%% finished", word)
			}))
			defer srv.Close()

			status, err := testClient(srv.URL).WaitForDone(context.Background(), "w-1", time.Second)
			if err != nil {
				t.Fatalf("WaitForDone failed: %v", err)
			}
			if status == "" {
				t.Error("expected final status line")
			}
		})
	}
}

func TestWaitForDoneFailureWords(t *testing.T) {
	for _, word := range []string{"error", "failed", "blocked"} {
		t.Run(word, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprintf(w, "%s unhealthy 40%% stuck", word)
			}))
			defer srv.Close()

			_, err := testClient(srv.URL).WaitForDone(context.Background(), "w-1", time.Second)
			if err == nil {
				t.Fatal("expected terminal failure error")
			}
		})
	}
}

func TestWaitForDonePollsUntilTerminal(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 4 {
			fmt.Fprint(w, "running healthy 50% step-2")
			return
		}
		fmt.Fprint(w, "done healthy 100% finished")
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).WaitForDone(context.Background(), "w-1", 5*time.Second)
	if err != nil {
		t.Fatalf("WaitForDone failed: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got < 4 {
		t.Errorf("expected at least 4 polls, got %d", got)
	}
}

func TestWaitForDoneTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "running healthy 10% slow")
	}))
	defer srv.Close()

	start := time.Now()
	_, err := testClient(srv.URL).WaitForDone(context.Background(), "w-1", 50*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > 2*time.Second {
		t.Error("timeout took far longer than requested")
	}
}

func TestStatusNotFoundMapsToWord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	status, err := testClient(srv.URL).Status(context.Background(), "gone")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status != "not_found" {
		t.Errorf("expected not_found, got %q", status)
	}
}

func TestOutputPassesQueryParams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("strip_ansi") != "true" {
			t.Error("strip_ansi not set")
		}
		if q.Get("lines") != "40" {
			t.Errorf("lines=%s", q.Get("lines"))
		}
		fmt.Fprint(w, "worker output text")
	}))
	defer srv.Close()

	out, err := testClient(srv.URL).Output(context.Background(), "w-1", 40)
	if err != nil {
		t.Fatalf("Output failed: %v", err)
	}
	if out != "worker output text" {
		t.Errorf("unexpected output %q", out)
	}
}

func TestDeleteToleratesNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	if err := testClient(srv.URL).Delete(context.Background(), "gone"); err != nil {
		t.Errorf("Delete should treat 404 as success: %v", err)
	}
}
