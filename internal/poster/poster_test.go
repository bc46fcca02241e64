package poster

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	logx "announcebot/pkg/logx"
)

func fakeBotAPI(t *testing.T, sendBody func() (int, string)) (*httptest.Server, *int32) {
	t.Helper()
	var sends int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			fmt.Fprint(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"bot","username":"announce_bot"}}`)
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			atomic.AddInt32(&sends, 1)
			code, body := sendBody()
			w.WriteHeader(code)
			fmt.Fprint(w, body)
		default:
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"ok":false,"error_code":404,"description":"Not Found"}`)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &sends
}

func TestTelegramSendAndClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		code     int
		body     string
		wantErr  bool
		wantKind ErrorKind
	}{
		{
			name: "ok",
			code: http.StatusOK,
			body: `{"ok":true,"result":{"message_id":42,"date":1741600000,"chat":{"id":-1001,"type":"channel","username":"news"},"text":"hi"}}`,
		},
		{
			name:     "flood",
			code:     http.StatusTooManyRequests,
			body:     `{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 5","parameters":{"retry_after":5}}`,
			wantErr:  true,
			wantKind: RateLimited,
		},
		{
			name:     "chat not found",
			code:     http.StatusBadRequest,
			body:     `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`,
			wantErr:  true,
			wantKind: Rejected,
		},
		{
			name:     "forbidden",
			code:     http.StatusForbidden,
			body:     `{"ok":false,"error_code":403,"description":"Forbidden: bot is not a member of the channel chat"}`,
			wantErr:  true,
			wantKind: Rejected,
		},
		{
			name:     "server error",
			code:     http.StatusInternalServerError,
			body:     `{"ok":false,"error_code":500,"description":"Internal Server Error"}`,
			wantErr:  true,
			wantKind: Transient,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv, sends := fakeBotAPI(t, func() (int, string) { return tc.code, tc.body })
			p, err := NewTelegram(TelegramConfig{Token: "123:abc", Chat: "@news", APIURL: srv.URL, Timeout: 5 * time.Second}, logx.Nop())
			if err != nil {
				t.Fatalf("NewTelegram: %v", err)
			}

			res, err := p.Send(context.Background(), "hello world")
			if atomic.LoadInt32(sends) != 1 {
				t.Fatalf("expected exactly one sendMessage call, got %d", *sends)
			}
			if !tc.wantErr {
				if err != nil {
					t.Fatalf("Send: %v", err)
				}
				if res.ExternalID != "42" || res.URL != "https://t.me/news/42" {
					t.Fatalf("unexpected result: %+v", res)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error")
			}
			if got := KindOf(err); got != tc.wantKind {
				t.Fatalf("KindOf = %v, want %v (err=%v)", got, tc.wantKind, err)
			}
			if tc.wantKind == RateLimited {
				var se *SendError
				if !errors.As(err, &se) || se.RetryAfter != 5*time.Second {
					t.Fatalf("expected retry-after 5s, got %+v", se)
				}
			}
		})
	}
}

func TestTelegramHealthCheck(t *testing.T) {
	t.Parallel()

	srv, _ := fakeBotAPI(t, func() (int, string) { return http.StatusOK, `{"ok":true}` })
	p, err := NewTelegram(TelegramConfig{Token: "123:abc", Chat: "-1001", APIURL: srv.URL}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if err := p.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}

func TestTelegramConfigRequired(t *testing.T) {
	t.Parallel()

	if _, err := NewTelegram(TelegramConfig{Chat: "@x"}, logx.Nop()); err == nil {
		t.Fatal("expected error for empty token")
	}
	if _, err := NewTelegram(TelegramConfig{Token: "1:a"}, logx.Nop()); err == nil {
		t.Fatal("expected error for empty chat")
	}
}

func TestDryRun(t *testing.T) {
	t.Parallel()

	d := NewDryRun(logx.Nop())
	res, err := d.Send(context.Background(), "post one")
	if err != nil || !strings.HasPrefix(res.ExternalID, "dry-") {
		t.Fatalf("Send = %+v, %v", res, err)
	}
	if _, err := d.Send(context.Background(), "  "); !IsRejected(err) {
		t.Fatalf("empty content must be rejected, got %v", err)
	}
	if got := d.Sent(); len(got) != 1 || got[0] != "post one" {
		t.Fatalf("Sent = %v", got)
	}
}

func TestLimitedHonoursContext(t *testing.T) {
	t.Parallel()

	p := WithLimit(NewDryRun(logx.Nop()), time.Hour)
	if _, err := p.Send(context.Background(), "first"); err != nil {
		t.Fatalf("first send: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.Send(ctx, "second")
	if err == nil || KindOf(err) != Transient {
		t.Fatalf("expected transient limiter error, got %v", err)
	}
}
