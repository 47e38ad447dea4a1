// Package main provides a local platform simulator for Gatekeep development.
//
// It plays both halves of the platform:
//   - serves the event-stream WebSocket that Gatekeep dials
//     (point GATEKEEP_EVENTS_URL at ws://127.0.0.1:9901/events)
//   - stubs the outbound bot API that Gatekeep calls
//     (point GATEKEEP_PLATFORM_API_URL at http://127.0.0.1:9901/api)
//
// Events are injected from stdin, one command per line:
//
//	join <user_id> <community_id>
//	start <user_id> <entry_token>
//	msg <user_id> <text...>
//	member <user_id> <community_id> <previous> <current>
//
// Outbound API calls are logged to stdout; sendMessage text is printed in
// full so the operator can copy the entry token out of the invite link.
// With -flaky-approvals, every first approveChatJoinRequest per run is
// answered with 429 + retry_after to exercise the retry path.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	v1 "gatekeep/contracts/platform/v1"

	"github.com/coder/websocket"
)

const subprotocol = "gatekeep.platform.v1"

type simulator struct {
	mu   sync.Mutex
	conn *websocket.Conn

	flakyApprovals bool
	approveCalls   atomic.Int64
	seq            atomic.Int64
}

func main() {
	var (
		addr   = flag.String("addr", "127.0.0.1:9901", "listen address")
		flaky  = flag.Bool("flaky-approvals", false, "answer the first approveChatJoinRequest with 429")
		handle = flag.String("handle", "", "community username for getChat (empty = private community)")
	)
	flag.Parse()

	sim := &simulator{flakyApprovals: *flaky}

	mux := http.NewServeMux()
	mux.HandleFunc("/events", sim.handleEvents)
	mux.HandleFunc("/api/", sim.handleAPI(*handle))

	go sim.readCommands(os.Stdin)

	fmt.Printf("platform-sim listening on %s\n", *addr)
	fmt.Printf("  GATEKEEP_EVENTS_URL=ws://%s/events\n", *addr)
	fmt.Printf("  GATEKEEP_PLATFORM_API_URL=http://%s/api\n", *addr)

	if err := http.ListenAndServe(*addr, mux); err != nil {
		fatalf("listen: %v", err)
	}
}

func (s *simulator) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols: []string{subprotocol},
	})
	if err != nil {
		fmt.Printf("events: accept failed: %v\n", err)
		return
	}

	s.mu.Lock()
	if s.conn != nil {
		_ = s.conn.Close(websocket.StatusGoingAway, "superseded")
	}
	s.conn = conn
	s.mu.Unlock()

	fmt.Println("events: bot connected")

	// Drain the connection so pings are answered; the bot never sends
	// data frames on this stream.
	for {
		if _, _, err := conn.Read(r.Context()); err != nil {
			break
		}
	}

	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.mu.Unlock()
	fmt.Println("events: bot disconnected")
}

func (s *simulator) emit(kind string, payload any) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		fmt.Println("emit: no bot connected")
		return
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		fatalf("marshal payload: %v", err)
	}
	env := v1.Envelope{
		V:       v1.Version,
		Kind:    kind,
		ID:      fmt.Sprintf("sim-%d", s.seq.Add(1)),
		TS:      time.Now().UTC(),
		Payload: raw,
	}
	b, err := json.Marshal(env)
	if err != nil {
		fatalf("marshal envelope: %v", err)
	}
	if err := conn.Write(context.Background(), websocket.MessageText, b); err != nil {
		fmt.Printf("emit: write failed: %v\n", err)
		return
	}
	fmt.Printf("emit: %s id=%s\n", kind, env.ID)
}

func (s *simulator) readCommands(in io.Reader) {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "join":
			if len(fields) != 3 {
				fmt.Println("usage: join <user_id> <community_id>")
				continue
			}
			s.emit(v1.KindJoinRequest, v1.JoinRequestPayload{
				UserID:      fields[1],
				CommunityID: fields[2],
			})
		case "start":
			if len(fields) != 3 {
				fmt.Println("usage: start <user_id> <entry_token>")
				continue
			}
			s.emit(v1.KindStart, v1.StartPayload{
				UserID:     fields[1],
				EntryToken: fields[2],
			})
		case "msg":
			if len(fields) < 3 {
				fmt.Println("usage: msg <user_id> <text...>")
				continue
			}
			s.emit(v1.KindMessage, v1.MessagePayload{
				UserID: fields[1],
				Text:   strings.Join(fields[2:], " "),
			})
		case "member":
			if len(fields) != 5 {
				fmt.Println("usage: member <user_id> <community_id> <previous> <current>")
				continue
			}
			s.emit(v1.KindMemberUpdated, v1.MemberUpdatedPayload{
				UserID:      fields[1],
				CommunityID: fields[2],
				Previous:    v1.MemberState(fields[3]),
				Current:     v1.MemberState(fields[4]),
			})
		default:
			fmt.Printf("unknown command: %s\n", fields[0])
		}
	}
}

func (s *simulator) handleAPI(handle string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		method := strings.TrimPrefix(r.URL.Path, "/api/")

		switch method {
		case "approveChatJoinRequest":
			n := s.approveCalls.Add(1)
			if s.flakyApprovals && n == 1 {
				fmt.Println("api: approveChatJoinRequest -> 429 retry_after=2")
				writeReply(w, http.StatusTooManyRequests, map[string]any{
					"ok":          false,
					"error_code":  429,
					"description": "Too Many Requests",
					"parameters":  map[string]any{"retry_after": 2},
				})
				return
			}
			fmt.Println("api: approveChatJoinRequest -> ok")
		case "sendMessage":
			var body struct {
				UserID string `json:"user_id"`
				Text   string `json:"text"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			fmt.Printf("api: sendMessage user=%s\n  %s\n", body.UserID, body.Text)
		case "sendPhoto":
			fmt.Println("api: sendPhoto (challenge artifact)")
		case "getChat":
			var body struct {
				ChatID string `json:"chat_id"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			fmt.Printf("api: getChat chat=%s\n", body.ChatID)
			writeReply(w, http.StatusOK, map[string]any{
				"ok": true,
				"result": map[string]any{
					"id":       1001,
					"title":    "Simulated Community",
					"username": handle,
				},
			})
			return
		case "createChatInviteLink":
			fmt.Println("api: createChatInviteLink")
			writeReply(w, http.StatusOK, map[string]any{
				"ok": true,
				"result": map[string]any{
					"invite_link": fmt.Sprintf("https://invite.sim/%d", time.Now().UnixNano()),
				},
			})
			return
		default:
			fmt.Printf("api: %s\n", method)
		}

		writeReply(w, http.StatusOK, map[string]any{"ok": true, "result": map[string]any{}})
	}
}

func writeReply(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
